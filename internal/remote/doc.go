// Package remote implements the line protocol that lets a shell run
// commands on another host's slotshell server.
//
// A client opens a TCP connection and introduces itself:
//
//	HELLO user=<u> pid=<p> tty=<t> ip=<i>
//
// The server answers OK if the connection's peer address exactly matches
// an entry in its allow-list, and ERR NOT_ALLOWED otherwise, closing the
// connection. An accepted client then sends any number of commands, each
// as a "CMD <n>" line followed by exactly n bytes, and finally QUIT. For
// each command the server replies with "OUT <m>", m bytes of output, a
// newline, and "STATUS <code>".
//
// Any other input terminates the connection without affecting the server.
package remote

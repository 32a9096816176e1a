// Package shell implements the interactive slotshell prompt.
//
// A Shell reads one line at a time, dispatches builtins itself and hands
// everything else to a session.Runner, or to a remote server once the user
// has connected to one. Before each prompt it drains the session's mailbox
// and prints any notices other sessions sent it.
//
// ExecuteLine runs a single line through the same dispatcher and reports a
// status instead of printing a prompt. The remote server uses it to serve
// commands on behalf of connected clients.
package shell

package remote

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"
)

// Client is a connection to a remote slotshell server.
type Client struct {
	mu     sync.Mutex
	conn   net.Conn
	r      *bufio.Reader
	addr   string
	closed bool
}

// Dial connects to addr and performs the HELLO handshake. It returns
// ErrNotAllowed if the server rejects this client's address.
func Dial(ctx context.Context, addr string, hello Hello) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c := &Client{conn: conn, r: bufio.NewReader(conn), addr: addr}
	if err := c.handshake(hello); err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = conn.SetDeadline(time.Time{})
	return c, nil
}

func (c *Client) handshake(hello Hello) error {
	if _, err := io.WriteString(c.conn, hello.String()+"\n"); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}
	line, err := readLine(c.r)
	if err != nil {
		return fmt.Errorf("read hello reply: %w", err)
	}
	switch line {
	case okReply:
		return nil
	case notAllowedErr:
		return ErrNotAllowed
	default:
		return fmt.Errorf("%w: unexpected hello reply %q", ErrProtocol, truncateForLog(line))
	}
}

// Addr returns the server address the client dialed.
func (c *Client) Addr() string {
	return c.addr
}

// Exec runs command on the server, copies its output to out, and returns
// the reported status.
func (c *Client) Exec(command string, out io.Writer) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, ErrClosed
	}
	if len(command) > MaxPayload {
		return 0, fmt.Errorf("%w: command exceeds %d bytes", ErrProtocol, MaxPayload)
	}

	w := bufio.NewWriter(c.conn)
	fmt.Fprintf(w, "%s %s\n", cmdVerb, strconv.Itoa(len(command)))
	_, _ = io.WriteString(w, command)
	if err := w.Flush(); err != nil {
		return 0, fmt.Errorf("send command: %w", err)
	}

	line, err := readLine(c.r)
	if err != nil {
		return 0, fmt.Errorf("read output header: %w", err)
	}
	n, err := parseLength(line, outVerb)
	if err != nil {
		return 0, err
	}
	if out == nil {
		out = io.Discard
	}
	if _, err := io.CopyN(out, c.r, int64(n)); err != nil {
		return 0, fmt.Errorf("read output: %w", err)
	}

	// The server separates output from STATUS with a blank line.
	line, err = readLine(c.r)
	if err != nil {
		return 0, fmt.Errorf("read status: %w", err)
	}
	if line == "" {
		if line, err = readLine(c.r); err != nil {
			return 0, fmt.Errorf("read status: %w", err)
		}
	}
	return parseStatus(line)
}

// Close sends QUIT and closes the connection. It is safe to call more than
// once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	_, _ = io.WriteString(c.conn, quitVerb+"\n")
	return c.conn.Close()
}

package remote

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Protocol limits.
const (
	// MaxLineLen bounds a protocol line, excluding the newline.
	MaxLineLen = 256

	// MaxPayload bounds a command payload and its captured output.
	MaxPayload = 1 << 20
)

// Protocol keywords.
const (
	helloVerb     = "HELLO"
	cmdVerb       = "CMD"
	outVerb       = "OUT"
	statusVerb    = "STATUS"
	quitVerb      = "QUIT"
	okReply       = "OK"
	notAllowedErr = "ERR NOT_ALLOWED"
)

var (
	// ErrNotAllowed is returned by Dial when the server rejects the client
	// address.
	ErrNotAllowed = errors.New("remote: address not allowed")

	// ErrProtocol reports malformed protocol input.
	ErrProtocol = errors.New("remote: protocol error")

	// ErrClosed is returned when using a closed Client.
	ErrClosed = errors.New("remote: connection closed")
)

// Hello is the identity a client announces when connecting.
type Hello struct {
	User string
	PID  int
	TTY  string
	IP   string
}

// String renders the HELLO line without its newline.
func (h Hello) String() string {
	return fmt.Sprintf("%s user=%s pid=%d tty=%s ip=%s",
		helloVerb, field(h.User), h.PID, field(h.TTY), field(h.IP))
}

// ParseHello parses a HELLO line. Unknown attributes are ignored.
func ParseHello(line string) (Hello, error) {
	rest, ok := strings.CutPrefix(line, helloVerb+" ")
	if !ok {
		return Hello{}, fmt.Errorf("%w: expected HELLO, got %q", ErrProtocol, truncateForLog(line))
	}

	var h Hello
	for _, attr := range strings.Fields(rest) {
		key, value, ok := strings.Cut(attr, "=")
		if !ok {
			continue
		}
		switch key {
		case "user":
			h.User = value
		case "pid":
			h.PID, _ = strconv.Atoi(value)
		case "tty":
			h.TTY = value
		case "ip":
			h.IP = value
		}
	}
	return h, nil
}

// field keeps a HELLO attribute a single token.
func field(s string) string {
	if s == "" {
		return "n/a"
	}
	return strings.Join(strings.Fields(s), "_")
}

// readLine reads one newline-terminated line, without the newline or a
// trailing carriage return. Lines longer than MaxLineLen are a protocol
// error.
func readLine(r *bufio.Reader) (string, error) {
	var b []byte
	for {
		chunk, err := r.ReadSlice('\n')
		b = append(b, chunk...)
		if len(b) > MaxLineLen+1 {
			return "", fmt.Errorf("%w: line exceeds %d bytes", ErrProtocol, MaxLineLen)
		}
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) && len(b) > 0 {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	line := strings.TrimSuffix(string(b), "\n")
	return strings.TrimSuffix(line, "\r"), nil
}

// parseLength parses "<verb> <n>" with 0 <= n <= MaxPayload.
func parseLength(line, verb string) (int, error) {
	rest, ok := strings.CutPrefix(line, verb+" ")
	if !ok {
		return 0, fmt.Errorf("%w: expected %s, got %q", ErrProtocol, verb, truncateForLog(line))
	}
	n, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil || n < 0 || n > MaxPayload {
		return 0, fmt.Errorf("%w: bad %s length %q", ErrProtocol, verb, truncateForLog(rest))
	}
	return n, nil
}

// parseStatus parses "STATUS <code>".
func parseStatus(line string) (int, error) {
	rest, ok := strings.CutPrefix(line, statusVerb+" ")
	if !ok {
		return 0, fmt.Errorf("%w: expected STATUS, got %q", ErrProtocol, truncateForLog(line))
	}
	code, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return 0, fmt.Errorf("%w: bad STATUS %q", ErrProtocol, truncateForLog(rest))
	}
	return code, nil
}

func truncateForLog(s string) string {
	const limit = 64
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

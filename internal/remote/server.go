package remote

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc"

	"github.com/Iron-Ham/slotshell/internal/logging"
	"github.com/Iron-Ham/slotshell/internal/metrics"
)

// handshakeTimeout bounds how long a new connection may take to send HELLO.
const handshakeTimeout = 10 * time.Second

// LineExecutor runs one shell line, writing its output to out, and returns
// the status reported to the client.
type LineExecutor interface {
	ExecuteLine(ctx context.Context, line string, out io.Writer) int
}

// LineExecutorFunc adapts an ordinary function to the LineExecutor
// interface.
type LineExecutorFunc func(ctx context.Context, line string, out io.Writer) int

// ExecuteLine implements LineExecutor.
func (f LineExecutorFunc) ExecuteLine(ctx context.Context, line string, out io.Writer) int {
	return f(ctx, line, out)
}

// Server accepts remote shell connections from allowed addresses.
type Server struct {
	exec    LineExecutor
	allowed atomic.Pointer[map[string]struct{}]
	logger  *logging.Logger
	metrics *metrics.Collector

	// execMu runs commands one at a time; they share the process working
	// directory.
	execMu sync.Mutex

	connMu sync.Mutex
	conns  map[net.Conn]struct{}
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *logging.Logger) ServerOption {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics sets the collector that counts connections.
func WithMetrics(m *metrics.Collector) ServerOption {
	return func(s *Server) {
		s.metrics = m
	}
}

// NewServer creates a Server that runs accepted commands through exec and
// admits only peers listed in allowed.
func NewServer(exec LineExecutor, allowed []string, opts ...ServerOption) *Server {
	s := &Server{
		exec:   exec,
		logger: logging.NopLogger(),
		conns:  make(map[net.Conn]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.SetAllowed(allowed)
	return s
}

// SetAllowed replaces the allow-list. It is safe to call while serving;
// established connections are not re-checked.
func (s *Server) SetAllowed(allowed []string) {
	set := make(map[string]struct{}, len(allowed))
	for _, addr := range allowed {
		if addr = strings.TrimSpace(addr); addr != "" {
			set[addr] = struct{}{}
		}
	}
	s.allowed.Store(&set)
}

// Allowed reports whether ip may connect.
func (s *Server) Allowed(ip string) bool {
	set := s.allowed.Load()
	if set == nil {
		return false
	}
	_, ok := (*set)[ip]
	return ok
}

// Serve accepts connections on ln until ctx is cancelled, then closes the
// listener and open connections and waits for their handlers to return.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	var wg conc.WaitGroup
	defer wg.Wait()

	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
		s.closeConns()
	})
	defer stop()

	s.logger.Info("remote server listening", "addr", ln.Addr().String())
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}

		s.track(conn)
		wg.Go(func() {
			defer s.untrack(conn)
			s.handle(ctx, conn)
		})
	}
}

func (s *Server) track(conn net.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	s.conns[conn] = struct{}{}
	s.metrics.ConnectionOpened()
}

func (s *Server) untrack(conn net.Conn) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if _, ok := s.conns[conn]; ok {
		delete(s.conns, conn)
		s.metrics.ConnectionClosed()
	}
	_ = conn.Close()
}

func (s *Server) closeConns() {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}

// handle serves one connection. Protocol errors end the connection and are
// logged; they never propagate.
func (s *Server) handle(ctx context.Context, conn net.Conn) {
	peer := peerIP(conn.RemoteAddr())
	logger := s.logger.With("peer", peer)
	r := bufio.NewReader(conn)

	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	line, err := readLine(r)
	if err != nil {
		s.metrics.RemoteConnection(metrics.ResultError)
		logger.Warn("remote handshake failed", "error", err)
		return
	}
	hello, err := ParseHello(line)
	if err != nil {
		s.metrics.RemoteConnection(metrics.ResultError)
		logger.Warn("remote handshake failed", "error", err)
		return
	}

	if !s.Allowed(peer) {
		s.metrics.RemoteConnection(metrics.ResultDenied)
		logger.Error("remote connection not allowed", "hello", line)
		_, _ = io.WriteString(conn, notAllowedErr+"\n")
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	s.metrics.RemoteConnection(metrics.ResultAccepted)
	logger = logger.With("remote_user", hello.User, "remote_pid", hello.PID, "remote_tty", hello.TTY)
	logger.Info("remote connection accepted")
	if _, err := io.WriteString(conn, okReply+"\n"); err != nil {
		return
	}

	w := bufio.NewWriter(conn)
	for {
		line, err := readLine(r)
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				logger.Warn("remote connection dropped", "error", err)
			}
			return
		}
		if line == quitVerb {
			logger.Info("remote client disconnected")
			return
		}

		n, err := parseLength(line, cmdVerb)
		if err != nil {
			logger.Error("remote protocol error", "error", err)
			return
		}
		payload := make([]byte, n)
		if _, err := io.ReadFull(r, payload); err != nil {
			logger.Error("remote protocol error", "error", fmt.Errorf("%w: short payload: %v", ErrProtocol, err))
			return
		}

		command := string(payload)
		logger.Info("remote command", "cmd", command)
		out, status := s.run(ctx, command)

		fmt.Fprintf(w, "%s %d\n", outVerb, len(out))
		_, _ = w.Write(out)
		fmt.Fprintf(w, "\n%s %d\n", statusVerb, status)
		if err := w.Flush(); err != nil {
			logger.Warn("remote write failed", "error", err)
			return
		}
	}
}

func (s *Server) run(ctx context.Context, command string) ([]byte, int) {
	s.execMu.Lock()
	defer s.execMu.Unlock()

	var buf bytes.Buffer
	status := s.exec.ExecuteLine(ctx, command, &limitedWriter{w: &buf, n: MaxPayload})
	return buf.Bytes(), status
}

// limitedWriter discards output beyond n bytes while reporting full writes.
type limitedWriter struct {
	w io.Writer
	n int
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if l.n <= 0 {
		return len(p), nil
	}
	keep := p
	if len(keep) > l.n {
		keep = keep[:l.n]
	}
	n, err := l.w.Write(keep)
	l.n -= n
	if err != nil {
		return n, err
	}
	return len(p), nil
}

func peerIP(addr net.Addr) string {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return a.IP.String()
	case nil:
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Log levels supported by the logger
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

// File names of the two sinks inside the log directory.
const (
	CommandLogName = "slotshell.log"
	ErrorLogName   = "slotshell_error.log"
)

// CommandLogPath returns the path of the main log in logDir.
func CommandLogPath(logDir string) string {
	return filepath.Join(logDir, CommandLogName)
}

// ErrorLogPath returns the path of the error log in logDir.
func ErrorLogPath(logDir string) string {
	return filepath.Join(logDir, ErrorLogName)
}

// sinks holds the writers shared by a logger and all of its children.
type sinks struct {
	mu      sync.Mutex
	closers []io.Closer
}

func (s *sinks) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, c := range s.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}

// Logger provides structured logging with persistent attributes.
// It is safe for concurrent use.
type Logger struct {
	main   *slog.Logger
	errors *slog.Logger // nil when writing to stderr only
	sinks  *sinks
	attrs  []slog.Attr
}

// Option configures a Logger.
type Option func(*options)

type options struct {
	rotation RotationConfig
}

// WithRotation sets the rotation policy for both log files.
func WithRotation(cfg RotationConfig) Option {
	return func(o *options) {
		o.rotation = cfg
	}
}

// NewLogger creates a Logger that writes JSON events to the command and
// error logs in logDir. If logDir is empty, events go to stderr and there
// is no separate error sink.
func NewLogger(logDir string, level string, opts ...Option) (*Logger, error) {
	o := options{rotation: DefaultRotationConfig()}
	for _, opt := range opts {
		opt(&o)
	}

	handlerOpts := &slog.HandlerOptions{Level: parseLevel(level)}

	if logDir == "" {
		return &Logger{
			main:  slog.New(slog.NewJSONHandler(os.Stderr, handlerOpts)),
			sinks: &sinks{},
		}, nil
	}

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	mainWriter, err := NewRotatingWriter(CommandLogPath(logDir), o.rotation)
	if err != nil {
		return nil, err
	}
	errWriter, err := NewRotatingWriter(ErrorLogPath(logDir), o.rotation)
	if err != nil {
		_ = mainWriter.Close()
		return nil, err
	}

	return &Logger{
		main:   slog.New(slog.NewJSONHandler(mainWriter, handlerOpts)),
		errors: slog.New(slog.NewJSONHandler(errWriter, &slog.HandlerOptions{Level: slog.LevelWarn})),
		sinks:  &sinks{closers: []io.Closer{mainWriter, errWriter}},
	}, nil
}

// parseLevel converts a string log level to slog.Level.
// Defaults to INFO if the level string is not recognized.
func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithIdentity returns a child Logger that stamps every event with the
// acting process and its user, terminal, and originating address.
func (l *Logger) WithIdentity(pid int, user, tty, ip string) *Logger {
	return l.With("pid", pid, "user", user, "tty", tty, "ip", ip)
}

// With returns a new Logger with arbitrary key-value attributes.
// Keys and values are provided as alternating arguments.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}

	newAttrs := make([]slog.Attr, 0, len(l.attrs)+len(args)/2)
	newAttrs = append(newAttrs, l.attrs...)
	for i := 0; i < len(args)-1; i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		newAttrs = append(newAttrs, slog.Any(key, args[i+1]))
	}

	return &Logger{
		main:   l.main,
		errors: l.errors,
		sinks:  l.sinks,
		attrs:  newAttrs,
	}
}

// Debug logs a message at DEBUG level with optional key-value pairs.
func (l *Logger) Debug(msg string, args ...any) {
	l.log(slog.LevelDebug, msg, args...)
}

// Info logs a message at INFO level with optional key-value pairs.
func (l *Logger) Info(msg string, args ...any) {
	l.log(slog.LevelInfo, msg, args...)
}

// Warn logs a message at WARN level with optional key-value pairs.
func (l *Logger) Warn(msg string, args ...any) {
	l.log(slog.LevelWarn, msg, args...)
}

// Error logs a message at ERROR level with optional key-value pairs.
func (l *Logger) Error(msg string, args ...any) {
	l.log(slog.LevelError, msg, args...)
}

// log combines persistent attributes with per-call arguments and fans the
// event out to the sinks that accept its level.
func (l *Logger) log(level slog.Level, msg string, args ...any) {
	allArgs := make([]any, 0, len(l.attrs)*2+len(args))
	for _, attr := range l.attrs {
		allArgs = append(allArgs, attr.Key, attr.Value.Any())
	}
	allArgs = append(allArgs, args...)

	ctx := context.Background()
	l.main.Log(ctx, level, msg, allArgs...)
	if l.errors != nil && level >= slog.LevelWarn {
		l.errors.Log(ctx, level, msg, allArgs...)
	}
}

// Close flushes and closes the log files. Loggers writing to stderr have
// nothing to close.
func (l *Logger) Close() error {
	if l.sinks == nil {
		return nil
	}
	return l.sinks.close()
}

// NopLogger returns a Logger that discards all log output.
func NopLogger() *Logger {
	return &Logger{
		main:  slog.New(slog.NewJSONHandler(io.Discard, nil)),
		sinks: &sinks{},
	}
}

// ValidLevels returns the list of valid log level strings.
func ValidLevels() []string {
	return []string{LevelDebug, LevelInfo, LevelWarn, LevelError}
}

package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/Iron-Ham/slotshell/internal/config"
	"github.com/Iron-Ham/slotshell/internal/logging"
	"github.com/Iron-Ham/slotshell/internal/mailbox"
	"github.com/Iron-Ham/slotshell/internal/remote"
	"github.com/Iron-Ham/slotshell/internal/session"
	"github.com/spf13/viper"
)

// StatusSkipped is the status ExecuteLine reports for a command that was
// not run because its resource was held by another session.
const StatusSkipped = -1

// Shell is an interactive slotshell session.
type Shell struct {
	cfg     *config.Config
	v       *viper.Viper
	runner  *session.Runner
	mailbox *mailbox.Mailbox
	logger  *logging.Logger
	styles  Styles
	pager   Pager

	in     io.Reader
	out    io.Writer
	errOut io.Writer

	mu     sync.Mutex
	remote *remote.Client
}

// Option configures a Shell.
type Option func(*Shell)

// WithLogger sets the logger for commands and errors.
func WithLogger(l *logging.Logger) Option {
	return func(s *Shell) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithViper sets the viper instance setconf writes through. Without one,
// setconf reports that the configuration is read-only.
func WithViper(v *viper.Viper) Option {
	return func(s *Shell) {
		s.v = v
	}
}

// WithIO sets the streams the shell reads lines from and writes to.
func WithIO(in io.Reader, out, errOut io.Writer) Option {
	return func(s *Shell) {
		s.in = in
		s.out = out
		s.errOut = errOut
	}
}

// WithPager forces the pager used by logs and errors. By default a
// terminal pager is used when the shell runs on a terminal.
func WithPager(p Pager) Option {
	return func(s *Shell) {
		s.pager = p
	}
}

// WithStyles overrides the default palette.
func WithStyles(st Styles) Option {
	return func(s *Shell) {
		s.styles = st
	}
}

// New creates a Shell running commands through runner and reading notices
// for the runner's identity from mb.
func New(cfg *config.Config, runner *session.Runner, mb *mailbox.Mailbox, opts ...Option) *Shell {
	s := &Shell{
		cfg:     cfg,
		runner:  runner,
		mailbox: mb,
		logger:  logging.NopLogger(),
		styles:  DefaultStyles(),
		in:      os.Stdin,
		out:     os.Stdout,
		errOut:  os.Stderr,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run reads and executes lines until exit, end of input, or ctx is done.
// Any remote connection is closed on return.
func (s *Shell) Run(ctx context.Context) error {
	lines := newLineReader(s.in)
	defer lines.close()
	defer s.disconnect()

	for {
		s.deliverNotices(ctx)
		s.prompt()

		line, err := lines.next(ctx)
		if err != nil {
			fmt.Fprintln(s.out)
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read input: %w", err)
		}

		if _, exit := s.dispatch(ctx, line, s.out, s.errOut); exit {
			return nil
		}
	}
}

// ExecuteLine runs one line through the shell's dispatcher, writing all
// output to out. It returns the command's exit code, StatusSkipped when the
// command's resource was busy, 0 for a builtin that succeeded and 1 for one
// that failed. exit is accepted and does nothing.
func (s *Shell) ExecuteLine(ctx context.Context, line string, out io.Writer) int {
	status, _ := s.dispatch(ctx, line, out, out)
	return status
}

func (s *Shell) prompt() {
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "?"
	}
	fmt.Fprintf(s.out, "[%s] %s\n> ", s.cfg.Shell.ProgramName, cwd)
}

// deliverNotices prints and consumes the notices addressed to this session.
func (s *Shell) deliverNotices(ctx context.Context) {
	notices, err := s.mailbox.Drain(ctx, s.runner.Identity().PID)
	if err != nil {
		s.logger.Warn("failed to read notices", "error", err)
		return
	}
	for _, n := range notices {
		fmt.Fprintln(s.out, s.styles.Notice.Render(mailbox.Format(n)))
	}
}

// lineReader reads lines only on request so nothing consumes input while a
// command owns the terminal.
type lineReader struct {
	req  chan struct{}
	resp chan lineResult
	busy bool
}

type lineResult struct {
	line string
	err  error
}

func newLineReader(r io.Reader) *lineReader {
	lr := &lineReader{
		req:  make(chan struct{}, 1),
		resp: make(chan lineResult, 1),
	}
	go lr.loop(bufio.NewScanner(r))
	return lr
}

func (lr *lineReader) loop(sc *bufio.Scanner) {
	for range lr.req {
		if sc.Scan() {
			lr.resp <- lineResult{line: strings.TrimRight(sc.Text(), "\r")}
			continue
		}
		err := sc.Err()
		if err == nil {
			err = io.EOF
		}
		lr.resp <- lineResult{err: err}
	}
}

// next returns the next line. A request abandoned by ctx stays pending and
// its line is returned by the following call.
func (lr *lineReader) next(ctx context.Context) (string, error) {
	if !lr.busy {
		lr.req <- struct{}{}
		lr.busy = true
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-lr.resp:
		lr.busy = false
		return res.line, res.err
	}
}

func (lr *lineReader) close() {
	close(lr.req)
}

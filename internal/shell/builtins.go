package shell

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Iron-Ham/slotshell/internal/config"
	"github.com/Iron-Ham/slotshell/internal/logging"
	"github.com/Iron-Ham/slotshell/internal/mailbox"
	"github.com/Iron-Ham/slotshell/internal/remote"
	"github.com/Iron-Ham/slotshell/internal/session"
)

// dialTimeout bounds connect's TCP dial and handshake.
const dialTimeout = 10 * time.Second

const helpText = `Builtins:
  help                 show this help
  exit                 leave the shell
  logs                 page through the command log
  errors               page through the error log
  showconf             print the active configuration
  setconf key=value    change a configuration value and save it
  cd [dir]             change directory (home when omitted)
  notices              show pending notices
  owner <file>         show who holds the lock on file
  connect <host[:port]> send commands to a remote slotshell server
  disconnect           return to local execution

Any other line runs under the configured shell. When a command names an
existing file, the file is locked for the duration and the command is
skipped if another session holds it.
`

type builtin func(s *Shell, ctx context.Context, arg string, out, errOut io.Writer) int

var builtins = map[string]builtin{
	"help":       (*Shell).help,
	"logs":       (*Shell).commandLog,
	"errors":     (*Shell).errorLog,
	"showconf":   (*Shell).showConf,
	"setconf":    (*Shell).setConf,
	"cd":         (*Shell).cd,
	"notices":    (*Shell).notices,
	"owner":      (*Shell).owner,
	"connect":    (*Shell).connect,
	"disconnect": (*Shell).disconnectCmd,
}

// dispatch executes one line. exit reports whether the user asked to leave.
func (s *Shell) dispatch(ctx context.Context, line string, out, errOut io.Writer) (status int, exit bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return 0, false
	}
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	if name == "exit" && arg == "" {
		return 0, true
	}
	if fn, ok := builtins[name]; ok {
		return fn(s, ctx, arg, out, errOut), false
	}
	return s.external(ctx, line, out, errOut), false
}

// external runs line on the connected server, or locally through the
// runner.
func (s *Shell) external(ctx context.Context, line string, out, errOut io.Writer) int {
	if c := s.client(); c != nil {
		code, err := c.Exec(line, out)
		if err != nil {
			s.logger.Error("remote command failed", "addr", c.Addr(), "cmd", line, "error", err)
			fmt.Fprintln(errOut, s.styles.Error.Render(fmt.Sprintf("remote session lost: %v", err)))
			s.disconnect()
			return 1
		}
		s.logger.Info("remote command finished", "addr", c.Addr(), "cmd", line, "exit_code", code)
		return code
	}

	outcome, err := s.runner.Run(ctx, line, out, errOut)
	if err != nil {
		fmt.Fprintln(errOut, s.styles.Error.Render(err.Error()))
		if outcome.ExitCode != 0 {
			return outcome.ExitCode
		}
		return 1
	}
	if outcome.Status == session.Skipped {
		fmt.Fprintln(errOut, s.styles.Warning.Render(
			fmt.Sprintf("skipped: %s is in use by pid %d", outcome.Resource, outcome.Owner.PID)))
		return StatusSkipped
	}
	return outcome.ExitCode
}

func (s *Shell) help(_ context.Context, _ string, out, _ io.Writer) int {
	fmt.Fprint(out, helpText)
	return 0
}

func (s *Shell) commandLog(_ context.Context, _ string, out, errOut io.Writer) int {
	return s.showLog("command log", logging.CommandLogPath(s.cfg.Paths.LogDir), out, errOut)
}

func (s *Shell) errorLog(_ context.Context, _ string, out, errOut io.Writer) int {
	return s.showLog("error log", logging.ErrorLogPath(s.cfg.Paths.LogDir), out, errOut)
}

func (s *Shell) showLog(title, path string, out, errOut io.Writer) int {
	entries, err := logging.ReadEntries(path)
	if err != nil {
		fmt.Fprintln(errOut, s.styles.Error.Render(err.Error()))
		return 1
	}
	if len(entries) == 0 {
		fmt.Fprintf(out, "%s is empty (%s)\n", title, path)
		return 0
	}

	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = logging.FormatEntry(e)
	}
	if err := s.pagerFor(out).Page(title, lines); err != nil {
		fmt.Fprintln(errOut, s.styles.Error.Render(err.Error()))
		return 1
	}
	return 0
}

// pagerFor picks the pager for output going to out.
func (s *Shell) pagerFor(out io.Writer) Pager {
	if s.pager != nil {
		return s.pager
	}
	if out == s.out && isTerminal(s.in, out) {
		return TerminalPager{In: s.in, Out: out, Styles: s.styles}
	}
	return PlainPager{Out: out}
}

func (s *Shell) showConf(_ context.Context, _ string, out, errOut io.Writer) int {
	data, err := s.cfg.YAML()
	if err != nil {
		fmt.Fprintln(errOut, s.styles.Error.Render(err.Error()))
		return 1
	}
	if s.v != nil && s.v.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "# %s\n", s.v.ConfigFileUsed())
	}
	_, _ = out.Write(data)
	return 0
}

// setConf handles "setconf key=value". The value is everything after the
// last '='.
func (s *Shell) setConf(_ context.Context, arg string, out, errOut io.Writer) int {
	i := strings.LastIndex(arg, "=")
	if i < 0 {
		fmt.Fprintln(errOut, "usage: setconf key=value")
		return 1
	}
	key, value := strings.TrimSpace(arg[:i]), strings.TrimSpace(arg[i+1:])
	if s.v == nil {
		fmt.Fprintln(errOut, "configuration is read-only in this session")
		return 1
	}

	canonical, file, err := config.Set(s.v, key, value)
	if err != nil {
		s.logger.Error("setconf failed", "key", key, "value", value, "error", err)
		fmt.Fprintln(errOut, s.styles.Error.Render(err.Error()))
		return 1
	}
	cfg, err := config.LoadFrom(s.v)
	if err != nil {
		fmt.Fprintln(errOut, s.styles.Error.Render(err.Error()))
		return 1
	}
	// Directories stay as this session resolved them at startup.
	cfg.Paths = s.cfg.Paths
	s.cfg = cfg

	s.logger.Info("setconf", "key", canonical, "value", value, "file", file)
	fmt.Fprintf(out, "%s = %s (saved to %s)\n", canonical, value, file)
	return 0
}

func (s *Shell) cd(_ context.Context, arg string, _, errOut io.Writer) int {
	dir := arg
	if dir == "" || dir == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(errOut, s.styles.Error.Render(err.Error()))
			return 1
		}
		dir = home
	}
	if err := os.Chdir(dir); err != nil {
		s.logger.Error("cd failed", "dir", dir, "error", err)
		fmt.Fprintln(errOut, s.styles.Error.Render(fmt.Sprintf("cd %s: %v", dir, err)))
		return 1
	}
	s.logger.Info("cd", "dir", dir)
	return 0
}

func (s *Shell) notices(ctx context.Context, _ string, out, errOut io.Writer) int {
	notices, err := s.mailbox.Drain(ctx, s.runner.Identity().PID)
	if err != nil {
		fmt.Fprintln(errOut, s.styles.Error.Render(err.Error()))
		return 1
	}
	if len(notices) == 0 {
		fmt.Fprintln(out, s.styles.Muted.Render("no notices"))
		return 0
	}
	for _, n := range notices {
		fmt.Fprintln(out, s.styles.Notice.Render(mailbox.Format(n)))
	}
	return 0
}

func (s *Shell) owner(_ context.Context, arg string, out, errOut io.Writer) int {
	if arg == "" {
		fmt.Fprintln(errOut, "usage: owner <file>")
		return 1
	}
	desc, found, err := s.runner.Owner(arg)
	switch {
	case err != nil:
		fmt.Fprintln(errOut, s.styles.Error.Render(err.Error()))
		return 1
	case !found:
		fmt.Fprintf(out, "free (no lock): %s\n", arg)
	case desc.IsZero():
		fmt.Fprintf(out, "lock present but empty: %s\n", arg)
	default:
		fmt.Fprintf(out, "owner of '%s':\n%s\n", arg, desc)
	}
	return 0
}

func (s *Shell) connect(ctx context.Context, arg string, out, errOut io.Writer) int {
	if arg == "" {
		fmt.Fprintln(errOut, "usage: connect <host[:port]>")
		return 1
	}
	if c := s.client(); c != nil {
		fmt.Fprintf(errOut, "already connected to %s; disconnect first\n", c.Addr())
		return 1
	}

	addr := arg
	if _, _, err := net.SplitHostPort(arg); err != nil {
		addr = net.JoinHostPort(arg, strconv.Itoa(s.cfg.Remote.Port))
	}

	id := s.runner.Identity()
	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	c, err := remote.Dial(dialCtx, addr, remote.Hello{User: id.User, PID: id.PID, TTY: id.TTY, IP: id.IP})
	if err != nil {
		s.logger.Error("remote connect failed", "addr", addr, "error", err)
		fmt.Fprintln(errOut, s.styles.Error.Render(fmt.Sprintf("connection failed: %v", err)))
		return 1
	}

	s.mu.Lock()
	s.remote = c
	s.mu.Unlock()
	s.logger.Info("remote connected", "addr", addr)
	fmt.Fprintf(out, "connected to %s\n", addr)
	return 0
}

func (s *Shell) disconnectCmd(_ context.Context, _ string, out, errOut io.Writer) int {
	c := s.client()
	if c == nil {
		fmt.Fprintln(errOut, "no remote session")
		return 1
	}
	s.disconnect()
	fmt.Fprintf(out, "disconnected from %s\n", c.Addr())
	return 0
}

func (s *Shell) client() *remote.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remote
}

// disconnect closes the remote session, if any.
func (s *Shell) disconnect() {
	s.mu.Lock()
	c := s.remote
	s.remote = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		s.logger.Warn("remote close failed", "addr", c.Addr(), "error", err)
	}
	s.logger.Info("remote disconnected", "addr", c.Addr())
}

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"syscall"
	"time"

	"github.com/Iron-Ham/slotshell/internal/logging"
	"github.com/charmbracelet/lipgloss"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "View the command and error logs",
	Long: `View and filter the log shared by all sessions.

Every session on the host writes to the same log directory, so this shows
what all of them did. Use --errors for the error log only.

Examples:
  # Show the last 50 events
  slotshell logs

  # Show everything
  slotshell logs -n 0

  # Follow the log in real-time
  slotshell logs -f

  # Only warnings and errors from the last hour
  slotshell logs --level warn --since 1h

  # Search for specific patterns
  slotshell logs --grep "conflict|failed"`,
	Args: cobra.NoArgs,
	RunE: runLogs,
}

var (
	logsErrors bool
	logsTail   int
	logsFollow bool
	logsLevel  string
	logsSince  string
	logsGrep   string
)

func init() {
	rootCmd.AddCommand(logsCmd)

	logsCmd.Flags().BoolVar(&logsErrors, "errors", false, "Show the error log instead of the command log")
	logsCmd.Flags().IntVarP(&logsTail, "tail", "n", 50, "Number of entries to show (0 for all)")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Follow log output (like tail -f)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Filter by minimum level (debug/info/warn/error)")
	logsCmd.Flags().StringVar(&logsSince, "since", "", "Show logs since duration ago (e.g., 1h, 30m)")
	logsCmd.Flags().StringVar(&logsGrep, "grep", "", "Filter logs matching pattern (regex)")
}

var levelStyles = map[string]lipgloss.Style{
	logging.LevelDebug: lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280")),
	logging.LevelInfo:  lipgloss.NewStyle().Foreground(lipgloss.Color("#60A5FA")),
	logging.LevelWarn:  lipgloss.NewStyle().Foreground(lipgloss.Color("#F59E0B")),
	logging.LevelError: lipgloss.NewStyle().Foreground(lipgloss.Color("#F87171")),
}

func isTerminalWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// entryFilter selects log entries for display.
type entryFilter struct {
	minLevel int
	since    time.Time
	grep     *regexp.Regexp
}

// newEntryFilter builds a filter from the command-line flag values.
func newEntryFilter(level, since, grep string) (entryFilter, error) {
	f := entryFilter{minLevel: -1}
	if level != "" {
		f.minLevel = levelPriority(level)
		if f.minLevel < 0 {
			return f, fmt.Errorf("invalid level %q (valid: %s)", level, strings.Join(logging.ValidLevels(), ", "))
		}
	}
	if since != "" {
		d, err := time.ParseDuration(since)
		if err != nil {
			return f, fmt.Errorf("invalid duration format: %w", err)
		}
		f.since = time.Now().Add(-d)
	}
	if grep != "" {
		re, err := regexp.Compile(grep)
		if err != nil {
			return f, fmt.Errorf("invalid grep pattern: %w", err)
		}
		f.grep = re
	}
	return f, nil
}

// levelPriority ranks a level for filtering; -1 for an unknown level.
func levelPriority(level string) int {
	return slices.Index(logging.ValidLevels(), strings.ToUpper(level))
}

func (f entryFilter) match(e logging.Entry) bool {
	if f.minLevel >= 0 && levelPriority(e.Level) < f.minLevel {
		return false
	}
	if !f.since.IsZero() && e.Time.Before(f.since) {
		return false
	}
	if f.grep != nil {
		return f.grep.MatchString(logging.FormatEntry(e))
	}
	return true
}

// renderEntry formats e, colouring the level when out is a terminal.
func renderEntry(e logging.Entry, color bool) string {
	line := logging.FormatEntry(e)
	if !color {
		return line
	}
	style, ok := levelStyles[strings.ToUpper(e.Level)]
	if !ok || e.Level == "" {
		return line
	}
	return strings.Replace(line, "] "+e.Level+" ", "] "+style.Render(e.Level)+" ", 1)
}

func runLogs(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	filter, err := newEntryFilter(logsLevel, logsSince, logsGrep)
	if err != nil {
		return err
	}

	logPath := logging.CommandLogPath(cfg.Paths.LogDir)
	if logsErrors {
		logPath = logging.ErrorLogPath(cfg.Paths.LogDir)
	}
	out := cmd.OutOrStdout()
	color := isTerminalWriter(out)

	if logsFollow {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		fmt.Fprintf(out, "Following %s... (Ctrl+C to stop)\n\n", logPath)
		return followLogs(ctx, logPath, out, filter, color)
	}
	return displayLogs(logPath, out, logsTail, filter, color)
}

// displayLogs prints the last tail entries of the log that pass filter.
func displayLogs(logPath string, out io.Writer, tail int, filter entryFilter, color bool) error {
	entries, err := logging.ReadEntries(logPath)
	if err != nil {
		return err
	}

	var lines []string
	for _, e := range entries {
		if filter.match(e) {
			lines = append(lines, renderEntry(e, color))
		}
	}
	if tail > 0 && len(lines) > tail {
		lines = lines[len(lines)-tail:]
	}

	for _, line := range lines {
		fmt.Fprintln(out, line)
	}
	if len(lines) == 0 {
		fmt.Fprintf(out, "No matching log entries found in %s.\n", logPath)
	}
	return nil
}

// followLogs prints entries appended to the log until ctx is done. The log
// directory is watched rather than the file so that rotation, which renames
// the file away and creates a new one, is picked up.
func followLogs(ctx context.Context, logPath string, out io.Writer, filter entryFilter, color bool) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create log watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	if err := watcher.Add(filepath.Dir(logPath)); err != nil {
		return fmt.Errorf("failed to watch log directory: %w", err)
	}

	t := &logTail{path: logPath}
	defer t.close()
	// Start at the end: only new entries are followed.
	if err := t.open(io.SeekEnd); err != nil {
		return err
	}

	emit := func(line string) {
		e, err := logging.ParseEntry(line)
		if err != nil {
			fmt.Fprintln(out, line)
			return
		}
		if filter.match(e) {
			fmt.Fprintln(out, renderEntry(e, color))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("log watcher failed: %w", err)
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(logPath) {
				continue
			}
			if ev.Has(fsnotify.Create) {
				// Rotated: drain the old file, then read the new one from the top.
				if err := t.drain(emit); err != nil {
					return err
				}
				t.close()
				if err := t.open(io.SeekStart); err != nil {
					return err
				}
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				if err := t.drain(emit); err != nil {
					return err
				}
			}
		}
	}
}

// logTail reads complete lines appended to a file.
type logTail struct {
	path    string
	file    *os.File
	reader  *bufio.Reader
	partial string
}

func (t *logTail) open(whence int) error {
	f, err := os.Open(t.path)
	if errors.Is(err, os.ErrNotExist) {
		// Nothing written yet; the Create event will open it.
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	if _, err := f.Seek(0, whence); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to seek log file: %w", err)
	}
	t.file = f
	t.reader = bufio.NewReader(f)
	t.partial = ""
	return nil
}

// drain hands every complete line available to emit. A trailing line
// without its newline is kept until the rest of it arrives.
func (t *logTail) drain(emit func(string)) error {
	if t.file == nil {
		return nil
	}
	for {
		chunk, err := t.reader.ReadString('\n')
		if err == io.EOF {
			t.partial += chunk
			return nil
		}
		if err != nil {
			return fmt.Errorf("error reading log file: %w", err)
		}
		line := strings.TrimSpace(t.partial + chunk)
		t.partial = ""
		if line != "" {
			emit(line)
		}
	}
}

func (t *logTail) close() {
	if t.file != nil {
		_ = t.file.Close()
		t.file = nil
	}
}

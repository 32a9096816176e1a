package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/Iron-Ham/slotshell/internal/admission"
	"github.com/Iron-Ham/slotshell/internal/config"
	"github.com/Iron-Ham/slotshell/internal/coord"
	"github.com/Iron-Ham/slotshell/internal/filelock"
	"github.com/Iron-Ham/slotshell/internal/logging"
	"github.com/Iron-Ham/slotshell/internal/mailbox"
	"github.com/Iron-Ham/slotshell/internal/metrics"
	"github.com/Iron-Ham/slotshell/internal/session"
	"github.com/spf13/viper"
)

// sessionPIDEnv is exported to commands run from a session so that
// `slotshell notices` knows whose mailbox to read.
const sessionPIDEnv = "SLOTSHELL_SESSION_PID"

// app bundles the coordination components a command works with.
type app struct {
	cfg       *config.Config
	identity  session.Identity
	logger    *logging.Logger
	metrics   *metrics.Collector
	store     *coord.Store
	arbiter   *filelock.Arbiter
	mailbox   *mailbox.Mailbox
	admission *admission.Controller
	runner    *session.Runner
}

// newApp loads and validates the configuration and opens the shared state
// it names. stdin is handed to the commands the runner executes.
func newApp(stdin io.Reader) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	id := session.Current()
	logger, err := logging.NewLogger(cfg.Paths.LogDir, cfg.Logging.Level,
		logging.WithRotation(logging.RotationConfig{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
		}))
	if err != nil {
		return nil, fmt.Errorf("failed to open logs: %w", err)
	}
	logger = logger.WithIdentity(id.PID, id.User, id.TTY, id.IP)

	a := &app{
		cfg:      cfg,
		identity: id,
		logger:   logger,
	}
	// Counters are only kept where something exports them.
	if cfg.Remote.MetricsAddr != "" {
		a.metrics = metrics.NewCollector()
	}

	a.store, err = coord.Open(cfg.Paths.StateDir)
	if err != nil {
		logger.Error("coordination state unavailable", "state_dir", cfg.Paths.StateDir, "error", err)
		_ = logger.Close()
		return nil, err
	}
	a.arbiter, err = filelock.New(cfg.Paths.LockDir,
		filelock.WithLogger(logger),
		filelock.WithMetrics(a.metrics))
	if err != nil {
		logger.Error("lock directory unavailable", "lock_dir", cfg.Paths.LockDir, "error", err)
		_ = logger.Close()
		return nil, err
	}
	a.mailbox = mailbox.New(a.store,
		mailbox.WithLogger(logger),
		mailbox.WithMetrics(a.metrics))
	a.admission = admission.New(a.store, cfg.Shell.MaxInstances,
		admission.WithLogger(logger),
		admission.WithMetrics(a.metrics))
	a.runner = session.NewRunner(id, a.arbiter, a.mailbox,
		session.WithLogger(logger),
		session.WithExecutor(session.ShellExecutor{Shell: cfg.Shell.Shell, Stdin: stdin}))
	return a, nil
}

// loadConfig loads and validates the configuration with its paths made
// absolute.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	base, err := configBase()
	if err != nil {
		return nil, err
	}
	cfg.Paths = cfg.Paths.Resolve(base)
	return cfg, nil
}

func (a *app) close() {
	_ = a.logger.Close()
}

// configBase is the directory relative paths in the configuration are
// resolved against: the config file's directory, or the working directory
// when no file was loaded.
func configBase() (string, error) {
	if used := viper.ConfigFileUsed(); used != "" {
		if _, err := os.Stat(used); err == nil {
			abs, err := filepath.Abs(used)
			if err != nil {
				return "", fmt.Errorf("failed to resolve config path: %w", err)
			}
			return filepath.Dir(abs), nil
		}
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	return cwd, nil
}

// childStdin returns the input commands should inherit. Only a real file
// is passed through, so commands never consume lines meant for the shell.
func childStdin(in io.Reader) io.Reader {
	if f, ok := in.(*os.File); ok {
		return f
	}
	return nil
}

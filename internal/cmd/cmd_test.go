package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/slotshell/internal/admission"
	"github.com/Iron-Ham/slotshell/internal/config"
	"github.com/Iron-Ham/slotshell/internal/coord"
	"github.com/Iron-Ham/slotshell/internal/filelock"
	"github.com/Iron-Ham/slotshell/internal/logging"
	"github.com/Iron-Ham/slotshell/internal/mailbox"
	"github.com/Iron-Ham/slotshell/internal/remote"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// testEnv is a private set of directories and a config file pointing at
// them, so commands never touch the user's real state.
type testEnv struct {
	dir        string
	configFile string
	stateDir   string
	logDir     string
	lockDir    string
}

func newTestEnv(t *testing.T, maxInstances int) *testEnv {
	t.Helper()
	dir := t.TempDir()
	env := &testEnv{
		dir:        dir,
		configFile: filepath.Join(dir, "config.yaml"),
		stateDir:   filepath.Join(dir, "state"),
		logDir:     filepath.Join(dir, "log"),
		lockDir:    filepath.Join(dir, "lock"),
	}
	content := fmt.Sprintf(`shell:
  max_instances: %d
  shell: /bin/sh
paths:
  state_dir: %s
  log_dir: %s
  lock_dir: %s
remote:
  allowed: [127.0.0.1]
logging:
  level: debug
`, maxInstances, env.stateDir, env.logDir, env.lockDir)
	if err := os.WriteFile(env.configFile, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	// Commands run from a session export its pid; tests start outside one.
	t.Setenv(sessionPIDEnv, "")
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	resetFlags()
	t.Cleanup(viper.Reset)
	return env
}

// file creates a file in the env and returns its absolute path.
func (e *testEnv) file(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(e.dir, name)
	if err := os.WriteFile(path, []byte("data\n"), 0o644); err != nil {
		t.Fatalf("failed to create %s: %v", name, err)
	}
	return path
}

// resetFlags restores flag variables a previous Execute may have set.
func resetFlags() {
	noticesPID = 0
	noticesFollow = false
	noticesTo = mailbox.Broadcast
	logsErrors = false
	logsTail = 50
	logsFollow = false
	logsLevel = ""
	logsSince = ""
	logsGrep = ""
	serverPort = 0
	serverListen = ""
	ipcResetForce = false
}

// execute runs the root command against env with args and returns
// everything it wrote.
func (e *testEnv) execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	viper.Reset()
	resetFlags()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"--config", e.configFile}, args...))
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "slotshell" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "slotshell")
	}

	expectedCmds := []string{"server", "owner", "notices", "sessions", "exec", "config", "ipc", "logs"}
	cmdMap := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}
	for _, expected := range expectedCmds {
		if !cmdMap[expected] {
			t.Errorf("expected subcommand %q not found", expected)
		}
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"exit error", &ExitError{Code: 3}, 3},
		{"wrapped exit error", fmt.Errorf("run: %w", &ExitError{Code: 75}), 75},
		{"session limit", ErrSessionLimit, 1},
		{"other", errors.New("boom"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestShellCommand_RunsAndLeaves(t *testing.T) {
	env := newTestEnv(t, 2)

	output, err := env.execute(t, "echo from-shell\nexit\n")
	if err != nil {
		t.Fatalf("slotshell error = %v\noutput: %s", err, output)
	}
	if !strings.Contains(output, "from-shell") {
		t.Errorf("output missing command output:\n%s", output)
	}
	if !strings.Contains(output, "[slotshell]") {
		t.Errorf("output missing prompt:\n%s", output)
	}

	// The slot is given back on exit.
	store, err := coord.Open(env.stateDir)
	if err != nil {
		t.Fatalf("coord.Open() error = %v", err)
	}
	active, err := admission.New(store, 2).Active(context.Background())
	if err != nil {
		t.Fatalf("Active() error = %v", err)
	}
	if len(active) != 0 {
		t.Errorf("active sessions after exit = %v, want none", active)
	}
}

func TestShellCommand_SessionLimit(t *testing.T) {
	env := newTestEnv(t, 0)

	output, err := env.execute(t, "exit\n")
	if !errors.Is(err, ErrSessionLimit) {
		t.Fatalf("slotshell error = %v, want ErrSessionLimit", err)
	}
	if !strings.Contains(output, "all 0 sessions are in use") {
		t.Errorf("output = %q, want the rejection message", output)
	}
}

func TestExecCommand(t *testing.T) {
	env := newTestEnv(t, 2)

	output, err := env.execute(t, "", "exec", "--", "echo", "hello")
	if err != nil {
		t.Fatalf("exec echo error = %v", err)
	}
	if strings.TrimSpace(output) != "hello" {
		t.Errorf("exec echo output = %q, want %q", output, "hello")
	}

	_, err = env.execute(t, "", "exec", "--", "exit", "3")
	if got := ExitCode(err); got != 3 {
		t.Errorf("exec exit 3: ExitCode = %d, want 3 (err = %v)", got, err)
	}
}

func TestExecCommand_SkippedWhenBusy(t *testing.T) {
	env := newTestEnv(t, 2)
	path := env.file(t, "shared.txt")

	arbiter, err := filelock.New(env.lockDir)
	if err != nil {
		t.Fatalf("filelock.New() error = %v", err)
	}
	h, err := arbiter.Acquire(path, "vi "+path, filelock.Owner{PID: 4242, User: "bob", TTY: "/dev/pts/9", IP: "n/a"})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer func() { _ = h.Release() }()

	output, err := env.execute(t, "", "exec", "--", "cat", path)
	if got := ExitCode(err); got != skippedExitCode {
		t.Fatalf("ExitCode = %d, want %d (err = %v)", got, skippedExitCode, err)
	}
	if !strings.Contains(output, "pid=4242") {
		t.Errorf("output missing owner:\n%s", output)
	}
	if strings.Contains(output, "data") {
		t.Errorf("command ran despite the lock:\n%s", output)
	}
}

func TestOwnerCommand(t *testing.T) {
	env := newTestEnv(t, 2)
	path := env.file(t, "owned.txt")

	output, err := env.execute(t, "", "owner", path)
	if err != nil {
		t.Fatalf("owner error = %v", err)
	}
	if !strings.Contains(output, "free (no lock)") {
		t.Errorf("free output = %q", output)
	}

	arbiter, err := filelock.New(env.lockDir)
	if err != nil {
		t.Fatalf("filelock.New() error = %v", err)
	}
	h, err := arbiter.Acquire(path, "less "+path, filelock.Owner{PID: 4242, User: "carol", TTY: "/dev/pts/4", IP: "10.1.2.3"})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer func() { _ = h.Release() }()

	output, err = env.execute(t, "", "owner", path)
	if err != nil {
		t.Fatalf("owner error = %v", err)
	}
	for _, want := range []string{"owner of", "4242", "carol", "10.1.2.3"} {
		if !strings.Contains(output, want) {
			t.Errorf("owner output missing %q:\n%s", want, output)
		}
	}
}

func TestNoticesCommands(t *testing.T) {
	env := newTestEnv(t, 2)

	output, err := env.execute(t, "", "notices", "send", "--to", "4242", "please", "save")
	if err != nil {
		t.Fatalf("notices send error = %v", err)
	}
	if !strings.Contains(output, "Sent to pid 4242") {
		t.Errorf("send output = %q", output)
	}

	output, err = env.execute(t, "", "notices")
	if err != nil {
		t.Fatalf("notices error = %v", err)
	}
	if !strings.Contains(output, "to pid 4242:") || !strings.Contains(output, "please save") {
		t.Errorf("list output = %q", output)
	}

	output, err = env.execute(t, "", "notices", "--pid", "4242")
	if err != nil {
		t.Fatalf("notices --pid error = %v", err)
	}
	if !strings.Contains(output, "please save") {
		t.Errorf("drain output = %q", output)
	}

	// Drained notices are gone.
	output, err = env.execute(t, "", "notices", "--pid", "4242")
	if err != nil {
		t.Fatalf("notices --pid error = %v", err)
	}
	if !strings.Contains(output, "No notices.") {
		t.Errorf("second drain output = %q", output)
	}

	t.Setenv(sessionPIDEnv, "4242")
	if _, err := env.execute(t, "", "notices", "send", "hello", "everyone"); err != nil {
		t.Fatalf("notices send broadcast error = %v", err)
	}
	output, err = env.execute(t, "", "notices")
	if err != nil {
		t.Fatalf("notices (from session) error = %v", err)
	}
	if !strings.Contains(output, "hello everyone") {
		t.Errorf("session drain output = %q", output)
	}
}

func TestNoticesCommand_FollowNeedsSession(t *testing.T) {
	env := newTestEnv(t, 2)

	if _, err := env.execute(t, "", "notices", "--follow"); err == nil {
		t.Error("notices --follow without a session should fail")
	}
}

func TestSessionsCommand(t *testing.T) {
	env := newTestEnv(t, 2)
	ctx := context.Background()

	store, err := coord.Open(env.stateDir)
	if err != nil {
		t.Fatalf("coord.Open() error = %v", err)
	}
	if res, err := admission.New(store, 2).TryEnter(ctx, os.Getpid()); err != nil || res != admission.Admitted {
		t.Fatalf("TryEnter() = %v, %v", res, err)
	}

	path := env.file(t, "held.txt")
	arbiter, err := filelock.New(env.lockDir)
	if err != nil {
		t.Fatalf("filelock.New() error = %v", err)
	}
	h, err := arbiter.Acquire(path, "vi "+path, filelock.Owner{PID: os.Getpid(), User: "dave"})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	defer func() { _ = h.Release() }()

	output, err := env.execute(t, "", "sessions")
	if err != nil {
		t.Fatalf("sessions error = %v", err)
	}
	for _, want := range []string{
		"Sessions: 1 of 2 slots in use",
		strconv.Itoa(os.Getpid()),
		"Resource locks (1):",
		"dave",
		"held",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("sessions output missing %q:\n%s", want, output)
		}
	}
}

func TestConfigCommands(t *testing.T) {
	env := newTestEnv(t, 2)

	output, err := env.execute(t, "", "config", "show")
	if err != nil {
		t.Fatalf("config show error = %v", err)
	}
	for _, want := range []string{"# Config file: " + env.configFile, "max_instances: 2", "127.0.0.1"} {
		if !strings.Contains(output, want) {
			t.Errorf("config show missing %q:\n%s", want, output)
		}
	}

	output, err = env.execute(t, "", "config", "set", "MAX_INSTANCES", "5")
	if err != nil {
		t.Fatalf("config set error = %v", err)
	}
	if !strings.Contains(output, "Set shell.max_instances = 5") {
		t.Errorf("config set output = %q", output)
	}

	output, err = env.execute(t, "", "config")
	if err != nil {
		t.Fatalf("config error = %v", err)
	}
	if !strings.Contains(output, "max_instances: 5") {
		t.Errorf("saved value not shown:\n%s", output)
	}

	if _, err := env.execute(t, "", "config", "set", "shell.max_instances", "9999"); err == nil {
		t.Error("config set with an out-of-range value should fail")
	}
	if _, err := env.execute(t, "", "config", "set", "no.such.key", "1"); err == nil {
		t.Error("config set with an unknown key should fail")
	}

	output, err = env.execute(t, "", "config", "path")
	if err != nil {
		t.Fatalf("config path error = %v", err)
	}
	if !strings.Contains(output, "Active config: "+env.configFile) {
		t.Errorf("config path output = %q", output)
	}
}

func TestConfigInit(t *testing.T) {
	env := newTestEnv(t, 2)

	output, err := env.execute(t, "", "config", "init")
	if err != nil {
		t.Fatalf("config init error = %v", err)
	}
	if !strings.Contains(output, config.ConfigFile()) {
		t.Errorf("config init output = %q", output)
	}

	// The generated file is a valid configuration.
	v := viper.New()
	config.SetDefaultsOn(v)
	v.SetConfigFile(config.ConfigFile())
	if err := v.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig() error = %v", err)
	}
	cfg, err := config.LoadFrom(v)
	if err != nil {
		t.Fatalf("generated config invalid: %v", err)
	}
	if cfg.Shell.MaxInstances != config.Default().Shell.MaxInstances {
		t.Errorf("MaxInstances = %d, want default", cfg.Shell.MaxInstances)
	}

	if _, err := env.execute(t, "", "config", "init"); err == nil {
		t.Error("second config init should fail")
	}
}

func TestIPCReset(t *testing.T) {
	env := newTestEnv(t, 2)

	if _, err := env.execute(t, "", "notices", "send", "left", "behind"); err != nil {
		t.Fatalf("notices send error = %v", err)
	}
	statePath := filepath.Join(env.stateDir, "state.json")
	if _, err := os.Stat(statePath); err != nil {
		t.Fatalf("state file missing after send: %v", err)
	}

	output, err := env.execute(t, "n\n", "ipc", "reset")
	if err != nil {
		t.Fatalf("ipc reset error = %v", err)
	}
	if !strings.Contains(output, "Reset cancelled.") {
		t.Errorf("declined reset output = %q", output)
	}
	if _, err := os.Stat(statePath); err != nil {
		t.Errorf("declined reset removed state: %v", err)
	}

	if _, err := env.execute(t, "", "ipc", "reset", "--force"); err != nil {
		t.Fatalf("ipc reset --force error = %v", err)
	}
	if _, err := os.Stat(statePath); !os.IsNotExist(err) {
		t.Errorf("state file still present after reset: %v", err)
	}

	output, err = env.execute(t, "", "notices")
	if err != nil {
		t.Fatalf("notices error = %v", err)
	}
	if !strings.Contains(output, "No queued notices.") {
		t.Errorf("notices after reset = %q", output)
	}
}

func writeTestLogs(t *testing.T, logDir string) {
	t.Helper()
	logger, err := logging.NewLogger(logDir, "debug")
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	logger = logger.WithIdentity(101, "erin", "/dev/pts/3", "n/a")
	logger.Debug("debug detail")
	logger.Info("command finished", "cmd", "ls")
	logger.Warn("command exited with non-zero status", "cmd", "false")
	logger.Error("command failed to start", "cmd", "nosuch")
	if err := logger.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
}

func TestLogsCommand(t *testing.T) {
	env := newTestEnv(t, 2)
	writeTestLogs(t, env.logDir)

	tests := []struct {
		name    string
		args    []string
		want    []string
		notWant []string
	}{
		{
			name: "all",
			args: []string{"logs"},
			want: []string{"debug detail", "command finished", "user=erin"},
		},
		{
			name:    "min level",
			args:    []string{"logs", "--level", "warn"},
			want:    []string{"non-zero status", "failed to start"},
			notWant: []string{"command finished", "debug detail"},
		},
		{
			name:    "tail",
			args:    []string{"logs", "-n", "1"},
			want:    []string{"failed to start"},
			notWant: []string{"command finished"},
		},
		{
			name:    "grep",
			args:    []string{"logs", "--grep", "cmd=ls"},
			want:    []string{"command finished"},
			notWant: []string{"failed to start"},
		},
		{
			name:    "error log",
			args:    []string{"logs", "--errors"},
			want:    []string{"failed to start"},
			notWant: []string{"command finished"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output, err := env.execute(t, "", tt.args...)
			if err != nil {
				t.Fatalf("%v error = %v", tt.args, err)
			}
			for _, want := range tt.want {
				if !strings.Contains(output, want) {
					t.Errorf("output missing %q:\n%s", want, output)
				}
			}
			for _, notWant := range tt.notWant {
				if strings.Contains(output, notWant) {
					t.Errorf("output should not contain %q:\n%s", notWant, output)
				}
			}
		})
	}

	if _, err := env.execute(t, "", "logs", "--level", "loud"); err == nil {
		t.Error("logs with an unknown level should fail")
	}
	if _, err := env.execute(t, "", "logs", "--since", "yesterday"); err == nil {
		t.Error("logs with a bad duration should fail")
	}
}

// syncBuffer is a bytes.Buffer safe for one writer and one reader.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestFollowLogs(t *testing.T) {
	logDir := t.TempDir()
	logPath := logging.CommandLogPath(logDir)
	if err := os.WriteFile(logPath, []byte(`{"time":"2026-01-02T03:04:05Z","level":"INFO","msg":"old entry","pid":1}`+"\n"), 0o644); err != nil {
		t.Fatalf("failed to seed log: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	out := &syncBuffer{}
	done := make(chan error, 1)
	go func() {
		done <- followLogs(ctx, logPath, out, entryFilter{minLevel: -1}, false)
	}()

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("failed to open log: %v", err)
	}
	defer func() { _ = f.Close() }()

	// Keep appending until the follower has started watching and sees one.
	deadline := time.Now().Add(5 * time.Second)
	for !strings.Contains(out.String(), "new entry") {
		if time.Now().After(deadline) {
			t.Fatalf("follower never printed the new entry; got:\n%s", out.String())
		}
		if _, err := f.WriteString(`{"time":"2026-01-02T03:04:06Z","level":"WARN","msg":"new entry","pid":2}` + "\n"); err != nil {
			t.Fatalf("failed to append: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("followLogs() error = %v", err)
	}
	if strings.Contains(out.String(), "old entry") {
		t.Errorf("follower replayed existing entries:\n%s", out.String())
	}
}

func TestReloadAllowList(t *testing.T) {
	env := newTestEnv(t, 2)
	viper.Reset()
	config.SetDefaults()
	viper.SetConfigFile(env.configFile)
	if err := viper.ReadInConfig(); err != nil {
		t.Fatalf("ReadInConfig() error = %v", err)
	}

	srv := remote.NewServer(remote.LineExecutorFunc(func(context.Context, string, io.Writer) int { return 0 }), nil)
	reload := reloadAllowList(srv, logging.NopLogger())

	reload(fsnotify.Event{Name: env.configFile, Op: fsnotify.Chmod})
	if srv.Allowed("127.0.0.1") {
		t.Error("a chmod event should not reload the allow-list")
	}

	reload(fsnotify.Event{Name: env.configFile, Op: fsnotify.Write})
	if !srv.Allowed("127.0.0.1") {
		t.Error("127.0.0.1 not allowed after reload")
	}

	// An invalid list is ignored and the previous one stays.
	viper.Set("remote.allowed", []string{"not-an-ip"})
	reload(fsnotify.Event{Name: env.configFile, Op: fsnotify.Write})
	if !srv.Allowed("127.0.0.1") {
		t.Error("invalid config replaced the allow-list")
	}
}

// fillSlots admits pids into the env's pool directly.
func (e *testEnv) fillSlots(t *testing.T, capacity int, pids ...int) {
	t.Helper()
	store, err := coord.Open(e.stateDir)
	if err != nil {
		t.Fatalf("coord.Open() error = %v", err)
	}
	pool := admission.New(store, capacity)
	for _, pid := range pids {
		if res, err := pool.TryEnter(context.Background(), pid); err != nil || res != admission.Admitted {
			t.Fatalf("TryEnter(%d) = %v, %v", pid, res, err)
		}
	}
}

func TestExecCommand_Admission(t *testing.T) {
	tests := []struct {
		name       string
		sessionPID string
		wantErr    error
	}{
		{name: "outside a session the full pool refuses", wantErr: ErrSessionLimit},
		{name: "inside a session the held slot is used", sessionPID: "4242"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, 1)
			t.Setenv(sessionPIDEnv, tt.sessionPID)
			// The parent process is alive, so its slot is not reclaimed.
			env.fillSlots(t, 1, os.Getppid())

			output, err := env.execute(t, "", "exec", "--", "echo", "ran")
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("exec error = %v, want %v\noutput: %s", err, tt.wantErr, output)
			}
			ran := strings.Contains(output, "ran")
			if tt.wantErr != nil {
				if ran {
					t.Errorf("command ran despite the full pool:\n%s", output)
				}
				if !strings.Contains(output, "all 1 sessions are in use") {
					t.Errorf("output = %q, want the rejection message", output)
				}
			} else if !ran {
				t.Errorf("command did not run:\n%s", output)
			}
		})
	}
}

func TestExecCommand_GivesSlotBack(t *testing.T) {
	env := newTestEnv(t, 1)

	if _, err := env.execute(t, "", "exec", "--", "true"); err != nil {
		t.Fatalf("exec error = %v", err)
	}
	store, err := coord.Open(env.stateDir)
	if err != nil {
		t.Fatalf("coord.Open() error = %v", err)
	}
	active, err := admission.New(store, 1).Active(context.Background())
	if err != nil {
		t.Fatalf("Active() error = %v", err)
	}
	if len(active) != 0 {
		t.Errorf("active sessions after exec = %v, want none", active)
	}
}

func TestInfrastructureErrorIsLogged(t *testing.T) {
	tests := []struct {
		name      string
		blockPath func(*testEnv) string
		wantEvent string
		wantKey   string
	}{
		{
			name:      "state directory",
			blockPath: func(e *testEnv) string { return e.stateDir },
			wantEvent: "coordination state unavailable",
			wantKey:   "state_dir",
		},
		{
			name:      "lock directory",
			blockPath: func(e *testEnv) string { return e.lockDir },
			wantEvent: "lock directory unavailable",
			wantKey:   "lock_dir",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, 2)
			// A regular file where the directory should be.
			if err := os.WriteFile(tt.blockPath(env), []byte("not a dir\n"), 0o644); err != nil {
				t.Fatalf("failed to block %s: %v", tt.name, err)
			}

			if _, err := env.execute(t, "", "sessions"); err == nil {
				t.Fatal("sessions should fail when the directory cannot be created")
			}

			data, err := os.ReadFile(logging.ErrorLogPath(env.logDir))
			if err != nil {
				t.Fatalf("failed to read error log: %v", err)
			}
			for _, want := range []string{tt.wantEvent, tt.wantKey} {
				if !strings.Contains(string(data), want) {
					t.Errorf("error log missing %q:\n%s", want, data)
				}
			}
		})
	}
}

func TestNewApp_MetricsOnlyWhenExported(t *testing.T) {
	tests := []struct {
		name        string
		metricsAddr string
		wantMetrics bool
	}{
		{name: "no metrics address", wantMetrics: false},
		{name: "metrics address set", metricsAddr: "127.0.0.1:9105", wantMetrics: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, 2)
			viper.Reset()
			config.SetDefaults()
			viper.SetConfigFile(env.configFile)
			if err := viper.ReadInConfig(); err != nil {
				t.Fatalf("ReadInConfig() error = %v", err)
			}
			if tt.metricsAddr != "" {
				viper.Set("remote.metrics_addr", tt.metricsAddr)
			}

			a, err := newApp(nil)
			if err != nil {
				t.Fatalf("newApp() error = %v", err)
			}
			defer a.close()
			if got := a.metrics != nil; got != tt.wantMetrics {
				t.Errorf("metrics collector built = %v, want %v", got, tt.wantMetrics)
			}
		})
	}
}

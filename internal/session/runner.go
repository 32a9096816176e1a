package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Iron-Ham/slotshell/internal/filelock"
	"github.com/Iron-Ham/slotshell/internal/logging"
	"github.com/Iron-Ham/slotshell/internal/mailbox"
)

// Status says whether a command ran.
type Status int

const (
	// Executed means the command ran; Outcome.ExitCode is meaningful.
	Executed Status = iota
	// Skipped means the target resource was locked by someone else and the
	// command did not run.
	Skipped
)

func (s Status) String() string {
	if s == Skipped {
		return "skipped"
	}
	return "executed"
}

// Outcome is the result of Runner.Run.
type Outcome struct {
	Status   Status
	ExitCode int

	// Resource is the locked target, or "" if the command had none.
	Resource string

	// Owner is the holder's descriptor when Status is Skipped.
	Owner filelock.Descriptor
}

// Runner executes command lines for one session.
type Runner struct {
	identity Identity
	arbiter  *filelock.Arbiter
	mailbox  *mailbox.Mailbox
	executor Executor
	logger   *logging.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithExecutor replaces the default ShellExecutor.
func WithExecutor(e Executor) RunnerOption {
	return func(r *Runner) {
		if e != nil {
			r.executor = e
		}
	}
}

// WithLogger sets the logger for executed commands and conflicts.
func WithLogger(l *logging.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRunner creates a Runner acting as identity.
func NewRunner(identity Identity, arbiter *filelock.Arbiter, mb *mailbox.Mailbox, opts ...RunnerOption) *Runner {
	r := &Runner{
		identity: identity,
		arbiter:  arbiter,
		mailbox:  mb,
		executor: ShellExecutor{},
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Identity returns the identity commands run under.
func (r *Runner) Identity() Identity {
	return r.identity
}

// Run executes command, holding the lock on its target resource for the
// duration. When the resource is held by another session the command is
// skipped: a warning with the owner's descriptor goes to stderr and the owner
// is sent a notice naming this session.
//
// A non-nil error means the lock or the executor failed; the command may not
// have run.
func (r *Runner) Run(ctx context.Context, command string, stdout, stderr io.Writer) (Outcome, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return Outcome{Status: Executed}, nil
	}

	target := TargetOf(command)
	if target != "" {
		h, err := r.arbiter.Acquire(target, command, r.identity.Owner())
		var busy *filelock.BusyError
		if errors.As(err, &busy) {
			r.reportConflict(ctx, command, busy, stderr)
			return Outcome{Status: Skipped, Resource: target, Owner: busy.Owner}, nil
		}
		if err != nil {
			return Outcome{Resource: target}, fmt.Errorf("lock %s: %w", target, err)
		}
		defer func() {
			if err := h.Release(); err != nil {
				r.logger.Error("failed to release resource lock", "resource", target, "error", err)
			}
		}()
	}

	code, err := r.executor.Execute(ctx, command, stdout, stderr)
	if err != nil {
		r.logger.Error("command failed to start", "cmd", command, "error", err)
		return Outcome{Status: Executed, ExitCode: code, Resource: target}, err
	}
	if code != 0 {
		r.logger.Warn("command exited with non-zero status", "cmd", command, "exit_code", code)
	}
	r.logger.Info("command finished", "cmd", command, "exit_code", code, "resource", target)
	return Outcome{Status: Executed, ExitCode: code, Resource: target}, nil
}

// Owner reports who holds resource. found is false when no descriptor
// exists, meaning the resource is free.
func (r *Runner) Owner(resource string) (desc filelock.Descriptor, found bool, err error) {
	return r.arbiter.Inspect(resource)
}

// ConflictMessage is the notice sent to a resource owner when id tried to
// run command against it.
func ConflictMessage(resource string, id Identity, command string) string {
	return fmt.Sprintf("conflict on '%s': contender pid=%d user=%s tty=%s ip=%s cmd=%s",
		filelock.KeyFor(resource), id.PID, id.User, id.TTY, id.IP, command)
}

func (r *Runner) reportConflict(ctx context.Context, command string, busy *filelock.BusyError, stderr io.Writer) {
	if stderr != nil {
		fmt.Fprintf(stderr, "resource in use, owner details:\n%s\n", busy.Owner)
	}

	r.logger.Error("concurrent access",
		"resource", busy.Resource,
		"owner", busy.Owner.String(),
		"contender_pid", r.identity.PID,
		"contender_user", r.identity.User,
		"contender_tty", r.identity.TTY,
		"contender_ip", r.identity.IP,
		"cmd", command,
	)

	if busy.Owner.PID <= 0 {
		return
	}
	err := r.mailbox.Push(ctx, mailbox.Notification{
		To:   busy.Owner.PID,
		From: r.identity.PID,
		Text: ConflictMessage(busy.Resource, r.identity, command),
	})
	if err != nil {
		r.logger.Error("failed to notify resource owner", "owner_pid", busy.Owner.PID, "error", err)
	}
}

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"
)

// Executor runs a command line and reports its exit code.
type Executor interface {
	Execute(ctx context.Context, command string, stdout, stderr io.Writer) (exitCode int, err error)
}

// ExecutorFunc adapts an ordinary function to the Executor interface.
type ExecutorFunc func(ctx context.Context, command string, stdout, stderr io.Writer) (int, error)

// Execute implements Executor.
func (f ExecutorFunc) Execute(ctx context.Context, command string, stdout, stderr io.Writer) (int, error) {
	return f(ctx, command, stdout, stderr)
}

// waitDelay bounds how long a cancelled command's output pipes may stay
// open after the process is killed.
const waitDelay = 2 * time.Second

// DefaultShell is the interpreter ShellExecutor uses when Shell is empty.
const DefaultShell = "/bin/sh"

// ShellExecutor runs command lines through "sh -c".
type ShellExecutor struct {
	// Shell is the interpreter path. Empty means DefaultShell.
	Shell string

	// Stdin is connected to the command. Nil means no input.
	Stdin io.Reader

	// Dir is the working directory. Empty means the current directory.
	Dir string
}

// Execute implements Executor. A command that runs and fails is not an
// error; its exit code is returned instead. A command killed by a signal
// reports 128 plus the signal number.
func (e ShellExecutor) Execute(ctx context.Context, command string, stdout, stderr io.Writer) (int, error) {
	shell := e.Shell
	if shell == "" {
		shell = DefaultShell
	}

	cmd := exec.CommandContext(ctx, shell, "-c", command)
	cmd.Stdin = e.Stdin
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Dir = e.Dir
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			return 128 + int(ws.Signal()), nil
		}
		return exitErr.ExitCode(), nil
	}
	return 127, fmt.Errorf("start %s: %w", shell, err)
}

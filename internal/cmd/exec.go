package cmd

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Iron-Ham/slotshell/internal/session"
	"github.com/spf13/cobra"
)

// skippedExitCode is returned by exec when the command's resource was busy.
const skippedExitCode = 75

var execCmd = &cobra.Command{
	Use:   "exec -- <command> [args...]",
	Short: "Run one command with resource locking",
	Long: `Run a single command the way an interactive session would, then exit
with its status. Outside a session, exec takes a session slot for the
duration of the command and is refused when all slots are in use.

If the command names a file another session holds, it is not run: the
holder is printed and notified, and exec exits with status 75.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExec,
}

func init() {
	rootCmd.AddCommand(execCmd)
}

func runExec(cmd *cobra.Command, args []string) error {
	a, err := newApp(childStdin(cmd.InOrStdin()))
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Inside an interactive session the slot is already held.
	if os.Getenv(sessionPIDEnv) == "" {
		leave, err := a.enterSession(ctx, cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		defer leave()
	}

	outcome, err := a.runner.Run(ctx, strings.Join(args, " "), cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if outcome.Status == session.Skipped {
		return &ExitError{Code: skippedExitCode}
	}
	if outcome.ExitCode != 0 {
		return &ExitError{Code: outcome.ExitCode}
	}
	return nil
}

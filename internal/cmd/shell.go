package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/Iron-Ham/slotshell/internal/admission"
	"github.com/Iron-Ham/slotshell/internal/shell"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// leaveTimeout bounds giving the session slot back on exit.
const leaveTimeout = 5 * time.Second

func runShell(cmd *cobra.Command, _ []string) error {
	in := cmd.InOrStdin()
	a, err := newApp(childStdin(in))
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	leave, err := a.enterSession(ctx, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer leave()

	if err := os.Setenv(sessionPIDEnv, strconv.Itoa(a.identity.PID)); err != nil {
		a.logger.Warn("failed to export session pid", "error", err)
	}
	a.logger.Info("session started", "capacity", a.admission.Capacity())

	sh := shell.New(a.cfg, a.runner, a.mailbox,
		shell.WithLogger(a.logger),
		shell.WithViper(viper.GetViper()),
		shell.WithIO(in, cmd.OutOrStdout(), cmd.ErrOrStderr()))
	err = sh.Run(ctx)

	a.logger.Info("session ended")
	return err
}

// enterSession claims a session slot for this process. A full pool prints
// the rejection to errOut and returns ErrSessionLimit. The returned func
// gives the slot back.
func (a *app) enterSession(ctx context.Context, errOut io.Writer) (leave func(), err error) {
	res, err := a.admission.TryEnter(ctx, a.identity.PID)
	if err != nil {
		return nil, fmt.Errorf("failed to join the session pool: %w", err)
	}
	if res != admission.Admitted {
		fmt.Fprintf(errOut, "slotshell: all %d sessions are in use, try again later\n",
			a.admission.Capacity())
		return nil, ErrSessionLimit
	}
	return func() {
		leaveCtx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
		defer cancel()
		if err := a.admission.Leave(leaveCtx, a.identity.PID); err != nil {
			a.logger.Error("failed to leave session pool", "error", err)
		}
	}, nil
}

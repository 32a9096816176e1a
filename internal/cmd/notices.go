package cmd

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/Iron-Ham/slotshell/internal/mailbox"
	"github.com/spf13/cobra"
)

var noticesCmd = &cobra.Command{
	Use:   "notices",
	Short: "Read session notices",
	Long: `Read the notices sent to a session.

Run from inside a slotshell session, this drains that session's notices.
Given --pid it drains the notices for that session instead. Without either
it lists every queued notice and leaves them in place.`,
	Args: cobra.NoArgs,
	RunE: runNotices,
}

var noticesSendCmd = &cobra.Command{
	Use:   "send <text...>",
	Short: "Send a notice to a session, or to all of them",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runNoticesSend,
}

var (
	noticesPID    int
	noticesFollow bool
	noticesTo     int
)

func init() {
	rootCmd.AddCommand(noticesCmd)
	noticesCmd.AddCommand(noticesSendCmd)

	noticesCmd.Flags().IntVar(&noticesPID, "pid", 0, "session pid to read for (default: $"+sessionPIDEnv+")")
	noticesCmd.Flags().BoolVarP(&noticesFollow, "follow", "f", false, "keep printing notices as they arrive")
	noticesSendCmd.Flags().IntVar(&noticesTo, "to", mailbox.Broadcast, "recipient pid (default: every session)")
}

// noticesTarget returns the pid to read notices for, or 0 for none.
func noticesTarget() (int, error) {
	if noticesPID > 0 {
		return noticesPID, nil
	}
	if v := os.Getenv(sessionPIDEnv); v != "" {
		pid, err := strconv.Atoi(v)
		if err != nil || pid <= 0 {
			return 0, fmt.Errorf("invalid %s: %q", sessionPIDEnv, v)
		}
		return pid, nil
	}
	return 0, nil
}

func runNotices(cmd *cobra.Command, _ []string) error {
	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pid, err := noticesTarget()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if pid == 0 {
		if noticesFollow {
			return errors.New("--follow needs a session: pass --pid")
		}
		all, err := a.mailbox.List(ctx)
		if err != nil {
			return err
		}
		if len(all) == 0 {
			fmt.Fprintln(out, "No queued notices.")
			return nil
		}
		for _, n := range all {
			fmt.Fprintf(out, "to %s: %s\n", recipient(n.To), mailbox.Format(n))
		}
		return nil
	}

	notices, err := a.mailbox.Drain(ctx, pid)
	if err != nil {
		return err
	}
	fmt.Fprint(out, mailbox.FormatAll(notices))
	if !noticesFollow {
		if len(notices) == 0 {
			fmt.Fprintln(out, "No notices.")
		}
		return nil
	}

	fmt.Fprintf(out, "Following notices for pid %d... (Ctrl+C to stop)\n", pid)
	cancel := a.mailbox.Watch(ctx, pid, func(n mailbox.Notification) {
		fmt.Fprintln(out, mailbox.Format(n))
	})
	<-ctx.Done()
	cancel()
	return nil
}

func runNoticesSend(cmd *cobra.Command, args []string) error {
	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.close()

	n := mailbox.Notification{
		To:   noticesTo,
		From: a.identity.PID,
		Text: strings.Join(args, " "),
	}
	if err := a.mailbox.Push(cmd.Context(), n); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Sent to %s.\n", recipient(noticesTo))
	return nil
}

func recipient(pid int) string {
	if pid == mailbox.Broadcast {
		return "all sessions"
	}
	return "pid " + strconv.Itoa(pid)
}

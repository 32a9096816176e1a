package cmd

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Iron-Ham/slotshell/internal/filelock"
	"github.com/Iron-Ham/slotshell/internal/liveness"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List active sessions and held locks",
	Long: `List the sessions holding a slot and the resource locks on record.

Slots of sessions that have exited are reclaimed as part of listing. A lock
whose owner is no longer running is marked stale; the next session to use
that file takes it over.`,
	Args: cobra.NoArgs,
	RunE: runSessions,
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, _ []string) error {
	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.close()

	active, err := a.admission.Active(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	locks, err := a.arbiter.List()
	if err != nil {
		return fmt.Errorf("failed to list locks: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, strings.Repeat("─", 60))
	fmt.Fprintf(out, "Sessions: %d of %d slots in use\n", len(active), a.admission.Capacity())
	fmt.Fprintln(out, strings.Repeat("─", 60))

	prober := liveness.SignalProber{}
	if len(active) > 0 {
		table := tablewriter.NewWriter(out)
		table.Header("PID", "STATE")
		for _, pid := range active {
			_ = table.Append([]string{strconv.Itoa(pid), prober.Probe(pid).String()})
		}
		if err := table.Render(); err != nil {
			return err
		}
	}

	fmt.Fprintln(out)
	if len(locks) == 0 {
		fmt.Fprintln(out, "No resource locks on record.")
		return nil
	}
	fmt.Fprintf(out, "Resource locks (%d):\n", len(locks))
	return printLocks(out, locks, prober)
}

func printLocks(out io.Writer, locks []filelock.Lock, prober liveness.Prober) error {
	table := tablewriter.NewWriter(out)
	table.Header("RESOURCE", "PID", "USER", "TTY", "IP", "STATE", "COMMAND")
	for _, l := range locks {
		d := l.Descriptor
		state := "held"
		if d.PID <= 0 || liveness.IsGone(prober.Probe(d.PID)) {
			state = "stale"
		}
		resource := d.Resource
		if resource == "" {
			resource = l.Key
		}
		_ = table.Append([]string{
			resource, strconv.Itoa(d.PID), orDash(d.User), orDash(d.TTY), orDash(d.IP), state, orDash(d.Command),
		})
	}
	return table.Render()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

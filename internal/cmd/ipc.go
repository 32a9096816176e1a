package cmd

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var ipcCmd = &cobra.Command{
	Use:   "ipc",
	Short: "Manage the shared coordination state",
}

var ipcResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Remove the shared coordination state",
	Long: `Remove the shared state file and its lock, dropping every session slot
and every queued notice.

Use this to recover after the state was left unusable, for example by a
crash mid-write on a filesystem without atomic rename. Sessions still
running keep working and recreate the state on their next update, but
they no longer count against the session limit.`,
	Args: cobra.NoArgs,
	RunE: runIPCReset,
}

var ipcResetForce bool

func init() {
	rootCmd.AddCommand(ipcCmd)
	ipcCmd.AddCommand(ipcResetCmd)
	ipcResetCmd.Flags().BoolVarP(&ipcResetForce, "force", "f", false, "Skip confirmation prompt")
}

func runIPCReset(cmd *cobra.Command, _ []string) error {
	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	if !ipcResetForce {
		active, err := a.admission.Active(cmd.Context())
		if err != nil {
			// The state may be the very thing that is broken.
			a.logger.Warn("could not read sessions before reset", "error", err)
		} else if len(active) > 0 {
			fmt.Fprintf(out, "%d session(s) still hold a slot.\n", len(active))
		}

		fmt.Fprintf(out, "Remove coordination state in %s? [y/N] ", a.store.Dir())
		reader := bufio.NewReader(cmd.InOrStdin())
		response, _ := reader.ReadString('\n')
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "y" && response != "yes" {
			fmt.Fprintln(out, "Reset cancelled.")
			return nil
		}
	}

	if err := a.store.Reset(); err != nil {
		return fmt.Errorf("failed to reset coordination state: %w", err)
	}
	a.logger.Warn("coordination state reset", "dir", a.store.Dir())
	fmt.Fprintf(out, "Coordination state removed from %s.\n", a.store.Dir())
	return nil
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var ownerCmd = &cobra.Command{
	Use:   "owner <file>",
	Short: "Show which session holds a file",
	Args:  cobra.ExactArgs(1),
	RunE:  runOwner,
}

func init() {
	rootCmd.AddCommand(ownerCmd)
}

func runOwner(cmd *cobra.Command, args []string) error {
	a, err := newApp(nil)
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()
	desc, found, err := a.runner.Owner(args[0])
	switch {
	case err != nil:
		return err
	case !found:
		fmt.Fprintf(out, "free (no lock): %s\n", args[0])
	case desc.IsZero():
		fmt.Fprintf(out, "lock present but empty: %s\n", a.arbiter.Path(args[0]))
	default:
		fmt.Fprintf(out, "owner of '%s':\n%s\n", args[0], desc)
	}
	return nil
}

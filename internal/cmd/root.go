package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Iron-Ham/slotshell/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ErrSessionLimit is returned when the interactive shell could not get a
// session slot.
var ErrSessionLimit = errors.New("session limit reached")

// ExitError carries a command's exit status out of Execute.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

// ExitCode maps an error returned by Execute to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return 1
}

var rootCmd = &cobra.Command{
	Use:   "slotshell",
	Short: "Shared shell with a session limit and per-file locks",
	Long: `slotshell is an interactive shell for hosts that several people use at once.

At most shell.max_instances sessions run at the same time. A command that names
an existing file holds a lock on it while it runs. Another session trying to use
the same file is shown who holds it, and the holder is sent a notice.

Without a subcommand slotshell starts an interactive session.`,
	Args:          cobra.NoArgs,
	RunE:          runShell,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/slotshell/config.yaml)")
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("$HOME/.config/" + config.AppName)
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix(config.EnvPrefix)
	// Replace dots with underscores for nested keys in env vars
	// e.g., SLOTSHELL_SHELL_MAX_INSTANCES for shell.max_instances
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/Iron-Ham/slotshell/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or modify slotshell configuration",
	Long: `View or modify slotshell configuration.

Without arguments, displays the current configuration.
Use subcommands to modify settings or create a config file.`,
	RunE: runConfigShow,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set a configuration value and save it to the config file in use, or to
the user's config file when none was loaded. The whole configuration is
validated first; an invalid value is not saved.

Keys use dot notation, e.g.:
  slotshell config set shell.max_instances 5
  slotshell config set remote.allowed 10.0.0.5,10.0.0.6

The flat names of older config files (MAX_INSTANCES, LOG_DIR, ...) are
accepted too. Lists are comma separated.

Valid keys:
  ` + strings.Join(config.SettableKeys(), "\n  "),
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a default config file",
	Long:  `Create a default config file at ~/.config/slotshell/config.yaml with all available options.`,
	RunE:  runConfigInit,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Show the config file path",
	RunE:  runConfigPath,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	out := cmd.OutOrStdout()

	// Show where config is being read from
	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Fprintf(out, "# Config file: %s\n", used)
	} else {
		fmt.Fprintln(out, "# Config file: (none - using defaults)")
	}

	data, err := cfg.YAML()
	if err != nil {
		return err
	}
	_, err = out.Write(data)
	return err
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	canonical, file, err := config.Set(viper.GetViper(), args[0], args[1])
	if err != nil {
		return fmt.Errorf("%w\nRun 'slotshell config set --help' to see valid keys", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %v\n", canonical, viper.Get(canonical))
	fmt.Fprintf(cmd.OutOrStdout(), "Config saved to %s\n", file)
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	configDir := config.ConfigDir()
	configFile := config.ConfigFile()

	// Check if config file already exists
	if _, err := os.Stat(configFile); err == nil {
		return fmt.Errorf("config file already exists at %s\nUse 'slotshell config set' to modify values", configFile)
	}

	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	defaults := config.Default()
	configContent := fmt.Sprintf(`# slotshell configuration

shell:
  # Name shown in the prompt
  program_name: %s
  # How many sessions may run at once (0-%d)
  max_instances: %d
  # Interpreter external commands run under
  shell: %s

# Relative paths are resolved against the directory holding this file.
paths:
  # Shared coordination state; every cooperating session must use the same one
  state_dir: %s
  # Command and error logs
  log_dir: %s
  # Resource lock descriptors
  lock_dir: %s

remote:
  # Port 'slotshell server' listens on and 'connect' dials by default
  port: %d
  # Client addresses the server accepts; empty admits nobody
  allowed: []
  # Serve Prometheus metrics here in server mode, e.g. 127.0.0.1:9105
  metrics_addr: ""

logging:
  # debug, info, warn or error
  level: %s
  # Rotate a log file when it reaches this size
  max_size_mb: %d
  # Rotated files to keep
  max_backups: %d
`,
		defaults.Shell.ProgramName, config.MaxSessions, defaults.Shell.MaxInstances, defaults.Shell.Shell,
		defaults.Paths.StateDir, defaults.Paths.LogDir, defaults.Paths.LockDir,
		defaults.Remote.Port,
		defaults.Logging.Level, defaults.Logging.MaxSizeMB, defaults.Logging.MaxBackups)

	if err := os.WriteFile(configFile, []byte(configContent), 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Created config file at %s\n", configFile)
	fmt.Fprintln(cmd.OutOrStdout(), "Edit this file to customize slotshell's behavior.")
	return nil
}

func runConfigPath(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	configFile := config.ConfigFile()

	if viper.ConfigFileUsed() != "" {
		fmt.Fprintf(out, "Active config: %s\n", viper.ConfigFileUsed())
	} else {
		fmt.Fprintf(out, "Default path: %s (not created)\n", configFile)
	}

	// Also show config search paths
	fmt.Fprintln(out, "\nSearch paths:")
	fmt.Fprintf(out, "  1. %s\n", filepath.Join(config.ConfigDir(), "config.yaml"))
	fmt.Fprintf(out, "  2. $HOME/.config/%s/config.yaml\n", config.AppName)
	fmt.Fprintln(out, "  3. ./config.yaml (current directory)")
	fmt.Fprintf(out, "\nEnvironment variables: %s_* (e.g., %s_SHELL_MAX_INSTANCES)\n", config.EnvPrefix, config.EnvPrefix)
	return nil
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// AppName is the program name used for config and state locations.
const AppName = "slotshell"

// EnvPrefix is the prefix for environment variable overrides, e.g.
// SLOTSHELL_SHELL_MAX_INSTANCES.
const EnvPrefix = "SLOTSHELL"

// Config represents the complete slotshell configuration
type Config struct {
	Shell   ShellConfig   `mapstructure:"shell" yaml:"shell"`
	Paths   PathsConfig   `mapstructure:"paths" yaml:"paths"`
	Remote  RemoteConfig  `mapstructure:"remote" yaml:"remote"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
}

// ShellConfig controls the interactive shell
type ShellConfig struct {
	// ProgramName is shown in the prompt (default: "slotshell")
	ProgramName string `mapstructure:"program_name" yaml:"program_name"`
	// MaxInstances is how many sessions may run at once (default: 3, max: 256)
	MaxInstances int `mapstructure:"max_instances" yaml:"max_instances"`
	// Shell is the interpreter external commands run under (default: "/bin/sh")
	Shell string `mapstructure:"shell" yaml:"shell"`
}

// PathsConfig controls where slotshell keeps its files
type PathsConfig struct {
	// StateDir holds the shared coordination state. All cooperating sessions
	// must agree on it. (default: $TMPDIR/slotshell)
	StateDir string `mapstructure:"state_dir" yaml:"state_dir"`
	// LogDir holds the command and error logs (default: "var/log")
	LogDir string `mapstructure:"log_dir" yaml:"log_dir"`
	// LockDir holds resource lock descriptors (default: "var/lock")
	LockDir string `mapstructure:"lock_dir" yaml:"lock_dir"`
}

// RemoteConfig controls the remote execution server
type RemoteConfig struct {
	// Port is the TCP port the server listens on (default: 5050)
	Port int `mapstructure:"port" yaml:"port"`
	// Allowed lists the client addresses the server accepts. Empty admits
	// nobody.
	Allowed []string `mapstructure:"allowed" yaml:"allowed"`
	// MetricsAddr, when set, serves Prometheus metrics in server mode
	// (e.g. "127.0.0.1:9105")
	MetricsAddr string `mapstructure:"metrics_addr" yaml:"metrics_addr"`
}

// LoggingConfig controls the command and error logs
type LoggingConfig struct {
	// Level is the log level: "debug", "info", "warn", "error" (default: "info")
	Level string `mapstructure:"level" yaml:"level"`
	// MaxSizeMB is the maximum log file size in megabytes before rotation (default: 10)
	MaxSizeMB int `mapstructure:"max_size_mb" yaml:"max_size_mb"`
	// MaxBackups is the number of backup log files to keep (default: 3)
	MaxBackups int `mapstructure:"max_backups" yaml:"max_backups"`
}

// Default returns a Config with sensible default values
func Default() *Config {
	return &Config{
		Shell: ShellConfig{
			ProgramName:  AppName,
			MaxInstances: 3,
			Shell:        "/bin/sh",
		},
		Paths: PathsConfig{
			StateDir: filepath.Join(os.TempDir(), AppName),
			LogDir:   filepath.Join("var", "log"),
			LockDir:  filepath.Join("var", "lock"),
		},
		Remote: RemoteConfig{
			Port:    5050,
			Allowed: []string{},
		},
		Logging: LoggingConfig{
			Level:      "info",
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// SetDefaults registers default values with viper
func SetDefaults() {
	SetDefaultsOn(viper.GetViper())
}

// SetDefaultsOn registers default values with v
func SetDefaultsOn(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("shell.program_name", defaults.Shell.ProgramName)
	v.SetDefault("shell.max_instances", defaults.Shell.MaxInstances)
	v.SetDefault("shell.shell", defaults.Shell.Shell)

	v.SetDefault("paths.state_dir", defaults.Paths.StateDir)
	v.SetDefault("paths.log_dir", defaults.Paths.LogDir)
	v.SetDefault("paths.lock_dir", defaults.Paths.LockDir)

	v.SetDefault("remote.port", defaults.Remote.Port)
	v.SetDefault("remote.allowed", defaults.Remote.Allowed)
	v.SetDefault("remote.metrics_addr", defaults.Remote.MetricsAddr)

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.max_size_mb", defaults.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", defaults.Logging.MaxBackups)
}

// Load reads the configuration from viper into a Config struct and validates it
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v
func LoadFrom(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// Get returns the current configuration (convenience function)
func Get() *Config {
	cfg, err := Load()
	if err != nil {
		// Fall back to defaults if unmarshaling fails
		return Default()
	}
	return cfg
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, AppName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "." + AppName
	}
	return filepath.Join(home, ".config", AppName)
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ResolveDir returns path as an absolute directory. A leading ~ expands to
// the user's home directory and relative paths are resolved against baseDir.
func ResolveDir(path, baseDir string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[2:])
		}
	} else if path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			path = home
		}
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}
	return filepath.Clean(path)
}

// Resolve makes every directory in Paths absolute relative to baseDir.
func (p PathsConfig) Resolve(baseDir string) PathsConfig {
	return PathsConfig{
		StateDir: ResolveDir(p.StateDir, baseDir),
		LogDir:   ResolveDir(p.LogDir, baseDir),
		LockDir:  ResolveDir(p.LockDir, baseDir),
	}
}

// YAML renders c in config file form.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to render config: %w", err)
	}
	return out, nil
}

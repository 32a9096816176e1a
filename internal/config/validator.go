package config

import (
	"fmt"
	"net"
	"slices"
	"strings"
)

// MaxSessions mirrors the fixed size of the shared session registry.
const MaxSessions = 256

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "shell.max_instances")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d validation errors:\n", len(e)))
	for i, err := range e {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateShell()...)
	errors = append(errors, c.validatePaths()...)
	errors = append(errors, c.validateRemote()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateShell() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Shell.ProgramName) == "" {
		errors = append(errors, ValidationError{
			Field:   "shell.program_name",
			Value:   c.Shell.ProgramName,
			Message: "cannot be empty",
		})
	}

	if c.Shell.MaxInstances < 0 || c.Shell.MaxInstances > MaxSessions {
		errors = append(errors, ValidationError{
			Field:   "shell.max_instances",
			Value:   c.Shell.MaxInstances,
			Message: fmt.Sprintf("must be between 0 and %d", MaxSessions),
		})
	}

	return errors
}

func (c *Config) validatePaths() []ValidationError {
	var errors []ValidationError

	fields := []struct {
		name  string
		value string
	}{
		{"paths.state_dir", c.Paths.StateDir},
		{"paths.log_dir", c.Paths.LogDir},
		{"paths.lock_dir", c.Paths.LockDir},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			errors = append(errors, ValidationError{
				Field:   f.name,
				Value:   f.value,
				Message: "directory path cannot be empty",
			})
			continue
		}
		if strings.ContainsRune(f.value, '\x00') {
			errors = append(errors, ValidationError{
				Field:   f.name,
				Value:   f.value,
				Message: "directory path contains invalid null character",
			})
		}
	}

	return errors
}

func (c *Config) validateRemote() []ValidationError {
	var errors []ValidationError

	if c.Remote.Port < 1 || c.Remote.Port > 65535 {
		errors = append(errors, ValidationError{
			Field:   "remote.port",
			Value:   c.Remote.Port,
			Message: "must be between 1 and 65535",
		})
	}

	for i, addr := range c.Remote.Allowed {
		if net.ParseIP(strings.TrimSpace(addr)) == nil {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("remote.allowed[%d]", i),
				Value:   addr,
				Message: "must be an IP address",
			})
		}
	}

	if c.Remote.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.Remote.MetricsAddr); err != nil {
			errors = append(errors, ValidationError{
				Field:   "remote.metrics_addr",
				Value:   c.Remote.MetricsAddr,
				Message: "must be host:port",
			})
		}
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB < 1 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be at least 1",
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

// Package logging provides structured logging for slotshell processes.
//
// It wraps Go's log/slog to write JSON events to two append-only sinks in
// the configured log directory:
//
//	<log_dir>/slotshell.log        -- every event at or above the level
//	<log_dir>/slotshell_error.log  -- WARN and ERROR events only
//
// Each event carries a timestamp, the process id, and the actor identity
// (user, tty, originating address) attached with [Logger.WithIdentity],
// followed by free-form key/value detail. Admission failures, lock
// conflicts, and remote authorization failures are reported here.
//
// Both sinks go through a [RotatingWriter], which rotates a file once it
// grows past a configured size and keeps a bounded number of backups.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("var/log", "info")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger = logger.WithIdentity(os.Getpid(), "alice", "/dev/pts/1", "n/a")
//	logger.Info("command finished", "cmd", "ls", "exit_code", 0)
//	logger.Error("concurrent access", "resource", "/tmp/report.txt")
//
// The files can be read back with [ReadEntries] and rendered with
// [FormatEntry].
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers
// created via With* methods share the underlying writers.
package logging

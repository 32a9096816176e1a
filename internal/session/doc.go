// Package session runs one command line on behalf of an interactive shell
// session, guarding the file it targets with a resource lock.
//
// [Runner.Run] derives the target resource from the command line, takes its
// lock through a [filelock.Arbiter], executes the command, and releases the
// lock on every exit path. If the resource is already locked the command is
// skipped, the caller is warned, and the current owner receives a notice
// through the shared [mailbox.Mailbox] naming the contender.
package session

// Package coord holds the coordination state shared by every slotshell
// process on a host.
//
// The state is a single small record: the registry of active session pids
// and the notification queue. It lives as a JSON blob in a state directory
// and is only ever read or mutated while holding the coordination lock, an
// exclusive flock(2) on a sidecar lock file in the same directory. Readers
// and writers therefore never observe a partially updated record.
//
//	<state_dir>/
//	    state.lock  -- coordination lock (never deleted while in use)
//	    state.json  -- the shared record, replaced atomically by rename
//
// Callers do not touch the record directly. The admission controller and
// the mailbox use [Store.Update] and [Store.View] to run short transactions
// against it.
//
// The state is ephemeral: losing the directory (for example on reboot)
// simply starts everyone from an empty registry.
package coord

// Package liveness answers whether a recorded process identifier still
// corresponds to a running process.
//
// Probes never block and never affect the probed process. Callers that
// reclaim resources on a Dead answer must treat Unknown as alive so that a
// live session is never evicted because of a transient probe failure.
package liveness

import (
	"errors"

	"golang.org/x/sys/unix"
)

// Status is the outcome of a single probe.
type Status int

const (
	// Unknown means the probe could not decide.
	Unknown Status = iota
	// Alive means the process exists.
	Alive
	// Dead means the process does not exist.
	Dead
)

// String returns a human-readable status.
func (s Status) String() string {
	switch s {
	case Alive:
		return "alive"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// Prober reports the liveness of a process.
type Prober interface {
	Probe(pid int) Status
}

// ProbeFunc adapts an ordinary function to the Prober interface.
type ProbeFunc func(pid int) Status

// Probe calls f(pid).
func (f ProbeFunc) Probe(pid int) Status {
	return f(pid)
}

// SignalProber checks for a process by sending it signal 0.
type SignalProber struct{}

// Probe implements Prober.
func (SignalProber) Probe(pid int) Status {
	if pid <= 0 {
		return Dead
	}
	err := unix.Kill(pid, 0)
	switch {
	case err == nil:
		return Alive
	case errors.Is(err, unix.ESRCH):
		return Dead
	case errors.Is(err, unix.EPERM):
		// The process exists but belongs to another user.
		return Alive
	default:
		return Unknown
	}
}

// StaticProber answers from a fixed table. Pids absent from the table are
// reported with the Default status.
type StaticProber struct {
	Statuses map[int]Status
	Default  Status
}

// Probe implements Prober.
func (p StaticProber) Probe(pid int) Status {
	if s, ok := p.Statuses[pid]; ok {
		return s
	}
	return p.Default
}

// IsGone reports whether a probe result allows reclaiming the pid's resources.
func IsGone(s Status) bool {
	return s == Dead
}

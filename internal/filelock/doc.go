// Package filelock arbitrates exclusive, non-blocking locks on resources a
// session is about to modify.
//
// Each resource maps to a descriptor file, <dir>/<key>.lock, where the key
// is the resource path with every "/" replaced by "_". A lock is an
// exclusive flock(2) on that file. Whoever holds it also overwrites the
// file with a [Descriptor] naming the owning process, its user, terminal,
// origin address, and command, so operators can ask who holds what.
//
// Acquisition never waits. If another holder has the lock, [Arbiter.Acquire]
// returns a [*BusyError] carrying the owner's descriptor. The descriptor is
// advisory: a holder killed without releasing leaves its descriptor in place
// until the next successful acquire overwrites it, although the kernel frees
// the flock itself.
//
// # Basic Usage
//
//	arb, err := filelock.New(lockDir)
//
//	h, err := arb.Acquire("/tmp/report.txt", "vi /tmp/report.txt", owner)
//	var busy *filelock.BusyError
//	if errors.As(err, &busy) {
//	    fmt.Printf("held by pid %d\n", busy.Owner.PID)
//	}
//	defer h.Release()
//
//	// Inspect ownership without locking
//	desc, found, err := arb.Inspect("/tmp/report.txt")
package filelock

// Package admission limits how many shell sessions may run at once.
//
// Active session pids live in the shared coordination state. Each TryEnter
// first prunes pids whose processes have exited, so a session that was
// killed without calling Leave frees its slot lazily.
package admission

import (
	"context"
	"fmt"
	"slices"

	"github.com/Iron-Ham/slotshell/internal/coord"
	"github.com/Iron-Ham/slotshell/internal/liveness"
	"github.com/Iron-Ham/slotshell/internal/logging"
	"github.com/Iron-Ham/slotshell/internal/metrics"
)

// Result is the outcome of an admission attempt.
type Result int

const (
	// Rejected means no slot was free.
	Rejected Result = iota
	// Admitted means the caller now occupies a slot.
	Admitted
)

// String returns the metric label for r.
func (r Result) String() string {
	if r == Admitted {
		return metrics.ResultAdmitted
	}
	return metrics.ResultRejected
}

// Controller claims and releases session slots.
type Controller struct {
	store    *coord.Store
	capacity int
	prober   liveness.Prober
	logger   *logging.Logger
	metrics  *metrics.Collector
}

// Option configures a Controller.
type Option func(*Controller)

// WithProber sets the liveness probe used to prune exited sessions.
func WithProber(p liveness.Prober) Option {
	return func(c *Controller) {
		if p != nil {
			c.prober = p
		}
	}
}

// WithLogger sets the logger for rejections and infrastructure failures.
func WithLogger(l *logging.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the collector that counts admission results.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// New creates a Controller admitting at most capacity sessions. The
// effective limit never exceeds coord.MaxSessions.
func New(store *coord.Store, capacity int, opts ...Option) *Controller {
	c := &Controller{
		store:    store,
		capacity: capacity,
		prober:   liveness.SignalProber{},
		logger:   logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Capacity returns the effective session limit.
func (c *Controller) Capacity() int {
	return max(0, min(c.capacity, coord.MaxSessions))
}

// TryEnter registers pid if a slot is free. A pid that is already
// registered is admitted again without taking a second slot.
//
// A non-nil error means the coordination state could not be reached and the
// caller must not start a session.
func (c *Controller) TryEnter(ctx context.Context, pid int) (Result, error) {
	limit := c.Capacity()
	result := Rejected
	var active int

	err := c.store.Update(ctx, func(st *coord.State) error {
		st.Sessions = c.prune(st.Sessions)
		active = len(st.Sessions)

		if slices.Contains(st.Sessions, pid) {
			result = Admitted
			return nil
		}
		if active < limit {
			st.Sessions = append(st.Sessions, pid)
			active++
			result = Admitted
		}
		return nil
	})
	if err != nil {
		c.logger.Error("admission state unavailable", "pid", pid, "error", err)
		c.metrics.Admission(metrics.ResultError)
		return Rejected, fmt.Errorf("enter session: %w", err)
	}

	c.metrics.Admission(result.String())
	if result == Rejected {
		c.logger.Warn("session rejected", "pid", pid, "active", active, "capacity", limit)
	} else {
		c.logger.Debug("session admitted", "pid", pid, "active", active, "capacity", limit)
	}
	return result, nil
}

// Leave removes pid from the registry. It is a no-op for a pid that was
// never admitted.
func (c *Controller) Leave(ctx context.Context, pid int) error {
	err := c.store.Update(ctx, func(st *coord.State) error {
		st.Sessions = slices.DeleteFunc(st.Sessions, func(p int) bool { return p == pid })
		return nil
	})
	if err != nil {
		c.logger.Error("failed to leave session", "pid", pid, "error", err)
		return fmt.Errorf("leave session: %w", err)
	}
	c.logger.Debug("session left", "pid", pid)
	return nil
}

// Active prunes exited sessions and returns the remaining pids in entry
// order.
func (c *Controller) Active(ctx context.Context) ([]int, error) {
	var pids []int
	err := c.store.Update(ctx, func(st *coord.State) error {
		st.Sessions = c.prune(st.Sessions)
		pids = slices.Clone(st.Sessions)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return pids, nil
}

// prune drops pids whose process is known to be dead, keeping survivors in
// order. Unknown counts as alive.
func (c *Controller) prune(pids []int) []int {
	return slices.DeleteFunc(pids, func(pid int) bool {
		if !liveness.IsGone(c.prober.Probe(pid)) {
			return false
		}
		c.logger.Info("reclaimed session slot", "pid", pid)
		return true
	})
}

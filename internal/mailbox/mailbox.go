package mailbox

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/Iron-Ham/slotshell/internal/coord"
	"github.com/Iron-Ham/slotshell/internal/logging"
	"github.com/Iron-Ham/slotshell/internal/metrics"
)

// Broadcast is the recipient pid of a notice meant for every session.
const Broadcast = 0

// defaultPollInterval is the default interval for the Watch poller.
const defaultPollInterval = 500 * time.Millisecond

// maxWatchErrors is the number of consecutive Drain failures before the
// watcher logs at error level.
const maxWatchErrors = 5

// Notification is a queued notice.
type Notification = coord.Notification

// Mailbox pushes and drains notices in the shared coordination state.
type Mailbox struct {
	store        *coord.Store
	logger       *logging.Logger
	metrics      *metrics.Collector
	pollInterval time.Duration
}

// New creates a Mailbox backed by store.
func New(store *coord.Store, opts ...Option) *Mailbox {
	m := &Mailbox{
		store:        store,
		logger:       logging.NopLogger(),
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Push appends n to the queue, evicting the oldest notice when the queue is
// full. An empty ID is filled with a fresh UUID and a zero SentAt with the
// current time. Text longer than coord.MaxTextLen bytes is truncated.
func (m *Mailbox) Push(ctx context.Context, n Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.SentAt.IsZero() {
		n.SentAt = time.Now()
	}
	n.Text = truncate(n.Text, coord.MaxTextLen)

	var evicted bool
	err := m.store.Update(ctx, func(st *coord.State) error {
		if len(st.Notifications) >= coord.MailboxCapacity {
			drop := len(st.Notifications) - coord.MailboxCapacity + 1
			st.Notifications = st.Notifications[drop:]
			evicted = true
		}
		st.Notifications = append(st.Notifications, n)
		return nil
	})
	if err != nil {
		return fmt.Errorf("push notification: %w", err)
	}
	m.metrics.NotificationPushed(evicted)
	return nil
}

// Drain removes and returns every notice addressed to pid or broadcast, in
// queue order. Other notices stay queued in their original order.
func (m *Mailbox) Drain(ctx context.Context, pid int) ([]Notification, error) {
	var out []Notification
	err := m.store.Update(ctx, func(st *coord.State) error {
		kept := st.Notifications[:0]
		for _, n := range st.Notifications {
			if matches(n, pid) {
				out = append(out, n)
			} else {
				kept = append(kept, n)
			}
		}
		st.Notifications = kept
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("drain notifications: %w", err)
	}
	m.metrics.NotificationsDelivered(len(out))
	return out, nil
}

// Peek returns the notices Drain would deliver to pid without removing
// them.
func (m *Mailbox) Peek(ctx context.Context, pid int) ([]Notification, error) {
	var out []Notification
	err := m.store.View(ctx, func(st coord.State) error {
		for _, n := range st.Notifications {
			if matches(n, pid) {
				out = append(out, n)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("peek notifications: %w", err)
	}
	return out, nil
}

// Pending returns the number of queued notices for all recipients.
func (m *Mailbox) Pending(ctx context.Context) (int, error) {
	var n int
	err := m.store.View(ctx, func(st coord.State) error {
		n = len(st.Notifications)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return n, nil
}

// List returns every queued notice, oldest first, without removing any.
func (m *Mailbox) List(ctx context.Context) ([]Notification, error) {
	var out []Notification
	err := m.store.View(ctx, func(st coord.State) error {
		out = slices.Clone(st.Notifications)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return out, nil
}

// Watch drains pid's notices on every poll and invokes handler for each
// one, in queue order. It returns a cancel function that stops the watcher
// and waits for it to exit. The watcher also stops when ctx is done.
func (m *Mailbox) Watch(ctx context.Context, pid int, handler func(Notification)) (cancel func()) {
	ctx, stop := context.WithCancel(ctx)
	var wg sync.WaitGroup

	wg.Go(func() {
		ticker := time.NewTicker(m.pollInterval)
		defer ticker.Stop()

		consecutiveErrors := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			notices, err := m.Drain(ctx, pid)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				consecutiveErrors++
				if consecutiveErrors >= maxWatchErrors {
					m.logger.Error("mailbox watch failing", "pid", pid, "error", err)
					consecutiveErrors = 0
				}
				continue
			}
			consecutiveErrors = 0

			for _, n := range notices {
				handler(n)
			}
		}
	})

	return func() {
		stop()
		wg.Wait()
	}
}

func matches(n Notification, pid int) bool {
	return n.To == Broadcast || n.To == pid
}

// truncate shortens s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

package mailbox

import (
	"time"

	"github.com/Iron-Ham/slotshell/internal/logging"
	"github.com/Iron-Ham/slotshell/internal/metrics"
)

// Option configures a Mailbox.
type Option func(*Mailbox)

// WithLogger sets the logger used for delivery failures seen by Watch.
func WithLogger(l *logging.Logger) Option {
	return func(m *Mailbox) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithMetrics sets the collector that counts pushes, evictions and
// deliveries.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Mailbox) {
		m.metrics = c
	}
}

// WithPollInterval sets the interval between Watch polls. Zero or negative
// values are ignored.
func WithPollInterval(d time.Duration) Option {
	return func(m *Mailbox) {
		if d > 0 {
			m.pollInterval = d
		}
	}
}

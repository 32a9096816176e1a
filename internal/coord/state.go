package coord

import "time"

const (
	// MaxSessions is the fixed number of session slots in the registry.
	MaxSessions = 256

	// MailboxCapacity is the number of notifications the queue retains.
	MailboxCapacity = 64

	// MaxTextLen bounds the length in bytes of a notification text.
	MaxTextLen = 255
)

// Notification is one queued notice. To is the addressed pid, or 0 for a
// broadcast.
type Notification struct {
	ID     string    `json:"id"`
	To     int       `json:"to"`
	From   int       `json:"from,omitempty"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

// State is the shared coordination record.
type State struct {
	// Sessions holds active session pids in entry order.
	Sessions []int `json:"sessions"`

	// Notifications is a FIFO queue, oldest first.
	Notifications []Notification `json:"notifications"`
}

// normalize repairs a record that violates the capacity invariants, the
// same way a first attach resets out-of-range counters.
func (s *State) normalize() {
	sessions := s.Sessions[:0]
	for _, pid := range s.Sessions {
		if pid > 0 {
			sessions = append(sessions, pid)
		}
	}
	if len(sessions) > MaxSessions {
		sessions = sessions[:MaxSessions]
	}
	s.Sessions = sessions

	if n := len(s.Notifications); n > MailboxCapacity {
		s.Notifications = s.Notifications[n-MailboxCapacity:]
	}
}

// clone returns a deep copy so read-only callers cannot alias the record.
func (s State) clone() State {
	out := State{
		Sessions:      make([]int, len(s.Sessions)),
		Notifications: make([]Notification, len(s.Notifications)),
	}
	copy(out.Sessions, s.Sessions)
	copy(out.Notifications, s.Notifications)
	return out
}

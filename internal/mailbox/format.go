package mailbox

import (
	"fmt"
	"strings"
)

// Format renders one notice as a single line for the terminal.
func Format(n Notification) string {
	var b strings.Builder
	if !n.SentAt.IsZero() {
		b.WriteString(n.SentAt.Local().Format("[15:04:05] "))
	}
	switch {
	case n.From > 0:
		fmt.Fprintf(&b, "from pid %d", n.From)
	default:
		b.WriteString("notice")
	}
	if n.To == Broadcast {
		b.WriteString(" (broadcast)")
	}
	b.WriteString(": ")
	b.WriteString(n.Text)
	return b.String()
}

// FormatAll renders notices one per line. It returns an empty string if
// there are none.
func FormatAll(notices []Notification) string {
	if len(notices) == 0 {
		return ""
	}
	lines := make([]string, len(notices))
	for i, n := range notices {
		lines[i] = Format(n)
	}
	return strings.Join(lines, "\n") + "\n"
}

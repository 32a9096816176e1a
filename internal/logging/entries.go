package logging

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"
)

// Entry is one parsed event from a log file.
type Entry struct {
	Time    time.Time
	Level   string
	Message string
	PID     int
	User    string
	TTY     string
	IP      string
	Attrs   map[string]any
}

// identityFields are lifted out of Attrs into Entry fields.
var identityFields = map[string]bool{
	"time":  true,
	"level": true,
	"msg":   true,
	"pid":   true,
	"user":  true,
	"tty":   true,
	"ip":    true,
}

// ReadEntries parses every JSON event in the log file at path, in file
// order. A missing file yields no entries. Malformed lines are skipped so a
// partially written tail does not hide the rest of the log.
func ReadEntries(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	const maxScanTokenSize = 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxScanTokenSize)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		entry, err := ParseEntry(line)
		if err != nil {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading log file: %w", err)
	}
	return entries, nil
}

// ParseEntry parses one JSON log line.
func ParseEntry(line string) (Entry, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{}, fmt.Errorf("invalid JSON: %w", err)
	}

	entry := Entry{Attrs: make(map[string]any)}
	if s, ok := raw["time"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			entry.Time = t
		}
	}
	entry.Level, _ = raw["level"].(string)
	entry.Message, _ = raw["msg"].(string)
	if pid, ok := raw["pid"].(float64); ok {
		entry.PID = int(pid)
	}
	entry.User, _ = raw["user"].(string)
	entry.TTY, _ = raw["tty"].(string)
	entry.IP, _ = raw["ip"].(string)

	for k, v := range raw {
		if !identityFields[k] {
			entry.Attrs[k] = v
		}
	}
	return entry, nil
}

// FormatEntry renders an entry on one line for operators:
//
//	[2006-01-02 15:04:05] ERROR pid=42 user=alice tty=/dev/pts/1 ip=n/a :: msg key=value
func FormatEntry(e Entry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s] %s pid=%d user=%s tty=%s ip=%s :: %s",
		e.Time.Local().Format("2006-01-02 15:04:05"), e.Level, e.PID,
		orNA(e.User), orNA(e.TTY), orNA(e.IP), e.Message)

	keys := make([]string, 0, len(e.Attrs))
	for k := range e.Attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, e.Attrs[k])
	}
	return sb.String()
}

func orNA(s string) string {
	if s == "" {
		return "n/a"
	}
	return s
}

package filelock

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Sentinel errors returned by arbiter operations.
var (
	// ErrBusy is returned when another holder has the resource locked.
	ErrBusy = errors.New("resource is locked by another session")

	// ErrNoResource is returned when the resource name is empty.
	ErrNoResource = errors.New("resource name is empty")
)

// Owner identifies the process holding or requesting a lock.
type Owner struct {
	PID  int
	User string
	TTY  string
	IP   string
}

// Descriptor is the content of a lock descriptor file.
type Descriptor struct {
	Owner
	Command  string
	Resource string
}

// IsZero reports whether d carries no owner information, as with a
// descriptor file that exists but is still empty.
func (d Descriptor) IsZero() bool {
	return d == Descriptor{}
}

// Encode renders d in the line-oriented descriptor format.
func (d Descriptor) Encode() []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "pid=%d\n", d.PID)
	fmt.Fprintf(&b, "user=%s\n", oneLine(d.User))
	fmt.Fprintf(&b, "tty=%s\n", oneLine(d.TTY))
	fmt.Fprintf(&b, "ip=%s\n", oneLine(d.IP))
	fmt.Fprintf(&b, "cmd=%s\n", oneLine(d.Command))
	fmt.Fprintf(&b, "file=%s\n", oneLine(d.Resource))
	return b.Bytes()
}

// String returns the encoded descriptor without the trailing newline.
func (d Descriptor) String() string {
	return strings.TrimSuffix(string(d.Encode()), "\n")
}

// ParseDescriptor reads a descriptor written by Encode. Unknown keys and
// malformed lines are ignored; an unparsable pid reads as zero.
func ParseDescriptor(data []byte) Descriptor {
	var d Descriptor
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		key, value, ok := strings.Cut(sc.Text(), "=")
		if !ok {
			continue
		}
		switch key {
		case "pid":
			if pid, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
				d.PID = pid
			}
		case "user":
			d.User = value
		case "tty":
			d.TTY = value
		case "ip":
			d.IP = value
		case "cmd":
			d.Command = value
		case "file":
			d.Resource = value
		}
	}
	return d
}

// BusyError reports a resource that is already locked. It matches ErrBusy
// under errors.Is.
type BusyError struct {
	Resource string
	Owner    Descriptor
}

func (e *BusyError) Error() string {
	if e.Owner.PID > 0 {
		return fmt.Sprintf("%s: %s held by pid %d", ErrBusy, e.Resource, e.Owner.PID)
	}
	return fmt.Sprintf("%s: %s", ErrBusy, e.Resource)
}

// Is reports whether target is ErrBusy.
func (e *BusyError) Is(target error) bool {
	return target == ErrBusy
}

func oneLine(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}

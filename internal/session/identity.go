package session

import (
	"os"
	"os/user"
	"strings"

	"golang.org/x/term"

	"github.com/Iron-Ham/slotshell/internal/filelock"
)

// NotAvailable marks an identity field that could not be determined.
const NotAvailable = "n/a"

// Identity describes who is running a session.
type Identity struct {
	PID  int
	User string
	TTY  string
	IP   string
}

// Current returns the identity of this process: the login name, the
// terminal attached to stdin, and the client address of an SSH login.
func Current() Identity {
	return identityFrom(os.Getpid(), os.Getenv, stdinTTY)
}

func identityFrom(pid int, getenv func(string) string, tty func() string) Identity {
	return Identity{
		PID:  pid,
		User: loginName(getenv),
		TTY:  tty(),
		IP:   sshClientIP(getenv("SSH_CLIENT")),
	}
}

// Owner converts the identity into the form recorded in lock descriptors.
func (id Identity) Owner() filelock.Owner {
	return filelock.Owner{PID: id.PID, User: id.User, TTY: id.TTY, IP: id.IP}
}

func loginName(getenv func(string) string) string {
	for _, key := range []string{"LOGNAME", "USER"} {
		if v := getenv(key); v != "" {
			return v
		}
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "unknown"
}

// sshClientIP extracts the client address from SSH_CLIENT, which has the
// form "<ip> <client port> <server port>".
func sshClientIP(v string) string {
	fields := strings.Fields(v)
	if len(fields) == 0 {
		return NotAvailable
	}
	return fields[0]
}

func stdinTTY() string {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return NotAvailable
	}
	name, err := os.Readlink("/proc/self/fd/0")
	if err != nil || name == "" {
		return NotAvailable
	}
	return name
}

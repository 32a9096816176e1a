package session

import (
	"os"
	"strings"
)

// Fields splits a command line on spaces and tabs.
func Fields(command string) []string {
	return strings.FieldsFunc(command, func(r rune) bool {
		return r == ' ' || r == '\t'
	})
}

// TargetOf returns the resource a command line operates on: the first
// argument after the command word that names an existing file. It returns
// "" when no argument does, in which case the command needs no lock.
func TargetOf(command string) string {
	fields := Fields(command)
	if len(fields) < 2 {
		return ""
	}
	for _, arg := range fields[1:] {
		if _, err := os.Stat(arg); err == nil {
			return arg
		}
	}
	return ""
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

type keyKind int

const (
	kindString keyKind = iota
	kindInt
	kindList
)

// settableKeys are the keys `config set` and the shell's setconf accept.
var settableKeys = map[string]keyKind{
	"shell.program_name":  kindString,
	"shell.max_instances": kindInt,
	"shell.shell":         kindString,
	"paths.state_dir":     kindString,
	"paths.log_dir":       kindString,
	"paths.lock_dir":      kindString,
	"remote.port":         kindInt,
	"remote.allowed":      kindList,
	"remote.metrics_addr": kindString,
	"logging.level":       kindString,
	"logging.max_size_mb": kindInt,
	"logging.max_backups": kindInt,
}

// legacyKeys maps the flat KEY=value names of older config files onto
// their current dotted keys.
var legacyKeys = map[string]string{
	"PROGRAM_NAME":   "shell.program_name",
	"MAX_INSTANCES":  "shell.max_instances",
	"LOG_DIR":        "paths.log_dir",
	"LOCK_DIR":       "paths.lock_dir",
	"REMOTE_PORT":    "remote.port",
	"REMOTE_ALLOWED": "remote.allowed",
}

// SettableKeys returns the keys Set accepts, sorted.
func SettableKeys() []string {
	keys := make([]string, 0, len(settableKeys))
	for k := range settableKeys {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// CanonicalKey returns the dotted form of key, accepting legacy names.
func CanonicalKey(key string) (string, bool) {
	key = strings.TrimSpace(key)
	if alias, ok := legacyKeys[strings.ToUpper(key)]; ok {
		return alias, true
	}
	key = strings.ToLower(key)
	_, ok := settableKeys[key]
	return key, ok
}

// ParseValue converts a textual value for key into the type the
// configuration expects. Lists are comma separated.
func ParseValue(key, value string) (string, any, error) {
	canonical, ok := CanonicalKey(key)
	if !ok {
		return "", nil, fmt.Errorf("unknown configuration key: %s", key)
	}
	value = strings.TrimSpace(value)

	switch settableKeys[canonical] {
	case kindInt:
		n, err := strconv.Atoi(value)
		if err != nil {
			return "", nil, fmt.Errorf("invalid value for %s: expected integer", canonical)
		}
		return canonical, n, nil
	case kindList:
		items := []string{}
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		return canonical, items, nil
	default:
		return canonical, value, nil
	}
}

// Set validates and stores key=value in v, then writes v to its config
// file, or to ConfigFile if v was not loaded from one. It returns the
// canonical key and the file written.
func Set(v *viper.Viper, key, value string) (canonical, file string, err error) {
	canonical, typed, err := ParseValue(key, value)
	if err != nil {
		return "", "", err
	}

	previous := v.Get(canonical)
	v.Set(canonical, typed)
	if _, err := LoadFrom(v); err != nil {
		v.Set(canonical, previous)
		return "", "", err
	}

	file = v.ConfigFileUsed()
	if file == "" {
		file = ConfigFile()
	}
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := v.WriteConfigAs(file); err != nil {
		return "", "", fmt.Errorf("failed to write config file: %w", err)
	}
	return canonical, file, nil
}

package coord

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

const (
	stateFile = "state.json"
	lockFile  = "state.lock"

	// defaultPollInterval is how long a blocked transaction waits between
	// attempts to take the coordination lock.
	defaultPollInterval = 5 * time.Millisecond
)

// ErrUnavailable is returned when the shared state cannot be created or
// attached. It is fatal for the caller's ability to run gated operations.
var ErrUnavailable = errors.New("coordination state unavailable")

// Store provides transactional access to the shared coordination state.
// It is safe for concurrent use by multiple goroutines and processes.
type Store struct {
	dir          string
	mu           sync.Mutex
	pollInterval time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithPollInterval sets the retry interval used while waiting for the
// coordination lock. Zero or negative values are ignored.
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

// Open attaches to the coordination state in dir, creating the directory
// and lock file if needed.
func Open(dir string, opts ...Option) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: state directory is empty", ErrUnavailable)
	}
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return nil, fmt.Errorf("%w: create state directory: %v", ErrUnavailable, err)
	}
	s := &Store{dir: dir, pollInterval: defaultPollInterval}
	for _, opt := range opts {
		opt(s)
	}

	f, err := s.openLock()
	if err != nil {
		return nil, err
	}
	_ = f.Close()
	return s, nil
}

// Dir returns the state directory.
func (s *Store) Dir() string {
	return s.dir
}

// Update runs fn against the current state while holding the coordination
// lock. The state is written back only if fn returns nil; fn's error is
// returned unchanged.
func (s *Store) Update(ctx context.Context, fn func(*State) error) error {
	return s.transact(ctx, func(st *State) (bool, error) {
		if err := fn(st); err != nil {
			return false, err
		}
		return true, nil
	})
}

// View runs fn against a copy of the current state while holding the
// coordination lock. Nothing is written back.
func (s *Store) View(ctx context.Context, fn func(State) error) error {
	return s.transact(ctx, func(st *State) (bool, error) {
		return false, fn(st.clone())
	})
}

// Reset removes the shared state and its lock file. Processes still
// attached recreate both on their next transaction.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range []string{stateFile, lockFile} {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", name, err)
		}
	}
	return nil
}

// transact serializes fn under both the in-process mutex and the
// cross-process flock.
func (s *Store) transact(ctx context.Context, fn func(*State) (bool, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer func() {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		_ = f.Close()
	}()

	st, err := s.load()
	if err != nil {
		return err
	}

	write, err := fn(&st)
	if err != nil {
		return err
	}
	if !write {
		return nil
	}
	st.normalize()
	return s.save(st)
}

func (s *Store) openLock() (*os.File, error) {
	if err := os.MkdirAll(s.dir, 0o777); err != nil {
		return nil, fmt.Errorf("%w: create state directory: %v", ErrUnavailable, err)
	}
	f, err := os.OpenFile(filepath.Join(s.dir, lockFile), os.O_RDWR|os.O_CREATE, 0o666)
	if err != nil {
		return nil, fmt.Errorf("%w: open lock file: %v", ErrUnavailable, err)
	}
	return f, nil
}

// lock takes the coordination lock, polling so that ctx can interrupt the
// wait. The lock file is reopened on every attempt: a Reset from another
// process may have unlinked the one held open.
func (s *Store) lock(ctx context.Context) (*os.File, error) {
	for {
		f, err := s.openLock()
		if err != nil {
			return nil, err
		}
		held, err := s.tryLock(f)
		if err != nil {
			_ = f.Close()
			return nil, err
		}
		if held {
			return f, nil
		}
		_ = f.Close()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
}

// tryLock takes the flock on f without blocking. It reports false when the
// lock is busy or when f no longer names the lock file, in which case the
// flock is dropped again.
func (s *Store) tryLock(f *os.File) (bool, error) {
	err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: lock: %v", ErrUnavailable, err)
	}
	if !stillLinked(f, filepath.Join(s.dir, lockFile)) {
		_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
		return false, nil
	}
	return true, nil
}

// stillLinked reports whether f is the file currently at path.
func stillLinked(f *os.File, path string) bool {
	held, err := f.Stat()
	if err != nil {
		return false
	}
	current, err := os.Stat(path)
	if err != nil {
		return false
	}
	return os.SameFile(held, current)
}

// load reads the record. A missing or unreadable blob yields an empty
// state rather than an error.
func (s *Store) load() (State, error) {
	var st State

	data, err := os.ReadFile(filepath.Join(s.dir, stateFile))
	if err != nil {
		if os.IsNotExist(err) {
			return st, nil
		}
		return st, fmt.Errorf("%w: read state: %v", ErrUnavailable, err)
	}
	if len(data) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return State{}, nil
	}
	st.normalize()
	return st, nil
}

// save replaces the record atomically.
func (s *Store) save(st State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "state-*.json")
	if err != nil {
		return fmt.Errorf("%w: create temp state: %v", ErrUnavailable, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write state: %w", err)
	}
	if err := tmp.Chmod(0o666); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("chmod state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close state: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, stateFile)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace state: %w", err)
	}
	return nil
}

package filelock

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/Iron-Ham/slotshell/internal/logging"
	"github.com/Iron-Ham/slotshell/internal/metrics"
)

// descriptorExt is appended to a resource key to form its descriptor file.
const descriptorExt = ".lock"

// maxLockAttempts bounds retries when a releaser unlinks the descriptor
// between our open and flock.
const maxLockAttempts = 8

// KeyFor derives the flat descriptor key for a resource path.
func KeyFor(resource string) string {
	return strings.ReplaceAll(resource, "/", "_")
}

// Arbiter hands out exclusive resource locks backed by descriptor files in
// one directory.
type Arbiter struct {
	dir     string
	logger  *logging.Logger
	metrics *metrics.Collector
}

// Option configures an Arbiter.
type Option func(*Arbiter)

// WithLogger sets the logger for acquisitions and releases.
func WithLogger(l *logging.Logger) Option {
	return func(a *Arbiter) {
		if l != nil {
			a.logger = l
		}
	}
}

// WithMetrics sets the collector that counts acquisition results.
func WithMetrics(m *metrics.Collector) Option {
	return func(a *Arbiter) {
		a.metrics = m
	}
}

// New creates an Arbiter storing descriptors in dir, creating it if needed.
func New(dir string, opts ...Option) (*Arbiter, error) {
	if dir == "" {
		return nil, errors.New("lock directory is empty")
	}
	if err := os.MkdirAll(dir, 0o777); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	a := &Arbiter{dir: dir, logger: logging.NopLogger()}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Dir returns the descriptor directory.
func (a *Arbiter) Dir() string {
	return a.dir
}

// Path returns the descriptor file for resource.
func (a *Arbiter) Path(resource string) string {
	return filepath.Join(a.dir, KeyFor(resource)+descriptorExt)
}

// Acquire takes the exclusive lock on resource without waiting and records
// owner and command in its descriptor. If another holder has the lock it
// returns a *BusyError carrying that holder's descriptor.
func (a *Arbiter) Acquire(resource, command string, owner Owner) (*Handle, error) {
	h, err := a.acquire(resource, command, owner)
	switch {
	case err == nil:
		a.metrics.LockAcquisition(metrics.ResultAcquired)
		a.logger.Debug("resource lock acquired", "resource", resource, "pid", owner.PID)
	case errors.Is(err, ErrBusy):
		a.metrics.LockAcquisition(metrics.ResultBusy)
	default:
		a.metrics.LockAcquisition(metrics.ResultError)
		a.logger.Error("resource lock failed", "resource", resource, "error", err)
	}
	return h, err
}

func (a *Arbiter) acquire(resource, command string, owner Owner) (*Handle, error) {
	if resource == "" {
		return nil, ErrNoResource
	}
	path := a.Path(resource)

	for range maxLockAttempts {
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o666)
		if err != nil {
			return nil, fmt.Errorf("open lock descriptor: %w", err)
		}

		if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
			if errors.Is(err, unix.EWOULDBLOCK) {
				desc := readDescriptor(f)
				_ = f.Close()
				return nil, &BusyError{Resource: resource, Owner: desc}
			}
			_ = f.Close()
			return nil, fmt.Errorf("lock %s: %w", resource, err)
		}

		if !stillLinked(f, path) {
			_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
			_ = f.Close()
			continue
		}

		desc := Descriptor{Owner: owner, Command: command, Resource: resource}
		if err := writeDescriptor(f, desc); err != nil {
			_ = os.Remove(path)
			_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
			_ = f.Close()
			return nil, err
		}
		return &Handle{file: f, path: path, desc: desc, logger: a.logger}, nil
	}
	return nil, fmt.Errorf("lock %s: descriptor kept changing", resource)
}

// Inspect reads the descriptor for resource without locking. A missing
// descriptor reports found as false. An existing but empty descriptor
// reports found with a zero Descriptor.
func (a *Arbiter) Inspect(resource string) (desc Descriptor, found bool, err error) {
	if resource == "" {
		return Descriptor{}, false, ErrNoResource
	}
	data, err := os.ReadFile(a.Path(resource))
	if err != nil {
		if os.IsNotExist(err) {
			return Descriptor{}, false, nil
		}
		return Descriptor{}, false, fmt.Errorf("read lock descriptor: %w", err)
	}
	return ParseDescriptor(data), true, nil
}

// Lock is a descriptor found in the lock directory.
type Lock struct {
	Key        string
	Descriptor Descriptor
}

// List returns the descriptors in the lock directory, sorted by key. It
// does not touch the locks themselves, so a descriptor left by a holder
// that died is listed until the resource is acquired again.
func (a *Arbiter) List() ([]Lock, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, fmt.Errorf("read lock directory: %w", err)
	}
	var locks []Lock
	for _, e := range entries {
		key, ok := strings.CutSuffix(e.Name(), descriptorExt)
		if !ok || e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(a.dir, e.Name()))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read lock descriptor: %w", err)
		}
		locks = append(locks, Lock{Key: key, Descriptor: ParseDescriptor(data)})
	}
	return locks, nil
}

// Handle is a held resource lock.
type Handle struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	desc     Descriptor
	logger   *logging.Logger
	released bool
}

// Descriptor returns what was recorded for this lock.
func (h *Handle) Descriptor() Descriptor {
	return h.desc
}

// Release deletes the descriptor and drops the lock. Calling it on a nil or
// already released handle is a no-op.
func (h *Handle) Release() error {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.released {
		return nil
	}
	h.released = true

	// Unlink while still holding the lock so a newer holder's file is never
	// removed.
	var errs []error
	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		errs = append(errs, fmt.Errorf("remove lock descriptor: %w", err))
	}
	if err := unix.Flock(int(h.file.Fd()), unix.LOCK_UN); err != nil {
		errs = append(errs, fmt.Errorf("unlock: %w", err))
	}
	if err := h.file.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close lock descriptor: %w", err))
	}
	h.logger.Debug("resource lock released", "resource", h.desc.Resource)
	return errors.Join(errs...)
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

func readDescriptor(f *os.File) Descriptor {
	data, err := io.ReadAll(io.NewSectionReader(f, 0, 1<<16))
	if err != nil {
		return Descriptor{}
	}
	return ParseDescriptor(data)
}

func writeDescriptor(f *os.File, d Descriptor) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncate lock descriptor: %w", err)
	}
	if _, err := f.WriteAt(d.Encode(), 0); err != nil {
		return fmt.Errorf("write lock descriptor: %w", err)
	}
	return nil
}

package admission

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/Iron-Ham/slotshell/internal/coord"
	"github.com/Iron-Ham/slotshell/internal/liveness"
	"github.com/Iron-Ham/slotshell/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// deathTable is a liveness table tests can flip while controllers use it.
type deathTable struct {
	mu   sync.Mutex
	dead map[int]bool
}

func (d *deathTable) kill(pid int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dead == nil {
		d.dead = make(map[int]bool)
	}
	d.dead[pid] = true
}

func (d *deathTable) Probe(pid int) liveness.Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dead[pid] {
		return liveness.Dead
	}
	return liveness.Alive
}

func newController(t *testing.T, dir string, capacity int, prober liveness.Prober) *Controller {
	t.Helper()
	store, err := coord.Open(dir)
	if err != nil {
		t.Fatalf("coord.Open() error = %v", err)
	}
	return New(store, capacity, WithProber(prober))
}

func TestTryEnter_ScenarioA(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	deaths := &deathTable{}

	// Each simulated process attaches through its own store.
	procs := make([]*Controller, 4)
	for i := range procs {
		procs[i] = newController(t, dir, 3, deaths)
	}

	for i := 0; i < 3; i++ {
		res, err := procs[i].TryEnter(ctx, 100+i)
		if err != nil {
			t.Fatalf("TryEnter(%d) error = %v", 100+i, err)
		}
		if res != Admitted {
			t.Fatalf("TryEnter(%d) = %v, want admitted", 100+i, res)
		}
	}

	res, err := procs[3].TryEnter(ctx, 103)
	if err != nil {
		t.Fatalf("TryEnter(103) error = %v", err)
	}
	if res != Rejected {
		t.Fatalf("fourth TryEnter = %v, want rejected", res)
	}

	if err := procs[1].Leave(ctx, 101); err != nil {
		t.Fatalf("Leave(101) error = %v", err)
	}

	res, err = procs[3].TryEnter(ctx, 103)
	if err != nil {
		t.Fatalf("TryEnter(103) error = %v", err)
	}
	if res != Admitted {
		t.Fatalf("TryEnter after leave = %v, want admitted", res)
	}

	active, err := procs[0].Active(ctx)
	if err != nil {
		t.Fatalf("Active() error = %v", err)
	}
	if want := []int{100, 102, 103}; !slices.Equal(active, want) {
		t.Errorf("Active() = %v, want %v", active, want)
	}
}

func TestTryEnter_Idempotent(t *testing.T) {
	ctx := context.Background()
	c := newController(t, t.TempDir(), 2, &deathTable{})

	for i := 0; i < 3; i++ {
		res, err := c.TryEnter(ctx, 42)
		if err != nil || res != Admitted {
			t.Fatalf("TryEnter(42) #%d = %v, %v", i, res, err)
		}
	}

	active, _ := c.Active(ctx)
	if !slices.Equal(active, []int{42}) {
		t.Errorf("Active() = %v, want [42]", active)
	}
}

func TestTryEnter_Capacity(t *testing.T) {
	tests := []struct {
		name     string
		capacity int
		want     int
	}{
		{"zero admits nobody", 0, 0},
		{"negative admits nobody", -5, 0},
		{"small", 2, 2},
		{"clamped to registry size", coord.MaxSessions + 50, coord.MaxSessions},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			c := newController(t, t.TempDir(), tt.capacity, &deathTable{})
			if got := c.Capacity(); got != tt.want {
				t.Errorf("Capacity() = %d, want %d", got, tt.want)
			}

			admitted := 0
			for pid := 1; pid <= coord.MaxSessions+10; pid++ {
				res, err := c.TryEnter(ctx, pid)
				if err != nil {
					t.Fatalf("TryEnter(%d) error = %v", pid, err)
				}
				if res == Admitted {
					admitted++
				}
			}
			if admitted != tt.want {
				t.Errorf("admitted %d sessions, want %d", admitted, tt.want)
			}
		})
	}
}

func TestLeave_RemovesOnlyCaller(t *testing.T) {
	ctx := context.Background()
	c := newController(t, t.TempDir(), 5, &deathTable{})

	for _, pid := range []int{10, 20, 30, 40} {
		if _, err := c.TryEnter(ctx, pid); err != nil {
			t.Fatalf("TryEnter(%d) error = %v", pid, err)
		}
	}

	if err := c.Leave(ctx, 20); err != nil {
		t.Fatalf("Leave(20) error = %v", err)
	}
	// Leaving without having entered is a no-op.
	if err := c.Leave(ctx, 99); err != nil {
		t.Fatalf("Leave(99) error = %v", err)
	}

	active, _ := c.Active(ctx)
	if want := []int{10, 30, 40}; !slices.Equal(active, want) {
		t.Errorf("Active() = %v, want %v", active, want)
	}
}

func TestTryEnter_ReclaimsDeadSlot(t *testing.T) {
	ctx := context.Background()
	deaths := &deathTable{}
	c := newController(t, t.TempDir(), 2, deaths)

	for _, pid := range []int{1, 2} {
		if res, _ := c.TryEnter(ctx, pid); res != Admitted {
			t.Fatalf("TryEnter(%d) = %v, want admitted", pid, res)
		}
	}
	if res, _ := c.TryEnter(ctx, 3); res != Rejected {
		t.Fatalf("TryEnter(3) with full pool = %v, want rejected", res)
	}

	deaths.kill(1)

	res, err := c.TryEnter(ctx, 3)
	if err != nil {
		t.Fatalf("TryEnter(3) error = %v", err)
	}
	if res != Admitted {
		t.Fatalf("TryEnter(3) after death = %v, want admitted", res)
	}

	active, _ := c.Active(ctx)
	if want := []int{2, 3}; !slices.Equal(active, want) {
		t.Errorf("Active() = %v, want %v", active, want)
	}
}

func TestTryEnter_UnknownCountsAsAlive(t *testing.T) {
	ctx := context.Background()
	prober := liveness.StaticProber{Default: liveness.Unknown}
	c := newController(t, t.TempDir(), 1, prober)

	if res, _ := c.TryEnter(ctx, 1); res != Admitted {
		t.Fatalf("TryEnter(1) = %v, want admitted", res)
	}
	if res, _ := c.TryEnter(ctx, 2); res != Rejected {
		t.Errorf("TryEnter(2) = %v, want rejected while pid 1 is unknown", res)
	}
}

func TestTryEnter_ConcurrentNeverExceedsCapacity(t *testing.T) {
	const (
		capacity = 5
		procs    = 32
	)
	ctx := context.Background()
	dir := t.TempDir()
	deaths := &deathTable{}

	var (
		wg      sync.WaitGroup
		entered atomic.Int32
	)
	for i := 0; i < procs; i++ {
		c := newController(t, dir, capacity, deaths)
		wg.Add(1)
		go func(pid int) {
			defer wg.Done()
			res, err := c.TryEnter(ctx, pid)
			if err != nil {
				t.Errorf("TryEnter(%d) error = %v", pid, err)
				return
			}
			if res == Admitted {
				entered.Add(1)
			}
		}(1000 + i)
	}
	wg.Wait()

	if got := entered.Load(); got != capacity {
		t.Errorf("%d sessions admitted concurrently, want %d", got, capacity)
	}
}

func TestTryEnter_Unavailable(t *testing.T) {
	dir := t.TempDir()
	c := newController(t, dir, 3, &deathTable{})

	// Replace the state directory with a regular file so the lock file
	// can no longer be opened.
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dir, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Remove(dir) })

	res, err := c.TryEnter(context.Background(), 1)
	if !errors.Is(err, coord.ErrUnavailable) {
		t.Fatalf("TryEnter() error = %v, want ErrUnavailable", err)
	}
	if res != Rejected {
		t.Errorf("TryEnter() result = %v, want rejected on error", res)
	}
}

func TestTryEnter_Metrics(t *testing.T) {
	ctx := context.Background()
	store, err := coord.Open(filepath.Join(t.TempDir(), "state"))
	if err != nil {
		t.Fatal(err)
	}
	m := metrics.NewCollector()
	c := New(store, 1, WithProber(&deathTable{}), WithMetrics(m))

	_, _ = c.TryEnter(ctx, 1)
	_, _ = c.TryEnter(ctx, 2)
	_, _ = c.TryEnter(ctx, 3)

	if n := testutil.CollectAndCount(m, "slotshell_admissions_total"); n != 2 {
		t.Errorf("admissions_total series = %d, want 2", n)
	}
}

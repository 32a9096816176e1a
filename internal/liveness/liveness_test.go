package liveness

import (
	"os"
	"os/exec"
	"testing"
)

func TestSignalProber_Self(t *testing.T) {
	if got := (SignalProber{}).Probe(os.Getpid()); got != Alive {
		t.Errorf("Probe(self) = %v, want %v", got, Alive)
	}
}

func TestSignalProber_NonPositivePID(t *testing.T) {
	for _, pid := range []int{0, -1} {
		if got := (SignalProber{}).Probe(pid); got != Dead {
			t.Errorf("Probe(%d) = %v, want %v", pid, got, Dead)
		}
	}
}

func TestSignalProber_ExitedProcess(t *testing.T) {
	cmd := exec.Command("/bin/sh", "-c", "exit 0")
	if err := cmd.Run(); err != nil {
		t.Fatalf("run helper: %v", err)
	}
	pid := cmd.Process.Pid

	// The child has been reaped by Run, so the pid is free unless the
	// kernel recycled it in the meantime.
	if got := (SignalProber{}).Probe(pid); got == Unknown {
		t.Errorf("Probe(reaped child) = %v, want alive or dead", got)
	}
}

func TestStaticProber(t *testing.T) {
	p := StaticProber{
		Statuses: map[int]Status{10: Alive, 20: Dead},
		Default:  Unknown,
	}

	tests := []struct {
		pid  int
		want Status
	}{
		{10, Alive},
		{20, Dead},
		{30, Unknown},
	}
	for _, tt := range tests {
		if got := p.Probe(tt.pid); got != tt.want {
			t.Errorf("Probe(%d) = %v, want %v", tt.pid, got, tt.want)
		}
	}
}

func TestProbeFunc(t *testing.T) {
	called := 0
	p := ProbeFunc(func(pid int) Status {
		called = pid
		return Dead
	})
	if got := p.Probe(42); got != Dead {
		t.Errorf("Probe() = %v, want %v", got, Dead)
	}
	if called != 42 {
		t.Errorf("called with %d, want 42", called)
	}
}

func TestIsGone(t *testing.T) {
	tests := []struct {
		status Status
		want   bool
	}{
		{Alive, false},
		{Dead, true},
		{Unknown, false},
	}
	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			if got := IsGone(tt.status); got != tt.want {
				t.Errorf("IsGone(%v) = %v, want %v", tt.status, got, tt.want)
			}
		})
	}
}

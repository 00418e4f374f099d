package sweeper

import (
	"sync/atomic"
	"testing"
	"time"
)

type countingPruner struct {
	calls int32
}

func (p *countingPruner) PruneExpired(now time.Time) int {
	atomic.AddInt32(&p.calls, 1)
	return 0
}

type panickingPruner struct {
	calls int32
}

func (p *panickingPruner) PruneExpired(now time.Time) int {
	atomic.AddInt32(&p.calls, 1)
	panic("boom")
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestSweeperTicks(t *testing.T) {
	p := &countingPruner{}
	s := New(p, 10*time.Millisecond)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	waitFor(t, 2*time.Second, func() bool { return atomic.LoadInt32(&p.calls) >= 2 })
	if err := s.StopAndWait(); err != nil {
		t.Fatal(err)
	}
	if s.State() != StateIdle {
		t.Fatalf("sweeper must end idle, got %s", s.State())
	}
}

func TestSweeperSurvivesPanic(t *testing.T) {
	p := &panickingPruner{}
	s := New(p, 10*time.Millisecond)
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	// one failed sweep never stops the schedule
	waitFor(t, 2*time.Second, func() bool { return atomic.LoadInt32(&p.calls) >= 3 })
	if err := s.StopAndWait(); err != nil {
		t.Fatal(err)
	}
}

type blockingPruner struct {
	entered chan bool
	release chan bool
}

func (p *blockingPruner) PruneExpired(now time.Time) int {
	p.entered <- true
	<-p.release
	return 0
}

func TestSweeperStateTransitions(t *testing.T) {
	p := &blockingPruner{entered: make(chan bool), release: make(chan bool)}
	s := New(p, 10*time.Millisecond)
	if s.State() != StateIdle {
		t.Fatal("sweeper must start idle")
	}
	if err := s.Start(); err != nil {
		t.Fatal(err)
	}
	<-p.entered
	if s.State() != StateSweeping {
		t.Fatalf("expected sweeping state, got %s", s.State())
	}
	// drain later ticks so neither the idle check nor shutdown can hang on
	// the blocked pruner
	go func() {
		for {
			select {
			case <-p.entered:
				p.release <- true
			case <-time.After(2 * time.Second):
				return
			}
		}
	}()
	p.release <- true
	waitFor(t, 2*time.Second, func() bool { return s.State() == StateIdle })
	if err := s.StopAndWait(); err != nil {
		t.Fatal(err)
	}
}

package pipeline

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestStrandSerializesWork(t *testing.T) {
	s := NewStrand()
	s.Start()
	defer s.Stop()

	var active, maxActive, count atomic.Int32
	for i := 0; i < 100; i++ {
		s.Post(func() {
			n := active.Add(1)
			if n > maxActive.Load() {
				maxActive.Store(n)
			}
			time.Sleep(time.Microsecond)
			active.Add(-1)
			count.Add(1)
		})
	}

	s.Dispatch(func() {})
	if got := count.Load(); got != 100 {
		t.Fatalf("ran %d tasks, want 100", got)
	}
	if maxActive.Load() != 1 {
		t.Errorf("max concurrent tasks = %d, want 1", maxActive.Load())
	}
}

func TestStrandDispatchInlineWhenStopped(t *testing.T) {
	s := NewStrand()
	ran := false
	s.Dispatch(func() { ran = true })
	if !ran {
		t.Error("dispatch should run inline when the strand is not started")
	}
}

func TestStrandDispatchWaits(t *testing.T) {
	s := NewStrand()
	s.Start()
	defer s.Stop()

	done := false
	s.Dispatch(func() { done = true })
	if !done {
		t.Error("dispatch must not return before the task completes")
	}
}

func TestStrandAfterRunsOnStrand(t *testing.T) {
	s := NewStrand()
	s.Start()
	defer s.Stop()

	ch := make(chan struct{})
	s.After(10*time.Millisecond, func() { close(ch) })

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timer callback did not fire")
	}
}

func TestStrandStopDrains(t *testing.T) {
	s := NewStrand()
	s.Start()

	var count atomic.Int32
	for i := 0; i < 10; i++ {
		s.Post(func() { count.Add(1) })
	}
	s.Stop()

	if got := count.Load(); got != 10 {
		t.Errorf("drained %d tasks, want 10", got)
	}
}

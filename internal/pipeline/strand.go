// Package pipeline implements the transform graph: guarded transforms
// linked into a DAG, the pipeline context with its named shared states,
// and the strand that serializes all pipeline work.
package pipeline

import (
	"sync"
	"time"
)

// Strand is a serializing executor: posted work runs one task at a time on
// a single goroutine. Timer callbacks re-post onto the strand so every
// transform invocation, graph mutation and delivery is sequentially
// consistent.
type Strand struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	running bool
	stopped bool
	done    chan struct{}
}

func NewStrand() *Strand {
	s := &Strand{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Start launches the worker goroutine. Idempotent.
func (s *Strand) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopped = false
	s.done = make(chan struct{})
	s.mu.Unlock()
	go s.run()
}

func (s *Strand) run() {
	defer close(s.done)
	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.stopped {
			s.cond.Wait()
		}
		if s.stopped && len(s.queue) == 0 {
			s.running = false
			s.mu.Unlock()
			return
		}
		task := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()
		task()
	}
}

// Running reports whether the worker goroutine is active.
func (s *Strand) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Post enqueues work for asynchronous execution. Work posted after Stop is
// dropped.
func (s *Strand) Post(task func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped && !s.running {
		return
	}
	s.queue = append(s.queue, task)
	s.cond.Signal()
}

// Dispatch runs the task inline when the strand is not running, otherwise
// posts it and waits for completion. Used by clear() to guarantee no transform is
// executing when it returns.
func (s *Strand) Dispatch(task func()) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		task()
		return
	}
	s.mu.Unlock()

	doneCh := make(chan struct{})
	s.Post(func() {
		defer close(doneCh)
		task()
	})
	<-doneCh
}

// After arms a timer that posts the callback onto the strand when it
// fires. The returned timer cancels with Stop.
func (s *Strand) After(d time.Duration, task func()) *time.Timer {
	return time.AfterFunc(d, func() {
		s.Post(task)
	})
}

// Stop drains outstanding work and stops the worker. Idempotent.
func (s *Strand) Stop() {
	s.mu.Lock()
	if !s.running {
		s.stopped = true
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.cond.Signal()
	done := s.done
	s.mu.Unlock()
	<-done
}

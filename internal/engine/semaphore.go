package engine

import (
	"context"
	"sync"
)

// dynSemaphore is a resizable counting semaphore bounding the worker pool.
// A plain buffered channel can't change capacity once created, so a config
// hot-reload that adjusts max_workers needs this instead.
type dynSemaphore struct {
	mu    sync.Mutex
	cond  *sync.Cond
	limit int
	inUse int
}

func newDynSemaphore(limit int) *dynSemaphore {
	if limit <= 0 {
		limit = 1
	}
	s := &dynSemaphore{limit: limit}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// acquire blocks until a slot is free or ctx is done, returning false in the
// latter case.
func (s *dynSemaphore) acquire(ctx context.Context) bool {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.mu.Lock()
			s.cond.Broadcast()
			s.mu.Unlock()
		case <-stop:
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.inUse >= s.limit {
		if ctx.Err() != nil {
			return false
		}
		s.cond.Wait()
	}
	if ctx.Err() != nil {
		return false
	}
	s.inUse++
	return true
}

func (s *dynSemaphore) release() {
	s.mu.Lock()
	s.inUse--
	s.cond.Broadcast()
	s.mu.Unlock()
}

// resize changes the pool's capacity; a larger limit immediately wakes
// blocked acquirers, a smaller one simply lets the pool drain down to it.
func (s *dynSemaphore) resize(limit int) {
	if limit <= 0 {
		return
	}
	s.mu.Lock()
	s.limit = limit
	s.cond.Broadcast()
	s.mu.Unlock()
}

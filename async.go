package probez

import (
	"sync"
	"sync/atomic"
)

// StopArgs is passed to Handler.OnStop.
type StopArgs struct {
	mu      sync.Mutex
	stopper *AsyncStopper
}

// Postpone defers completion of the stop until the returned stopper's
// StopDone is called. It must be called from within OnStop; calling it again
// returns the same stopper.
func (a *StopArgs) Postpone() *AsyncStopper {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopper == nil {
		a.stopper = &AsyncStopper{done: make(chan struct{})}
	}
	return a.stopper
}

func (a *StopArgs) postponed() *AsyncStopper {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopper
}

// AsyncStopper completes a postponed stop. Safe to use from any goroutine.
type AsyncStopper struct {
	done      chan struct{}
	completed atomic.Bool
}

// StopDone completes the stop. Calling it twice panics.
func (s *AsyncStopper) StopDone() {
	if !s.completed.CompareAndSwap(false, true) {
		panic("probez: StopDone called twice")
	}
	close(s.done)
}

// FlushArgs is passed to Handler.OnFlush.
type FlushArgs struct {
	mu      sync.Mutex
	flusher *AsyncFlusher
	done    func()
}

// Postpone defers completion of the flush until the returned flusher's
// FlushDone is called. It must be called from within OnFlush.
func (a *FlushArgs) Postpone() *AsyncFlusher {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.flusher == nil {
		a.flusher = &AsyncFlusher{done: a.done}
	}
	return a.flusher
}

func (a *FlushArgs) postponed() *AsyncFlusher {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.flusher
}

// AsyncFlusher completes a postponed flush. Safe to use from any goroutine.
// Completing it after the flush timed out is allowed and has no effect.
type AsyncFlusher struct {
	done      func()
	completed atomic.Bool
}

// FlushDone completes the flush. Calling it twice panics.
func (f *AsyncFlusher) FlushDone() {
	if !f.completed.CompareAndSwap(false, true) {
		panic("probez: FlushDone called twice")
	}
	if f.done != nil {
		f.done()
	}
}

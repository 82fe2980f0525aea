// Package availability keeps the per-driver "deactivate at T" timers behind
// the heartbeat protocol. It owns only process-local timer handles; whether a
// fired timer actually demotes a driver is decided by the expire callback
// against persisted state.
package availability

import (
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

var ErrStopped = errors.New("availability scheduler stopped")

// ExpireFunc is invoked on its own goroutine when a driver's current timer
// elapses without being re-armed or disarmed.
type ExpireFunc func(driverID string)

type Scheduler struct {
	clock  clock.Clock
	window time.Duration
	expire ExpireFunc

	mu      sync.Mutex
	pending map[string]*handle
	stopped bool
}

type handle struct {
	timer    *clock.Timer
	deadline time.Time
}

func New(clk clock.Clock, window time.Duration, expire ExpireFunc) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	return &Scheduler{
		clock:   clk,
		window:  window,
		expire:  expire,
		pending: make(map[string]*handle),
	}
}

func (s *Scheduler) Window() time.Duration {
	return s.window
}

// Arm replaces any pending timer for driverID with one that elapses a full
// window from now, and returns the new deadline.
func (s *Scheduler) Arm(driverID string) (time.Time, error) {
	if s.window <= 0 {
		return time.Time{}, errors.New("availability window must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return time.Time{}, ErrStopped
	}
	if old, ok := s.pending[driverID]; ok {
		// Stop may lose the race with an already-firing timer; fire drops
		// handles that are no longer current.
		old.timer.Stop()
	}
	h := &handle{deadline: s.clock.Now().Add(s.window)}
	h.timer = s.clock.AfterFunc(s.window, func() { s.fire(driverID, h) })
	s.pending[driverID] = h
	return h.deadline, nil
}

// Disarm drops the pending timer for driverID, if any.
func (s *Scheduler) Disarm(driverID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.pending[driverID]
	if !ok {
		return false
	}
	h.timer.Stop()
	delete(s.pending, driverID)
	return true
}

// Deadline returns when the pending timer for driverID elapses.
func (s *Scheduler) Deadline(driverID string) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.pending[driverID]
	if !ok {
		return time.Time{}, false
	}
	return h.deadline, true
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stop cancels every pending timer. Later Arm calls fail with ErrStopped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for id, h := range s.pending {
		h.timer.Stop()
		delete(s.pending, id)
	}
}

func (s *Scheduler) fire(driverID string, h *handle) {
	s.mu.Lock()
	current, ok := s.pending[driverID]
	if s.stopped || !ok || current != h {
		s.mu.Unlock()
		return
	}
	delete(s.pending, driverID)
	s.mu.Unlock()

	if s.expire != nil {
		s.expire(driverID)
	}
}

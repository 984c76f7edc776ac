// Package autosave debounces bursts of entity mutations into single
// persisted writes and stops writing entirely after repeated failures
// until it is manually re-enabled.
package autosave

import (
	"errors"
	"sync"
	"time"

	"github.com/cesargomez89/chordbook/internal/domain"
	"github.com/cesargomez89/chordbook/internal/logger"
)

// ErrCircuitOpen is returned by ForceWrite while the scheduler is
// disabled after repeated failures.
var ErrCircuitOpen = errors.New("autosave: disabled after repeated failures")

// WriteFunc persists a song set. The scheduler counts its failures.
type WriteFunc func(songs []*domain.Song) error

// Status is the read-only introspection surface for UI/diagnostics.
type Status struct {
	Disabled    bool `json:"disabled"`
	Failures    int  `json:"failures"`
	MaxFailures int  `json:"maxFailures"`
	Pending     bool `json:"pending"`
}

// Scheduler is the auto-save state machine. It is constructed once at the
// composition root and injected wherever writes are scheduled; there is
// no package-level state. States: idle (no timer), pending write (timer
// armed), circuit open (disabled is set).
//
// The mutex is held across the whole write, which guarantees at most one
// in-flight primary write: a scheduled, forced, or immediate write waits
// for the running one to finish rather than racing it.
type Scheduler struct {
	mu          sync.Mutex
	write       WriteFunc
	delay       time.Duration
	maxFailures int
	log         *logger.Logger

	timer    *time.Timer
	pending  []*domain.Song
	gen      int
	failures int
	disabled bool
}

func NewScheduler(write WriteFunc, delay time.Duration, maxFailures int, log *logger.Logger) *Scheduler {
	return &Scheduler{
		write:       write,
		delay:       delay,
		maxFailures: maxFailures,
		log:         log.WithComponent("autosave"),
	}
}

// ScheduleWrite arms (or re-arms) the idle-delay timer for a debounced
// write of songs. Scheduling again before the timer fires replaces the
// pending state: last scheduled wins. A no-op while the circuit is open.
func (s *Scheduler) ScheduleWrite(songs []*domain.Song) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disabled {
		s.log.Warn("Auto-save is disabled, dropping scheduled write", "failures", s.failures)
		return
	}

	if s.timer != nil {
		s.timer.Stop()
	}
	s.pending = songs
	s.gen++
	gen := s.gen
	s.timer = time.AfterFunc(s.delay, func() { s.flush(gen) })
}

// WriteNow writes songs immediately under the same mutex and failure
// accounting as a scheduled write, leaving any pending timer armed.
// While the circuit is open the write is dropped with a warning. The
// settings rate limiter goes through here so that every primary write,
// whatever triggered it, shares one serialization point.
func (s *Scheduler) WriteNow(songs []*domain.Song) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disabled {
		s.log.Warn("Auto-save is disabled, dropping immediate write", "failures", s.failures)
		return nil
	}
	return s.performWriteLocked(songs)
}

// ForceWrite cancels any pending timer and writes immediately. The
// circuit breaker still takes priority: while open, even forced writes
// are suppressed until Reenable is called.
func (s *Scheduler) ForceWrite(songs []*domain.Song) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelPendingLocked()

	if s.disabled {
		s.log.Warn("Auto-save is disabled, suppressing forced write")
		return ErrCircuitOpen
	}
	return s.performWriteLocked(songs)
}

// Reenable is the only way out of the circuit-open state. It clears the
// failure count and any pending timer.
func (s *Scheduler) Reenable() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelPendingLocked()
	s.disabled = false
	s.failures = 0
	s.log.Info("Auto-save re-enabled")
}

// Status reports the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Disabled:    s.disabled,
		Failures:    s.failures,
		MaxFailures: s.maxFailures,
		Pending:     s.timer != nil,
	}
}

// Stop cancels any pending write. Used during shutdown; the final state
// is flushed through ForceWrite by the caller.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelPendingLocked()
}

func (s *Scheduler) flush(gen int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A newer schedule or a cancel superseded this timer
	if gen != s.gen {
		return
	}
	s.timer = nil

	if s.pending == nil || s.disabled {
		s.pending = nil
		return
	}

	songs := s.pending
	s.pending = nil
	_ = s.performWriteLocked(songs)
}

func (s *Scheduler) performWriteLocked(songs []*domain.Song) error {
	err := s.write(songs)
	if err != nil {
		s.failures++
		s.log.Error("Save failed", "error", err, "failures", s.failures, "max_failures", s.maxFailures)
		if s.failures >= s.maxFailures {
			s.disabled = true
			s.log.Error("Auto-save disabled after repeated failures, manual re-enable required")
		}
		return err
	}

	if s.failures > 0 {
		s.log.Info("Save succeeded, resetting failure count", "previous_failures", s.failures)
	}
	s.failures = 0
	return nil
}

func (s *Scheduler) cancelPendingLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.pending = nil
	s.gen++
}

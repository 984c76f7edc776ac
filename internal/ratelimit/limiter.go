// Package ratelimit throttles high-frequency settings writes (capo and
// tuning edits) independently of the main auto-save scheduler. Queued
// operations coalesce: when the timer fires only the most recent one
// runs and the rest are dropped.
package ratelimit

import (
	"sync"
	"time"

	"github.com/cesargomez89/chordbook/internal/logger"
)

// Op is a deferred save operation.
type Op func() error

// Status is the read-only introspection surface for UI/diagnostics.
type Status struct {
	QueueLength int  `json:"queueLength"`
	HasPending  bool `json:"hasPending"`
}

// Limiter bounds write frequency with a hard minimum interval between
// executions and a bounded queue that evicts its oldest entry when full.
// Constructed once and injected; no package-level state.
type Limiter struct {
	mu          sync.Mutex
	minInterval time.Duration
	maxQueue    int
	log         *logger.Logger

	queue    []Op
	timer    *time.Timer
	gen      int
	lastExec time.Time
}

func NewLimiter(minInterval time.Duration, maxQueue int, log *logger.Logger) *Limiter {
	return &Limiter{
		minInterval: minInterval,
		maxQueue:    maxQueue,
		log:         log.WithComponent("ratelimit"),
	}
}

// DebouncedSave enqueues op and (re)arms the throttle timer. When the
// queue is full the oldest entry is evicted. On expiry only the most
// recently enqueued operation executes; everything older is dropped.
func (l *Limiter) DebouncedSave(op Op) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.queue = append(l.queue, op)
	if len(l.queue) > l.maxQueue {
		l.queue = l.queue[1:]
		l.log.Warn("Rate limiter queue full, evicted oldest operation", "queue_max", l.maxQueue)
	}

	if l.timer != nil {
		l.timer.Stop()
	}
	l.gen++
	gen := l.gen
	l.timer = time.AfterFunc(l.minInterval, func() { l.fire(gen) })
}

// ForceExecute clears the queue and any pending timer, runs op
// immediately, and updates the last-execution timestamp.
func (l *Limiter) ForceExecute(op Op) error {
	l.mu.Lock()
	l.clearLocked()
	l.mu.Unlock()

	err := op()

	l.mu.Lock()
	l.lastExec = time.Now()
	l.mu.Unlock()
	return err
}

// Clear cancels the pending timer and empties the queue without
// executing anything. Escape hatch for persistent downstream failures.
func (l *Limiter) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.clearLocked()
}

// Status reports queue depth and whether a timer is armed.
func (l *Limiter) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Status{QueueLength: len(l.queue), HasPending: l.timer != nil}
}

func (l *Limiter) fire(gen int) {
	l.mu.Lock()

	if gen != l.gen || len(l.queue) == 0 {
		l.mu.Unlock()
		return
	}

	// Hard floor on write frequency: if the minimum interval since the
	// last execution has not elapsed yet, reschedule for the remainder
	// instead of executing early.
	if !l.lastExec.IsZero() {
		if since := time.Since(l.lastExec); since < l.minInterval {
			remaining := l.minInterval - since
			l.timer = time.AfterFunc(remaining, func() { l.fire(gen) })
			l.mu.Unlock()
			return
		}
	}

	// Last write wins: run the newest, drop the rest
	op := l.queue[len(l.queue)-1]
	dropped := len(l.queue) - 1
	l.queue = nil
	l.timer = nil
	l.mu.Unlock()

	if dropped > 0 {
		l.log.Debug("Coalesced rate-limited saves", "dropped", dropped)
	}

	err := op()

	l.mu.Lock()
	if err != nil {
		l.log.Warn("Rate-limited save failed", "error", err)
	} else {
		l.lastExec = time.Now()
	}
	l.mu.Unlock()
}

func (l *Limiter) clearLocked() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.queue = nil
	l.gen++
}

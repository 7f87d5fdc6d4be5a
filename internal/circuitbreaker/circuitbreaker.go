// Package circuitbreaker implements a closed/open/half-open breaker,
// grounded on the teacher repo's internal/monitoring circuit breaker.
// The probe scheduler uses one per probe to distinguish ordinary
// probe failures (reported on the result) from sustained internal
// trouble that should move the probe to ERROR status (spec §4.3).
package circuitbreaker

import (
	"sync"
	"time"
)

// State is the breaker's current mode.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

// Config controls trip/reset behavior.
type Config struct {
	FailureThreshold int           // consecutive failures to trip from Closed
	ResetTimeout     time.Duration // time in Open before trying HalfOpen
	HalfOpenSuccesses int          // consecutive successes in HalfOpen to close
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold:  5,
		ResetTimeout:      30 * time.Second,
		HalfOpenSuccesses: 1,
	}
}

// CircuitBreaker is safe for concurrent use.
type CircuitBreaker struct {
	mu sync.Mutex

	cfg Config

	state             State
	consecutiveFails  int
	consecutiveOK     int
	openedAt          time.Time
}

func New(cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultConfig().ResetTimeout
	}
	if cfg.HalfOpenSuccesses <= 0 {
		cfg.HalfOpenSuccesses = DefaultConfig().HalfOpenSuccesses
	}
	return &CircuitBreaker{cfg: cfg, state: Closed}
}

// Allow reports whether a call should proceed, transitioning Open to
// HalfOpen once ResetTimeout has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case Closed, HalfOpen:
		return true
	case Open:
		if time.Since(cb.openedAt) >= cb.cfg.ResetTimeout {
			cb.state = HalfOpen
			cb.consecutiveOK = 0
			return true
		}
		return false
	}
	return true
}

// RecordSuccess transitions HalfOpen→Closed after enough consecutive
// successes, and resets the failure count in Closed.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case HalfOpen:
		cb.consecutiveOK++
		if cb.consecutiveOK >= cb.cfg.HalfOpenSuccesses {
			cb.state = Closed
			cb.consecutiveFails = 0
		}
	case Closed:
		cb.consecutiveFails = 0
	}
}

// RecordFailure trips the breaker from Closed once FailureThreshold
// consecutive failures accrue, or re-opens immediately from HalfOpen.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case Closed:
		cb.consecutiveFails++
		if cb.consecutiveFails >= cb.cfg.FailureThreshold {
			cb.trip()
		}
	case HalfOpen:
		cb.trip()
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = Open
	cb.openedAt = time.Now()
	cb.consecutiveFails = 0
	cb.consecutiveOK = 0
}

// CurrentState returns the breaker's current state.
func (cb *CircuitBreaker) CurrentState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

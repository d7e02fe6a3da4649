package external

import (
	"fmt"
	"sync"
	"time"
)

// breakerState is the circuit breaker's state machine, the standard
// closed/open/half-open shape.
type breakerState int

const (
	breakerClosed breakerState = iota
	breakerOpen
	breakerHalfOpen
)

// CircuitBreaker guards calls to a flaky out-of-process plugin: after
// FailureThreshold consecutive failures it opens and fails fast for
// ResetTimeout, then allows HalfOpenMaxCalls trial calls before deciding
// whether to close again or re-open.
type CircuitBreaker struct {
	mu sync.Mutex

	failureThreshold int
	resetTimeout     time.Duration
	halfOpenMaxCalls int

	state           breakerState
	consecutiveFail int
	openedAt        time.Time
	halfOpenCalls   int
}

// NewCircuitBreaker constructs a closed CircuitBreaker with the given
// thresholds (typically sourced from config.ReliabilityConfig.ForPlugin).
func NewCircuitBreaker(failureThreshold int, resetTimeout time.Duration, halfOpenMaxCalls int) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if halfOpenMaxCalls <= 0 {
		halfOpenMaxCalls = 1
	}
	return &CircuitBreaker{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		halfOpenMaxCalls: halfOpenMaxCalls,
	}
}

// ErrCircuitOpen is returned by Allow when the breaker is open and not yet
// eligible for a half-open trial.
var ErrCircuitOpen = fmt.Errorf("external: circuit breaker open")

// Allow reports whether a call may proceed, transitioning open->half-open
// once resetTimeout has elapsed.
func (b *CircuitBreaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return nil
	case breakerOpen:
		if time.Since(b.openedAt) >= b.resetTimeout {
			b.state = breakerHalfOpen
			b.halfOpenCalls = 1 // this call is the first trial
			return nil
		}
		return ErrCircuitOpen
	case breakerHalfOpen:
		if b.halfOpenCalls >= b.halfOpenMaxCalls {
			return ErrCircuitOpen
		}
		b.halfOpenCalls++
		return nil
	default:
		return nil
	}
}

// RecordSuccess closes the breaker and resets the failure streak.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFail = 0
	b.state = breakerClosed
}

// RecordFailure advances the failure streak, opening the breaker once the
// threshold is hit (or immediately, if a half-open trial failed).
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == breakerHalfOpen {
		b.state = breakerOpen
		b.openedAt = time.Now()
		return
	}

	b.consecutiveFail++
	if b.consecutiveFail >= b.failureThreshold {
		b.state = breakerOpen
		b.openedAt = time.Now()
	}
}

// State reports the breaker's current state for health reporting.
func (b *CircuitBreaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case breakerOpen:
		return "open"
	case breakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

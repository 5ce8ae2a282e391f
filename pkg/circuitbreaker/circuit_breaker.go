// Package circuitbreaker gates calls to external endpoints so a dead
// dispatch target stops consuming retries and timeouts.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State is the position of a breaker in its trip cycle.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

const defaultHalfOpenMaxCalls = 3

// CircuitBreaker guards one endpoint. A streak of maxFailures
// consecutive failures trips it open; a success while closed clears
// the streak. After the cooldown timeout a limited number of probe
// calls are admitted, and once all of them succeed the breaker closes
// again. Any probe failure re-trips it.
type CircuitBreaker struct {
	name             string
	maxFailures      uint32
	timeout          time.Duration
	halfOpenMaxCalls uint32

	mu                sync.Mutex
	state             State
	failureStreak     uint32
	failureCount      uint32
	successCount      uint32
	requestCount      uint32
	halfOpenCalls     uint32
	halfOpenSuccesses uint32
	lastFailureTime   time.Time

	logger *logrus.Logger
}

func New(name string, maxFailures uint32, timeout time.Duration) *CircuitBreaker {
	return NewWithLogger(name, maxFailures, timeout, logrus.New())
}

func NewWithLogger(name string, maxFailures uint32, timeout time.Duration, logger *logrus.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		name:             name,
		maxFailures:      maxFailures,
		timeout:          timeout,
		halfOpenMaxCalls: defaultHalfOpenMaxCalls,
		state:            StateClosed,
		logger:           logger,
	}
}

// Execute runs fn unless the breaker is rejecting calls. Errors from
// fn pass through untouched; rejections return a CircuitBreakerError.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	if err := fn(ctx); err != nil {
		cb.recordFailure()
		return err
	}

	cb.recordSuccess()
	return nil
}

// admit decides under one lock whether a call may proceed, moving an
// expired open breaker to half-open on the way. Half-open admissions
// are counted up front so concurrent probes cannot exceed the cap
// while earlier ones are still in flight.
func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if time.Since(cb.lastFailureTime) < cb.timeout {
			return &CircuitBreakerError{Name: cb.name, State: StateOpen}
		}
		cb.toHalfOpen()
	}

	if cb.state == StateHalfOpen {
		if cb.halfOpenCalls >= cb.halfOpenMaxCalls {
			return &CircuitBreakerError{Name: cb.name, State: StateHalfOpen}
		}
		cb.halfOpenCalls++
	}

	cb.requestCount++
	return nil
}

func (cb *CircuitBreaker) recordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.successCount++

	switch cb.state {
	case StateClosed:
		cb.failureStreak = 0
	case StateHalfOpen:
		cb.halfOpenSuccesses++
		if cb.halfOpenSuccesses >= cb.halfOpenMaxCalls {
			cb.close()
		}
	}
}

func (cb *CircuitBreaker) recordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureStreak++
	cb.failureCount++
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case StateClosed:
		if cb.failureStreak >= cb.maxFailures {
			cb.trip()
		}
	case StateHalfOpen:
		cb.trip()
	}
}

// trip moves to open. Callers hold cb.mu.
func (cb *CircuitBreaker) trip() {
	cb.state = StateOpen
	cb.halfOpenCalls = 0
	cb.halfOpenSuccesses = 0
	cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.name,
		"failures":        cb.failureStreak,
		"state":           StateOpen.String(),
	}).Warn("Circuit breaker opened")
}

// toHalfOpen starts a probe round. Callers hold cb.mu.
func (cb *CircuitBreaker) toHalfOpen() {
	cb.state = StateHalfOpen
	cb.halfOpenCalls = 0
	cb.halfOpenSuccesses = 0
	cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.name,
		"state":           StateHalfOpen.String(),
	}).Info("Circuit breaker probing after cooldown")
}

// close moves to closed after a successful probe round. Lifetime
// counters survive; only the trip bookkeeping resets. Callers hold
// cb.mu.
func (cb *CircuitBreaker) close() {
	cb.state = StateClosed
	cb.failureStreak = 0
	cb.halfOpenCalls = 0
	cb.halfOpenSuccesses = 0
	cb.logger.WithFields(logrus.Fields{
		"circuit_breaker": cb.name,
		"state":           StateClosed.String(),
	}).Info("Circuit breaker closed after recovery")
}

// GetState reports the current state, promoting an expired open
// breaker to half-open.
func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && time.Since(cb.lastFailureTime) >= cb.timeout {
		cb.toHalfOpen()
	}
	return cb.state
}

// Stats is a point-in-time snapshot of one breaker.
type Stats struct {
	Name            string
	State           State
	Failures        uint32
	Requests        uint32
	Successes       uint32
	LastFailureTime time.Time
}

// GetStats returns lifetime counters; unlike the failure streak they
// are never reset by recovery.
func (cb *CircuitBreaker) GetStats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Stats{
		Name:            cb.name,
		State:           cb.state,
		Failures:        cb.failureCount,
		Requests:        cb.requestCount,
		Successes:       cb.successCount,
		LastFailureTime: cb.lastFailureTime,
	}
}

// CircuitBreakerError is returned for calls rejected by an open or
// saturated half-open breaker.
type CircuitBreakerError struct {
	Name  string
	State State
}

func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker '%s' is %s", e.Name, e.State)
}

// IsCircuitBreakerError reports whether err is a breaker rejection
// rather than a failure of the guarded call itself.
func IsCircuitBreakerError(err error) bool {
	var cbErr *CircuitBreakerError
	return errors.As(err, &cbErr)
}

package guard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gridshare/platform/internal/domain"
)

// ErrCircuitOpen is returned by Do while a circuit rejects calls.
var ErrCircuitOpen = errors.New("circuit open")

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// CircuitBreaker trips per collaborator endpoint, keyed for example by
// "at-eda:poll".
type CircuitBreaker struct {
	mu            sync.Mutex
	circuits      map[string]*circuit
	failThreshold int
	resetTimeout  time.Duration
	halfOpenMax   int
	now           func() time.Time
}

type circuit struct {
	state       CircuitState
	failures    int
	successes   int
	trials      int
	lastFailure time.Time
}

// NewCircuitBreaker creates a circuit breaker that opens after failThreshold
// consecutive failures and allows a trial call again after resetTimeout.
func NewCircuitBreaker(failThreshold int, resetTimeout time.Duration) *CircuitBreaker {
	if failThreshold < 1 {
		failThreshold = 1
	}
	return &CircuitBreaker{
		circuits:      make(map[string]*circuit),
		failThreshold: failThreshold,
		resetTimeout:  resetTimeout,
		halfOpenMax:   1,
		now:           time.Now,
	}
}

func (cb *CircuitBreaker) get(key string) *circuit {
	c, ok := cb.circuits[key]
	if !ok {
		c = &circuit{state: CircuitClosed}
		cb.circuits[key] = c
	}
	return c
}

// Check returns whether the circuit for the given key allows a call.
func (cb *CircuitBreaker) Check(_ context.Context, key string) domain.GuardResult {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.get(key)
	switch c.state {
	case CircuitOpen:
		elapsed := cb.now().Sub(c.lastFailure)
		if elapsed < cb.resetTimeout {
			return domain.GuardResult{
				Allowed: false,
				Reason:  fmt.Sprintf("circuit open for %s, resets in %s", key, cb.resetTimeout-elapsed),
				Guard:   "circuit_breaker",
			}
		}
		c.state = CircuitHalfOpen
		c.successes = 0
		c.trials = 0
		fallthrough
	case CircuitHalfOpen:
		if c.trials >= cb.halfOpenMax {
			return domain.GuardResult{
				Allowed: false,
				Reason:  fmt.Sprintf("circuit half-open for %s, trial call in flight", key),
				Guard:   "circuit_breaker",
			}
		}
		c.trials++
	}
	return domain.GuardResult{Allowed: true}
}

// State returns the current state for key.
func (cb *CircuitBreaker) State(key string) CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if c, ok := cb.circuits[key]; ok {
		return c.state
	}
	return CircuitClosed
}

// RecordSuccess marks a successful call for the given key.
func (cb *CircuitBreaker) RecordSuccess(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.get(key)
	switch c.state {
	case CircuitHalfOpen:
		c.successes++
		if c.successes >= cb.halfOpenMax {
			c.state = CircuitClosed
			c.failures = 0
			c.trials = 0
		}
	case CircuitClosed:
		c.failures = 0
	}
}

// RecordFailure marks a failed call for the given key. A failed trial
// reopens the circuit immediately.
func (cb *CircuitBreaker) RecordFailure(key string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	c := cb.get(key)
	c.failures++
	c.lastFailure = cb.now()
	if c.state == CircuitHalfOpen || c.failures >= cb.failThreshold {
		c.state = CircuitOpen
		c.trials = 0
	}
}

// Do runs fn when the circuit allows it and records the outcome. The lock
// is not held while fn runs.
func (cb *CircuitBreaker) Do(ctx context.Context, key string, fn func(context.Context) error) error {
	if res := cb.Check(ctx, key); !res.Allowed {
		return fmt.Errorf("%w: %s", ErrCircuitOpen, res.Reason)
	}
	if err := fn(ctx); err != nil {
		cb.RecordFailure(key)
		return err
	}
	cb.RecordSuccess(key)
	return nil
}

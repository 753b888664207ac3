package utils

import (
	"errors"
	"sync"
	"time"
)

var ErrBreakerOpen = errors.New("circuit breaker is open")

type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerHalfOpen
	BreakerOpen
)

// CircuitBreaker guards calls to an external collaborator (the push
// notification service). After too many failures within the interval the
// breaker opens and calls fail fast until the cooldown elapses; the first
// success in half-open state closes it again.
type CircuitBreaker struct {
	name         string
	maxRequests  uint32
	interval     time.Duration
	cooldown     time.Duration
	failureRatio float64

	mu       sync.Mutex
	state    BreakerState
	requests uint32
	failures uint32
	expiry   time.Time
}

func NewCircuitBreaker(name string) *CircuitBreaker {
	return &CircuitBreaker{
		name:         name,
		maxRequests:  20,
		interval:     time.Minute,
		cooldown:     30 * time.Second,
		failureRatio: 0.6,
		state:        BreakerClosed,
	}
}

// Do runs fn unless the breaker is open.
func (cb *CircuitBreaker) Do(fn func() error) error {
	if err := cb.before(); err != nil {
		return err
	}

	err := fn()
	cb.after(err == nil)
	return err
}

func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.refresh(time.Now())
	return cb.state
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()
	cb.refresh(now)

	if cb.state == BreakerOpen {
		return ErrBreakerOpen
	}
	cb.requests++
	return nil
}

func (cb *CircuitBreaker) after(success bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if success {
		if cb.state == BreakerHalfOpen {
			cb.reset(BreakerClosed, time.Now().Add(cb.interval))
		}
		return
	}

	cb.failures++
	if cb.state == BreakerHalfOpen || cb.tripping() {
		cb.reset(BreakerOpen, time.Now().Add(cb.cooldown))
	}
}

func (cb *CircuitBreaker) tripping() bool {
	return cb.requests >= cb.maxRequests &&
		float64(cb.failures)/float64(cb.requests) >= cb.failureRatio
}

// refresh rolls the counting window or leaves the open state once the
// respective deadline passed. Callers must hold mu.
func (cb *CircuitBreaker) refresh(now time.Time) {
	if cb.expiry.IsZero() || cb.expiry.After(now) {
		return
	}
	switch cb.state {
	case BreakerClosed:
		cb.reset(BreakerClosed, now.Add(cb.interval))
	case BreakerOpen:
		cb.reset(BreakerHalfOpen, time.Time{})
	}
}

func (cb *CircuitBreaker) reset(state BreakerState, expiry time.Time) {
	cb.state = state
	cb.requests = 0
	cb.failures = 0
	cb.expiry = expiry
}

package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned when the breaker rejects a call without running it.
var ErrOpen = errors.New("circuit breaker is open")

// State of a Breaker.
type State int

const (
	// StateClosed lets calls through and counts failures.
	StateClosed State = iota
	// StateOpen rejects calls until the cooldown elapses.
	StateOpen
	// StateHalfOpen lets trial calls through to probe recovery.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker trips after consecutive failures and stops hammering a
// downstream service that is already struggling. After the cooldown it
// lets trial calls through; enough consecutive successes close it again,
// a single failure re-opens it.
type Breaker struct {
	failureThreshold int
	successThreshold int
	cooldown         time.Duration

	mutex     sync.Mutex
	state     State
	failures  int
	successes int
	openedAt  time.Time
}

// New creates a closed breaker. failureThreshold consecutive failures
// open it; successThreshold consecutive successes in half-open close it;
// cooldown is how long it stays open before probing.
func New(failureThreshold, successThreshold int, cooldown time.Duration) *Breaker {
	return &Breaker{
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		cooldown:         cooldown,
		state:            StateClosed,
	}
}

// Do runs fn unless the breaker is open, and feeds the outcome back into
// the breaker state. The callable's error is returned unchanged.
func (b *Breaker) Do(fn func() error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := fn()
	b.record(err == nil)
	return err
}

// State returns the current state.
func (b *Breaker) State() State {
	b.mutex.Lock()
	defer b.mutex.Unlock()
	return b.state
}

func (b *Breaker) allow() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if b.state == StateOpen {
		if time.Since(b.openedAt) < b.cooldown {
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.successes = 0
	}
	return nil
}

func (b *Breaker) record(success bool) {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if !success {
		b.failures++
		b.successes = 0
		if b.state == StateHalfOpen || b.failures >= b.failureThreshold {
			b.state = StateOpen
			b.openedAt = time.Now()
			b.failures = 0
		}
		return
	}

	switch b.state {
	case StateHalfOpen:
		b.successes++
		if b.successes >= b.successThreshold {
			b.state = StateClosed
			b.failures = 0
		}
	case StateClosed:
		b.failures = 0
	}
}

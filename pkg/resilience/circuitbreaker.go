package resilience

import (
	"errors"
	"sync"
	"time"

	"provider-messaging/backend/pkg/logger"
)

// ErrOpen is returned without calling the guarded function while the breaker is open.
var ErrOpen = errors.New("circuit breaker is open")

// State is the current position of a circuit breaker.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half-open"
)

// Config holds the thresholds of a circuit breaker.
type Config struct {
	Name string
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold uint
	// SuccessThreshold consecutive half-open successes close it again.
	SuccessThreshold uint
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
}

func DefaultConfig(name string) Config {
	return Config{
		Name:             name,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		OpenTimeout:      30 * time.Second,
	}
}

// CircuitBreaker stops calling a failing dependency for a while so callers
// can fall back quickly instead of waiting on timeouts.
type CircuitBreaker struct {
	cfg Config
	log *logger.Logger
	now func() time.Time

	mu        sync.Mutex
	state     State
	failures  uint
	successes uint
	openUntil time.Time
}

func NewCircuitBreaker(cfg Config, log *logger.Logger) *CircuitBreaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 1
	}
	if cfg.SuccessThreshold == 0 {
		cfg.SuccessThreshold = 1
	}
	return &CircuitBreaker{cfg: cfg, log: log, now: time.Now, state: StateClosed}
}

// Execute runs fn unless the breaker is open. A non-nil error from fn counts
// as a failure.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.allow() {
		return ErrOpen
	}
	err := fn()
	cb.record(err == nil)
	return err
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if cb.now().Before(cb.openUntil) {
			return false
		}
		cb.transition(StateHalfOpen)
	}
	return true
}

func (cb *CircuitBreaker) record(ok bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		if ok {
			cb.failures = 0
			return
		}
		cb.failures++
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		if !ok {
			cb.transition(StateOpen)
			return
		}
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.transition(StateClosed)
		}
	}
}

func (cb *CircuitBreaker) transition(to State) {
	from := cb.state
	cb.state = to
	cb.failures = 0
	cb.successes = 0
	if to == StateOpen {
		cb.openUntil = cb.now().Add(cb.cfg.OpenTimeout)
	}
	if cb.log != nil {
		cb.log.Info("circuit breaker state change", "name", cb.cfg.Name, "from", string(from), "to", string(to))
	}
}

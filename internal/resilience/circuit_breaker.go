package resilience

import (
	"sync"
	"time"
)

// CircuitBreakerState represents the state of the circuit breaker
type CircuitBreakerState int32

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	StateHalfOpen
)

// String returns the lowercase state name used in logs and metrics
func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker
type CircuitBreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold" koanf:"failure_threshold"` // Number of failures before opening
	RecoveryTimeout  time.Duration `json:"recovery_timeout" koanf:"recovery_timeout"`   // Time to wait before attempting recovery
	SuccessThreshold int           `json:"success_threshold" koanf:"success_threshold"` // Number of successes needed to close circuit
}

// DefaultCircuitBreakerConfig returns the settings used for the classifier
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		RecoveryTimeout:  30 * time.Second,
		SuccessThreshold: 2,
	}
}

// CircuitBreaker implements a circuit breaker pattern for external service calls
type CircuitBreaker struct {
	config      CircuitBreakerConfig
	mu          sync.Mutex
	state       CircuitBreakerState
	failures    int
	successes   int
	nextAttempt time.Time

	now           func() time.Time
	onStateChange func(from, to CircuitBreakerState)
}

// BreakerOption configures a CircuitBreaker
type BreakerOption func(*CircuitBreaker)

// WithBreakerClock overrides the breaker's time source
func WithBreakerClock(now func() time.Time) BreakerOption {
	return func(cb *CircuitBreaker) { cb.now = now }
}

// WithStateChangeHook is called, outside the breaker lock, on every transition
func WithStateChangeHook(fn func(from, to CircuitBreakerState)) BreakerOption {
	return func(cb *CircuitBreaker) { cb.onStateChange = fn }
}

// NewCircuitBreaker creates a new circuit breaker. Zero config fields take defaults.
func NewCircuitBreaker(config CircuitBreakerConfig, opts ...BreakerOption) *CircuitBreaker {
	defaults := DefaultCircuitBreakerConfig()
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = defaults.RecoveryTimeout
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = defaults.SuccessThreshold
	}

	cb := &CircuitBreaker{
		config: config,
		state:  StateClosed,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Call executes a function with circuit breaker protection
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.before(); err != nil {
		return err
	}

	err := fn()
	cb.after(err == nil)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	if cb.state != StateOpen {
		cb.mu.Unlock()
		return nil
	}
	if cb.now().Before(cb.nextAttempt) {
		cb.mu.Unlock()
		return NewCircuitBreakerError("circuit breaker is open", StateOpen)
	}
	from := cb.transition(StateHalfOpen)
	cb.mu.Unlock()

	cb.notify(from, StateHalfOpen)
	return nil
}

func (cb *CircuitBreaker) after(success bool) {
	cb.mu.Lock()
	from := cb.state
	to := from

	if success {
		cb.failures = 0
		if cb.state == StateHalfOpen {
			cb.successes++
			if cb.successes >= cb.config.SuccessThreshold {
				cb.transition(StateClosed)
				to = StateClosed
			}
		}
	} else {
		cb.failures++
		cb.successes = 0
		if cb.state == StateHalfOpen || cb.failures >= cb.config.FailureThreshold {
			cb.transition(StateOpen)
			cb.nextAttempt = cb.now().Add(cb.config.RecoveryTimeout)
			to = StateOpen
		}
	}
	cb.mu.Unlock()

	if from != to {
		cb.notify(from, to)
	}
}

// transition must be called with mu held
func (cb *CircuitBreaker) transition(to CircuitBreakerState) CircuitBreakerState {
	from := cb.state
	cb.state = to
	cb.successes = 0
	if to == StateClosed {
		cb.failures = 0
	}
	return from
}

func (cb *CircuitBreaker) notify(from, to CircuitBreakerState) {
	if cb.onStateChange != nil && from != to {
		cb.onStateChange(from, to)
	}
}

// State returns the current state of the circuit breaker
func (cb *CircuitBreaker) State() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the current failure count
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Reset resets the circuit breaker to closed state
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	from := cb.transition(StateClosed)
	cb.mu.Unlock()
	cb.notify(from, StateClosed)
}

// CircuitBreakerError represents an error from the circuit breaker
type CircuitBreakerError struct {
	Message string
	State   CircuitBreakerState
}

func (e *CircuitBreakerError) Error() string {
	return e.Message
}

// NewCircuitBreakerError creates a new circuit breaker error
func NewCircuitBreakerError(message string, state CircuitBreakerState) *CircuitBreakerError {
	return &CircuitBreakerError{
		Message: message,
		State:   state,
	}
}

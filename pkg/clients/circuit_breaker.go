package clients

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/storepulse/pkg/errors"
	"github.com/ajitpratap0/storepulse/pkg/metrics"
)

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New(errors.ErrorTypeConnection, "circuit breaker is open")

// CircuitState represents the state of a circuit breaker
type CircuitState int32

const (
	// StateClosed allows all requests to pass through
	StateClosed CircuitState = iota
	// StateHalfOpen allows a limited number of trial requests
	StateHalfOpen
	// StateOpen blocks all requests
	StateOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig is the configuration for circuit breaker
type CircuitBreakerConfig struct {
	Name             string        // Label for metrics and logs
	FailureThreshold int           // Consecutive failures before opening
	SuccessThreshold int           // Consecutive half-open successes before closing
	Timeout          time.Duration // Time spent open before a trial request
}

// CircuitBreakerStatus is a point-in-time view of the breaker.
type CircuitBreakerStatus struct {
	State               string    `json:"state"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastStateChange     time.Time `json:"last_state_change"`
}

// CircuitBreaker implements the circuit breaker pattern to stop hammering a
// remote API that keeps failing.
type CircuitBreaker struct {
	config CircuitBreakerConfig
	logger *zap.Logger

	mu                   sync.Mutex
	state                CircuitState
	consecutiveFailures  int
	consecutiveSuccesses int
	lastStateChange      time.Time
	now                  func() time.Time
}

// NewCircuitBreaker creates a circuit breaker in the closed state.
func NewCircuitBreaker(config CircuitBreakerConfig, logger *zap.Logger) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = 1
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Name == "" {
		config.Name = "default"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CircuitBreaker{
		config:          config,
		logger:          logger.With(zap.String("component", "circuit_breaker"), zap.String("breaker", config.Name)),
		state:           StateClosed,
		lastStateChange: time.Now(),
		now:             time.Now,
	}
}

// Execute runs fn with circuit breaker protection.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if !cb.Allow() {
		return ErrCircuitOpen
	}
	if err := fn(); err != nil {
		cb.RecordFailure()
		return err
	}
	cb.RecordSuccess()
	return nil
}

// Allow reports whether a request may proceed. An open breaker moves to
// half-open once the timeout has elapsed.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen && cb.now().Sub(cb.lastStateChange) >= cb.config.Timeout {
		cb.transition(StateHalfOpen)
	}
	return cb.state != StateOpen
}

// RecordSuccess records a successful call.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures = 0
	if cb.state == StateHalfOpen {
		cb.consecutiveSuccesses++
		if cb.consecutiveSuccesses >= cb.config.SuccessThreshold {
			cb.transition(StateClosed)
		}
	}
}

// RecordFailure records a failed call.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.consecutiveFailures++
	cb.consecutiveSuccesses = 0
	switch cb.state {
	case StateHalfOpen:
		cb.transition(StateOpen)
	case StateClosed:
		if cb.consecutiveFailures >= cb.config.FailureThreshold {
			cb.transition(StateOpen)
		}
	}
}

// GetState returns the current breaker status.
func (cb *CircuitBreaker) GetState() CircuitBreakerStatus {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return CircuitBreakerStatus{
		State:               cb.state.String(),
		ConsecutiveFailures: cb.consecutiveFailures,
		LastStateChange:     cb.lastStateChange,
	}
}

// Reset forces the breaker closed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.consecutiveFailures = 0
	cb.transition(StateClosed)
}

func (cb *CircuitBreaker) transition(to CircuitState) {
	if cb.state == to {
		return
	}
	cb.logger.Info("circuit breaker state change",
		zap.String("from", cb.state.String()),
		zap.String("to", to.String()))
	cb.state = to
	cb.consecutiveSuccesses = 0
	cb.lastStateChange = cb.now()
	metrics.CircuitBreakerState.WithLabelValues(cb.config.Name).Set(float64(to))
}

// Package base provides the BaseConnector that storepulse connectors embed.
// It owns the pieces every connector needs regardless of the remote system:
// lifecycle context, health tracking, metrics collection, retry policy and
// progress reporting. Guarded connectors also get a circuit breaker and a
// rate limiter for their remote calls.
//
// Connectors embed it and call Initialize from their own Initialize:
//
//	type Source struct {
//	    *base.BaseConnector
//	    // connector-specific fields
//	}
//
//	func NewSource() *Source {
//	    return &Source{
//	        BaseConnector: base.NewBaseConnector("appstore", core.ConnectorTypeSource, "1.0.0"),
//	    }
//	}
package base

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/storepulse/pkg/clients"
	"github.com/ajitpratap0/storepulse/pkg/config"
	"github.com/ajitpratap0/storepulse/pkg/connector/core"
	"github.com/ajitpratap0/storepulse/pkg/errors"
	"github.com/ajitpratap0/storepulse/pkg/logger"
	"github.com/ajitpratap0/storepulse/pkg/metrics"
)

// BaseConnector provides common functionality for all connectors.
type BaseConnector struct {
	name          string
	connectorType core.ConnectorType
	version       string
	config        *config.BaseConfig
	logger        *zap.Logger

	ctx        context.Context
	cancel     context.CancelFunc
	closed     bool
	closeMutex sync.Mutex

	guarded          bool

	circuitBreaker   *clients.CircuitBreaker
	rateLimiter      clients.RateLimiter
	healthChecker    *HealthChecker
	metricsCollector *metrics.Collector
	retryPolicy      *RetryPolicy
	progressReporter *ProgressReporter
}

// NewBaseConnector creates a new base connector with the specified name, type, and version.
func NewBaseConnector(name string, connectorType core.ConnectorType, version string) *BaseConnector {
	return &BaseConnector{
		name:             name,
		connectorType:    connectorType,
		version:          version,
		logger:           logger.Get().With(zap.String("connector", name)),
		metricsCollector: metrics.NewCollector(name),
	}
}

// Guarded makes Initialize build a circuit breaker and a rate limiter for
// the connector's own remote calls. Sources leave this off; their HTTP
// transport paces and guards every request.
func (bc *BaseConnector) Guarded() *BaseConnector {
	bc.guarded = true
	return bc
}

// Initialize sets up health tracking, retry policy and progress reporting
// from config, plus the circuit breaker and rate limiter of guarded
// connectors. It must be called before the connector is used.
func (bc *BaseConnector) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if cfg == nil {
		return errors.New(errors.ErrorTypeConfig, "configuration is required")
	}
	bc.config = cfg
	bc.ctx, bc.cancel = context.WithCancel(ctx)

	if bc.guarded {
		if cfg.Reliability.CircuitBreaker {
			bc.circuitBreaker = clients.NewCircuitBreaker(clients.CircuitBreakerConfig{
				Name:             bc.name,
				FailureThreshold: 5,
				SuccessThreshold: 2,
				Timeout:          30 * time.Second,
			}, bc.logger)
		}
		if cfg.Reliability.RateLimitPerSec > 0 {
			bc.rateLimiter = clients.NewRateLimiter(
				float64(cfg.Reliability.RateLimitPerSec),
				cfg.Reliability.RateLimitPerSec*2,
			)
		}
	}

	bc.healthChecker = NewHealthChecker(bc.name, bc.logger)

	attempts := cfg.Reliability.RetryAttempts + 1
	bc.retryPolicy = NewRetryPolicy(attempts, cfg.Reliability.RetryDelay)
	if cfg.Reliability.MaxRetryDelay > 0 {
		bc.retryPolicy.MaxDelay = cfg.Reliability.MaxRetryDelay
	}
	if cfg.Reliability.RetryMultiplier > 0 {
		bc.retryPolicy.Multiplier = cfg.Reliability.RetryMultiplier
	}

	bc.progressReporter = NewProgressReporter(bc.logger, bc.metricsCollector)

	bc.logger.Info("connector initialized",
		zap.String("type", string(bc.connectorType)),
		zap.String("version", bc.version))

	return nil
}

// Name returns the connector name
func (bc *BaseConnector) Name() string {
	return bc.name
}

// Type returns the connector type
func (bc *BaseConnector) Type() core.ConnectorType {
	return bc.connectorType
}

// Version returns the connector version
func (bc *BaseConnector) Version() string {
	return bc.version
}

// Health reports the last observed health of the connector.
func (bc *BaseConnector) Health(ctx context.Context) error {
	bc.closeMutex.Lock()
	closed := bc.closed
	bc.closeMutex.Unlock()
	if closed {
		return errors.New(errors.ErrorTypeConnection, "connector is closed")
	}
	if bc.healthChecker == nil {
		return errors.New(errors.ErrorTypeConfig, "connector is not initialized")
	}

	status := bc.healthChecker.GetStatus()
	if status.Status == StatusUnhealthy {
		return errors.Wrap(status.Error, errors.ErrorTypeConnection, "health check failed")
	}
	return nil
}

// Metrics returns current metrics
func (bc *BaseConnector) Metrics() map[string]interface{} {
	out := bc.metricsCollector.GetAll()

	out["name"] = bc.name
	out["type"] = string(bc.connectorType)
	out["version"] = bc.version

	if bc.circuitBreaker != nil {
		cbState := bc.circuitBreaker.GetState()
		out["circuit_breaker_state"] = cbState.State
		out["circuit_breaker_failures"] = cbState.ConsecutiveFailures
	}

	if bc.rateLimiter != nil {
		rlStats := bc.rateLimiter.GetStats()
		out["rate_limit"] = rlStats.Rate
		out["rate_limiter_allowed"] = rlStats.AllowedRequests
		out["rate_limiter_blocked"] = rlStats.BlockedRequests
	}

	if bc.healthChecker != nil {
		status := bc.healthChecker.GetStatus()
		out["health_status"] = status.Status
		out["health_check_count"] = bc.healthChecker.CheckCount()
		out["health_failure_count"] = bc.healthChecker.FailureCount()
	}

	if bc.progressReporter != nil {
		out["records_processed"] = bc.progressReporter.Processed()
	}

	return out
}

// Close shuts down the connector. It is safe to call more than once.
func (bc *BaseConnector) Close(ctx context.Context) error {
	bc.closeMutex.Lock()
	defer bc.closeMutex.Unlock()

	if bc.closed {
		return nil
	}

	if bc.cancel != nil {
		bc.cancel()
	}
	if bc.progressReporter != nil {
		bc.progressReporter.Final()
	}

	bc.closed = true
	bc.logger.Info("connector closed")
	return nil
}

// ExecuteWithRetry runs fn under the configured retry policy, retrying only
// errors classified as retryable. An open circuit is not retried.
func (bc *BaseConnector) ExecuteWithRetry(ctx context.Context, fn func() error) error {
	policy := bc.retryPolicy
	if policy == nil {
		policy = DefaultRetryPolicy()
	}
	return policy.ExecuteWithCondition(ctx, fn, func(err error) bool {
		return errors.IsRetryable(err) && !errors.Is(err, clients.ErrCircuitOpen)
	})
}

// ExecuteWithCircuitBreaker executes fn with circuit breaker protection and
// records the outcome in the health checker.
func (bc *BaseConnector) ExecuteWithCircuitBreaker(fn func() error) error {
	var err error
	if bc.circuitBreaker != nil {
		err = bc.circuitBreaker.Execute(fn)
	} else {
		err = fn()
	}
	if bc.healthChecker != nil {
		bc.healthChecker.Observe(err)
	}
	return err
}

// RateLimit enforces the configured rate limit, blocking if necessary.
// Returns immediately if no rate limiter is configured.
func (bc *BaseConnector) RateLimit(ctx context.Context) error {
	if bc.rateLimiter == nil {
		return nil
	}
	return bc.rateLimiter.Wait(ctx)
}

// RecordMetric adds delta to a named connector counter.
func (bc *BaseConnector) RecordMetric(name string, delta float64) {
	bc.metricsCollector.Add(name, delta)
}

// ReportProgress counts n processed records for table.
func (bc *BaseConnector) ReportProgress(table string, n int64) {
	if bc.progressReporter != nil {
		bc.progressReporter.Add(table, n)
	}
}

// UpdateHealth records the outcome of an operation in the health checker.
func (bc *BaseConnector) UpdateHealth(err error) {
	if bc.healthChecker != nil {
		bc.healthChecker.Observe(err)
	}
}

// GetLogger returns the connector logger
func (bc *BaseConnector) GetLogger() *zap.Logger {
	return bc.logger
}

// GetConfig returns the connector configuration
func (bc *BaseConnector) GetConfig() *config.BaseConfig {
	return bc.config
}

// GetContext returns the connector context, which is cancelled by Close.
func (bc *BaseConnector) GetContext() context.Context {
	if bc.ctx == nil {
		return context.Background()
	}
	return bc.ctx
}

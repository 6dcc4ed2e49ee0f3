package base

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Health status values.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// unhealthyAfter consecutive failures moves a connector from degraded to unhealthy.
const unhealthyAfter = 3

// HealthStatus is a point-in-time view of connector health.
type HealthStatus struct {
	Status    string
	Timestamp time.Time
	Error     error
	Details   map[string]interface{}
}

// HealthChecker derives connector health from the outcomes of remote calls.
// Connectors talk to batch APIs on demand, so health follows real traffic
// instead of a background check.
type HealthChecker struct {
	name   string
	logger *zap.Logger

	mu               sync.RWMutex
	status           HealthStatus
	consecutiveFails int

	checkCount   int64
	failureCount int64
}

// NewHealthChecker creates a health checker that starts out healthy.
func NewHealthChecker(name string, logger *zap.Logger) *HealthChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthChecker{
		name:   name,
		logger: logger.With(zap.String("component", "health_checker")),
		status: HealthStatus{
			Status:    StatusHealthy,
			Timestamp: time.Now(),
			Details:   make(map[string]interface{}),
		},
	}
}

// Observe records the outcome of one operation.
func (hc *HealthChecker) Observe(err error) {
	atomic.AddInt64(&hc.checkCount, 1)

	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.status.Timestamp = time.Now()

	if err != nil {
		atomic.AddInt64(&hc.failureCount, 1)
		hc.consecutiveFails++

		if hc.consecutiveFails >= unhealthyAfter {
			hc.status.Status = StatusUnhealthy
		} else {
			hc.status.Status = StatusDegraded
		}
		hc.status.Error = err
		hc.status.Details["consecutive_failures"] = hc.consecutiveFails
		hc.status.Details["last_error"] = err.Error()

		hc.logger.Warn("operation failed",
			zap.Error(err),
			zap.String("status", hc.status.Status),
			zap.Int("consecutive_failures", hc.consecutiveFails))
		return
	}

	hc.consecutiveFails = 0
	hc.status.Status = StatusHealthy
	hc.status.Error = nil
	delete(hc.status.Details, "consecutive_failures")
	delete(hc.status.Details, "last_error")
}

// GetStatus returns a copy of the current health status
func (hc *HealthChecker) GetStatus() HealthStatus {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	out := hc.status
	out.Details = make(map[string]interface{}, len(hc.status.Details))
	for k, v := range hc.status.Details {
		out.Details[k] = v
	}
	return out
}

// CheckCount returns the number of observed operations
func (hc *HealthChecker) CheckCount() int64 {
	return atomic.LoadInt64(&hc.checkCount)
}

// FailureCount returns the number of observed failures
func (hc *HealthChecker) FailureCount() int64 {
	return atomic.LoadInt64(&hc.failureCount)
}

package base

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/storepulse/pkg/clients"
	"github.com/ajitpratap0/storepulse/pkg/config"
	"github.com/ajitpratap0/storepulse/pkg/connector/core"
	"github.com/ajitpratap0/storepulse/pkg/errors"
)

func newInitialized(t *testing.T, mutate func(*config.BaseConfig)) *BaseConnector {
	t.Helper()
	return initialize(t, NewBaseConnector("test", core.ConnectorTypeSource, "1.0.0"), mutate)
}

func newGuarded(t *testing.T, mutate func(*config.BaseConfig)) *BaseConnector {
	t.Helper()
	return initialize(t, NewBaseConnector("test", core.ConnectorTypeDestination, "1.0.0").Guarded(), mutate)
}

func initialize(t *testing.T, bc *BaseConnector, mutate func(*config.BaseConfig)) *BaseConnector {
	t.Helper()
	cfg := config.NewBaseConfig("test", string(bc.Type()))
	cfg.Reliability.RetryDelay = time.Millisecond
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, bc.Initialize(context.Background(), cfg))
	t.Cleanup(func() { _ = bc.Close(context.Background()) })
	return bc
}

func TestBaseConnector_Lifecycle(t *testing.T) {
	bc := newInitialized(t, nil)

	assert.Equal(t, "test", bc.Name())
	assert.Equal(t, core.ConnectorTypeSource, bc.Type())
	assert.NoError(t, bc.Health(context.Background()))

	require.NoError(t, bc.Close(context.Background()))
	require.NoError(t, bc.Close(context.Background()))

	err := bc.Health(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
	assert.Error(t, bc.GetContext().Err())
}

func TestBaseConnector_ExecuteWithRetry(t *testing.T) {
	bc := newInitialized(t, func(cfg *config.BaseConfig) { cfg.Reliability.RetryAttempts = 2 })

	calls := 0
	err := bc.ExecuteWithRetry(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New(errors.ErrorTypeConnection, "reset")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = bc.ExecuteWithRetry(context.Background(), func() error {
		calls++
		return errors.New(errors.ErrorTypeConfig, "bad bucket")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestBaseConnector_HealthFollowsFailures(t *testing.T) {
	bc := newInitialized(t, func(cfg *config.BaseConfig) { cfg.Reliability.CircuitBreaker = false })

	boom := errors.New(errors.ErrorTypeRemote, "500")
	for i := 0; i < unhealthyAfter; i++ {
		_ = bc.ExecuteWithCircuitBreaker(func() error { return boom })
	}
	assert.Error(t, bc.Health(context.Background()))

	require.NoError(t, bc.ExecuteWithCircuitBreaker(func() error { return nil }))
	assert.NoError(t, bc.Health(context.Background()))
}

func TestBaseConnector_Metrics(t *testing.T) {
	limited := func(cfg *config.BaseConfig) { cfg.Reliability.RateLimitPerSec = 10 }

	bc := newGuarded(t, limited)
	bc.ReportProgress("app-downloads-detailed", 5)
	bc.RecordMetric("rows_emitted", 5)
	require.NoError(t, bc.RateLimit(context.Background()))

	m := bc.Metrics()
	assert.Equal(t, "test", m["name"])
	assert.Equal(t, int64(5), m["records_processed"])
	assert.Equal(t, float64(5), m["rows_emitted"])
	assert.Equal(t, "closed", m["circuit_breaker_state"])
	assert.Equal(t, float64(10), m["rate_limit"])
	assert.Equal(t, int64(1), m["rate_limiter_allowed"])

	source := newInitialized(t, limited).Metrics()
	assert.NotContains(t, source, "circuit_breaker_state")
	assert.NotContains(t, source, "rate_limit")
}

func TestBaseConnector_OpenCircuitStopsRetries(t *testing.T) {
	bc := newGuarded(t, func(cfg *config.BaseConfig) {
		cfg.Reliability.RetryAttempts = 10
	})

	calls := 0
	err := bc.ExecuteWithRetry(context.Background(), func() error {
		return bc.ExecuteWithCircuitBreaker(func() error {
			calls++
			return errors.New(errors.ErrorTypeConnection, "reset")
		})
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, clients.ErrCircuitOpen)
	assert.Equal(t, 5, calls)
	assert.Equal(t, "open", bc.Metrics()["circuit_breaker_state"])
	assert.Error(t, bc.Health(context.Background()))
}

func TestRetryPolicy_Delay(t *testing.T) {
	rp := NewRetryPolicy(5, 100*time.Millisecond)
	rp.RandomizeFactor = 0
	rp.MaxDelay = 300 * time.Millisecond

	assert.Equal(t, 100*time.Millisecond, rp.GetDelay(0))
	assert.Equal(t, 200*time.Millisecond, rp.GetDelay(1))
	assert.Equal(t, 300*time.Millisecond, rp.GetDelay(2))
}

func TestRetryPolicy_GivesUpAfterMaxAttempts(t *testing.T) {
	rp := NewRetryPolicy(3, time.Millisecond)
	calls := 0

	err := rp.Execute(context.Background(), func() error {
		calls++
		return errors.New(errors.ErrorTypeConnection, "reset")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConnection))
	assert.Equal(t, 3, errors.DetailsOf(err)["attempts"])
}

func TestRetryPolicy_Cancelled(t *testing.T) {
	rp := NewRetryPolicy(3, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := rp.Execute(ctx, func() error { return errors.New(errors.ErrorTypeConnection, "x") })
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeTimeout))
}

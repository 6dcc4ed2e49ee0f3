// Package clients provides the resilient HTTP transport shared by the
// connectors: retries with exponential backoff, token bucket rate limiting,
// a circuit breaker and HTTP/2, instrumented with Prometheus metrics.
package clients

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/ajitpratap0/storepulse/pkg/config"
	"github.com/ajitpratap0/storepulse/pkg/errors"
	"github.com/ajitpratap0/storepulse/pkg/metrics"
)

// HTTPDoer is the subset of *http.Client the connectors depend on.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type endpointKey struct{}

// WithEndpoint labels requests made with ctx for metrics.
func WithEndpoint(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, endpointKey{}, name)
}

func endpointFrom(ctx context.Context) string {
	if v, ok := ctx.Value(endpointKey{}).(string); ok && v != "" {
		return v
	}
	return "other"
}

// HTTPConfig configures the HTTP client
type HTTPConfig struct {
	// Connection settings
	MaxIdleConns        int           `json:"max_idle_conns"`
	MaxIdleConnsPerHost int           `json:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `json:"idle_conn_timeout"`
	EnableHTTP2         bool          `json:"enable_http2"`
	UserAgent           string        `json:"user_agent"`

	// Timeouts. Bodies are streamed, so there is no overall client timeout;
	// ResponseHeaderTimeout bounds how long a request may wait for the server.
	DialTimeout           time.Duration `json:"dial_timeout"`
	TLSHandshakeTimeout   time.Duration `json:"tls_handshake_timeout"`
	ResponseHeaderTimeout time.Duration `json:"response_header_timeout"`
	KeepAlive             time.Duration `json:"keep_alive"`

	// Retries
	RetryAttempts   int           `json:"retry_attempts"`
	RetryDelay      time.Duration `json:"retry_delay"`
	RetryMultiplier float64       `json:"retry_multiplier"`
	MaxRetryDelay   time.Duration `json:"max_retry_delay"`

	// Rate limiting (0 = unlimited)
	RateLimit float64 `json:"rate_limit"`
	RateBurst int     `json:"rate_burst"`

	// Circuit breaker
	CircuitBreakerEnabled bool          `json:"circuit_breaker_enabled"`
	FailureThreshold      int           `json:"failure_threshold"`
	SuccessThreshold      int           `json:"success_threshold"`
	BreakerTimeout        time.Duration `json:"breaker_timeout"`
}

// DefaultHTTPConfig returns the default transport configuration
func DefaultHTTPConfig() *HTTPConfig {
	return &HTTPConfig{
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		IdleConnTimeout:       90 * time.Second,
		EnableHTTP2:           true,
		UserAgent:             "storepulse/1.0",
		DialTimeout:           10 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
		KeepAlive:             30 * time.Second,
		RetryAttempts:         3,
		RetryDelay:            time.Second,
		RetryMultiplier:       2,
		MaxRetryDelay:         30 * time.Second,
		CircuitBreakerEnabled: true,
		FailureThreshold:      5,
		SuccessThreshold:      1,
		BreakerTimeout:        30 * time.Second,
	}
}

// HTTPConfigFrom derives transport settings from a connector configuration.
func HTTPConfigFrom(bc *config.BaseConfig) *HTTPConfig {
	cfg := DefaultHTTPConfig()
	if bc == nil {
		return cfg
	}
	if bc.Timeouts.Connection > 0 {
		cfg.DialTimeout = bc.Timeouts.Connection
	}
	if bc.Timeouts.Request > 0 {
		cfg.ResponseHeaderTimeout = bc.Timeouts.Request
	}
	if bc.Timeouts.Idle > 0 {
		cfg.IdleConnTimeout = bc.Timeouts.Idle
	}
	if bc.Timeouts.KeepAlive > 0 {
		cfg.KeepAlive = bc.Timeouts.KeepAlive
	}
	cfg.RetryAttempts = bc.Reliability.RetryAttempts
	if bc.Reliability.RetryDelay > 0 {
		cfg.RetryDelay = bc.Reliability.RetryDelay
	}
	if bc.Reliability.RetryMultiplier > 0 {
		cfg.RetryMultiplier = bc.Reliability.RetryMultiplier
	}
	if bc.Reliability.MaxRetryDelay > 0 {
		cfg.MaxRetryDelay = bc.Reliability.MaxRetryDelay
	}
	if bc.Reliability.IsRateLimited() {
		cfg.RateLimit = float64(bc.Reliability.RateLimitPerSec)
		cfg.RateBurst = bc.Reliability.RateLimitPerSec * 2
	}
	cfg.CircuitBreakerEnabled = bc.Reliability.CircuitBreaker
	return cfg
}

// HTTPClient is an instrumented HTTP client with retries, rate limiting and
// a circuit breaker. It implements HTTPDoer.
type HTTPClient struct {
	config    *HTTPConfig
	logger    *zap.Logger
	client    *http.Client
	transport *http.Transport

	rateLimiter    RateLimiter
	circuitBreaker *CircuitBreaker

	totalRequests  int64
	failedRequests int64
	retries        int64
}

// NewHTTPClient creates a new HTTP client
func NewHTTPClient(cfg *HTTPConfig, logger *zap.Logger) *HTTPClient {
	if cfg == nil {
		cfg = DefaultHTTPConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &HTTPClient{
		config: cfg,
		logger: logger.With(zap.String("component", "http_client")),
	}

	c.transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: cfg.KeepAlive,
		}).DialContext,
		MaxIdleConns:          cfg.MaxIdleConns,
		MaxIdleConnsPerHost:   cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:       cfg.IdleConnTimeout,
		TLSHandshakeTimeout:   cfg.TLSHandshakeTimeout,
		ResponseHeaderTimeout: cfg.ResponseHeaderTimeout,
		ExpectContinueTimeout: time.Second,
		TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
	}

	if cfg.EnableHTTP2 {
		if err := http2.ConfigureTransport(c.transport); err != nil {
			c.logger.Warn("failed to configure HTTP/2", zap.Error(err))
		}
	}

	c.client = &http.Client{
		Transport: c.transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return errors.New(errors.ErrorTypeConnection, "too many redirects")
			}
			return nil
		},
	}

	if cfg.RateLimit > 0 {
		c.rateLimiter = NewRateLimiter(cfg.RateLimit, cfg.RateBurst)
	}
	if cfg.CircuitBreakerEnabled {
		c.circuitBreaker = NewCircuitBreaker(CircuitBreakerConfig{
			Name:             "http",
			FailureThreshold: cfg.FailureThreshold,
			SuccessThreshold: cfg.SuccessThreshold,
			Timeout:          cfg.BreakerTimeout,
		}, logger)
	}

	return c
}

// Do sends req, retrying transport failures, 429 and 5xx responses with
// exponential backoff. The last response is returned unread whatever its
// status; callers decide what a non-2xx status means.
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	endpoint := endpointFrom(ctx)
	schedule := c.schedule()

	var (
		resp    *http.Response
		attempt int
	)
	operation := func() error {
		if attempt > 0 {
			atomic.AddInt64(&c.retries, 1)
			next, err := rewind(ctx, req)
			if err != nil {
				return backoff.Permanent(err)
			}
			req = next
		}
		attempt++
		last := attempt > c.config.RetryAttempts

		if c.rateLimiter != nil {
			if err := c.rateLimiter.Wait(ctx); err != nil {
				return backoff.Permanent(errors.Wrap(err, errors.ErrorTypeRateLimit, "rate limiter wait aborted"))
			}
		}
		if c.circuitBreaker != nil && !c.circuitBreaker.Allow() {
			atomic.AddInt64(&c.failedRequests, 1)
			return backoff.Permanent(ErrCircuitOpen)
		}
		if req.Header.Get("User-Agent") == "" && c.config.UserAgent != "" {
			req.Header.Set("User-Agent", c.config.UserAgent)
		}

		atomic.AddInt64(&c.totalRequests, 1)
		timer := metrics.NewTimer()
		r, err := c.client.Do(req)
		metrics.APIRequestDuration.WithLabelValues(endpoint).Observe(timer.Stop().Seconds())

		if err != nil {
			metrics.APIRequests.WithLabelValues(endpoint, "error").Inc()
			atomic.AddInt64(&c.failedRequests, 1)
			if ctx.Err() != nil {
				return backoff.Permanent(errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "request cancelled"))
			}
			c.recordFailure()
			return errors.Wrap(err, errors.ErrorTypeConnection, "request failed")
		}

		metrics.APIRequests.WithLabelValues(endpoint, strconv.Itoa(r.StatusCode)).Inc()

		if !retryableStatus(r.StatusCode) {
			c.recordSuccess()
			resp = r
			return nil
		}
		if r.StatusCode >= 500 {
			c.recordFailure()
		}
		if last {
			atomic.AddInt64(&c.failedRequests, 1)
			resp = r
			return nil
		}

		schedule.floor = retryAfter(r)
		_, _ = io.Copy(io.Discard, io.LimitReader(r.Body, 64*1024))
		_ = r.Body.Close()
		return errors.Newf(errors.ErrorTypeRateLimit, "status %d", r.StatusCode).WithDetail("status", r.StatusCode)
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn("request failed, retrying",
			zap.String("endpoint", endpoint),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err))
	}

	if err := backoff.RetryNotify(operation, backoff.WithContext(schedule, ctx), notify); err != nil {
		if ctx.Err() != nil && !errors.IsType(err, errors.ErrorTypeTimeout) {
			return nil, errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "request cancelled")
		}
		return nil, err
	}
	return resp, nil
}

// schedule returns the retry delays for one call of Do.
func (c *HTTPClient) schedule() *retryAfterBackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.config.RetryDelay
	exp.Multiplier = c.config.RetryMultiplier
	exp.RandomizationFactor = 0
	exp.MaxInterval = c.config.MaxRetryDelay
	if exp.MaxInterval <= 0 {
		exp.MaxInterval = time.Duration(1<<63 - 1)
	}
	exp.MaxElapsedTime = 0
	exp.Reset()

	retries := c.config.RetryAttempts
	if retries < 0 {
		retries = 0
	}
	return &retryAfterBackOff{BackOff: backoff.WithMaxRetries(exp, uint64(retries))}
}

// retryAfterBackOff never waits less than the last Retry-After the server
// sent.
type retryAfterBackOff struct {
	backoff.BackOff
	floor time.Duration
}

func (b *retryAfterBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next != backoff.Stop && b.floor > next {
		next = b.floor
	}
	b.floor = 0
	return next
}

// rewind prepares req for another attempt. Requests whose body cannot be
// replayed are not retried.
func rewind(ctx context.Context, req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return req, nil
	}
	if req.GetBody == nil {
		return nil, errors.New(errors.ErrorTypeConnection, "request body cannot be replayed for retry")
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to rewind request body")
	}
	next := req.Clone(ctx)
	next.Body = body
	return next, nil
}

func (c *HTTPClient) recordFailure() {
	if c.circuitBreaker != nil {
		c.circuitBreaker.RecordFailure()
	}
}

func (c *HTTPClient) recordSuccess() {
	if c.circuitBreaker != nil {
		c.circuitBreaker.RecordSuccess()
	}
}

// GetStats returns current client statistics
func (c *HTTPClient) GetStats() HTTPStats {
	stats := HTTPStats{
		TotalRequests:  atomic.LoadInt64(&c.totalRequests),
		FailedRequests: atomic.LoadInt64(&c.failedRequests),
		Retries:        atomic.LoadInt64(&c.retries),
	}
	if c.circuitBreaker != nil {
		stats.CircuitState = c.circuitBreaker.GetState().State
	}
	return stats
}

// Close releases idle connections.
func (c *HTTPClient) Close() error {
	c.transport.CloseIdleConnections()
	return nil
}

// HTTPStats represents HTTP client statistics
type HTTPStats struct {
	TotalRequests  int64  `json:"total_requests"`
	FailedRequests int64  `json:"failed_requests"`
	Retries        int64  `json:"retries"`
	CircuitState   string `json:"circuit_state,omitempty"`
}

func retryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}

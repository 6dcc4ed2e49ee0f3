// Package metrics provides Prometheus instrumentation for storepulse.
//
// The package-level vectors are registered with the default registry on
// import. Components record through them directly or through a Collector,
// which additionally keeps per-component counters for Metrics() snapshots.
//
//	metrics.RowsEmitted.WithLabelValues("App Downloads Detailed").Inc()
//
//	timer := metrics.NewTimer()
//	resp, err := client.Do(req)
//	metrics.APIRequestDuration.WithLabelValues("reports").Observe(timer.Stop().Seconds())
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// RowsEmitted counts rows yielded by report streams.
	// Labels: report (report name)
	RowsEmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storepulse_rows_emitted_total",
			Help: "Total number of report rows emitted",
		},
		[]string{"report"},
	)

	// SegmentsDownloaded counts report segments staged to disk.
	// Labels: report
	SegmentsDownloaded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storepulse_segments_downloaded_total",
			Help: "Total number of report segments downloaded",
		},
		[]string{"report"},
	)

	// SegmentBytes counts compressed bytes written to staging.
	SegmentBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "storepulse_segment_bytes_total",
			Help: "Total number of compressed segment bytes downloaded",
		},
	)

	// APIRequests counts remote API calls.
	// Labels: endpoint (logical name), status (HTTP status code or "error")
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storepulse_api_requests_total",
			Help: "Total number of remote API requests",
		},
		[]string{"endpoint", "status"},
	)

	// APIRequestDuration tracks remote API latency in seconds.
	// Labels: endpoint
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storepulse_api_request_duration_seconds",
			Help:    "Remote API request latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"endpoint"},
	)

	// RecordsWritten counts records accepted by destinations.
	// Labels: destination (connector name), table
	RecordsWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storepulse_records_written_total",
			Help: "Total number of records written by destinations",
		},
		[]string{"destination", "table"},
	)

	// Throughput tracks records per second between a source and destination.
	Throughput = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storepulse_throughput_records_per_second",
			Help: "Current throughput in records per second",
		},
		[]string{"source", "destination"},
	)

	// CircuitBreakerState reports 0 (closed), 1 (half-open) or 2 (open).
	// Labels: name (breaker name)
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storepulse_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)
)

// Handler exposes the default registry for scraping.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Collector keeps per-component counters for connector Metrics() snapshots.
// It is safe for concurrent use.
type Collector struct {
	name      string
	startTime time.Time

	mu     sync.RWMutex
	values map[string]float64
}

// NewCollector creates a new metrics collector for a component.
func NewCollector(name string) *Collector {
	return &Collector{
		name:      name,
		startTime: time.Now(),
		values:    make(map[string]float64),
	}
}

// Add increments the named counter by delta.
func (c *Collector) Add(name string, delta float64) {
	c.mu.Lock()
	c.values[name] += delta
	c.mu.Unlock()
}

// Set overwrites the named value.
func (c *Collector) Set(name string, value float64) {
	c.mu.Lock()
	c.values[name] = value
	c.mu.Unlock()
}

// Get returns the named value, or zero.
func (c *Collector) Get(name string) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.values[name]
}

// GetAll returns a snapshot of every recorded value plus component uptime.
func (c *Collector) GetAll() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]interface{}, len(c.values)+3)
	for k, v := range c.values {
		out[k] = v
	}
	out["component"] = c.name
	out["start_time"] = c.startTime
	out["uptime"] = time.Since(c.startTime).Seconds()
	return out
}

// Timer measures an operation's duration.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer and starts timing immediately.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed duration since creation. It can be called repeatedly.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}

// ThroughputTracker tracks records per second between two endpoints.
// Thread-safe for concurrent use.
type ThroughputTracker struct {
	mu          sync.Mutex
	count       int64
	lastReset   time.Time
	source      string
	destination string
}

// NewThroughputTracker creates a new throughput tracker for a pipeline.
func NewThroughputTracker(source, destination string) *ThroughputTracker {
	return &ThroughputTracker{
		lastReset:   time.Now(),
		source:      source,
		destination: destination,
	}
}

// Increment adds n to the record count.
func (t *ThroughputTracker) Increment(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.count += n
}

// GetAndReset returns the throughput since the last reset, publishes it to
// the Throughput gauge and resets the counter.
func (t *ThroughputTracker) GetAndReset() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Since(t.lastReset).Seconds()
	if elapsed == 0 {
		return 0
	}

	throughput := float64(t.count) / elapsed
	t.count = 0
	t.lastReset = time.Now()

	Throughput.WithLabelValues(t.source, t.destination).Set(throughput)
	return throughput
}

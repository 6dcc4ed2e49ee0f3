package base

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/storepulse/pkg/metrics"
)

// progressLogEvery controls how many records pass between progress log lines.
const progressLogEvery = 10000

// ProgressReporter counts processed records per table and logs progress at
// a fixed record interval plus a summary when the connector closes.
type ProgressReporter struct {
	logger           *zap.Logger
	metricsCollector *metrics.Collector
	startTime        time.Time

	mu        sync.Mutex
	perTable  map[string]int64
	processed int64
	nextLog   int64
}

// NewProgressReporter creates a new progress reporter
func NewProgressReporter(logger *zap.Logger, collector *metrics.Collector) *ProgressReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProgressReporter{
		logger:           logger,
		metricsCollector: collector,
		startTime:        time.Now(),
		perTable:         make(map[string]int64),
		nextLog:          progressLogEvery,
	}
}

// Add counts n records processed for table.
func (pr *ProgressReporter) Add(table string, n int64) {
	pr.mu.Lock()
	pr.perTable[table] += n
	pr.processed += n
	processed := pr.processed
	shouldLog := processed >= pr.nextLog
	if shouldLog {
		pr.nextLog = processed + progressLogEvery
	}
	pr.mu.Unlock()

	if pr.metricsCollector != nil {
		pr.metricsCollector.Add("records_processed", float64(n))
	}
	if shouldLog {
		pr.logger.Info("progress update",
			zap.Int64("processed", processed),
			zap.Float64("throughput", pr.Throughput()),
			zap.Duration("elapsed", time.Since(pr.startTime)))
	}
}

// Processed returns the total record count.
func (pr *ProgressReporter) Processed() int64 {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.processed
}

// Tables returns a copy of the per-table record counts.
func (pr *ProgressReporter) Tables() map[string]int64 {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	out := make(map[string]int64, len(pr.perTable))
	for k, v := range pr.perTable {
		out[k] = v
	}
	return out
}

// Throughput returns the average records per second since creation.
func (pr *ProgressReporter) Throughput() float64 {
	elapsed := time.Since(pr.startTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(pr.Processed()) / elapsed
}

// Final logs the summary with one field per table.
func (pr *ProgressReporter) Final() {
	tables := pr.Tables()
	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := []zap.Field{
		zap.Int64("total_processed", pr.Processed()),
		zap.Duration("total_time", time.Since(pr.startTime)),
		zap.Float64("avg_throughput", pr.Throughput()),
	}
	for _, name := range names {
		fields = append(fields, zap.Int64("table."+name, tables[name]))
	}
	pr.logger.Info("processing completed", fields...)
}

// Package pipeline runs a source into a destination.
//
// A run discovers the source schemas, registers them with the destination
// and then streams record batches through optional transforms into the
// destination. The first error from any stage aborts the run and is
// returned; nothing downstream keeps consuming after a failure.
//
//	p := pipeline.NewSimplePipeline(source, destination, pipeline.DefaultPipelineConfig(), logger)
//	p.AddTransform(pipeline.FieldMapperTransform(map[string]string{"counts": "downloads"}))
//	if err := p.Run(ctx); err != nil {
//	    return err
//	}
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/ajitpratap0/storepulse/pkg/connector/core"
	"github.com/ajitpratap0/storepulse/pkg/errors"
	"github.com/ajitpratap0/storepulse/pkg/metrics"
	"github.com/ajitpratap0/storepulse/pkg/pool"
)

// SimplePipeline moves batches from one source to one destination.
type SimplePipeline struct {
	source      core.Source
	destination core.Destination
	transforms  []Transform

	batchSize     int
	flushInterval time.Duration

	recordsProcessed int64
	recordsFiltered  int64
	batches          int64

	logger *zap.Logger

	mu        sync.Mutex
	startTime time.Time
	duration  time.Duration
	cancel    context.CancelFunc
}

// Transform modifies a record in flight. Returning a nil record drops it.
type Transform func(ctx context.Context, record *pool.Record) (*pool.Record, error)

// PipelineConfig controls batching and progress reporting.
type PipelineConfig struct {
	BatchSize     int           // Records per batch handed to the destination
	FlushInterval time.Duration // Progress and throughput reporting period
}

// DefaultPipelineConfig returns the default configuration.
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		BatchSize:     5000,
		FlushInterval: 10 * time.Second,
	}
}

// NewSimplePipeline creates a pipeline. Call Run to start it.
func NewSimplePipeline(source core.Source, destination core.Destination, config *PipelineConfig, logger *zap.Logger) *SimplePipeline {
	if config == nil {
		config = DefaultPipelineConfig()
	}
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultPipelineConfig().BatchSize
	}
	if config.FlushInterval <= 0 {
		config.FlushInterval = DefaultPipelineConfig().FlushInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimplePipeline{
		source:        source,
		destination:   destination,
		batchSize:     config.BatchSize,
		flushInterval: config.FlushInterval,
		logger:        logger.With(zap.String("component", "pipeline")),
	}
}

// AddTransform appends a transform. Transforms run in the order added.
func (p *SimplePipeline) AddTransform(transform Transform) {
	p.transforms = append(p.transforms, transform)
}

// Run executes the pipeline until the source is exhausted or a stage fails.
func (p *SimplePipeline) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.mu.Lock()
	p.startTime = time.Now()
	p.cancel = cancel
	p.mu.Unlock()

	p.logger.Info("starting pipeline",
		zap.String("source", p.source.Name()),
		zap.String("destination", p.destination.Name()),
		zap.Int("batch_size", p.batchSize),
		zap.Int("transforms", len(p.transforms)))

	schemas, err := p.source.Discover(runCtx)
	if err != nil {
		return errors.Annotate(err, errors.ErrorTypeInternal, "schema discovery failed")
	}
	for _, schema := range schemas {
		if err := p.destination.CreateSchema(runCtx, schema); err != nil {
			return errors.Annotate(err, errors.ErrorTypeInternal, "failed to create destination schema "+schema.Name)
		}
	}

	in, err := p.readBatches(runCtx)
	if err != nil {
		return errors.Annotate(err, errors.ErrorTypeInternal, "failed to start source read")
	}

	tracker := metrics.NewThroughputTracker(p.source.Name(), p.destination.Name())
	stopReporter := p.startReporter(runCtx, tracker)
	err = p.destination.WriteBatch(runCtx, p.transform(runCtx, in, tracker))
	stopReporter()
	cancel()

	p.mu.Lock()
	p.duration = time.Since(p.startTime)
	p.mu.Unlock()

	fields := []zap.Field{
		zap.Int64("records_processed", atomic.LoadInt64(&p.recordsProcessed)),
		zap.Int64("records_filtered", atomic.LoadInt64(&p.recordsFiltered)),
		zap.Duration("duration", p.duration),
	}
	if err != nil {
		p.logger.Error("pipeline failed", append(fields, zap.Error(err))...)
		return err
	}
	p.logger.Info("pipeline completed", append(fields, zap.Float64("throughput_rps", tracker.GetAndReset()))...)
	return nil
}

func (p *SimplePipeline) readBatches(ctx context.Context) (*core.BatchStream, error) {
	if p.source.SupportsBatch() {
		return p.source.ReadBatch(ctx, p.batchSize)
	}
	stream, err := p.source.Read(ctx)
	if err != nil {
		return nil, err
	}
	return core.Batch(ctx, stream, p.batchSize), nil
}

// transform applies the transforms to every batch. A source or transform
// error is forwarded on the returned stream's Errors channel.
func (p *SimplePipeline) transform(ctx context.Context, in *core.BatchStream, tracker *metrics.ThroughputTracker) *core.BatchStream {
	out := make(chan []*pool.Record, 4)
	errs := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errs)

		err := core.ConsumeBatches(ctx, in, func(batch []*pool.Record) error {
			batch, err := p.apply(ctx, batch)
			if err != nil {
				return err
			}
			if len(batch) == 0 {
				return nil
			}
			select {
			case out <- batch:
				atomic.AddInt64(&p.recordsProcessed, int64(len(batch)))
				atomic.AddInt64(&p.batches, 1)
				tracker.Increment(int64(len(batch)))
				return nil
			case <-ctx.Done():
				return errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "pipeline cancelled")
			}
		})
		if err != nil {
			errs <- err
		}
	}()

	return &core.BatchStream{Batches: out, Errors: errs}
}

func (p *SimplePipeline) apply(ctx context.Context, batch []*pool.Record) ([]*pool.Record, error) {
	if len(p.transforms) == 0 {
		return batch, nil
	}
	kept := batch[:0]
	for _, record := range batch {
		current := record
		for _, transform := range p.transforms {
			next, err := transform(ctx, current)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeData, "transform failed")
			}
			if current = next; current == nil {
				break
			}
		}
		if current == nil {
			atomic.AddInt64(&p.recordsFiltered, 1)
			record.Release()
			continue
		}
		kept = append(kept, current)
	}
	return kept, nil
}

func (p *SimplePipeline) startReporter(ctx context.Context, tracker *metrics.ThroughputTracker) func() {
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(p.flushInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.logger.Info("pipeline progress",
					zap.Int64("records_processed", atomic.LoadInt64(&p.recordsProcessed)),
					zap.Float64("throughput_rps", tracker.GetAndReset()))
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

// Stop cancels a running pipeline.
func (p *SimplePipeline) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		p.logger.Info("stopping pipeline")
		cancel()
	}
}

// Metrics returns pipeline counters.
func (p *SimplePipeline) Metrics() map[string]interface{} {
	p.mu.Lock()
	duration := p.duration
	if duration == 0 && !p.startTime.IsZero() {
		duration = time.Since(p.startTime)
	}
	p.mu.Unlock()

	processed := atomic.LoadInt64(&p.recordsProcessed)
	throughput := 0.0
	if duration > 0 {
		throughput = float64(processed) / duration.Seconds()
	}
	return map[string]interface{}{
		"records_processed": processed,
		"records_filtered":  atomic.LoadInt64(&p.recordsFiltered),
		"batches":           atomic.LoadInt64(&p.batches),
		"duration":          duration.String(),
		"throughput_rps":    throughput,
		"batch_size":        p.batchSize,
		"transform_count":   len(p.transforms),
	}
}

// FieldMapperTransform renames fields according to mapping. Unmapped fields
// are kept.
func FieldMapperTransform(mapping map[string]string) Transform {
	return func(ctx context.Context, record *pool.Record) (*pool.Record, error) {
		if record.Data == nil || len(mapping) == 0 {
			return record, nil
		}
		for oldField, newField := range mapping {
			if value, ok := record.Data[oldField]; ok && oldField != newField {
				delete(record.Data, oldField)
				record.Data[newField] = value
			}
		}
		return record, nil
	}
}

// FilterTransform keeps the records matching predicate.
func FilterTransform(predicate func(*pool.Record) bool) Transform {
	return func(ctx context.Context, record *pool.Record) (*pool.Record, error) {
		if predicate(record) {
			return record, nil
		}
		return nil, nil
	}
}

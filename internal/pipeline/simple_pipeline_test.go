package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/storepulse/pkg/config"
	"github.com/ajitpratap0/storepulse/pkg/connector/base"
	"github.com/ajitpratap0/storepulse/pkg/connector/core"
	"github.com/ajitpratap0/storepulse/pkg/errors"
	"github.com/ajitpratap0/storepulse/pkg/pool"
	"github.com/ajitpratap0/storepulse/pkg/testutil"
)

type fakeSource struct {
	*base.BaseConnector
	tables  []string
	failAt  int
	failErr error
}

func newFakeSource(tables ...string) *fakeSource {
	return &fakeSource{BaseConnector: base.NewBaseConnector("fake-source", core.ConnectorTypeSource, "1.0.0"), tables: tables, failAt: -1}
}

func (s *fakeSource) Discover(context.Context) ([]*core.Schema, error) {
	seen := map[string]bool{}
	var out []*core.Schema
	for _, t := range s.tables {
		if !seen[t] {
			seen[t] = true
			out = append(out, &core.Schema{Name: t})
		}
	}
	return out, nil
}

func (s *fakeSource) Read(ctx context.Context) (*core.RecordStream, error) {
	records := make(chan *pool.Record)
	errs := make(chan error, 1)
	go func() {
		defer close(records)
		defer close(errs)
		for i, table := range s.tables {
			if i == s.failAt {
				errs <- s.failErr
				return
			}
			r := pool.NewRecord("fake-source", map[string]interface{}{"i": i, "counts": i * 10})
			r.Metadata.Table = table
			select {
			case records <- r:
			case <-ctx.Done():
				return
			}
		}
	}()
	return &core.RecordStream{Records: records, Errors: errs}, nil
}

func (s *fakeSource) ReadBatch(ctx context.Context, batchSize int) (*core.BatchStream, error) {
	stream, err := s.Read(ctx)
	if err != nil {
		return nil, err
	}
	return core.Batch(ctx, stream, batchSize), nil
}

func (s *fakeSource) SupportsBatch() bool { return true }

type fakeDestination struct {
	*base.BaseConnector
	mu      sync.Mutex
	schemas []string
	rows    []map[string]interface{}
	failOn  int
}

func newFakeDestination() *fakeDestination {
	return &fakeDestination{BaseConnector: base.NewBaseConnector("fake-destination", core.ConnectorTypeDestination, "1.0.0"), failOn: -1}
}

func (d *fakeDestination) CreateSchema(_ context.Context, schema *core.Schema) error {
	d.schemas = append(d.schemas, schema.Name)
	return nil
}

func (d *fakeDestination) Write(ctx context.Context, stream *core.RecordStream) error {
	return d.WriteBatch(ctx, core.Batch(ctx, stream, 1))
}

func (d *fakeDestination) WriteBatch(ctx context.Context, stream *core.BatchStream) error {
	return core.ConsumeBatches(ctx, stream, func(batch []*pool.Record) error {
		d.mu.Lock()
		defer d.mu.Unlock()
		for _, r := range batch {
			if len(d.rows) == d.failOn {
				return errors.New(errors.ErrorTypeFile, "disk full")
			}
			row := map[string]interface{}{"table": r.Metadata.Table}
			for k, v := range r.Data {
				row[k] = v
			}
			d.rows = append(d.rows, row)
		}
		return nil
	})
}

func (d *fakeDestination) SupportsBatch() bool { return true }

func initConnectors(t *testing.T, src *fakeSource, dst *fakeDestination) {
	ctx := testutil.TestContext(t)
	require.NoError(t, src.Initialize(ctx, config.NewBaseConfig("fake-source", "fake")))
	require.NoError(t, dst.Initialize(ctx, config.NewBaseConfig("fake-destination", "fake")))
}

func TestSimplePipeline_Run(t *testing.T) {
	src := newFakeSource("a", "a", "b", "a")
	dst := newFakeDestination()
	initConnectors(t, src, dst)

	p := NewSimplePipeline(src, dst, &PipelineConfig{BatchSize: 2, FlushInterval: time.Hour}, testutil.TestLogger(t))
	require.NoError(t, p.Run(testutil.TestContext(t)))

	assert.Equal(t, []string{"a", "b"}, dst.schemas)
	require.Len(t, dst.rows, 4)
	assert.Equal(t, []interface{}{"a", "a", "b", "a"}, []interface{}{dst.rows[0]["table"], dst.rows[1]["table"], dst.rows[2]["table"], dst.rows[3]["table"]})

	m := p.Metrics()
	assert.EqualValues(t, 4, m["records_processed"])
	assert.EqualValues(t, 3, m["batches"])
}

func TestSimplePipeline_Transforms(t *testing.T) {
	src := newFakeSource("a", "a", "a")
	dst := newFakeDestination()
	initConnectors(t, src, dst)

	p := NewSimplePipeline(src, dst, nil, testutil.TestLogger(t))
	p.AddTransform(FieldMapperTransform(map[string]string{"counts": "downloads"}))
	p.AddTransform(FilterTransform(func(r *pool.Record) bool { return r.Data["i"] != 1 }))
	require.NoError(t, p.Run(testutil.TestContext(t)))

	require.Len(t, dst.rows, 2)
	for _, row := range dst.rows {
		assert.NotContains(t, row, "counts")
		assert.Contains(t, row, "downloads")
	}
	assert.EqualValues(t, 1, p.Metrics()["records_filtered"])
}

func TestSimplePipeline_SourceErrorAborts(t *testing.T) {
	src := newFakeSource("a", "a", "a", "a")
	src.failAt = 2
	src.failErr = errors.New(errors.ErrorTypeNotFound, "no instances in range")
	dst := newFakeDestination()
	initConnectors(t, src, dst)

	p := NewSimplePipeline(src, dst, &PipelineConfig{BatchSize: 1}, testutil.TestLogger(t))
	err := p.Run(testutil.TestContext(t))
	require.Error(t, err)
	assert.True(t, errors.Is(err, src.failErr))
	assert.Equal(t, errors.ErrorTypeNotFound, errors.TypeOf(err))
	assert.Len(t, dst.rows, 2, "rows read before the failure reach the destination")
}

func TestSimplePipeline_DestinationErrorAborts(t *testing.T) {
	src := newFakeSource("a", "a", "a", "a", "a")
	dst := newFakeDestination()
	dst.failOn = 1
	initConnectors(t, src, dst)

	p := NewSimplePipeline(src, dst, &PipelineConfig{BatchSize: 1}, testutil.TestLogger(t))
	err := p.Run(testutil.TestContext(t))
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeFile, errors.TypeOf(err))
	assert.Len(t, dst.rows, 1)
}

func TestSimplePipeline_Cancelled(t *testing.T) {
	src := newFakeSource("a", "a")
	dst := newFakeDestination()
	initConnectors(t, src, dst)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := NewSimplePipeline(src, dst, nil, testutil.TestLogger(t))
	err := p.Run(ctx)
	require.Error(t, err)
}

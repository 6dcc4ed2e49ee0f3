// Package json implements a destination that writes one JSON lines file per
// table, optionally compressed.
package json

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/ajitpratap0/storepulse/pkg/compression"
	"github.com/ajitpratap0/storepulse/pkg/config"
	"github.com/ajitpratap0/storepulse/pkg/connector/base"
	"github.com/ajitpratap0/storepulse/pkg/connector/core"
	"github.com/ajitpratap0/storepulse/pkg/errors"
	jsonpool "github.com/ajitpratap0/storepulse/pkg/json"
	"github.com/ajitpratap0/storepulse/pkg/metrics"
	"github.com/ajitpratap0/storepulse/pkg/pool"
)

// ConnectorName is the registry name of the destination.
const ConnectorName = "json"

// DefaultTable names the file of records that carry no table.
const DefaultTable = "records"

// Destination writes records to <output_dir>/<table>.jsonl.
type Destination struct {
	*base.BaseConnector

	config    *config.JSONDestinationConfig
	algorithm compression.Algorithm
	level     compression.Level

	mu      sync.Mutex
	files   map[string]*tableFile
	schemas map[string]*core.Schema

	recordsWritten int64
}

type tableFile struct {
	path  string
	file  *os.File
	buf   *bufio.Writer
	codec io.WriteCloser
	lines *jsonpool.LinesWriter
}

// NewDestination creates a JSON lines destination.
func NewDestination(name string, _ *config.BaseConfig) (core.Destination, error) {
	if name == "" {
		name = ConnectorName
	}
	return &Destination{
		BaseConnector: base.NewBaseConnector(name, core.ConnectorTypeDestination, "1.0.0"),
		files:         make(map[string]*tableFile),
		schemas:       make(map[string]*core.Schema),
	}, nil
}

// Initialize validates configuration and creates the output directory.
func (d *Destination) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if err := d.BaseConnector.Initialize(ctx, cfg); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize base connector")
	}
	destCfg, err := config.JSONDestinationConfigFrom(cfg)
	if err != nil {
		return err
	}

	d.algorithm = compression.None
	if cfg.Advanced.IsCompressionEnabled() {
		if d.algorithm, err = compression.ParseAlgorithm(cfg.Advanced.CompressionAlgorithm); err != nil {
			return err
		}
		d.level = compression.LevelFrom(cfg.Advanced.CompressionLevel)
	}

	if err := os.MkdirAll(destCfg.OutputDir, 0o755); err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to create output directory").
			WithDetail("output_dir", destCfg.OutputDir)
	}
	d.config = destCfg

	d.GetLogger().Info("json destination initialized",
		zap.String("output_dir", destCfg.OutputDir),
		zap.String("compression", string(d.algorithm)))
	return nil
}

// CreateSchema remembers the schema of a table. Files are created lazily on
// the first record.
func (d *Destination) CreateSchema(ctx context.Context, schema *core.Schema) error {
	if schema == nil || schema.Name == "" {
		return errors.New(errors.ErrorTypeValidation, "schema name is required")
	}
	d.mu.Lock()
	d.schemas[schema.Name] = schema
	d.mu.Unlock()
	return nil
}

// Write consumes the stream record by record.
func (d *Destination) Write(ctx context.Context, stream *core.RecordStream) error {
	if d.config == nil {
		return errors.New(errors.ErrorTypeConfig, "destination is not initialized")
	}
	return core.ConsumeRecords(ctx, stream, func(record *pool.Record) error {
		return d.writeRecords([]*pool.Record{record})
	})
}

// WriteBatch consumes the stream batch by batch.
func (d *Destination) WriteBatch(ctx context.Context, stream *core.BatchStream) error {
	if d.config == nil {
		return errors.New(errors.ErrorTypeConfig, "destination is not initialized")
	}
	return core.ConsumeBatches(ctx, stream, d.writeRecords)
}

func (d *Destination) writeRecords(records []*pool.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, record := range records {
		table := TableName(record)
		tf, err := d.open(table)
		if err != nil {
			return err
		}
		if err := tf.lines.WriteRecord(record); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to write record").WithDetail("path", tf.path)
		}
		record.Release()
		atomic.AddInt64(&d.recordsWritten, 1)
		metrics.RecordsWritten.WithLabelValues(d.Name(), table).Inc()
		d.ReportProgress(table, 1)
	}
	return nil
}

// TableName returns the file-safe table of a record.
func TableName(record *pool.Record) string {
	table := strings.TrimSpace(record.Metadata.Table)
	if table == "" {
		return DefaultTable
	}
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(table)
}

func (d *Destination) open(table string) (*tableFile, error) {
	if tf, ok := d.files[table]; ok {
		return tf, nil
	}

	path := filepath.Join(d.config.OutputDir, table+".jsonl"+d.algorithm.Extension())
	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create output file").WithDetail("path", path)
	}
	buf := bufio.NewWriterSize(file, 64*1024)
	codec, err := compression.NewWriter(d.algorithm, d.level, buf)
	if err != nil {
		_ = file.Close()
		return nil, err
	}

	tf := &tableFile{path: path, file: file, buf: buf, codec: codec, lines: jsonpool.NewLinesWriter(codec)}
	d.files[table] = tf
	d.GetLogger().Debug("opened table file", zap.String("table", table), zap.String("path", path))
	return tf, nil
}

func (tf *tableFile) close() error {
	defer tf.lines.Release()
	if err := tf.codec.Close(); err != nil {
		_ = tf.file.Close()
		return err
	}
	if err := tf.buf.Flush(); err != nil {
		_ = tf.file.Close()
		return err
	}
	return tf.file.Close()
}

// Files returns the paths written so far, sorted.
func (d *Destination) Files() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.files))
	for _, tf := range d.files {
		out = append(out, tf.path)
	}
	sort.Strings(out)
	return out
}

// Close flushes and closes every table file.
func (d *Destination) Close(ctx context.Context) error {
	d.mu.Lock()
	var firstErr error
	for table, tf := range d.files {
		if err := tf.close(); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, errors.ErrorTypeFile, "failed to close output file").WithDetail("path", tf.path)
		}
		d.GetLogger().Debug("closed table file", zap.String("table", table), zap.Int64("records", tf.lines.Count()))
		delete(d.files, table)
	}
	d.mu.Unlock()

	if err := d.BaseConnector.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (d *Destination) SupportsBatch() bool { return true }

// Metrics adds write counters to the base metrics.
func (d *Destination) Metrics() map[string]interface{} {
	out := d.BaseConnector.Metrics()
	out["records_written"] = atomic.LoadInt64(&d.recordsWritten)
	out["compression"] = string(d.algorithm)
	d.mu.Lock()
	out["open_files"] = len(d.files)
	d.mu.Unlock()
	return out
}

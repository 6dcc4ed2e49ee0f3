// Package s3 implements a destination that uploads JSON lines objects to
// S3, partitioned by table and processing date.
//
// Objects are laid out as
//
//	<prefix>/<table>/processing_date=<date>/part-<run>-<n>.jsonl[.ext]
//
// and each object holds at most records_per_file records.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
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
const ConnectorName = "s3"

// UnknownDate is the partition of records without a processing date.
const UnknownDate = "unknown"

// Uploader is the subset of manager.Uploader the destination uses.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// Destination buffers records per partition and uploads them as objects.
type Destination struct {
	*base.BaseConnector

	config    *config.S3DestinationConfig
	uploader  Uploader
	algorithm compression.Algorithm
	level     compression.Level
	runID     string

	mu         sync.Mutex
	partitions map[partitionKey]*partition
	parts      map[partitionKey]int

	recordsWritten int64
	bytesWritten   int64
	objectsWritten int64
}

type partitionKey struct {
	table string
	date  string
}

type partition struct {
	buf   *bytes.Buffer
	lines *jsonpool.LinesWriter
}

// NewDestination creates an S3 destination.
func NewDestination(name string, _ *config.BaseConfig) (core.Destination, error) {
	if name == "" {
		name = ConnectorName
	}
	return &Destination{
		BaseConnector: base.NewBaseConnector(name, core.ConnectorTypeDestination, "1.0.0").Guarded(),
		partitions:    make(map[partitionKey]*partition),
		parts:         make(map[partitionKey]int),
	}, nil
}

// SetUploader replaces the AWS uploader. It must be called before Initialize.
func (d *Destination) SetUploader(u Uploader) {
	d.uploader = u
}

// Initialize validates configuration and builds the AWS uploader.
func (d *Destination) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if err := d.BaseConnector.Initialize(ctx, cfg); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to initialize base connector")
	}
	destCfg, err := config.S3DestinationConfigFrom(cfg)
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

	if d.uploader == nil {
		client, err := newS3Client(ctx, destCfg)
		if err != nil {
			return err
		}
		concurrency := cfg.Performance.MaxConcurrency
		d.uploader = manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = destCfg.PartSize
			if concurrency > 0 {
				u.Concurrency = concurrency
			}
		})
	}

	d.config = destCfg
	d.runID = time.Now().UTC().Format("20060102T150405Z")
	d.GetLogger().Info("s3 destination initialized",
		zap.String("bucket", destCfg.Bucket),
		zap.String("prefix", destCfg.Prefix),
		zap.Int("records_per_file", destCfg.RecordsPerFile),
		zap.String("compression", string(d.algorithm)))
	return nil
}

func newS3Client(ctx context.Context, cfg *config.S3DestinationConfig) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to load AWS configuration")
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	}), nil
}

// CreateSchema uploads the table schema next to its data.
func (d *Destination) CreateSchema(ctx context.Context, schema *core.Schema) error {
	if d.config == nil {
		return errors.New(errors.ErrorTypeConfig, "destination is not initialized")
	}
	if schema == nil || schema.Name == "" {
		return errors.New(errors.ErrorTypeValidation, "schema name is required")
	}
	body, err := jsonpool.MarshalIndent(schema, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to marshal schema")
	}
	key := path.Join(d.config.Prefix, sanitize(schema.Name), "_schema.json")
	return d.put(ctx, key, body, "application/json", nil)
}

// Write consumes the stream and uploads every remaining partition when it ends.
func (d *Destination) Write(ctx context.Context, stream *core.RecordStream) error {
	if d.config == nil {
		return errors.New(errors.ErrorTypeConfig, "destination is not initialized")
	}
	err := core.ConsumeRecords(ctx, stream, func(record *pool.Record) error {
		return d.add(ctx, []*pool.Record{record})
	})
	if err != nil {
		d.discard()
		return err
	}
	return d.Flush(ctx)
}

// WriteBatch is Write for batch streams.
func (d *Destination) WriteBatch(ctx context.Context, stream *core.BatchStream) error {
	if d.config == nil {
		return errors.New(errors.ErrorTypeConfig, "destination is not initialized")
	}
	err := core.ConsumeBatches(ctx, stream, func(batch []*pool.Record) error {
		return d.add(ctx, batch)
	})
	if err != nil {
		d.discard()
		return err
	}
	return d.Flush(ctx)
}

func (d *Destination) add(ctx context.Context, records []*pool.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, record := range records {
		key := partitionOf(record)
		p, ok := d.partitions[key]
		if !ok {
			buf := jsonpool.GetBuffer()
			p = &partition{buf: buf, lines: jsonpool.NewLinesWriter(buf)}
			d.partitions[key] = p
		}
		if err := p.lines.WriteRecord(record); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to encode record")
		}
		record.Release()

		if p.lines.Count() >= int64(d.config.RecordsPerFile) {
			if err := d.upload(ctx, key, p); err != nil {
				return err
			}
		}
	}
	return nil
}

// discard drops buffered partitions so a failed run leaves no partial
// objects behind on Close.
func (d *Destination) discard() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, p := range d.partitions {
		dropped := p.lines.Count()
		p.lines.Release()
		jsonpool.PutBuffer(p.buf)
		delete(d.partitions, key)
		d.GetLogger().Warn("discarded buffered records", zap.String("table", key.table), zap.String("date", key.date), zap.Int64("records", dropped))
	}
}

// Flush uploads every buffered partition.
func (d *Destination) Flush(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	keys := make([]partitionKey, 0, len(d.partitions))
	for key := range d.partitions {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].table != keys[j].table {
			return keys[i].table < keys[j].table
		}
		return keys[i].date < keys[j].date
	})
	for _, key := range keys {
		if err := d.upload(ctx, key, d.partitions[key]); err != nil {
			return err
		}
	}
	return nil
}

// upload sends one partition buffer as an object and forgets it. The caller
// holds d.mu.
func (d *Destination) upload(ctx context.Context, key partitionKey, p *partition) error {
	count := p.lines.Count()
	delete(d.partitions, key)
	defer func() {
		p.lines.Release()
		jsonpool.PutBuffer(p.buf)
	}()
	if count == 0 {
		return nil
	}

	body := p.buf.Bytes()
	if d.algorithm != compression.None {
		compressed, err := compression.Compress(d.algorithm, d.level, body)
		if err != nil {
			return err
		}
		body = compressed
	}

	part := d.parts[key]
	d.parts[key] = part + 1
	objectKey := d.ObjectKey(key.table, key.date, part)

	meta := map[string]string{
		"records":     strconv.FormatInt(count, 10),
		"compression": string(d.algorithm),
	}
	if err := d.put(ctx, objectKey, body, "application/x-ndjson", meta); err != nil {
		return err
	}

	atomic.AddInt64(&d.recordsWritten, count)
	atomic.AddInt64(&d.bytesWritten, int64(len(body)))
	atomic.AddInt64(&d.objectsWritten, 1)
	metrics.RecordsWritten.WithLabelValues(d.Name(), key.table).Add(float64(count))
	d.ReportProgress(key.table, count)
	d.GetLogger().Info("object uploaded",
		zap.String("key", objectKey),
		zap.Int64("records", count),
		zap.Int("bytes", len(body)))
	return nil
}

func (d *Destination) put(ctx context.Context, key string, body []byte, contentType string, meta map[string]string) error {
	return d.ExecuteWithRetry(ctx, func() error {
		if err := d.RateLimit(ctx); err != nil {
			return err
		}
		return d.ExecuteWithCircuitBreaker(func() error {
			_, err := d.uploader.Upload(ctx, &s3.PutObjectInput{
				Bucket:      aws.String(d.config.Bucket),
				Key:         aws.String(key),
				Body:        bytes.NewReader(body),
				ContentType: aws.String(contentType),
				Metadata:    meta,
			})
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeConnection, "upload failed").WithDetail("key", key)
			}
			return nil
		})
	})
}

// ObjectKey returns the key of the n-th object of a partition.
func (d *Destination) ObjectKey(table, date string, n int) string {
	name := fmt.Sprintf("part-%s-%05d.jsonl%s", d.runID, n, d.algorithm.Extension())
	return path.Join(d.config.Prefix, table, "processing_date="+date, name)
}

func partitionOf(record *pool.Record) partitionKey {
	date := UnknownDate
	if v, ok := record.GetMetadata("processing_date"); ok {
		if s, ok := v.(string); ok && s != "" {
			date = s
		}
	} else if s, ok := record.Data["processing_date"].(string); ok && s != "" {
		date = s
	}
	table := record.Metadata.Table
	if table == "" {
		table = "records"
	}
	return partitionKey{table: sanitize(table), date: sanitize(date)}
}

func sanitize(s string) string {
	out := []rune(s)
	for i, r := range out {
		if r == '/' || r == '\\' {
			out[i] = '_'
		}
	}
	if string(out) == "." || string(out) == ".." {
		return "_"
	}
	return string(out)
}

// Close uploads anything still buffered.
func (d *Destination) Close(ctx context.Context) error {
	var err error
	if d.config != nil {
		err = d.Flush(ctx)
	}
	d.GetLogger().Info("s3 destination closed",
		zap.Int64("records_written", atomic.LoadInt64(&d.recordsWritten)),
		zap.Int64("objects_written", atomic.LoadInt64(&d.objectsWritten)))
	if cerr := d.BaseConnector.Close(ctx); err == nil {
		err = cerr
	}
	return err
}

func (d *Destination) SupportsBatch() bool { return true }

// Metrics adds upload counters to the base metrics.
func (d *Destination) Metrics() map[string]interface{} {
	out := d.BaseConnector.Metrics()
	out["records_written"] = atomic.LoadInt64(&d.recordsWritten)
	out["bytes_written"] = atomic.LoadInt64(&d.bytesWritten)
	out["objects_written"] = atomic.LoadInt64(&d.objectsWritten)
	return out
}

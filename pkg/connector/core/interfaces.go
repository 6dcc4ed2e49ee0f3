// Package core defines the contracts between sources, destinations and the
// pipeline that connects them.
//
// Sources publish records on channels fed by a single producer goroutine.
// Every record carries its output table in Metadata.Table so that one
// stream can interleave several report types and destinations can fan
// them out again.
package core

import (
	"context"

	"github.com/ajitpratap0/storepulse/pkg/config"
	"github.com/ajitpratap0/storepulse/pkg/models"
	"github.com/ajitpratap0/storepulse/pkg/pool"
)

// ConnectorType tells sources and destinations apart in logs and metrics.
type ConnectorType string

const (
	ConnectorTypeSource      ConnectorType = "source"
	ConnectorTypeDestination ConnectorType = "destination"
)

// Schema describes one stream (output table).
type Schema = models.Schema

// Field describes one column of a stream.
type Field = models.Field

// RecordStream represents a stream of records. Records is closed when the
// producer finishes; at most one error is sent on Errors, after which the
// producer stops.
type RecordStream struct {
	Records <-chan *pool.Record
	Errors  <-chan error
}

// BatchStream is a RecordStream grouped into batches that never mix tables.
type BatchStream struct {
	Batches <-chan []*pool.Record
	Errors  <-chan error
}

// Source extracts records from a remote reporting API.
//
// Read and ReadBatch start extraction; the first error ends the stream and
// nothing is retried past the transport layer. Cancelling ctx stops the
// producer and releases anything it staged on disk.
type Source interface {
	Name() string

	Initialize(ctx context.Context, config *config.BaseConfig) error
	// Discover returns one schema per output table the source will emit.
	Discover(ctx context.Context) ([]*Schema, error)
	Read(ctx context.Context) (*RecordStream, error)
	ReadBatch(ctx context.Context, batchSize int) (*BatchStream, error)
	SupportsBatch() bool
	Close(ctx context.Context) error

	Health(ctx context.Context) error
	Metrics() map[string]interface{}
}

// Destination loads records, routing each one by its table.
//
// Write and WriteBatch drain the stream and return the producer's error if
// it sends one. Close flushes whatever is still buffered.
type Destination interface {
	Name() string

	Initialize(ctx context.Context, config *config.BaseConfig) error
	CreateSchema(ctx context.Context, schema *Schema) error
	Write(ctx context.Context, stream *RecordStream) error
	WriteBatch(ctx context.Context, stream *BatchStream) error
	SupportsBatch() bool
	Close(ctx context.Context) error

	Health(ctx context.Context) error
	Metrics() map[string]interface{}
}

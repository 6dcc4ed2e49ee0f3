// Package pool provides object pooling for storepulse.
// Records flow from report segments to destinations one row at a time, so the
// record envelope, its data map and the download chunk buffers are recycled
// instead of reallocated for every row.
//
// Example usage:
//
//	record := pool.NewRecord("appstore", row)
//	defer record.Release()
//
//	buf := pool.GetChunk()
//	defer pool.PutChunk(buf)
package pool

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ChunkSize is the size of the buffers handed out by GetChunk.
const ChunkSize = 8 * 1024

// Pool represents a generic object pool with type safety.
// It wraps sync.Pool with statistics tracking and an optional reset hook.
// The pool is safe for concurrent use.
type Pool[T any] struct {
	pool  sync.Pool
	reset func(T)
	stats struct {
		allocated int64
		inUse     int64
		gets      int64
	}
}

// New creates a new typed pool. reset, when non-nil, is called before an
// object goes back into the pool.
func New[T any](newFn func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.pool.New = func() interface{} {
		atomic.AddInt64(&p.stats.allocated, 1)
		return newFn()
	}
	return p
}

// Get retrieves an object from the pool, allocating one if it is empty.
func (p *Pool[T]) Get() T {
	atomic.AddInt64(&p.stats.inUse, 1)
	atomic.AddInt64(&p.stats.gets, 1)
	return p.pool.Get().(T)
}

// Put returns an object to the pool for reuse.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	atomic.AddInt64(&p.stats.inUse, -1)
	p.pool.Put(obj)
}

// Stats returns current pool statistics.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		Allocated: atomic.LoadInt64(&p.stats.allocated),
		InUse:     atomic.LoadInt64(&p.stats.inUse),
		Gets:      atomic.LoadInt64(&p.stats.gets),
	}
}

// Stats represents pool statistics for monitoring.
type Stats struct {
	// Allocated is the total number of objects created by the pool
	Allocated int64
	// InUse is the current number of objects checked out from the pool
	InUse int64
	// Gets is the number of Get calls served
	Gets int64
}

// RecordMetadata describes where a record came from.
type RecordMetadata struct {
	// Source identifies the connector that produced the record
	Source string `json:"source,omitempty"`
	// Table is the output table (report resource name) the record belongs to
	Table string `json:"table,omitempty"`
	// Timestamp when the record was created
	Timestamp time.Time `json:"timestamp"`
	// Custom metadata fields (app id, instance id, segment id, ...)
	Custom map[string]interface{} `json:"custom,omitempty"`
}

// Record is the unit exchanged between sources and destinations.
type Record struct {
	// ID is a unique identifier for the record
	ID string `json:"id"`
	// Data contains the row payload
	Data map[string]interface{} `json:"data"`
	// Metadata contains source and timing information
	Metadata RecordMetadata `json:"metadata"`
}

var (
	// RecordPool recycles Record envelopes.
	RecordPool = New(
		func() *Record { return &Record{} },
		func(r *Record) {
			r.ID = ""
			r.Data = nil
			r.Metadata = RecordMetadata{}
		},
	)

	// MapPool recycles data and metadata maps.
	MapPool = New(
		func() map[string]interface{} { return make(map[string]interface{}, 32) },
		func(m map[string]interface{}) { clear(m) },
	)

	// ChunkPool recycles fixed-size buffers used for streaming downloads.
	ChunkPool = New(
		func() *[]byte {
			b := make([]byte, ChunkSize)
			return &b
		},
		nil,
	)
)

// GetRecord retrieves a Record from the pool with a fresh timestamp.
func GetRecord() *Record {
	r := RecordPool.Get()
	r.Metadata.Timestamp = time.Now()
	return r
}

// PutRecord returns a Record and its maps to the pools. Nil is ignored.
func PutRecord(r *Record) {
	if r == nil {
		return
	}
	if r.Data != nil {
		MapPool.Put(r.Data)
	}
	if r.Metadata.Custom != nil {
		MapPool.Put(r.Metadata.Custom)
	}
	RecordPool.Put(r)
}

// NewRecord creates a record owning data. data is returned to MapPool on
// Release, so callers must not retain it.
func NewRecord(source string, data map[string]interface{}) *Record {
	r := GetRecord()
	r.ID = uuid.NewString()
	r.Data = data
	r.Metadata.Source = source
	return r
}

// GetMap retrieves an empty map from the pool.
func GetMap() map[string]interface{} {
	return MapPool.Get()
}

// PutMap returns a map to the pool.
func PutMap(m map[string]interface{}) {
	if m != nil {
		MapPool.Put(m)
	}
}

// GetChunk retrieves a ChunkSize buffer.
func GetChunk() *[]byte {
	return ChunkPool.Get()
}

// PutChunk returns a buffer obtained from GetChunk.
func PutChunk(b *[]byte) {
	if b != nil && cap(*b) >= ChunkSize {
		*b = (*b)[:ChunkSize]
		ChunkPool.Put(b)
	}
}

// SetData sets a data field, initializing the map from the pool if needed.
func (r *Record) SetData(key string, value interface{}) {
	if r.Data == nil {
		r.Data = GetMap()
	}
	r.Data[key] = value
}

// GetData retrieves a data field from the record.
func (r *Record) GetData(key string) (interface{}, bool) {
	if r.Data == nil {
		return nil, false
	}
	val, ok := r.Data[key]
	return val, ok
}

// SetMetadata sets a custom metadata field.
func (r *Record) SetMetadata(key string, value interface{}) {
	if r.Metadata.Custom == nil {
		r.Metadata.Custom = GetMap()
	}
	r.Metadata.Custom[key] = value
}

// GetMetadata retrieves a custom metadata field from the record.
func (r *Record) GetMetadata(key string) (interface{}, bool) {
	if r.Metadata.Custom == nil {
		return nil, false
	}
	val, ok := r.Metadata.Custom[key]
	return val, ok
}

// Release returns the record and its maps to the pools.
//
//	record := pool.NewRecord("appstore", data)
//	defer record.Release()
func (r *Record) Release() {
	PutRecord(r)
}

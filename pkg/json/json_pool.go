// Package json provides JSON serialization backed by goccy/go-json with
// pooled buffers for the record write path.
package json

import (
	"bytes"
	"io"
	"sync"

	gojson "github.com/goccy/go-json"

	"github.com/ajitpratap0/storepulse/pkg/pool"
)

// Number is a JSON number literal kept as text.
type Number = gojson.Number

var bufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 4096))
	},
}

// GetBuffer gets a pooled bytes.Buffer
func GetBuffer() *bytes.Buffer {
	buf := bufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer to the pool
func PutBuffer(buf *bytes.Buffer) {
	if buf == nil || buf.Cap() > 1024*1024 {
		return
	}
	bufferPool.Put(buf)
}

// Marshal is a drop-in replacement for encoding/json.Marshal
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal is a drop-in replacement for encoding/json.Unmarshal
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// MarshalIndent is a drop-in replacement for encoding/json.MarshalIndent
func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// NewEncoder returns an encoder that does not escape HTML.
func NewEncoder(w io.Writer) *gojson.Encoder {
	enc := gojson.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}

// NewDecoder returns a decoder that keeps numbers as Number.
func NewDecoder(r io.Reader) *gojson.Decoder {
	dec := gojson.NewDecoder(r)
	dec.UseNumber()
	return dec
}

// Decode reads a single JSON document from r into v.
func Decode(r io.Reader, v interface{}) error {
	return NewDecoder(r).Decode(v)
}

// LinesWriter writes record payloads as newline-delimited JSON.
type LinesWriter struct {
	w   io.Writer
	buf *bytes.Buffer
	n   int64
}

// NewLinesWriter creates a JSON lines writer on w.
func NewLinesWriter(w io.Writer) *LinesWriter {
	return &LinesWriter{w: w, buf: GetBuffer()}
}

// WriteRecord writes the record's data map as a single line.
func (lw *LinesWriter) WriteRecord(r *pool.Record) error {
	return lw.WriteValue(r.Data)
}

// WriteValue writes any value as a single line.
func (lw *LinesWriter) WriteValue(v interface{}) error {
	lw.buf.Reset()
	if err := NewEncoder(lw.buf).Encode(v); err != nil {
		return err
	}
	if _, err := lw.w.Write(lw.buf.Bytes()); err != nil {
		return err
	}
	lw.n++
	return nil
}

// Count returns the number of lines written.
func (lw *LinesWriter) Count() int64 {
	return lw.n
}

// Release returns the internal buffer to the pool. The writer must not be
// used afterwards.
func (lw *LinesWriter) Release() {
	PutBuffer(lw.buf)
	lw.buf = nil
}

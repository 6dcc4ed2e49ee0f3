package json

import (
	"bufio"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/storepulse/pkg/compression"
	"github.com/ajitpratap0/storepulse/pkg/config"
	"github.com/ajitpratap0/storepulse/pkg/connector/core"
	"github.com/ajitpratap0/storepulse/pkg/connector/registry"
	"github.com/ajitpratap0/storepulse/pkg/errors"
	jsonpool "github.com/ajitpratap0/storepulse/pkg/json"
	"github.com/ajitpratap0/storepulse/pkg/pool"
	"github.com/ajitpratap0/storepulse/pkg/testutil"
)

func newRecord(table string, data map[string]interface{}) *pool.Record {
	r := pool.NewRecord("test", data)
	r.Metadata.Table = table
	return r
}

func recordStream(err error, records ...*pool.Record) *core.RecordStream {
	recordsChan := make(chan *pool.Record, len(records))
	errorsChan := make(chan error, 1)
	for _, r := range records {
		recordsChan <- r
	}
	if err != nil {
		errorsChan <- err
	}
	close(recordsChan)
	close(errorsChan)
	return &core.RecordStream{Records: recordsChan, Errors: errorsChan}
}

func newDestination(t *testing.T, mutate func(*config.BaseConfig)) (*Destination, string) {
	dir := filepath.Join(t.TempDir(), "out")
	cfg := config.NewBaseConfig("json-test", ConnectorName)
	cfg.Security.Credentials["output_dir"] = dir
	if mutate != nil {
		mutate(cfg)
	}
	dest, err := NewDestination("json-test", cfg)
	require.NoError(t, err)
	require.NoError(t, dest.Initialize(testutil.TestContext(t), cfg))
	return dest.(*Destination), dir
}

func readLines(t *testing.T, path string, alg compression.Algorithm) []map[string]interface{} {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	r, err := compression.NewReader(alg, f)
	require.NoError(t, err)
	defer r.Close()

	var out []map[string]interface{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		var row map[string]interface{}
		require.NoError(t, jsonpool.Unmarshal(scanner.Bytes(), &row))
		out = append(out, row)
	}
	require.NoError(t, scanner.Err())
	return out
}

func TestDestination_WriteSplitsTables(t *testing.T) {
	dest, dir := newDestination(t, nil)
	ctx := testutil.TestContext(t)

	require.NoError(t, dest.CreateSchema(ctx, &core.Schema{Name: "downloads"}))
	err := dest.Write(ctx, recordStream(nil,
		newRecord("downloads", map[string]interface{}{"counts": 1}),
		newRecord("sessions", map[string]interface{}{"sessions": 2}),
		newRecord("downloads", map[string]interface{}{"counts": 3}),
		newRecord("", map[string]interface{}{"x": "y"}),
	))
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "downloads.jsonl"),
		filepath.Join(dir, "records.jsonl"),
		filepath.Join(dir, "sessions.jsonl"),
	}, dest.Files())
	require.NoError(t, dest.Close(ctx))

	downloads := readLines(t, filepath.Join(dir, "downloads.jsonl"), compression.None)
	require.Len(t, downloads, 2)
	assert.EqualValues(t, 1, downloads[0]["counts"])
	assert.EqualValues(t, 3, downloads[1]["counts"])
	assert.Len(t, readLines(t, filepath.Join(dir, "sessions.jsonl"), compression.None), 1)
	assert.EqualValues(t, 4, dest.Metrics()["records_written"])
}

func TestDestination_WriteBatchCompressed(t *testing.T) {
	for _, alg := range []compression.Algorithm{compression.Gzip, compression.Zstd, compression.Snappy, compression.LZ4} {
		t.Run(string(alg), func(t *testing.T) {
			dest, dir := newDestination(t, func(cfg *config.BaseConfig) {
				cfg.Advanced.EnableCompression = true
				cfg.Advanced.CompressionAlgorithm = string(alg)
			})
			ctx := testutil.TestContext(t)

			batches := make(chan []*pool.Record, 2)
			errs := make(chan error)
			batches <- []*pool.Record{newRecord("t", map[string]interface{}{"n": 1}), newRecord("t", map[string]interface{}{"n": 2})}
			batches <- []*pool.Record{newRecord("t", map[string]interface{}{"n": 3})}
			close(batches)
			close(errs)

			require.NoError(t, dest.WriteBatch(ctx, &core.BatchStream{Batches: batches, Errors: errs}))
			require.NoError(t, dest.Close(ctx))

			rows := readLines(t, filepath.Join(dir, "t.jsonl"+alg.Extension()), alg)
			require.Len(t, rows, 3)
			assert.EqualValues(t, 3, rows[2]["n"])
		})
	}
}

func TestDestination_WriteReturnsSourceError(t *testing.T) {
	dest, dir := newDestination(t, nil)
	ctx := testutil.TestContext(t)

	sourceErr := errors.New(errors.ErrorTypeRemote, "boom")
	err := dest.Write(ctx, recordStream(sourceErr,
		newRecord("t", map[string]interface{}{"n": 1}),
		newRecord("t", map[string]interface{}{"n": 2}),
		newRecord("t", map[string]interface{}{"n": 3}),
	))
	require.Error(t, err)
	assert.True(t, errors.Is(err, sourceErr))
	require.NoError(t, dest.Close(ctx))

	rows := readLines(t, filepath.Join(dir, "t.jsonl"), compression.None)
	require.Len(t, rows, 3, "rows emitted before the failure are kept")
	assert.EqualValues(t, 3, rows[2]["n"])
}

func TestDestination_InitializeErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.BaseConfig)
		want   errors.ErrorType
	}{
		{"missing output dir", func(cfg *config.BaseConfig) { delete(cfg.Security.Credentials, "output_dir") }, errors.ErrorTypeConfig},
		{"unknown algorithm", func(cfg *config.BaseConfig) {
			cfg.Security.Credentials["output_dir"] = t.TempDir()
			cfg.Advanced.EnableCompression = true
			cfg.Advanced.CompressionAlgorithm = "brotli"
		}, errors.ErrorTypeConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.NewBaseConfig("json-test", ConnectorName)
			tt.mutate(cfg)
			dest, err := NewDestination("json-test", cfg)
			require.NoError(t, err)
			err = dest.Initialize(testutil.TestContext(t), cfg)
			require.Error(t, err)
			assert.Equal(t, tt.want, errors.TypeOf(err))
		})
	}
}

func TestTableName(t *testing.T) {
	assert.Equal(t, "records", TableName(newRecord(" ", nil)))
	assert.Equal(t, "a_b", TableName(newRecord("a/b", nil)))
	assert.Equal(t, "_", TableName(newRecord("..", nil)))
	assert.Equal(t, "app-downloads-detailed", TableName(newRecord("app-downloads-detailed", nil)))
}

func TestDestination_Registered(t *testing.T) {
	assert.True(t, registry.GetRegistry().HasDestination(ConnectorName))
}

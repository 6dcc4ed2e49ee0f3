package compression

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/storepulse/pkg/errors"
)

func TestRoundTrip(t *testing.T) {
	payload := []byte(strings.Repeat(`{"date":"2024-01-05","counts":"10","territory":"US"}`+"\n", 200))

	for _, alg := range []Algorithm{None, Gzip, Snappy, LZ4, Zstd, S2} {
		for _, level := range []Level{Fastest, Default, Best} {
			t.Run(string(alg), func(t *testing.T) {
				compressed, err := Compress(alg, level, payload)
				require.NoError(t, err)
				if alg != None {
					assert.Less(t, len(compressed), len(payload))
				}

				got, err := Decompress(alg, compressed)
				require.NoError(t, err)
				assert.True(t, bytes.Equal(payload, got))
			})
		}
	}
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in      string
		want    Algorithm
		wantErr bool
	}{
		{"", None, false},
		{"GZIP", Gzip, false},
		{" zstd ", Zstd, false},
		{"brotli", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAlgorithm(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtensionAndLevel(t *testing.T) {
	assert.Equal(t, ".gz", Gzip.Extension())
	assert.Equal(t, ".zst", Zstd.Extension())
	assert.Equal(t, "", None.Extension())

	assert.Equal(t, Default, LevelFrom(0))
	assert.Equal(t, Fastest, LevelFrom(1))
	assert.Equal(t, Default, LevelFrom(6))
	assert.Equal(t, Better, LevelFrom(7))
	assert.Equal(t, Best, LevelFrom(9))
}

func TestNewReader_InvalidGzip(t *testing.T) {
	_, err := NewReader(Gzip, strings.NewReader("plain text"))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}

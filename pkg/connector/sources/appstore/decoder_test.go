package appstore

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/storepulse/pkg/errors"
	"github.com/ajitpratap0/storepulse/pkg/testutil"
)

func collect(t *testing.T, seq func(func(Row, error) bool)) ([]Row, error) {
	t.Helper()
	var rows []Row
	for row, err := range seq {
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func TestDecode_RoundTrip(t *testing.T) {
	header := []string{"date", "app_name", "counts"}
	data := [][]string{
		{"2024-01-04", "Pulse", "12"},
		{"2024-01-04", "Pulse Lite", "3"},
		{"2024-01-04", "", "0"},
	}
	payload := testutil.GzipTSV(t, header, data...)

	rows, err := collect(t, Decode(bytes.NewReader(payload), "2024-01-05"))
	require.NoError(t, err)
	require.Len(t, rows, len(data))

	for i, row := range rows {
		assert.Len(t, row, len(header)+1)
		for j, column := range header {
			assert.Equal(t, data[i][j], row[column])
		}
		assert.Equal(t, "2024-01-05", row[ProcessingDateColumn])
	}
}

func TestDecode_ProcessingDateWins(t *testing.T) {
	payload := testutil.GzipTSV(t, []string{"processing_date", "counts"}, []string{"1999-01-01", "1"})

	rows, err := collect(t, Decode(bytes.NewReader(payload), "2024-01-05"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2024-01-05", rows[0][ProcessingDateColumn])
}

func TestDecode_StripsByteOrderMark(t *testing.T) {
	payload := testutil.Gzip(t, []byte("\ufeffdate\tcounts\n2024-01-01\t4\n"))

	rows, err := collect(t, Decode(bytes.NewReader(payload), "2024-01-02"))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2024-01-01", rows[0]["date"])
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name     string
		payload  []byte
		wantRows int
		reason   string
	}{
		{"not gzip", []byte("date\tcounts\n"), 0, "not a gzip stream"},
		{"empty file", testutil.Gzip(t, nil), 0, "missing header row"},
		{"duplicate column", testutil.GzipTSV(t, []string{"date", "date"}), 0, "duplicate column date in header"},
		{"empty column", testutil.GzipTSV(t, []string{"date", ""}), 0, "empty column name in header"},
		{
			"short line",
			testutil.GzipTSV(t, []string{"date", "counts"}, []string{"2024-01-01", "1"}, []string{"2024-01-02"}),
			1,
			"malformed data line",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := collect(t, Decode(bytes.NewReader(tt.payload), "2024-01-05"))
			require.Error(t, err)
			assert.Len(t, rows, tt.wantRows)

			var decodeErr *TabularDecodeError
			require.True(t, errors.As(err, &decodeErr))
			assert.Equal(t, tt.reason, decodeErr.Reason)
			assert.True(t, errors.IsType(err, errors.ErrorTypeData))
		})
	}
}

func TestDecodeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seg.csv.gz")
	header := []string{"date", "counts"}
	require.NoError(t, os.WriteFile(path, testutil.GzipTSV(t, header,
		[]string{"2024-01-01", "1"},
		[]string{"2024-01-01", "2"},
	), 0o600))

	var first Row
	for row, err := range DecodeFile(path, "2024-01-05") {
		require.NoError(t, err)
		first = row
		break
	}
	assert.Equal(t, "1", first["counts"])

	rows, err := collect(t, DecodeFile(path, "2024-01-05"))
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	_, err = collect(t, DecodeFile(filepath.Join(t.TempDir(), "missing.csv.gz"), "2024-01-05"))
	var decodeErr *TabularDecodeError
	require.True(t, errors.As(err, &decodeErr))
	assert.Equal(t, "cannot open segment", decodeErr.Reason)
}

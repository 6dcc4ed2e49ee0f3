package appstore

import (
	"encoding/csv"
	"io"
	"iter"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/ajitpratap0/storepulse/pkg/errors"
)

// ProcessingDateColumn is stamped onto every row with the instance date.
const ProcessingDateColumn = "processing_date"

const utf8BOM = "\ufeff"

// DecodeFile lazily decodes a staged segment file. The file is opened when
// iteration starts and closed when it ends, including on early break.
func DecodeFile(path, processingDate string) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield(nil, &TabularDecodeError{Path: path, Reason: "cannot open segment", Cause: err})
			return
		}
		defer f.Close()

		for row, err := range decode(f, path, processingDate) {
			if !yield(row, err) || err != nil {
				return
			}
		}
	}
}

// Decode lazily decodes a gzip-compressed, tab-delimited table with a header
// row. Each row maps header names to raw string values and carries
// processing_date, which overrides a header column of the same name. The
// sequence stops after the first error.
func Decode(r io.Reader, processingDate string) iter.Seq2[Row, error] {
	return decode(r, "<stream>", processingDate)
}

func decode(r io.Reader, name, processingDate string) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		zr, err := gzip.NewReader(r)
		if err != nil {
			yield(nil, &TabularDecodeError{Path: name, Reason: "not a gzip stream", Cause: err})
			return
		}
		defer zr.Close()

		reader := csv.NewReader(zr)
		reader.Comma = '\t'
		reader.LazyQuotes = true
		reader.ReuseRecord = true

		header, err := readHeader(reader, name)
		if err != nil {
			yield(nil, err)
			return
		}

		for {
			record, err := reader.Read()
			if err == io.EOF {
				return
			}
			if err != nil {
				yield(nil, &TabularDecodeError{Path: name, Line: parseErrorLine(err), Reason: "malformed data line", Cause: err})
				return
			}

			row := make(Row, len(header)+1)
			for i, column := range header {
				row[column] = record[i]
			}
			row[ProcessingDateColumn] = processingDate

			if !yield(row, nil) {
				return
			}
		}
	}
}

func readHeader(reader *csv.Reader, name string) ([]string, error) {
	record, err := reader.Read()
	if err == io.EOF {
		return nil, &TabularDecodeError{Path: name, Line: 1, Reason: "missing header row"}
	}
	if err != nil {
		return nil, &TabularDecodeError{Path: name, Line: 1, Reason: "malformed header row", Cause: err}
	}

	header := make([]string, len(record))
	seen := make(map[string]struct{}, len(record))
	for i, column := range record {
		if i == 0 {
			column = strings.TrimPrefix(column, utf8BOM)
		}
		if column == "" {
			return nil, &TabularDecodeError{Path: name, Line: 1, Reason: "empty column name in header"}
		}
		if _, dup := seen[column]; dup {
			return nil, &TabularDecodeError{Path: name, Line: 1, Reason: "duplicate column " + column + " in header"}
		}
		seen[column] = struct{}{}
		header[i] = column
	}
	return header, nil
}

func parseErrorLine(err error) int {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return pe.Line
	}
	return 0
}

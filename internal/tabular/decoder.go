// Package tabular decodes delimited and spreadsheet uploads into a lazy,
// forward-only sequence of core.RawRecord values.
//
// The first non-blank row is the header. Every following row becomes a
// record keyed by header name. Blank rows are skipped. Rows with extra cells
// drop the extras and rows with missing cells simply lack those keys, so a
// ragged row never fails the stream; rejecting it is the importer's call.
// Only unreadable input produces an error, always a *core.DecodeError.
package tabular

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/invoicedesk/internal/core"
)

// Reader yields decoded records one at a time.
type Reader interface {
	// Next returns the next record, or io.EOF once the input is exhausted.
	Next() (core.RawRecord, error)
	// Row returns the 1-based source row of the record last returned by Next.
	Row() int
	// Header returns the normalized column names.
	Header() []string
	Close() error
}

// Options controls CSV decoding. The zero value decodes comma-separated
// input with lenient quoting. StrictQuotes turns a malformed quote into a
// *core.DecodeError that ends the stream.
type Options struct {
	Delimiter    rune
	StrictQuotes bool
}

// CSVReader decodes delimited text.
type CSVReader struct {
	csv     *csv.Reader
	counter *CountingReader
	header  []string
	started bool
	row     int
}

// NewCSV returns a CSV decoder over r.
func NewCSV(r io.Reader, opts Options) *CSVReader {
	in, counter := wrapInput(r)

	cr := csv.NewReader(in)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = !opts.StrictQuotes
	cr.ReuseRecord = false
	if opts.Delimiter != 0 {
		cr.Comma = opts.Delimiter
	}

	return &CSVReader{csv: cr, counter: counter}
}

// Next implements Reader.
func (d *CSVReader) Next() (core.RawRecord, error) {
	if !d.started {
		d.started = true
		cells, err := d.readNonBlank()
		if err != nil {
			return nil, err
		}
		d.header = normalizeHeader(cells)
	}
	if d.header == nil {
		return nil, io.EOF
	}

	cells, err := d.readNonBlank()
	if err != nil {
		return nil, err
	}
	return buildRecord(d.header, cells), nil
}

func (d *CSVReader) readNonBlank() ([]string, error) {
	for {
		cells, err := d.csv.Read()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, &core.DecodeError{Row: pe.StartLine, Err: pe.Err}
			}
			return nil, &core.DecodeError{Row: d.row + 1, Err: err}
		}
		d.row, _ = d.csv.FieldPos(0)
		if !isBlankRow(cells) {
			return cells, nil
		}
	}
}

// Row implements Reader.
func (d *CSVReader) Row() int { return d.row }

// Header implements Reader.
func (d *CSVReader) Header() []string { return d.header }

// BytesRead reports how many source bytes have been consumed.
func (d *CSVReader) BytesRead() int64 { return d.counter.BytesRead }

// Close implements Reader.
func (d *CSVReader) Close() error { return nil }

// Open picks a decoder by file extension. Workbooks (.xlsx) are decoded with
// NewXLSX and everything else as delimited text.
func Open(fileName string, r io.Reader, opts Options) (Reader, error) {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx":
		return NewXLSX(r)
	case ".tsv":
		if opts.Delimiter == 0 {
			opts.Delimiter = '\t'
		}
	}
	return NewCSV(r, opts), nil
}

// All adapts r to a range-over-func sequence. Iteration stops after the
// first error.
func All(r Reader) iter.Seq2[core.RawRecord, error] {
	return func(yield func(core.RawRecord, error) bool) {
		for {
			rec, err := r.Next()
			if err == io.EOF {
				return
			}
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

// Collect drains r into memory. It checks ctx between rows.
func Collect(ctx context.Context, r Reader) ([]core.RawRecord, error) {
	records := []core.RawRecord{}
	for rec, err := range All(r) {
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// normalizeHeader trims header names and replaces empty or duplicate names
// with positional ones so every cell has a distinct key.
func normalizeHeader(cells []string) []string {
	header := make([]string, len(cells))
	seen := make(map[string]bool, len(cells))
	for i, c := range cells {
		name := core.CleanCell(c)
		if name == "" || seen[strings.ToLower(name)] {
			name = fmt.Sprintf("column_%d", i+1)
		}
		seen[strings.ToLower(name)] = true
		header[i] = name
	}
	return header
}

func buildRecord(header, cells []string) core.RawRecord {
	n := len(cells)
	if n > len(header) {
		n = len(header)
	}
	rec := make(core.RawRecord, n)
	for i := 0; i < n; i++ {
		rec[header[i]] = strings.TrimSpace(cells[i])
	}
	return rec
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

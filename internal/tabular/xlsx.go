package tabular

import (
	"errors"
	"fmt"
	"io"

	"github.com/JonMunkholm/invoicedesk/internal/core"
	"github.com/xuri/excelize/v2"
)

// XLSXReader decodes the first sheet of a workbook with the same record
// semantics as CSVReader.
type XLSXReader struct {
	file    *excelize.File
	rows    *excelize.Rows
	sheet   string
	header  []string
	started bool
	row     int
}

// NewXLSX opens a workbook from r. The workbook is parsed up front, rows are
// then streamed from the first sheet.
func NewXLSX(r io.Reader) (*XLSXReader, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &core.DecodeError{Err: fmt.Errorf("open workbook: %w", err)}
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		_ = f.Close()
		return nil, &core.DecodeError{Err: errors.New("workbook has no sheets")}
	}

	rows, err := f.Rows(sheets[0])
	if err != nil {
		_ = f.Close()
		return nil, &core.DecodeError{Err: fmt.Errorf("read sheet %q: %w", sheets[0], err)}
	}

	return &XLSXReader{file: f, rows: rows, sheet: sheets[0]}, nil
}

// Next implements Reader.
func (x *XLSXReader) Next() (core.RawRecord, error) {
	if !x.started {
		x.started = true
		cells, err := x.readNonBlank()
		if err != nil {
			return nil, err
		}
		x.header = normalizeHeader(cells)
	}
	if x.header == nil {
		return nil, io.EOF
	}

	cells, err := x.readNonBlank()
	if err != nil {
		return nil, err
	}
	return buildRecord(x.header, cells), nil
}

func (x *XLSXReader) readNonBlank() ([]string, error) {
	for x.rows.Next() {
		x.row++
		cells, err := x.rows.Columns()
		if err != nil {
			return nil, &core.DecodeError{Row: x.row, Err: err}
		}
		if !isBlankRow(cells) {
			return cells, nil
		}
	}
	if err := x.rows.Error(); err != nil {
		return nil, &core.DecodeError{Row: x.row + 1, Err: err}
	}
	return nil, io.EOF
}

// Row implements Reader.
func (x *XLSXReader) Row() int { return x.row }

// Header implements Reader.
func (x *XLSXReader) Header() []string { return x.header }

// Sheet returns the name of the decoded sheet.
func (x *XLSXReader) Sheet() string { return x.sheet }

// Close releases the workbook.
func (x *XLSXReader) Close() error {
	rowsErr := x.rows.Close()
	if err := x.file.Close(); err != nil {
		return err
	}
	return rowsErr
}

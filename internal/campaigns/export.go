package campaigns

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/invoicedesk/internal/core"
)

// ExportFormat selects the encoding of a campaign export.
type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportXLSX ExportFormat = "xlsx"
)

// ParseExportFormat accepts csv (the default for an empty value) or xlsx.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case "", ExportCSV:
		return ExportCSV, nil
	case ExportXLSX:
		return ExportXLSX, nil
	}
	return "", &core.ValidationError{Field: "format", Value: s, Message: "invalid enum value for export format"}
}

// ContentType returns the MIME type of the format.
func (f ExportFormat) ContentType() string {
	if f == ExportXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// FileName returns the download name for an export of the format.
func (f ExportFormat) FileName() string {
	return "campaigns." + string(f)
}

// DatasetFileName returns the download name for one campaign's dataset.
func (f ExportFormat) DatasetFileName(id uuid.UUID) string {
	return "campaign-" + id.String() + "." + string(f)
}

var exportHeader = []string{"Campaign ID", "Name", "Description", "User", "Status", "Created At"}

const (
	exportSheet  = "Campaigns"
	datasetSheet = "Data"
)

func exportRow(c core.Campaign) []string {
	return []string{
		c.ID.String(),
		c.Name,
		c.Description,
		c.OwnerID,
		string(c.Status),
		c.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Export writes every campaign, newest first, to w.
func (s *Service) Export(ctx context.Context, w io.Writer, format ExportFormat) error {
	list, err := s.repo.ListAll(ctx)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(list)+1)
	rows = append(rows, exportHeader)
	for _, c := range list {
		rows = append(rows, exportRow(c))
	}
	return writeRows(w, format, exportSheet, rows)
}

// ExportDataset writes the records of an owned campaign to w, columns in
// the order of the uploaded file.
func (s *Service) ExportDataset(ctx context.Context, w io.Writer, owner string, id uuid.UUID, format ExportFormat) error {
	c, err := s.repo.GetOwned(ctx, owner, id)
	if err != nil {
		return err
	}
	return writeRows(w, format, datasetSheet, c.Rows())
}

func writeRows(w io.Writer, format ExportFormat, sheet string, rows [][]string) error {
	if format == ExportXLSX {
		return writeXLSX(w, sheet, rows)
	}
	return writeCSV(w, rows)
}

func writeCSV(w io.Writer, rows [][]string) error {
	cw := csv.NewWriter(w)
	for i, row := range rows {
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write export row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeXLSX(w io.Writer, sheet string, rows [][]string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheet); err != nil {
		return fmt.Errorf("name export sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("open export sheet: %w", err)
	}
	if sheet == exportSheet {
		_ = sw.SetColWidth(1, 1, 38)
		_ = sw.SetColWidth(2, 3, 30)
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := sw.SetRow(cell, toCells(row)); err != nil {
			return fmt.Errorf("write export row %d: %w", i+1, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush export sheet: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func toCells(vals []string) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v
	}
	return out
}

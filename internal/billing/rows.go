package billing

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/invoicedesk/internal/core"
	"github.com/JonMunkholm/invoicedesk/internal/ingest"
	"github.com/JonMunkholm/invoicedesk/internal/staging"
	"github.com/JonMunkholm/invoicedesk/internal/tabular"
)

// Column aliases accepted in invoice uploads. Matching is case-insensitive.
var (
	colDescription = []string{"description", "desc"}
	colQuantity    = []string{"quantity", "qty"}
	colPrice       = []string{"price"}
	colDueDate     = []string{"due_date", "dueDate"}
	colNotes       = []string{"notes"}
	colPAN         = []string{"pan_card_number", "panCardNumber"}
)

// buildInvoice turns one uploaded row into a single-item pending invoice.
// Every field problem in the row is reported together.
func (e *Engine) buildInvoice(owner string, now time.Time) ingest.BuildFunc[*core.Invoice] {
	return func(rec core.RawRecord) (*core.Invoice, error) {
		var errs core.ValidationErrors
		collect := func(err error) {
			if err == nil {
				return
			}
			if ve, ok := err.(*core.ValidationError); ok {
				errs = append(errs, ve)
			}
		}

		desc, _ := rec.Get(colDescription...)

		qtyCell, _ := rec.Get(colQuantity...)
		qty, err := core.ParseQuantity("quantity", qtyCell)
		collect(err)

		priceCell, _ := rec.Get(colPrice...)
		price, err := core.ParseAmount("price", priceCell)
		collect(err)

		due := now.Add(e.term)
		if cell, ok := rec.Get(colDueDate...); ok {
			d, err := core.ParseDate("due_date", cell)
			collect(err)
			due = d
		}

		notes, _ := rec.Get(colNotes...)
		pan, _ := rec.Get(colPAN...)

		inv := &core.Invoice{
			ID:            uuid.New(),
			OwnerID:       owner,
			PanCardNumber: pan,
			Items:         []core.Item{{Description: desc, Quantity: qty, Price: price}},
			Status:        core.InvoicePending,
			DueDate:       due,
			Notes:         notes,
		}

		// Parse failures already describe the bad cells; field checks only
		// run on values that parsed.
		if len(errs) == 0 {
			if err := core.ValidateInvoice(inv); err != nil {
				return nil, err
			}
		}
		if err := errs.OrNil(); err != nil {
			return nil, err
		}
		return inv, nil
	}
}

// ImportInvoices stages an uploaded file and stores one invoice per row.
// Rows that fail validation or storage are reported and skipped. The staged
// file is removed before ImportInvoices returns, whatever the outcome.
func (e *Engine) ImportInvoices(ctx context.Context, owner, fileName string, body io.Reader) (*ingest.Report[*core.Invoice], error) {
	var report *ingest.Report[*core.Invoice]

	err := ingest.WithStaged(ctx, e.stager, fileName, body,
		func(ctx context.Context, _ staging.Staged, staged io.Reader) error {
			dec, err := tabular.Open(fileName, staged, e.decode)
			if err != nil {
				return err
			}
			defer dec.Close()

			persist := func(ctx context.Context, inv *core.Invoice) (*core.Invoice, error) {
				if err := e.create(ctx, inv); err != nil {
					return nil, err
				}
				return inv, nil
			}

			report, err = ingest.ImportRecords(ctx, dec, e.buildInvoice(owner, e.clock()), persist)
			return err
		})

	if report != nil {
		slog.Info("invoice import finished",
			"owner", owner,
			"file", fileName,
			"success", report.SuccessCount(),
			"errors", report.ErrorCount(),
		)
	}
	return report, err
}

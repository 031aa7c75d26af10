package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/invoicedesk/internal/core"
)

const invoiceResource = "invoice"

const invoiceColumns = `id, invoice_number, owner_id, pan_card_number, items, amount, status,
	due_date, notes, created_at, updated_at`

// InvoiceRepository persists invoices with their items embedded as JSONB.
type InvoiceRepository struct {
	db DBTX
}

// NewInvoiceRepository returns a repository over db.
func NewInvoiceRepository(db DBTX) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// Insert stores a new invoice. A taken invoice number yields a
// *core.ConflictError on field invoice_number.
func (r *InvoiceRepository) Insert(ctx context.Context, inv *core.Invoice) error {
	items, err := marshalItems(inv.Items)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		inv.ID, inv.InvoiceNumber, inv.OwnerID, inv.PanCardNumber, items, inv.Amount,
		string(inv.Status), inv.DueDate, inv.Notes, inv.CreatedAt, inv.UpdatedAt,
	)
	return translate("insert invoice", invoiceResource, inv.ID.String(), inv.InvoiceNumber, err)
}

// GetOwned returns an invoice if owner owns it.
func (r *InvoiceRepository) GetOwned(ctx context.Context, owner string, id uuid.UUID) (*core.Invoice, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 AND owner_id = $2`, id, owner)
	inv, err := scanInvoice(row)
	if err != nil {
		return nil, translate("get invoice", invoiceResource, id.String(), "", err)
	}
	return inv, nil
}

// List returns one page of the owner's invoices matching f, newest first,
// along with the total number of matches.
func (r *InvoiceRepository) List(ctx context.Context, owner string, f core.InvoiceFilter) ([]core.Invoice, int, error) {
	page := f.Page.Normalized()

	conds := []string{"owner_id = $1"}
	args := []any{owner}
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if !f.Start.IsZero() {
		args = append(args, f.Start)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !f.End.IsZero() {
		args = append(args, f.End)
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	where := strings.Join(conds, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM invoices WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, storageErr("count invoices", err)
	}

	n := len(args)
	args = append(args, page.Limit, page.Offset())
	rows, err := r.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT %s FROM invoices
		WHERE %s
		ORDER BY created_at DESC, id
		LIMIT $%d OFFSET $%d`, invoiceColumns, where, n+1, n+2),
		args...,
	)
	if err != nil {
		return nil, 0, storageErr("list invoices", err)
	}
	defer rows.Close()

	list := []core.Invoice{}
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, storageErr("scan invoice", err)
		}
		list = append(list, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, storageErr("iterate invoices", err)
	}
	return list, total, nil
}

// Update overwrites the editable fields of an owned invoice if its
// updated_at still equals expect. A stale expect yields *core.ConflictError.
func (r *InvoiceRepository) Update(ctx context.Context, inv *core.Invoice, expect time.Time) error {
	items, err := marshalItems(inv.Items)
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE invoices SET
			items = $4,
			amount = $5,
			status = $6,
			due_date = $7,
			notes = $8,
			pan_card_number = $9,
			updated_at = $10
		WHERE id = $1 AND owner_id = $2 AND updated_at = $3`,
		inv.ID, inv.OwnerID, expect, items, inv.Amount, string(inv.Status),
		inv.DueDate, inv.Notes, inv.PanCardNumber, inv.UpdatedAt,
	)
	err = expectOne(res, err, "update invoice", invoiceResource, inv.ID.String())
	if !isNotFound(err) {
		return err
	}

	// Zero rows: either gone or modified since it was read.
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM invoices WHERE id = $1 AND owner_id = $2)`,
		inv.ID, inv.OwnerID).Scan(&exists); err != nil {
		return storageErr("update invoice", err)
	}
	if !exists {
		return err
	}
	return &core.ConflictError{Resource: invoiceResource, Field: "updated_at", Value: expect.Format(time.RFC3339Nano)}
}

// UpdateStatus moves an owned invoice from status from to status to. matched
// is false when the invoice was not in status from at write time.
func (r *InvoiceRepository) UpdateStatus(ctx context.Context, owner string, id uuid.UUID, from, to core.InvoiceStatus, now time.Time) (*core.Invoice, bool, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE invoices SET status = $4, updated_at = $5
		WHERE id = $1 AND owner_id = $2 AND status = $3
		RETURNING `+invoiceColumns,
		id, owner, string(from), string(to), now,
	)
	inv, err := scanInvoice(row)
	if err != nil {
		err = translate("update invoice status", invoiceResource, id.String(), "", err)
		if isNotFound(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return inv, true, nil
}

// MarkOverdue moves every pending invoice due before now to overdue in one
// statement and returns the number of rows changed.
func (r *InvoiceRepository) MarkOverdue(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE invoices SET status = 'overdue', updated_at = $1
		WHERE status = 'pending' AND due_date < $1`,
		now,
	)
	if err != nil {
		return 0, storageErr("mark overdue invoices", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("mark overdue invoices", err)
	}
	return n, nil
}

// Delete removes an owned invoice.
func (r *InvoiceRepository) Delete(ctx context.Context, owner string, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM invoices WHERE id = $1 AND owner_id = $2`, id, owner)
	return expectOne(res, err, "delete invoice", invoiceResource, id.String())
}

// MaxInvoiceNumber returns the highest stored invoice number, or "" when the
// table is empty. Numbers compare by length first so INV100000 ranks above
// INV99999 once the zero padding runs out.
func (r *InvoiceRepository) MaxInvoiceNumber(ctx context.Context) (string, error) {
	var n string
	err := r.db.QueryRowContext(ctx, `
		SELECT invoice_number FROM invoices
		ORDER BY length(invoice_number) DESC, invoice_number DESC
		LIMIT 1`).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", storageErr("max invoice number", err)
	}
	return n, nil
}

func scanInvoice(row rowScanner) (*core.Invoice, error) {
	var (
		inv    core.Invoice
		status string
		items  []byte
	)
	if err := row.Scan(
		&inv.ID, &inv.InvoiceNumber, &inv.OwnerID, &inv.PanCardNumber, &items, &inv.Amount, &status,
		&inv.DueDate, &inv.Notes, &inv.CreatedAt, &inv.UpdatedAt,
	); err != nil {
		return nil, err
	}
	inv.Status = core.InvoiceStatus(status)
	if err := json.Unmarshal(items, &inv.Items); err != nil {
		return nil, storageErr("decode invoice items", err)
	}
	return &inv, nil
}

func marshalItems(items []core.Item) (string, error) {
	if items == nil {
		items = []core.Item{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("encode invoice items: %w", err)
	}
	return string(b), nil
}

func isNotFound(err error) bool {
	_, ok := err.(*core.NotFoundError)
	return ok
}

package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/JonMunkholm/invoicedesk/internal/core"
)

// Repository defines the data access contract for invoices. Missing or
// foreign-owned invoices are reported as *core.NotFoundError and a taken
// invoice number as *core.ConflictError on field invoice_number.
type Repository interface {
	Insert(ctx context.Context, inv *core.Invoice) error
	GetOwned(ctx context.Context, owner string, id uuid.UUID) (*core.Invoice, error)
	List(ctx context.Context, owner string, f core.InvoiceFilter) ([]core.Invoice, int, error)

	// Update writes inv if its stored updated_at still equals expect.
	Update(ctx context.Context, inv *core.Invoice, expect time.Time) error

	// UpdateStatus is a conditional write on the current status. matched is
	// false when the invoice was not in status from.
	UpdateStatus(ctx context.Context, owner string, id uuid.UUID, from, to core.InvoiceStatus, now time.Time) (*core.Invoice, bool, error)

	// MarkOverdue moves every pending invoice due before now to overdue.
	MarkOverdue(ctx context.Context, now time.Time) (int64, error)

	Delete(ctx context.Context, owner string, id uuid.UUID) error
}

// NumberAllocator hands out candidate invoice numbers.
type NumberAllocator interface {
	Next(ctx context.Context) (string, error)
}

// ItemInput is one client-supplied invoice line. Amount is never accepted.
type ItemInput struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}

// InvoiceInput is the client-supplied part of an invoice. It carries no
// status: new invoices start pending.
type InvoiceInput struct {
	Items         []ItemInput `json:"items"`
	DueDate       time.Time   `json:"dueDate"`
	Notes         string      `json:"notes"`
	PanCardNumber string      `json:"panCardNumber"`

	// UpdatedAt, when set on an update, must match the stored value.
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

func (in InvoiceInput) items() []core.Item {
	out := make([]core.Item, len(in.Items))
	for i, it := range in.Items {
		out[i] = core.Item{Description: it.Description, Quantity: it.Quantity, Price: it.Price}
	}
	return out
}

// Package billing owns the invoice lifecycle: derived amounts, status
// transitions, invoice numbering and the overdue sweep.
//
// Every write runs core.ValidateInvoice, core.Normalize and
// core.ApplyOverdue before it reaches the store, so stored amounts always
// equal the sum of quantity*price and a stored pending invoice is never past
// due at write time. Reads keep the overdue rule true between writes: List
// sweeps before it reads and Get promotes the one invoice it returns.
package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/invoicedesk/internal/core"
	"github.com/JonMunkholm/invoicedesk/internal/staging"
	"github.com/JonMunkholm/invoicedesk/internal/tabular"
)

const (
	// DefaultNumberAttempts bounds invoice number allocation retries.
	DefaultNumberAttempts = 5

	// DefaultPaymentTerm is added to the import time when a row has no due date.
	DefaultPaymentTerm = 30 * 24 * time.Hour
)

// Engine implements the invoice lifecycle. It is safe for concurrent use if
// its repository, allocator and stager are.
type Engine struct {
	repo     Repository
	numbers  NumberAllocator
	stager   staging.Stager
	decode   tabular.Options
	now      func() time.Time
	attempts int
	term     time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithNumberAttempts sets how many invoice numbers Create tries.
func WithNumberAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.attempts = n
		}
	}
}

// WithPaymentTerm sets the default due date offset for imported rows.
func WithPaymentTerm(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.term = d
		}
	}
}

// WithDecodeOptions sets the options used to decode invoice uploads.
func WithDecodeOptions(opts tabular.Options) Option {
	return func(e *Engine) { e.decode = opts }
}

// NewEngine creates an invoice engine.
func NewEngine(repo Repository, numbers NumberAllocator, stager staging.Stager, opts ...Option) *Engine {
	e := &Engine{
		repo:     repo,
		numbers:  numbers,
		stager:   stager,
		now:      time.Now,
		attempts: DefaultNumberAttempts,
		term:     DefaultPaymentTerm,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// clock returns the current time at the store's precision so optimistic
// updated_at checks compare equal after a round trip.
func (e *Engine) clock() time.Time {
	return e.now().UTC().Truncate(time.Microsecond)
}

// Create validates and stores a new invoice with a freshly allocated number.
func (e *Engine) Create(ctx context.Context, owner string, in InvoiceInput) (*core.Invoice, error) {
	inv := &core.Invoice{
		ID:            uuid.New(),
		OwnerID:       owner,
		PanCardNumber: in.PanCardNumber,
		Items:         in.items(),
		Status:        core.InvoicePending,
		DueDate:       in.DueDate,
		Notes:         in.Notes,
	}
	if err := e.create(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// create runs the write path for a new invoice and inserts it, retrying
// with a new number while the candidate collides with an existing one.
func (e *Engine) create(ctx context.Context, inv *core.Invoice) error {
	if err := core.ValidateInvoice(inv); err != nil {
		return err
	}
	now := e.clock()
	core.Normalize(inv)
	core.ApplyOverdue(inv, now)
	inv.CreatedAt = now
	inv.UpdatedAt = now

	var lastErr error
	for attempt := 1; attempt <= e.attempts; attempt++ {
		number, err := e.numbers.Next(ctx)
		if err != nil {
			return &core.StorageError{Op: "allocate invoice number", Err: err}
		}
		inv.InvoiceNumber = number

		err = e.repo.Insert(ctx, inv)
		if err == nil {
			slog.Debug("invoice created", "invoice_id", inv.ID, "invoice_number", number, "amount", inv.Amount)
			return nil
		}

		var ce *core.ConflictError
		if !errors.As(err, &ce) || ce.Field != "invoice_number" {
			return err
		}
		slog.Warn("invoice number taken, retrying", "invoice_number", number, "attempt", attempt)
		lastErr = err
	}
	return lastErr
}

// Update replaces the items, due date, notes and PAN of an owned invoice.
// The status is kept; it only changes through SetStatus, CorrectStatus and
// the overdue rule. Derived fields are recomputed and the overdue rule applied. The write is
// conditional on the updated_at observed by the read, or on in.UpdatedAt
// when the caller supplies one.
func (e *Engine) Update(ctx context.Context, owner string, id uuid.UUID, in InvoiceInput) (*core.Invoice, error) {
	cur, err := e.repo.GetOwned(ctx, owner, id)
	if err != nil {
		return nil, err
	}

	expect := cur.UpdatedAt
	if in.UpdatedAt != nil && !in.UpdatedAt.Equal(expect) {
		return nil, &core.ConflictError{Resource: "invoice", Field: "updated_at", Value: in.UpdatedAt.Format(time.RFC3339Nano)}
	}

	next := *cur
	next.Items = in.items()
	next.DueDate = in.DueDate
	next.Notes = in.Notes
	next.PanCardNumber = in.PanCardNumber

	if err := core.ValidateInvoice(&next); err != nil {
		return nil, err
	}

	now := e.clock()
	core.Normalize(&next)
	core.ApplyOverdue(&next, now)
	next.UpdatedAt = now

	if err := e.repo.Update(ctx, &next, expect); err != nil {
		return nil, err
	}
	return &next, nil
}

// Get returns an owned invoice. A pending invoice found past due is moved to
// overdue before it is returned.
func (e *Engine) Get(ctx context.Context, owner string, id uuid.UUID) (*core.Invoice, error) {
	inv, err := e.repo.GetOwned(ctx, owner, id)
	if err != nil {
		return nil, err
	}

	now := e.clock()
	if inv.Status != core.InvoicePending || !inv.DueDate.Before(now) {
		return inv, nil
	}

	updated, matched, err := e.repo.UpdateStatus(ctx, owner, id, core.InvoicePending, core.InvoiceOverdue, now)
	if err != nil {
		return nil, err
	}
	if matched {
		return updated, nil
	}
	// Someone else changed the status in between. Their write wins.
	return e.repo.GetOwned(ctx, owner, id)
}

// List sweeps overdue invoices and then returns one page of the owner's
// invoices, newest first. The sweep completes before the read starts.
func (e *Engine) List(ctx context.Context, owner string, f core.InvoiceFilter) (core.PageResult[core.Invoice], error) {
	if _, err := e.Sweep(ctx); err != nil {
		return core.PageResult[core.Invoice]{}, err
	}

	items, total, err := e.repo.List(ctx, owner, f)
	if err != nil {
		return core.PageResult[core.Invoice]{}, err
	}
	return core.NewPageResult(items, total, f.Page), nil
}

// Sweep moves every pending invoice whose due date has passed to overdue in
// one batched write. It is idempotent and safe to run concurrently.
func (e *Engine) Sweep(ctx context.Context) (int64, error) {
	n, err := e.repo.MarkOverdue(ctx, e.clock())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		slog.Info("marked invoices overdue", "count", n)
	}
	return n, nil
}

// Delete removes an owned invoice.
func (e *Engine) Delete(ctx context.Context, owner string, id uuid.UUID) error {
	return e.repo.Delete(ctx, owner, id)
}

// SetStatus settles an invoice: the target must be paid or cancelled.
func (e *Engine) SetStatus(ctx context.Context, owner string, id uuid.UUID, target string) (*core.Invoice, error) {
	st, err := core.ParseInvoiceStatus(target)
	if err != nil {
		return nil, err
	}
	if st != core.InvoicePaid && st != core.InvoiceCancelled {
		return nil, &core.ValidationError{
			Field:   "status",
			Value:   target,
			Message: "invalid enum value: expected paid or cancelled",
		}
	}
	return e.transition(ctx, owner, id, st)
}

// CorrectStatus sets any status of the closed set. It is the explicit
// correction path and may move an invoice out of paid, cancelled or overdue.
func (e *Engine) CorrectStatus(ctx context.Context, owner string, id uuid.UUID, target string) (*core.Invoice, error) {
	st, err := core.ParseInvoiceStatus(target)
	if err != nil {
		return nil, err
	}
	return e.transition(ctx, owner, id, st)
}

// transition writes st conditionally on the status observed by a fresh read.
// A lost race re-reads once; a second loss is reported as a conflict.
func (e *Engine) transition(ctx context.Context, owner string, id uuid.UUID, st core.InvoiceStatus) (*core.Invoice, error) {
	const reads = 2
	for i := 0; i < reads; i++ {
		cur, err := e.repo.GetOwned(ctx, owner, id)
		if err != nil {
			return nil, err
		}
		if cur.Status == st {
			return cur, nil
		}

		updated, matched, err := e.repo.UpdateStatus(ctx, owner, id, cur.Status, st, e.clock())
		if err != nil {
			return nil, err
		}
		if matched {
			slog.Info("invoice status changed", "invoice_id", id, "from", cur.Status, "to", st)
			return updated, nil
		}
	}
	return nil, &core.ConflictError{Resource: "invoice", Field: "status", Value: string(st),
		Err: errors.New("status changed concurrently")}
}

package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Normalize recomputes every derived invoice field from its items.
// Item amounts become quantity*price and the invoice amount becomes their sum.
// Client-supplied amounts are discarded. Normalize is idempotent.
func Normalize(inv *Invoice) {
	total := decimal.Zero
	for i := range inv.Items {
		it := &inv.Items[i]
		it.Description = strings.TrimSpace(it.Description)
		it.Amount = it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
		total = total.Add(it.Amount)
	}
	inv.Amount = total
	inv.Notes = strings.TrimSpace(inv.Notes)
	inv.PanCardNumber = strings.TrimSpace(inv.PanCardNumber)
}

// ApplyOverdue moves a pending invoice whose due date has passed to overdue.
// It reports whether the status changed. Other statuses are never touched.
func ApplyOverdue(inv *Invoice, now time.Time) bool {
	if inv.Status == InvoicePending && inv.DueDate.Before(now) {
		inv.Status = InvoiceOverdue
		return true
	}
	return false
}

// ValidateInvoice checks the field constraints of an invoice before it is
// written. It returns ValidationErrors listing every violation.
func ValidateInvoice(inv *Invoice) error {
	var errs ValidationErrors

	if len(inv.Items) == 0 {
		errs = append(errs, &ValidationError{Field: "items", Message: "required field: at least one item is required"})
	}
	for i, it := range inv.Items {
		field := fmt.Sprintf("items[%d]", i)
		if strings.TrimSpace(it.Description) == "" {
			errs = append(errs, &ValidationError{Field: field + ".description", Message: "required field is empty"})
		}
		if it.Quantity < 1 {
			errs = append(errs, &ValidationError{
				Field:   field + ".quantity",
				Value:   fmt.Sprint(it.Quantity),
				Message: "quantity must be at least 1",
			})
		}
		if it.Price.IsNegative() {
			errs = append(errs, &ValidationError{
				Field:   field + ".price",
				Value:   it.Price.String(),
				Message: "price cannot be negative",
			})
		}
	}
	if inv.DueDate.IsZero() {
		errs = append(errs, &ValidationError{Field: "dueDate", Message: "required field: due date is required"})
	}
	if inv.Status != "" {
		if _, err := ParseInvoiceStatus(string(inv.Status)); err != nil {
			errs = append(errs, err.(*ValidationError))
		}
	}

	return errs.OrNil()
}

// ValidateCampaignName checks the required campaign display name.
func ValidateCampaignName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &ValidationError{Field: "name", Message: "required field: campaign name is required"}
	}
	return nil
}

package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RawRecord maps header names to cell values for one decoded row.
type RawRecord map[string]string

// Get returns the first non-empty value found under any of the given column
// names. Column names match case-insensitively.
func (r RawRecord) Get(names ...string) (string, bool) {
	for _, name := range names {
		if v, ok := r[name]; ok && v != "" {
			return v, true
		}
		for k, v := range r {
			if v != "" && strings.EqualFold(k, name) {
				return v, true
			}
		}
	}
	return "", false
}

// Clone returns a copy that does not share storage with r.
func (r RawRecord) Clone() RawRecord {
	out := make(RawRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// CampaignStatus is the lifecycle state of a Campaign.
//
// Ingestion sets pending. The owner's processing pipeline moves a campaign
// through processing, completed and failed. Administrative review sets
// approved or rejected.
type CampaignStatus string

const (
	CampaignPending    CampaignStatus = "pending"
	CampaignProcessing CampaignStatus = "processing"
	CampaignCompleted  CampaignStatus = "completed"
	CampaignFailed     CampaignStatus = "failed"
	CampaignApproved   CampaignStatus = "approved"
	CampaignRejected   CampaignStatus = "rejected"
)

var campaignStatuses = map[CampaignStatus]bool{
	CampaignPending:    true,
	CampaignProcessing: true,
	CampaignCompleted:  true,
	CampaignFailed:     true,
	CampaignApproved:   true,
	CampaignRejected:   true,
}

// ParseCampaignStatus validates s against the closed campaign status set.
func ParseCampaignStatus(s string) (CampaignStatus, error) {
	st := CampaignStatus(strings.ToLower(strings.TrimSpace(s)))
	if !campaignStatuses[st] {
		return "", &ValidationError{Field: "status", Value: s, Message: "invalid enum value for campaign status"}
	}
	return st, nil
}

// IsReviewOutcome reports whether the status can only be set by review.
func (s CampaignStatus) IsReviewOutcome() bool {
	return s == CampaignApproved || s == CampaignRejected
}

// Campaign is a bulk-imported dataset owned by a single user.
type Campaign struct {
	ID               uuid.UUID      `json:"id"`
	OwnerID          string         `json:"ownerId"`
	Name             string         `json:"name"`
	Description      string         `json:"description,omitempty"`
	FileName         string         `json:"fileName,omitempty"`
	FilePath         string         `json:"filePath,omitempty"`
	Status           CampaignStatus `json:"status"`
	Columns          []string       `json:"columns,omitempty"`
	Dataset          []RawRecord    `json:"data,omitempty"`
	TotalRecords     int            `json:"totalRecords"`
	ProcessedRecords int            `json:"processedRecords"`
	ErrorRecords     int            `json:"errorRecords"`
	RejectionReason  string         `json:"rejectionReason,omitempty"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// Touch recomputes derived campaign fields before a write.
func (c *Campaign) Touch(now time.Time) {
	c.Name = strings.TrimSpace(c.Name)
	c.Description = strings.TrimSpace(c.Description)
	c.TotalRecords = len(c.Dataset)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
}

// InvoiceStatus is the lifecycle state of an Invoice.
type InvoiceStatus string

const (
	InvoicePending   InvoiceStatus = "pending"
	InvoicePaid      InvoiceStatus = "paid"
	InvoiceOverdue   InvoiceStatus = "overdue"
	InvoiceCancelled InvoiceStatus = "cancelled"
)

// ParseInvoiceStatus validates s against the closed invoice status set.
func ParseInvoiceStatus(s string) (InvoiceStatus, error) {
	switch st := InvoiceStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case InvoicePending, InvoicePaid, InvoiceOverdue, InvoiceCancelled:
		return st, nil
	}
	return "", &ValidationError{Field: "status", Value: s, Message: "invalid enum value for invoice status"}
}

// Item is one line of an invoice.
type Item struct {
	Description string          `json:"description"`
	Quantity    int             `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	Amount      decimal.Decimal `json:"amount"`
}

// Invoice is a billing document owned by a single user.
type Invoice struct {
	ID            uuid.UUID       `json:"id"`
	InvoiceNumber string          `json:"invoiceNumber"`
	OwnerID       string          `json:"ownerId"`
	PanCardNumber string          `json:"panCardNumber,omitempty"`
	Items         []Item          `json:"items"`
	Amount        decimal.Decimal `json:"amount"`
	Status        InvoiceStatus   `json:"status"`
	DueDate       time.Time       `json:"dueDate"`
	Notes         string          `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
}

// Page selects a window of a createdAt-descending listing.
type Page struct {
	Number int // 1-based
	Limit  int
}

// DefaultPageLimit is used when a caller does not supply a limit.
const DefaultPageLimit = 10

// MaxPageLimit caps caller-supplied limits.
const MaxPageLimit = 100

// Normalized returns p with defaults applied.
func (p Page) Normalized() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Limit < 1 {
		p.Limit = DefaultPageLimit
	}
	if p.Limit > MaxPageLimit {
		p.Limit = MaxPageLimit
	}
	return p
}

// Offset returns the number of rows to skip.
func (p Page) Offset() int {
	p = p.Normalized()
	return (p.Number - 1) * p.Limit
}

// PageResult is one page of a listing plus the total number of matches.
type PageResult[T any] struct {
	Items       []T `json:"items"`
	Total       int `json:"total"`
	CurrentPage int `json:"currentPage"`
	TotalPages  int `json:"totalPages"`
}

// NewPageResult computes page counters for items selected with p.
func NewPageResult[T any](items []T, total int, p Page) PageResult[T] {
	p = p.Normalized()
	if items == nil {
		items = []T{}
	}
	return PageResult[T]{
		Items:       items,
		Total:       total,
		CurrentPage: p.Number,
		TotalPages:  (total + p.Limit - 1) / p.Limit,
	}
}

// InvoiceFilter narrows an invoice listing. Zero fields do not filter.
// Start and End bound CreatedAt inclusively.
type InvoiceFilter struct {
	Status InvoiceStatus
	Start  time.Time
	End    time.Time
	Page   Page
}

package campaigns

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/invoicedesk/internal/core"
)

// Repository defines the data access contract for campaigns.
// Implementations must be safe for concurrent use and report missing or
// foreign-owned campaigns as *core.NotFoundError.
type Repository interface {
	// Create inserts a new campaign together with its dataset.
	Create(ctx context.Context, c *core.Campaign) error

	// Get returns a campaign with its dataset regardless of owner.
	Get(ctx context.Context, id uuid.UUID) (*core.Campaign, error)

	// GetOwned returns a campaign with its dataset if owner owns it.
	GetOwned(ctx context.Context, owner string, id uuid.UUID) (*core.Campaign, error)

	// ListByOwner returns one page of summaries ordered by created_at DESC.
	ListByOwner(ctx context.Context, owner string, page core.Page) ([]core.Campaign, int, error)

	// ListByStatus returns one page of summaries ordered by created_at DESC.
	ListByStatus(ctx context.Context, status core.CampaignStatus, page core.Page) ([]core.Campaign, int, error)

	// ListAll returns every summary ordered by created_at DESC.
	ListAll(ctx context.Context) ([]core.Campaign, error)

	// Update writes the mutable fields of an owned campaign.
	Update(ctx context.Context, c *core.Campaign, replaceDataset bool) error

	// Review sets a review outcome. An empty reason keeps the stored one.
	Review(ctx context.Context, id uuid.UUID, status core.CampaignStatus, reason string, now time.Time) (*core.Campaign, error)

	// BulkSetStatus sets status on every listed campaign.
	BulkSetStatus(ctx context.Context, ids []uuid.UUID, status core.CampaignStatus, now time.Time) (int64, error)

	// Delete removes an owned campaign and returns its staged file reference.
	Delete(ctx context.Context, owner string, id uuid.UUID) (string, error)
}

// ImportInput describes one bulk upload.
type ImportInput struct {
	Name        string
	Description string
	FileName    string
}

// UpdateFields holds the owner-editable campaign fields.
// Nil fields are not applied.
type UpdateFields struct {
	Name             *string          `json:"name"`
	Description      *string          `json:"description"`
	Status           *string          `json:"status"`
	ProcessedRecords *int             `json:"processedRecords"`
	ErrorRecords     *int             `json:"errorRecords"`
	Columns          []string         `json:"columns"` // applies only with Dataset
	Dataset          []core.RawRecord `json:"data"`
}

package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/invoicedesk/internal/core"
)

const campaignResource = "campaign"

// campaignSummaryColumns is every column except the dataset and its header.
const campaignSummaryColumns = `id, owner_id, name, description, file_name, file_path, status,
	total_records, processed_records, error_records, rejection_reason, created_at, updated_at`

const campaignColumns = campaignSummaryColumns + `, columns, dataset`

// CampaignRepository persists campaigns with their dataset embedded as JSONB.
type CampaignRepository struct {
	db DBTX
}

// NewCampaignRepository returns a repository over db.
func NewCampaignRepository(db DBTX) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create inserts c in a single statement.
func (r *CampaignRepository) Create(ctx context.Context, c *core.Campaign) error {
	cols, data, err := marshalDataset(c.Columns, c.Dataset)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO campaigns (`+campaignColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		c.ID, c.OwnerID, c.Name, c.Description, c.FileName, c.FilePath, string(c.Status),
		c.TotalRecords, c.ProcessedRecords, c.ErrorRecords, c.RejectionReason, c.CreatedAt, c.UpdatedAt,
		cols, data,
	)
	return translate("insert campaign", campaignResource, c.ID.String(), c.Name, err)
}

// Get returns a campaign with its dataset regardless of owner.
func (r *CampaignRepository) Get(ctx context.Context, id uuid.UUID) (*core.Campaign, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = $1`, id)
	c, err := scanCampaign(row, true)
	if err != nil {
		return nil, translate("get campaign", campaignResource, id.String(), "", err)
	}
	return c, nil
}

// GetOwned returns a campaign with its dataset if owner owns it.
func (r *CampaignRepository) GetOwned(ctx context.Context, owner string, id uuid.UUID) (*core.Campaign, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE id = $1 AND owner_id = $2`, id, owner)
	c, err := scanCampaign(row, true)
	if err != nil {
		return nil, translate("get campaign", campaignResource, id.String(), "", err)
	}
	return c, nil
}

// ListByOwner returns one page of the owner's campaigns, newest first,
// without datasets.
func (r *CampaignRepository) ListByOwner(ctx context.Context, owner string, page core.Page) ([]core.Campaign, int, error) {
	return r.listWhere(ctx, "owner_id = $1", owner, page)
}

// ListByStatus returns one page of campaigns in status, newest first,
// without datasets.
func (r *CampaignRepository) ListByStatus(ctx context.Context, status core.CampaignStatus, page core.Page) ([]core.Campaign, int, error) {
	return r.listWhere(ctx, "status = $1", string(status), page)
}

func (r *CampaignRepository) listWhere(ctx context.Context, where string, arg any, page core.Page) ([]core.Campaign, int, error) {
	page = page.Normalized()

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM campaigns WHERE `+where, arg).Scan(&total); err != nil {
		return nil, 0, storageErr("count campaigns", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+campaignSummaryColumns+` FROM campaigns
		WHERE `+where+`
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3`,
		arg, page.Limit, page.Offset(),
	)
	if err != nil {
		return nil, 0, storageErr("list campaigns", err)
	}
	list, err := collectCampaigns(rows)
	if err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

// ListAll returns every campaign without datasets, newest first.
func (r *CampaignRepository) ListAll(ctx context.Context) ([]core.Campaign, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+campaignSummaryColumns+` FROM campaigns ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, storageErr("list campaigns", err)
	}
	return collectCampaigns(rows)
}

// Update overwrites the mutable fields of an owned campaign. The dataset and
// its columns are written only when replaceDataset is set.
func (r *CampaignRepository) Update(ctx context.Context, c *core.Campaign, replaceDataset bool) error {
	var cols, data any
	if replaceDataset {
		cj, dj, err := marshalDataset(c.Columns, c.Dataset)
		if err != nil {
			return err
		}
		cols, data = cj, dj
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET
			name = $3,
			description = $4,
			status = $5,
			processed_records = $6,
			error_records = $7,
			dataset = COALESCE($8::jsonb, dataset),
			total_records = CASE WHEN $8::jsonb IS NULL THEN total_records ELSE $9 END,
			updated_at = $10,
			columns = COALESCE($11::jsonb, columns)
		WHERE id = $1 AND owner_id = $2`,
		c.ID, c.OwnerID, c.Name, c.Description, string(c.Status),
		c.ProcessedRecords, c.ErrorRecords, data, c.TotalRecords, c.UpdatedAt, cols,
	)
	return expectOne(res, err, "update campaign", campaignResource, c.ID.String())
}

// Review records an administrative decision and returns the updated summary.
// An empty reason keeps the stored one.
func (r *CampaignRepository) Review(ctx context.Context, id uuid.UUID, status core.CampaignStatus, reason string, now time.Time) (*core.Campaign, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE campaigns SET status = $2, rejection_reason = COALESCE(NULLIF($3, ''), rejection_reason), updated_at = $4
		WHERE id = $1
		RETURNING `+campaignSummaryColumns,
		id, string(status), reason, now,
	)
	c, err := scanCampaign(row, false)
	if err != nil {
		return nil, translate("review campaign", campaignResource, id.String(), "", err)
	}
	return c, nil
}

// BulkSetStatus moves every listed campaign to status in one statement and
// reports how many rows matched.
func (r *CampaignRepository) BulkSetStatus(ctx context.Context, ids []uuid.UUID, status core.CampaignStatus, now time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	strs := make([]string, len(ids))
	for i, id := range ids {
		strs[i] = id.String()
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET status = $1, updated_at = $2
		WHERE id = ANY($3::uuid[])`,
		string(status), now, strs,
	)
	if err != nil {
		return 0, storageErr("bulk update campaigns", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("bulk update campaigns", err)
	}
	return n, nil
}

// Delete removes an owned campaign and returns its staged file reference.
func (r *CampaignRepository) Delete(ctx context.Context, owner string, id uuid.UUID) (string, error) {
	var filePath string
	err := r.db.QueryRowContext(ctx,
		`DELETE FROM campaigns WHERE id = $1 AND owner_id = $2 RETURNING file_path`, id, owner).Scan(&filePath)
	if err != nil {
		return "", translate("delete campaign", campaignResource, id.String(), "", err)
	}
	return filePath, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCampaign(row rowScanner, withData bool) (*core.Campaign, error) {
	var (
		c      core.Campaign
		status string
		cols   []byte
		data   []byte
	)
	dest := []any{
		&c.ID, &c.OwnerID, &c.Name, &c.Description, &c.FileName, &c.FilePath, &status,
		&c.TotalRecords, &c.ProcessedRecords, &c.ErrorRecords, &c.RejectionReason, &c.CreatedAt, &c.UpdatedAt,
	}
	if withData {
		dest = append(dest, &cols, &data)
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	c.Status = core.CampaignStatus(status)

	if withData {
		if err := json.Unmarshal(cols, &c.Columns); err != nil {
			return nil, storageErr("decode campaign columns", err)
		}
		if err := json.Unmarshal(data, &c.Dataset); err != nil {
			return nil, storageErr("decode campaign dataset", err)
		}
		if c.Dataset == nil {
			c.Dataset = []core.RawRecord{}
		}
	}
	return &c, nil
}

func collectCampaigns(rows *sql.Rows) ([]core.Campaign, error) {
	defer rows.Close()

	list := []core.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows, false)
		if err != nil {
			return nil, storageErr("scan campaign", err)
		}
		list = append(list, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate campaigns", err)
	}
	return list, nil
}

// marshalDataset encodes the header order and the records separately;
// JSONB sorts object keys, so the order only survives in columns.
func marshalDataset(columns []string, ds []core.RawRecord) (string, string, error) {
	if columns == nil {
		columns = []string{}
	}
	if ds == nil {
		ds = []core.RawRecord{}
	}
	cj, err := json.Marshal(columns)
	if err != nil {
		return "", "", fmt.Errorf("encode campaign columns: %w", err)
	}
	dj, err := json.Marshal(ds)
	if err != nil {
		return "", "", fmt.Errorf("encode campaign dataset: %w", err)
	}
	return string(cj), string(dj), nil
}

// expectOne turns a zero-row update into a NotFoundError.
func expectOne(res sql.Result, err error, op, resource, id string) error {
	if err != nil {
		return translate(op, resource, id, "", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storageErr(op, err)
	}
	if n == 0 {
		return &core.NotFoundError{Resource: resource, ID: id}
	}
	return nil
}

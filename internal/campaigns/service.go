package campaigns

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/invoicedesk/internal/core"
	"github.com/JonMunkholm/invoicedesk/internal/ingest"
	"github.com/JonMunkholm/invoicedesk/internal/staging"
	"github.com/JonMunkholm/invoicedesk/internal/tabular"
)

// Service implements campaign business logic. It is safe for concurrent use
// if the repository and stager are.
type Service struct {
	repo   Repository
	stager staging.Stager
	decode tabular.Options
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithDecodeOptions sets the options used to decode uploads.
func WithDecodeOptions(opts tabular.Options) Option {
	return func(s *Service) { s.decode = opts }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a campaign service.
func NewService(repo Repository, stager staging.Stager, opts ...Option) *Service {
	s := &Service{repo: repo, stager: stager, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) clock() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

// Import stages body, decodes every record from the staged copy and stores
// them as the dataset of one new pending campaign.
//
// Nothing is stored when any step fails and the staged file is released.
// On success the staged file is kept and referenced by FilePath.
func (s *Service) Import(ctx context.Context, owner string, in ImportInput, body io.Reader) (*core.Campaign, error) {
	if err := core.ValidateCampaignName(in.Name); err != nil {
		return nil, err
	}

	var created *core.Campaign
	_, err := ingest.StageAndKeep(ctx, s.stager, in.FileName, body,
		func(ctx context.Context, st staging.Staged, staged io.Reader) error {
			dec, err := tabular.Open(in.FileName, staged, s.decode)
			if err != nil {
				return err
			}
			defer dec.Close()

			records, err := tabular.Collect(ctx, dec)
			if err != nil {
				return err
			}

			c := &core.Campaign{
				ID:          uuid.New(),
				OwnerID:     owner,
				Name:        in.Name,
				Description: in.Description,
				FileName:    st.FileName,
				FilePath:    st.Ref,
				Status:      core.CampaignPending,
				Columns:     append([]string(nil), dec.Header()...),
				Dataset:     records,
			}
			c.Touch(s.clock())

			if err := s.repo.Create(ctx, c); err != nil {
				return err
			}
			created = c
			return nil
		})
	if err != nil {
		slog.Warn("campaign import failed", "owner", owner, "file", in.FileName, "error", err)
		return nil, err
	}

	slog.Info("campaign imported",
		"campaign_id", created.ID,
		"owner", owner,
		"records", created.TotalRecords,
	)
	return created, nil
}

// Get returns an owned campaign with its dataset.
func (s *Service) Get(ctx context.Context, owner string, id uuid.UUID) (*core.Campaign, error) {
	return s.repo.GetOwned(ctx, owner, id)
}

// List returns one page of the owner's campaigns, newest first.
func (s *Service) List(ctx context.Context, owner string, page core.Page) (core.PageResult[core.Campaign], error) {
	items, total, err := s.repo.ListByOwner(ctx, owner, page)
	if err != nil {
		return core.PageResult[core.Campaign]{}, err
	}
	return core.NewPageResult(items, total, page), nil
}

// Update applies owner edits. Review outcomes cannot be set here.
// TotalRecords is recomputed from the dataset. A replaced dataset keeps the
// stored column order unless the edit lists its own columns.
func (s *Service) Update(ctx context.Context, owner string, id uuid.UUID, u UpdateFields) (*core.Campaign, error) {
	c, err := s.repo.GetOwned(ctx, owner, id)
	if err != nil {
		return nil, err
	}

	var errs core.ValidationErrors
	if u.Name != nil {
		if err := core.ValidateCampaignName(*u.Name); err != nil {
			errs = append(errs, err.(*core.ValidationError))
		}
		c.Name = *u.Name
	}
	if u.Description != nil {
		c.Description = *u.Description
	}
	if u.Status != nil {
		st, err := core.ParseCampaignStatus(*u.Status)
		switch {
		case err != nil:
			errs = append(errs, err.(*core.ValidationError))
		case st.IsReviewOutcome():
			errs = append(errs, &core.ValidationError{
				Field:   "status",
				Value:   *u.Status,
				Message: "invalid enum value: review outcomes are set by an administrator",
			})
		default:
			c.Status = st
		}
	}
	if u.ProcessedRecords != nil {
		if *u.ProcessedRecords < 0 {
			errs = append(errs, &core.ValidationError{Field: "processedRecords", Message: "counter cannot be negative"})
		}
		c.ProcessedRecords = *u.ProcessedRecords
	}
	if u.ErrorRecords != nil {
		if *u.ErrorRecords < 0 {
			errs = append(errs, &core.ValidationError{Field: "errorRecords", Message: "counter cannot be negative"})
		}
		c.ErrorRecords = *u.ErrorRecords
	}
	if u.Dataset != nil {
		columns := c.Columns
		if u.Columns != nil {
			columns = u.Columns
		}
		c.Dataset = u.Dataset
		c.Columns = core.DatasetColumns(columns, u.Dataset)
	}
	if err := errs.OrNil(); err != nil {
		return nil, err
	}

	c.Touch(s.clock())
	if err := s.repo.Update(ctx, c, u.Dataset != nil); err != nil {
		return nil, err
	}
	return c, nil
}

// Delete removes an owned campaign and then its staged file. A file that
// cannot be removed is logged, not reported.
func (s *Service) Delete(ctx context.Context, owner string, id uuid.UUID) error {
	ref, err := s.repo.Delete(ctx, owner, id)
	if err != nil {
		return err
	}
	if ref == "" {
		return nil
	}

	if err := s.stager.Remove(context.WithoutCancel(ctx), ref); err != nil {
		if errors.Is(err, staging.ErrForeignRef) {
			slog.Warn("campaign file belongs to another staging area", "campaign_id", id, "ref", ref)
		} else {
			slog.Error("failed to remove campaign file", "campaign_id", id, "ref", ref, "error", err)
		}
	}
	return nil
}

// ListPending returns one page of campaigns awaiting review.
func (s *Service) ListPending(ctx context.Context, page core.Page) (core.PageResult[core.Campaign], error) {
	items, total, err := s.repo.ListByStatus(ctx, core.CampaignPending, page)
	if err != nil {
		return core.PageResult[core.Campaign]{}, err
	}
	return core.NewPageResult(items, total, page), nil
}

// Review approves or rejects a campaign.
func (s *Service) Review(ctx context.Context, id uuid.UUID, status, reason string) (*core.Campaign, error) {
	st, err := core.ParseCampaignStatus(status)
	if err != nil || !st.IsReviewOutcome() {
		return nil, &core.ValidationError{
			Field:   "status",
			Value:   status,
			Message: "invalid enum value: expected approved or rejected",
		}
	}

	c, err := s.repo.Review(ctx, id, st, strings.TrimSpace(reason), s.clock())
	if err != nil {
		return nil, err
	}
	slog.Info("campaign reviewed", "campaign_id", id, "status", st)
	return c, nil
}

// BulkApprove approves every listed campaign and returns how many matched.
func (s *Service) BulkApprove(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, &core.ValidationError{Field: "campaignIds", Message: "required field: at least one campaign id is required"}
	}
	n, err := s.repo.BulkSetStatus(ctx, ids, core.CampaignApproved, s.clock())
	if err != nil {
		return 0, fmt.Errorf("bulk approve: %w", err)
	}
	slog.Info("campaigns approved", "requested", len(ids), "matched", n)
	return n, nil
}

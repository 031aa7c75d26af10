// Package ingest runs decoded records through an import and manages the
// staged file an import reads from.
//
// ImportRecords is the per-record strategy: every row is built and persisted
// on its own, failures are collected with their source row, and processing
// continues. Only unreadable input or cancellation stops the loop early.
//
// WithStaged and StageAndKeep scope a staged upload around an import so the
// file is released exactly once on every exit path.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/JonMunkholm/invoicedesk/internal/core"
	"github.com/JonMunkholm/invoicedesk/internal/staging"
	"github.com/JonMunkholm/invoicedesk/internal/tabular"
)

// Succeeded is one persisted entity tagged with its source row.
type Succeeded[T any] struct {
	Row    int `json:"row"`
	Entity T   `json:"entity"`
}

// Failure is one rejected row. Record holds the original cell values.
type Failure struct {
	Row    int            `json:"row"`
	Record core.RawRecord `json:"record"`
	Error  string         `json:"error"`
	Err    error          `json:"-"`
}

// Report holds the outcome of a per-record import in source order.
type Report[T any] struct {
	Succeeded []Succeeded[T]
	Failed    []Failure
}

// SuccessCount returns the number of persisted rows.
func (r *Report[T]) SuccessCount() int { return len(r.Succeeded) }

// ErrorCount returns the number of rejected rows.
func (r *Report[T]) ErrorCount() int { return len(r.Failed) }

// ErrorDetails returns the rejected rows.
func (r *Report[T]) ErrorDetails() []Failure {
	if r.Failed == nil {
		return []Failure{}
	}
	return r.Failed
}

// Summary is the response shape of an import.
type Summary struct {
	Success      int       `json:"success"`
	Errors       int       `json:"errors"`
	ErrorDetails []Failure `json:"errorDetails"`
}

// Summary condenses the report for callers that do not need the entities.
func (r *Report[T]) Summary() Summary {
	return Summary{
		Success:      r.SuccessCount(),
		Errors:       r.ErrorCount(),
		ErrorDetails: r.ErrorDetails(),
	}
}

// BuildFunc turns one decoded record into an entity ready to persist.
type BuildFunc[T any] func(rec core.RawRecord) (T, error)

// PersistFunc stores an entity and returns the stored version.
type PersistFunc[T any] func(ctx context.Context, v T) (T, error)

// ImportRecords builds and persists each record of dec in order.
//
// Row-level failures (see core.IsRowRecoverable) are appended to the
// report and the loop moves on. A decode error, a cancelled ctx or any other
// failure stops the loop and is returned with the partial report.
func ImportRecords[T any](ctx context.Context, dec tabular.Reader, build BuildFunc[T], persist PersistFunc[T]) (*Report[T], error) {
	report := &Report[T]{}

	for {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		rec, err := dec.Next()
		if err == io.EOF {
			return report, nil
		}
		if err != nil {
			return report, err
		}
		row := dec.Row()

		entity, err := build(rec)
		if err == nil {
			entity, err = persist(ctx, entity)
		}
		if err != nil {
			if !core.IsRowRecoverable(err) {
				return report, fmt.Errorf("row %d: %w", row, err)
			}
			report.Failed = append(report.Failed, Failure{
				Row:    row,
				Record: rec.Clone(),
				Error:  err.Error(),
				Err:    err,
			})
			continue
		}

		report.Succeeded = append(report.Succeeded, Succeeded[T]{Row: row, Entity: entity})
	}
}

// releaseTimeout bounds removal of a staged file once the import is over.
const releaseTimeout = 30 * time.Second

// StagedFunc consumes a staged upload. body reads the staged copy.
type StagedFunc func(ctx context.Context, st staging.Staged, body io.Reader) error

// WithStaged stages r, runs fn over the staged copy and removes the staged
// file afterwards whatever the outcome, including a panic in fn or a
// cancelled ctx.
func WithStaged(ctx context.Context, stager staging.Stager, fileName string, r io.Reader, fn StagedFunc) error {
	_, err := runStaged(ctx, stager, fileName, r, false, fn)
	return err
}

// StageAndKeep is WithStaged for imports that keep the file: the staged
// file is removed only when fn fails or panics. On success its description
// is returned.
func StageAndKeep(ctx context.Context, stager staging.Stager, fileName string, r io.Reader, fn StagedFunc) (staging.Staged, error) {
	return runStaged(ctx, stager, fileName, r, true, fn)
}

func runStaged(ctx context.Context, stager staging.Stager, fileName string, r io.Reader, keep bool, fn StagedFunc) (staging.Staged, error) {
	st, err := stager.Stage(ctx, fileName, r)
	if err != nil {
		return staging.Staged{}, fmt.Errorf("stage upload: %w", err)
	}

	var once sync.Once
	release := func() {
		once.Do(func() {
			// The import may have ended because ctx was cancelled.
			rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
			defer cancel()
			if rmErr := stager.Remove(rctx, st.Ref); rmErr != nil {
				slog.Error("failed to release staged upload", "ref", st.Ref, "error", rmErr)
				return
			}
			slog.Debug("released staged upload", "ref", st.Ref)
		})
	}

	succeeded := false
	defer func() {
		if !keep || !succeeded {
			release()
		}
	}()

	body, err := stager.Open(ctx, st.Ref)
	if err != nil {
		return staging.Staged{}, fmt.Errorf("open staged upload: %w", err)
	}
	defer func() {
		if cerr := body.Close(); cerr != nil {
			slog.Debug("closing staged upload", "ref", st.Ref, "error", cerr)
		}
	}()

	if err := fn(ctx, st, body); err != nil {
		return staging.Staged{}, err
	}

	succeeded = true
	return st, nil
}

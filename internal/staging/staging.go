// Package staging holds uploaded files between receipt and import.
//
// A staged file is written once, read within the scope of one import call,
// and then either kept (bulk campaign imports record its reference) or
// removed. References are opaque strings owned by the backend that issued
// them: an absolute path for Local, an s3:// URI for S3.
package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrTooLarge is returned when a staged stream exceeds the size limit.
	ErrTooLarge = errors.New("file too large")

	// ErrForeignRef is returned for references another stager issued.
	ErrForeignRef = errors.New("staged reference not owned by this stager")
)

// Stager is a write-once temporary file area.
type Stager interface {
	// Stage copies r into a new staged file and returns its reference.
	Stage(ctx context.Context, fileName string, r io.Reader) (Staged, error)
	// Open reads a staged file back.
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	// Remove deletes a staged file. Removing a missing file is not an error.
	Remove(ctx context.Context, ref string) error
}

// Staged describes one staged file.
type Staged struct {
	Ref      string
	FileName string // original client file name
	Size     int64
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// objectName builds a unique, filesystem-safe name that keeps the original
// file name readable: <unix-millis>-<short-uuid>-<name>.
func objectName(fileName string, now time.Time) string {
	base := filepath.Base(strings.ReplaceAll(fileName, `\`, "/"))
	base = strings.Trim(unsafeChars.ReplaceAllString(base, "_"), "._")
	if base == "" {
		base = "upload"
	}
	if len(base) > 100 {
		base = base[len(base)-100:]
	}
	return fmt.Sprintf("%d-%s-%s", now.UnixMilli(), uuid.NewString()[:8], base)
}

// readLimited reads r fully, failing with ErrTooLarge past maxBytes.
// A maxBytes of zero or less disables the limit.
func readLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, maxBytes)
	}
	return data, nil
}

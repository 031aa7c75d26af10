package staging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Local stages files in a directory on disk.
type Local struct {
	dir      string
	maxBytes int64
	now      func() time.Time
}

// NewLocal creates dir if needed and returns a stager rooted there.
func NewLocal(dir string, maxBytes int64) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve staging dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &Local{dir: abs, maxBytes: maxBytes, now: time.Now}, nil
}

// Dir returns the staging directory.
func (l *Local) Dir() string { return l.dir }

// Stage implements Stager.
func (l *Local) Stage(ctx context.Context, fileName string, r io.Reader) (Staged, error) {
	if err := ctx.Err(); err != nil {
		return Staged{}, err
	}

	path := filepath.Join(l.dir, objectName(fileName, l.now()))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return Staged{}, fmt.Errorf("create staged file: %w", err)
	}

	src := r
	if l.maxBytes > 0 {
		src = io.LimitReader(r, l.maxBytes+1)
	}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		err = fmt.Errorf("write staged file: %w", copyErr)
	case closeErr != nil:
		err = fmt.Errorf("close staged file: %w", closeErr)
	case l.maxBytes > 0 && n > l.maxBytes:
		err = fmt.Errorf("%w: exceeds %d bytes", ErrTooLarge, l.maxBytes)
	}
	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			slog.Warn("staging: failed to remove partial file", "path", path, "error", rmErr)
		}
		return Staged{}, err
	}

	return Staged{Ref: path, FileName: fileName, Size: n}, nil
}

// Open implements Stager.
func (l *Local) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	path, err := l.resolve(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open staged file: %w", err)
	}
	return f, nil
}

// Remove implements Stager.
func (l *Local) Remove(ctx context.Context, ref string) error {
	path, err := l.resolve(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove staged file: %w", err)
	}
	return nil
}

// resolve rejects references outside the staging directory.
func (l *Local) resolve(ref string) (string, error) {
	path := filepath.Clean(ref)
	if filepath.Dir(path) != l.dir || !strings.HasPrefix(path, l.dir+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrForeignRef, ref)
	}
	return path, nil
}

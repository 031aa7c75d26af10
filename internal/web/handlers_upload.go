package web

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/JonMunkholm/invoicedesk/internal/core"
	"github.com/JonMunkholm/invoicedesk/internal/staging"
)

// multipartOverhead leaves room for form fields next to the file part.
const multipartOverhead = 64 << 10

// allowedContentTypes are accepted file part types. Browsers report CSV
// inconsistently, so generic types are allowed when the extension matches.
var allowedContentTypes = map[string]bool{
	"text/csv":                 true,
	"application/csv":          true,
	"text/plain":               true,
	"application/vnd.ms-excel": true,
	"application/octet-stream": true,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": true,
}

// upload is a received multipart file part.
type upload struct {
	file   multipart.File
	header *multipart.FileHeader
	form   *multipart.Form
}

func (u *upload) Close() {
	_ = u.file.Close()
	_ = u.form.RemoveAll()
}

// receiveUpload parses the multipart body and checks the "file" part
// against the size, extension and content type rules.
func (s *Server) receiveUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	maxSize := s.cfg.Upload.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, err
		}
		return nil, &core.ValidationError{Field: "file", Message: "no file provided"}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		_ = r.MultipartForm.RemoveAll()
		return nil, &core.ValidationError{Field: "file", Message: "no file provided"}
	}
	u := &upload{file: file, header: header, form: r.MultipartForm}

	if header.Size > maxSize {
		u.Close()
		return nil, fmt.Errorf("%s: %w", header.Filename, staging.ErrTooLarge)
	}
	if err := s.checkFileType(header); err != nil {
		u.Close()
		return nil, err
	}
	return u, nil
}

func (s *Server) checkFileType(h *multipart.FileHeader) error {
	ext := strings.ToLower(filepath.Ext(h.Filename))
	okExt := false
	for _, allowed := range s.cfg.Upload.AllowedExtensions {
		if ext == strings.ToLower(strings.TrimSpace(allowed)) {
			okExt = true
			break
		}
	}

	ct := h.Header.Get("Content-Type")
	if ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil {
			ct = mt
		}
	}
	if !okExt || (ct != "" && !allowedContentTypes[ct]) {
		return &core.ValidationError{Field: "file", Value: h.Filename, Message: "unsupported file type"}
	}
	return nil
}

// runImport runs fn under the upload limiter and the import timeout.
func (s *Server) runImport(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.cfg.Upload.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Upload.Timeout)
		defer cancel()
	}
	return s.uploads.Run(ctx, fn)
}

package web

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JonMunkholm/invoicedesk/internal/core"
)

// maxJSONBody caps JSON request bodies. Campaign updates may carry a full
// dataset, so this is larger than a typical API limit.
const maxJSONBody = 8 << 20

// parseIntParam parses a positive integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i < 1 {
		return defaultVal
	}
	return i
}

// parsePage reads page and limit query parameters.
func parsePage(r *http.Request) core.Page {
	return core.Page{
		Number: parseIntParam(r, "page", 1),
		Limit:  parseIntParam(r, "limit", core.DefaultPageLimit),
	}.Normalized()
}

// idParam parses the {id} route parameter.
func idParam(r *http.Request) (uuid.UUID, error) {
	raw := chi.URLParam(r, "id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, &core.ValidationError{Field: "id", Value: raw, Message: "invalid value: not a valid id"}
	}
	return id, nil
}

// actor returns the caller stored by the Identity middleware.
func actor(r *http.Request) core.Actor {
	a, _ := core.ActorFromContext(r.Context())
	return a
}

// readBody reads a bounded request body.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, err
		}
		return nil, &core.ValidationError{Field: "body", Message: "invalid value: unreadable request body"}
	}
	return body, nil
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body, err := readBody(w, r)
	if err != nil {
		return err
	}
	return jsonUnmarshal(body, v)
}

func jsonUnmarshal(body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return &core.ValidationError{Field: "body", Message: "invalid value: malformed JSON"}
	}
	return nil
}

// dateRange parses the startDate and endDate query parameters. A date-only
// end bound covers the whole day.
func dateRange(r *http.Request) (start, end time.Time, err error) {
	q := r.URL.Query()
	if s := strings.TrimSpace(q.Get("startDate")); s != "" {
		if start, err = core.ParseDate("startDate", s); err != nil {
			return
		}
	}
	if s := strings.TrimSpace(q.Get("endDate")); s != "" {
		if end, err = core.ParseDate("endDate", s); err != nil {
			return
		}
		if end.Equal(end.Truncate(24 * time.Hour)) {
			end = end.Add(24*time.Hour - time.Microsecond)
		}
	}
	if !start.IsZero() && !end.IsZero() && end.Before(start) {
		err = &core.ValidationError{Field: "endDate", Value: q.Get("endDate"), Message: "invalid value: endDate is before startDate"}
	}
	return
}

// writeJSON encodes v as JSON with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

// writeJSONStatus encodes v as JSON with the given status.
// Encoding errors are only logged since the header is already sent.
func writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("json encode error", "error", err)
	}
}

// messageResponse is the body of operations without a resource to return.
type messageResponse struct {
	Message string `json:"message"`
}

package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/invoicedesk/internal/billing"
	"github.com/JonMunkholm/invoicedesk/internal/campaigns"
	"github.com/JonMunkholm/invoicedesk/internal/config"
	"github.com/JonMunkholm/invoicedesk/internal/core"
	"github.com/JonMunkholm/invoicedesk/internal/ingest"
	mw "github.com/JonMunkholm/invoicedesk/internal/web/middleware"
)

// fakeCampaigns records the arguments of the last call.
type fakeCampaigns struct {
	mu         sync.Mutex
	owner      string
	input      campaigns.ImportInput
	body       string
	page       core.Page
	approveIDs []uuid.UUID
	format     campaigns.ExportFormat
	err        error
}

func (f *fakeCampaigns) Import(_ context.Context, owner string, in campaigns.ImportInput, body io.Reader) (*core.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	b, _ := io.ReadAll(body)
	f.owner, f.input, f.body = owner, in, string(b)
	return &core.Campaign{
		ID:           uuid.New(),
		OwnerID:      owner,
		Name:         in.Name,
		Status:       core.CampaignPending,
		Dataset:      []core.RawRecord{{"a": "1"}},
		TotalRecords: 1,
	}, nil
}

func (f *fakeCampaigns) Get(_ context.Context, owner string, id uuid.UUID) (*core.Campaign, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &core.Campaign{ID: id, OwnerID: owner, Name: "Spring"}, nil
}

func (f *fakeCampaigns) List(_ context.Context, owner string, page core.Page) (core.PageResult[core.Campaign], error) {
	f.owner, f.page = owner, page
	return core.NewPageResult([]core.Campaign{{Name: "Spring", OwnerID: owner}}, 11, page), nil
}

func (f *fakeCampaigns) Update(_ context.Context, owner string, id uuid.UUID, u campaigns.UpdateFields) (*core.Campaign, error) {
	c := &core.Campaign{ID: id, OwnerID: owner}
	if u.Name != nil {
		c.Name = *u.Name
	}
	return c, f.err
}

func (f *fakeCampaigns) Delete(context.Context, string, uuid.UUID) error { return f.err }

func (f *fakeCampaigns) ListPending(_ context.Context, page core.Page) (core.PageResult[core.Campaign], error) {
	f.page = page
	return core.NewPageResult([]core.Campaign{{Status: core.CampaignPending}}, 1, page), nil
}

func (f *fakeCampaigns) Review(_ context.Context, id uuid.UUID, status, reason string) (*core.Campaign, error) {
	return &core.Campaign{ID: id, Status: core.CampaignStatus(status), RejectionReason: reason}, f.err
}

func (f *fakeCampaigns) BulkApprove(_ context.Context, ids []uuid.UUID) (int64, error) {
	f.approveIDs = ids
	return int64(len(ids)), f.err
}

func (f *fakeCampaigns) Export(_ context.Context, w io.Writer, format campaigns.ExportFormat) error {
	f.format = format
	if f.err != nil {
		return f.err
	}
	_, err := io.WriteString(w, "Campaign ID,Name\n")
	return err
}

func (f *fakeCampaigns) ExportDataset(_ context.Context, w io.Writer, owner string, _ uuid.UUID, format campaigns.ExportFormat) error {
	f.mu.Lock()
	f.owner, f.format = owner, format
	f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	_, err := io.WriteString(w, "zeta,alpha,mid\n1,2,3\n")
	return err
}

type fakeInvoices struct {
	mu       sync.Mutex
	calls    []string
	owner    string
	input    billing.InvoiceInput
	filter   core.InvoiceFilter
	target   string
	fileName string
	err      error
}

func (f *fakeInvoices) record(call, owner string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	f.owner = owner
}

func (f *fakeInvoices) Create(_ context.Context, owner string, in billing.InvoiceInput) (*core.Invoice, error) {
	f.record("create", owner)
	f.input = in
	if f.err != nil {
		return nil, f.err
	}
	return &core.Invoice{ID: uuid.New(), OwnerID: owner, InvoiceNumber: "INV00001", DueDate: in.DueDate, Status: core.InvoicePending}, nil
}

func (f *fakeInvoices) Update(_ context.Context, owner string, id uuid.UUID, in billing.InvoiceInput) (*core.Invoice, error) {
	f.record("update", owner)
	f.input = in
	return &core.Invoice{ID: id, OwnerID: owner}, f.err
}

func (f *fakeInvoices) Get(_ context.Context, owner string, id uuid.UUID) (*core.Invoice, error) {
	f.record("get", owner)
	if f.err != nil {
		return nil, f.err
	}
	return &core.Invoice{ID: id, OwnerID: owner}, nil
}

func (f *fakeInvoices) List(_ context.Context, owner string, flt core.InvoiceFilter) (core.PageResult[core.Invoice], error) {
	f.record("list", owner)
	f.filter = flt
	return core.NewPageResult([]core.Invoice{{OwnerID: owner}}, 1, flt.Page), f.err
}

func (f *fakeInvoices) Delete(_ context.Context, owner string, _ uuid.UUID) error {
	f.record("delete", owner)
	return f.err
}

func (f *fakeInvoices) SetStatus(_ context.Context, owner string, id uuid.UUID, target string) (*core.Invoice, error) {
	f.record("set-status", owner)
	f.target = target
	return &core.Invoice{ID: id, Status: core.InvoiceStatus(target)}, f.err
}

func (f *fakeInvoices) CorrectStatus(_ context.Context, owner string, id uuid.UUID, target string) (*core.Invoice, error) {
	f.record("correct-status", owner)
	f.target = target
	return &core.Invoice{ID: id, Status: core.InvoiceStatus(target)}, f.err
}

func (f *fakeInvoices) ImportInvoices(_ context.Context, owner, fileName string, body io.Reader) (*ingest.Report[*core.Invoice], error) {
	f.record("import", owner)
	f.fileName = fileName
	if f.err != nil {
		return nil, f.err
	}
	_, _ = io.Copy(io.Discard, body)
	return &ingest.Report[*core.Invoice]{
		Succeeded: []ingest.Succeeded[*core.Invoice]{{Row: 2, Entity: &core.Invoice{OwnerID: owner}}},
		Failed: []ingest.Failure{{
			Row:    3,
			Record: core.RawRecord{"desc": "Gadget"},
			Error:  "items.0.quantity: invalid number",
		}},
	}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{RequestTimeout: 5 * time.Second},
		Upload: config.UploadConfig{
			MaxFileSize:       1 << 20,
			MaxConcurrent:     2,
			MaxWaitTime:       time.Second,
			Timeout:           time.Minute,
			AllowedExtensions: []string{".csv", ".xlsx"},
		},
		Security: config.SecurityConfig{CORSOrigins: []string{"http://localhost:3000"}},
	}
}

type testEnv struct {
	srv       *Server
	campaigns *fakeCampaigns
	invoices  *fakeInvoices
	uploads   *ingest.Limiter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		campaigns: &fakeCampaigns{},
		invoices:  &fakeInvoices{},
		uploads:   ingest.NewLimiter(1, 20*time.Millisecond),
	}
	env.srv = NewServer(testConfig(), env.campaigns, env.invoices, env.uploads, nil)
	t.Cleanup(func() { _ = env.srv.Shutdown(context.Background()) })
	return env
}

// do sends req as the given user. An empty role sends no role header.
func (e *testEnv) do(req *http.Request, user, role string) *httptest.ResponseRecorder {
	if user != "" {
		req.Header.Set(mw.HeaderUserID, user)
	}
	if role != "" {
		req.Header.Set(mw.HeaderUserRole, role)
	}
	rec := httptest.NewRecorder()
	e.srv.Router().ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target, body string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// multipartRequest builds an upload with one file part and extra form fields.
func multipartRequest(t *testing.T, target, fileName, contentType, content string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mpw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mpw.WriteField(k, v))
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+fileName+`"`)
	h.Set("Content-Type", contentType)
	part, err := mpw.CreatePart(h)
	require.NoError(t, err)
	_, err = io.WriteString(part, content)
	require.NoError(t, err)
	require.NoError(t, mpw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mpw.FormDataContentType())
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/healthz", nil), "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	down := NewServer(testConfig(), env.campaigns, env.invoices, env.uploads,
		func(context.Context) error { return errors.New("connection refused") })
	defer down.Shutdown(context.Background())
	rec = httptest.NewRecorder()
	down.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAPIRequiresIdentity(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/invoices", nil), "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, env.invoices.calls)
}

func TestCreateCampaign(t *testing.T) {
	env := newTestEnv(t)
	req := multipartRequest(t, "/api/campaigns", "leads.csv", "text/csv", "email\na@x.io\n",
		map[string]string{"name": "Spring", "description": "Q2 leads"})

	rec := env.do(req, "u-1", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "Campaign created successfully", body["message"])
	campaign := body["campaign"].(map[string]any)
	assert.Equal(t, "Spring", campaign["name"])
	assert.NotContains(t, campaign, "data")

	assert.Equal(t, "u-1", env.campaigns.owner)
	assert.Equal(t, "leads.csv", env.campaigns.input.FileName)
	assert.Equal(t, "Q2 leads", env.campaigns.input.Description)
	assert.Equal(t, "email\na@x.io\n", env.campaigns.body)
	assert.Zero(t, env.uploads.Active())
}

func TestCreateCampaign_UploadRules(t *testing.T) {
	tests := []struct {
		name     string
		req      func(t *testing.T) *http.Request
		wantCode int
		wantErr  string
	}{
		{
			name: "wrong extension",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/campaigns", "notes.txt", "text/plain", "x", map[string]string{"name": "n"})
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "FILE006",
		},
		{
			name: "wrong content type",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/campaigns", "leads.csv", "image/png", "x", map[string]string{"name": "n"})
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "FILE006",
		},
		{
			name: "no file",
			req: func(t *testing.T) *http.Request {
				return jsonRequest(http.MethodPost, "/api/campaigns", `{"name":"n"}`)
			},
			wantCode: http.StatusBadRequest,
			wantErr:  "FILE004",
		},
		{
			name: "too large",
			req: func(t *testing.T) *http.Request {
				return multipartRequest(t, "/api/campaigns", "big.csv", "text/csv", strings.Repeat("a", 2<<20), nil)
			},
			wantCode: http.StatusRequestEntityTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(tt.req(t), "u-1", "")
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantErr != "" {
				assert.Equal(t, tt.wantErr, decodeBody(t, rec)["code"])
			}
			assert.Empty(t, env.campaigns.owner)
		})
	}
}

func TestCreateCampaign_ImportBusy(t *testing.T) {
	env := newTestEnv(t)
	require.True(t, env.uploads.TryAcquire())
	defer env.uploads.Release()

	req := multipartRequest(t, "/api/campaigns", "leads.csv", "text/csv", "a\n1\n", map[string]string{"name": "n"})
	rec := env.do(req, "u-1", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "UPL002", decodeBody(t, rec)["code"])
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestListCampaigns(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/campaigns?page=2&limit=5", nil), "u-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Len(t, body["campaigns"], 1)
	assert.EqualValues(t, 2, body["currentPage"])
	assert.EqualValues(t, 3, body["totalPages"])
	assert.EqualValues(t, 11, body["total"])
	assert.Equal(t, core.Page{Number: 2, Limit: 5}, env.campaigns.page)
}

func TestGetCampaign_Errors(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/campaigns/not-a-uuid", nil), "u-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	env.campaigns.err = &core.NotFoundError{Resource: "campaign", ID: "x"}
	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/campaigns/"+uuid.NewString(), nil), "u-1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "RES001", decodeBody(t, rec)["code"])
}

func TestUpdateAndDeleteCampaign(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.NewString()

	rec := env.do(jsonRequest(http.MethodPut, "/api/campaigns/"+id, `{"name":"Renamed"}`), "u-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Renamed", decodeBody(t, rec)["name"])

	rec = env.do(jsonRequest(http.MethodPut, "/api/campaigns/"+id, `{"name":`), "u-1", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(httptest.NewRequest(http.MethodDelete, "/api/campaigns/"+id, nil), "u-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Campaign deleted successfully", decodeBody(t, rec)["message"])
}

func TestCreateInvoice(t *testing.T) {
	env := newTestEnv(t)
	body := `{"items":[{"description":"Widget","quantity":3,"price":"2.50"}],"dueDate":"2025-04-01","notes":"net 30"}`

	rec := env.do(jsonRequest(http.MethodPost, "/api/invoices", body), "u-1", "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	in := env.invoices.input
	require.Len(t, in.Items, 1)
	assert.Equal(t, "Widget", in.Items[0].Description)
	assert.Equal(t, 3, in.Items[0].Quantity)
	assert.True(t, decimal.RequireFromString("2.5").Equal(in.Items[0].Price))
	assert.Equal(t, time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC), in.DueDate)
	assert.Equal(t, "net 30", in.Notes)
	assert.Equal(t, "u-1", env.invoices.owner)
}

func TestCreateInvoice_SchemaViolations(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{"missing due date", `{"items":[{"description":"a","quantity":1,"price":1}]}`, "body"},
		{"no items", `{"items":[],"dueDate":"2025-04-01"}`, "items"},
		{"zero quantity", `{"items":[{"description":"a","quantity":0,"price":1}],"dueDate":"2025-04-01"}`, "items.0.quantity"},
		{"fractional quantity", `{"items":[{"description":"a","quantity":1.5,"price":1}],"dueDate":"2025-04-01"}`, "items.0.quantity"},
		{"empty description", `{"items":[{"description":"","quantity":1,"price":1}],"dueDate":"2025-04-01"}`, "items.0.description"},
		{"bad status", `{"items":[{"description":"a","quantity":1,"price":1}],"dueDate":"2025-04-01","status":"void"}`, "status"},
		{"bad due date", `{"items":[{"description":"a","quantity":1,"price":1}],"dueDate":"someday"}`, "dueDate"},
		{"malformed", `{"items":`, "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			rec := env.do(jsonRequest(http.MethodPost, "/api/invoices", tt.body), "u-1", "")
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			var fields []string
			for _, d := range resp.Details {
				fields = append(fields, d.Field)
			}
			assert.Contains(t, fields, tt.wantField)
			assert.Empty(t, env.invoices.calls)
		})
	}
}

func TestInvoiceBody_RefusesStatus(t *testing.T) {
	body := `{"items":[{"description":"a","quantity":1,"price":1}],"dueDate":"2025-01-01","status":"paid"}`
	for _, req := range []*http.Request{
		jsonRequest(http.MethodPost, "/api/invoices", body),
		jsonRequest(http.MethodPut, "/api/invoices/"+uuid.NewString(), body),
	} {
		env := newTestEnv(t)
		rec := env.do(req, "u-1", "")
		require.Equal(t, http.StatusBadRequest, rec.Code, req.Method)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Len(t, resp.Details, 1, req.Method)
		assert.Equal(t, "status", resp.Details[0].Field)
		assert.Empty(t, env.invoices.calls, "a status in the body never reaches the engine")
	}
}

func TestUpdateInvoice_Conflict(t *testing.T) {
	env := newTestEnv(t)
	env.invoices.err = &core.ConflictError{Resource: "invoice", Field: "updated_at"}
	body := `{"items":[{"description":"a","quantity":1,"price":1}],"dueDate":"2025-04-01","updatedAt":"2025-03-01T10:00:00Z"}`

	rec := env.do(jsonRequest(http.MethodPut, "/api/invoices/"+uuid.NewString(), body), "u-1", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
	require.NotNil(t, env.invoices.input.UpdatedAt)
	assert.Equal(t, time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC), env.invoices.input.UpdatedAt.UTC())
}

func TestListInvoices_Filters(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(httptest.NewRequest(http.MethodGet,
		"/api/invoices?status=paid&startDate=2025-01-01&endDate=2025-01-31&page=2&limit=5", nil), "u-1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	f := env.invoices.filter
	assert.Equal(t, core.InvoicePaid, f.Status)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), f.Start)
	assert.Equal(t, time.Date(2025, 1, 31, 23, 59, 59, 999999000, time.UTC), f.End)
	assert.Equal(t, core.Page{Number: 2, Limit: 5}, f.Page)

	body := decodeBody(t, rec)
	assert.Contains(t, body, "invoices")
	assert.EqualValues(t, 2, body["currentPage"])
}

func TestListInvoices_BadQuery(t *testing.T) {
	env := newTestEnv(t)
	for _, q := range []string{"status=void", "startDate=nope", "startDate=2025-02-01&endDate=2025-01-01"} {
		rec := env.do(httptest.NewRequest(http.MethodGet, "/api/invoices?"+q, nil), "u-1", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
	assert.Empty(t, env.invoices.calls)
}

func TestSetInvoiceStatus_ByRole(t *testing.T) {
	env := newTestEnv(t)
	path := "/api/invoices/" + uuid.NewString() + "/status"

	rec := env.do(jsonRequest(http.MethodPatch, path, `{"status":"paid"}`), "u-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(jsonRequest(http.MethodPatch, path, `{"status":"overdue"}`), "admin-1", "admin")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []string{"set-status", "correct-status"}, env.invoices.calls)
	assert.Equal(t, "overdue", env.invoices.target)
}

func TestGetAndDeleteInvoice(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.NewString()

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/invoices/"+id, nil), "u-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, decodeBody(t, rec)["id"])

	rec = env.do(httptest.NewRequest(http.MethodDelete, "/api/invoices/"+id, nil), "u-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Invoice deleted successfully", decodeBody(t, rec)["message"])
}

func TestAdminRoutesRequireAdmin(t *testing.T) {
	env := newTestEnv(t)
	for _, req := range []*http.Request{
		httptest.NewRequest(http.MethodGet, "/api/admin/campaigns/pending", nil),
		httptest.NewRequest(http.MethodGet, "/api/admin/campaigns/download", nil),
		jsonRequest(http.MethodPost, "/api/admin/campaigns/bulk-approve", `{"campaignIds":[]}`),
		multipartRequest(t, "/api/admin/invoices/upload", "inv.csv", "text/csv", "desc\n", nil),
	} {
		rec := env.do(req, "u-1", "user")
		assert.Equal(t, http.StatusForbidden, rec.Code, req.URL.Path)
	}
	assert.Empty(t, env.invoices.calls)
}

func TestAdminCampaignReview(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/admin/campaigns/pending", nil), "a-1", "admin")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody(t, rec)["campaigns"], 1)

	rec = env.do(jsonRequest(http.MethodPut, "/api/admin/campaigns/"+uuid.NewString()+"/review",
		`{"status":"rejected","reason":"duplicate list"}`), "a-1", "admin")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "rejected", body["status"])
	assert.Equal(t, "duplicate list", body["rejectionReason"])
}

func TestAdminBulkApprove(t *testing.T) {
	env := newTestEnv(t)
	a, b := uuid.New(), uuid.New()

	rec := env.do(jsonRequest(http.MethodPost, "/api/admin/campaigns/bulk-approve",
		`{"campaignIds":["`+a.String()+`","`+b.String()+`"]}`), "a-1", "admin")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 2, decodeBody(t, rec)["approved"])
	assert.Equal(t, []uuid.UUID{a, b}, env.campaigns.approveIDs)

	rec = env.do(jsonRequest(http.MethodPost, "/api/admin/campaigns/bulk-approve",
		`{"campaignIds":["nope"]}`), "a-1", "admin")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminDownloadCampaigns(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/admin/campaigns/download", nil), "a-1", "admin")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=campaigns.csv", rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "Campaign ID,Name\n", rec.Body.String())

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/admin/campaigns/download?format=xlsx", nil), "a-1", "admin")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, campaigns.ExportXLSX, env.campaigns.format)
	assert.Equal(t, "attachment; filename=campaigns.xlsx", rec.Header().Get("Content-Disposition"))

	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/admin/campaigns/download?format=pdf", nil), "a-1", "admin")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestExportCampaign(t *testing.T) {
	env := newTestEnv(t)
	id := uuid.New()

	rec := env.do(httptest.NewRequest(http.MethodGet, "/api/campaigns/"+id.String()+"/export", nil), "u-1", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "u-1", env.campaigns.owner)
	assert.Equal(t, "attachment; filename=campaign-"+id.String()+".csv", rec.Header().Get("Content-Disposition"))
	assert.Equal(t, "zeta,alpha,mid\n1,2,3\n", rec.Body.String())

	env.campaigns.err = &core.NotFoundError{Resource: "campaign", ID: id.String()}
	rec = env.do(httptest.NewRequest(http.MethodGet, "/api/campaigns/"+id.String()+"/export?format=xlsx", nil), "u-2", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminUploadInvoices(t *testing.T) {
	env := newTestEnv(t)
	csv := "desc,qty,price,due_date\nWidget,3,2.50,2025-04-01\nGadget,x,1,2025-04-01\n"

	rec := env.do(multipartRequest(t, "/api/admin/invoices/upload", "inv.csv", "text/csv", csv,
		map[string]string{"userId": "customer-7"}), "a-1", "admin")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "Invoice upload completed", body["message"])
	assert.EqualValues(t, 1, body["success"])
	assert.EqualValues(t, 1, body["errors"])
	details := body["errorDetails"].([]any)
	require.Len(t, details, 1)
	assert.EqualValues(t, 3, details[0].(map[string]any)["row"])

	assert.Equal(t, "customer-7", env.invoices.owner)
	assert.Equal(t, "inv.csv", env.invoices.fileName)

	rec = env.do(multipartRequest(t, "/api/admin/invoices/upload", "inv.csv", "text/csv", csv, nil), "a-1", "admin")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a-1", env.invoices.owner)
}

func TestAdminUploadInvoices_DecodeError(t *testing.T) {
	env := newTestEnv(t)
	env.invoices.err = &core.DecodeError{Row: 2, Err: errors.New("bare quote")}

	rec := env.do(multipartRequest(t, "/api/admin/invoices/upload", "inv.csv", "text/csv", "x", nil), "a-1", "admin")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "FILE002", decodeBody(t, rec)["code"])
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{&core.ValidationError{Field: "x", Message: "bad"}, http.StatusBadRequest},
		{core.ValidationErrors{{Field: "x", Message: "bad"}}, http.StatusBadRequest},
		{&core.DecodeError{Err: errors.New("eof")}, http.StatusBadRequest},
		{&core.NotFoundError{Resource: "invoice"}, http.StatusNotFound},
		{&core.ConflictError{Resource: "invoice"}, http.StatusConflict},
		{ingest.ErrTooManyImports, http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{&core.StorageError{Op: "insert", Err: errors.New("boom")}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), "%T", tt.err)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(2, time.Minute)
	defer rl.stop()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.allow("1.1.1.1"))
	assert.True(t, rl.allow("1.1.1.1"))
	assert.False(t, rl.allow("1.1.1.1"))
	assert.True(t, rl.allow("2.2.2.2"))

	now = now.Add(2 * time.Minute)
	assert.True(t, rl.allow("1.1.1.1"))

	now = now.Add(150 * time.Second)
	rl.evict()
	rl.mu.Lock()
	assert.Empty(t, rl.windows, "idle clients are forgotten")
	rl.mu.Unlock()
}

func TestRateLimitedServer(t *testing.T) {
	cfg := testConfig()
	cfg.Rate = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, UploadLimit: 1}
	srv := NewServer(cfg, &fakeCampaigns{}, &fakeInvoices{}, ingest.NewLimiter(1, time.Second), nil)
	defer srv.Shutdown(context.Background())

	send := func() int {
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		return rec.Code
	}
	assert.Equal(t, http.StatusOK, send())
	assert.Equal(t, http.StatusTooManyRequests, send())
}

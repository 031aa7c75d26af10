package web

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/JonMunkholm/invoicedesk/internal/campaigns"
	"github.com/JonMunkholm/invoicedesk/internal/core"
	"github.com/JonMunkholm/invoicedesk/internal/ingest"
	"github.com/JonMunkholm/invoicedesk/internal/logging"
)

type reviewRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type bulkApproveRequest struct {
	CampaignIDs []string `json:"campaignIds"`
}

type bulkApproveResponse struct {
	Message  string `json:"message"`
	Approved int64  `json:"approved"`
}

type invoiceImportResponse struct {
	Message string `json:"message"`
	ingest.Summary
}

func (s *Server) handleListPending(w http.ResponseWriter, r *http.Request) {
	page, err := s.campaigns.ListPending(r.Context(), parsePage(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, newCampaignList(page))
}

func (s *Server) handleReviewCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req reviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	c, err := s.campaigns.Review(r.Context(), id, req.Status, req.Reason)
	if err != nil {
		respondError(w, r, err)
		return
	}
	logging.FromContext(r.Context()).Info("campaign review recorded", "campaign_id", id, "status", c.Status)
	writeJSON(w, c)
}

func (s *Server) handleBulkApprove(w http.ResponseWriter, r *http.Request) {
	var req bulkApproveRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	ids := make([]uuid.UUID, 0, len(req.CampaignIDs))
	for i, raw := range req.CampaignIDs {
		id, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			respondError(w, r, &core.ValidationError{
				Field:   "campaignIds." + strconv.Itoa(i),
				Value:   raw,
				Message: "invalid value: not a valid id",
			})
			return
		}
		ids = append(ids, id)
	}

	n, err := s.campaigns.BulkApprove(r.Context(), ids)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, bulkApproveResponse{Message: "Campaigns approved successfully", Approved: n})
}

// handleDownloadCampaigns exports every campaign as CSV (default) or XLSX.
// The export is buffered so a failure can still be reported as JSON.
func (s *Server) handleDownloadCampaigns(w http.ResponseWriter, r *http.Request) {
	format, err := campaigns.ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := s.campaigns.Export(r.Context(), &buf, format); err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", "attachment; filename="+format.FileName())
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = buf.WriteTo(w)
}

// handleUploadInvoices imports invoice rows one by one. Rows are owned by the
// userId form field, or by the admin when it is absent.
func (s *Server) handleUploadInvoices(w http.ResponseWriter, r *http.Request) {
	up, err := s.receiveUpload(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer up.Close()

	owner := strings.TrimSpace(r.FormValue("userId"))
	if owner == "" {
		owner = actor(r).UserID
	}

	var report *ingest.Report[*core.Invoice]
	err = s.runImport(r.Context(), func(ctx context.Context) error {
		var err error
		report, err = s.invoices.ImportInvoices(ctx, owner, up.header.Filename, up.file)
		return err
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	writeJSON(w, invoiceImportResponse{
		Message: "Invoice upload completed",
		Summary: report.Summary(),
	})
}

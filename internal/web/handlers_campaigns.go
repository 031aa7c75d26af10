package web

import (
	"bytes"
	"context"
	"net/http"
	"strconv"

	"github.com/JonMunkholm/invoicedesk/internal/campaigns"
	"github.com/JonMunkholm/invoicedesk/internal/core"
)

type campaignListResponse struct {
	Campaigns   []core.Campaign `json:"campaigns"`
	CurrentPage int             `json:"currentPage"`
	TotalPages  int             `json:"totalPages"`
	Total       int             `json:"total"`
}

func newCampaignList(p core.PageResult[core.Campaign]) campaignListResponse {
	return campaignListResponse{
		Campaigns:   p.Items,
		CurrentPage: p.CurrentPage,
		TotalPages:  p.TotalPages,
		Total:       p.Total,
	}
}

type campaignCreatedResponse struct {
	Message  string         `json:"message"`
	Campaign *core.Campaign `json:"campaign"`
}

// handleCreateCampaign imports an uploaded file as one new pending campaign.
func (s *Server) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	up, err := s.receiveUpload(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	defer up.Close()

	in := campaigns.ImportInput{
		Name:        r.FormValue("name"),
		Description: r.FormValue("description"),
		FileName:    up.header.Filename,
	}

	var created *core.Campaign
	err = s.runImport(r.Context(), func(ctx context.Context) error {
		var err error
		created, err = s.campaigns.Import(ctx, actor(r).UserID, in, up.file)
		return err
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	// The dataset can be large; the caller fetches it with GET when needed.
	out := *created
	out.Dataset = nil
	writeJSONStatus(w, http.StatusCreated, campaignCreatedResponse{
		Message:  "Campaign created successfully",
		Campaign: &out,
	})
}

func (s *Server) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	page, err := s.campaigns.List(r.Context(), actor(r).UserID, parsePage(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, newCampaignList(page))
}

func (s *Server) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	c, err := s.campaigns.Get(r.Context(), actor(r).UserID, id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, c)
}

// handleExportCampaign downloads one campaign's records as CSV (default) or
// XLSX, columns in upload order.
func (s *Server) handleExportCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	format, err := campaigns.ParseExportFormat(r.URL.Query().Get("format"))
	if err != nil {
		respondError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := s.campaigns.ExportDataset(r.Context(), &buf, actor(r).UserID, id, format); err != nil {
		respondError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", "attachment; filename="+format.DatasetFileName(id))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleUpdateCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var u campaigns.UpdateFields
	if err := decodeJSON(w, r, &u); err != nil {
		respondError(w, r, err)
		return
	}

	c, err := s.campaigns.Update(r.Context(), actor(r).UserID, id, u)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, c)
}

func (s *Server) handleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.campaigns.Delete(r.Context(), actor(r).UserID, id); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, messageResponse{Message: "Campaign deleted successfully"})
}

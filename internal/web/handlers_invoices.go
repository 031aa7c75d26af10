package web

import (
	"net/http"
	"strings"
	"time"

	"github.com/JonMunkholm/invoicedesk/internal/billing"
	"github.com/JonMunkholm/invoicedesk/internal/core"
)

type invoiceListResponse struct {
	Invoices    []core.Invoice `json:"invoices"`
	CurrentPage int            `json:"currentPage"`
	TotalPages  int            `json:"totalPages"`
	Total       int            `json:"total"`
}

// invoiceRequest is the JSON body of create and update. The due date is
// taken as text so the same layouts as file imports are accepted. Status is
// rejected by the schema; it changes through PATCH .../status only.
type invoiceRequest struct {
	Items         []billing.ItemInput `json:"items"`
	DueDate       string              `json:"dueDate"`
	Notes         string              `json:"notes"`
	PanCardNumber string              `json:"panCardNumber"`
	UpdatedAt     *time.Time          `json:"updatedAt"`
}

type statusRequest struct {
	Status string `json:"status"`
}

// decodeInvoice validates the body against the invoice schema and converts it.
func (s *Server) decodeInvoice(w http.ResponseWriter, r *http.Request) (billing.InvoiceInput, error) {
	body, err := readBody(w, r)
	if err != nil {
		return billing.InvoiceInput{}, err
	}
	if err := s.schema.Validate(body); err != nil {
		return billing.InvoiceInput{}, err
	}

	var req invoiceRequest
	if err := jsonUnmarshal(body, &req); err != nil {
		return billing.InvoiceInput{}, err
	}
	due, err := core.ParseDate("dueDate", req.DueDate)
	if err != nil {
		return billing.InvoiceInput{}, err
	}
	return billing.InvoiceInput{
		Items:         req.Items,
		DueDate:       due,
		Notes:         req.Notes,
		PanCardNumber: req.PanCardNumber,
		UpdatedAt:     req.UpdatedAt,
	}, nil
}

func (s *Server) handleCreateInvoice(w http.ResponseWriter, r *http.Request) {
	in, err := s.decodeInvoice(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	inv, err := s.invoices.Create(r.Context(), actor(r).UserID, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, inv)
}

func (s *Server) handleUpdateInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	in, err := s.decodeInvoice(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	inv, err := s.invoices.Update(r.Context(), actor(r).UserID, id, in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, inv)
}

func (s *Server) handleGetInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	inv, err := s.invoices.Get(r.Context(), actor(r).UserID, id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, inv)
}

// handleListInvoices lists the caller's invoices after the overdue sweep.
// Query: page, limit, status, startDate, endDate.
func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	f := core.InvoiceFilter{Page: parsePage(r)}

	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		st, err := core.ParseInvoiceStatus(raw)
		if err != nil {
			respondError(w, r, err)
			return
		}
		f.Status = st
	}

	start, end, err := dateRange(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	f.Start, f.End = start, end

	page, err := s.invoices.List(r.Context(), actor(r).UserID, f)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, invoiceListResponse{
		Invoices:    page.Items,
		CurrentPage: page.CurrentPage,
		TotalPages:  page.TotalPages,
		Total:       page.Total,
	})
}

// handleSetInvoiceStatus marks an invoice paid or cancelled. Admins may set
// any status to correct mistakes.
func (s *Server) handleSetInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req statusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}

	a := actor(r)
	set := s.invoices.SetStatus
	if a.IsAdmin() {
		set = s.invoices.CorrectStatus
	}
	inv, err := set(r.Context(), a.UserID, id, req.Status)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, inv)
}

func (s *Server) handleDeleteInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.invoices.Delete(r.Context(), actor(r).UserID, id); err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, messageResponse{Message: "Invoice deleted successfully"})
}

// Package web provides the HTTP adapter for campaigns and invoices.
package web

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"

	"github.com/JonMunkholm/invoicedesk/internal/billing"
	"github.com/JonMunkholm/invoicedesk/internal/campaigns"
	"github.com/JonMunkholm/invoicedesk/internal/config"
	"github.com/JonMunkholm/invoicedesk/internal/core"
	"github.com/JonMunkholm/invoicedesk/internal/ingest"
	mw "github.com/JonMunkholm/invoicedesk/internal/web/middleware"
)

// CampaignService is the campaign surface the handlers use.
type CampaignService interface {
	Import(ctx context.Context, owner string, in campaigns.ImportInput, body io.Reader) (*core.Campaign, error)
	Get(ctx context.Context, owner string, id uuid.UUID) (*core.Campaign, error)
	List(ctx context.Context, owner string, page core.Page) (core.PageResult[core.Campaign], error)
	Update(ctx context.Context, owner string, id uuid.UUID, u campaigns.UpdateFields) (*core.Campaign, error)
	Delete(ctx context.Context, owner string, id uuid.UUID) error
	ListPending(ctx context.Context, page core.Page) (core.PageResult[core.Campaign], error)
	Review(ctx context.Context, id uuid.UUID, status, reason string) (*core.Campaign, error)
	BulkApprove(ctx context.Context, ids []uuid.UUID) (int64, error)
	Export(ctx context.Context, w io.Writer, format campaigns.ExportFormat) error
	ExportDataset(ctx context.Context, w io.Writer, owner string, id uuid.UUID, format campaigns.ExportFormat) error
}

// InvoiceService is the invoice surface the handlers use.
type InvoiceService interface {
	Create(ctx context.Context, owner string, in billing.InvoiceInput) (*core.Invoice, error)
	Update(ctx context.Context, owner string, id uuid.UUID, in billing.InvoiceInput) (*core.Invoice, error)
	Get(ctx context.Context, owner string, id uuid.UUID) (*core.Invoice, error)
	List(ctx context.Context, owner string, f core.InvoiceFilter) (core.PageResult[core.Invoice], error)
	Delete(ctx context.Context, owner string, id uuid.UUID) error
	SetStatus(ctx context.Context, owner string, id uuid.UUID, target string) (*core.Invoice, error)
	CorrectStatus(ctx context.Context, owner string, id uuid.UUID, target string) (*core.Invoice, error)
	ImportInvoices(ctx context.Context, owner, fileName string, body io.Reader) (*ingest.Report[*core.Invoice], error)
}

// HealthFunc reports whether the backing store is reachable.
type HealthFunc func(ctx context.Context) error

// Server is the HTTP server for the API.
type Server struct {
	cfg       *config.Config
	campaigns CampaignService
	invoices  InvoiceService
	uploads   *ingest.Limiter
	health    HealthFunc
	schema    *invoiceSchema
	limiters  []*rateLimiter
	router    *chi.Mux
	server    *http.Server
}

// NewServer creates a Server and registers every route.
func NewServer(cfg *config.Config, cs CampaignService, is InvoiceService, uploads *ingest.Limiter, health HealthFunc) *Server {
	s := &Server{
		cfg:       cfg,
		campaigns: cs,
		invoices:  is,
		uploads:   uploads,
		health:    health,
		schema:    mustInvoiceSchema(),
		router:    chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(mw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(mw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Security.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", mw.HeaderAPIKey, mw.HeaderUserID, mw.HeaderUserRole},
		ExposedHeaders: []string{"Content-Disposition", "Retry-After"},
		MaxAge:         300,
	}))

	if s.cfg.Rate.Enabled {
		s.router.Use(s.newRateLimiter(s.cfg.Rate.RequestsPerMinute).middleware)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)

	uploadLimit := func(next http.Handler) http.Handler { return next }
	if s.cfg.Rate.Enabled {
		uploadLimit = s.newRateLimiter(s.cfg.Rate.UploadLimit).middleware
	}

	// Uploads are bounded by the import timeout instead of the request timeout.
	timeout := middleware.Timeout(s.cfg.Server.RequestTimeout)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(mw.APIKeyAuth(&s.cfg.Security))
		r.Use(mw.Identity)

		r.With(uploadLimit).Post("/campaigns", s.handleCreateCampaign)
		r.With(mw.RequireAdmin, uploadLimit).Post("/admin/invoices/upload", s.handleUploadInvoices)

		r.Group(func(r chi.Router) {
			r.Use(timeout)

			r.Get("/campaigns", s.handleListCampaigns)
			r.Get("/campaigns/{id}", s.handleGetCampaign)
			r.Get("/campaigns/{id}/export", s.handleExportCampaign)
			r.Put("/campaigns/{id}", s.handleUpdateCampaign)
			r.Delete("/campaigns/{id}", s.handleDeleteCampaign)

			r.Get("/invoices", s.handleListInvoices)
			r.Post("/invoices", s.handleCreateInvoice)
			r.Get("/invoices/{id}", s.handleGetInvoice)
			r.Put("/invoices/{id}", s.handleUpdateInvoice)
			r.Patch("/invoices/{id}/status", s.handleSetInvoiceStatus)
			r.Delete("/invoices/{id}", s.handleDeleteInvoice)

			r.Group(func(r chi.Router) {
				r.Use(mw.RequireAdmin)
				r.Get("/admin/campaigns/pending", s.handleListPending)
				r.Put("/admin/campaigns/{id}/review", s.handleReviewCampaign)
				r.Post("/admin/campaigns/bulk-approve", s.handleBulkApprove)
				r.Get("/admin/campaigns/download", s.handleDownloadCampaigns)
			})
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	slog.Info("server listening", "addr", s.server.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server and its rate limiter sweeps.
func (s *Server) Shutdown(ctx context.Context) error {
	for _, rl := range s.limiters {
		rl.stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) newRateLimiter(perMinute int) *rateLimiter {
	rl := newRateLimiter(perMinute, time.Minute)
	s.limiters = append(s.limiters, rl)
	return rl
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{"status": "ok", "uploads": s.uploads.Status()}
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			slog.Warn("health check failed", "error", err)
			status["status"] = "unavailable"
			writeJSONStatus(w, http.StatusServiceUnavailable, status)
			return
		}
	}
	writeJSON(w, status)
}

// securityHeaders adds security headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

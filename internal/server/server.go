package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/enerhogar/energia-tracker/internal/common"
	"github.com/enerhogar/energia-tracker/internal/diagnostics"
	"github.com/enerhogar/energia-tracker/internal/entity"
	"github.com/enerhogar/energia-tracker/internal/pipeline"
	"github.com/enerhogar/energia-tracker/internal/repository"
)

// Ingestor runs one upload through the processing pipeline.
type Ingestor interface {
	Run(ctx context.Context, up pipeline.Upload) (pipeline.Result, error)
}

// Exporter produces XLSX bytes for a user's consumption history.
type Exporter interface {
	ExportConsumptionXLSX(ctx context.Context, userID int64, from, to *time.Time) ([]byte, error)
}

// DiagnosticsReader exposes stored soft-failure texts for review.
type DiagnosticsReader interface {
	GetRawText(ctx context.Context, uploadID uuid.UUID) (string, error)
	ListRecent(ctx context.Context, limit int) ([]diagnostics.Entry, error)
}

// Server wires the HTTP API over the pipeline and the repositories.
type Server struct {
	ingestor    Ingestor
	invoices    repository.InvoiceRepository
	consumption repository.ConsumptionRepository
	support     repository.SupportRepository
	users       repository.UserRepository
	exporter    Exporter
	diag        DiagnosticsReader
	health      func(ctx context.Context) error

	maxUploadBytes int64
	logger         *slog.Logger
}

type Deps struct {
	Ingestor    Ingestor
	Invoices    repository.InvoiceRepository
	Consumption repository.ConsumptionRepository
	Support     repository.SupportRepository
	Users       repository.UserRepository
	Exporter    Exporter
	Diagnostics DiagnosticsReader
	Health      func(ctx context.Context) error

	MaxUploadBytes int64
}

func New(d Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if d.MaxUploadBytes <= 0 {
		d.MaxUploadBytes = 25 << 20
	}
	return &Server{
		ingestor:       d.Ingestor,
		invoices:       d.Invoices,
		consumption:    d.Consumption,
		support:        d.Support,
		users:          d.Users,
		exporter:       d.Exporter,
		diag:           d.Diagnostics,
		health:         d.Health,
		maxUploadBytes: d.MaxUploadBytes,
		logger:         logger,
	}
}

// Router builds the chi router with all API routes mounted.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/invoices", s.handleUploadInvoice)
		r.Get("/invoices/user/{userID}", s.handleListInvoices)

		r.Route("/consumption", func(r chi.Router) {
			r.Get("/", s.handleListConsumption)
			r.Post("/", s.handleCreateConsumption)
			r.Get("/user/{userID}", s.handleListUserConsumption)
			r.Get("/user/{userID}/export", s.handleExportConsumption)
			r.Get("/latest/{userID}", s.handleLatestConsumption)
			r.Get("/{id}", s.handleGetConsumption)
			r.Put("/{id}", s.handleUpdateConsumption)
			r.Delete("/{id}", s.handleDeleteConsumption)
		})

		r.Route("/support", func(r chi.Router) {
			r.Post("/", s.handleCreateTicket)
			r.Get("/user/{userID}", s.handleListTickets)
			r.Put("/{id}/status", s.handleUpdateTicketStatus)
			r.Delete("/{id}", s.handleDeleteTicket)
		})

		r.Route("/diagnostics", func(r chi.Router) {
			r.Get("/", s.handleListDiagnostics)
			r.Get("/{uploadID}", s.handleGetDiagnostic)
		})
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError translates the error taxonomy into HTTP status codes and
// user-facing messages. Internal detail never leaves the process.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrDuplicateInvoice):
		s.writeJSON(w, http.StatusConflict, errorBody{Error: "this invoice was already submitted"})
	case errors.Is(err, common.ErrImageDecode), errors.Is(err, common.ErrRender):
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "unsupported or corrupt file"})
	case errors.Is(err, common.ErrRecognition):
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: "could not read document"})
	case errors.Is(err, common.ErrValidation):
		s.writeJSON(w, http.StatusBadRequest, errorBody{Error: userMessage(err, "invalid request")})
	case errors.Is(err, common.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	default:
		s.logger.Error("request failed", "error", err)
		s.writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

// userMessage surfaces AppError messages, which are written for users;
// bare sentinels fall back to the generic text.
func userMessage(err error, fallback string) string {
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return fallback
}

func ticketStatusValid(status string) bool {
	switch status {
	case entity.TicketOpen, entity.TicketInProgress, entity.TicketResolved:
		return true
	}
	return false
}

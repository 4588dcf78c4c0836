package server

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/enerhogar/energia-tracker/internal/common"
	"github.com/enerhogar/energia-tracker/internal/repository"
)

type consumptionCreateRequest struct {
	UserID         int64   `json:"user_id"`
	RecordedAt     string  `json:"recorded_at"`
	ConsumptionKWH float64 `json:"consumption_kwh"`
	Cost           *int64  `json:"cost"`
}

type consumptionUpdateRequest struct {
	RecordedAt     *string  `json:"recorded_at"`
	ConsumptionKWH *float64 `json:"consumption_kwh"`
	Cost           *int64   `json:"cost"`
}

// parseDay accepts a date-only value or a full RFC 3339 timestamp.
func parseDay(s string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Time{}, common.NewAppError("BAD_DATE",
		fmt.Sprintf("invalid date %q, expected YYYY-MM-DD", s), common.ErrValidation)
}

func (s *Server) handleCreateConsumption(w http.ResponseWriter, r *http.Request) {
	var req consumptionCreateRequest
	if err := decodeBody(r.Body, schemaConsumptionCreate, &req); err != nil {
		s.writeError(w, err)
		return
	}

	recordedAt, err := parseDay(req.RecordedAt)
	if err != nil {
		s.writeError(w, err)
		return
	}

	exists, err := s.users.Exists(r.Context(), req.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !exists {
		s.writeError(w, common.NewAppError("NO_USER", "unknown user", common.ErrValidation))
		return
	}

	entry, err := s.consumption.Create(r.Context(), req.UserID, recordedAt, req.ConsumptionKWH, req.Cost)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleListConsumption(w http.ResponseWriter, r *http.Request) {
	entries, err := s.consumption.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleGetConsumption(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, common.NewAppError("BAD_ID", "invalid entry id", common.ErrValidation))
		return
	}

	entry, err := s.consumption.GetByID(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleListUserConsumption(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		s.writeError(w, common.NewAppError("BAD_USER", "invalid user id", common.ErrValidation))
		return
	}

	entries, err := s.consumption.ListByUser(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

// handleLatestConsumption returns the user's entries from the last month,
// the window the dashboard charts.
func (s *Server) handleLatestConsumption(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		s.writeError(w, common.NewAppError("BAD_USER", "invalid user id", common.ErrValidation))
		return
	}

	entries, err := s.consumption.LastMonth(r.Context(), userID, time.Now().UTC())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleExportConsumption(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		s.writeError(w, common.NewAppError("BAD_USER", "invalid user id", common.ErrValidation))
		return
	}

	var from, to *time.Time
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := parseDay(v)
		if err != nil {
			s.writeError(w, err)
			return
		}
		from = &t
	}
	if v := r.URL.Query().Get("to"); v != "" {
		t, err := parseDay(v)
		if err != nil {
			s.writeError(w, err)
			return
		}
		to = &t
	}

	data, err := s.exporter.ExportConsumptionXLSX(r.Context(), userID, from, to)
	if err != nil {
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=consumption-%d.xlsx", userID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) handleUpdateConsumption(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, common.NewAppError("BAD_ID", "invalid entry id", common.ErrValidation))
		return
	}

	var req consumptionUpdateRequest
	if err := decodeBody(r.Body, schemaConsumptionUpdate, &req); err != nil {
		s.writeError(w, err)
		return
	}

	params := repository.UpdateConsumptionParams{
		ConsumptionKWH: req.ConsumptionKWH,
		Cost:           req.Cost,
	}
	if req.RecordedAt != nil {
		t, err := parseDay(*req.RecordedAt)
		if err != nil {
			s.writeError(w, err)
			return
		}
		params.RecordedAt = &t
	}

	entry, err := s.consumption.Update(r.Context(), id, params)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleDeleteConsumption(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, common.NewAppError("BAD_ID", "invalid entry id", common.ErrValidation))
		return
	}

	if err := s.consumption.Delete(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

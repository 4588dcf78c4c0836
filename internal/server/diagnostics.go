package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/enerhogar/energia-tracker/internal/common"
)

func (s *Server) handleListDiagnostics(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, common.NewAppError("BAD_LIMIT", "invalid limit", common.ErrValidation))
			return
		}
		limit = n
	}

	entries, err := s.diag.ListRecent(r.Context(), limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleGetDiagnostic(w http.ResponseWriter, r *http.Request) {
	uploadID, err := uuid.Parse(chi.URLParam(r, "uploadID"))
	if err != nil {
		s.writeError(w, common.NewAppError("BAD_ID", "invalid upload id", common.ErrValidation))
		return
	}

	text, err := s.diag.GetRawText(r.Context(), uploadID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"upload_id": uploadID.String(),
		"text":      text,
	})
}

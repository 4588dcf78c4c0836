package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/enerhogar/energia-tracker/internal/common"
)

type ticketCreateRequest struct {
	UserID  int64  `json:"user_id"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

type ticketStatusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleCreateTicket(w http.ResponseWriter, r *http.Request) {
	var req ticketCreateRequest
	if err := decodeBody(r.Body, schemaTicketCreate, &req); err != nil {
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

	ticket, err := s.support.Create(r.Context(), req.UserID, req.Subject, req.Message)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, ticket)
}

func (s *Server) handleListTickets(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		s.writeError(w, common.NewAppError("BAD_USER", "invalid user id", common.ErrValidation))
		return
	}

	tickets, err := s.support.ListByUser(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tickets)
}

func (s *Server) handleUpdateTicketStatus(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, common.NewAppError("BAD_ID", "invalid ticket id", common.ErrValidation))
		return
	}

	var req ticketStatusRequest
	if err := decodeBody(r.Body, schemaTicketStatus, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if !ticketStatusValid(req.Status) {
		s.writeError(w, common.NewAppError("BAD_STATUS", "unknown ticket status", common.ErrValidation))
		return
	}

	ticket, err := s.support.UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ticket)
}

func (s *Server) handleDeleteTicket(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, common.NewAppError("BAD_ID", "invalid ticket id", common.ErrValidation))
		return
	}

	if err := s.support.Delete(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package server

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/enerhogar/energia-tracker/constants"
	"github.com/enerhogar/energia-tracker/internal/common"
	"github.com/enerhogar/energia-tracker/internal/extract"
	"github.com/enerhogar/energia-tracker/internal/pipeline"
)

type uploadResponse struct {
	UploadID  uuid.UUID        `json:"upload_id"`
	Status    string           `json:"status"`
	InvoiceID int64            `json:"invoice_id,omitempty"`
	Invoice   *extract.Invoice `json:"invoice,omitempty"`
	Pages     int              `json:"pages,omitempty"`
	Message   string           `json:"message,omitempty"`
}

// handleUploadInvoice accepts a multipart upload ("file" + "user_id") and
// runs it through the pipeline. Processing continues even if the caller
// disconnects: a half-committed invoice would be worse than a slow response.
func (s *Server) handleUploadInvoice(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		s.writeError(w, common.NewAppError("BAD_UPLOAD", "upload too large or malformed", common.ErrValidation))
		return
	}

	userID, err := strconv.ParseInt(r.FormValue("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		s.writeError(w, common.NewAppError("BAD_USER", "user_id is required", common.ErrValidation))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, common.NewAppError("NO_FILE", "file is required", common.ErrValidation))
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, common.NewAppError("BAD_UPLOAD", "could not read uploaded file", common.ErrValidation))
		return
	}

	exists, err := s.users.Exists(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !exists {
		s.writeError(w, common.NewAppError("NO_USER", "unknown user", common.ErrValidation))
		return
	}

	mediaType := header.Header.Get("Content-Type")
	if mediaType == "" {
		mediaType = http.DetectContentType(content)
	}

	up := pipeline.Upload{
		UserID:    userID,
		Content:   content,
		MediaType: mediaType,
		Filename:  header.Filename,
	}

	// Detach from the request context so the pipeline survives a caller
	// disconnect once the upload is fully in hand.
	res, err := s.ingestor.Run(context.WithoutCancel(r.Context()), up)
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := uploadResponse{
		UploadID: res.UploadID,
		Status:   string(res.Status),
		Pages:    res.Pages,
	}
	if res.Status == constants.StatusSoftFailed {
		resp.Message = "no financial data detected; the document was kept for review"
		s.writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.InvoiceID = res.InvoiceID
	resp.Invoice = res.Invoice
	s.writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListInvoices(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		s.writeError(w, common.NewAppError("BAD_USER", "invalid user id", common.ErrValidation))
		return
	}

	invoices, err := s.invoices.ListByUser(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, invoices)
}

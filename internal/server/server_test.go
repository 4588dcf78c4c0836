package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enerhogar/energia-tracker/constants"
	"github.com/enerhogar/energia-tracker/internal/common"
	"github.com/enerhogar/energia-tracker/internal/diagnostics"
	"github.com/enerhogar/energia-tracker/internal/entity"
	"github.com/enerhogar/energia-tracker/internal/extract"
	"github.com/enerhogar/energia-tracker/internal/pipeline"
	"github.com/enerhogar/energia-tracker/internal/repository"
)

type fakeIngestor struct {
	res pipeline.Result
	err error
	got pipeline.Upload
}

func (f *fakeIngestor) Run(ctx context.Context, up pipeline.Upload) (pipeline.Result, error) {
	f.got = up
	return f.res, f.err
}

type fakeInvoices struct {
	invoices []entity.Invoice
}

func (f *fakeInvoices) CreateInvoice(ctx context.Context, userID int64, inv extract.Invoice) (int64, error) {
	return 0, errors.New("not used")
}

func (f *fakeInvoices) ListByUser(ctx context.Context, userID int64) ([]entity.Invoice, error) {
	return f.invoices, nil
}

type fakeConsumption struct {
	entries []entity.ConsumptionEntry
	created entity.ConsumptionEntry
	deleted []int64
	err     error
}

func (f *fakeConsumption) AddEntry(ctx context.Context, userID int64, recordedAt time.Time, kwh float64, cost int64) error {
	return f.err
}

func (f *fakeConsumption) Create(ctx context.Context, userID int64, recordedAt time.Time, kwh float64, cost *int64) (entity.ConsumptionEntry, error) {
	f.created = entity.ConsumptionEntry{ID: 1, UserID: userID, RecordedAt: recordedAt, ConsumptionKWH: kwh, Cost: cost}
	return f.created, f.err
}

func (f *fakeConsumption) List(ctx context.Context) ([]entity.ConsumptionEntry, error) {
	return nil, f.err
}

func (f *fakeConsumption) ListByUser(ctx context.Context, userID int64) ([]entity.ConsumptionEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []entity.ConsumptionEntry
	for _, e := range f.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeConsumption) GetByID(ctx context.Context, id int64) (entity.ConsumptionEntry, error) {
	for _, e := range f.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return entity.ConsumptionEntry{}, common.ErrNotFound
}

func (f *fakeConsumption) Update(ctx context.Context, id int64, params repository.UpdateConsumptionParams) (entity.ConsumptionEntry, error) {
	if f.err != nil {
		return entity.ConsumptionEntry{}, f.err
	}
	return entity.ConsumptionEntry{ID: id}, nil
}

func (f *fakeConsumption) Delete(ctx context.Context, id int64) error {
	f.deleted = append(f.deleted, id)
	return f.err
}

func (f *fakeConsumption) LastMonth(ctx context.Context, userID int64, now time.Time) ([]entity.ConsumptionEntry, error) {
	return []entity.ConsumptionEntry{{ID: 9, UserID: userID}}, f.err
}

type fakeSupport struct {
	err error
}

func (f *fakeSupport) Create(ctx context.Context, userID int64, subject, message string) (entity.SupportTicket, error) {
	return entity.SupportTicket{ID: 1, UserID: userID, Subject: subject, Message: message, Status: entity.TicketOpen}, f.err
}

func (f *fakeSupport) ListByUser(ctx context.Context, userID int64) ([]entity.SupportTicket, error) {
	return nil, f.err
}

func (f *fakeSupport) UpdateStatus(ctx context.Context, id int64, status string) (entity.SupportTicket, error) {
	if f.err != nil {
		return entity.SupportTicket{}, f.err
	}
	return entity.SupportTicket{ID: id, Status: status}, nil
}

func (f *fakeSupport) Delete(ctx context.Context, id int64) error {
	return f.err
}

type fakeUsers struct {
	known map[int64]bool
}

func (f *fakeUsers) Exists(ctx context.Context, id int64) (bool, error) {
	return f.known[id], nil
}

type fakeExporter struct{}

func (f *fakeExporter) ExportConsumptionXLSX(ctx context.Context, userID int64, from, to *time.Time) ([]byte, error) {
	return []byte("xlsx-bytes"), nil
}

type fakeDiag struct {
	texts map[uuid.UUID]string
}

func (f *fakeDiag) GetRawText(ctx context.Context, uploadID uuid.UUID) (string, error) {
	text, ok := f.texts[uploadID]
	if !ok {
		return "", common.ErrNotFound
	}
	return text, nil
}

func (f *fakeDiag) ListRecent(ctx context.Context, limit int) ([]diagnostics.Entry, error) {
	return nil, nil
}

type fixture struct {
	ingestor    *fakeIngestor
	invoices    *fakeInvoices
	consumption *fakeConsumption
	handler     http.Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ing := &fakeIngestor{}
	inv := &fakeInvoices{}
	cons := &fakeConsumption{}
	srv := New(Deps{
		Ingestor:    ing,
		Invoices:    inv,
		Consumption: cons,
		Support:     &fakeSupport{},
		Users:       &fakeUsers{known: map[int64]bool{7: true}},
		Exporter:    &fakeExporter{},
		Diagnostics: &fakeDiag{texts: map[uuid.UUID]string{}},
		Health:      func(ctx context.Context) error { return nil },
	}, nil)
	return &fixture{ingestor: ing, invoices: inv, consumption: cons, handler: srv.Router()}
}

func multipartUpload(t *testing.T, userID, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if userID != "" {
		require.NoError(t, mw.WriteField("user_id", userID))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestUploadInvoiceCommitted(t *testing.T) {
	fix := newFixture(t)
	contract := "12345"
	fix.ingestor.res = pipeline.Result{
		UploadID:  uuid.New(),
		Status:    constants.StatusCommitted,
		InvoiceID: 11,
		Invoice:   &extract.Invoice{ContractNumber: &contract, TotalAmount: 231222},
		Pages:     2,
	}

	body, ctype := multipartUpload(t, "7", "factura.pdf", []byte("%PDF-1.4 fake"))
	req := httptest.NewRequest(http.MethodPost, "/api/invoices", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()

	fix.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(constants.StatusCommitted), resp.Status)
	assert.Equal(t, int64(11), resp.InvoiceID)
	assert.Equal(t, int64(7), fix.ingestor.got.UserID)
	assert.Equal(t, "factura.pdf", fix.ingestor.got.Filename)
}

func TestUploadInvoiceSoftFailReturns200(t *testing.T) {
	fix := newFixture(t)
	fix.ingestor.res = pipeline.Result{
		UploadID: uuid.New(),
		Status:   constants.StatusSoftFailed,
		Pages:    1,
	}

	body, ctype := multipartUpload(t, "7", "scan.png", []byte("png-ish"))
	req := httptest.NewRequest(http.MethodPost, "/api/invoices", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()

	fix.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp uploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(constants.StatusSoftFailed), resp.Status)
	assert.Contains(t, resp.Message, "no financial data")
	assert.Zero(t, resp.InvoiceID)
}

func TestUploadInvoiceDuplicateReturns409(t *testing.T) {
	fix := newFixture(t)
	fix.ingestor.err = common.WrapError(common.ErrDuplicateInvoice, "commit")

	body, ctype := multipartUpload(t, "7", "factura.pdf", []byte("data"))
	req := httptest.NewRequest(http.MethodPost, "/api/invoices", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()

	fix.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "already submitted")
}

func TestUploadInvoiceValidation(t *testing.T) {
	fix := newFixture(t)

	t.Run("missing user_id", func(t *testing.T) {
		body, ctype := multipartUpload(t, "", "factura.pdf", []byte("data"))
		req := httptest.NewRequest(http.MethodPost, "/api/invoices", body)
		req.Header.Set("Content-Type", ctype)
		rec := httptest.NewRecorder()
		fix.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing file", func(t *testing.T) {
		body, ctype := multipartUpload(t, "7", "", nil)
		req := httptest.NewRequest(http.MethodPost, "/api/invoices", body)
		req.Header.Set("Content-Type", ctype)
		rec := httptest.NewRecorder()
		fix.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		body, ctype := multipartUpload(t, "999", "factura.pdf", []byte("data"))
		req := httptest.NewRequest(http.MethodPost, "/api/invoices", body)
		req.Header.Set("Content-Type", ctype)
		rec := httptest.NewRecorder()
		fix.handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "unknown user")
	})
}

func TestUploadRecognitionFailureReturns400(t *testing.T) {
	fix := newFixture(t)
	fix.ingestor.err = common.WrapError(common.ErrRecognition, "page 1")

	body, ctype := multipartUpload(t, "7", "factura.pdf", []byte("data"))
	req := httptest.NewRequest(http.MethodPost, "/api/invoices", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()

	fix.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "could not read document")
}

func TestListInvoicesForUser(t *testing.T) {
	fix := newFixture(t)
	fix.invoices.invoices = []entity.Invoice{
		{ID: 11, UserID: 7, TotalAmount: 231222},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/invoices/user/7", nil)
	rec := httptest.NewRecorder()
	fix.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var invoices []entity.Invoice
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &invoices))
	require.Len(t, invoices, 1)
	assert.Equal(t, int64(11), invoices[0].ID)
}

func TestCreateConsumption(t *testing.T) {
	fix := newFixture(t)

	body := `{"user_id": 7, "recorded_at": "2024-11-01", "consumption_kwh": 350.5, "cost": 231222}`
	req := httptest.NewRequest(http.MethodPost, "/api/consumption/", strings.NewReader(body))
	rec := httptest.NewRecorder()

	fix.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, int64(7), fix.consumption.created.UserID)
	assert.Equal(t, 350.5, fix.consumption.created.ConsumptionKWH)
}

func TestCreateConsumptionSchemaViolations(t *testing.T) {
	fix := newFixture(t)

	cases := map[string]string{
		"missing required": `{"user_id": 7}`,
		"negative kwh":     `{"user_id": 7, "recorded_at": "2024-11-01", "consumption_kwh": -1}`,
		"unknown field":    `{"user_id": 7, "recorded_at": "2024-11-01", "consumption_kwh": 1, "extra": true}`,
		"not json":         `{{{`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/consumption/", strings.NewReader(body))
			rec := httptest.NewRecorder()
			fix.handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestLatestConsumption(t *testing.T) {
	fix := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/consumption/latest/7", nil)
	rec := httptest.NewRecorder()
	fix.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var entries []entity.ConsumptionEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, int64(7), entries[0].UserID)
}

func TestGetConsumptionByID(t *testing.T) {
	fix := newFixture(t)
	cost := int64(231222)
	fix.consumption.entries = []entity.ConsumptionEntry{
		{ID: 5, UserID: 7, ConsumptionKWH: 350, Cost: &cost},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/consumption/5", nil)
	rec := httptest.NewRecorder()
	fix.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var entry entity.ConsumptionEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entry))
	assert.Equal(t, int64(5), entry.ID)
	assert.Equal(t, 350.0, entry.ConsumptionKWH)

	req = httptest.NewRequest(http.MethodGet, "/api/consumption/99", nil)
	rec = httptest.NewRecorder()
	fix.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListUserConsumption(t *testing.T) {
	fix := newFixture(t)
	fix.consumption.entries = []entity.ConsumptionEntry{
		{ID: 1, UserID: 7, ConsumptionKWH: 100},
		{ID: 2, UserID: 8, ConsumptionKWH: 200},
		{ID: 3, UserID: 7, ConsumptionKWH: 300},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/consumption/user/7", nil)
	rec := httptest.NewRecorder()
	fix.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var entries []entity.ConsumptionEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, int64(1), entries[0].ID)
	assert.Equal(t, int64(3), entries[1].ID)
}

func TestDeleteConsumption(t *testing.T) {
	fix := newFixture(t)

	req := httptest.NewRequest(http.MethodDelete, "/api/consumption/3", nil)
	rec := httptest.NewRecorder()
	fix.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []int64{3}, fix.consumption.deleted)
}

func TestExportConsumption(t *testing.T) {
	fix := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/consumption/user/7/export?from=2024-10-01&to=2024-10-31", nil)
	rec := httptest.NewRecorder()
	fix.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "spreadsheetml")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "consumption-7.xlsx")
}

func TestSupportTicketLifecycle(t *testing.T) {
	fix := newFixture(t)

	body := `{"user_id": 7, "subject": "Factura duplicada", "message": "La factura de octubre aparece dos veces"}`
	req := httptest.NewRequest(http.MethodPost, "/api/support/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	fix.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	var ticket entity.SupportTicket
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ticket))
	assert.Equal(t, entity.TicketOpen, ticket.Status)

	req = httptest.NewRequest(http.MethodPut, "/api/support/1/status", strings.NewReader(`{"status": "RESOLVED"}`))
	rec = httptest.NewRecorder()
	fix.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPut, "/api/support/1/status", strings.NewReader(`{"status": "BOGUS"}`))
	rec = httptest.NewRecorder()
	fix.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDiagnosticNotFound(t *testing.T) {
	fix := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/api/diagnostics/"+uuid.NewString(), nil)
	rec := httptest.NewRecorder()
	fix.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	fix := newFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	fix.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

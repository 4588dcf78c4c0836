package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/enerhogar/energia-tracker/constants"
	"github.com/enerhogar/energia-tracker/internal/assemble"
	"github.com/enerhogar/energia-tracker/internal/common"
	"github.com/enerhogar/energia-tracker/internal/extract"
	"github.com/enerhogar/energia-tracker/internal/recognize"
	"github.com/enerhogar/energia-tracker/internal/render"
)

// Upload is the raw input artifact: file content plus its declared media
// type and origin filename, owned exclusively by the orchestrator for the
// duration of processing. Neither it nor any derived artifact survives the
// run.
type Upload struct {
	UserID    int64
	Content   []byte
	MediaType string
	Filename  string
}

// Result is the terminal outcome of one upload's pipeline run.
type Result struct {
	UploadID  uuid.UUID
	Status    constants.UploadStatus
	Invoice   *extract.Invoice
	InvoiceID int64
	Pages     int
}

// PageRenderer rasterizes a paged document into ordered page images.
type PageRenderer interface {
	RenderPDF(data []byte) ([]render.Page, error)
}

// Normalizer standardizes page images for recognition.
type Normalizer interface {
	Normalize(img image.Image) *image.Gray
	NormalizeBytes(data []byte) (*image.Gray, error)
}

// InvoiceStore persists committed invoices. Implementations report a
// payment-reference uniqueness violation as common.ErrDuplicateInvoice;
// the constraint is enforced at commit time, not earlier.
type InvoiceStore interface {
	CreateInvoice(ctx context.Context, userID int64, inv extract.Invoice) (int64, error)
}

// ConsumptionStore records the companion consumption-history entry for a
// committed invoice.
type ConsumptionStore interface {
	AddEntry(ctx context.Context, userID int64, recordedAt time.Time, kwh float64, cost int64) error
}

// DiagnosticsStore keeps raw assembled text for soft-failed uploads so a
// human can review what the engine saw.
type DiagnosticsStore interface {
	SaveRawText(ctx context.Context, uploadID uuid.UUID, userID int64, text string) error
}

// Orchestrator drives one upload through
// render -> normalize -> recognize -> assemble -> extract -> commit,
// strictly sequentially. Concurrent uploads each run their own independent
// Orchestrator call; the only shared state is the stores.
type Orchestrator struct {
	renderer    PageRenderer
	normalizer  Normalizer
	engine      recognize.Engine
	extractor   *extract.Extractor
	invoices    InvoiceStore
	consumption ConsumptionStore
	diagnostics DiagnosticsStore
	tempBase    string
	progress    recognize.ProgressFunc
	logger      *slog.Logger
}

type Deps struct {
	Renderer    PageRenderer
	Normalizer  Normalizer
	Engine      recognize.Engine
	Extractor   *extract.Extractor
	Invoices    InvoiceStore
	Consumption ConsumptionStore
	Diagnostics DiagnosticsStore
	TempBase    string                 // base dir for per-upload scratch dirs
	Progress    recognize.ProgressFunc // optional, informational only
}

func NewOrchestrator(d Deps, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if d.TempBase == "" {
		d.TempBase = os.TempDir()
	}
	return &Orchestrator{
		renderer:    d.Renderer,
		normalizer:  d.Normalizer,
		engine:      d.Engine,
		extractor:   d.Extractor,
		invoices:    d.Invoices,
		consumption: d.Consumption,
		diagnostics: d.Diagnostics,
		tempBase:    d.TempBase,
		progress:    d.Progress,
		logger:      logger,
	}
}

// Run processes one upload to a terminal state. The returned error is
// non-nil only for hard failures and always wraps one of the taxonomy
// sentinels in internal/common; a soft failure (no financial data detected)
// is a valid outcome, not an error. Temporary resources are released on
// every exit path.
func (o *Orchestrator) Run(ctx context.Context, up Upload) (Result, error) {
	res := Result{UploadID: uuid.New(), Status: constants.StatusReceived}
	log := o.logger.With("upload_id", res.UploadID, "user_id", up.UserID)

	// Received: validate before any temp resource exists.
	if len(up.Content) == 0 {
		res.Status = constants.StatusHardFailed
		return res, common.NewAppError("VALIDATION", "a PDF or image file is required", common.ErrValidation)
	}
	if up.UserID <= 0 {
		res.Status = constants.StatusHardFailed
		return res, common.NewAppError("VALIDATION", "user id is required", common.ErrValidation)
	}
	format := constants.MediaTypeToFormat(up.MediaType)
	if format == "" {
		res.Status = constants.StatusHardFailed
		return res, common.NewAppError("VALIDATION", fmt.Sprintf("unsupported media type %q", up.MediaType), common.ErrValidation)
	}

	tempDir, err := os.MkdirTemp(o.tempBase, "et-"+res.UploadID.String()+"-*")
	if err != nil {
		res.Status = constants.StatusHardFailed
		return res, common.NewAppError("INTERNAL", "creating upload scratch dir", fmt.Errorf("%w: %w", common.ErrInternal, err))
	}
	// Unconditional cleanup: the scratch dir and the original upload copy
	// go away on every path, including panics unwinding through here.
	defer func() {
		if rerr := os.RemoveAll(tempDir); rerr != nil {
			log.Error("failed to remove upload scratch dir", "dir", tempDir, "error", rerr)
		} else {
			log.Debug("upload scratch dir removed", "dir", tempDir)
		}
	}()

	if err := os.WriteFile(filepath.Join(tempDir, "original-"+filepath.Base(up.Filename)), up.Content, 0o600); err != nil {
		res.Status = constants.StatusHardFailed
		return res, common.NewAppError("INTERNAL", "storing upload", fmt.Errorf("%w: %w", common.ErrInternal, err))
	}

	doc, pages, err := o.recognizeDocument(ctx, log, &res, up, format)
	if err != nil {
		res.Status = constants.StatusHardFailed
		return res, err
	}
	res.Pages = pages

	res.Status = constants.StatusExtracting
	inv := o.extractor.Extract(doc.Text)

	if !inv.HasFinancialData() {
		// Soft failure: keep the raw text for manual review, commit nothing.
		if derr := o.diagnostics.SaveRawText(ctx, res.UploadID, up.UserID, doc.Text); derr != nil {
			log.Error("failed to save diagnostic text", "error", derr)
		}
		res.Status = constants.StatusSoftFailed
		res.Invoice = &inv
		log.Warn("no financial data detected", "pages", pages, "text_bytes", len(doc.Text))
		return res, nil
	}

	id, err := o.invoices.CreateInvoice(ctx, up.UserID, inv)
	if err != nil {
		res.Status = constants.StatusHardFailed
		if errors.Is(err, common.ErrDuplicateInvoice) {
			return res, common.NewAppError("DUPLICATE_INVOICE", "invoice already registered", err)
		}
		return res, common.NewAppError("INTERNAL", "committing invoice", fmt.Errorf("%w: %w", common.ErrInternal, err))
	}
	if err := o.consumption.AddEntry(ctx, up.UserID, inv.BillingDate, inv.ConsumptionKWH, inv.TotalAmount); err != nil {
		res.Status = constants.StatusHardFailed
		return res, common.NewAppError("INTERNAL", "recording consumption entry", fmt.Errorf("%w: %w", common.ErrInternal, err))
	}

	res.Status = constants.StatusCommitted
	res.Invoice = &inv
	res.InvoiceID = id
	log.Info("invoice committed",
		"invoice_id", id,
		"contract", derefOr(inv.ContractNumber),
		"total", inv.TotalAmount,
		"kwh", inv.ConsumptionKWH,
		"pages", pages,
	)
	return res, nil
}

// recognizeDocument runs render -> normalize -> recognize page by page,
// sequentially: pages share one engine handle and accumulate into one
// ordered document.
func (o *Orchestrator) recognizeDocument(ctx context.Context, log *slog.Logger, res *Result, up Upload, format string) (assemble.Document, int, error) {
	var results []recognize.Result

	switch format {
	case constants.PDF:
		res.Status = constants.StatusRendering
		pages, err := o.renderer.RenderPDF(up.Content)
		if err != nil {
			return assemble.Document{}, 0, err
		}
		log.Debug("document rendered", "pages", len(pages))

		res.Status = constants.StatusRecognizing
		for _, p := range pages {
			norm := o.normalizer.Normalize(p.Image)
			r, err := o.engine.Recognize(ctx, norm, p.Index, o.pageProgress(p.Index))
			if err != nil {
				return assemble.Document{}, 0, err
			}
			results = append(results, r)
		}

	case constants.IMAGE:
		res.Status = constants.StatusRendering
		norm, err := o.normalizer.NormalizeBytes(up.Content)
		if err != nil {
			return assemble.Document{}, 0, err
		}
		res.Status = constants.StatusRecognizing
		r, err := o.engine.Recognize(ctx, norm, 0, o.pageProgress(0))
		if err != nil {
			return assemble.Document{}, 0, err
		}
		results = append(results, r)
	}

	doc := assemble.Assemble(results)
	return doc, doc.Pages, nil
}

func (o *Orchestrator) pageProgress(pageIndex int) recognize.ProgressFunc {
	if o.progress == nil {
		return nil
	}
	return func(p recognize.Progress) {
		p.Stage = fmt.Sprintf("page %d: %s", pageIndex, p.Stage)
		o.progress(p)
	}
}

func derefOr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package pipeline

import (
	"context"
	"errors"
	"image"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/enerhogar/energia-tracker/constants"
	"github.com/enerhogar/energia-tracker/internal/common"
	"github.com/enerhogar/energia-tracker/internal/extract"
	"github.com/enerhogar/energia-tracker/internal/recognize"
	"github.com/enerhogar/energia-tracker/internal/render"
)

type fakeRenderer struct {
	pages []render.Page
	err   error
}

func (f *fakeRenderer) RenderPDF([]byte) ([]render.Page, error) {
	return f.pages, f.err
}

type fakeNormalizer struct {
	decodeErr error
}

func (f *fakeNormalizer) Normalize(image.Image) *image.Gray {
	return image.NewGray(image.Rect(0, 0, 1, 1))
}

func (f *fakeNormalizer) NormalizeBytes([]byte) (*image.Gray, error) {
	if f.decodeErr != nil {
		return nil, f.decodeErr
	}
	return image.NewGray(image.Rect(0, 0, 1, 1)), nil
}

type fakeEngine struct {
	texts map[int]string
	err   error
}

func (f *fakeEngine) Recognize(_ context.Context, _ image.Image, pageIndex int, progress recognize.ProgressFunc) (recognize.Result, error) {
	if f.err != nil {
		return recognize.Result{}, f.err
	}
	if progress != nil {
		progress(recognize.Progress{Stage: "done", Fraction: 1})
	}
	return recognize.Result{PageIndex: pageIndex, Text: f.texts[pageIndex]}, nil
}

type fakeInvoices struct {
	created []extract.Invoice
	err     error
}

func (f *fakeInvoices) CreateInvoice(_ context.Context, _ int64, inv extract.Invoice) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.created = append(f.created, inv)
	return int64(len(f.created)), nil
}

type fakeConsumption struct {
	entries int
	err     error
}

func (f *fakeConsumption) AddEntry(context.Context, int64, time.Time, float64, int64) error {
	if f.err != nil {
		return f.err
	}
	f.entries++
	return nil
}

type fakeDiagnostics struct {
	texts []string
}

func (f *fakeDiagnostics) SaveRawText(_ context.Context, _ uuid.UUID, _ int64, text string) error {
	f.texts = append(f.texts, text)
	return nil
}

type fixture struct {
	orch        *Orchestrator
	renderer    *fakeRenderer
	engine      *fakeEngine
	invoices    *fakeInvoices
	consumption *fakeConsumption
	diagnostics *fakeDiagnostics
	tempBase    string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		renderer:    &fakeRenderer{},
		engine:      &fakeEngine{texts: map[int]string{}},
		invoices:    &fakeInvoices{},
		consumption: &fakeConsumption{},
		diagnostics: &fakeDiagnostics{},
		tempBase:    t.TempDir(),
	}
	f.orch = NewOrchestrator(Deps{
		Renderer:    f.renderer,
		Normalizer:  &fakeNormalizer{},
		Engine:      f.engine,
		Extractor:   extract.NewExtractorAt(nil, func() time.Time { return time.Date(2024, 11, 5, 0, 0, 0, 0, time.UTC) }),
		Invoices:    f.invoices,
		Consumption: f.consumption,
		Diagnostics: f.diagnostics,
		TempBase:    f.tempBase,
	}, nil)
	return f
}

func (f *fixture) assertNoLeftovers(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.tempBase)
	require.NoError(t, err)
	assert.Empty(t, entries, "temp resources must not survive the pipeline")
}

func imageUpload() Upload {
	return Upload{
		UserID:    7,
		Content:   []byte("fake image bytes"),
		MediaType: "image/png",
		Filename:  "bill.png",
	}
}

func TestRunCommitsInvoice(t *testing.T) {
	f := newFixture(t)
	f.engine.texts[0] = "Contrato 11706073 231.222 Energía 180 kwh Agosto 2024"

	res, err := f.orch.Run(context.Background(), imageUpload())

	require.NoError(t, err)
	assert.Equal(t, constants.StatusCommitted, res.Status)
	require.NotNil(t, res.Invoice)
	assert.Equal(t, int64(231222), res.Invoice.TotalAmount)
	assert.Equal(t, 180.0, res.Invoice.ConsumptionKWH)
	require.Len(t, f.invoices.created, 1)
	assert.Equal(t, 1, f.consumption.entries)
	assert.Empty(t, f.diagnostics.texts)
	f.assertNoLeftovers(t)
}

func TestRunMissingFileFailsBeforeTempResources(t *testing.T) {
	f := newFixture(t)

	res, err := f.orch.Run(context.Background(), Upload{UserID: 7, MediaType: "image/png"})

	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrValidation)
	assert.Equal(t, constants.StatusHardFailed, res.Status)
	f.assertNoLeftovers(t)
}

func TestRunMissingUserFails(t *testing.T) {
	f := newFixture(t)

	up := imageUpload()
	up.UserID = 0
	_, err := f.orch.Run(context.Background(), up)

	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestRunRejectsUnknownMediaType(t *testing.T) {
	f := newFixture(t)

	up := imageUpload()
	up.MediaType = "application/zip"
	res, err := f.orch.Run(context.Background(), up)

	assert.ErrorIs(t, err, common.ErrValidation)
	assert.Equal(t, constants.StatusHardFailed, res.Status)
	f.assertNoLeftovers(t)
}

func TestRunSoftFailureKeepsRawText(t *testing.T) {
	f := newFixture(t)
	f.engine.texts[0] = "texto sin datos de factura"

	res, err := f.orch.Run(context.Background(), imageUpload())

	require.NoError(t, err, "soft failure is a valid outcome, not an error")
	assert.Equal(t, constants.StatusSoftFailed, res.Status)
	require.Len(t, f.diagnostics.texts, 1)
	assert.Contains(t, f.diagnostics.texts[0], "texto sin datos")
	assert.Empty(t, f.invoices.created, "a zero-amount invoice must never be committed")
	assert.Equal(t, 0, f.consumption.entries)
	f.assertNoLeftovers(t)
}

func TestRunRenderFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.renderer.err = common.NewAppError("RENDER", "bad pdf", common.ErrRender)

	up := imageUpload()
	up.MediaType = "application/pdf"
	res, err := f.orch.Run(context.Background(), up)

	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrRender)
	assert.Equal(t, constants.StatusHardFailed, res.Status)
	f.assertNoLeftovers(t)
}

func TestRunRecognitionFailureAborts(t *testing.T) {
	f := newFixture(t)
	f.engine.err = common.NewAppError("RECOGNITION", "engine crash", common.ErrRecognition)

	res, err := f.orch.Run(context.Background(), imageUpload())

	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrRecognition)
	assert.Equal(t, constants.StatusHardFailed, res.Status)
	assert.Empty(t, f.invoices.created)
	f.assertNoLeftovers(t)
}

func TestRunDuplicateInvoice(t *testing.T) {
	f := newFixture(t)
	f.engine.texts[0] = "Contrato 11706073 231.222"
	f.invoices.err = common.ErrDuplicateInvoice

	res, err := f.orch.Run(context.Background(), imageUpload())

	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrDuplicateInvoice)
	assert.Equal(t, constants.StatusHardFailed, res.Status)
	f.assertNoLeftovers(t)
}

func TestRunCleanupOnUnexpectedStoreError(t *testing.T) {
	f := newFixture(t)
	f.engine.texts[0] = "Contrato 11706073 231.222"
	f.invoices.err = errors.New("connection reset")

	_, err := f.orch.Run(context.Background(), imageUpload())

	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInternal)
	f.assertNoLeftovers(t)
}

func TestRunMultiPagePreservesPageOrder(t *testing.T) {
	f := newFixture(t)
	f.renderer.pages = []render.Page{
		{Index: 0, Image: image.NewGray(image.Rect(0, 0, 1, 1))},
		{Index: 1, Image: image.NewGray(image.Rect(0, 0, 1, 1))},
		{Index: 2, Image: image.NewGray(image.Rect(0, 0, 1, 1))},
	}
	f.engine.texts = map[int]string{0: "alpha", 1: "beta", 2: "gamma"}

	up := imageUpload()
	up.MediaType = "application/pdf"
	res, err := f.orch.Run(context.Background(), up)

	// No financial data on any page: the run soft-fails and the assembled
	// text lands in diagnostics, where page order is observable.
	require.NoError(t, err)
	assert.Equal(t, constants.StatusSoftFailed, res.Status)
	assert.Equal(t, 3, res.Pages)
	require.Len(t, f.diagnostics.texts, 1)
	text := f.diagnostics.texts[0]
	assert.Less(t, strings.Index(text, "alpha"), strings.Index(text, "beta"))
	assert.Less(t, strings.Index(text, "beta"), strings.Index(text, "gamma"))
	f.assertNoLeftovers(t)
}

func TestRunEmitsProgress(t *testing.T) {
	var stages []string
	f := newFixture(t)
	f.orch.progress = func(p recognize.Progress) { stages = append(stages, p.Stage) }
	f.engine.texts[0] = "Contrato 11706073 231.222"

	_, err := f.orch.Run(context.Background(), imageUpload())

	require.NoError(t, err)
	require.NotEmpty(t, stages)
	assert.Contains(t, stages[0], "page 0")
}

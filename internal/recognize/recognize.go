package recognize

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/enerhogar/energia-tracker/internal/common"
	"github.com/enerhogar/energia-tracker/internal/normalize"
)

// Progress is an informational status notification emitted while a page is
// being recognized. Never required for correctness.
type Progress struct {
	Stage    string
	Fraction float64 // 0..1 within the current page
}

// ProgressFunc receives Progress notifications. May be nil.
type ProgressFunc func(Progress)

// Result is the OCR output for one page. Ephemeral: it only lives long
// enough to be appended into the assembled document.
type Result struct {
	PageIndex int
	Text      string
}

// Engine recognizes text on one normalized page image. Recognition is
// CPU-bound and can run for seconds per page; implementations must honor
// ctx cancellation. Output is approximate by nature — downstream consumers
// tolerate noisy text rather than assuming exact transcription.
type Engine interface {
	Recognize(ctx context.Context, img image.Image, pageIndex int, progress ProgressFunc) (Result, error)
}

// Config for the tesseract-backed engine.
type Config struct {
	Tesseract   string // binary name or absolute path; if empty -> "tesseract"
	Language    string // language/script profile, e.g. "spa"; default "spa"
	TessdataDir string
	WorkDir     string // scratch dir for page files; default os.TempDir()
}

// Tesseract shells out to the tesseract CLI. The engine handle is explicit
// state constructed once and passed where needed — concurrent pipelines each
// hold their own reference, there is no ambient global.
type Tesseract struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewTesseract(cfg Config, logger *slog.Logger) *Tesseract {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.Language == "" {
		cfg.Language = "spa"
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	return &Tesseract{cfg: cfg, runner: newExecRunner(logger), logger: logger}
}

// Recognize writes the page to a scoped temp file (tesseract requires file
// input), runs the engine, and removes the file before returning. Any engine
// failure is fatal for the page and surfaces as ErrRecognition.
func (t *Tesseract) Recognize(ctx context.Context, img image.Image, pageIndex int, progress ProgressFunc) (Result, error) {
	notify(progress, "prepare", 0)

	data, err := normalize.EncodePNG(img)
	if err != nil {
		return Result{}, common.NewAppError("RECOGNITION", "encoding page for engine", fmt.Errorf("%w: %w", common.ErrRecognition, err))
	}

	dir, err := os.MkdirTemp(t.cfg.WorkDir, "et-ocr-*")
	if err != nil {
		return Result{}, common.NewAppError("RECOGNITION", "creating scratch dir", fmt.Errorf("%w: %w", common.ErrRecognition, err))
	}
	defer func() {
		if rerr := os.RemoveAll(dir); rerr != nil {
			t.logger.Warn("failed to remove ocr scratch dir", "dir", dir, "error", rerr)
		}
	}()

	pagePath := filepath.Join(dir, fmt.Sprintf("page-%d.png", pageIndex))
	if err := os.WriteFile(pagePath, data, 0o600); err != nil {
		return Result{}, common.NewAppError("RECOGNITION", "writing page file", fmt.Errorf("%w: %w", common.ErrRecognition, err))
	}

	notify(progress, "recognize", 0.2)

	args := []string{pagePath, "stdout", "-l", t.cfg.Language}
	if t.cfg.TessdataDir != "" {
		args = append(args, "--tessdata-dir", t.cfg.TessdataDir)
	}
	out, errb, err := t.runner.Run(ctx, t.cfg.Tesseract, args...)
	if err != nil {
		t.logger.Error("tesseract failed", "page", pageIndex, "stderr", truncate(string(errb), 2<<10), "error", err)
		return Result{}, common.NewAppError("RECOGNITION", fmt.Sprintf("recognizing page %d", pageIndex), fmt.Errorf("%w: %w", common.ErrRecognition, err))
	}

	notify(progress, "done", 1)
	return Result{PageIndex: pageIndex, Text: string(out)}, nil
}

func notify(progress ProgressFunc, stage string, fraction float64) {
	if progress != nil {
		progress(Progress{Stage: stage, Fraction: fraction})
	}
}

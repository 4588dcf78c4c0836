package main

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/enerhogar/energia-tracker/internal/assemble"
	"github.com/enerhogar/energia-tracker/internal/common"
	"github.com/enerhogar/energia-tracker/internal/extract"
	"github.com/enerhogar/energia-tracker/internal/normalize"
	"github.com/enerhogar/energia-tracker/internal/recognize"
	"github.com/enerhogar/energia-tracker/internal/render"
)

// ocrscan runs the recognition pipeline against a local invoice file or a
// directory of page images and prints the extracted fields as JSON. It never
// touches the database; it exists to tune recognition settings offline.
func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: ocrscan <invoice.pdf | image | directory>")
		os.Exit(2)
	}
	path := os.Args[1]

	cfg := common.LoadConfig()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	start := time.Now()
	doc, pages, err := recognizePath(ctx, cfg, logger, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	invoice := extract.NewExtractor(logger).Extract(doc.Text)

	out := struct {
		Pages      int             `json:"pages"`
		Invoice    extract.Invoice `json:"invoice"`
		SoftFailed bool            `json:"soft_failed"`
		ElapsedMS  int64           `json:"elapsed_ms"`
	}{
		Pages:      pages,
		Invoice:    invoice,
		SoftFailed: !invoice.HasFinancialData(),
		ElapsedMS:  time.Since(start).Milliseconds(),
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func recognizePath(ctx context.Context, cfg *common.Config, logger *slog.Logger, path string) (assemble.Document, int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return assemble.Document{}, 0, err
	}

	normalizer := normalize.NewNormalizer(normalize.Config{}, logger)
	engine := recognize.NewTesseract(recognize.Config{
		Tesseract:   cfg.OCR.Tesseract,
		Language:    cfg.OCR.Language,
		TessdataDir: cfg.OCR.TessdataDir,
		WorkDir:     cfg.Storage.TempDir,
	}, logger)

	var pages []pageInput
	switch {
	case info.IsDir():
		pages, err = directoryPages(path)
	case strings.EqualFold(filepath.Ext(path), ".pdf"):
		pages, err = pdfPages(path, cfg.OCR.RenderDPI, logger)
	default:
		pages = []pageInput{{index: 0, path: path}}
	}
	if err != nil {
		return assemble.Document{}, 0, err
	}
	if len(pages) == 0 {
		return assemble.Document{}, 0, fmt.Errorf("no pages found in %s", path)
	}

	bar := newBar(len(pages))
	var results []recognize.Result
	for _, p := range pages {
		img, err := p.load(normalizer)
		if err != nil {
			return assemble.Document{}, 0, err
		}
		res, err := engine.Recognize(ctx, img, p.index, nil)
		if err != nil {
			return assemble.Document{}, 0, err
		}
		results = append(results, res)
		_ = bar.Add(1)
	}
	fmt.Fprintln(os.Stderr)

	return assemble.Assemble(results), len(pages), nil
}

// pageInput is one page awaiting recognition: either an image file on disk
// or a page already rasterized from a PDF.
type pageInput struct {
	index int
	path  string
	img   image.Image
}

func (p pageInput) load(n *normalize.Normalizer) (image.Image, error) {
	if p.img != nil {
		return n.Normalize(p.img), nil
	}
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, err
	}
	return n.NormalizeBytes(data)
}

func pdfPages(path string, dpi int, logger *slog.Logger) ([]pageInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rendered, err := render.NewRenderer(dpi, logger).RenderPDF(data)
	if err != nil {
		return nil, err
	}
	pages := make([]pageInput, 0, len(rendered))
	for _, rp := range rendered {
		pages = append(pages, pageInput{index: rp.Index, img: rp.Image})
	}
	return pages, nil
}

func newBar(total int) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription("recognizing"),
		progressbar.OptionSetItsString("pages"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowElapsedTimeOnFinish(),
	)
}

func directoryPages(dir string) ([]pageInput, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg", ".tif", ".tiff", ".bmp":
			names = append(names, e.Name())
		}
	}
	render.SortPageFiles(names)

	pages := make([]pageInput, 0, len(names))
	for i, name := range names {
		pages = append(pages, pageInput{index: i, path: filepath.Join(dir, name)})
	}
	return pages, nil
}

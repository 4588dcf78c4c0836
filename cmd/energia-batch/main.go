package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/enerhogar/energia-tracker/internal/common"
	"github.com/enerhogar/energia-tracker/internal/diagnostics"
	"github.com/enerhogar/energia-tracker/internal/extract"
	"github.com/enerhogar/energia-tracker/internal/ingest"
	"github.com/enerhogar/energia-tracker/internal/normalize"
	"github.com/enerhogar/energia-tracker/internal/pipeline"
	"github.com/enerhogar/energia-tracker/internal/recognize"
	"github.com/enerhogar/energia-tracker/internal/render"
	"github.com/enerhogar/energia-tracker/internal/repository"
)

// energia-batch ingests a drop directory (<dir>/<user-id>/<file>) in one
// pass and reports aggregate stats. It shares the pipeline with the daemon
// but runs to completion and exits.
func main() {
	dir := flag.String("dir", "", "drop directory to ingest (required)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "error: --dir is required")
		os.Exit(2)
	}

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	pool, err := repository.Open(ctx, repository.Config{
		DSN:             cfg.Database.DSN,
		MaxConns:        5,
		MinConns:        1,
		MaxConnLifetime: cfg.Database.MaxConnLifetime,
		MaxConnIdleTime: cfg.Database.MaxConnIdleTime,
		DialTimeout:     cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: opening database: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	diagStore, err := diagnostics.Open(cfg.Storage.DiagnosticsDSN, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: opening diagnostics store: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = diagStore.Close() }()

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("ingesting"),
		progressbar.OptionSetItsString("steps"),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionSpinnerType(14),
	)

	orch := pipeline.NewOrchestrator(pipeline.Deps{
		Renderer:   render.NewRenderer(cfg.OCR.RenderDPI, logger),
		Normalizer: normalize.NewNormalizer(normalize.Config{}, logger),
		Engine: recognize.NewTesseract(recognize.Config{
			Tesseract:   cfg.OCR.Tesseract,
			Language:    cfg.OCR.Language,
			TessdataDir: cfg.OCR.TessdataDir,
			WorkDir:     cfg.Storage.TempDir,
		}, logger),
		Extractor:   extract.NewExtractor(logger),
		Invoices:    repository.NewInvoiceRepository(pool, logger),
		Consumption: repository.NewConsumptionRepository(pool, logger),
		Diagnostics: diagStore,
		TempBase:    cfg.Storage.TempDir,
		Progress: func(p recognize.Progress) {
			_ = bar.Add(1)
		},
	}, logger)

	folder := ingest.NewFolder(orch, logger)
	results, stats, err := folder.IngestDirectory(ctx, *dir)
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	for _, r := range results {
		if r.Err != "" {
			fmt.Printf("FAIL  %s: %s\n", r.SourcePath, r.Err)
			continue
		}
		if r.Status == "" {
			fmt.Printf("SKIP  %s (already ingested)\n", r.SourcePath)
			continue
		}
		fmt.Printf("%-5s %s (upload %s)\n", r.Status, r.SourcePath, r.UploadID)
	}
	fmt.Printf("scanned=%d matched=%d succeeded=%d soft_failed=%d failed=%d deduplicated=%d\n",
		stats.Scanned, stats.Matched, stats.Succeeded, stats.SoftFailed, stats.Failed, stats.Deduplicated)

	if stats.Failed > 0 {
		os.Exit(1)
	}
}

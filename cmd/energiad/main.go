package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/enerhogar/energia-tracker/internal/common"
	"github.com/enerhogar/energia-tracker/internal/diagnostics"
	"github.com/enerhogar/energia-tracker/internal/export"
	"github.com/enerhogar/energia-tracker/internal/extract"
	"github.com/enerhogar/energia-tracker/internal/ingest"
	"github.com/enerhogar/energia-tracker/internal/normalize"
	"github.com/enerhogar/energia-tracker/internal/pipeline"
	"github.com/enerhogar/energia-tracker/internal/recognize"
	"github.com/enerhogar/energia-tracker/internal/render"
	"github.com/enerhogar/energia-tracker/internal/repository"
	"github.com/enerhogar/energia-tracker/internal/server"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := repository.Open(ctx, repository.Config{
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		logger.Error("opening database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := repository.HealthCheck(ctx, pool, 3*time.Second, logger); err != nil {
		logger.Error("database health check failed", "error", err)
		os.Exit(1)
	}
	logger.Info("database health OK")

	diagStore, err := diagnostics.Open(cfg.Storage.DiagnosticsDSN, logger)
	if err != nil {
		logger.Error("opening diagnostics store", "error", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := diagStore.Close(); cerr != nil {
			logger.Error("closing diagnostics store", "error", cerr)
		}
	}()

	invoices := repository.NewInvoiceRepository(pool, logger)
	consumption := repository.NewConsumptionRepository(pool, logger)
	support := repository.NewSupportRepository(pool, logger)
	users := repository.NewUserRepository(pool, logger)

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
		Invoices:    invoices,
		Consumption: consumption,
		Diagnostics: diagStore,
		TempBase:    cfg.Storage.TempDir,
	}, logger)

	exporter := export.NewService(consumption, logger)

	srv := server.New(server.Deps{
		Ingestor:    orch,
		Invoices:    invoices,
		Consumption: consumption,
		Support:     support,
		Users:       users,
		Exporter:    exporter,
		Diagnostics: diagStore,
		Health: func(ctx context.Context) error {
			return repository.HealthCheck(ctx, pool, 2*time.Second, logger)
		},
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	}, logger)

	if cfg.Storage.WatchDir != "" {
		folder := ingest.NewFolder(orch, logger)
		go func() {
			logger.Info("watching drop directory", "dir", cfg.Storage.WatchDir)
			if err := folder.Watch(ctx, cfg.Storage.WatchDir, cfg.Storage.WatchDebounce); err != nil &&
				!errors.Is(err, context.Canceled) {
				logger.Error("drop directory watch stopped", "error", err)
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http serving", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	logger.Info("stopped")
}

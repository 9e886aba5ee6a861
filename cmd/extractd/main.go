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

	"github.com/aipe-tech/dataextract/internal/common"
	"github.com/aipe-tech/dataextract/internal/core"
	"github.com/aipe-tech/dataextract/internal/core/async"
	"github.com/aipe-tech/dataextract/internal/docstore"
	"github.com/aipe-tech/dataextract/internal/export"
	"github.com/aipe-tech/dataextract/internal/llm/gemini"
	"github.com/aipe-tech/dataextract/internal/normalize"
	"github.com/aipe-tech/dataextract/internal/repository"
	"github.com/aipe-tech/dataextract/internal/server"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := common.Load()
	if err != nil {
		logger.Error("loading configuration failed", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(ctx, cfg.DBPath, logger)
	if err != nil {
		logger.Error("opening database failed", "error", err)
		os.Exit(1)
	}
	defer repository.Close(db, logger)

	store, err := docstore.Open(cfg.DataDir, logger)
	if err != nil {
		logger.Error("opening document store failed", "error", err)
		os.Exit(1)
	}

	extractor, err := gemini.NewClient(ctx, gemini.Config{
		APIKey:      cfg.GeminiAPIKey,
		Model:       cfg.GeminiModel,
		Temperature: cfg.Temperature,
		Timeout:     cfg.ExtractTimeout,
	}, logger)
	if err != nil {
		logger.Error("creating model client failed", "error", err)
		os.Exit(1)
	}
	defer extractor.Close()

	companies := repository.NewCompanyRepository(db, logger)
	documents := repository.NewDocumentRepository(db, logger)
	records := repository.NewRecordRepository(db, logger)
	jobs := repository.NewJobRepository(db, logger)

	proc := core.NewProcessor(
		logger, store, extractor, normalize.New(logger),
		documents, records, jobs,
		cfg.MaxAttempts, cfg.BackoffBase,
	)
	queue := async.NewJobQueue(proc, logger,
		async.WithWorkers(cfg.Workers),
		async.WithQueueSize(cfg.QueueSize),
		async.WithProcessTimeout(cfg.ExtractTimeout),
	)

	exporter := export.NewService(records, logger)
	api := server.New(queue, store, exporter, companies, documents, records, jobs, logger, cfg.MaxUploadBytes)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: api.Handler(),
	}
	go func() {
		logger.Info("http serving", "addr", cfg.HTTPAddr, "model", cfg.GeminiModel)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	queue.Shutdown(shutdownCtx)
	logger.Info("stopped")
}

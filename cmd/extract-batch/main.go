// Command extract-batch runs the extraction pipeline over a directory of PDF
// documents, one company per file, and writes the committed records as XLSX
// workbooks next to the output directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/aipe-tech/dataextract/internal/common"
	"github.com/aipe-tech/dataextract/internal/core"
	"github.com/aipe-tech/dataextract/internal/docstore"
	"github.com/aipe-tech/dataextract/internal/export"
	"github.com/aipe-tech/dataextract/internal/llm/gemini"
	"github.com/aipe-tech/dataextract/internal/normalize"
	"github.com/aipe-tech/dataextract/internal/repository"
)

func main() {
	var (
		dir         = flag.String("dir", "", "directory of PDF documents to process (required)")
		out         = flag.String("out", "", "output directory for exports (defaults to --dir)")
		concurrency = flag.Int("concurrency", 2, "number of documents processed in parallel")
	)
	flag.Parse()

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "error: --dir is required")
		os.Exit(1)
	}
	if *out == "" {
		*out = *dir
	}

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

	ctx := context.Background()

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
	exporter := export.NewService(records, logger)

	entries, err := os.ReadDir(*dir)
	if err != nil {
		logger.Error("reading input directory failed", "dir", *dir, "error", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(*concurrency)

	processed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			continue
		}
		processed++
		name := entry.Name()
		g.Go(func() error {
			path := filepath.Join(*dir, name)
			pdf, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read %s: %w", name, err)
			}

			stem := strings.TrimSuffix(name, filepath.Ext(name))
			company, err := companies.Create(gctx, stem)
			if err != nil {
				return fmt.Errorf("create company %s: %w", stem, err)
			}
			job, err := jobs.Create(gctx, company.ID)
			if err != nil {
				return fmt.Errorf("create job for %s: %w", stem, err)
			}

			runCtx, cancel := context.WithTimeout(gctx, cfg.ExtractTimeout)
			defer cancel()
			if err := proc.Run(runCtx, job, pdf); err != nil {
				logger.Error("document failed", "file", name, "error", err)
				return nil // keep processing the rest of the directory
			}

			data, err := exporter.ExportXLSX(gctx, company.ID)
			if err != nil {
				return fmt.Errorf("export %s: %w", stem, err)
			}
			target := filepath.Join(*out, stem+".xlsx")
			if err := os.WriteFile(target, data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", target, err)
			}
			logger.Info("exported", "file", name, "out", target)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("batch failed", "error", err)
		os.Exit(1)
	}
	logger.Info("batch complete", "documents", processed)
}

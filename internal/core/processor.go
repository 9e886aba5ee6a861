// Package core drives one extraction request through its state machine:
// Pending → Uploading → Extracting → Normalizing → Committed, with Failed
// reachable from any non-terminal state. Every transition is persisted.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aipe-tech/dataextract/internal/common"
	"github.com/aipe-tech/dataextract/internal/docstore"
	"github.com/aipe-tech/dataextract/internal/entity"
	"github.com/aipe-tech/dataextract/internal/llm"
	"github.com/aipe-tech/dataextract/internal/normalize"
	"github.com/aipe-tech/dataextract/internal/repository"
	"github.com/aipe-tech/dataextract/internal/schema"
)

// Processor coordinates document store → extraction client → normalizer →
// record repository for a single request.
type Processor struct {
	logger     *slog.Logger
	store      *docstore.Store
	extractor  llm.Extractor
	normalizer *normalize.Normalizer
	documents  repository.DocumentRepository
	records    repository.RecordRepository
	jobs       repository.JobRepository

	maxAttempts int
	backoffBase time.Duration
}

func NewProcessor(
	logger *slog.Logger,
	store *docstore.Store,
	extractor llm.Extractor,
	normalizer *normalize.Normalizer,
	documents repository.DocumentRepository,
	records repository.RecordRepository,
	jobs repository.JobRepository,
	maxAttempts int,
	backoffBase time.Duration,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	if backoffBase <= 0 {
		backoffBase = 500 * time.Millisecond
	}
	return &Processor{
		logger:      logger,
		store:       store,
		extractor:   extractor,
		normalizer:  normalizer,
		documents:   documents,
		records:     records,
		jobs:        jobs,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
	}
}

// Run executes the full state machine for one job. On any fatal condition the
// job lands in Failed with a machine-readable reason; nothing is swallowed.
func (p *Processor) Run(ctx context.Context, job *entity.Job, pdf []byte) error {
	fail := func(err error) error {
		reason := common.ReasonFor(err)
		if ferr := p.jobs.Fail(ctx, job.ID, reason); ferr != nil {
			p.logger.Error("recording failure state failed", "job_id", job.ID, "error", ferr)
		}
		p.logger.Error("extraction failed",
			"job_id", job.ID, "company_id", job.CompanyID, "reason", reason, "error", err)
		return err
	}

	// Uploading: storage failures are environment faults, no retry.
	if err := p.jobs.SetState(ctx, job.ID, entity.JobStateUploading); err != nil {
		return fail(err)
	}
	doc, err := p.store.Put(job.CompanyID, pdf)
	if err != nil {
		return fail(err)
	}
	if err := p.documents.Create(ctx, doc); err != nil {
		return fail(err)
	}
	if err := p.jobs.SetDocument(ctx, job.ID, doc.ID); err != nil {
		return fail(err)
	}

	// Extracting, with one corrective re-prompt shared between a malformed
	// response and a normalization failure.
	if err := p.jobs.SetState(ctx, job.ID, entity.JobStateExtracting); err != nil {
		return fail(err)
	}
	req := llm.ExtractRequest{Document: pdf, SchemaJSON: schema.MarshalIndent()}
	correctiveUsed := false

	raw, err := p.extractWithBackoff(ctx, job, req)
	if err != nil && errors.Is(err, common.ErrMalformedResponse) {
		correctiveUsed = true
		req.Corrective = llm.CorrectiveInstruction
		p.logger.Warn("malformed response, re-prompting with correction", "job_id", job.ID)
		raw, err = p.extractWithBackoff(ctx, job, req)
	}
	if err != nil {
		return fail(err)
	}

	// Normalizing.
	if err := p.jobs.SetState(ctx, job.ID, entity.JobStateNormalizing); err != nil {
		return fail(err)
	}
	rec, nerr := p.normalizer.Normalize(raw, doc)
	if nerr != nil && !correctiveUsed {
		correctiveUsed = true
		req.Corrective = llm.CorrectiveInstruction
		p.logger.Warn("unnormalizable result, re-prompting with correction", "job_id", job.ID)

		if err := p.jobs.SetState(ctx, job.ID, entity.JobStateExtracting); err != nil {
			return fail(err)
		}
		raw, err = p.extractWithBackoff(ctx, job, req)
		if err != nil {
			return fail(err)
		}
		if err := p.jobs.SetState(ctx, job.ID, entity.JobStateNormalizing); err != nil {
			return fail(err)
		}
		rec, nerr = p.normalizer.Normalize(raw, doc)
	}
	if nerr != nil {
		return fail(nerr)
	}

	// Committed: the record replaces any prior one atomically; the prior
	// record stays readable up to this point.
	if err := p.records.Put(ctx, rec); err != nil {
		return fail(err)
	}
	if err := p.jobs.SetState(ctx, job.ID, entity.JobStateCommitted); err != nil {
		return fail(err)
	}

	p.logger.Info("extraction committed",
		"job_id", job.ID,
		"company_id", job.CompanyID,
		"company_name", rec.CompanyName,
		"financial_years", len(rec.Financials),
		"attempts", job.Attempts,
	)
	return nil
}

// extractWithBackoff retries ServiceUnavailable with bounded exponential
// backoff; every other failure surfaces immediately.
func (p *Processor) extractWithBackoff(ctx context.Context, job *entity.Job, req llm.ExtractRequest) (llm.RawResult, error) {
	backoff := p.backoffBase
	var last error

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		job.Attempts++
		if err := p.jobs.SetAttempts(ctx, job.ID, job.Attempts); err != nil {
			return llm.RawResult{}, err
		}

		raw, err := p.extractor.Extract(ctx, req)
		if err == nil {
			return raw, nil
		}
		last = err
		if !errors.Is(err, common.ErrServiceUnavailable) {
			return llm.RawResult{}, err
		}
		if attempt == p.maxAttempts {
			break
		}

		p.logger.Warn("model unavailable, backing off",
			"job_id", job.ID, "attempt", attempt, "backoff", backoff)
		select {
		case <-ctx.Done():
			return llm.RawResult{}, fmt.Errorf("extract aborted: %v: %w", ctx.Err(), common.ErrServiceUnavailable)
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return llm.RawResult{}, last
}

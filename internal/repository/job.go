package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aipe-tech/dataextract/internal/common"
	"github.com/aipe-tech/dataextract/internal/entity"
)

// JobRepository persists the extraction state machine: every transition is
// written here so the current state of a request survives a crash and is
// pollable by callers.
type JobRepository interface {
	Create(ctx context.Context, companyID uuid.UUID) (*entity.Job, error)
	Get(ctx context.Context, id uuid.UUID) (*entity.Job, error)
	SetState(ctx context.Context, id uuid.UUID, state entity.JobState) error
	SetDocument(ctx context.Context, id, documentID uuid.UUID) error
	SetAttempts(ctx context.Context, id uuid.UUID, attempts int) error
	Fail(ctx context.Context, id uuid.UUID, reason string) error
}

type jobRepository struct {
	db  *sql.DB
	log *slog.Logger
}

func NewJobRepository(db *sql.DB, logger *slog.Logger) JobRepository {
	return &jobRepository{db: db, log: logger}
}

func (r *jobRepository) Create(ctx context.Context, companyID uuid.UUID) (*entity.Job, error) {
	now := time.Now().UTC()
	j := &entity.Job{
		ID:        uuid.New(),
		CompanyID: companyID,
		State:     entity.JobStatePending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO jobs (id, company_id, state, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)`,
		j.ID.String(), companyID.String(), string(j.State),
		now.Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		r.log.Error("create job failed", "company_id", companyID, "error", err)
		return nil, fmt.Errorf("create job: %v: %w", err, common.ErrStorageFault)
	}
	r.log.Info("job created", "job_id", j.ID, "company_id", companyID)
	return j, nil
}

func (r *jobRepository) Get(ctx context.Context, id uuid.UUID) (*entity.Job, error) {
	var (
		j          entity.Job
		companyID  string
		documentID string
		state      string
		createdAt  string
		updatedAt  string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT company_id, document_id, state, reason, attempts, created_at, updated_at
		FROM jobs WHERE id = ?`, id.String(),
	).Scan(&companyID, &documentID, &state, &j.Reason, &j.Attempts, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("job %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %v: %w", err, common.ErrStorageFault)
	}
	j.ID = id
	j.CompanyID, _ = uuid.Parse(companyID)
	if documentID != "" {
		j.DocumentID, _ = uuid.Parse(documentID)
	}
	j.State = entity.JobState(state)
	j.CreatedAt, _ = parseTime(createdAt)
	j.UpdatedAt, _ = parseTime(updatedAt)
	return &j, nil
}

func (r *jobRepository) SetState(ctx context.Context, id uuid.UUID, state entity.JobState) error {
	return r.update(ctx, id,
		`UPDATE jobs SET state = ?, updated_at = ? WHERE id = ?`,
		string(state), now(), id.String())
}

func (r *jobRepository) SetDocument(ctx context.Context, id, documentID uuid.UUID) error {
	return r.update(ctx, id,
		`UPDATE jobs SET document_id = ?, updated_at = ? WHERE id = ?`,
		documentID.String(), now(), id.String())
}

func (r *jobRepository) SetAttempts(ctx context.Context, id uuid.UUID, attempts int) error {
	return r.update(ctx, id,
		`UPDATE jobs SET attempts = ?, updated_at = ? WHERE id = ?`,
		attempts, now(), id.String())
}

func (r *jobRepository) Fail(ctx context.Context, id uuid.UUID, reason string) error {
	err := r.update(ctx, id,
		`UPDATE jobs SET state = ?, reason = ?, updated_at = ? WHERE id = ?`,
		string(entity.JobStateFailed), reason, now(), id.String())
	if err != nil {
		return err
	}
	r.log.Warn("job failed", "job_id", id, "reason", reason)
	return nil
}

func (r *jobRepository) update(ctx context.Context, id uuid.UUID, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.log.Error("job update failed", "job_id", id, "error", err)
		return fmt.Errorf("update job: %v: %w", err, common.ErrStorageFault)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("job %s: %w", id, common.ErrNotFound)
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(timeLayout)
}

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/aipe-tech/dataextract/internal/common"
	"github.com/aipe-tech/dataextract/internal/entity"
)

// RecordRepository stores the one current ExtractionRecord per company.
// Put replaces atomically: readers see the old record or the new one, never a
// mix.
type RecordRepository interface {
	Put(ctx context.Context, rec *entity.ExtractionRecord) error
	Get(ctx context.Context, companyID uuid.UUID) (*entity.ExtractionRecord, error)
}

type recordRepository struct {
	db  *sql.DB
	log *slog.Logger
}

func NewRecordRepository(db *sql.DB, logger *slog.Logger) RecordRepository {
	return &recordRepository{db: db, log: logger}
}

func (r *recordRepository) Put(ctx context.Context, rec *entity.ExtractionRecord) error {
	sections, err := json.Marshal(rec.Sections)
	if err != nil {
		return fmt.Errorf("marshal sections: %v: %w", err, common.ErrStorageFault)
	}
	financials, err := json.Marshal(rec.Financials)
	if err != nil {
		return fmt.Errorf("marshal financials: %v: %w", err, common.ErrStorageFault)
	}
	warnings, err := json.Marshal(rec.Warnings)
	if err != nil {
		return fmt.Errorf("marshal warnings: %v: %w", err, common.ErrStorageFault)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin commit tx: %v: %w", err, common.ErrStorageFault)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO records (company_id, company_name, currency, sections, financials, warnings, document_id, extracted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(company_id) DO UPDATE SET
			company_name = excluded.company_name,
			currency     = excluded.currency,
			sections     = excluded.sections,
			financials   = excluded.financials,
			warnings     = excluded.warnings,
			document_id  = excluded.document_id,
			extracted_at = excluded.extracted_at`,
		rec.CompanyID.String(), rec.CompanyName, rec.Currency,
		string(sections), string(financials), string(warnings),
		rec.SourceDocumentID.String(), rec.ExtractedAt.Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("put record: %v: %w", err, common.ErrStorageFault)
	}

	// Keep the company row's display name in sync with the extracted one.
	if rec.CompanyName != "" {
		if _, err := tx.ExecContext(ctx,
			`UPDATE companies SET name = ? WHERE id = ?`,
			rec.CompanyName, rec.CompanyID.String()); err != nil {
			return fmt.Errorf("sync company name: %v: %w", err, common.ErrStorageFault)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit record: %v: %w", err, common.ErrStorageFault)
	}
	r.log.Info("record committed",
		"company_id", rec.CompanyID,
		"document_id", rec.SourceDocumentID,
		"financial_years", len(rec.Financials),
	)
	return nil
}

func (r *recordRepository) Get(ctx context.Context, companyID uuid.UUID) (*entity.ExtractionRecord, error) {
	var (
		rec         entity.ExtractionRecord
		sections    string
		financials  string
		warnings    string
		documentID  string
		extractedAt string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT company_name, currency, sections, financials, warnings, document_id, extracted_at
		FROM records WHERE company_id = ?`, companyID.String(),
	).Scan(&rec.CompanyName, &rec.Currency, &sections, &financials, &warnings, &documentID, &extractedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record for company %s: %w", companyID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %v: %w", err, common.ErrStorageFault)
	}

	rec.CompanyID = companyID
	if err := json.Unmarshal([]byte(sections), &rec.Sections); err != nil {
		return nil, fmt.Errorf("decode sections: %v: %w", err, common.ErrStorageFault)
	}
	if err := json.Unmarshal([]byte(financials), &rec.Financials); err != nil {
		return nil, fmt.Errorf("decode financials: %v: %w", err, common.ErrStorageFault)
	}
	if warnings != "" {
		_ = json.Unmarshal([]byte(warnings), &rec.Warnings)
	}
	if id, err := uuid.Parse(documentID); err == nil {
		rec.SourceDocumentID = id
	}
	rec.ExtractedAt, _ = parseTime(extractedAt)
	return &rec, nil
}

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

type DocumentRepository interface {
	Create(ctx context.Context, doc entity.SourceDocument) error
	Get(ctx context.Context, id uuid.UUID) (entity.SourceDocument, error)
	ListByCompany(ctx context.Context, companyID uuid.UUID) ([]entity.SourceDocument, error)
}

type documentRepository struct {
	db  *sql.DB
	log *slog.Logger
}

func NewDocumentRepository(db *sql.DB, logger *slog.Logger) DocumentRepository {
	return &documentRepository{db: db, log: logger}
}

func (r *documentRepository) Create(ctx context.Context, doc entity.SourceDocument) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO documents (id, company_id, path, page_count, size_bytes, uploaded_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		doc.ID.String(), doc.CompanyID.String(), doc.Path,
		doc.PageCount, doc.SizeBytes, doc.UploadedAt.Format(timeLayout),
	)
	if err != nil {
		r.log.Error("create document failed", "document_id", doc.ID, "error", err)
		return fmt.Errorf("create document: %v: %w", err, common.ErrStorageFault)
	}
	return nil
}

func (r *documentRepository) Get(ctx context.Context, id uuid.UUID) (entity.SourceDocument, error) {
	var (
		doc        entity.SourceDocument
		companyID  string
		uploadedAt string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT company_id, path, page_count, size_bytes, uploaded_at
		FROM documents WHERE id = ?`, id.String(),
	).Scan(&companyID, &doc.Path, &doc.PageCount, &doc.SizeBytes, &uploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.SourceDocument{}, fmt.Errorf("document %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return entity.SourceDocument{}, fmt.Errorf("get document: %v: %w", err, common.ErrStorageFault)
	}
	doc.ID = id
	doc.CompanyID, _ = uuid.Parse(companyID)
	doc.UploadedAt, _ = parseTime(uploadedAt)
	return doc, nil
}

func (r *documentRepository) ListByCompany(ctx context.Context, companyID uuid.UUID) ([]entity.SourceDocument, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, path, page_count, size_bytes, uploaded_at
		FROM documents WHERE company_id = ? ORDER BY uploaded_at`, companyID.String())
	if err != nil {
		return nil, fmt.Errorf("list documents: %v: %w", err, common.ErrStorageFault)
	}
	defer rows.Close()

	var out []entity.SourceDocument
	for rows.Next() {
		var (
			idStr      string
			doc        entity.SourceDocument
			uploadedAt string
		)
		if err := rows.Scan(&idStr, &doc.Path, &doc.PageCount, &doc.SizeBytes, &uploadedAt); err != nil {
			return nil, fmt.Errorf("scan document: %v: %w", err, common.ErrStorageFault)
		}
		doc.ID, _ = uuid.Parse(idStr)
		doc.CompanyID = companyID
		doc.UploadedAt, _ = parseTime(uploadedAt)
		out = append(out, doc)
	}
	return out, rows.Err()
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

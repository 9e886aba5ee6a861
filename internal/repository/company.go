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

const timeLayout = time.RFC3339Nano

type CompanyRepository interface {
	Create(ctx context.Context, name string) (*entity.Company, error)
	Get(ctx context.Context, id uuid.UUID) (*entity.Company, error)
	Rename(ctx context.Context, id uuid.UUID, name string) error
	List(ctx context.Context) ([]*entity.CompanySummary, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type companyRepository struct {
	db  *sql.DB
	log *slog.Logger
}

func NewCompanyRepository(db *sql.DB, logger *slog.Logger) CompanyRepository {
	return &companyRepository{db: db, log: logger}
}

func (r *companyRepository) Create(ctx context.Context, name string) (*entity.Company, error) {
	c := &entity.Company{
		ID:        uuid.New(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO companies (id, name, created_at) VALUES (?, ?, ?)`,
		c.ID.String(), c.Name, c.CreatedAt.Format(timeLayout),
	)
	if err != nil {
		r.log.Error("create company failed", "error", err)
		return nil, fmt.Errorf("create company: %v: %w", err, common.ErrStorageFault)
	}
	r.log.Info("company created", "company_id", c.ID, "name", c.Name)
	return c, nil
}

func (r *companyRepository) Get(ctx context.Context, id uuid.UUID) (*entity.Company, error) {
	var (
		c         entity.Company
		idStr     string
		createdAt string
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM companies WHERE id = ?`, id.String(),
	).Scan(&idStr, &c.Name, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("company %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get company: %v: %w", err, common.ErrStorageFault)
	}
	c.ID = id
	c.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return &c, nil
}

func (r *companyRepository) Rename(ctx context.Context, id uuid.UUID, name string) error {
	if name == "" {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE companies SET name = ? WHERE id = ?`, name, id.String())
	if err != nil {
		return fmt.Errorf("rename company: %v: %w", err, common.ErrStorageFault)
	}
	return nil
}

func (r *companyRepository) List(ctx context.Context) ([]*entity.CompanySummary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, COALESCE(NULLIF(r.company_name, ''), c.name), r.extracted_at
		FROM companies c
		LEFT JOIN records r ON r.company_id = c.id
		ORDER BY c.created_at`)
	if err != nil {
		return nil, fmt.Errorf("list companies: %v: %w", err, common.ErrStorageFault)
	}
	defer rows.Close()

	var out []*entity.CompanySummary
	for rows.Next() {
		var (
			idStr       string
			name        string
			extractedAt sql.NullString
		)
		if err := rows.Scan(&idStr, &name, &extractedAt); err != nil {
			return nil, fmt.Errorf("scan company: %v: %w", err, common.ErrStorageFault)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		s := &entity.CompanySummary{ID: id, Name: name}
		if extractedAt.Valid {
			if t, err := time.Parse(timeLayout, extractedAt.String); err == nil {
				s.ExtractedAt = &t
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *companyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM companies WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete company: %v: %w", err, common.ErrStorageFault)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("company %s: %w", id, common.ErrNotFound)
	}
	r.log.Info("company deleted", "company_id", id)
	return nil
}

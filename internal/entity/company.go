package entity

import (
	"time"

	"github.com/google/uuid"
)

// Company is created on first document upload and owns at most one current
// extraction record.
type Company struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// CompanySummary is the listing shape: one row per company, with the commit
// time of its current record when one exists.
type CompanySummary struct {
	ID          uuid.UUID  `json:"id"`
	Name        string     `json:"name"`
	ExtractedAt *time.Time `json:"extracted_at,omitempty"`
}

// SourceDocument is an uploaded PDF. Immutable once stored; a re-upload stores
// a new document rather than mutating this one.
type SourceDocument struct {
	ID         uuid.UUID `json:"id"`
	CompanyID  uuid.UUID `json:"company_id"`
	Path       string    `json:"path"`
	PageCount  int       `json:"page_count"`
	SizeBytes  int64     `json:"size_bytes"`
	UploadedAt time.Time `json:"uploaded_at"`
}

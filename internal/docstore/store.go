// Package docstore persists raw uploaded PDFs on durable storage, keyed by
// company. Documents are immutable: a re-upload stores a new file and the old
// one is superseded, never mutated.
package docstore

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/aipe-tech/dataextract/internal/common"
	"github.com/aipe-tech/dataextract/internal/entity"
)

// PageCounter reports the page count of a PDF payload, or an error when the
// payload is not a readable PDF.
type PageCounter func(data []byte) (int, error)

// Store is an explicitly constructed storage handle: opened at process start,
// passed into the pipeline, never ambient.
type Store struct {
	root    string
	counter PageCounter
	log     *slog.Logger
}

type Option func(*Store)

// WithPageCounter overrides the pdfcpu-backed default.
func WithPageCounter(c PageCounter) Option {
	return func(s *Store) {
		if c != nil {
			s.counter = c
		}
	}
}

// Open ensures the storage root exists and returns a handle.
func Open(root string, logger *slog.Logger, opts ...Option) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{root: root, counter: pdfPageCount, log: logger}
	for _, o := range opts {
		o(s)
	}
	if err := os.MkdirAll(filepath.Join(root, "pdf"), 0o755); err != nil {
		return nil, fmt.Errorf("docstore: create root: %w", common.ErrStorageFault)
	}
	return s, nil
}

// Put validates and persists a PDF payload for a company. Validation failures
// surface as ErrInvalidDocument before any bytes hit the disk.
func (s *Store) Put(companyID uuid.UUID, data []byte) (entity.SourceDocument, error) {
	if len(data) == 0 {
		return entity.SourceDocument{}, fmt.Errorf("docstore: empty payload: %w", common.ErrInvalidDocument)
	}
	pages, err := s.counter(data)
	if err != nil {
		return entity.SourceDocument{}, fmt.Errorf("docstore: unreadable pdf: %v: %w", err, common.ErrInvalidDocument)
	}
	if pages < 1 {
		return entity.SourceDocument{}, fmt.Errorf("docstore: zero pages: %w", common.ErrInvalidDocument)
	}

	doc := entity.SourceDocument{
		ID:         uuid.New(),
		CompanyID:  companyID,
		PageCount:  pages,
		SizeBytes:  int64(len(data)),
		UploadedAt: time.Now().UTC(),
	}
	doc.Path = filepath.Join(s.root, "pdf", doc.ID.String()+".pdf")

	// Write to a temp file then rename so a crash never leaves a torn PDF
	// under the final name.
	tmp := doc.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return entity.SourceDocument{}, fmt.Errorf("docstore: write: %v: %w", err, common.ErrStorageFault)
	}
	if err := os.Rename(tmp, doc.Path); err != nil {
		_ = os.Remove(tmp)
		return entity.SourceDocument{}, fmt.Errorf("docstore: rename: %v: %w", err, common.ErrStorageFault)
	}

	s.log.Info("docstore.put",
		"company_id", companyID,
		"document_id", doc.ID,
		"pages", pages,
		"size_bytes", doc.SizeBytes,
	)
	return doc, nil
}

// Read returns the stored bytes for a document.
func (s *Store) Read(doc entity.SourceDocument) ([]byte, error) {
	b, err := os.ReadFile(doc.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("docstore: %s: %w", doc.ID, common.ErrNotFound)
		}
		return nil, fmt.Errorf("docstore: read: %v: %w", err, common.ErrStorageFault)
	}
	return b, nil
}

// Remove deletes the stored file; used on explicit company deletion.
func (s *Store) Remove(doc entity.SourceDocument) error {
	if err := os.Remove(doc.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("docstore: remove: %v: %w", err, common.ErrStorageFault)
	}
	return nil
}

func pdfPageCount(data []byte) (int, error) {
	conf := model.NewDefaultConfiguration()
	return api.PageCount(bytes.NewReader(data), conf)
}

package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/aipe-tech/dataextract/internal/common"
	"github.com/aipe-tech/dataextract/internal/core/async"
	"github.com/aipe-tech/dataextract/internal/entity"
)

type createCompanyRequest struct {
	Name string `json:"name"`
}

// createCompany assigns an id; the name is optional and gets superseded by the
// extracted one once a document commits.
func (s *Server) createCompany(c *gin.Context) {
	var req createCompanyRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "body must be JSON"})
			return
		}
	}

	company, err := s.companies.Create(c.Request.Context(), strings.TrimSpace(req.Name))
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, company)
}

func (s *Server) listCompanies(c *gin.Context) {
	summaries, err := s.companies.List(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"companies": summaries})
}

// deleteCompany removes the company's stored PDFs along with its rows; a file
// that fails to unlink is logged but does not block the deletion.
func (s *Server) deleteCompany(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	docs, err := s.documents.ListByCompany(c.Request.Context(), id)
	if err != nil {
		s.renderError(c, err)
		return
	}
	for _, doc := range docs {
		if err := s.store.Remove(doc); err != nil {
			s.logger.Error("removing stored pdf failed",
				"company_id", id, "document_id", doc.ID, "error", err)
		}
	}
	if err := s.companies.Delete(c.Request.Context(), id); err != nil {
		s.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// submitDocument accepts a PDF upload and queues an extraction job. The call
// returns immediately with 202 and a job id to poll; a second upload for the
// same company while one is running gets 409.
func (s *Server) submitDocument(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if _, err := s.companies.Get(c.Request.Context(), id); err != nil {
		s.renderError(c, err)
		return
	}

	file, header, err := c.Request.FormFile("document")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'document' is required"})
		return
	}
	defer file.Close()

	if s.maxUpload > 0 && header.Size > s.maxUpload {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("document exceeds %d bytes", s.maxUpload),
		})
		return
	}
	var reader io.Reader = file
	if s.maxUpload > 0 {
		reader = io.LimitReader(file, s.maxUpload+1)
	}
	pdf, err := io.ReadAll(reader)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reading upload failed"})
		return
	}

	job, err := s.jobs.Create(c.Request.Context(), id)
	if err != nil {
		s.renderError(c, err)
		return
	}
	if err := s.queue.Enqueue(c.Request.Context(), async.Task{Job: job, PDF: pdf}); err != nil {
		if ferr := s.jobs.Fail(c.Request.Context(), job.ID, common.ReasonFor(err)); ferr != nil {
			s.logger.Error("marking rejected job failed", "job_id", job.ID, "error", ferr)
		}
		s.renderError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID, "state": job.State})
}

func (s *Server) listDocuments(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	if _, err := s.companies.Get(c.Request.Context(), id); err != nil {
		s.renderError(c, err)
		return
	}
	docs, err := s.documents.ListByCompany(c.Request.Context(), id)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": docs})
}

// jobResponse is the poll payload: job fields flat, plus the committed record
// once the state machine has finished.
type jobResponse struct {
	*entity.Job
	Record *entity.ExtractionRecord `json:"record,omitempty"`
}

func (s *Server) getJob(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	job, err := s.jobs.Get(c.Request.Context(), id)
	if err != nil {
		s.renderError(c, err)
		return
	}

	resp := jobResponse{Job: job}
	if job.State == entity.JobStateCommitted {
		if rec, err := s.records.Get(c.Request.Context(), job.CompanyID); err == nil {
			resp.Record = rec
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) getRecord(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	rec, err := s.records.Get(c.Request.Context(), id)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) exportRecord(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	format := c.DefaultQuery("format", "tsv")
	switch format {
	case "tsv":
		data, err := s.exporter.ExportTSV(c.Request.Context(), id)
		if err != nil {
			s.renderError(c, err)
			return
		}
		c.Header("Content-Disposition", attachment(id, "tsv"))
		c.Data(http.StatusOK, "text/tab-separated-values; charset=utf-8", data)
	case "xlsx":
		data, err := s.exporter.ExportXLSX(c.Request.Context(), id)
		if err != nil {
			s.renderError(c, err)
			return
		}
		c.Header("Content-Disposition", attachment(id, "xlsx"))
		c.Data(http.StatusOK,
			"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be tsv or xlsx"})
	}
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

func attachment(id uuid.UUID, ext string) string {
	name := fmt.Sprintf("company-%s-%s.%s", id, time.Now().UTC().Format("20060102"), ext)
	return fmt.Sprintf("attachment; filename=%q", name)
}

// renderError maps the error taxonomy onto HTTP status codes.
func (s *Server) renderError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, common.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, common.ErrBusy):
		status = http.StatusConflict
	case errors.Is(err, common.ErrInvalidDocument), errors.Is(err, common.ErrInvalidInput):
		status = http.StatusBadRequest
	case errors.Is(err, common.ErrServiceUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error(), "reason": common.ReasonFor(err)})
}

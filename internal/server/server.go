// Package server exposes the extraction pipeline over HTTP.
package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/aipe-tech/dataextract/internal/core/async"
	"github.com/aipe-tech/dataextract/internal/docstore"
	"github.com/aipe-tech/dataextract/internal/export"
	"github.com/aipe-tech/dataextract/internal/repository"
)

// Server holds the state for the REST API.
type Server struct {
	queue     *async.JobQueue
	store     *docstore.Store
	exporter  *export.Service
	companies repository.CompanyRepository
	documents repository.DocumentRepository
	records   repository.RecordRepository
	jobs      repository.JobRepository
	logger    *slog.Logger
	maxUpload int64
	router    *gin.Engine
}

func New(
	queue *async.JobQueue,
	store *docstore.Store,
	exporter *export.Service,
	companies repository.CompanyRepository,
	documents repository.DocumentRepository,
	records repository.RecordRepository,
	jobs repository.JobRepository,
	logger *slog.Logger,
	maxUpload int64,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		queue:     queue,
		store:     store,
		exporter:  exporter,
		companies: companies,
		documents: documents,
		records:   records,
		jobs:      jobs,
		logger:    logger,
		maxUpload: maxUpload,
		router:    gin.New(),
	}
	s.router.Use(gin.Recovery())
	s.setupRoutes()
	return s
}

// Handler returns the configured HTTP handler, for http.Server and tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.healthCheck)

	v1 := s.router.Group("/v1")
	v1.POST("/companies", s.createCompany)
	v1.GET("/companies", s.listCompanies)
	v1.DELETE("/companies/:id", s.deleteCompany)
	v1.POST("/companies/:id/documents", s.submitDocument)
	v1.GET("/companies/:id/documents", s.listDocuments)
	v1.GET("/companies/:id/record", s.getRecord)
	v1.GET("/companies/:id/export", s.exportRecord)
	v1.GET("/jobs/:id", s.getJob)
}

func (s *Server) healthCheck(c *gin.Context) {
	c.Status(http.StatusOK)
}

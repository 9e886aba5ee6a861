package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aipe-tech/dataextract/internal/common"
	"github.com/aipe-tech/dataextract/internal/core/async"
	"github.com/aipe-tech/dataextract/internal/docstore"
	"github.com/aipe-tech/dataextract/internal/entity"
	"github.com/aipe-tech/dataextract/internal/export"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type memCompanies struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*entity.Company
}

func newMemCompanies() *memCompanies {
	return &memCompanies{rows: make(map[uuid.UUID]*entity.Company)}
}
func (m *memCompanies) Create(_ context.Context, name string) (*entity.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &entity.Company{ID: uuid.New(), Name: name, CreatedAt: time.Now().UTC()}
	m.rows[c.ID] = c
	return c, nil
}
func (m *memCompanies) Get(_ context.Context, id uuid.UUID) (*entity.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.rows[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return c, nil
}
func (m *memCompanies) Rename(_ context.Context, id uuid.UUID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.rows[id]; ok {
		c.Name = name
	}
	return nil
}
func (m *memCompanies) List(_ context.Context) ([]*entity.CompanySummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.CompanySummary
	for _, c := range m.rows {
		out = append(out, &entity.CompanySummary{ID: c.ID, Name: c.Name})
	}
	return out, nil
}
func (m *memCompanies) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[id]; !ok {
		return common.ErrNotFound
	}
	delete(m.rows, id)
	return nil
}

type memDocuments struct {
	mu   sync.Mutex
	rows map[uuid.UUID]entity.SourceDocument
}

func newMemDocuments() *memDocuments {
	return &memDocuments{rows: make(map[uuid.UUID]entity.SourceDocument)}
}
func (m *memDocuments) Create(_ context.Context, doc entity.SourceDocument) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[doc.ID] = doc
	return nil
}
func (m *memDocuments) Get(_ context.Context, id uuid.UUID) (entity.SourceDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.rows[id]
	if !ok {
		return entity.SourceDocument{}, common.ErrNotFound
	}
	return doc, nil
}
func (m *memDocuments) ListByCompany(_ context.Context, companyID uuid.UUID) ([]entity.SourceDocument, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entity.SourceDocument
	for _, doc := range m.rows {
		if doc.CompanyID == companyID {
			out = append(out, doc)
		}
	}
	return out, nil
}

type memRecords struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*entity.ExtractionRecord
}

func newMemRecords() *memRecords {
	return &memRecords{rows: make(map[uuid.UUID]*entity.ExtractionRecord)}
}
func (m *memRecords) Put(_ context.Context, rec *entity.ExtractionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[rec.CompanyID] = rec
	return nil
}
func (m *memRecords) Get(_ context.Context, companyID uuid.UUID) (*entity.ExtractionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.rows[companyID]
	if !ok {
		return nil, common.ErrNotFound
	}
	return rec, nil
}

type memJobs struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*entity.Job
}

func newMemJobs() *memJobs { return &memJobs{rows: make(map[uuid.UUID]*entity.Job)} }
func (m *memJobs) Create(_ context.Context, companyID uuid.UUID) (*entity.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := &entity.Job{ID: uuid.New(), CompanyID: companyID, State: entity.JobStatePending}
	m.rows[j.ID] = j
	return j, nil
}
func (m *memJobs) Get(_ context.Context, id uuid.UUID) (*entity.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.rows[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	cp := *j
	return &cp, nil
}
func (m *memJobs) SetState(_ context.Context, id uuid.UUID, state entity.JobState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id].State = state
	return nil
}
func (m *memJobs) SetDocument(_ context.Context, id, documentID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id].DocumentID = documentID
	return nil
}
func (m *memJobs) SetAttempts(_ context.Context, id uuid.UUID, attempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id].Attempts = attempts
	return nil
}
func (m *memJobs) Fail(_ context.Context, id uuid.UUID, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[id].State = entity.JobStateFailed
	m.rows[id].Reason = reason
	return nil
}

// blockingRunner parks jobs until released so tests can observe the busy
// window.
type blockingRunner struct {
	started chan struct{}
	release chan struct{}
}

func (r *blockingRunner) Run(context.Context, *entity.Job, []byte) error {
	r.started <- struct{}{}
	<-r.release
	return nil
}

type testEnv struct {
	srv       *Server
	store     *docstore.Store
	companies *memCompanies
	documents *memDocuments
	records   *memRecords
	jobs      *memJobs
	runner    *blockingRunner
	queue     *async.JobQueue
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	env := &testEnv{
		companies: newMemCompanies(),
		documents: newMemDocuments(),
		records:   newMemRecords(),
		jobs:      newMemJobs(),
		runner: &blockingRunner{
			started: make(chan struct{}, 16),
			release: make(chan struct{}),
		},
	}
	env.queue = async.NewJobQueue(env.runner, logger, async.WithWorkers(2))
	t.Cleanup(func() {
		select {
		case <-env.runner.release:
		default:
			close(env.runner.release)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		env.queue.Shutdown(ctx)
	})

	store, err := docstore.Open(t.TempDir(), logger,
		docstore.WithPageCounter(func([]byte) (int, error) { return 1, nil }))
	require.NoError(t, err)
	env.store = store

	exporter := export.NewService(env.records, logger)
	env.srv = New(env.queue, store, exporter, env.companies, env.documents, env.records, env.jobs, logger, 1<<20)
	return env
}

func (env *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	env.srv.Handler().ServeHTTP(w, req)
	return w
}

func pdfUpload(t *testing.T) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("document", "upload.pdf")
	require.NoError(t, err)
	_, err = fw.Write([]byte("%PDF-1.7 payload"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestCreateCompany(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/v1/companies",
		strings.NewReader(`{"name": "Acme GmbH"}`), "application/json")
	require.Equal(t, http.StatusCreated, w.Code)

	var c entity.Company
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &c))
	assert.Equal(t, "Acme GmbH", c.Name)
	assert.NotEqual(t, uuid.Nil, c.ID)
}

func TestCreateCompanyNameOptional(t *testing.T) {
	env := newTestEnv(t)

	// No body and an empty name both get an id assigned.
	w := env.do(t, http.MethodPost, "/v1/companies", nil, "")
	assert.Equal(t, http.StatusCreated, w.Code)
	w = env.do(t, http.MethodPost, "/v1/companies", strings.NewReader(`{}`), "application/json")
	assert.Equal(t, http.StatusCreated, w.Code)

	w = env.do(t, http.MethodPost, "/v1/companies", strings.NewReader(`not json`), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmitDocumentAccepted(t *testing.T) {
	env := newTestEnv(t)
	c, err := env.companies.Create(context.Background(), "Acme")
	require.NoError(t, err)

	body, contentType := pdfUpload(t)
	w := env.do(t, http.MethodPost, "/v1/companies/"+c.ID.String()+"/documents", body, contentType)
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp struct {
		JobID uuid.UUID `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEqual(t, uuid.Nil, resp.JobID)

	// The job is pollable immediately.
	w = env.do(t, http.MethodGet, "/v1/jobs/"+resp.JobID.String(), nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSubmitDocumentBusyConflict(t *testing.T) {
	env := newTestEnv(t)
	c, err := env.companies.Create(context.Background(), "Acme")
	require.NoError(t, err)

	body, contentType := pdfUpload(t)
	w := env.do(t, http.MethodPost, "/v1/companies/"+c.ID.String()+"/documents", body, contentType)
	require.Equal(t, http.StatusAccepted, w.Code)
	<-env.runner.started

	body, contentType = pdfUpload(t)
	w = env.do(t, http.MethodPost, "/v1/companies/"+c.ID.String()+"/documents", body, contentType)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), common.ReasonBusy)
}

func TestSubmitDocumentUnknownCompany(t *testing.T) {
	env := newTestEnv(t)
	body, contentType := pdfUpload(t)
	w := env.do(t, http.MethodPost, "/v1/companies/"+uuid.NewString()+"/documents", body, contentType)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubmitDocumentMissingFile(t *testing.T) {
	env := newTestEnv(t)
	c, err := env.companies.Create(context.Background(), "Acme")
	require.NoError(t, err)

	w := env.do(t, http.MethodPost, "/v1/companies/"+c.ID.String()+"/documents",
		strings.NewReader("{}"), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetJobIncludesRecordWhenCommitted(t *testing.T) {
	env := newTestEnv(t)
	companyID := uuid.New()

	job, err := env.jobs.Create(context.Background(), companyID)
	require.NoError(t, err)
	require.NoError(t, env.jobs.SetState(context.Background(), job.ID, entity.JobStateCommitted))
	require.NoError(t, env.records.Put(context.Background(), &entity.ExtractionRecord{
		CompanyID:   companyID,
		CompanyName: "Acme GmbH",
		Sections:    map[entity.SectionName]entity.SectionContent{},
	}))

	w := env.do(t, http.MethodGet, "/v1/jobs/"+job.ID.String(), nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		State  entity.JobState `json:"state"`
		Record *struct {
			CompanyName string `json:"company_name"`
		} `json:"record"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, entity.JobStateCommitted, resp.State)
	require.NotNil(t, resp.Record)
	assert.Equal(t, "Acme GmbH", resp.Record.CompanyName)
}

func TestGetJobNotFound(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/v1/jobs/"+uuid.NewString(), nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodGet, "/v1/jobs/not-a-uuid", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetRecord(t *testing.T) {
	env := newTestEnv(t)
	companyID := uuid.New()

	w := env.do(t, http.MethodGet, "/v1/companies/"+companyID.String()+"/record", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	require.NoError(t, env.records.Put(context.Background(), &entity.ExtractionRecord{
		CompanyID:   companyID,
		CompanyName: "Acme GmbH",
		Sections:    map[entity.SectionName]entity.SectionContent{},
	}))
	w = env.do(t, http.MethodGet, "/v1/companies/"+companyID.String()+"/record", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Acme GmbH")
}

func TestExportFormats(t *testing.T) {
	env := newTestEnv(t)
	companyID := uuid.New()
	rev := 10.0
	require.NoError(t, env.records.Put(context.Background(), &entity.ExtractionRecord{
		CompanyID:   companyID,
		CompanyName: "Acme GmbH",
		Currency:    "EURm",
		Sections:    map[entity.SectionName]entity.SectionContent{},
		Financials:  []entity.FinancialDataPoint{{Year: 2023, Revenue: &rev}},
	}))

	w := env.do(t, http.MethodGet, "/v1/companies/"+companyID.String()+"/export", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "tab-separated-values")
	assert.Contains(t, w.Body.String(), "Revenue")

	w = env.do(t, http.MethodGet, "/v1/companies/"+companyID.String()+"/export?format=xlsx", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "spreadsheetml")

	w = env.do(t, http.MethodGet, "/v1/companies/"+companyID.String()+"/export?format=pdf", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteCompany(t *testing.T) {
	env := newTestEnv(t)
	c, err := env.companies.Create(context.Background(), "Acme")
	require.NoError(t, err)

	w := env.do(t, http.MethodDelete, "/v1/companies/"+c.ID.String(), nil, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = env.do(t, http.MethodDelete, "/v1/companies/"+c.ID.String(), nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeleteCompanyRemovesStoredFiles(t *testing.T) {
	env := newTestEnv(t)
	c, err := env.companies.Create(context.Background(), "Acme")
	require.NoError(t, err)

	doc, err := env.store.Put(c.ID, []byte("%PDF-1.7 payload"))
	require.NoError(t, err)
	require.NoError(t, env.documents.Create(context.Background(), doc))
	_, err = os.Stat(doc.Path)
	require.NoError(t, err)

	w := env.do(t, http.MethodDelete, "/v1/companies/"+c.ID.String(), nil, "")
	require.Equal(t, http.StatusNoContent, w.Code)

	// The PDF is gone from disk along with the company.
	_, err = os.Stat(doc.Path)
	assert.True(t, os.IsNotExist(err))
}

func TestListCompanies(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.companies.Create(context.Background(), "Acme")
	require.NoError(t, err)

	w := env.do(t, http.MethodGet, "/v1/companies", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Acme")
}

package handler

import (
	"context"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kb-admin-api/internal/models"
	appErrors "github.com/noah-isme/kb-admin-api/pkg/errors"
)

type documentServiceMock struct {
	doc    *models.Document
	docs   []models.Document
	url    string
	events []models.LifecycleEvent
	err    error

	lastFilter models.DocumentFilter
	lastID     string
}

func (m *documentServiceMock) Get(_ context.Context, id string) (*models.Document, error) {
	m.lastID = id
	return m.doc, m.err
}

func (m *documentServiceMock) List(_ context.Context, filter models.DocumentFilter) ([]models.Document, error) {
	m.lastFilter = filter
	return m.docs, m.err
}

func (m *documentServiceMock) DownloadURL(_ context.Context, id string) (string, error) {
	m.lastID = id
	return m.url, m.err
}

func (m *documentServiceMock) Events(_ context.Context, documentID string, _, _ int) ([]models.LifecycleEvent, error) {
	m.lastID = documentID
	return m.events, m.err
}

type duplicateDetectorMock struct {
	result *models.DuplicateCheckResult
	err    error

	lastKB   string
	lastName string
	lastHash string
}

func (m *duplicateDetectorMock) Check(_ context.Context, kbID, filename, contentHash string, _ *models.JWTClaims) (*models.DuplicateCheckResult, error) {
	m.lastKB = kbID
	m.lastName = filename
	m.lastHash = contentHash
	return m.result, m.err
}

func TestDocumentHandlerList(t *testing.T) {
	mockSvc := &documentServiceMock{docs: []models.Document{{ID: "doc-1", KBID: "kb-1"}}}
	handler := NewDocumentHandler(mockSvc, &duplicateDetectorMock{})

	c, w := testContext(t, http.MethodGet, "/kbs/kb-1/documents?status=archived&includeArchived=true&limit=10&page=3", nil)
	c.Params = gin.Params{{Key: "kbId", Value: "kb-1"}}

	handler.List(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "kb-1", mockSvc.lastFilter.KBID)
	assert.Equal(t, models.StatusArchived, mockSvc.lastFilter.Status)
	assert.True(t, mockSvc.lastFilter.IncludeArchived)
	assert.Equal(t, 10, mockSvc.lastFilter.Limit)
	assert.Equal(t, 20, mockSvc.lastFilter.Offset)
}

func TestDocumentHandlerGetNotFound(t *testing.T) {
	mockSvc := &documentServiceMock{err: appErrors.ErrNotFound}
	handler := NewDocumentHandler(mockSvc, &duplicateDetectorMock{})

	c, w := testContext(t, http.MethodGet, "/documents/ghost", nil)
	c.Params = gin.Params{{Key: "id", Value: "ghost"}}

	handler.Get(c)

	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestDocumentHandlerDownload(t *testing.T) {
	mockSvc := &documentServiceMock{url: "https://blob.test/kbs/kb-1/doc-1.pdf"}
	handler := NewDocumentHandler(mockSvc, &duplicateDetectorMock{})

	c, w := testContext(t, http.MethodGet, "/documents/doc-1/download", nil)
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}

	handler.Download(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "https://blob.test/kbs/kb-1/doc-1.pdf")
}

func TestDocumentHandlerEvents(t *testing.T) {
	mockSvc := &documentServiceMock{events: []models.LifecycleEvent{{ID: "ev-1", Action: models.EventActionPurged}}}
	handler := NewDocumentHandler(mockSvc, &duplicateDetectorMock{})

	c, w := testContext(t, http.MethodGet, "/documents/doc-1/events", nil)
	c.Params = gin.Params{{Key: "id", Value: "doc-1"}}

	handler.Events(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "doc-1", mockSvc.lastID)
	assert.Contains(t, w.Body.String(), "ev-1")
}

func TestDocumentHandlerDuplicateCheck(t *testing.T) {
	mockDup := &duplicateDetectorMock{result: &models.DuplicateCheckResult{Conflict: true, ExistingID: "doc-9"}}
	handler := NewDocumentHandler(&documentServiceMock{}, mockDup)

	c, w := testContext(t, http.MethodGet, "/kbs/kb-1/duplicate-check?filename=handbook.pdf&contentHash=abc", nil)
	c.Params = gin.Params{{Key: "kbId", Value: "kb-1"}}

	handler.DuplicateCheck(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "kb-1", mockDup.lastKB)
	assert.Equal(t, "handbook.pdf", mockDup.lastName)
	assert.Equal(t, "abc", mockDup.lastHash)
	assert.Contains(t, w.Body.String(), "doc-9")
}

func TestDocumentHandlerDuplicateCheckRequiresFilename(t *testing.T) {
	handler := NewDocumentHandler(&documentServiceMock{}, &duplicateDetectorMock{})

	c, w := testContext(t, http.MethodGet, "/kbs/kb-1/duplicate-check", nil)
	c.Params = gin.Params{{Key: "kbId", Value: "kb-1"}}

	handler.DuplicateCheck(c)

	require.Equal(t, http.StatusBadRequest, w.Code)
}

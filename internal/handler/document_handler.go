package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/kb-admin-api/internal/dto"
	"github.com/noah-isme/kb-admin-api/internal/models"
	appErrors "github.com/noah-isme/kb-admin-api/pkg/errors"
	"github.com/noah-isme/kb-admin-api/pkg/response"
)

type documentService interface {
	Get(ctx context.Context, id string) (*models.Document, error)
	List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error)
	DownloadURL(ctx context.Context, id string) (string, error)
	Events(ctx context.Context, documentID string, limit, offset int) ([]models.LifecycleEvent, error)
}

type duplicateDetector interface {
	Check(ctx context.Context, kbID, filename, contentHash string, actor *models.JWTClaims) (*models.DuplicateCheckResult, error)
}

// DocumentHandler exposes the read-side document endpoints.
type DocumentHandler struct {
	documents  documentService
	duplicates duplicateDetector
}

// NewDocumentHandler constructs DocumentHandler.
func NewDocumentHandler(documents documentService, duplicates duplicateDetector) *DocumentHandler {
	return &DocumentHandler{documents: documents, duplicates: duplicates}
}

// List returns documents within a knowledge base.
func (h *DocumentHandler) List(c *gin.Context) {
	filter := models.DocumentFilter{KBID: c.Param("kbId")}
	filter.Status = models.DocumentStatus(c.Query("status"))
	filter.IncludeArchived = c.Query("includeArchived") == "true"
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "50")); err == nil {
		filter.Limit = limit
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil && page > 1 {
		filter.Offset = (page - 1) * filter.Limit
	}

	docs, err := h.documents.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, docs, nil)
}

// Get returns a single document by id.
func (h *DocumentHandler) Get(c *gin.Context) {
	doc, err := h.documents.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// Download mints a presigned link for the raw file.
func (h *DocumentHandler) Download(c *gin.Context) {
	id := c.Param("id")
	url, err := h.documents.DownloadURL(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.DocumentDownloadResponse{DocumentID: id, DownloadURL: url}, nil)
}

// Events returns the lifecycle audit trail for a document id.
func (h *DocumentHandler) Events(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	events, err := h.documents.Events(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, events, nil)
}

// DuplicateCheck answers whether a filename may enter the KB.
func (h *DocumentHandler) DuplicateCheck(c *gin.Context) {
	filename := strings.TrimSpace(c.Query("filename"))
	if filename == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "filename query parameter is required"))
		return
	}
	contentHash := strings.TrimSpace(c.Query("contentHash"))

	result, err := h.duplicates.Check(c.Request.Context(), c.Param("kbId"), filename, contentHash, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.DuplicateCheckResponse{DuplicateCheckResult: *result, Filename: filename}, nil)
}

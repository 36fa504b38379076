package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/kb-admin-api/internal/dto"
	"github.com/noah-isme/kb-admin-api/internal/models"
	"github.com/noah-isme/kb-admin-api/internal/service"
	appErrors "github.com/noah-isme/kb-admin-api/pkg/errors"
	"github.com/noah-isme/kb-admin-api/pkg/response"
)

// maxReplaceSize caps replacement uploads at 100 MiB.
const maxReplaceSize = 100 << 20

type lifecycleService interface {
	Archive(ctx context.Context, id string, actor *models.JWTClaims) (*service.LifecycleResult, error)
	Restore(ctx context.Context, id string, actor *models.JWTClaims) (*service.LifecycleResult, error)
	Purge(ctx context.Context, id string, actor *models.JWTClaims, confirm bool) (*service.LifecycleResult, error)
	Clear(ctx context.Context, id string, actor *models.JWTClaims) (*service.LifecycleResult, error)
	Replace(ctx context.Context, id string, actor *models.JWTClaims, upload service.ReplaceUpload) (*service.LifecycleResult, error)
}

type bulkService interface {
	Archive(ctx context.Context, ids []string, actor *models.JWTClaims) (*models.BulkOperationResult, error)
	Restore(ctx context.Context, ids []string, actor *models.JWTClaims) (*models.BulkOperationResult, error)
	Purge(ctx context.Context, ids []string, actor *models.JWTClaims, confirm bool) (*models.BulkOperationResult, error)
	Clear(ctx context.Context, ids []string, actor *models.JWTClaims) (*models.BulkOperationResult, error)
}

// LifecycleHandler exposes the document lifecycle endpoints.
type LifecycleHandler struct {
	lifecycle lifecycleService
	bulk      bulkService
}

// NewLifecycleHandler constructs LifecycleHandler.
func NewLifecycleHandler(lifecycle lifecycleService, bulk bulkService) *LifecycleHandler {
	return &LifecycleHandler{lifecycle: lifecycle, bulk: bulk}
}

// Archive moves a completed document out of search.
func (h *LifecycleHandler) Archive(c *gin.Context) {
	res, err := h.lifecycle.Archive(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSONWithWarnings(c, http.StatusOK, res.Document, res.Warnings)
}

// Restore brings an archived document back into search.
func (h *LifecycleHandler) Restore(c *gin.Context) {
	res, err := h.lifecycle.Restore(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSONWithWarnings(c, http.StatusOK, res.Document, res.Warnings)
}

// Purge permanently deletes an archived document. Requires ?confirm=true.
func (h *LifecycleHandler) Purge(c *gin.Context) {
	confirm := c.Query("confirm") == "true"
	res, err := h.lifecycle.Purge(c.Request.Context(), c.Param("id"), claimsFromContext(c), confirm)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSONWithWarnings(c, http.StatusOK, gin.H{"purged": true}, res.Warnings)
}

// Clear deletes a failed document and its partial artifacts.
func (h *LifecycleHandler) Clear(c *gin.Context) {
	res, err := h.lifecycle.Clear(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSONWithWarnings(c, http.StatusOK, gin.H{"cleared": true}, res.Warnings)
}

// Replace swaps a completed document's content, keeping its id.
func (h *LifecycleHandler) Replace(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "multipart field 'file' is required"))
		return
	}
	if file.Size > maxReplaceSize {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file exceeds the 100 MiB limit"))
		return
	}
	reader, err := file.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "failed to read uploaded file"))
		return
	}
	defer reader.Close()

	upload := service.ReplaceUpload{
		Filename:    file.Filename,
		Size:        file.Size,
		ContentType: file.Header.Get("Content-Type"),
		Content:     reader,
	}
	res, err := h.lifecycle.Replace(c.Request.Context(), c.Param("id"), claimsFromContext(c), upload)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSONWithWarnings(c, http.StatusOK, res.Document, res.Warnings)
}

// BulkArchive archives many documents in one request.
func (h *LifecycleHandler) BulkArchive(c *gin.Context) {
	var req dto.BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payload"))
		return
	}
	res, err := h.bulk.Archive(c.Request.Context(), req.IDs, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// BulkRestore restores many documents in one request.
func (h *LifecycleHandler) BulkRestore(c *gin.Context) {
	var req dto.BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payload"))
		return
	}
	res, err := h.bulk.Restore(c.Request.Context(), req.IDs, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// BulkPurge purges many archived documents. Requires ?confirm=true.
func (h *LifecycleHandler) BulkPurge(c *gin.Context) {
	var req dto.BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payload"))
		return
	}
	confirm := c.Query("confirm") == "true"
	res, err := h.bulk.Purge(c.Request.Context(), req.IDs, claimsFromContext(c), confirm)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

// BulkClear clears many failed documents in one request.
func (h *LifecycleHandler) BulkClear(c *gin.Context) {
	var req dto.BulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk payload"))
		return
	}
	res, err := h.bulk.Clear(c.Request.Context(), req.IDs, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, res, nil)
}

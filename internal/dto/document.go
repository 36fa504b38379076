package dto

import "github.com/noah-isme/kb-admin-api/internal/models"

// BulkRequest names the documents targeted by a bulk lifecycle operation.
type BulkRequest struct {
	IDs []string `json:"ids" binding:"required,min=1"`
}

// DocumentDownloadResponse carries a short-lived presigned link.
type DocumentDownloadResponse struct {
	DocumentID  string `json:"documentId"`
	DownloadURL string `json:"downloadUrl"`
}

// DuplicateCheckResponse is the intake-time verdict for a candidate upload.
type DuplicateCheckResponse struct {
	models.DuplicateCheckResult
	Filename string `json:"filename"`
}

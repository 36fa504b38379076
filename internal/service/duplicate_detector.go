package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/kb-admin-api/internal/models"
	appErrors "github.com/noah-isme/kb-admin-api/pkg/errors"
)

type documentClearer interface {
	AutoClear(ctx context.Context, id string, actor *models.JWTClaims) (*LifecycleResult, error)
}

type duplicateLookup interface {
	FindActiveByName(ctx context.Context, kbID, name string) (*models.Document, error)
	FindActiveByContentHash(ctx context.Context, kbID, contentHash string) (*models.Document, error)
}

// DuplicateDetector answers the pre-upload question: may a file with this
// name enter the KB? A failed document holding the name is debris and gets
// auto-cleared; a live one is a hard conflict. Content-hash matches under a
// different name are logged for operators but never block the upload.
type DuplicateDetector struct {
	docs    duplicateLookup
	clearer documentClearer
	logger  *zap.Logger
}

func NewDuplicateDetector(docs duplicateLookup, clearer documentClearer, logger *zap.Logger) *DuplicateDetector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DuplicateDetector{docs: docs, clearer: clearer, logger: logger}
}

// Check runs the name-uniqueness and content-hash probes for an incoming file.
func (d *DuplicateDetector) Check(ctx context.Context, kbID, filename, contentHash string, actor *models.JWTClaims) (*models.DuplicateCheckResult, error) {
	existing, err := d.docs.FindActiveByName(ctx, kbID, filename)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrCriticalStore.Code, appErrors.ErrCriticalStore.Status, "duplicate check failed")
	}

	if existing != nil {
		if existing.Status == models.StatusFailed {
			if _, clearErr := d.clearer.AutoClear(ctx, existing.ID, actor); clearErr != nil {
				d.logger.Warn("auto-clear of failed duplicate did not complete",
					zap.Error(clearErr), zap.String("document_id", existing.ID), zap.String("kb_id", kbID))
				return &models.DuplicateCheckResult{Conflict: true, ExistingID: existing.ID}, nil
			}
			return &models.DuplicateCheckResult{AutoCleared: true}, nil
		}
		return &models.DuplicateCheckResult{Conflict: true, ExistingID: existing.ID}, nil
	}

	if contentHash != "" {
		same, err := d.docs.FindActiveByContentHash(ctx, kbID, contentHash)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			d.logger.Warn("content hash probe failed", zap.Error(err), zap.String("kb_id", kbID))
		} else if same != nil {
			// Same bytes under a different name is allowed, but worth a trace.
			d.logger.Info("identical content uploaded under a new name",
				zap.String("kb_id", kbID),
				zap.String("existing_id", same.ID),
				zap.String("existing_name", same.Name),
				zap.String("new_name", filename))
		}
	}

	return &models.DuplicateCheckResult{}, nil
}

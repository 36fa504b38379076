package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/kb-admin-api/internal/models"
	appErrors "github.com/noah-isme/kb-admin-api/pkg/errors"
)

type lifecycleEventLister interface {
	ListByDocument(ctx context.Context, documentID string, limit, offset int) ([]models.LifecycleEvent, error)
}

// DocumentService is the read side: listing, single-document fetch, download
// links and the audit trail. All mutation goes through LifecycleService.
type DocumentService struct {
	docs       documentStore
	events     lifecycleEventLister
	blobs      BlobStoreGateway
	logger     *zap.Logger
	presignTTL time.Duration
}

func NewDocumentService(docs documentStore, events lifecycleEventLister, blobs BlobStoreGateway, logger *zap.Logger, presignTTL time.Duration) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if presignTTL <= 0 {
		presignTTL = 15 * time.Minute
	}
	return &DocumentService{docs: docs, events: events, blobs: blobs, logger: logger, presignTTL: presignTTL}
}

// Get fetches one document by id, archived or not.
func (s *DocumentService) Get(ctx context.Context, id string) (*models.Document, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrCriticalStore.Code, appErrors.ErrCriticalStore.Status, "failed to load document")
	}
	return doc, nil
}

// List returns a KB's documents. Archived documents are excluded unless the
// caller opts in; this mirrors how search hides the archived flag.
func (s *DocumentService) List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error) {
	docs, err := s.docs.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCriticalStore.Code, appErrors.ErrCriticalStore.Status, "failed to list documents")
	}
	return docs, nil
}

// DownloadURL mints a short-lived presigned link to the raw blob.
func (s *DocumentService) DownloadURL(ctx context.Context, id string) (string, error) {
	doc, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if doc.StorageKey == "" {
		return "", appErrors.Clone(appErrors.ErrNotFound, "document has no stored file")
	}
	url, err := s.blobs.PresignedURL(ctx, doc.StorageKey, s.presignTTL)
	if err != nil {
		s.logger.Error("presign failed", zap.Error(err), zap.String("document_id", id))
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create download link")
	}
	return url, nil
}

// Events returns the lifecycle audit trail for a document, newest first. The
// trail outlives the document, so no existence check here: a purged id still
// answers with its history.
func (s *DocumentService) Events(ctx context.Context, documentID string, limit, offset int) ([]models.LifecycleEvent, error) {
	events, err := s.events.ListByDocument(ctx, documentID, limit, offset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCriticalStore.Code, appErrors.ErrCriticalStore.Status, "failed to list lifecycle events")
	}
	return events, nil
}

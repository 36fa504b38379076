package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/kb-admin-api/internal/models"
	appErrors "github.com/noah-isme/kb-admin-api/pkg/errors"
	"github.com/noah-isme/kb-admin-api/pkg/lock"
)

type documentStore interface {
	GetByID(ctx context.Context, id string) (*models.Document, error)
	List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error)
	FindActiveByName(ctx context.Context, kbID, name string) (*models.Document, error)
	FindActiveByContentHash(ctx context.Context, kbID, contentHash string) (*models.Document, error)
	MarkArchived(ctx context.Context, id string, archivedAt time.Time) error
	MarkRestored(ctx context.Context, id string, restoredAt time.Time) error
	ReplaceContent(ctx context.Context, id, contentHash, storageKey string, sizeBytes int64, updatedAt time.Time) error
	Delete(ctx context.Context, id string) error
}

type auditRecorder interface {
	Record(ctx context.Context, documentID, actorID, action, outcome, failureReason string, snapshot models.DocumentSnapshot) error
}

// processingPipeline is the hand-off to the external embedding pipeline.
type processingPipeline interface {
	EnqueueReprocess(ctx context.Context, doc *models.Document) error
	SignalCancel(ctx context.Context, documentID string) error
}

type lifecycleObserver interface {
	ObserveLifecycleOperation(action, outcome string)
}

// LifecycleResult is the outcome of a single-document lifecycle operation.
// Warnings carry non-fatal cleanup failures: the operation succeeded, but a
// non-authoritative store was left with stragglers for a later sweep.
type LifecycleResult struct {
	Document *models.Document `json:"document,omitempty"`
	Warnings []string         `json:"-"`
}

// ReplaceUpload carries the replacement file stream and metadata.
type ReplaceUpload struct {
	Filename    string
	Size        int64
	ContentType string
	Content     io.Reader
}

// LifecycleServiceConfig tunes timeouts and locking.
type LifecycleServiceConfig struct {
	StoreTimeout time.Duration
	LockTTL      time.Duration
	LockWait     time.Duration
}

// LifecycleService orchestrates document lifecycle transitions across the
// metadata store, the vector index and the blob store. There is no cross-store
// transaction: each operation is an ordered saga of best-effort steps around
// one authoritative metadata write. Non-authoritative failures become
// warnings; an authoritative failure aborts the operation and is returned.
type LifecycleService struct {
	docs     documentStore
	vectors  VectorIndexGateway
	blobs    BlobStoreGateway
	audit    auditRecorder
	locks    lock.Locker
	pipeline processingPipeline
	observer lifecycleObserver
	logger   *zap.Logger
	cfg      LifecycleServiceConfig
}

// NewLifecycleService constructs the orchestrator with defaults.
func NewLifecycleService(docs documentStore, vectors VectorIndexGateway, blobs BlobStoreGateway, audit auditRecorder, locks lock.Locker, pipeline processingPipeline, observer lifecycleObserver, logger *zap.Logger, cfg LifecycleServiceConfig) *LifecycleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = 10 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = 5 * time.Second
	}
	return &LifecycleService{
		docs:     docs,
		vectors:  vectors,
		blobs:    blobs,
		audit:    audit,
		locks:    locks,
		pipeline: pipeline,
		observer: observer,
		logger:   logger,
		cfg:      cfg,
	}
}

// Archive hides a completed document from search while keeping it restorable.
// The vector flag flip is reversible and idempotent, so its failure degrades
// to a warning; the metadata update is authoritative and must succeed.
func (s *LifecycleService) Archive(ctx context.Context, id string, actor *models.JWTClaims) (*LifecycleResult, error) {
	if err := requireManager(actor); err != nil {
		return nil, err
	}
	release, err := s.lockDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	doc, err := s.loadDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CanTransition(doc.Status, models.ActionArchive); err != nil {
		s.observe(models.EventActionArchived, models.EventOutcomeFailure)
		return nil, err
	}

	var warnings []string
	if err := s.withStoreTimeout(ctx, func(c context.Context) error {
		return s.vectors.SetArchivedFlag(c, id, true)
	}); err != nil {
		s.logger.Warn("vector archive flag not applied", zap.Error(err), zap.String("document_id", id))
		warnings = append(warnings, "vector index flag update failed: "+err.Error())
	}

	now := time.Now().UTC()
	if err := s.withStoreTimeout(ctx, func(c context.Context) error {
		return s.docs.MarkArchived(c, id, now)
	}); err != nil {
		return nil, s.authoritativeFailure(ctx, doc, actor, models.EventActionArchived, appErrors.ErrNotCompleted, err)
	}

	doc.Status = models.StatusArchived
	doc.ArchivedAt = &now
	doc.UpdatedAt = now
	warnings = s.recordSuccess(ctx, doc, actor, models.EventActionArchived, warnings)
	return &LifecycleResult{Document: doc, Warnings: warnings}, nil
}

// Restore returns an archived document to search, unless an active document
// in the same KB has since taken its name. On collision nothing changes.
func (s *LifecycleService) Restore(ctx context.Context, id string, actor *models.JWTClaims) (*LifecycleResult, error) {
	if err := requireManager(actor); err != nil {
		return nil, err
	}
	release, err := s.lockDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	doc, err := s.loadDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CanTransition(doc.Status, models.ActionRestore); err != nil {
		s.observe(models.EventActionRestored, models.EventOutcomeFailure)
		return nil, err
	}

	existing, err := s.findActiveByName(ctx, doc.KBID, doc.Name)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrCriticalStore.Code, appErrors.ErrCriticalStore.Status, "name collision check failed")
	}
	if existing != nil && existing.ID != doc.ID {
		s.observe(models.EventActionRestored, models.EventOutcomeFailure)
		return nil, appErrors.WithDetails(appErrors.ErrNameCollision, map[string]interface{}{"existing_id": existing.ID})
	}

	var warnings []string
	if err := s.withStoreTimeout(ctx, func(c context.Context) error {
		return s.vectors.SetArchivedFlag(c, id, false)
	}); err != nil {
		s.logger.Warn("vector restore flag not applied", zap.Error(err), zap.String("document_id", id))
		warnings = append(warnings, "vector index flag update failed: "+err.Error())
	}

	now := time.Now().UTC()
	if err := s.withStoreTimeout(ctx, func(c context.Context) error {
		return s.docs.MarkRestored(c, id, now)
	}); err != nil {
		return nil, s.authoritativeFailure(ctx, doc, actor, models.EventActionRestored, appErrors.ErrNotArchived, err)
	}

	doc.Status = models.StatusCompleted
	doc.ArchivedAt = nil
	doc.UpdatedAt = now
	warnings = s.recordSuccess(ctx, doc, actor, models.EventActionRestored, warnings)
	return &LifecycleResult{Document: doc, Warnings: warnings}, nil
}

// Purge irreversibly removes an archived document from all three stores.
// Requires the admin role and an explicit confirmation flag. The snapshot for
// the audit record is captured before any destructive step.
func (s *LifecycleService) Purge(ctx context.Context, id string, actor *models.JWTClaims, confirm bool) (*LifecycleResult, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if !confirm {
		return nil, appErrors.ErrConfirmationRequired
	}
	release, err := s.lockDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	doc, err := s.loadDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CanTransition(doc.Status, models.ActionPurge); err != nil {
		s.observe(models.EventActionPurged, models.EventOutcomeFailure)
		return nil, err
	}

	snapshot := doc.Snapshot()
	warnings := s.cleanupDependentStores(ctx, doc, nil)

	if err := s.withStoreTimeout(ctx, func(c context.Context) error {
		return s.docs.Delete(c, id)
	}); err != nil {
		// Dependent stores may already be partially cleaned. Accepted risk:
		// the row survives, the caller retries, cleanup steps are idempotent.
		return nil, s.authoritativeFailure(ctx, doc, actor, models.EventActionPurged, appErrors.ErrNotFound, err)
	}

	if err := s.audit.Record(ctx, id, actor.UserID, models.EventActionPurged, models.EventOutcomeSuccess, "", snapshot); err != nil {
		warnings = append(warnings, "audit event not recorded")
	}
	s.observe(models.EventActionPurged, models.EventOutcomeSuccess)
	return &LifecycleResult{Warnings: warnings}, nil
}

// Clear deletes a failed document and its partial artifacts. Any in-flight
// processing task is told to stop via a cooperative cancel signal, never a kill.
func (s *LifecycleService) Clear(ctx context.Context, id string, actor *models.JWTClaims) (*LifecycleResult, error) {
	return s.clear(ctx, id, actor, models.EventActionCleared)
}

// AutoClear is Clear invoked by duplicate resolution at intake time, recorded
// with its own audit action so the trail shows the system, not an admin,
// decided to delete.
func (s *LifecycleService) AutoClear(ctx context.Context, id string, actor *models.JWTClaims) (*LifecycleResult, error) {
	return s.clear(ctx, id, actor, models.EventActionAutoCleared)
}

func (s *LifecycleService) clear(ctx context.Context, id string, actor *models.JWTClaims, auditAction string) (*LifecycleResult, error) {
	if err := requireManager(actor); err != nil {
		return nil, err
	}
	release, err := s.lockDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	doc, err := s.loadDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CanTransition(doc.Status, models.ActionClear); err != nil {
		s.observe(auditAction, models.EventOutcomeFailure)
		return nil, err
	}

	snapshot := doc.Snapshot()
	var warnings []string
	if s.pipeline != nil {
		if err := s.pipeline.SignalCancel(ctx, id); err != nil {
			s.logger.Warn("processing cancel signal failed", zap.Error(err), zap.String("document_id", id))
			warnings = append(warnings, "processing cancel signal failed: "+err.Error())
		}
	}
	warnings = s.cleanupDependentStores(ctx, doc, warnings)

	if err := s.withStoreTimeout(ctx, func(c context.Context) error {
		return s.docs.Delete(c, id)
	}); err != nil {
		return nil, s.authoritativeFailure(ctx, doc, actor, auditAction, appErrors.ErrNotFound, err)
	}

	if err := s.audit.Record(ctx, id, actor.UserID, auditAction, models.EventOutcomeSuccess, "", snapshot); err != nil {
		warnings = append(warnings, "audit event not recorded")
	}
	s.observe(auditAction, models.EventOutcomeSuccess)
	return &LifecycleResult{Warnings: warnings}, nil
}

// Replace swaps a completed document's content in place: same id, new blob,
// new hash, status back to processing. Old vectors and the old blob are
// deleted first, so a pipeline failure afterwards loses the prior content.
// That is the documented delete-then-reprocess trade-off.
func (s *LifecycleService) Replace(ctx context.Context, id string, actor *models.JWTClaims, upload ReplaceUpload) (*LifecycleResult, error) {
	if err := requireManager(actor); err != nil {
		return nil, err
	}
	if upload.Content == nil || upload.Size <= 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "replacement file is required")
	}
	release, err := s.lockDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	doc, err := s.loadDocument(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := CanTransition(doc.Status, models.ActionReplace); err != nil {
		s.observe(models.EventActionReplaced, models.EventOutcomeFailure)
		return nil, err
	}

	snapshot := doc.Snapshot()
	warnings := s.cleanupDependentStores(ctx, doc, nil)

	newKey := s.storageKeyFor(doc.KBID, upload.Filename)
	hasher := sha256.New()
	body := io.TeeReader(upload.Content, hasher)
	if err := s.withStoreTimeout(ctx, func(c context.Context) error {
		return s.blobs.Put(c, newKey, body, upload.Size, upload.ContentType)
	}); err != nil {
		return nil, s.authoritativeFailure(ctx, doc, actor, models.EventActionReplaced, nil,
			fmt.Errorf("store replacement file: %w", err))
	}
	newHash := hex.EncodeToString(hasher.Sum(nil))

	now := time.Now().UTC()
	if err := s.withStoreTimeout(ctx, func(c context.Context) error {
		return s.docs.ReplaceContent(c, id, newHash, newKey, upload.Size, now)
	}); err != nil {
		return nil, s.authoritativeFailure(ctx, doc, actor, models.EventActionReplaced, appErrors.ErrNotReplaceable, err)
	}

	doc.ContentHash = newHash
	doc.StorageKey = newKey
	doc.SizeBytes = upload.Size
	doc.Status = models.StatusProcessing
	doc.UpdatedAt = now

	if s.pipeline != nil {
		if err := s.pipeline.EnqueueReprocess(ctx, doc); err != nil {
			s.logger.Error("reprocess hand-off failed", zap.Error(err), zap.String("document_id", id))
			warnings = append(warnings, "reprocess hand-off failed: "+err.Error())
		}
	}

	if err := s.audit.Record(ctx, id, actor.UserID, models.EventActionReplaced, models.EventOutcomeSuccess, "", snapshot); err != nil {
		warnings = append(warnings, "audit event not recorded")
	}
	s.observe(models.EventActionReplaced, models.EventOutcomeSuccess)
	return &LifecycleResult{Document: doc, Warnings: warnings}, nil
}

// cleanupDependentStores runs the best-effort vector and blob deletions shared
// by purge, clear and replace. Failures are warnings, never aborts.
func (s *LifecycleService) cleanupDependentStores(ctx context.Context, doc *models.Document, warnings []string) []string {
	if err := s.withStoreTimeout(ctx, func(c context.Context) error {
		return s.vectors.DeleteByDocument(c, doc.ID)
	}); err != nil {
		s.logger.Warn("vector cleanup failed", zap.Error(err), zap.String("document_id", doc.ID))
		warnings = append(warnings, "vector index cleanup failed: "+err.Error())
	}
	if doc.StorageKey != "" {
		if err := s.withStoreTimeout(ctx, func(c context.Context) error {
			return s.blobs.Delete(c, doc.StorageKey)
		}); err != nil {
			s.logger.Warn("blob cleanup failed", zap.Error(err), zap.String("document_id", doc.ID), zap.String("storage_key", doc.StorageKey))
			warnings = append(warnings, "blob cleanup failed: "+err.Error())
		}
	}
	return warnings
}

func (s *LifecycleService) lockDocument(ctx context.Context, id string) (func(), error) {
	release, err := s.locks.Acquire(ctx, id, s.cfg.LockTTL, s.cfg.LockWait)
	if err != nil {
		if errors.Is(err, lock.ErrNotAcquired) {
			return nil, appErrors.ErrOperationInProgress
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to acquire document lock")
	}
	return release, nil
}

func (s *LifecycleService) loadDocument(ctx context.Context, id string) (*models.Document, error) {
	var doc *models.Document
	err := s.withStoreTimeout(ctx, func(c context.Context) error {
		var inner error
		doc, inner = s.docs.GetByID(c, id)
		return inner
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrCriticalStore.Code, appErrors.ErrCriticalStore.Status, "failed to load document")
	}
	return doc, nil
}

func (s *LifecycleService) findActiveByName(ctx context.Context, kbID, name string) (*models.Document, error) {
	var doc *models.Document
	err := s.withStoreTimeout(ctx, func(c context.Context) error {
		var inner error
		doc, inner = s.docs.FindActiveByName(c, kbID, name)
		return inner
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return doc, nil
}

// authoritativeFailure maps a failed authoritative write, records the failed
// attempt in the audit trail, and picks the right caller-facing error: a
// zero-row update means the precondition no longer holds, anything else is a
// critical store failure worth retrying.
func (s *LifecycleService) authoritativeFailure(ctx context.Context, doc *models.Document, actor *models.JWTClaims, action string, guardErr *appErrors.Error, err error) error {
	s.observe(action, models.EventOutcomeFailure)
	_ = s.audit.Record(ctx, doc.ID, actor.UserID, action, models.EventOutcomeFailure, err.Error(), doc.Snapshot())
	if guardErr != nil && errors.Is(err, sql.ErrNoRows) {
		return guardErr
	}
	return appErrors.Wrap(err, appErrors.ErrCriticalStore.Code, appErrors.ErrCriticalStore.Status, appErrors.ErrCriticalStore.Message)
}

func (s *LifecycleService) recordSuccess(ctx context.Context, doc *models.Document, actor *models.JWTClaims, action string, warnings []string) []string {
	if err := s.audit.Record(ctx, doc.ID, actor.UserID, action, models.EventOutcomeSuccess, "", doc.Snapshot()); err != nil {
		warnings = append(warnings, "audit event not recorded")
	}
	s.observe(action, models.EventOutcomeSuccess)
	return warnings
}

func (s *LifecycleService) withStoreTimeout(ctx context.Context, fn func(context.Context) error) error {
	c, cancel := context.WithTimeout(ctx, s.cfg.StoreTimeout)
	defer cancel()
	return fn(c)
}

func (s *LifecycleService) observe(action, outcome string) {
	if s.observer != nil {
		s.observer.ObserveLifecycleOperation(action, outcome)
	}
}

func (s *LifecycleService) storageKeyFor(kbID, filename string) string {
	ext := filepath.Ext(filename)
	return fmt.Sprintf("kbs/%s/%s%s", kbID, uuid.NewString(), ext)
}

func requireManager(actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin && actor.Role != models.RoleOwner {
		return appErrors.ErrForbidden
	}
	return nil
}

// requireAdmin gates purge: stricter than the owner-or-admin rule used by the
// reversible operations.
func requireAdmin(actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin {
		return appErrors.ErrForbidden
	}
	return nil
}

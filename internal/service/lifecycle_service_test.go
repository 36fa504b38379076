package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/kb-admin-api/internal/models"
	appErrors "github.com/noah-isme/kb-admin-api/pkg/errors"
	"github.com/noah-isme/kb-admin-api/pkg/lock"
)

type stubDocumentStore struct {
	docs map[string]*models.Document

	getErr            error
	markArchivedErr   error
	markRestoredErr   error
	replaceContentErr error
	deleteErr         error

	activeByName *models.Document

	archivedIDs []string
	restoredIDs []string
	replacedIDs []string
	deletedIDs  []string
}

func (s *stubDocumentStore) GetByID(_ context.Context, id string) (*models.Document, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	doc, ok := s.docs[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *doc
	return &clone, nil
}

func (s *stubDocumentStore) List(_ context.Context, _ models.DocumentFilter) ([]models.Document, error) {
	return nil, nil
}

func (s *stubDocumentStore) FindActiveByName(_ context.Context, _, _ string) (*models.Document, error) {
	if s.activeByName == nil {
		return nil, sql.ErrNoRows
	}
	return s.activeByName, nil
}

func (s *stubDocumentStore) FindActiveByContentHash(_ context.Context, _, _ string) (*models.Document, error) {
	return nil, sql.ErrNoRows
}

func (s *stubDocumentStore) MarkArchived(_ context.Context, id string, _ time.Time) error {
	if s.markArchivedErr != nil {
		return s.markArchivedErr
	}
	s.archivedIDs = append(s.archivedIDs, id)
	return nil
}

func (s *stubDocumentStore) MarkRestored(_ context.Context, id string, _ time.Time) error {
	if s.markRestoredErr != nil {
		return s.markRestoredErr
	}
	s.restoredIDs = append(s.restoredIDs, id)
	return nil
}

func (s *stubDocumentStore) ReplaceContent(_ context.Context, id, _, _ string, _ int64, _ time.Time) error {
	if s.replaceContentErr != nil {
		return s.replaceContentErr
	}
	s.replacedIDs = append(s.replacedIDs, id)
	return nil
}

func (s *stubDocumentStore) Delete(_ context.Context, id string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deletedIDs = append(s.deletedIDs, id)
	return nil
}

type stubVectorGateway struct {
	setFlagErr error
	deleteErr  error

	flagCalls   []bool
	deletedDocs []string
}

func (s *stubVectorGateway) SetArchivedFlag(_ context.Context, _ string, archived bool) error {
	if s.setFlagErr != nil {
		return s.setFlagErr
	}
	s.flagCalls = append(s.flagCalls, archived)
	return nil
}

func (s *stubVectorGateway) DeleteByDocument(_ context.Context, documentID string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deletedDocs = append(s.deletedDocs, documentID)
	return nil
}

type stubBlobGateway struct {
	putErr    error
	deleteErr error

	putKeys     []string
	deletedKeys []string
}

func (s *stubBlobGateway) Put(_ context.Context, key string, body io.Reader, _ int64, _ string) error {
	if s.putErr != nil {
		return s.putErr
	}
	if body != nil {
		_, _ = io.Copy(io.Discard, body)
	}
	s.putKeys = append(s.putKeys, key)
	return nil
}

func (s *stubBlobGateway) Delete(_ context.Context, key string) error {
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deletedKeys = append(s.deletedKeys, key)
	return nil
}

func (s *stubBlobGateway) PresignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://blob.test/" + key, nil
}

type recordedEvent struct {
	documentID string
	action     string
	outcome    string
	reason     string
	snapshot   models.DocumentSnapshot
}

type stubAudit struct {
	recordErr error
	events    []recordedEvent
}

func (s *stubAudit) Record(_ context.Context, documentID, _, action, outcome, failureReason string, snapshot models.DocumentSnapshot) error {
	if s.recordErr != nil {
		return s.recordErr
	}
	s.events = append(s.events, recordedEvent{
		documentID: documentID,
		action:     action,
		outcome:    outcome,
		reason:     failureReason,
		snapshot:   snapshot,
	})
	return nil
}

type stubPipeline struct {
	enqueueErr error
	cancelErr  error

	enqueued  []string
	cancelled []string
}

func (s *stubPipeline) EnqueueReprocess(_ context.Context, doc *models.Document) error {
	if s.enqueueErr != nil {
		return s.enqueueErr
	}
	s.enqueued = append(s.enqueued, doc.ID)
	return nil
}

func (s *stubPipeline) SignalCancel(_ context.Context, documentID string) error {
	if s.cancelErr != nil {
		return s.cancelErr
	}
	s.cancelled = append(s.cancelled, documentID)
	return nil
}

type lifecycleFixture struct {
	svc      *LifecycleService
	docs     *stubDocumentStore
	vectors  *stubVectorGateway
	blobs    *stubBlobGateway
	audit    *stubAudit
	pipeline *stubPipeline
}

func newLifecycleFixture(docs ...*models.Document) *lifecycleFixture {
	store := &stubDocumentStore{docs: map[string]*models.Document{}}
	for _, d := range docs {
		store.docs[d.ID] = d
	}
	f := &lifecycleFixture{
		docs:     store,
		vectors:  &stubVectorGateway{},
		blobs:    &stubBlobGateway{},
		audit:    &stubAudit{},
		pipeline: &stubPipeline{},
	}
	f.svc = NewLifecycleService(f.docs, f.vectors, f.blobs, f.audit, lock.NewMemoryLocker(), f.pipeline, nil, zap.NewNop(), LifecycleServiceConfig{})
	return f
}

func adminActor() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
}

func ownerActor() *models.JWTClaims {
	return &models.JWTClaims{UserID: "owner-1", Role: models.RoleOwner}
}

func viewerActor() *models.JWTClaims {
	return &models.JWTClaims{UserID: "viewer-1", Role: models.RoleViewer}
}

func testDocument(id string, status models.DocumentStatus) *models.Document {
	return &models.Document{
		ID:          id,
		KBID:        "kb-1",
		Name:        "handbook.pdf",
		ContentHash: "abc123",
		Status:      status,
		SizeBytes:   2048,
		StorageKey:  "kbs/kb-1/" + id + ".pdf",
	}
}

func TestLifecycleArchive(t *testing.T) {
	t.Run("completed document archives", func(t *testing.T) {
		f := newLifecycleFixture(testDocument("doc-1", models.StatusCompleted))

		res, err := f.svc.Archive(context.Background(), "doc-1", ownerActor())

		require.NoError(t, err)
		require.Empty(t, res.Warnings)
		require.Equal(t, models.StatusArchived, res.Document.Status)
		require.NotNil(t, res.Document.ArchivedAt)
		require.Equal(t, []bool{true}, f.vectors.flagCalls)
		require.Equal(t, []string{"doc-1"}, f.docs.archivedIDs)
		require.Len(t, f.audit.events, 1)
		require.Equal(t, models.EventActionArchived, f.audit.events[0].action)
		require.Equal(t, models.EventOutcomeSuccess, f.audit.events[0].outcome)
	})

	t.Run("already archived is rejected without side effects", func(t *testing.T) {
		f := newLifecycleFixture(testDocument("doc-1", models.StatusArchived))

		_, err := f.svc.Archive(context.Background(), "doc-1", ownerActor())

		require.ErrorIs(t, err, appErrors.ErrAlreadyArchived)
		require.Empty(t, f.vectors.flagCalls)
		require.Empty(t, f.docs.archivedIDs)
		require.Empty(t, f.audit.events)
	})

	t.Run("vector failure degrades to warning", func(t *testing.T) {
		f := newLifecycleFixture(testDocument("doc-1", models.StatusCompleted))
		f.vectors.setFlagErr = errors.New("qdrant unavailable")

		res, err := f.svc.Archive(context.Background(), "doc-1", ownerActor())

		require.NoError(t, err)
		require.Len(t, res.Warnings, 1)
		require.Contains(t, res.Warnings[0], "vector index")
		require.Equal(t, []string{"doc-1"}, f.docs.archivedIDs)
	})

	t.Run("metadata failure aborts and records failure event", func(t *testing.T) {
		f := newLifecycleFixture(testDocument("doc-1", models.StatusCompleted))
		f.docs.markArchivedErr = errors.New("connection reset")

		_, err := f.svc.Archive(context.Background(), "doc-1", ownerActor())

		require.Error(t, err)
		require.Equal(t, appErrors.ErrCriticalStore.Code, appErrors.FromError(err).Code)
		require.Len(t, f.audit.events, 1)
		require.Equal(t, models.EventOutcomeFailure, f.audit.events[0].outcome)
		require.Contains(t, f.audit.events[0].reason, "connection reset")
	})

	t.Run("viewer is forbidden", func(t *testing.T) {
		f := newLifecycleFixture(testDocument("doc-1", models.StatusCompleted))

		_, err := f.svc.Archive(context.Background(), "doc-1", viewerActor())

		require.ErrorIs(t, err, appErrors.ErrForbidden)
	})

	t.Run("missing actor is unauthorized", func(t *testing.T) {
		f := newLifecycleFixture(testDocument("doc-1", models.StatusCompleted))

		_, err := f.svc.Archive(context.Background(), "doc-1", nil)

		require.ErrorIs(t, err, appErrors.ErrUnauthorized)
	})

	t.Run("unknown document", func(t *testing.T) {
		f := newLifecycleFixture()

		_, err := f.svc.Archive(context.Background(), "ghost", ownerActor())

		require.ErrorIs(t, err, appErrors.ErrNotFound)
	})
}

func TestLifecycleRestore(t *testing.T) {
	t.Run("archived document restores", func(t *testing.T) {
		now := time.Now().UTC()
		doc := testDocument("doc-1", models.StatusArchived)
		doc.ArchivedAt = &now
		f := newLifecycleFixture(doc)

		res, err := f.svc.Restore(context.Background(), "doc-1", ownerActor())

		require.NoError(t, err)
		require.Equal(t, models.StatusCompleted, res.Document.Status)
		require.Nil(t, res.Document.ArchivedAt)
		require.Equal(t, []bool{false}, f.vectors.flagCalls)
		require.Equal(t, []string{"doc-1"}, f.docs.restoredIDs)
	})

	t.Run("name collision blocks restore", func(t *testing.T) {
		f := newLifecycleFixture(testDocument("doc-1", models.StatusArchived))
		f.docs.activeByName = testDocument("doc-2", models.StatusCompleted)

		_, err := f.svc.Restore(context.Background(), "doc-1", ownerActor())

		appErr := appErrors.FromError(err)
		require.Equal(t, appErrors.ErrNameCollision.Code, appErr.Code)
		require.Equal(t, "doc-2", appErr.Details["existing_id"])
		require.Empty(t, f.docs.restoredIDs)
		require.Empty(t, f.vectors.flagCalls)
	})

	t.Run("completed document is not restorable", func(t *testing.T) {
		f := newLifecycleFixture(testDocument("doc-1", models.StatusCompleted))

		_, err := f.svc.Restore(context.Background(), "doc-1", ownerActor())

		require.ErrorIs(t, err, appErrors.ErrNotArchived)
	})
}

func TestLifecyclePurge(t *testing.T) {
	t.Run("requires confirmation", func(t *testing.T) {
		f := newLifecycleFixture(testDocument("doc-1", models.StatusArchived))

		_, err := f.svc.Purge(context.Background(), "doc-1", adminActor(), false)

		require.ErrorIs(t, err, appErrors.ErrConfirmationRequired)
		require.Empty(t, f.docs.deletedIDs)
	})

	t.Run("owner cannot purge", func(t *testing.T) {
		f := newLifecycleFixture(testDocument("doc-1", models.StatusArchived))

		_, err := f.svc.Purge(context.Background(), "doc-1", ownerActor(), true)

		require.ErrorIs(t, err, appErrors.ErrForbidden)
	})

	t.Run("purges all three stores and keeps snapshot", func(t *testing.T) {
		f := newLifecycleFixture(testDocument("doc-1", models.StatusArchived))

		res, err := f.svc.Purge(context.Background(), "doc-1", adminActor(), true)

		require.NoError(t, err)
		require.Nil(t, res.Document)
		require.Equal(t, []string{"doc-1"}, f.vectors.deletedDocs)
		require.Equal(t, []string{"kbs/kb-1/doc-1.pdf"}, f.blobs.deletedKeys)
		require.Equal(t, []string{"doc-1"}, f.docs.deletedIDs)
		require.Len(t, f.audit.events, 1)
		require.Equal(t, models.EventActionPurged, f.audit.events[0].action)
		require.Equal(t, "handbook.pdf", f.audit.events[0].snapshot.Name)
	})

	t.Run("dependent store failures still purge metadata", func(t *testing.T) {
		f := newLifecycleFixture(testDocument("doc-1", models.StatusArchived))
		f.vectors.deleteErr = errors.New("timeout")
		f.blobs.deleteErr = errors.New("timeout")

		res, err := f.svc.Purge(context.Background(), "doc-1", adminActor(), true)

		require.NoError(t, err)
		require.Len(t, res.Warnings, 2)
		require.Equal(t, []string{"doc-1"}, f.docs.deletedIDs)
	})

	t.Run("completed document is not purgeable", func(t *testing.T) {
		f := newLifecycleFixture(testDocument("doc-1", models.StatusCompleted))

		_, err := f.svc.Purge(context.Background(), "doc-1", adminActor(), true)

		require.ErrorIs(t, err, appErrors.ErrNotArchived)
		require.Empty(t, f.docs.deletedIDs)
	})
}

func TestLifecycleClear(t *testing.T) {
	t.Run("failed document clears with cancel signal first", func(t *testing.T) {
		f := newLifecycleFixture(testDocument("doc-1", models.StatusFailed))

		res, err := f.svc.Clear(context.Background(), "doc-1", ownerActor())

		require.NoError(t, err)
		require.Empty(t, res.Warnings)
		require.Equal(t, []string{"doc-1"}, f.pipeline.cancelled)
		require.Equal(t, []string{"doc-1"}, f.vectors.deletedDocs)
		require.Equal(t, []string{"doc-1"}, f.docs.deletedIDs)
		require.Equal(t, models.EventActionCleared, f.audit.events[0].action)
	})

	t.Run("cancel signal failure is only a warning", func(t *testing.T) {
		f := newLifecycleFixture(testDocument("doc-1", models.StatusFailed))
		f.pipeline.cancelErr = errors.New("redis down")

		res, err := f.svc.Clear(context.Background(), "doc-1", ownerActor())

		require.NoError(t, err)
		require.Len(t, res.Warnings, 1)
		require.Equal(t, []string{"doc-1"}, f.docs.deletedIDs)
	})

	t.Run("completed document is not clearable", func(t *testing.T) {
		f := newLifecycleFixture(testDocument("doc-1", models.StatusCompleted))

		_, err := f.svc.Clear(context.Background(), "doc-1", ownerActor())

		require.ErrorIs(t, err, appErrors.ErrNotFailed)
	})

	t.Run("auto clear records its own audit action", func(t *testing.T) {
		f := newLifecycleFixture(testDocument("doc-1", models.StatusFailed))

		_, err := f.svc.AutoClear(context.Background(), "doc-1", ownerActor())

		require.NoError(t, err)
		require.Equal(t, models.EventActionAutoCleared, f.audit.events[0].action)
	})
}

func TestLifecycleReplace(t *testing.T) {
	upload := func() ReplaceUpload {
		return ReplaceUpload{
			Filename:    "handbook-v2.pdf",
			Size:        4096,
			ContentType: "application/pdf",
			Content:     strings.NewReader("new content"),
		}
	}

	t.Run("replaces content in place", func(t *testing.T) {
		f := newLifecycleFixture(testDocument("doc-1", models.StatusCompleted))

		res, err := f.svc.Replace(context.Background(), "doc-1", ownerActor(), upload())

		require.NoError(t, err)
		require.Equal(t, "doc-1", res.Document.ID)
		require.Equal(t, models.StatusProcessing, res.Document.Status)
		require.NotEqual(t, "abc123", res.Document.ContentHash)
		require.Len(t, res.Document.ContentHash, 64)
		require.Equal(t, []string{"doc-1"}, f.vectors.deletedDocs)
		require.Equal(t, []string{"kbs/kb-1/doc-1.pdf"}, f.blobs.deletedKeys)
		require.Len(t, f.blobs.putKeys, 1)
		require.True(t, strings.HasPrefix(f.blobs.putKeys[0], "kbs/kb-1/"))
		require.True(t, strings.HasSuffix(f.blobs.putKeys[0], ".pdf"))
		require.Equal(t, []string{"doc-1"}, f.docs.replacedIDs)
		require.Equal(t, []string{"doc-1"}, f.pipeline.enqueued)
		require.Equal(t, models.EventActionReplaced, f.audit.events[0].action)
	})

	t.Run("upload failure aborts before metadata write", func(t *testing.T) {
		f := newLifecycleFixture(testDocument("doc-1", models.StatusCompleted))
		f.blobs.putErr = errors.New("bucket gone")

		_, err := f.svc.Replace(context.Background(), "doc-1", ownerActor(), upload())

		require.Error(t, err)
		require.Empty(t, f.docs.replacedIDs)
		require.Empty(t, f.pipeline.enqueued)
	})

	t.Run("reprocess hand-off failure becomes warning", func(t *testing.T) {
		f := newLifecycleFixture(testDocument("doc-1", models.StatusCompleted))
		f.pipeline.enqueueErr = errors.New("queue full")

		res, err := f.svc.Replace(context.Background(), "doc-1", ownerActor(), upload())

		require.NoError(t, err)
		require.Len(t, res.Warnings, 1)
		require.Equal(t, []string{"doc-1"}, f.docs.replacedIDs)
	})

	t.Run("archived document is not replaceable", func(t *testing.T) {
		f := newLifecycleFixture(testDocument("doc-1", models.StatusArchived))

		_, err := f.svc.Replace(context.Background(), "doc-1", ownerActor(), upload())

		require.ErrorIs(t, err, appErrors.ErrNotReplaceable)
	})

	t.Run("missing file is a validation error", func(t *testing.T) {
		f := newLifecycleFixture(testDocument("doc-1", models.StatusCompleted))

		_, err := f.svc.Replace(context.Background(), "doc-1", ownerActor(), ReplaceUpload{})

		require.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	})
}

func TestLifecycleAuditBestEffort(t *testing.T) {
	f := newLifecycleFixture(testDocument("doc-1", models.StatusCompleted))
	f.audit.recordErr = errors.New("insert failed")

	res, err := f.svc.Archive(context.Background(), "doc-1", ownerActor())

	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	require.Contains(t, res.Warnings[0], "audit")
}

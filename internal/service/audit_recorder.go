package service

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/noah-isme/kb-admin-api/internal/models"
)

type lifecycleEventStore interface {
	Create(ctx context.Context, event *models.LifecycleEvent) error
}

// AuditRecorder appends immutable lifecycle events. It exposes no update or
// delete path. Callers pass a snapshot captured before any destructive step,
// so recording a purge still works after the document row is gone.
type AuditRecorder struct {
	events lifecycleEventStore
	logger *zap.Logger
}

// NewAuditRecorder constructs the recorder.
func NewAuditRecorder(events lifecycleEventStore, logger *zap.Logger) *AuditRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditRecorder{events: events, logger: logger}
}

// Record appends one event. A failed append never fails the operation that
// produced it; the error is returned so the caller can surface a warning.
func (a *AuditRecorder) Record(ctx context.Context, documentID, actorID, action, outcome string, failureReason string, snapshot models.DocumentSnapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		a.logger.Warn("failed to marshal audit snapshot", zap.Error(err), zap.String("document_id", documentID))
		raw = []byte("{}")
	}
	event := &models.LifecycleEvent{
		DocumentID: documentID,
		ActorID:    actorID,
		Action:     action,
		Outcome:    outcome,
		Snapshot:   raw,
	}
	if failureReason != "" {
		event.FailureReason = &failureReason
	}
	if err := a.events.Create(ctx, event); err != nil {
		a.logger.Warn("failed to append lifecycle event",
			zap.Error(err),
			zap.String("document_id", documentID),
			zap.String("action", action))
		return err
	}
	return nil
}

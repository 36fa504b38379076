package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/kb-admin-api/internal/models"
)

// LifecycleEventRepository is the append-only store for lifecycle audit events.
// There is deliberately no update or delete method, and the table carries no
// foreign key to documents: events outlive their subject.
type LifecycleEventRepository struct {
	db *sqlx.DB
}

// NewLifecycleEventRepository constructs the repository.
func NewLifecycleEventRepository(db *sqlx.DB) *LifecycleEventRepository {
	return &LifecycleEventRepository{db: db}
}

// Create appends one lifecycle event.
func (r *LifecycleEventRepository) Create(ctx context.Context, event *models.LifecycleEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO lifecycle_events
	(id, document_id, actor_id, action, outcome, failure_reason, snapshot, created_at)
	VALUES (:id, :document_id, :actor_id, :action, :outcome, :failure_reason, :snapshot, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, event); err != nil {
		return fmt.Errorf("create lifecycle event: %w", err)
	}
	return nil
}

// ListByDocument returns events for a document, newest first. Works for
// documents that no longer exist, which is the main point of keeping them.
func (r *LifecycleEventRepository) ListByDocument(ctx context.Context, documentID string, limit, offset int) ([]models.LifecycleEvent, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	const query = `SELECT id, document_id, actor_id, action, outcome, failure_reason, snapshot, created_at
	FROM lifecycle_events WHERE document_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	var events []models.LifecycleEvent
	if err := r.db.SelectContext(ctx, &events, query, documentID, limit, offset); err != nil {
		return nil, fmt.Errorf("list lifecycle events: %w", err)
	}
	return events, nil
}

package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/kb-admin-api/internal/models"
)

const documentColumns = `id, kb_id, name, content_hash, status, size_bytes, storage_key, created_at, updated_at, archived_at`

// DocumentRepository handles document metadata persistence. It is the
// authoritative store: every lifecycle transition commits here last, and a
// failure here fails the whole operation.
type DocumentRepository struct {
	db *sqlx.DB
}

// NewDocumentRepository constructs the repository.
func NewDocumentRepository(db *sqlx.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// GetByID retrieves one document row.
func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1`
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, id); err != nil {
		return nil, err
	}
	return &doc, nil
}

// List returns documents in a knowledge base applying filters.
func (r *DocumentRepository) List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error) {
	builder := strings.Builder{}
	builder.WriteString(`SELECT ` + documentColumns + ` FROM documents`)
	args := make([]interface{}, 0, 3)
	conditions := make([]string, 0, 3)

	if filter.KBID != "" {
		args = append(args, filter.KBID)
		conditions = append(conditions, fmt.Sprintf("kb_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	} else if !filter.IncludeArchived {
		conditions = append(conditions, "status <> 'archived'")
	}

	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var docs []models.Document
	if err := r.db.SelectContext(ctx, &docs, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// FindActiveByName finds a non-archived document with the same name in the KB,
// matching case-insensitively. Archived documents never block a new upload.
func (r *DocumentRepository) FindActiveByName(ctx context.Context, kbID, name string) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents
	WHERE kb_id = $1 AND LOWER(name) = LOWER($2) AND status <> 'archived' LIMIT 1`
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, kbID, name); err != nil {
		return nil, err
	}
	return &doc, nil
}

// FindActiveByContentHash finds a non-archived document carrying the same
// content hash in the KB.
func (r *DocumentRepository) FindActiveByContentHash(ctx context.Context, kbID, contentHash string) (*models.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents
	WHERE kb_id = $1 AND content_hash = $2 AND status <> 'archived' LIMIT 1`
	var doc models.Document
	if err := r.db.GetContext(ctx, &doc, query, kbID, contentHash); err != nil {
		return nil, err
	}
	return &doc, nil
}

// MarkArchived flips a completed document to archived. The status predicate
// makes the update race-safe: a concurrent transition turns this into a
// zero-row update reported as sql.ErrNoRows.
func (r *DocumentRepository) MarkArchived(ctx context.Context, id string, archivedAt time.Time) error {
	const query = `UPDATE documents SET status = 'archived', archived_at = $2, updated_at = $2
	WHERE id = $1 AND status = 'completed'`
	return r.execExpectingRow(ctx, query, "archive document", id, archivedAt)
}

// MarkRestored returns an archived document to completed and clears archived_at.
func (r *DocumentRepository) MarkRestored(ctx context.Context, id string, restoredAt time.Time) error {
	const query = `UPDATE documents SET status = 'completed', archived_at = NULL, updated_at = $2
	WHERE id = $1 AND status = 'archived'`
	return r.execExpectingRow(ctx, query, "restore document", id, restoredAt)
}

// ReplaceContent reassigns content hash and storage key and forces the
// document back into processing, preserving its id.
func (r *DocumentRepository) ReplaceContent(ctx context.Context, id, contentHash, storageKey string, sizeBytes int64, updatedAt time.Time) error {
	const query = `UPDATE documents SET content_hash = $2, storage_key = $3, size_bytes = $4,
	status = 'processing', updated_at = $5 WHERE id = $1 AND status = 'completed'`
	return r.execExpectingRow(ctx, query, "replace document content", id, contentHash, storageKey, sizeBytes, updatedAt)
}

// Delete removes the metadata row. Used only by purge and clear.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM documents WHERE id = $1`
	return r.execExpectingRow(ctx, query, "delete document", id)
}

func (r *DocumentRepository) execExpectingRow(ctx context.Context, query, op string, args ...interface{}) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

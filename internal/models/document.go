package models

import "time"

// DocumentStatus tracks a document through ingestion and archival.
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
	StatusArchived   DocumentStatus = "archived"
)

// LifecycleAction is an admin-triggered transition on a document.
type LifecycleAction string

const (
	ActionArchive LifecycleAction = "archive"
	ActionRestore LifecycleAction = "restore"
	ActionPurge   LifecycleAction = "purge"
	ActionClear   LifecycleAction = "clear"
	ActionReplace LifecycleAction = "replace"
)

// Document is the authoritative metadata row for a knowledge-base document.
// The relational store owns existence: when this row is gone, the document is gone,
// whatever stragglers remain in the vector index or the blob store.
type Document struct {
	ID          string         `db:"id" json:"id"`
	KBID        string         `db:"kb_id" json:"kbId"`
	Name        string         `db:"name" json:"name"`
	ContentHash string         `db:"content_hash" json:"contentHash"`
	Status      DocumentStatus `db:"status" json:"status"`
	SizeBytes   int64          `db:"size_bytes" json:"sizeBytes"`
	StorageKey  string         `db:"storage_key" json:"storageKey"`
	CreatedAt   time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time      `db:"updated_at" json:"updatedAt"`
	ArchivedAt  *time.Time     `db:"archived_at" json:"archivedAt,omitempty"`
}

// Snapshot captures the fields an audit event must retain after the row is deleted.
func (d *Document) Snapshot() DocumentSnapshot {
	return DocumentSnapshot{
		Name:      d.Name,
		KBID:      d.KBID,
		SizeBytes: d.SizeBytes,
	}
}

// DocumentSnapshot is the pre-destruction state embedded in lifecycle events.
type DocumentSnapshot struct {
	Name      string `json:"name"`
	KBID      string `json:"kb_id"`
	SizeBytes int64  `json:"size_bytes"`
}

// DocumentFilter narrows listing queries.
type DocumentFilter struct {
	KBID            string
	Status          DocumentStatus
	IncludeArchived bool
	Limit           int
	Offset          int
}

// DuplicateCheckResult reports a name collision decision at intake time.
type DuplicateCheckResult struct {
	Conflict    bool   `json:"conflict"`
	ExistingID  string `json:"existingId,omitempty"`
	AutoCleared bool   `json:"autoCleared"`
}

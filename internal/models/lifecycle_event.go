package models

import "time"

// EventAction constants name the lifecycle transitions recorded in the audit trail.
const (
	EventActionArchived    = "archived"
	EventActionRestored    = "restored"
	EventActionPurged      = "purged"
	EventActionCleared     = "cleared"
	EventActionReplaced    = "replaced"
	EventActionAutoCleared = "auto_cleared"
)

// EventOutcome values for lifecycle events.
const (
	EventOutcomeSuccess = "success"
	EventOutcomeFailure = "failure"
)

// LifecycleEvent is an immutable audit record of one lifecycle transition.
// It has its own lifecycle: events survive the deletion of their document,
// so Snapshot must be captured before any destructive step runs.
type LifecycleEvent struct {
	ID            string    `db:"id" json:"id"`
	DocumentID    string    `db:"document_id" json:"documentId"`
	ActorID       string    `db:"actor_id" json:"actorId"`
	Action        string    `db:"action" json:"action"`
	Outcome       string    `db:"outcome" json:"outcome"`
	FailureReason *string   `db:"failure_reason" json:"failureReason,omitempty"`
	Snapshot      []byte    `db:"snapshot" json:"snapshot,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

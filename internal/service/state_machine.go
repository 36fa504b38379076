package service

import (
	"github.com/noah-isme/kb-admin-api/internal/models"
	appErrors "github.com/noah-isme/kb-admin-api/pkg/errors"
)

// requiredStatus maps each lifecycle action to the only status it may run from.
//
//	archive: completed -> archived
//	restore: archived  -> completed
//	purge:   archived  -> (deleted)
//	clear:   failed    -> (deleted)
//	replace: completed -> processing
var requiredStatus = map[models.LifecycleAction]models.DocumentStatus{
	models.ActionArchive: models.StatusCompleted,
	models.ActionRestore: models.StatusArchived,
	models.ActionPurge:   models.StatusArchived,
	models.ActionClear:   models.StatusFailed,
	models.ActionReplace: models.StatusCompleted,
}

// CanTransition validates a lifecycle action against the document's current
// status. It is a pure function: no store access, no side effects. A redundant
// retry of an already-applied archive is denied with a distinct error so
// callers can tell it apart from a first-time success.
func CanTransition(current models.DocumentStatus, action models.LifecycleAction) error {
	required, ok := requiredStatus[action]
	if !ok {
		return appErrors.Clone(appErrors.ErrValidation, "unknown lifecycle action")
	}
	if current == required {
		return nil
	}

	switch action {
	case models.ActionArchive:
		if current == models.StatusArchived {
			return appErrors.ErrAlreadyArchived
		}
		return appErrors.ErrNotCompleted
	case models.ActionRestore, models.ActionPurge:
		return appErrors.ErrNotArchived
	case models.ActionClear:
		return appErrors.ErrNotFailed
	case models.ActionReplace:
		return appErrors.ErrNotReplaceable
	default:
		return appErrors.Clone(appErrors.ErrValidation, "unknown lifecycle action")
	}
}

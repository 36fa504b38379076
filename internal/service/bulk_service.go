package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/kb-admin-api/internal/models"
	appErrors "github.com/noah-isme/kb-admin-api/pkg/errors"
)

// guardCodes are the per-item outcomes that count as "skipped": the item was
// simply not in a state the operation applies to. Anything else is a failure.
var guardCodes = map[string]struct{}{
	appErrors.ErrNotCompleted.Code:        {},
	appErrors.ErrAlreadyArchived.Code:     {},
	appErrors.ErrNotArchived.Code:         {},
	appErrors.ErrNotFailed.Code:           {},
	appErrors.ErrNotReplaceable.Code:      {},
	appErrors.ErrNotFound.Code:            {},
	appErrors.ErrNameCollision.Code:       {},
	appErrors.ErrOperationInProgress.Code: {},
}

type lifecycleOperator interface {
	Archive(ctx context.Context, id string, actor *models.JWTClaims) (*LifecycleResult, error)
	Restore(ctx context.Context, id string, actor *models.JWTClaims) (*LifecycleResult, error)
	Purge(ctx context.Context, id string, actor *models.JWTClaims, confirm bool) (*LifecycleResult, error)
	Clear(ctx context.Context, id string, actor *models.JWTClaims) (*LifecycleResult, error)
}

type bulkObserver interface {
	ObserveBulkItems(operation string, succeeded, skipped, failed int)
}

// BulkService fans a lifecycle operation out over many documents with a
// bounded worker pool. Items are fully independent: one failure never stops
// the batch, and a panic in one item is contained to that item.
type BulkService struct {
	lifecycle lifecycleOperator
	observer  bulkObserver
	logger    *zap.Logger
	workers   int
}

func NewBulkService(lifecycle lifecycleOperator, observer bulkObserver, logger *zap.Logger, workers int) *BulkService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = 4
	}
	return &BulkService{lifecycle: lifecycle, observer: observer, logger: logger, workers: workers}
}

func (s *BulkService) Archive(ctx context.Context, ids []string, actor *models.JWTClaims) (*models.BulkOperationResult, error) {
	return s.run(ctx, "archive", ids, func(c context.Context, id string) error {
		_, err := s.lifecycle.Archive(c, id, actor)
		return err
	})
}

func (s *BulkService) Restore(ctx context.Context, ids []string, actor *models.JWTClaims) (*models.BulkOperationResult, error) {
	return s.run(ctx, "restore", ids, func(c context.Context, id string) error {
		_, err := s.lifecycle.Restore(c, id, actor)
		return err
	})
}

func (s *BulkService) Purge(ctx context.Context, ids []string, actor *models.JWTClaims, confirm bool) (*models.BulkOperationResult, error) {
	// Confirmation and the admin gate are checked once up front so a bad
	// request produces one error instead of len(ids) identical failures.
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if !confirm {
		return nil, appErrors.ErrConfirmationRequired
	}
	return s.run(ctx, "purge", ids, func(c context.Context, id string) error {
		_, err := s.lifecycle.Purge(c, id, actor, true)
		return err
	})
}

func (s *BulkService) Clear(ctx context.Context, ids []string, actor *models.JWTClaims) (*models.BulkOperationResult, error) {
	return s.run(ctx, "clear", ids, func(c context.Context, id string) error {
		_, err := s.lifecycle.Clear(c, id, actor)
		return err
	})
}

type bulkItemOutcome struct {
	index   int
	skipped *models.BulkItemIssue
	failed  *models.BulkItemIssue
	id      string
}

func (s *BulkService) run(ctx context.Context, operation string, ids []string, do func(context.Context, string) error) (*models.BulkOperationResult, error) {
	if len(ids) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "document id list is empty")
	}

	operationID := uuid.NewString()
	s.logger.Info("bulk operation started",
		zap.String("operation_id", operationID),
		zap.String("operation", operation),
		zap.Int("count", len(ids)))

	sem := make(chan struct{}, s.workers)
	outcomes := make([]bulkItemOutcome, len(ids))
	var wg sync.WaitGroup

	skipRemaining := func(from int) {
		for j := from; j < len(ids); j++ {
			outcomes[j] = bulkItemOutcome{index: j, id: ids[j], skipped: &models.BulkItemIssue{ID: ids[j], Reason: "cancelled"}}
		}
	}

	// Cancellation is cooperative: items already dispatched run to
	// completion on a detached context, items not yet started are skipped.
dispatch:
	for i, id := range ids {
		select {
		case <-ctx.Done():
			skipRemaining(i)
			break dispatch
		case sem <- struct{}{}:
		}
		// Both select branches can be ready at once and the slot may win;
		// re-check so a cancelled batch never dispatches another item.
		if ctx.Err() != nil {
			<-sem
			skipRemaining(i)
			break dispatch
		}

		itemCtx := context.WithoutCancel(ctx)
		wg.Add(1)
		go func(index int, documentID string) {
			defer wg.Done()
			defer func() { <-sem }()
			outcomes[index] = s.runItem(itemCtx, documentID, index, do)
		}(i, id)
	}
	wg.Wait()

	result := &models.BulkOperationResult{OperationID: operationID}
	for _, out := range outcomes {
		switch {
		case out.skipped != nil:
			result.Skipped = append(result.Skipped, *out.skipped)
		case out.failed != nil:
			result.Failed = append(result.Failed, *out.failed)
		case out.id != "":
			result.Succeeded = append(result.Succeeded, out.id)
		}
	}

	if s.observer != nil {
		s.observer.ObserveBulkItems(operation, len(result.Succeeded), len(result.Skipped), len(result.Failed))
	}
	s.logger.Info("bulk operation finished",
		zap.String("operation_id", operationID),
		zap.String("operation", operation),
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("failed", len(result.Failed)))
	return result, nil
}

func (s *BulkService) runItem(ctx context.Context, documentID string, index int, do func(context.Context, string) error) (out bulkItemOutcome) {
	out = bulkItemOutcome{index: index, id: documentID}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("bulk item panicked", zap.String("document_id", documentID), zap.Any("panic", r))
			out.failed = &models.BulkItemIssue{ID: documentID, Reason: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	if err := do(ctx, documentID); err != nil {
		appErr := appErrors.FromError(err)
		issue := &models.BulkItemIssue{ID: documentID, Reason: appErr.Message}
		if _, guard := guardCodes[appErr.Code]; guard {
			out.skipped = issue
		} else {
			out.failed = issue
		}
	}
	return out
}

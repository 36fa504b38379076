package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/kb-admin-api/internal/models"
)

func newEventRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestLifecycleEventRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newEventRepoMock(t)
	defer cleanup()

	repo := NewLifecycleEventRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO lifecycle_events")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	event := &models.LifecycleEvent{
		DocumentID: "doc-1",
		ActorID:    "admin-1",
		Action:     models.EventActionPurged,
		Outcome:    models.EventOutcomeSuccess,
		Snapshot:   []byte(`{"name":"spec.pdf","kb_id":"kb-1","size_bytes":2048}`),
	}
	require.NoError(t, repo.Create(context.Background(), event))
	require.NotEmpty(t, event.ID)
	require.False(t, event.CreatedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLifecycleEventRepositoryListByDocument(t *testing.T) {
	db, mock, cleanup := newEventRepoMock(t)
	defer cleanup()

	repo := NewLifecycleEventRepository(db)
	rows := sqlmock.NewRows([]string{"id", "document_id", "actor_id", "action", "outcome", "failure_reason", "snapshot", "created_at"}).
		AddRow("evt-2", "doc-1", "admin-1", models.EventActionPurged, models.EventOutcomeSuccess, nil, []byte(`{}`), time.Now()).
		AddRow("evt-1", "doc-1", "admin-1", models.EventActionArchived, models.EventOutcomeSuccess, nil, nil, time.Now().Add(-time.Hour))
	mock.ExpectQuery(regexp.QuoteMeta("FROM lifecycle_events WHERE document_id = $1")).
		WithArgs("doc-1", 50, 0).
		WillReturnRows(rows)

	events, err := repo.ListByDocument(context.Background(), "doc-1", 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, models.EventActionPurged, events[0].Action)
	require.NoError(t, mock.ExpectationsWereMet())
}

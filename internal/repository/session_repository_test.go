package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/escolaware/escola-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func sessionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "class_id", "weekly_slot_id", "date", "start_min", "end_min", "content", "status", "created_at", "updated_at"})
}

func TestSessionRepositoryFindByID(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	rows := sessionRows().
		AddRow("ses-1", "class-1", "slot-1", time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), 480, 530, nil, models.SessionStatusPlanned, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, class_id, weekly_slot_id, date, start_min, end_min, content, status, created_at, updated_at FROM class_sessions WHERE id = $1")).
		WithArgs("ses-1").
		WillReturnRows(rows)

	session, err := repo.FindByID(context.Background(), "ses-1")
	require.NoError(t, err)
	assert.Equal(t, "class-1", session.ClassID)
	assert.Equal(t, 480, session.StartMin)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryFindByIDNoRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery("SELECT .* FROM class_sessions WHERE id").
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByID(context.Background(), "missing")
	assert.Equal(t, sql.ErrNoRows, err, "callers check the raw sentinel")
}

func TestSessionRepositoryListActiveByClassAndDate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	rows := sessionRows().
		AddRow("ses-1", "class-1", "slot-1", date, 480, 530, nil, models.SessionStatusPlanned, time.Now(), time.Now()).
		AddRow("ses-2", "class-1", "slot-2", date, 540, 590, nil, models.SessionStatusHeld, time.Now(), time.Now())
	mock.ExpectQuery("SELECT .* FROM class_sessions\nWHERE class_id = \\$1 AND date = \\$2 AND status <> \\$3").
		WithArgs("class-1", date, models.SessionStatusCancelled).
		WillReturnRows(rows)

	sessions, err := repo.ListActiveByClassAndDate(context.Background(), "class-1", date)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryListForClassOnDate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	date := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"id", "class_id", "weekly_slot_id", "date", "start_min", "end_min", "content", "status", "created_at", "updated_at", "has_attendance"}).
		AddRow("ses-1", "class-1", "slot-1", date, 480, 530, nil, models.SessionStatusHeld, time.Now(), time.Now(), true)
	mock.ExpectQuery("SELECT .*has_attendance.*FROM class_sessions").
		WithArgs("class-1", date, models.SessionStatusCancelled).
		WillReturnRows(rows)

	items, err := repo.ListForClassOnDate(context.Background(), "class-1", date)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].HasAttendance)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec("INSERT INTO class_sessions").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	session := models.ClassSession{
		ClassID:      "class-1",
		WeeklySlotID: "slot-1",
		Date:         time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC),
		StartMin:     480,
		EndMin:       530,
		Status:       models.SessionStatusPlanned,
	}
	err := repo.Create(context.Background(), &session)
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID, "missing id is generated")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryCountBySlot(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM class_sessions WHERE weekly_slot_id = $1 AND status <> $2")).
		WithArgs("slot-1", models.SessionStatusCancelled).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountBySlot(context.Background(), "slot-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

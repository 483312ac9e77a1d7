package ledger

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// A helper function to create a mock database connection.
func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func TestGormStore_GetActiveSessionQueryError(t *testing.T) {
	gormDB, mock := newMockDB(t)
	store := NewGormStore(gormDB, "lot-1")

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "parking_sessions"`)).
		WillReturnError(errors.New("connection reset"))

	session, err := store.GetActiveSession(context.Background(), "T 100 AB")
	assert.Nil(t, session)
	assert.ErrorContains(t, err, "failed to query active session for plate T 100 AB")
	assert.ErrorContains(t, err, "connection reset")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_GetActiveSessionFound(t *testing.T) {
	gormDB, mock := newMockDB(t)
	store := NewGormStore(gormDB, "lot-1")

	entry := time.Now().Add(-30 * time.Minute)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "parking_sessions"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "plate", "facility_id", "entry_time", "status"}).
			AddRow(7, "T 100 AB", "lot-1", entry, "inside"))

	session, err := store.GetActiveSession(context.Background(), "T 100 AB")
	require.NoError(t, err)
	require.NotNil(t, session)
	assert.Equal(t, int64(7), session.ID)
	assert.Equal(t, "inside", session.Status)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_RegisterEntryCountError(t *testing.T) {
	gormDB, mock := newMockDB(t)
	store := NewGormStore(gormDB, "lot-1")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "parking_sessions"`)).
		WillReturnError(errors.New("database is locked"))
	mock.ExpectRollback()

	err := store.RegisterEntry(context.Background(), "T 100 AB")
	assert.ErrorContains(t, err, "failed to check active session for plate T 100 AB")
	assert.ErrorContains(t, err, "database is locked")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_RegisterEntryInsertError(t *testing.T) {
	gormDB, mock := newMockDB(t)
	store := NewGormStore(gormDB, "lot-1")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "parking_sessions"`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "parking_sessions"`)).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.RegisterEntry(context.Background(), "T 100 AB")
	assert.ErrorContains(t, err, "failed to create session for plate T 100 AB")
	assert.ErrorContains(t, err, "disk full")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_CompleteExitQueryError(t *testing.T) {
	gormDB, mock := newMockDB(t)
	store := NewGormStore(gormDB, "lot-1")

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "parking_sessions"`)).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	completed, err := store.CompleteExit(context.Background(), "T 100 AB")
	assert.False(t, completed)
	assert.ErrorContains(t, err, "failed to query active session for plate T 100 AB")

	assert.NoError(t, mock.ExpectationsWereMet())
}

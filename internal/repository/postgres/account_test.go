package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupcast/internal/domain"
	"groupcast/internal/repository"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func accountRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "phone", "api_id", "api_hash", "session", "active", "banned",
		"owner_id", "owner_name", "created_at", "last_used_at",
	})
}

func TestAccountRepo_Create(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAccountRepo(db)

	now := time.Now()
	sess := "sess-dir"
	mock.ExpectQuery("INSERT INTO accounts").
		WithArgs("+14155550100", int32(123456), "abcdef12345", &sess, true, false, int64(42), "alice").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), now))

	created, err := repo.Create(context.Background(), domain.Account{
		Phone:     "+14155550100",
		APIID:     123456,
		APIHash:   "abcdef12345",
		Session:   &sess,
		Active:    true,
		OwnerID:   42,
		OwnerName: "alice",
	})

	require.NoError(t, err)
	assert.Equal(t, int64(7), created.ID)
	assert.Equal(t, now, created.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_ByPhone(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewAccountRepo(db)

		mock.ExpectQuery("SELECT (.+) FROM accounts WHERE phone").
			WithArgs("+14155550100").
			WillReturnRows(accountRows().AddRow(
				int64(7), "+14155550100", int32(123456), "abcdef12345", nil,
				true, false, int64(42), "alice", time.Now(), nil,
			))

		acc, err := repo.ByPhone(context.Background(), "+14155550100")
		require.NoError(t, err)
		assert.Equal(t, int64(7), acc.ID)
		assert.Equal(t, int64(42), acc.OwnerID)
		assert.True(t, acc.Usable())
	})

	t.Run("absent", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewAccountRepo(db)

		mock.ExpectQuery("SELECT (.+) FROM accounts WHERE phone").
			WithArgs("+10000000000").
			WillReturnRows(accountRows())

		_, err := repo.ByPhone(context.Background(), "+10000000000")
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestAccountRepo_Eligible(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAccountRepo(db)

	mock.ExpectQuery("SELECT (.+) FROM accounts WHERE active AND NOT banned").
		WillReturnRows(accountRows().
			AddRow(int64(1), "+14155550100", int32(1), "h", nil, true, false, int64(42), "a", time.Now(), nil).
			AddRow(int64(2), "+14155550101", int32(2), "h", nil, true, false, int64(77), "b", time.Now(), nil))

	accs, err := repo.Eligible(context.Background())
	require.NoError(t, err)
	require.Len(t, accs, 2)
	assert.Equal(t, "+14155550100", accs[0].Phone)
}

func TestAccountRepo_IdleSince(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAccountRepo(db)

	cutoff := time.Date(2026, 8, 27, 12, 0, 0, 0, time.UTC)
	stale := cutoff.Add(-48 * time.Hour)
	mock.ExpectQuery(`SELECT (.+) FROM accounts\s+WHERE last_used_at IS NULL OR last_used_at <`).
		WithArgs(cutoff).
		WillReturnRows(accountRows().
			AddRow(int64(1), "+14155550100", int32(1), "h", nil, true, false, int64(42), "a", time.Now(), nil).
			AddRow(int64(2), "+14155550101", int32(2), "h", nil, true, false, int64(77), "b", time.Now(), stale))

	accs, err := repo.IdleSince(context.Background(), cutoff)
	require.NoError(t, err)
	require.Len(t, accs, 2)
	assert.Nil(t, accs[0].LastUsedAt)
	require.NotNil(t, accs[1].LastUsedAt)
	assert.True(t, accs[1].LastUsedAt.Before(cutoff))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepo_SetFlags(t *testing.T) {
	t.Run("updates existing", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewAccountRepo(db)

		mock.ExpectExec("UPDATE accounts SET active").
			WithArgs("+14155550100", false).
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, repo.SetActive(context.Background(), "+14155550100", false))
	})

	t.Run("missing phone", func(t *testing.T) {
		db, mock := newMockDB(t)
		repo := NewAccountRepo(db)

		mock.ExpectExec("UPDATE accounts SET banned").
			WithArgs("+10000000000", true).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.SetBanned(context.Background(), "+10000000000", true)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestAccountRepo_Touch(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewAccountRepo(db)

	mock.ExpectExec("UPDATE accounts SET last_used_at").
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.Touch(context.Background(), 7))
	assert.NoError(t, mock.ExpectationsWereMet())
}

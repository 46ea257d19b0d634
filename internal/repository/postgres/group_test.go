package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"groupcast/internal/domain"
)

func TestGroupRepo_Record(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGroupRepo(db)

	mock.ExpectExec("INSERT INTO groups").
		WithArgs(int64(500), "My Group", "https://t.me/+abc", "+14155550100", int64(42)).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.Record(context.Background(), domain.GroupRecord{
		ChatID:       500,
		Title:        "My Group",
		InviteLink:   "https://t.me/+abc",
		AccountPhone: "+14155550100",
		OwnerID:      42,
	})

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGroupRepo_ByOwner(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewGroupRepo(db)

	mock.ExpectQuery("SELECT (.+) FROM groups WHERE owner_id").
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "chat_id", "title", "invite_link", "account_phone", "owner_id", "created_at",
		}).
			AddRow(int64(1), int64(500), "My Group", "https://t.me/+abc", "+14155550100", int64(42), time.Now()).
			AddRow(int64(2), int64(501), "Other", "", "+14155550100", int64(42), time.Now()))

	groups, err := repo.ByOwner(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "My Group", groups[0].Title)
	assert.Empty(t, groups[1].InviteLink)
}

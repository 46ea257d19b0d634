package postgres

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"groupcast/internal/domain"
)

// GroupRepo implements repository.GroupRepository.
type GroupRepo struct {
	db *sqlx.DB
}

// NewGroupRepo creates a group repository.
func NewGroupRepo(db *sqlx.DB) *GroupRepo {
	return &GroupRepo{db: db}
}

// Record persists one created group.
func (r *GroupRepo) Record(ctx context.Context, g domain.GroupRecord) error {
	query := `
		INSERT INTO groups (chat_id, title, invite_link, account_phone, owner_id)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := r.db.ExecContext(ctx, query,
		g.ChatID, g.Title, g.InviteLink, g.AccountPhone, g.OwnerID,
	); err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

// ByOwner lists groups created on behalf of one bot user, newest first.
func (r *GroupRepo) ByOwner(ctx context.Context, ownerID int64) ([]domain.GroupRecord, error) {
	var groups []domain.GroupRecord
	query := `
		SELECT id, chat_id, title, invite_link, account_phone, owner_id, created_at
		FROM groups WHERE owner_id = $1 ORDER BY created_at DESC
	`
	if err := r.db.SelectContext(ctx, &groups, query, ownerID); err != nil {
		return nil, fmt.Errorf("select groups by owner: %w", err)
	}
	return groups, nil
}

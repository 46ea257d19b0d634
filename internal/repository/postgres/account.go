// Package postgres implements the repository contracts over PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"groupcast/internal/domain"
	"groupcast/internal/repository"
)

// AccountRepo implements repository.AccountRepository.
type AccountRepo struct {
	db *sqlx.DB
}

// NewAccountRepo creates an account repository.
func NewAccountRepo(db *sqlx.DB) *AccountRepo {
	return &AccountRepo{db: db}
}

const accountColumns = `id, phone, api_id, api_hash, session, active, banned, owner_id, owner_name, created_at, last_used_at`

// Create persists a fully onboarded account.
func (r *AccountRepo) Create(ctx context.Context, acc domain.Account) (domain.Account, error) {
	query := `
		INSERT INTO accounts (phone, api_id, api_hash, session, active, banned, owner_id, owner_name)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		acc.Phone, acc.APIID, acc.APIHash, acc.Session,
		acc.Active, acc.Banned, acc.OwnerID, acc.OwnerName,
	).Scan(&acc.ID, &acc.CreatedAt)
	if err != nil {
		return domain.Account{}, fmt.Errorf("insert account: %w", err)
	}
	return acc, nil
}

// ByPhone fetches one account by phone number.
func (r *AccountRepo) ByPhone(ctx context.Context, phone string) (domain.Account, error) {
	var acc domain.Account
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE phone = $1`
	err := r.db.GetContext(ctx, &acc, query, phone)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, repository.ErrNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("select account by phone: %w", err)
	}
	return acc, nil
}

// ByOwner lists accounts onboarded by one bot user, newest first.
func (r *AccountRepo) ByOwner(ctx context.Context, ownerID int64) ([]domain.Account, error) {
	var accs []domain.Account
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE owner_id = $1 ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &accs, query, ownerID); err != nil {
		return nil, fmt.Errorf("select accounts by owner: %w", err)
	}
	return accs, nil
}

// Eligible lists active, unbanned accounts.
func (r *AccountRepo) Eligible(ctx context.Context) ([]domain.Account, error) {
	var accs []domain.Account
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE active AND NOT banned ORDER BY created_at`
	if err := r.db.SelectContext(ctx, &accs, query); err != nil {
		return nil, fmt.Errorf("select eligible accounts: %w", err)
	}
	return accs, nil
}

// IdleSince lists accounts whose last action predates the cutoff.
func (r *AccountRepo) IdleSince(ctx context.Context, cutoff time.Time) ([]domain.Account, error) {
	var accs []domain.Account
	query := `SELECT ` + accountColumns + ` FROM accounts
		WHERE last_used_at IS NULL OR last_used_at < $1
		ORDER BY last_used_at ASC NULLS FIRST`
	if err := r.db.SelectContext(ctx, &accs, query, cutoff); err != nil {
		return nil, fmt.Errorf("select idle accounts: %w", err)
	}
	return accs, nil
}

// Touch records the account's last action time.
func (r *AccountRepo) Touch(ctx context.Context, id int64) error {
	query := `UPDATE accounts SET last_used_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("touch account: %w", err)
	}
	return nil
}

// SetActive flips the active flag by phone.
func (r *AccountRepo) SetActive(ctx context.Context, phone string, active bool) error {
	return r.setFlag(ctx, `UPDATE accounts SET active = $2 WHERE phone = $1`, phone, active)
}

// SetBanned flips the banned flag by phone.
func (r *AccountRepo) SetBanned(ctx context.Context, phone string, banned bool) error {
	return r.setFlag(ctx, `UPDATE accounts SET banned = $2 WHERE phone = $1`, phone, banned)
}

func (r *AccountRepo) setFlag(ctx context.Context, query, phone string, value bool) error {
	res, err := r.db.ExecContext(ctx, query, phone, value)
	if err != nil {
		return fmt.Errorf("update account flag: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update account flag: %w", err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

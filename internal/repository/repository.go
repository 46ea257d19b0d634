// Package repository defines data access contracts for onboarded accounts
// and created groups. The postgres subpackage provides the production
// implementation; tests use mocks.
package repository

import (
	"context"
	"errors"
	"time"

	"groupcast/internal/domain"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// AccountRepository stores onboarded Telegram accounts.
type AccountRepository interface {
	// Create persists a fully onboarded account and returns it with its
	// assigned ID.
	Create(ctx context.Context, acc domain.Account) (domain.Account, error)

	// ByPhone fetches one account by phone number, ErrNotFound when absent.
	ByPhone(ctx context.Context, phone string) (domain.Account, error)

	// ByOwner lists accounts onboarded by one bot user, newest first.
	ByOwner(ctx context.Context, ownerID int64) ([]domain.Account, error)

	// Eligible lists active, unbanned accounts available for group and
	// broadcast actions.
	Eligible(ctx context.Context) ([]domain.Account, error)

	// IdleSince lists accounts whose last action is older than the cutoff,
	// never-used accounts first, then least recently used.
	IdleSince(ctx context.Context, cutoff time.Time) ([]domain.Account, error)

	// Touch records that the account just performed an action.
	Touch(ctx context.Context, id int64) error

	// SetActive flips the active flag by phone, ErrNotFound when absent.
	SetActive(ctx context.Context, phone string, active bool) error

	// SetBanned flips the banned flag by phone, ErrNotFound when absent.
	SetBanned(ctx context.Context, phone string, banned bool) error
}

// GroupRepository logs groups created through the bot.
type GroupRepository interface {
	// Record persists one created group.
	Record(ctx context.Context, g domain.GroupRecord) error

	// ByOwner lists groups created on behalf of one bot user, newest first.
	ByOwner(ctx context.Context, ownerID int64) ([]domain.GroupRecord, error)
}

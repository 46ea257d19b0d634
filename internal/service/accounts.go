// Package service holds the business operations between the workflow layer
// and the repositories / account sessions.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"groupcast/core/logger"
	"groupcast/internal/domain"
	"groupcast/internal/flow"
	"groupcast/internal/repository"
)

// Accounts manages onboarded Telegram accounts.
type Accounts struct {
	repo repository.AccountRepository
	log  *slog.Logger
}

// NewAccounts creates the account service.
func NewAccounts(repo repository.AccountRepository) *Accounts {
	return &Accounts{repo: repo, log: logger.SVCAccounts}
}

// CheckUnique verifies that no account with this phone exists yet. A
// duplicate is reported as a UniquenessError distinguishing the caller's own
// account from someone else's.
func (s *Accounts) CheckUnique(ctx context.Context, phone string, ownerID int64) error {
	existing, err := s.repo.ByPhone(ctx, phone)
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return flow.External("account lookup", err)
	}
	return &flow.UniquenessError{Phone: phone, Owned: existing.OwnerID == ownerID}
}

// Create persists a fully onboarded account. The uniqueness check is repeated
// here so that two interleaved onboardings of the same phone cannot both
// land.
func (s *Accounts) Create(ctx context.Context, acc domain.Account) (domain.Account, error) {
	if err := s.CheckUnique(ctx, acc.Phone, acc.OwnerID); err != nil {
		return domain.Account{}, err
	}
	acc.Active = true
	created, err := s.repo.Create(ctx, acc)
	if err != nil {
		return domain.Account{}, flow.External("account save", err)
	}
	s.log.Info("account onboarded",
		slog.String("event", "accounts.create"),
		slog.String("phone", created.Phone),
		slog.Int64("account_id", created.ID),
		slog.Int64("user_id", created.OwnerID),
	)
	return created, nil
}

// Owned lists the caller's onboarded accounts.
func (s *Accounts) Owned(ctx context.Context, ownerID int64) ([]domain.Account, error) {
	return s.repo.ByOwner(ctx, ownerID)
}

// Eligible lists accounts available for group and broadcast actions.
func (s *Accounts) Eligible(ctx context.Context) ([]domain.Account, error) {
	return s.repo.Eligible(ctx)
}

// IdleSince lists accounts that have not acted since the cutoff, never-used
// accounts first.
func (s *Accounts) IdleSince(ctx context.Context, cutoff time.Time) ([]domain.Account, error) {
	return s.repo.IdleSince(ctx, cutoff)
}

// Touch records that the account just performed an action. Failures are
// logged and swallowed; a stale last-used stamp must not fail the action.
func (s *Accounts) Touch(ctx context.Context, id int64) {
	if err := s.repo.Touch(ctx, id); err != nil {
		s.log.Warn("touch failed",
			slog.String("event", "accounts.touch"),
			slog.Int64("account_id", id),
			slog.String("err", err.Error()),
		)
	}
}

// SetActive enables or disables an account by phone.
func (s *Accounts) SetActive(ctx context.Context, phone string, active bool) error {
	if err := s.repo.SetActive(ctx, phone, active); err != nil {
		return err
	}
	s.log.Info("account active flag changed",
		slog.String("event", "accounts.set_active"),
		slog.String("phone", phone),
		slog.Bool("active", active),
	)
	return nil
}

// SetBanned marks or unmarks an account as banned by phone.
func (s *Accounts) SetBanned(ctx context.Context, phone string, banned bool) error {
	if err := s.repo.SetBanned(ctx, phone, banned); err != nil {
		return err
	}
	s.log.Info("account banned flag changed",
		slog.String("event", "accounts.set_banned"),
		slog.String("phone", phone),
		slog.Bool("banned", banned),
	)
	return nil
}

package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"groupcast/core/logger"
	"groupcast/internal/accounts"
	"groupcast/internal/domain"
	"groupcast/internal/flow"
	"groupcast/internal/repository"
)

// Groups creates groups through onboarded accounts and broadcasts messages
// to the groups an account owns.
type Groups struct {
	dialer   accounts.Dialer
	groups   repository.GroupRepository
	accounts *Accounts
	opts     accounts.Options
	log      *slog.Logger

	// sleep is swapped out in tests to avoid real pacing delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewGroups creates the group service.
func NewGroups(dialer accounts.Dialer, groups repository.GroupRepository, accs *Accounts, opts accounts.Options) *Groups {
	return &Groups{
		dialer:   dialer,
		groups:   groups,
		accounts: accs,
		opts:     opts.Normalize(),
		log:      logger.SVCGroups,
		sleep:    pause,
	}
}

func pause(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Created lists groups created on behalf of one bot user.
func (s *Groups) Created(ctx context.Context, ownerID int64) ([]domain.GroupRecord, error) {
	return s.groups.ByOwner(ctx, ownerID)
}

// Create makes one group through the given account and logs it.
func (s *Groups) Create(ctx context.Context, acc domain.Account, title string) (domain.GroupResult, error) {
	cl, err := s.dialer.Restore(ctx, acc)
	if err != nil {
		return domain.GroupResult{}, flow.External("account session", err)
	}
	defer cl.Close()

	res, err := s.createOne(ctx, cl, acc, title)
	if err != nil {
		return domain.GroupResult{}, err
	}
	s.accounts.Touch(ctx, acc.ID)
	return res, nil
}

// createOne creates a single group on an open session and records it.
func (s *Groups) createOne(ctx context.Context, cl accounts.Client, acc domain.Account, title string) (domain.GroupResult, error) {
	res, err := cl.CreateGroup(ctx, title, "")
	if err != nil {
		return domain.GroupResult{}, flow.External("group creation", err)
	}

	if rerr := s.groups.Record(ctx, domain.GroupRecord{
		ChatID:       res.ChatID,
		Title:        title,
		InviteLink:   res.InviteLink,
		AccountPhone: acc.Phone,
		OwnerID:      acc.OwnerID,
	}); rerr != nil {
		// The group exists on Telegram either way; a lost log row is not
		// worth failing the operation over.
		s.log.Warn("group log insert failed",
			slog.String("event", "groups.record"),
			slog.Int64("group_id", res.ChatID),
			slog.String("err", rerr.Error()),
		)
	}

	s.log.Info("group created",
		slog.String("event", "groups.create"),
		slog.Int64("group_id", res.ChatID),
		slog.String("phone", acc.Phone),
	)
	return res, nil
}

// CreateBatch creates count sequentially numbered groups through one
// account. Per-item failures are collected in the report, never aborting the
// remainder of the batch.
func (s *Groups) CreateBatch(ctx context.Context, acc domain.Account, baseTitle string, count int) (domain.BatchReport, error) {
	report := domain.BatchReport{ID: uuid.NewString()}

	cl, err := s.dialer.Restore(ctx, acc)
	if err != nil {
		return report, flow.External("account session", err)
	}
	defer cl.Close()

	for i := 1; i <= count; i++ {
		title := fmt.Sprintf("%s %d", baseTitle, i)
		res, cerr := s.createOne(ctx, cl, acc, title)
		if cerr != nil {
			report.AddFailure(title, cerr)
		} else {
			report.AddSuccess(res.InviteLink)
		}
		if i < count {
			if serr := s.sleep(ctx, s.opts.GroupDelay); serr != nil {
				return report, serr
			}
		}
	}

	s.accounts.Touch(ctx, acc.ID)
	s.logReport("groups.bulk", acc.Phone, report)
	return report, nil
}

// CreateAcross creates one identically titled group on each given account.
// A failing account is reported and skipped.
func (s *Groups) CreateAcross(ctx context.Context, accs []domain.Account, title string) (domain.BatchReport, error) {
	report := domain.BatchReport{ID: uuid.NewString()}

	for i, acc := range accs {
		res, err := s.createAcrossOne(ctx, acc, title)
		if err != nil {
			report.AddFailure(acc.Phone, err)
		} else {
			report.AddSuccess(res.InviteLink)
			s.accounts.Touch(ctx, acc.ID)
		}
		if i < len(accs)-1 {
			if serr := s.sleep(ctx, s.opts.GroupDelay); serr != nil {
				return report, serr
			}
		}
	}

	s.logReport("groups.multi", "", report)
	return report, nil
}

func (s *Groups) createAcrossOne(ctx context.Context, acc domain.Account, title string) (domain.GroupResult, error) {
	cl, err := s.dialer.Restore(ctx, acc)
	if err != nil {
		return domain.GroupResult{}, err
	}
	defer cl.Close()
	return s.createOne(ctx, cl, acc, title)
}

// Broadcast sends text to every group the account owns, pacing messages with
// a fixed delay. Per-group failures are collected, never aborting the rest.
func (s *Groups) Broadcast(ctx context.Context, acc domain.Account, text string) (domain.BatchReport, error) {
	report := domain.BatchReport{ID: uuid.NewString()}

	cl, err := s.dialer.Restore(ctx, acc)
	if err != nil {
		return report, flow.External("account session", err)
	}
	defer cl.Close()

	groups, err := cl.OwnGroups(ctx)
	if err != nil {
		return report, flow.External("group listing", err)
	}

	for i, g := range groups {
		if serr := cl.SendMessage(ctx, g.ID, text); serr != nil {
			report.AddFailure(g.Title, serr)
		} else {
			report.AddSuccess("")
		}
		if i < len(groups)-1 {
			if serr := s.sleep(ctx, s.opts.MessageDelay); serr != nil {
				return report, serr
			}
		}
	}

	s.accounts.Touch(ctx, acc.ID)
	s.logReport("groups.broadcast", acc.Phone, report)
	return report, nil
}

func (s *Groups) logReport(event, phone string, report domain.BatchReport) {
	attrs := []any{
		slog.String("event", event),
		slog.String("batch_id", report.ID),
		slog.Int("ok", report.Success),
		slog.Int("failed", report.Failed),
	}
	if phone != "" {
		attrs = append(attrs, slog.String("phone", phone))
	}
	s.log.Info("batch finished", attrs...)
}

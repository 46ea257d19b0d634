package tdlib

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"groupcast/core/logger"
	"groupcast/internal/accounts"
	"groupcast/internal/domain"
)

// Dialer opens TDLib sessions under a shared base directory, one
// subdirectory per phone number.
type Dialer struct {
	baseDir string
	log     *slog.Logger
}

// NewDialer creates a dialer storing sessions under baseDir.
func NewDialer(baseDir string) *Dialer {
	return &Dialer{baseDir: baseDir, log: logger.ACC}
}

// Dial starts a fresh session for onboarding. The returned client is not yet
// authorized; SendCode / SignIn drive it to a reusable credential.
func (d *Dialer) Dial(ctx context.Context, creds accounts.Credentials) (accounts.Client, error) {
	dir := d.sessionDir(creds.Phone)
	d.log.Info("dialing account",
		slog.String("event", "accounts.dial"),
		slog.String("phone", creds.Phone),
	)
	return newClient(creds, dir)
}

// Restore reopens a previously authorized session. When the stored credential
// no longer authorizes (revoked session, wiped directory) it returns
// accounts.ErrNotAuthorized.
func (d *Dialer) Restore(ctx context.Context, acc domain.Account) (accounts.Client, error) {
	dir := acc.SessionCredential()
	if dir == "" {
		dir = d.sessionDir(acc.Phone)
	}

	c, err := newClient(accounts.Credentials{
		APIID:   acc.APIID,
		APIHash: acc.APIHash,
		Phone:   acc.Phone,
	}, dir)
	if err != nil {
		return nil, err
	}

	st, err := c.waitStage(ctx)
	if err != nil {
		c.Close()
		return nil, err
	}
	if st != stageReady {
		d.log.Warn("stored session no longer authorizes",
			slog.String("event", "accounts.restore"),
			slog.String("phone", acc.Phone),
		)
		c.Close()
		return nil, accounts.ErrNotAuthorized
	}
	if _, err := c.waitAPI(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// sessionDir maps a phone number to its session directory.
func (d *Dialer) sessionDir(phone string) string {
	name := strings.TrimPrefix(phone, "+")
	return filepath.Join(d.baseDir, name)
}

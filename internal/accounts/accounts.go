// Package accounts defines the capability contract for user-controlled
// Telegram account sessions (MTProto). The engine and services depend only on
// these interfaces; the tdlib subpackage provides the production adapter and
// tests provide stubs.
package accounts

import (
	"context"
	"errors"
	"time"

	"groupcast/internal/domain"
)

// Credentials identify a Telegram application plus the phone being signed in.
type Credentials struct {
	APIID   int32
	APIHash string
	Phone   string
}

// SignInResult is the outcome of a sign-in attempt. NeedsPassword reports the
// second-factor requirement; it is a branch, not a failure.
type SignInResult struct {
	Session       string
	NeedsPassword bool
}

// ErrNotAuthorized is returned by actions that need a completed sign-in.
var ErrNotAuthorized = errors.New("account not authorized")

// Client is one live account session.
type Client interface {
	// SendCode requests a verification code for the credentials' phone and
	// returns an opaque hash to pass back into SignIn.
	SendCode(ctx context.Context) (hash string, err error)

	// SignIn submits the received code. When the account has two-factor
	// authentication enabled the result reports NeedsPassword instead of a
	// session credential.
	SignIn(ctx context.Context, code, hash string) (SignInResult, error)

	// SignInWithPassword completes the two-factor detour.
	SignInWithPassword(ctx context.Context, password string) (SignInResult, error)

	// CreateGroup creates a new group owned by this account.
	CreateGroup(ctx context.Context, title, about string) (domain.GroupResult, error)

	// OwnGroups lists groups where this account is the original creator,
	// not merely an administrator.
	OwnGroups(ctx context.Context) ([]domain.GroupRef, error)

	// SendMessage delivers text to one group chat.
	SendMessage(ctx context.Context, chatID int64, text string) error

	// Close releases the underlying session. The reusable credential
	// survives a Close.
	Close() error
}

// Dialer opens account sessions.
type Dialer interface {
	// Dial starts a fresh, unauthorized session for onboarding.
	Dial(ctx context.Context, creds Credentials) (Client, error)

	// Restore reopens a session from a previously stored credential.
	Restore(ctx context.Context, acc domain.Account) (Client, error)
}

// Options tunes batch pacing when driving account actions.
type Options struct {
	// MessageDelay is the fixed pause between broadcast messages.
	MessageDelay time.Duration
	// GroupDelay is the fixed pause between bulk group creations.
	GroupDelay time.Duration
}

// Normalize applies defaults for zeroed fields.
func (o Options) Normalize() Options {
	if o.MessageDelay <= 0 {
		o.MessageDelay = 2 * time.Second
	}
	if o.GroupDelay <= 0 {
		o.GroupDelay = 3 * time.Second
	}
	return o
}

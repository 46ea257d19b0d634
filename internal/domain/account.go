package domain

import "time"

// Account is a user-controlled Telegram account managed through the bot.
// Created only when onboarding completes; a half-finished onboarding leaves
// no record.
type Account struct {
	ID         int64      `db:"id"`
	Phone      string     `db:"phone"`
	APIID      int32      `db:"api_id"`
	APIHash    string     `db:"api_hash"`
	Session    *string    `db:"session"`
	Active     bool       `db:"active"`
	Banned     bool       `db:"banned"`
	OwnerID    int64      `db:"owner_id"`
	OwnerName  string     `db:"owner_name"`
	CreatedAt  time.Time  `db:"created_at"`
	LastUsedAt *time.Time `db:"last_used_at"`
}

// Usable reports whether the account may perform group or messaging actions.
func (a Account) Usable() bool {
	return a.Active && !a.Banned
}

// SessionCredential returns the stored reusable session credential, if any.
func (a Account) SessionCredential() string {
	if a.Session == nil {
		return ""
	}
	return *a.Session
}

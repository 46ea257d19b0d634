package domain

import "time"

// GroupRecord logs a group created through the bot.
type GroupRecord struct {
	ID           int64     `db:"id"`
	ChatID       int64     `db:"chat_id"`
	Title        string    `db:"title"`
	InviteLink   string    `db:"invite_link"`
	AccountPhone string    `db:"account_phone"`
	OwnerID      int64     `db:"owner_id"`
	CreatedAt    time.Time `db:"created_at"`
}

// GroupResult is returned by the account capability after creating a group.
type GroupResult struct {
	ChatID     int64
	InviteLink string
}

// GroupRef identifies one group the acting account created.
type GroupRef struct {
	ID    int64
	Title string
}

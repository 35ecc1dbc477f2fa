package models

import (
	"time"

	"github.com/google/uuid"
)

type User struct {
	ID             uuid.UUID `json:"id"`
	TelegramUserID int64     `json:"telegram_id"`
	Username       *string   `json:"username,omitempty"`
	TONWallet      *string   `json:"ton_wallet,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

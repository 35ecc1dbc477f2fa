package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Channel struct {
	ID             uuid.UUID       `json:"id"`
	TelegramChatID *int64          `json:"telegram_channel_id,omitempty"`
	Username       string          `json:"username"`
	Name           *string         `json:"name,omitempty"`
	Category       *string         `json:"category,omitempty"`
	PriceTON       decimal.Decimal `json:"price"`
	Subscribers    int             `json:"subscribers"`
	Verified       bool            `json:"verified"`
	BotIsAdmin     bool            `json:"bot_is_admin"`
	BotCanPost     bool            `json:"bot_can_post"`
	OwnerUserID    *uuid.UUID      `json:"owner_id,omitempty"`
	OwnerTONWallet *string         `json:"owner_ton_wallet,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Channel admin roles, strongest first.
const (
	RoleOwner   = "owner"
	RoleManager = "manager"
	RolePoster  = "poster"
)

var AllRoles = []string{RoleOwner, RoleManager, RolePoster}

func IsValidRole(r string) bool {
	for _, role := range AllRoles {
		if role == r {
			return true
		}
	}
	return false
}

type ChannelAdmin struct {
	ID             uuid.UUID  `json:"id"`
	ChannelID      uuid.UUID  `json:"channel_id"`
	UserID         uuid.UUID  `json:"user_id"`
	Role           string     `json:"role"`
	LastVerifiedAt *time.Time `json:"last_verified_at,omitempty"`
}

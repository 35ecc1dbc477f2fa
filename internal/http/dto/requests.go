package dto

import "time"

type AuthRequest struct {
	TelegramID int64   `json:"telegram_id"`
	Username   *string `json:"username,omitempty"`
}

type CreateChannelRequest struct {
	Username string  `json:"username"`
	Name     *string `json:"name,omitempty"`
	Category *string `json:"category,omitempty"`
	PriceTON string  `json:"price"`
}

type CreateCampaignRequest struct {
	Title     string  `json:"title"`
	AdText    *string `json:"text,omitempty"`
	BudgetTON string  `json:"budget"`
}

type CreateDealRequest struct {
	CampaignID       *string `json:"campaign_id,omitempty"`
	ChannelID        string  `json:"channel_id"`
	EscrowAmount     string  `json:"escrow_amount,omitempty"`
	AdvertiserWallet *string `json:"advertiser_wallet,omitempty"`
	HoldHours        int     `json:"hold_hours,omitempty"`
}

type TransitionRequest struct {
	// Both fields mean the same thing; /status uses "status", /transition
	// uses "state".
	Status string `json:"status,omitempty"`
	State  string `json:"state,omitempty"`
}

func (r TransitionRequest) Target() string {
	if r.Status != "" {
		return r.Status
	}
	return r.State
}

type SettleRequest struct {
	Destination string `json:"destination,omitempty"`
}

type SchedulePostRequest struct {
	ScheduledTime *time.Time `json:"scheduled_time,omitempty"`
	AdText        string     `json:"ad_text,omitempty"`
}

type SetWalletRequest struct {
	Wallet string `json:"wallet"`
}

type AddAdminRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

type PermissionCheckRequest struct {
	UserID    string `json:"user_id,omitempty"`
	ChannelID string `json:"channel_id"`
	Action    string `json:"action"`
}

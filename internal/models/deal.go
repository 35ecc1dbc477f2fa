package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Deal statuses
const (
	DealStatusPending   = "pending"
	DealStatusAccepted  = "accepted"
	DealStatusFunded    = "funded"
	DealStatusScheduled = "scheduled"
	DealStatusPosted    = "posted"
	DealStatusVerified  = "verified"
	DealStatusCompleted = "completed"
	DealStatusRefunded  = "refunded"
	DealStatusCancelled = "cancelled"
)

// Valid state transitions: from -> []to
var ValidDealTransitions = map[string][]string{
	DealStatusPending:   {DealStatusAccepted, DealStatusCancelled},
	DealStatusAccepted:  {DealStatusFunded, DealStatusCancelled},
	DealStatusFunded:    {DealStatusScheduled, DealStatusPosted, DealStatusRefunded},
	DealStatusScheduled: {DealStatusPosted, DealStatusCancelled, DealStatusRefunded},
	DealStatusPosted:    {DealStatusVerified, DealStatusRefunded},
	DealStatusVerified:  {DealStatusCompleted, DealStatusRefunded},
	DealStatusCompleted: {},
	DealStatusRefunded:  {},
	DealStatusCancelled: {},
}

// Progress step per status for the timeline UI. Failure terminals map to 0.
var dealStatusSteps = map[string]int{
	DealStatusPending:   1,
	DealStatusAccepted:  2,
	DealStatusFunded:    3,
	DealStatusScheduled: 3,
	DealStatusPosted:    4,
	DealStatusVerified:  5,
	DealStatusCompleted: 6,
	DealStatusRefunded:  0,
	DealStatusCancelled: 0,
}

var dealStatusLabels = map[string]string{
	DealStatusPending:   "Pending Approval",
	DealStatusAccepted:  "Accepted",
	DealStatusFunded:    "Escrow Funded",
	DealStatusScheduled: "Post Scheduled",
	DealStatusPosted:    "Ad Posted",
	DealStatusVerified:  "Verified",
	DealStatusCompleted: "Completed",
	DealStatusRefunded:  "Refunded",
	DealStatusCancelled: "Cancelled",
}

func IsValidTransition(from, to string) bool {
	allowed, ok := ValidDealTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

func AllowedTransitions(from string) []string {
	allowed := ValidDealTransitions[from]
	if allowed == nil {
		return []string{}
	}
	return allowed
}

// IsTerminalStatus reports whether no further transitions exist from status.
func IsTerminalStatus(status string) bool {
	allowed, ok := ValidDealTransitions[status]
	return ok && len(allowed) == 0
}

func DealStatusStep(status string) int {
	if step, ok := dealStatusSteps[status]; ok {
		return step
	}
	return 1
}

func DealStatusLabel(status string) string {
	if label, ok := dealStatusLabels[status]; ok {
		return label
	}
	return status
}

type Deal struct {
	ID                 uuid.UUID       `json:"id"`
	CampaignID         *uuid.UUID      `json:"campaign_id,omitempty"`
	ChannelID          uuid.UUID       `json:"channel_id"`
	Status             string          `json:"status"`
	EscrowAmount       decimal.Decimal `json:"escrow_amount"`
	AdvertiserWallet   *string         `json:"advertiser_wallet,omitempty"`
	ChannelOwnerWallet *string         `json:"channel_owner_wallet,omitempty"`
	MessageID          *int64          `json:"message_id,omitempty"`
	PostedAt           *time.Time      `json:"posted_at,omitempty"`
	HoldHours          int             `json:"hold_hours"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

// DealWithChannel embeds Deal and adds channel/campaign info to avoid N+1 queries.
type DealWithChannel struct {
	Deal
	ChannelHandle *string `json:"channel,omitempty"`
	ChannelName   *string `json:"channel_name,omitempty"`
	CampaignTitle *string `json:"campaign_title,omitempty"`
}

// DealStateInfo is the state-machine view of a deal exposed to clients.
type DealStateInfo struct {
	Step               int      `json:"step"`
	Label              string   `json:"label"`
	IsTerminal         bool     `json:"is_terminal"`
	AllowedTransitions []string `json:"allowed_transitions"`
}

func StateInfo(status string) DealStateInfo {
	return DealStateInfo{
		Step:               DealStatusStep(status),
		Label:              DealStatusLabel(status),
		IsTerminal:         IsTerminalStatus(status),
		AllowedTransitions: AllowedTransitions(status),
	}
}

// DealParties carries the notification targets for one deal.
type DealParties struct {
	DealID               uuid.UUID
	AdvertiserTelegramID *int64
	OwnerTelegramID      *int64
	ChannelHandle        *string
	EscrowAmount         decimal.Decimal
	HoldHours            int
}

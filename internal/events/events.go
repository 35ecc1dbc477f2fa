package events

import "context"

// Event types
const (
	EventDealStatusChanged = "deal_status_changed"
	EventEscrowPayment     = "escrow_payment"
	EventBotNotification   = "bot_notification"
)

// StreamDeals carries every deal lifecycle event.
const StreamDeals = "events:deal"

type Event struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

type Publisher interface {
	Publish(ctx context.Context, stream string, event Event) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, stream string, handler func(Event)) error
}

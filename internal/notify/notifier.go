package notify

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tg-adescrow/backend/internal/events"
	"github.com/tg-adescrow/backend/internal/models"
	"go.uber.org/zap"
)

// ErrThrottled is returned when the same (deal, event) pair was notified
// less than a cooldown period ago.
var ErrThrottled = errors.New("notification throttled")

const cooldown = 60 * time.Second

// Deal lifecycle events the notifier knows templates for.
const (
	EventAccepted  = "accepted"
	EventFunded    = "funded"
	EventScheduled = "scheduled"
	EventPosted    = "posted"
	EventVerified  = "verified"
	EventCompleted = "completed"
	EventRefunded  = "refunded"
	EventCancelled = "cancelled"
)

const (
	recipientAdvertiser   = "advertiser"
	recipientChannelOwner = "channel_owner"
)

var templates = map[string]string{
	EventAccepted:  "Deal {deal_id}: your deal with {channel} was accepted. Fund the escrow with {amount} TON to proceed.",
	EventFunded:    "Deal {deal_id}: escrow funded with {amount} TON. The post can now be scheduled.",
	EventScheduled: "Deal {deal_id}: post on {channel} scheduled for {scheduled_time}.",
	EventPosted:    "Deal {deal_id}: your ad is live on {channel}. Funds release after a {hold_hours}h hold.",
	EventVerified:  "Deal {deal_id}: the post on {channel} is verified as live.",
	EventCompleted: "Deal {deal_id}: hold period passed, {amount} TON released to the channel owner.",
	EventRefunded:  "Deal {deal_id}: {amount} TON refunded to the advertiser. Reason: {reason}",
	EventCancelled: "Deal {deal_id} with {channel} was cancelled.",
}

var routing = map[string][]string{
	EventAccepted:  {recipientAdvertiser},
	EventFunded:    {recipientChannelOwner},
	EventScheduled: {recipientAdvertiser, recipientChannelOwner},
	EventPosted:    {recipientAdvertiser},
	EventVerified:  {recipientAdvertiser, recipientChannelOwner},
	EventCompleted: {recipientAdvertiser, recipientChannelOwner},
	EventRefunded:  {recipientAdvertiser},
	EventCancelled: {recipientAdvertiser, recipientChannelOwner},
}

// Defaults for template variables the caller did not supply.
var defaults = map[string]string{
	"channel":    "Channel",
	"amount":     "0",
	"hold_hours": "24",
	"reason":     "Advertisement removed or policy violation",
}

type RecipientStore interface {
	Parties(ctx context.Context, dealID uuid.UUID) (*models.DealParties, error)
}

type Messenger interface {
	SendDirectMessage(ctx context.Context, telegramUserID int64, text string) error
}

// Notifier renders templated deal notifications and delivers them to the
// parties of a deal. Delivery is best effort; throttling is in-process and
// resets on restart.
type Notifier struct {
	recipients RecipientStore
	messenger  Messenger
	publisher  events.Publisher
	log        *zap.Logger

	lastSent sync.Map
	now      func() time.Time
}

func NewNotifier(recipients RecipientStore, messenger Messenger, publisher events.Publisher, log *zap.Logger) *Notifier {
	return &Notifier{
		recipients: recipients,
		messenger:  messenger,
		publisher:  publisher,
		log:        log,
		now:        time.Now,
	}
}

// NotifyDeal sends the event's template to the routed parties of a deal.
// A second call for the same (deal, event) within the cooldown returns
// ErrThrottled unless force is set.
func (n *Notifier) NotifyDeal(ctx context.Context, dealID uuid.UUID, event string, vars map[string]string, force bool) error {
	template, ok := templates[event]
	if !ok {
		return errors.New("no template for event " + event)
	}

	key := dealID.String() + ":" + event
	now := n.now()
	var prev any
	if !force {
		// Claim the cooldown window atomically; of two racing callers
		// exactly one wins the compare-and-swap and delivers.
		p, loaded := n.lastSent.LoadOrStore(key, now)
		if loaded {
			if now.Sub(p.(time.Time)) < cooldown {
				return ErrThrottled
			}
			if !n.lastSent.CompareAndSwap(key, p, now) {
				return ErrThrottled
			}
			prev = p
		}
	}

	parties, err := n.recipients.Parties(ctx, dealID)
	if err != nil {
		// A failed lookup attempted no delivery; give the window back.
		if !force {
			if prev != nil {
				n.lastSent.CompareAndSwap(key, now, prev)
			} else {
				n.lastSent.CompareAndDelete(key, now)
			}
		}
		return err
	}
	if force {
		n.lastSent.Store(key, now)
	}

	text := render(template, n.fillVars(dealID, parties, vars))

	for _, recipient := range routing[event] {
		var target *int64
		switch recipient {
		case recipientAdvertiser:
			target = parties.AdvertiserTelegramID
		case recipientChannelOwner:
			target = parties.OwnerTelegramID
		}
		if target == nil {
			continue
		}
		if n.messenger == nil {
			n.log.Debug("no messenger configured, skipping delivery",
				zap.String("deal_id", dealID.String()), zap.String("event", event))
			continue
		}
		if err := n.messenger.SendDirectMessage(ctx, *target, text); err != nil {
			n.log.Warn("notification delivery failed",
				zap.String("deal_id", dealID.String()),
				zap.String("event", event),
				zap.String("recipient", recipient),
				zap.Error(err))
		}
	}

	if n.publisher != nil {
		_ = n.publisher.Publish(ctx, events.StreamDeals, events.Event{
			Type: events.EventBotNotification,
			Payload: map[string]any{
				"deal_id": dealID.String(),
				"event":   event,
				"text":    text,
			},
		})
	}
	return nil
}

func (n *Notifier) fillVars(dealID uuid.UUID, parties *models.DealParties, vars map[string]string) map[string]string {
	filled := map[string]string{"deal_id": shortID(dealID)}
	for k, v := range defaults {
		filled[k] = v
	}
	if parties.ChannelHandle != nil && *parties.ChannelHandle != "" {
		filled["channel"] = "@" + strings.TrimPrefix(*parties.ChannelHandle, "@")
	}
	if !parties.EscrowAmount.IsZero() {
		filled["amount"] = parties.EscrowAmount.String()
	}
	if parties.HoldHours > 0 {
		filled["hold_hours"] = strconv.Itoa(parties.HoldHours)
	}
	for k, v := range vars {
		if v != "" {
			filled[k] = v
		}
	}
	return filled
}

func render(template string, vars map[string]string) string {
	out := template
	for k, v := range vars {
		out = strings.ReplaceAll(out, "{"+k+"}", v)
	}
	return out
}

// shortID keeps messages readable; the full id is one tap away in the UI.
func shortID(id uuid.UUID) string {
	s := id.String()
	return s[:8]
}

package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tg-adescrow/backend/internal/models"
	"go.uber.org/zap"
)

type fakeRecipients struct {
	parties  *models.DealParties
	failures int
}

func (f *fakeRecipients) Parties(_ context.Context, _ uuid.UUID) (*models.DealParties, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("database unavailable")
	}
	return f.parties, nil
}

type sentMessage struct {
	to   int64
	text string
}

type fakeMessenger struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeMessenger) SendDirectMessage(_ context.Context, telegramUserID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{to: telegramUserID, text: text})
	return f.err
}

func int64Ptr(v int64) *int64 { return &v }
func strPtr(s string) *string { return &s }

func newTestNotifier(parties *models.DealParties, messenger *fakeMessenger) *Notifier {
	return NewNotifier(&fakeRecipients{parties: parties}, messenger, nil, zap.NewNop())
}

func TestNotifyRouting(t *testing.T) {
	advertiser := int64(100)
	owner := int64(200)

	tests := []struct {
		event       string
		wantTargets []int64
	}{
		{EventAccepted, []int64{advertiser}},
		{EventFunded, []int64{owner}},
		{EventScheduled, []int64{advertiser, owner}},
		{EventPosted, []int64{advertiser}},
		{EventVerified, []int64{advertiser, owner}},
		{EventCompleted, []int64{advertiser, owner}},
		{EventRefunded, []int64{advertiser}},
		{EventCancelled, []int64{advertiser, owner}},
	}

	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			messenger := &fakeMessenger{}
			parties := &models.DealParties{
				AdvertiserTelegramID: int64Ptr(advertiser),
				OwnerTelegramID:      int64Ptr(owner),
				HoldHours:            24,
			}
			n := newTestNotifier(parties, messenger)

			if err := n.NotifyDeal(context.Background(), uuid.New(), tt.event, nil, false); err != nil {
				t.Fatalf("NotifyDeal: %v", err)
			}
			if len(messenger.sent) != len(tt.wantTargets) {
				t.Fatalf("sent %d messages, want %d", len(messenger.sent), len(tt.wantTargets))
			}
			for i, want := range tt.wantTargets {
				if messenger.sent[i].to != want {
					t.Errorf("message %d sent to %d, want %d", i, messenger.sent[i].to, want)
				}
			}
		})
	}
}

func TestNotifyTemplateVariables(t *testing.T) {
	messenger := &fakeMessenger{}
	parties := &models.DealParties{
		AdvertiserTelegramID: int64Ptr(100),
		ChannelHandle:        strPtr("cryptonews"),
		EscrowAmount:         decimal.RequireFromString("12.5"),
		HoldHours:            48,
	}
	n := newTestNotifier(parties, messenger)

	if err := n.NotifyDeal(context.Background(), uuid.New(), EventPosted, nil, false); err != nil {
		t.Fatalf("NotifyDeal: %v", err)
	}
	text := messenger.sent[0].text
	if !strings.Contains(text, "@cryptonews") {
		t.Errorf("channel handle missing from %q", text)
	}
	if !strings.Contains(text, "48h") {
		t.Errorf("hold hours missing from %q", text)
	}
	if strings.Contains(text, "{") {
		t.Errorf("unrendered placeholder in %q", text)
	}
}

func TestNotifyDefaults(t *testing.T) {
	messenger := &fakeMessenger{}
	parties := &models.DealParties{AdvertiserTelegramID: int64Ptr(100)}
	n := newTestNotifier(parties, messenger)

	if err := n.NotifyDeal(context.Background(), uuid.New(), EventRefunded, nil, false); err != nil {
		t.Fatalf("NotifyDeal: %v", err)
	}
	text := messenger.sent[0].text
	if !strings.Contains(text, "Advertisement removed or policy violation") {
		t.Errorf("default reason missing from %q", text)
	}
	if !strings.Contains(text, "0 TON") {
		t.Errorf("default amount missing from %q", text)
	}
}

func TestNotifyThrottle(t *testing.T) {
	messenger := &fakeMessenger{}
	parties := &models.DealParties{AdvertiserTelegramID: int64Ptr(100)}
	n := newTestNotifier(parties, messenger)

	base := time.Now()
	n.now = func() time.Time { return base }

	dealID := uuid.New()
	if err := n.NotifyDeal(context.Background(), dealID, EventPosted, nil, false); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := n.NotifyDeal(context.Background(), dealID, EventPosted, nil, false); !errors.Is(err, ErrThrottled) {
		t.Fatalf("second send err = %v, want ErrThrottled", err)
	}

	// Different event on the same deal is not throttled.
	if err := n.NotifyDeal(context.Background(), dealID, EventCancelled, nil, false); err != nil {
		t.Fatalf("different event: %v", err)
	}

	// Force bypasses the cooldown.
	if err := n.NotifyDeal(context.Background(), dealID, EventPosted, nil, true); err != nil {
		t.Fatalf("forced send: %v", err)
	}

	// After the cooldown the send goes through again.
	n.now = func() time.Time { return base.Add(61 * time.Second) }
	if err := n.NotifyDeal(context.Background(), dealID, EventPosted, nil, false); err != nil {
		t.Fatalf("post-cooldown send: %v", err)
	}
}

func TestThrottleNotChargedByLookupFailure(t *testing.T) {
	messenger := &fakeMessenger{}
	parties := &models.DealParties{
		AdvertiserTelegramID: int64Ptr(100),
		OwnerTelegramID:      int64Ptr(200),
	}
	recipients := &fakeRecipients{parties: parties, failures: 1}
	n := NewNotifier(recipients, messenger, nil, zap.NewNop())

	base := time.Now()
	n.now = func() time.Time { return base }

	dealID := uuid.New()
	if err := n.NotifyDeal(context.Background(), dealID, EventFunded, nil, false); err == nil {
		t.Fatal("first send succeeded, want the lookup error")
	}

	// The failed attempt delivered nothing, so a retry within the cooldown
	// must go through, not come back throttled.
	if err := n.NotifyDeal(context.Background(), dealID, EventFunded, nil, false); err != nil {
		t.Fatalf("retry after lookup failure: %v", err)
	}
	if len(messenger.sent) == 0 {
		t.Error("retry delivered nothing")
	}

	// The retry did charge the window.
	if err := n.NotifyDeal(context.Background(), dealID, EventFunded, nil, false); !errors.Is(err, ErrThrottled) {
		t.Fatalf("third send err = %v, want ErrThrottled", err)
	}
}

func TestThrottleSingleWinnerUnderConcurrency(t *testing.T) {
	messenger := &fakeMessenger{}
	parties := &models.DealParties{AdvertiserTelegramID: int64Ptr(100)}
	n := newTestNotifier(parties, messenger)

	base := time.Now()
	n.now = func() time.Time { return base }

	dealID := uuid.New()
	const callers = 16
	results := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- n.NotifyDeal(context.Background(), dealID, EventCompleted, nil, false)
		}()
	}
	wg.Wait()
	close(results)

	delivered, throttled := 0, 0
	for err := range results {
		switch {
		case err == nil:
			delivered++
		case errors.Is(err, ErrThrottled):
			throttled++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if delivered != 1 || throttled != callers-1 {
		t.Errorf("delivered = %d, throttled = %d, want exactly one delivery", delivered, throttled)
	}
	if len(messenger.sent) != 1 {
		t.Errorf("sent = %d messages, want 1", len(messenger.sent))
	}
}

func TestNotifyDeliveryFailureIsBestEffort(t *testing.T) {
	messenger := &fakeMessenger{err: errors.New("blocked by user")}
	parties := &models.DealParties{
		AdvertiserTelegramID: int64Ptr(100),
		OwnerTelegramID:      int64Ptr(200),
	}
	n := newTestNotifier(parties, messenger)

	if err := n.NotifyDeal(context.Background(), uuid.New(), EventCompleted, nil, false); err != nil {
		t.Fatalf("NotifyDeal = %v, want nil despite delivery failure", err)
	}
}

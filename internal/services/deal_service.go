package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tg-adescrow/backend/internal/events"
	"github.com/tg-adescrow/backend/internal/models"
	"github.com/tg-adescrow/backend/internal/repositories"
	"go.uber.org/zap"
)

// ErrTerminalDeal is returned when a transition is requested on a deal that
// already reached a terminal state.
var ErrTerminalDeal = errors.New("deal is in a terminal state")

// ErrNoSentPost is returned when a deal is moved to posted although no ad
// message was ever sent for it.
var ErrNoSentPost = errors.New("deal has no sent post")

// InvalidTransitionError reports a rejected state change along with the
// transitions that would have been legal.
type InvalidTransitionError struct {
	From    string
	To      string
	Allowed []string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s (allowed: %s)", e.From, e.To, strings.Join(e.Allowed, ", "))
}

type DealStore interface {
	Create(ctx context.Context, deal *models.Deal) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Deal, error)
	GetByIDWithChannel(ctx context.Context, id uuid.UUID) (*models.DealWithChannel, error)
	List(ctx context.Context, f repositories.DealFilter) ([]models.DealWithChannel, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to string) error
	TransitionStatusFrom(ctx context.Context, id uuid.UUID, from []string, to string) error
}

type ChannelStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Channel, error)
}

type CampaignStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
}

type PostStore interface {
	Create(ctx context.Context, post *models.ScheduledPost) error
	GetByDealID(ctx context.Context, dealID uuid.UUID) (*models.ScheduledPost, error)
	DeleteByDealID(ctx context.Context, dealID uuid.UUID) error
}

type AuditSink interface {
	Log(ctx context.Context, entry models.AuditLog) error
}

// DealNotifier delivers templated lifecycle notifications. Throttled and
// failed deliveries never fail a transition.
type DealNotifier interface {
	NotifyDeal(ctx context.Context, dealID uuid.UUID, event string, vars map[string]string, force bool) error
}

type DealService struct {
	deals     DealStore
	channels  ChannelStore
	campaigns CampaignStore
	posts     PostStore
	audit     AuditSink
	notifier  DealNotifier
	publisher events.Publisher
	log       *zap.Logger
}

func NewDealService(
	deals DealStore,
	channels ChannelStore,
	campaigns CampaignStore,
	posts PostStore,
	audit AuditSink,
	notifier DealNotifier,
	publisher events.Publisher,
	log *zap.Logger,
) *DealService {
	return &DealService{
		deals:     deals,
		channels:  channels,
		campaigns: campaigns,
		posts:     posts,
		audit:     audit,
		notifier:  notifier,
		publisher: publisher,
		log:       log,
	}
}

type CreateDealInput struct {
	CampaignID       *uuid.UUID
	ChannelID        uuid.UUID
	EscrowAmount     decimal.Decimal
	AdvertiserWallet *string
	HoldHours        int
}

// CreateDeal opens a deal in pending state. A zero escrow amount defaults to
// the channel's list price.
func (s *DealService) CreateDeal(ctx context.Context, input CreateDealInput, actorID *uuid.UUID) (*models.Deal, error) {
	channel, err := s.channels.GetByID(ctx, input.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("channel not found: %w", err)
	}

	amount := input.EscrowAmount
	if amount.IsZero() {
		amount = channel.PriceTON
	}
	if amount.Sign() <= 0 {
		return nil, errors.New("escrow amount must be positive and the channel has no list price")
	}

	holdHours := input.HoldHours
	if holdHours <= 0 {
		holdHours = 24
	}

	deal := &models.Deal{
		CampaignID:         input.CampaignID,
		ChannelID:          channel.ID,
		Status:             models.DealStatusPending,
		EscrowAmount:       amount,
		AdvertiserWallet:   input.AdvertiserWallet,
		ChannelOwnerWallet: channel.OwnerTONWallet,
		HoldHours:          holdHours,
	}
	if err := s.deals.Create(ctx, deal); err != nil {
		return nil, err
	}

	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: actorID,
		ActorType:   "user",
		Action:      "deal_created",
		EntityType:  "deal",
		EntityID:    &deal.ID,
		Meta:        map[string]any{"channel_id": channel.ID.String(), "amount": amount.String()},
	})

	return deal, nil
}

// Transition moves a deal along one edge of the state machine. The update is
// compare-and-set on the observed status, so two racing callers cannot both
// succeed; the loser gets repositories.ErrConcurrentModification.
func (s *DealService) Transition(ctx context.Context, dealID uuid.UUID, newStatus string, actorID *uuid.UUID) (*models.Deal, error) {
	deal, err := s.deals.GetByID(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if models.IsTerminalStatus(deal.Status) {
		return nil, fmt.Errorf("%w: %s", ErrTerminalDeal, deal.Status)
	}
	if !models.IsValidTransition(deal.Status, newStatus) {
		return nil, &InvalidTransitionError{
			From:    deal.Status,
			To:      newStatus,
			Allowed: models.AllowedTransitions(deal.Status),
		}
	}
	if newStatus == models.DealStatusPosted {
		// A posted deal must have a live message behind it; the worker sets
		// the message id before it transitions.
		post, err := s.posts.GetByDealID(ctx, dealID)
		if err != nil || post.MessageID == nil {
			return nil, ErrNoSentPost
		}
	}

	oldStatus := deal.Status
	if err := s.deals.TransitionStatus(ctx, deal.ID, oldStatus, newStatus); err != nil {
		return nil, err
	}
	deal.Status = newStatus

	s.afterTransition(ctx, deal, oldStatus, newStatus, actorID)
	return deal, nil
}

// TransitionFrom moves a deal to newStatus from any of the given states in a
// single compare-and-set. It is used by settlement paths that legitimately
// cut across the per-edge graph, such as refunding a posted deal.
func (s *DealService) TransitionFrom(ctx context.Context, dealID uuid.UUID, fromStates []string, newStatus string, actorID *uuid.UUID) (*models.Deal, error) {
	deal, err := s.deals.GetByID(ctx, dealID)
	if err != nil {
		return nil, err
	}
	if models.IsTerminalStatus(deal.Status) {
		return nil, fmt.Errorf("%w: %s", ErrTerminalDeal, deal.Status)
	}

	found := false
	for _, from := range fromStates {
		if deal.Status == from {
			found = true
			break
		}
	}
	if !found {
		return nil, &InvalidTransitionError{
			From:    deal.Status,
			To:      newStatus,
			Allowed: fromStates,
		}
	}

	oldStatus := deal.Status
	if err := s.deals.TransitionStatusFrom(ctx, deal.ID, fromStates, newStatus); err != nil {
		return nil, err
	}
	deal.Status = newStatus

	s.afterTransition(ctx, deal, oldStatus, newStatus, actorID)
	return deal, nil
}

// afterTransition records the change and fans out notifications. All of it
// is best effort; the transition itself is already durable.
func (s *DealService) afterTransition(ctx context.Context, deal *models.Deal, oldStatus, newStatus string, actorID *uuid.UUID) {
	actorType := "user"
	if actorID == nil {
		actorType = "system"
	}
	_ = s.audit.Log(ctx, models.AuditLog{
		ActorUserID: actorID,
		ActorType:   actorType,
		Action:      fmt.Sprintf("deal_status_%s_to_%s", oldStatus, newStatus),
		EntityType:  "deal",
		EntityID:    &deal.ID,
		Meta:        map[string]any{"old_status": oldStatus, "new_status": newStatus},
	})

	if s.publisher != nil {
		_ = s.publisher.Publish(ctx, events.StreamDeals, events.Event{
			Type: events.EventDealStatusChanged,
			Payload: map[string]any{
				"deal_id":    deal.ID.String(),
				"old_status": oldStatus,
				"new_status": newStatus,
			},
		})
	}

	if s.notifier != nil {
		if err := s.notifier.NotifyDeal(ctx, deal.ID, newStatus, nil, false); err != nil {
			s.log.Debug("transition notification skipped",
				zap.String("deal_id", deal.ID.String()),
				zap.String("event", newStatus),
				zap.Error(err))
		}
	}
}

// SchedulePost creates the single scheduled post of a funded deal and moves
// the deal to scheduled. Passing a past or zero time schedules it for the
// next post tick.
func (s *DealService) SchedulePost(ctx context.Context, dealID uuid.UUID, scheduledTime time.Time, adText string, actorID *uuid.UUID) (*models.ScheduledPost, error) {
	deal, err := s.deals.GetByID(ctx, dealID)
	if err != nil {
		return nil, err
	}

	if adText == "" && deal.CampaignID != nil {
		campaign, err := s.campaigns.GetByID(ctx, *deal.CampaignID)
		if err == nil && campaign.AdText != nil {
			adText = *campaign.AdText
		}
	}
	if adText == "" {
		return nil, errors.New("ad text is required: pass it explicitly or attach a campaign with text")
	}

	now := time.Now()
	if scheduledTime.IsZero() || scheduledTime.Before(now) {
		scheduledTime = now
	}

	post := &models.ScheduledPost{
		DealID:        deal.ID,
		ChannelID:     deal.ChannelID,
		AdText:        adText,
		ScheduledTime: scheduledTime,
		HoldHours:     deal.HoldHours,
		Status:        models.PostStatusScheduled,
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, err
	}

	if _, err := s.Transition(ctx, dealID, models.DealStatusScheduled, actorID); err != nil {
		// The unique post row would orphan the deal in funded state, drop it.
		_ = s.posts.DeleteByDealID(ctx, dealID)
		return nil, err
	}
	return post, nil
}

// CancelScheduledPost deletes a not-yet-posted scheduled post and resets the
// deal back to funded.
func (s *DealService) CancelScheduledPost(ctx context.Context, dealID uuid.UUID, actorID *uuid.UUID) error {
	if _, err := s.TransitionFrom(ctx, dealID, []string{models.DealStatusScheduled}, models.DealStatusFunded, actorID); err != nil {
		return err
	}
	if err := s.posts.DeleteByDealID(ctx, dealID); err != nil {
		s.log.Error("failed to delete cancelled scheduled post",
			zap.String("deal_id", dealID.String()), zap.Error(err))
		return err
	}
	return nil
}

func (s *DealService) GetDeal(ctx context.Context, id uuid.UUID) (*models.DealWithChannel, error) {
	return s.deals.GetByIDWithChannel(ctx, id)
}

func (s *DealService) GetScheduledPost(ctx context.Context, dealID uuid.UUID) (*models.ScheduledPost, error) {
	return s.posts.GetByDealID(ctx, dealID)
}

func (s *DealService) ListDeals(ctx context.Context, f repositories.DealFilter) ([]models.DealWithChannel, error) {
	return s.deals.List(ctx, f)
}

package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/tg-adescrow/backend/internal/models"
	"github.com/tg-adescrow/backend/internal/services"
	"go.uber.org/zap"
)

type PostStore interface {
	Due(ctx context.Context, now time.Time) ([]models.WorkPost, error)
	Live(ctx context.Context) ([]models.WorkPost, error)
	MarkPosted(ctx context.Context, id uuid.UUID, messageID int64, postedAt, releaseAt time.Time) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	Touch(ctx context.Context, id uuid.UUID, verifiedAt time.Time) error
}

type DealStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Deal, error)
	SetPosted(ctx context.Context, id uuid.UUID, messageID int64, postedAt time.Time) error
}

type DealFSM interface {
	Transition(ctx context.Context, dealID uuid.UUID, newStatus string, actorID *uuid.UUID) (*models.Deal, error)
}

type EscrowOps interface {
	Release(ctx context.Context, dealID uuid.UUID, destinationHint string) (string, error)
	Refund(ctx context.Context, dealID uuid.UUID, destinationHint string) (string, error)
}

type Messenger interface {
	SendChannelMessage(ctx context.Context, chatID int64, text string) (int64, error)
	MessageExists(ctx context.Context, chatID int64, handle string, messageID int64) (bool, error)
}

// Scheduler is the single background worker: it sends due scheduled posts
// and periodically verifies live ones, settling the escrow at the hold
// boundary or on deletion. Every per-item failure is logged and retried on
// a later tick; the loop itself never dies.
type Scheduler struct {
	posts     PostStore
	deals     DealStore
	fsm       DealFSM
	escrow    EscrowOps
	messenger Messenger
	log       *zap.Logger

	postInterval   time.Duration
	verifyInterval time.Duration
	now            func() time.Time
}

func New(posts PostStore, deals DealStore, fsm DealFSM, escrow EscrowOps, messenger Messenger,
	postInterval, verifyInterval time.Duration, log *zap.Logger) *Scheduler {
	if postInterval <= 0 {
		postInterval = 60 * time.Second
	}
	if verifyInterval <= 0 {
		verifyInterval = 300 * time.Second
	}
	return &Scheduler{
		posts:          posts,
		deals:          deals,
		fsm:            fsm,
		escrow:         escrow,
		messenger:      messenger,
		log:            log,
		postInterval:   postInterval,
		verifyInterval: verifyInterval,
		now:            time.Now,
	}
}

// Run blocks until the context is cancelled. An in-flight tick finishes
// before Run returns.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("scheduler started",
		zap.Duration("post_interval", s.postInterval),
		zap.Duration("verify_interval", s.verifyInterval))

	postTicker := time.NewTicker(s.postInterval)
	verifyTicker := time.NewTicker(s.verifyInterval)
	defer postTicker.Stop()
	defer verifyTicker.Stop()

	s.runPostTick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-postTicker.C:
			s.runPostTick(ctx)
		case <-verifyTicker.C:
			s.runVerifyTick(ctx)
		}
	}
}

// runPostTick drains due scheduled posts. A failed send leaves the row in
// place for the next tick.
func (s *Scheduler) runPostTick(ctx context.Context) {
	now := s.now()
	due, err := s.posts.Due(ctx, now)
	if err != nil {
		s.log.Error("failed to load due posts", zap.Error(err))
		return
	}

	for _, post := range due {
		if ctx.Err() != nil {
			return
		}
		if post.ChannelChatID == nil {
			s.log.Warn("scheduled post for a channel without a chat id, skipping",
				zap.String("deal_id", post.DealID.String()),
				zap.String("channel", post.ChannelHandle))
			continue
		}

		messageID, err := s.messenger.SendChannelMessage(ctx, *post.ChannelChatID, post.AdText)
		if err != nil {
			s.log.Error("failed to send scheduled post",
				zap.String("deal_id", post.DealID.String()),
				zap.String("channel", post.ChannelHandle),
				zap.Error(err))
			continue
		}

		postedAt := s.now()
		releaseAt := postedAt.Add(time.Duration(post.HoldHours) * time.Hour)
		if err := s.posts.MarkPosted(ctx, post.ID, messageID, postedAt, releaseAt); err != nil {
			s.log.Error("failed to mark post as posted",
				zap.String("deal_id", post.DealID.String()), zap.Error(err))
			continue
		}
		if err := s.deals.SetPosted(ctx, post.DealID, messageID, postedAt); err != nil {
			s.log.Error("failed to record message id on deal",
				zap.String("deal_id", post.DealID.String()), zap.Error(err))
		}
		if _, err := s.fsm.Transition(ctx, post.DealID, models.DealStatusPosted, nil); err != nil {
			s.log.Error("failed to transition deal to posted",
				zap.String("deal_id", post.DealID.String()), zap.Error(err))
		}

		s.log.Info("scheduled post sent",
			zap.String("deal_id", post.DealID.String()),
			zap.String("channel", post.ChannelHandle),
			zap.Int64("message_id", messageID),
			zap.Time("release_at", releaseAt))
	}
}

// runVerifyTick checks that live posts still exist and settles the escrow:
// release once the hold boundary passed, refund when the post disappeared.
func (s *Scheduler) runVerifyTick(ctx context.Context) {
	live, err := s.posts.Live(ctx)
	if err != nil {
		s.log.Error("failed to load live posts", zap.Error(err))
		return
	}

	for _, post := range live {
		if ctx.Err() != nil {
			return
		}
		if post.MessageID == nil {
			continue
		}
		now := s.now()

		var chatID int64
		if post.ChannelChatID != nil {
			chatID = *post.ChannelChatID
		}
		exists, err := s.messenger.MessageExists(ctx, chatID, post.ChannelHandle, *post.MessageID)
		if err != nil {
			// Proves nothing either way; try again next tick.
			s.log.Warn("post verification inconclusive",
				zap.String("deal_id", post.DealID.String()), zap.Error(err))
			if err := s.posts.Touch(ctx, post.ID, now); err != nil {
				s.log.Error("failed to touch post", zap.Error(err))
			}
			continue
		}

		switch {
		case exists && post.ReleaseAt != nil && !now.Before(*post.ReleaseAt):
			if _, err := s.escrow.Release(ctx, post.DealID, ""); err != nil {
				if s.reconcileSettled(ctx, post, err) {
					continue
				}
				s.log.Error("failed to release escrow at hold boundary",
					zap.String("deal_id", post.DealID.String()), zap.Error(err))
				continue
			}
			if err := s.posts.UpdateStatus(ctx, post.ID, models.PostStatusReleased); err != nil {
				s.log.Error("failed to mark post released", zap.Error(err))
			}
			s.log.Info("hold period passed, escrow released",
				zap.String("deal_id", post.DealID.String()))

		case exists:
			if err := s.posts.Touch(ctx, post.ID, now); err != nil {
				s.log.Error("failed to touch post", zap.Error(err))
			}

		default:
			s.log.Warn("post disappeared before the hold boundary, refunding",
				zap.String("deal_id", post.DealID.String()),
				zap.String("channel", post.ChannelHandle))
			if _, err := s.escrow.Refund(ctx, post.DealID, ""); err != nil {
				if s.reconcileSettled(ctx, post, err) {
					continue
				}
				s.log.Error("failed to refund escrow",
					zap.String("deal_id", post.DealID.String()), zap.Error(err))
				continue
			}
			if err := s.posts.UpdateStatus(ctx, post.ID, models.PostStatusRefunded); err != nil {
				s.log.Error("failed to mark post refunded", zap.Error(err))
			}
		}
	}
}

// reconcileSettled catches up a post row whose deal was settled without the
// worker, through the API or by a crash between the transfer and the post
// update. The row is advanced to match the deal's terminal status so the
// verify tick stops probing it.
func (s *Scheduler) reconcileSettled(ctx context.Context, post models.WorkPost, settleErr error) bool {
	if !errors.Is(settleErr, services.ErrTerminalDeal) {
		return false
	}
	deal, err := s.deals.GetByID(ctx, post.DealID)
	if err != nil {
		s.log.Error("failed to load settled deal for reconciliation",
			zap.String("deal_id", post.DealID.String()), zap.Error(err))
		return false
	}

	var status string
	switch deal.Status {
	case models.DealStatusCompleted:
		status = models.PostStatusReleased
	case models.DealStatusRefunded:
		status = models.PostStatusRefunded
	default:
		return false
	}
	if err := s.posts.UpdateStatus(ctx, post.ID, status); err != nil {
		s.log.Error("failed to reconcile settled post",
			zap.String("deal_id", post.DealID.String()), zap.Error(err))
		return false
	}
	s.log.Info("post reconciled with settled deal",
		zap.String("deal_id", post.DealID.String()),
		zap.String("deal_status", deal.Status),
		zap.String("post_status", status))
	return true
}

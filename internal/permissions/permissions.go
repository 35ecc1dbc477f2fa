package permissions

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/tg-adescrow/backend/internal/models"
	"github.com/tg-adescrow/backend/internal/telegram"
	"go.uber.org/zap"
)

// ErrNotAnAdmin is returned when the user holds no admin record for the
// channel, or when re-verification finds their rights revoked.
var ErrNotAnAdmin = errors.New("user is not an admin of this channel")

// Actions that are gated by channel role.
const (
	ActionAcceptDeal    = "accept_deal"
	ActionPostAd        = "post_ad"
	ActionReleaseEscrow = "release_escrow"
)

// requiredRoles maps each action to the roles allowed to perform it.
var requiredRoles = map[string][]string{
	ActionAcceptDeal:    {models.RoleOwner, models.RoleManager},
	ActionPostAd:        {models.RoleOwner, models.RoleManager, models.RolePoster},
	ActionReleaseEscrow: {models.RoleOwner, models.RoleManager},
}

// Decision is the outcome of a permission check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Role    string `json:"role,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

type AdminStore interface {
	GetAdmin(ctx context.Context, channelID, userID uuid.UUID) (*models.ChannelAdmin, error)
	UpsertAdmin(ctx context.Context, channelID, userID uuid.UUID, role string, verifiedAt time.Time) (*models.ChannelAdmin, error)
	DeleteAdmin(ctx context.Context, channelID, userID uuid.UUID) error
}

// Verifier checks a user's live standing on the platform side.
type Verifier interface {
	VerifyUserOnChannel(ctx context.Context, telegramUserID int64, handle string) (*telegram.UserOnChannel, error)
}

type Service struct {
	admins   AdminStore
	verifier Verifier
	log      *zap.Logger
}

func NewService(admins AdminStore, verifier Verifier, log *zap.Logger) *Service {
	return &Service{admins: admins, verifier: verifier, log: log}
}

// Check resolves whether the user may perform the action on the channel
// using the stored admin record. It never touches the platform.
func (s *Service) Check(ctx context.Context, userID, channelID uuid.UUID, action string) (Decision, error) {
	roles, ok := requiredRoles[action]
	if !ok {
		return Decision{Reason: "unknown action"}, nil
	}

	admin, err := s.admins.GetAdmin(ctx, channelID, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return Decision{Reason: "not an admin of this channel"}, ErrNotAnAdmin
	}
	if err != nil {
		return Decision{}, err
	}
	if admin == nil {
		return Decision{Reason: "not an admin of this channel"}, ErrNotAnAdmin
	}

	for _, role := range roles {
		if admin.Role == role {
			return Decision{Allowed: true, Role: admin.Role}, nil
		}
	}
	return Decision{Role: admin.Role, Reason: "role " + admin.Role + " may not " + action}, nil
}

// ReVerify refreshes the admin record against the user's live standing.
// Revoked admins are deleted; everyone else gets their role recomputed
// from the rights the platform currently reports.
func (s *Service) ReVerify(ctx context.Context, user *models.User, channel *models.Channel) (*models.ChannelAdmin, error) {
	standing, err := s.verifier.VerifyUserOnChannel(ctx, user.TelegramUserID, channel.Username)
	if err != nil {
		return nil, err
	}

	if !standing.IsAdmin {
		if err := s.admins.DeleteAdmin(ctx, channel.ID, user.ID); err != nil {
			s.log.Warn("failed to delete revoked admin",
				zap.String("channel_id", channel.ID.String()),
				zap.String("user_id", user.ID.String()),
				zap.Error(err))
		}
		return nil, ErrNotAnAdmin
	}

	role := models.RolePoster
	switch {
	case standing.CanManage:
		role = models.RoleOwner
	case standing.CanPost:
		role = models.RoleManager
	}

	return s.admins.UpsertAdmin(ctx, channel.ID, user.ID, role, time.Now())
}

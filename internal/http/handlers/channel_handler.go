package handlers

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tg-adescrow/backend/internal/http/dto"
	"github.com/tg-adescrow/backend/internal/middleware"
	"github.com/tg-adescrow/backend/internal/models"
	"github.com/tg-adescrow/backend/internal/permissions"
	"github.com/tg-adescrow/backend/internal/repositories"
	"github.com/tg-adescrow/backend/internal/telegram"
	"go.uber.org/zap"
)

type ChannelHandler struct {
	channels  *repositories.ChannelRepo
	users     *repositories.UserRepo
	perms     *permissions.Service
	messenger *telegram.Client // nil when BOT_TOKEN is absent
	log       *zap.Logger
}

func NewChannelHandler(channels *repositories.ChannelRepo, users *repositories.UserRepo,
	perms *permissions.Service, messenger *telegram.Client, log *zap.Logger) *ChannelHandler {
	return &ChannelHandler{channels: channels, users: users, perms: perms, messenger: messenger, log: log}
}

func (h *ChannelHandler) ListChannels(c *fiber.Ctx) error {
	filter := repositories.ChannelFilter{Limit: 50}
	if v := c.Query("category"); v != "" {
		filter.Category = &v
	}
	if v := c.Query("verified"); v != "" {
		verified := v == "true" || v == "1"
		filter.Verified = &verified
	}
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Limit = n
		}
	}
	if v := c.Query("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			filter.Offset = n
		}
	}

	channels, err := h.channels.List(c.Context(), filter)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return ok(c, channels)
}

func (h *ChannelHandler) CreateChannel(c *fiber.Ctx) error {
	var req dto.CreateChannelRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request")
	}
	username := strings.TrimPrefix(strings.TrimSpace(req.Username), "@")
	if username == "" {
		return fail(c, fiber.StatusBadRequest, "username is required")
	}

	price := decimal.Zero
	if req.PriceTON != "" {
		var err error
		price, err = decimal.NewFromString(req.PriceTON)
		if err != nil || price.Sign() < 0 {
			return fail(c, fiber.StatusBadRequest, "invalid price")
		}
	}

	userID := middleware.GetUserID(c)
	channel := &models.Channel{
		Username:    username,
		Name:        req.Name,
		Category:    req.Category,
		PriceTON:    price,
		OwnerUserID: &userID,
	}
	if err := h.channels.Create(c.Context(), channel); err != nil {
		return serviceError(c, h.log, err)
	}

	// The creator starts as the channel's owner admin; a later verify call
	// reconciles this with the platform.
	if _, err := h.channels.UpsertAdmin(c.Context(), channel.ID, userID, models.RoleOwner, time.Now()); err != nil {
		h.log.Warn("failed to record creator as owner admin", zap.Error(err))
	}

	return created(c, channel)
}

// VerifyChannel re-checks the bot's standing on the channel and refreshes
// the stored verification flags and subscriber count.
func (h *ChannelHandler) VerifyChannel(c *fiber.Ctx) error {
	if h.messenger == nil {
		return capabilityMissing(c, "messaging")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid channel id")
	}
	channel, err := h.channels.GetByID(c.Context(), id)
	if err != nil {
		return serviceError(c, h.log, err)
	}

	info, err := h.messenger.VerifyBotOnChannel(c.Context(), channel.Username)
	if err != nil {
		return serviceError(c, h.log, err)
	}

	var name *string
	if info.Title != "" {
		name = &info.Title
	}
	if err := h.channels.UpdateVerification(c.Context(), id, &info.ChatID, name,
		info.Subscribers, info.BotIsAdmin, info.BotCanPost); err != nil {
		return serviceError(c, h.log, err)
	}

	channel, err = h.channels.GetByID(c.Context(), id)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return ok(c, channel)
}

func (h *ChannelHandler) GetAdmins(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid channel id")
	}
	admins, err := h.channels.ListAdmins(c.Context(), id)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return ok(c, admins)
}

// AddAdmin records a channel admin. When the messaging capability is up the
// role is recomputed from the user's live platform rights instead of the
// requested one.
func (h *ChannelHandler) AddAdmin(c *fiber.Ctx) error {
	channelID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid channel id")
	}
	var req dto.AddAdminRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request")
	}
	targetID, err := uuid.Parse(req.UserID)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid user_id")
	}
	if !models.IsValidRole(req.Role) {
		return fail(c, fiber.StatusBadRequest, "role must be one of owner, manager, poster")
	}

	requester := middleware.GetUserID(c)
	decision, err := h.perms.Check(c.Context(), requester, channelID, permissions.ActionAcceptDeal)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	if !decision.Allowed {
		return fail(c, fiber.StatusForbidden, "role "+decision.Role+" may not manage admins")
	}

	channel, err := h.channels.GetByID(c.Context(), channelID)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	target, err := h.users.GetByID(c.Context(), targetID)
	if err != nil {
		return serviceError(c, h.log, err)
	}

	if h.messenger != nil {
		admin, err := h.perms.ReVerify(c.Context(), target, channel)
		if err != nil {
			return serviceError(c, h.log, err)
		}
		return created(c, admin)
	}

	admin, err := h.channels.UpsertAdmin(c.Context(), channelID, targetID, req.Role, time.Now())
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return created(c, admin)
}

// SetWallet records the channel's payout wallet, the default release
// destination for its deals. Owners and managers only.
func (h *ChannelHandler) SetWallet(c *fiber.Ctx) error {
	channelID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid channel id")
	}
	var req dto.SetWalletRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request")
	}
	if req.Wallet == "" {
		return fail(c, fiber.StatusBadRequest, "wallet is required")
	}

	requester := middleware.GetUserID(c)
	decision, err := h.perms.Check(c.Context(), requester, channelID, permissions.ActionReleaseEscrow)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	if !decision.Allowed {
		return fail(c, fiber.StatusForbidden, "role "+decision.Role+" may not set the payout wallet")
	}

	if err := h.channels.SetOwnerWallet(c.Context(), channelID, req.Wallet); err != nil {
		return serviceError(c, h.log, err)
	}
	channel, err := h.channels.GetByID(c.Context(), channelID)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return ok(c, channel)
}

func (h *ChannelHandler) RemoveAdmin(c *fiber.Ctx) error {
	channelID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid channel id")
	}
	targetID, err := uuid.Parse(c.Params("userId"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid user id")
	}

	requester := middleware.GetUserID(c)
	decision, err := h.perms.Check(c.Context(), requester, channelID, permissions.ActionAcceptDeal)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	if !decision.Allowed {
		return fail(c, fiber.StatusForbidden, "role "+decision.Role+" may not manage admins")
	}

	if err := h.channels.DeleteAdmin(c.Context(), channelID, targetID); err != nil {
		return serviceError(c, h.log, err)
	}
	return ok(c, nil)
}

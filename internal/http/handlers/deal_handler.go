package handlers

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/tg-adescrow/backend/internal/http/dto"
	"github.com/tg-adescrow/backend/internal/middleware"
	"github.com/tg-adescrow/backend/internal/models"
	"github.com/tg-adescrow/backend/internal/permissions"
	"github.com/tg-adescrow/backend/internal/repositories"
	"github.com/tg-adescrow/backend/internal/services"
	"go.uber.org/zap"
)

type DealHandler struct {
	deals     *services.DealService
	escrow    *services.EscrowService // nil without a chain connection
	perms     *permissions.Service
	holdHours int
	log       *zap.Logger
}

func NewDealHandler(deals *services.DealService, escrow *services.EscrowService,
	perms *permissions.Service, holdHours int, log *zap.Logger) *DealHandler {
	return &DealHandler{deals: deals, escrow: escrow, perms: perms, holdHours: holdHours, log: log}
}

func (h *DealHandler) CreateDeal(c *fiber.Ctx) error {
	var req dto.CreateDealRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request")
	}

	channelID, err := uuid.Parse(req.ChannelID)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid channel_id")
	}

	input := services.CreateDealInput{
		ChannelID:        channelID,
		AdvertiserWallet: req.AdvertiserWallet,
		HoldHours:        req.HoldHours,
	}
	if input.HoldHours <= 0 {
		input.HoldHours = h.holdHours
	}
	if req.CampaignID != nil {
		campaignID, err := uuid.Parse(*req.CampaignID)
		if err != nil {
			return fail(c, fiber.StatusBadRequest, "invalid campaign_id")
		}
		input.CampaignID = &campaignID
	}
	if req.EscrowAmount != "" {
		amount, err := decimal.NewFromString(req.EscrowAmount)
		if err != nil || amount.Sign() < 0 {
			return fail(c, fiber.StatusBadRequest, "invalid escrow_amount")
		}
		input.EscrowAmount = amount
	}

	actorID := middleware.GetUserID(c)
	deal, err := h.deals.CreateDeal(c.Context(), input, &actorID)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return created(c, deal)
}

func (h *DealHandler) GetDeal(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid deal id")
	}
	deal, err := h.deals.GetDeal(c.Context(), id)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return ok(c, fiber.Map{
		"deal":  deal,
		"state": models.StateInfo(deal.Status),
	})
}

func (h *DealHandler) ListDeals(c *fiber.Ctx) error {
	filter := repositories.DealFilter{Limit: 20}
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
	if v := c.Query("status"); v != "" {
		filter.Status = &v
	}
	if v := c.Query("channel_id"); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			filter.ChannelID = &id
		}
	}
	if v := c.Query("campaign_id"); v != "" {
		if id, err := uuid.Parse(v); err == nil {
			filter.CampaignID = &id
		}
	}

	deals, err := h.deals.ListDeals(c.Context(), filter)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return ok(c, deals)
}

// UpdateStatus is the strict transition endpoint behind both /status and
// /transition.
func (h *DealHandler) UpdateStatus(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid deal id")
	}
	var req dto.TransitionRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request")
	}
	target := req.Target()
	if target == "" {
		return fail(c, fiber.StatusBadRequest, "status is required")
	}

	actorID := middleware.GetUserID(c)
	deal, err := h.deals.Transition(c.Context(), id, target, &actorID)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return ok(c, deal)
}

// requireChannelRole resolves the deal and checks the caller's role on its
// channel. On failure it writes the error response and reports false.
func (h *DealHandler) requireChannelRole(c *fiber.Ctx, dealID uuid.UUID, action string) (*models.DealWithChannel, bool) {
	deal, err := h.deals.GetDeal(c.Context(), dealID)
	if err != nil {
		_ = serviceError(c, h.log, err)
		return nil, false
	}

	decision, err := h.perms.Check(c.Context(), middleware.GetUserID(c), deal.ChannelID, action)
	if err != nil {
		_ = serviceError(c, h.log, err)
		return nil, false
	}
	if !decision.Allowed {
		_ = c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"success": false,
			"error":   decision.Reason,
			"role":    decision.Role,
		})
		return nil, false
	}
	return deal, true
}

// AcceptDeal moves a pending deal to accepted; the caller must be an owner
// or manager of the channel.
func (h *DealHandler) AcceptDeal(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid deal id")
	}
	if _, proceed := h.requireChannelRole(c, id, permissions.ActionAcceptDeal); !proceed {
		return nil
	}

	actorID := middleware.GetUserID(c)
	deal, err := h.deals.Transition(c.Context(), id, models.DealStatusAccepted, &actorID)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return ok(c, deal)
}

// PostDeal schedules the ad for the next worker tick; any channel role may
// post.
func (h *DealHandler) PostDeal(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid deal id")
	}
	if _, proceed := h.requireChannelRole(c, id, permissions.ActionPostAd); !proceed {
		return nil
	}

	var req dto.SchedulePostRequest
	_ = c.BodyParser(&req)

	actorID := middleware.GetUserID(c)
	post, err := h.deals.SchedulePost(c.Context(), id, time.Now(), req.AdText, &actorID)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return ok(c, post)
}

// ReleaseDeal settles the escrow to the channel owner ahead of the hold
// boundary; owners and managers only.
func (h *DealHandler) ReleaseDeal(c *fiber.Ctx) error {
	if h.escrow == nil {
		return capabilityMissing(c, "chain")
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid deal id")
	}
	if _, proceed := h.requireChannelRole(c, id, permissions.ActionReleaseEscrow); !proceed {
		return nil
	}

	var req dto.SettleRequest
	_ = c.BodyParser(&req)

	txHash, err := h.escrow.Release(c.Context(), id, req.Destination)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return ok(c, fiber.Map{"tx_hash": txHash})
}

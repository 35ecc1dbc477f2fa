package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/tg-adescrow/backend/internal/http/dto"
	"github.com/tg-adescrow/backend/internal/middleware"
	"github.com/tg-adescrow/backend/internal/models"
	"github.com/tg-adescrow/backend/internal/repositories"
	"go.uber.org/zap"
)

type CampaignHandler struct {
	campaigns *repositories.CampaignRepo
	log       *zap.Logger
}

func NewCampaignHandler(campaigns *repositories.CampaignRepo, log *zap.Logger) *CampaignHandler {
	return &CampaignHandler{campaigns: campaigns, log: log}
}

func (h *CampaignHandler) CreateCampaign(c *fiber.Ctx) error {
	var req dto.CreateCampaignRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request")
	}
	if req.Title == "" {
		return fail(c, fiber.StatusBadRequest, "title is required")
	}

	budget := decimal.Zero
	if req.BudgetTON != "" {
		var err error
		budget, err = decimal.NewFromString(req.BudgetTON)
		if err != nil || budget.Sign() < 0 {
			return fail(c, fiber.StatusBadRequest, "invalid budget")
		}
	}

	campaign := &models.Campaign{
		AdvertiserID: middleware.GetUserID(c),
		Title:        req.Title,
		AdText:       req.AdText,
		BudgetTON:    budget,
		Status:       "active",
	}
	if err := h.campaigns.Create(c.Context(), campaign); err != nil {
		return serviceError(c, h.log, err)
	}
	return created(c, campaign)
}

func (h *CampaignHandler) ListCampaigns(c *fiber.Ctx) error {
	campaigns, err := h.campaigns.ListByAdvertiser(c.Context(), middleware.GetUserID(c))
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return ok(c, campaigns)
}

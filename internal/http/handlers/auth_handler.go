package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/tg-adescrow/backend/internal/auth"
	"github.com/tg-adescrow/backend/internal/config"
	"github.com/tg-adescrow/backend/internal/http/dto"
	"github.com/tg-adescrow/backend/internal/middleware"
	"github.com/tg-adescrow/backend/internal/repositories"
	"go.uber.org/zap"
)

type AuthHandler struct {
	users *repositories.UserRepo
	cfg   *config.Config
	log   *zap.Logger
}

func NewAuthHandler(users *repositories.UserRepo, cfg *config.Config, log *zap.Logger) *AuthHandler {
	return &AuthHandler{users: users, cfg: cfg, log: log}
}

// TelegramAuth upserts the user by telegram id and issues a token.
func (h *AuthHandler) TelegramAuth(c *fiber.Ctx) error {
	var req dto.AuthRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request")
	}
	if req.TelegramID == 0 {
		return fail(c, fiber.StatusBadRequest, "telegram_id is required")
	}

	user, err := h.users.UpsertByTelegramID(c.Context(), req.TelegramID, req.Username)
	if err != nil {
		return serviceError(c, h.log, err)
	}

	token, err := auth.GenerateJWT(h.cfg.JWTSecret, user.ID, user.TelegramUserID, h.cfg.JWTExpiration)
	if err != nil {
		h.log.Error("failed to sign token", zap.Error(err))
		return fail(c, fiber.StatusInternalServerError, "internal error")
	}

	return ok(c, dto.AuthResponse{Token: token, User: user})
}

// SetWallet records the caller's payout wallet, the default refund
// destination for their deals.
func (h *AuthHandler) SetWallet(c *fiber.Ctx) error {
	var req dto.SetWalletRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request")
	}
	if req.Wallet == "" {
		return fail(c, fiber.StatusBadRequest, "wallet is required")
	}

	userID := middleware.GetUserID(c)
	if err := h.users.SetWallet(c.Context(), userID, req.Wallet); err != nil {
		return serviceError(c, h.log, err)
	}
	user, err := h.users.GetByID(c.Context(), userID)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return ok(c, user)
}

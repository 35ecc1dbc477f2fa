package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/tg-adescrow/backend/internal/http/dto"
	"github.com/tg-adescrow/backend/internal/permissions"
	"github.com/tg-adescrow/backend/internal/repositories"
	"github.com/tg-adescrow/backend/internal/services"
	"github.com/tg-adescrow/backend/internal/telegram"
	"github.com/tg-adescrow/backend/internal/ton"
	"go.uber.org/zap"
)

func ok(c *fiber.Ctx, data any) error {
	return c.JSON(dto.SuccessResponse{Success: true, Data: data})
}

func created(c *fiber.Ctx, data any) error {
	return c.Status(fiber.StatusCreated).JSON(dto.SuccessResponse{Success: true, Data: data})
}

func fail(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).JSON(dto.ErrorResponse{Error: message})
}

// serviceError translates component errors into the HTTP contract. Anything
// unrecognized is a 500 and gets logged.
func serviceError(c *fiber.Ctx, log *zap.Logger, err error) error {
	var invalid *services.InvalidTransitionError
	if errors.As(err, &invalid) {
		return c.Status(fiber.StatusBadRequest).JSON(dto.TransitionErrorResponse{
			Error:              "invalid transition",
			CurrentStatus:      invalid.From,
			AllowedTransitions: invalid.Allowed,
		})
	}

	switch {
	case errors.Is(err, services.ErrTerminalDeal):
		return fail(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, repositories.ErrConcurrentModification):
		return fail(c, fiber.StatusConflict, "deal was modified concurrently, re-read and retry")
	case errors.Is(err, permissions.ErrNotAnAdmin):
		return fail(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, pgx.ErrNoRows):
		return fail(c, fiber.StatusNotFound, "not found")
	case errors.Is(err, services.ErrNoDestination),
		errors.Is(err, services.ErrInsufficientForFee),
		errors.Is(err, services.ErrDepositPending),
		errors.Is(err, services.ErrNoSentPost),
		errors.Is(err, ton.ErrUndeployedWallet):
		return fail(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, telegram.ErrChannelNotFound):
		return fail(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, telegram.ErrVerifyUnknown):
		return fail(c, fiber.StatusBadGateway, err.Error())
	}

	log.Error("unhandled service error", zap.Error(err))
	return fail(c, fiber.StatusInternalServerError, "internal error")
}

// capabilityMissing is the documented 503 for endpoints whose backing
// dependency was not configured at startup.
func capabilityMissing(c *fiber.Ctx, name string) error {
	return fail(c, fiber.StatusServiceUnavailable, name+" is not configured on this instance")
}

package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/tg-adescrow/backend/internal/http/dto"
	"github.com/tg-adescrow/backend/internal/middleware"
	"github.com/tg-adescrow/backend/internal/permissions"
	"go.uber.org/zap"
)

type PermissionHandler struct {
	perms *permissions.Service
	log   *zap.Logger
}

func NewPermissionHandler(perms *permissions.Service, log *zap.Logger) *PermissionHandler {
	return &PermissionHandler{perms: perms, log: log}
}

// Check answers whether a user may perform an action on a channel. The
// user defaults to the caller.
func (h *PermissionHandler) Check(c *fiber.Ctx) error {
	var req dto.PermissionCheckRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request")
	}

	channelID, err := uuid.Parse(req.ChannelID)
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid channel_id")
	}
	if req.Action == "" {
		return fail(c, fiber.StatusBadRequest, "action is required")
	}

	userID := middleware.GetUserID(c)
	if req.UserID != "" {
		userID, err = uuid.Parse(req.UserID)
		if err != nil {
			return fail(c, fiber.StatusBadRequest, "invalid user_id")
		}
	}

	decision, err := h.perms.Check(c.Context(), userID, channelID, req.Action)
	if errors.Is(err, permissions.ErrNotAnAdmin) {
		return ok(c, decision)
	}
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return ok(c, decision)
}

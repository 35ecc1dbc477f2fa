package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/tg-adescrow/backend/internal/http/dto"
	"github.com/tg-adescrow/backend/internal/middleware"
	"github.com/tg-adescrow/backend/internal/services"
	"github.com/tg-adescrow/backend/internal/telegram"
	"go.uber.org/zap"
)

type PostHandler struct {
	deals     *services.DealService
	messenger *telegram.Client // nil when BOT_TOKEN is absent
	log       *zap.Logger
}

func NewPostHandler(deals *services.DealService, messenger *telegram.Client, log *zap.Logger) *PostHandler {
	return &PostHandler{deals: deals, messenger: messenger, log: log}
}

// Schedule creates the deal's scheduled post for a future time.
func (h *PostHandler) Schedule(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid deal id")
	}
	var req dto.SchedulePostRequest
	if err := c.BodyParser(&req); err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid request")
	}

	when := time.Now()
	if req.ScheduledTime != nil {
		when = *req.ScheduledTime
	}

	actorID := middleware.GetUserID(c)
	post, err := h.deals.SchedulePost(c.Context(), id, when, req.AdText, &actorID)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return created(c, post)
}

// Now schedules the post for the next worker tick.
func (h *PostHandler) Now(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid deal id")
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

// Cancel deletes a not-yet-posted scheduled post and resets the deal to
// funded.
func (h *PostHandler) Cancel(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid deal id")
	}

	actorID := middleware.GetUserID(c)
	if err := h.deals.CancelScheduledPost(c.Context(), id, &actorID); err != nil {
		return serviceError(c, h.log, err)
	}
	return ok(c, nil)
}

// Verify runs a one-off existence probe against the posted message.
func (h *PostHandler) Verify(c *fiber.Ctx) error {
	if h.messenger == nil {
		return capabilityMissing(c, "messaging")
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fail(c, fiber.StatusBadRequest, "invalid deal id")
	}

	post, err := h.deals.GetScheduledPost(c.Context(), id)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	if post.MessageID == nil {
		return fail(c, fiber.StatusBadRequest, "post has not been sent yet")
	}

	deal, err := h.deals.GetDeal(c.Context(), id)
	if err != nil {
		return serviceError(c, h.log, err)
	}

	var handle string
	if deal.ChannelHandle != nil {
		handle = *deal.ChannelHandle
	}
	if handle == "" {
		return fail(c, fiber.StatusBadRequest, "channel has no public handle to probe")
	}
	exists, err := h.messenger.MessageExists(c.Context(), 0, handle, *post.MessageID)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return ok(c, fiber.Map{
		"exists":        exists,
		"message_id":    *post.MessageID,
		"last_verified": post.LastVerifiedAt,
	})
}

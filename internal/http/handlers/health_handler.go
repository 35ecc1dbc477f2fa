package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/tg-adescrow/backend/internal/http/dto"
)

type HealthHandler struct {
	capabilities map[string]bool
}

// NewHealthHandler reports which optional capabilities this instance was
// started with. Endpoints backed by a missing one return 503.
func NewHealthHandler(chain, messaging bool) *HealthHandler {
	return &HealthHandler{capabilities: map[string]bool{
		"chain":     chain,
		"messaging": messaging,
	}}
}

func (h *HealthHandler) Health(c *fiber.Ctx) error {
	return c.JSON(dto.HealthResponse{Status: "ok", Capabilities: h.capabilities})
}

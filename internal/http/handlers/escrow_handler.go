package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/tg-adescrow/backend/internal/http/dto"
	"github.com/tg-adescrow/backend/internal/services"
	"go.uber.org/zap"
)

type EscrowHandler struct {
	escrow *services.EscrowService // nil without a chain connection
	log    *zap.Logger
}

func NewEscrowHandler(escrow *services.EscrowService, log *zap.Logger) *EscrowHandler {
	return &EscrowHandler{escrow: escrow, log: log}
}

func (h *EscrowHandler) dealID(c *fiber.Ctx) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		_ = fail(c, fiber.StatusBadRequest, "invalid deal id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *EscrowHandler) CreateWallet(c *fiber.Ctx) error {
	if h.escrow == nil {
		return capabilityMissing(c, "chain")
	}
	id, okID := h.dealID(c)
	if !okID {
		return nil
	}

	wallet, err := h.escrow.CreateWallet(c.Context(), id)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return created(c, wallet)
}

func (h *EscrowHandler) GetStatus(c *fiber.Ctx) error {
	if h.escrow == nil {
		return capabilityMissing(c, "chain")
	}
	id, okID := h.dealID(c)
	if !okID {
		return nil
	}

	status, err := h.escrow.GetStatus(c.Context(), id)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return ok(c, status)
}

func (h *EscrowHandler) VerifyDeposit(c *fiber.Ctx) error {
	if h.escrow == nil {
		return capabilityMissing(c, "chain")
	}
	id, okID := h.dealID(c)
	if !okID {
		return nil
	}

	status, err := h.escrow.VerifyDeposit(c.Context(), id)
	if errors.Is(err, services.ErrDepositPending) {
		// Not an error for the caller, just not funded yet.
		return ok(c, status)
	}
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return ok(c, status)
}

func (h *EscrowHandler) Release(c *fiber.Ctx) error {
	return h.settle(c, h.escrowRelease)
}

func (h *EscrowHandler) Refund(c *fiber.Ctx) error {
	return h.settle(c, h.escrowRefund)
}

func (h *EscrowHandler) escrowRelease(c *fiber.Ctx, id uuid.UUID, dest string) (string, error) {
	return h.escrow.Release(c.Context(), id, dest)
}

func (h *EscrowHandler) escrowRefund(c *fiber.Ctx, id uuid.UUID, dest string) (string, error) {
	return h.escrow.Refund(c.Context(), id, dest)
}

func (h *EscrowHandler) settle(c *fiber.Ctx, fn func(*fiber.Ctx, uuid.UUID, string) (string, error)) error {
	if h.escrow == nil {
		return capabilityMissing(c, "chain")
	}
	id, okID := h.dealID(c)
	if !okID {
		return nil
	}

	var req dto.SettleRequest
	_ = c.BodyParser(&req)

	txHash, err := fn(c, id, req.Destination)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return ok(c, fiber.Map{"tx_hash": txHash})
}

func (h *EscrowHandler) Transactions(c *fiber.Ctx) error {
	if h.escrow == nil {
		return capabilityMissing(c, "chain")
	}
	id, okID := h.dealID(c)
	if !okID {
		return nil
	}

	txs, err := h.escrow.Transactions(c.Context(), id)
	if err != nil {
		return serviceError(c, h.log, err)
	}
	return ok(c, txs)
}

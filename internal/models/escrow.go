package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// WalletVersionV4R2 is the only wallet contract version the platform deploys.
const WalletVersionV4R2 = "v4r2"

// Escrow transaction kinds
const (
	TxKindDeposit = "deposit"
	TxKindRelease = "release"
	TxKindRefund  = "refund"
)

// Escrow transaction statuses
const (
	TxStatusPending   = "pending"
	TxStatusConfirmed = "confirmed"
)

// EscrowWallet is the per-deal custody wallet. The mnemonic is stored
// encrypted; Balance is a cached last-known value, the chain is authoritative.
type EscrowWallet struct {
	ID                uuid.UUID       `json:"id"`
	DealID            uuid.UUID       `json:"deal_id"`
	Address           string          `json:"address"`
	EncryptedMnemonic string          `json:"-"`
	WalletVersion     string          `json:"wallet_version"`
	Balance           decimal.Decimal `json:"balance"`
	LastCheckedAt     *time.Time      `json:"last_checked_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
}

type EscrowTransaction struct {
	ID        uuid.UUID       `json:"id"`
	WalletID  uuid.UUID       `json:"wallet_id"`
	DealID    uuid.UUID       `json:"deal_id"`
	TxHash    string          `json:"tx_hash"`
	Kind      string          `json:"tx_type"`
	Amount    decimal.Decimal `json:"amount"`
	FromAddr  *string         `json:"from_address,omitempty"`
	ToAddr    *string         `json:"to_address,omitempty"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

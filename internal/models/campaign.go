package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Campaign struct {
	ID           uuid.UUID       `json:"id"`
	AdvertiserID uuid.UUID       `json:"advertiser_id"`
	Title        string          `json:"title"`
	AdText       *string         `json:"text,omitempty"`
	BudgetTON    decimal.Decimal `json:"budget"`
	Status       string          `json:"status"` // active / paused / archived
	CreatedAt    time.Time       `json:"created_at"`
}

package storage

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Record is one persisted payment event. Rows are append-only: created on
// first delivery of an id, never updated or deleted.
type Record struct {
	ID             string           `json:"id"`
	Amount         *decimal.Decimal `json:"amount,omitempty"`
	Currency       string           `json:"currency,omitempty"`
	ProviderStatus string           `json:"provider_status,omitempty"`
	EventType      string           `json:"event_type,omitempty"`
	Raw            json.RawMessage  `json:"raw,omitempty"`

	// CreatedAt is the receipt time assigned on insert, distinct from any
	// provider-supplied timestamp inside Raw.
	CreatedAt time.Time `json:"created_at"`
}

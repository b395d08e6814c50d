package event

import "github.com/shopspring/decimal"

// Kind is the canonical classification of a provider notification.
type Kind int

const (
	Unknown Kind = iota
	Succeeded
	Failed
	Pending
)

func (k Kind) String() string {
	switch k {
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Pending:
		return "pending"
	default:
		return "unknown"
	}
}

// Event is the normalized form of a provider payment notification.
// It is built once by Normalize and not mutated afterwards.
type Event struct {
	// ID is the provider-assigned payment/event identifier. Empty when the
	// provider sent none; such events are not persisted.
	ID   string
	Kind Kind

	// Type is the verbatim explicit event_type/type value, when present.
	Type string

	Amount   *decimal.Decimal
	Currency string
	Balance  *decimal.Decimal

	OrderID        string
	ProviderStatus string
	CustomerEmail  string
	CustomerPhone  string

	// CreatedAt is the provider-supplied timestamp, kept verbatim. The
	// storage-assigned receipt time is a separate field on the persisted
	// record.
	CreatedAt string

	// Raw keeps the original payload for audit and storage.
	Raw map[string]any
}

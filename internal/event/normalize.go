package event

import (
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
)

// Normalize maps an arbitrary provider payload to exactly one Event. It is
// total: missing or unrecognizable fields become zero values and the kind
// falls back to Unknown, never an error.
func Normalize(payload map[string]any) Event {
	ev := Event{
		Kind:     classify(payload),
		Type:     firstString(payload, "event_type", "type"),
		Amount:   firstDecimal(payload, "amount", "total_amount", "sum"),
		Currency: firstString(payload, "currency", "currency_code"),
		Balance:  firstDecimal(payload, "balance", "wallet_balance", "account_balance"),

		ID:             firstString(payload, "id", "payment_id"),
		OrderID:        firstString(payload, "order_id"),
		ProviderStatus: firstString(payload, "status"),
		CreatedAt:      firstString(payload, "created_at"),

		Raw: payload,
	}

	if ev.Currency == "" {
		ev.Currency = "RUB"
	}

	if customer, ok := payload["customer"].(map[string]any); ok {
		ev.CustomerEmail = firstString(customer, "email")
		ev.CustomerPhone = firstString(customer, "phone")
	}

	return ev
}

// classify resolves the canonical kind. An explicit event type wins over
// status inference, so providers that send both are classified by the type
// they declared.
func classify(payload map[string]any) Kind {
	if typ := firstString(payload, "event_type", "type"); typ != "" {
		switch typ {
		case "payment.succeeded", "payment_success":
			return Succeeded
		case "payment.failed", "payment_failed":
			return Failed
		case "payment.pending", "payment_pending":
			return Pending
		default:
			return Unknown
		}
	}

	switch strings.ToUpper(firstString(payload, "status")) {
	case "CONFIRMED", "SUCCESS", "SUCCEEDED":
		return Succeeded
	case "PENDING", "PROCESSING":
		return Pending
	case "CANCELED", "CANCELLED", "FAILED", "EXPIRED":
		return Failed
	default:
		return Unknown
	}
}

// firstString returns the first present key holding a string-ish value.
// Numeric values are rendered verbatim so ids and timestamps sent as numbers
// still come through.
func firstString(payload map[string]any, keys ...string) string {
	for _, key := range keys {
		switch v := payload[key].(type) {
		case string:
			return v
		case json.Number:
			return v.String()
		}
	}
	return ""
}

// firstDecimal returns the first present key parseable as a decimal.
// First match wins; values are never summed across keys.
func firstDecimal(payload map[string]any, keys ...string) *decimal.Decimal {
	for _, key := range keys {
		raw, ok := payload[key]
		if !ok {
			continue
		}

		var (
			d   decimal.Decimal
			err error
		)
		switch v := raw.(type) {
		case json.Number:
			d, err = decimal.NewFromString(v.String())
		case string:
			d, err = decimal.NewFromString(strings.TrimSpace(v))
		case float64:
			d = decimal.NewFromFloat(v)
		default:
			continue
		}
		if err != nil {
			continue
		}
		return &d
	}
	return nil
}

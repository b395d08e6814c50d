package notifier

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ndemidov/payment-webhook/internal/event"
)

// Sender delivers a rendered message to a chat.
type Sender interface {
	SendNotification(ctx context.Context, chatID int64, text string) error
}

// Notifier renders payment events into admin summaries and delivers them to
// one configured chat. Notifications are opt-in: with no sender or chat id
// it silently does nothing.
type Notifier struct {
	sender Sender
	chatID int64
	log    *slog.Logger
}

func New(sender Sender, chatID int64, log *slog.Logger) *Notifier {
	return &Notifier{
		sender: sender,
		chatID: chatID,
		log:    log,
	}
}

// Notify sends a summary of the event to the admin chat. Events that could
// not be classified are logged and skipped.
func (n *Notifier) Notify(ctx context.Context, ev event.Event) error {
	if n.sender == nil || n.chatID == 0 {
		return nil
	}

	if ev.Kind == event.Unknown {
		n.log.Info("skipping notification for unknown event type",
			"event_type", ev.Type,
			"payment_id", ev.ID,
		)
		return nil
	}

	return n.sender.SendNotification(ctx, n.chatID, Render(ev))
}

// Render builds the newline-joined summary. Field order is fixed; absent
// fields are left out.
func Render(ev event.Event) string {
	lines := []string{statusLine(ev.Kind)}

	if ev.Amount != nil {
		lines = append(lines, fmt.Sprintf("Сумма: %s %s", ev.Amount, ev.Currency))
	}
	if ev.ID != "" {
		lines = append(lines, fmt.Sprintf("ID платежа: %s", ev.ID))
	}
	if ev.OrderID != "" {
		lines = append(lines, fmt.Sprintf("Заказ: %s", ev.OrderID))
	}
	if ev.ProviderStatus != "" {
		lines = append(lines, fmt.Sprintf("Статус провайдера: %s", ev.ProviderStatus))
	}
	if ev.Balance != nil {
		lines = append(lines, fmt.Sprintf("Баланс: %s", ev.Balance))
	}
	if ev.CustomerEmail != "" {
		lines = append(lines, fmt.Sprintf("Email: %s", ev.CustomerEmail))
	}
	if ev.CustomerPhone != "" {
		lines = append(lines, fmt.Sprintf("Телефон: %s", ev.CustomerPhone))
	}
	if ev.CreatedAt != "" {
		lines = append(lines, fmt.Sprintf("Время: %s", ev.CreatedAt))
	}

	return strings.Join(lines, "\n")
}

func statusLine(kind event.Kind) string {
	switch kind {
	case event.Succeeded:
		return "Платёж: УСПЕШНО ✅"
	case event.Failed:
		return "Платёж: ОТКЛОНЁН ❌"
	default:
		return "Платёж: В ОБРАБОТКЕ ⏳"
	}
}

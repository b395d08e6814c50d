package notifier_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/ndemidov/payment-webhook/internal/event"
	"github.com/ndemidov/payment-webhook/internal/notifier"
)

type fakeSender struct {
	mu   sync.Mutex
	err  error
	sent []sentMessage
}

type sentMessage struct {
	chatID int64
	text   string
}

func (f *fakeSender) SendNotification(ctx context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func discardLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestRenderOrder(t *testing.T) {
	ev := event.Event{
		ID:             "p1",
		Kind:           event.Succeeded,
		Amount:         dec("1000"),
		Currency:       "RUB",
		OrderID:        "order_123",
		ProviderStatus: "succeeded",
		Balance:        dec("250.75"),
		CustomerEmail:  "test@example.com",
		CustomerPhone:  "+7900123456",
		CreatedAt:      "2024-06-01T10:00:00Z",
	}

	want := strings.Join([]string{
		"Платёж: УСПЕШНО ✅",
		"Сумма: 1000 RUB",
		"ID платежа: p1",
		"Заказ: order_123",
		"Статус провайдера: succeeded",
		"Баланс: 250.75",
		"Email: test@example.com",
		"Телефон: +7900123456",
		"Время: 2024-06-01T10:00:00Z",
	}, "\n")

	if got := notifier.Render(ev); got != want {
		t.Fatalf("rendered summary mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestRenderSkipsAbsentFields(t *testing.T) {
	ev := event.Event{ID: "p2", Kind: event.Failed, ProviderStatus: "CANCELLED", Currency: "RUB"}

	want := strings.Join([]string{
		"Платёж: ОТКЛОНЁН ❌",
		"ID платежа: p2",
		"Статус провайдера: CANCELLED",
	}, "\n")

	if got := notifier.Render(ev); got != want {
		t.Fatalf("rendered summary mismatch\ngot:\n%s\nwant:\n%s", got, want)
	}
}

func TestRenderPending(t *testing.T) {
	got := notifier.Render(event.Event{Kind: event.Pending})
	if got != "Платёж: В ОБРАБОТКЕ ⏳" {
		t.Fatalf("pending summary = %q", got)
	}
}

func TestNotifySends(t *testing.T) {
	sender := &fakeSender{}
	n := notifier.New(sender, 42, discardLog())

	err := n.Notify(context.Background(), event.Event{ID: "p1", Kind: event.Succeeded})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msgs := sender.messages()
	if len(msgs) != 1 {
		t.Fatalf("expected one message, got %d", len(msgs))
	}
	if msgs[0].chatID != 42 {
		t.Errorf("chat id = %d, want 42", msgs[0].chatID)
	}
	if !strings.Contains(msgs[0].text, "ID платежа: p1") {
		t.Errorf("message missing payment id: %q", msgs[0].text)
	}
}

func TestNotifyDisabled(t *testing.T) {
	// No sender configured.
	n := notifier.New(nil, 42, discardLog())
	if err := n.Notify(context.Background(), event.Event{Kind: event.Succeeded}); err != nil {
		t.Fatalf("disabled notifier must not error, got %v", err)
	}

	// No chat id configured.
	sender := &fakeSender{}
	n = notifier.New(sender, 0, discardLog())
	if err := n.Notify(context.Background(), event.Event{Kind: event.Succeeded}); err != nil {
		t.Fatalf("disabled notifier must not error, got %v", err)
	}
	if len(sender.messages()) != 0 {
		t.Fatal("disabled notifier must not send")
	}
}

func TestNotifySkipsUnknown(t *testing.T) {
	sender := &fakeSender{}
	n := notifier.New(sender, 42, discardLog())

	if err := n.Notify(context.Background(), event.Event{ID: "p9", Kind: event.Unknown}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sender.messages()) != 0 {
		t.Fatal("unknown events must not be delivered")
	}
}

func TestNotifyPropagatesSendError(t *testing.T) {
	sender := &fakeSender{err: errors.New("telegram down")}
	n := notifier.New(sender, 42, discardLog())

	if err := n.Notify(context.Background(), event.Event{Kind: event.Failed}); err == nil {
		t.Fatal("expected send error to surface to the caller")
	}
}

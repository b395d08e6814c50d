package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/ndemidov/payment-webhook/internal/config"
	"github.com/ndemidov/payment-webhook/internal/notifier"
	"github.com/ndemidov/payment-webhook/internal/storage"
	"github.com/ndemidov/payment-webhook/internal/telegram"
	"github.com/ndemidov/payment-webhook/internal/webhook"
)

func main() {
	// Setup logger
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(log)

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found")
	}

	// Load config
	cfg := config.Load()

	// Initialize storage. Persistence is optional: without it the service
	// still authenticates, normalizes and notifies.
	var store *storage.Storage
	if cfg.DBPath == "" {
		log.Warn("DB_PATH is empty, persistence disabled")
	} else {
		var err error
		store, err = storage.New(cfg.DBPath)
		if err != nil {
			log.Error("init storage, persistence disabled", "error", err)
			store = nil
		} else {
			defer store.Close()
			log.Info("storage initialized", "path", cfg.DBPath)
		}
	}

	// Initialize telegram sender. Notifications are opt-in.
	var sender notifier.Sender
	if cfg.BotToken != "" && cfg.AdminChatID != 0 {
		bot, err := telegram.New(cfg.BotToken)
		if err != nil {
			log.Error("init telegram bot, notifications disabled", "error", err)
		} else {
			sender = bot
			log.Info("telegram notifications enabled", "admin_chat_id", cfg.AdminChatID)
		}
	} else {
		log.Info("telegram notifications disabled (set TELEGRAM_BOT_TOKEN and TELEGRAM_ADMIN_ID)")
	}
	notify := notifier.New(sender, cfg.AdminChatID, log)

	if cfg.WebhookSecret == "" {
		log.Warn("signature check disabled (set WEBHOOK_SECRET)")
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Info("shutting down...")
		cancel()
	}()

	// Start webhook server
	server := webhook.NewServer(cfg, store, notify, log)
	if err := server.Start(ctx, cfg.Port); err != nil && err != http.ErrServerClosed {
		log.Error("webhook server", "error", err)
	}

	// Drain in-flight persistence and notification tasks
	server.Wait()
}

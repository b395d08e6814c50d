package config

import (
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// Server
	Port           int
	AllowedOrigins []string

	// Webhook authentication
	AllowedIPs    []string
	WebhookSecret string
	APIKey        string
	MerchantID    string

	// Admin API
	AdminKey string

	// Database
	DBPath string

	// Telegram
	BotToken    string
	AdminChatID int64
}

func Load() *Config {
	return &Config{
		// Server
		Port:           getEnvInt("PORT", 8080),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "*")),

		// Webhook authentication
		AllowedIPs:    splitList(os.Getenv("ALLOWED_IPS")),
		WebhookSecret: getEnv("WEBHOOK_SECRET", ""),
		APIKey:        getEnv("PROVIDER_API_KEY", ""),
		MerchantID:    getEnv("PROVIDER_MERCHANT_ID", ""),

		// Admin API
		AdminKey: getEnv("ADMIN_API_KEY", ""),

		// Database. An explicitly empty DB_PATH disables persistence.
		DBPath: getEnvAllowEmpty("DB_PATH", "./payments.db"),

		// Telegram
		BotToken:    getEnv("TELEGRAM_BOT_TOKEN", ""),
		AdminChatID: getEnvInt64("TELEGRAM_ADMIN_ID", getEnvInt64("ADMIN_TG_ID", 0)),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getEnvAllowEmpty treats a set-but-empty variable as an explicit value,
// unlike getEnv which falls back on empty strings.
func getEnvAllowEmpty(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(val)
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			return i
		}
	}
	return defaultVal
}

func splitList(val string) []string {
	if val == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(val, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}

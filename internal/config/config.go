package config

import (
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
)

// Config holds all environment-derived settings. Every value is read once
// at startup; request-dependent values (the serving origin) are never
// stored here.
type Config struct {
	Port          string
	Env           string
	DatabaseDSN   string
	BaseURL       string // fallback origin when the request carries no Host
	WebhookURL    string
	WebhookAPIKey string
	AllowedEmail  string
}

func Load() Config {
	cfg := Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		DatabaseDSN:   getEnv("DATABASE_DSN", "host=localhost user=postgres password=postgres dbname=magictodo port=5432 sslmode=disable"),
		BaseURL:       getEnv("BASE_URL", "http://localhost:8080"),
		WebhookURL:    os.Getenv("NOTIFY_WEBHOOK_URL"),
		WebhookAPIKey: os.Getenv("NOTIFY_API_KEY"),
		AllowedEmail:  os.Getenv("ALLOWED_EMAIL"),
	}

	if cfg.Env == "production" && cfg.AllowedEmail == "" {
		slog.Error("ALLOWED_EMAIL must be set in production environment")
		os.Exit(1)
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

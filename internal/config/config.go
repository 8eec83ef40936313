// Package config は環境変数からのアプリケーション設定の読み込みを提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Airtable OAuth
	AirtableClientID     string
	AirtableClientSecret string
	AirtableRedirectURL  string
	AirtableScope        string

	// Webhook
	WebhookSecret          string
	WebhookRefreshInterval time.Duration
	WebhookMaxConcurrent   int

	// Rate Limit
	RateLimitGeneral    int
	RateLimitSubmission int

	// Events
	EventRetentionDays int

	// Server
	ServerPort  string
	FrontendURL string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.AirtableClientID = os.Getenv("AIRTABLE_CLIENT_ID")
	if cfg.AirtableClientID == "" {
		missing = append(missing, "AIRTABLE_CLIENT_ID")
	}

	cfg.AirtableClientSecret = os.Getenv("AIRTABLE_CLIENT_SECRET")
	if cfg.AirtableClientSecret == "" {
		missing = append(missing, "AIRTABLE_CLIENT_SECRET")
	}

	cfg.AirtableRedirectURL = os.Getenv("AIRTABLE_REDIRECT_URL")
	if cfg.AirtableRedirectURL == "" {
		missing = append(missing, "AIRTABLE_REDIRECT_URL")
	}

	cfg.FrontendURL = os.Getenv("FRONTEND_URL")
	if cfg.FrontendURL == "" {
		missing = append(missing, "FRONTEND_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.AirtableScope = getEnvString("AIRTABLE_SCOPE", "")
	cfg.WebhookSecret = getEnvString("WEBHOOK_SECRET", "")
	cfg.WebhookRefreshInterval = getEnvDuration("WEBHOOK_REFRESH_INTERVAL", 6*time.Hour)
	cfg.WebhookMaxConcurrent = getEnvInt("WEBHOOK_MAX_CONCURRENT", 5)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSubmission = getEnvInt("RATE_LIMIT_SUBMISSION", 30)
	cfg.EventRetentionDays = getEnvInt("EVENT_RETENTION_DAYS", 90)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/maheshrc27/vantage/internal/client"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

// InboundSecrets holds the shared secret each platform signs its webhooks
// with, keyed by platform identifier.
type InboundSecrets map[string]string

type Config struct {
	Port        string
	PostgresURI string
	RedisURI    string
	SecretKey   string
	CookieName  string
	R2          R2

	WorkerConcurrency int
	HTTPTimeout       time.Duration
	RateLimitMaxWait  time.Duration
	RateLimits        map[string]client.Limit

	InboundSecrets  InboundSecrets
	MetaVerifyToken string

	WebhookRetryCount     int
	WebhookTimeoutSeconds int

	DeliverySweepSpec string
	StatusPollSpec    string
}

func LoadConfig() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		PostgresURI: getEnv("POSTGRES_URI", ""),
		RedisURI:    getEnv("REDIS_URI", "localhost:6379"),
		SecretKey:   getEnv("SECRET_KEY", ""),
		CookieName:  getEnv("COOKIE_NAME", "vantage_session"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  strings.TrimRight(getEnv("MEDIA_PUBLIC_URL", ""), "/"),
		},

		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 10),
		HTTPTimeout:       time.Duration(getEnvInt("HTTP_TIMEOUT_SECONDS", 30)) * time.Second,
		RateLimitMaxWait:  time.Duration(getEnvInt("RATE_LIMIT_MAX_WAIT_SECONDS", 300)) * time.Second,
		RateLimits:        loadRateLimits(),

		InboundSecrets: InboundSecrets{
			"facebook":                getEnv("META_APP_SECRET", ""),
			"instagram":               getEnv("META_APP_SECRET", ""),
			"linkedin":                getEnv("LINKEDIN_CLIENT_SECRET", ""),
			"google_business_profile": getEnv("GOOGLE_WEBHOOK_SECRET", ""),
			"google_ads":              getEnv("GOOGLE_WEBHOOK_SECRET", ""),
			"tiktok_ads":              getEnv("TIKTOK_WEBHOOK_SECRET", ""),
			"whatsapp":                getEnv("WHATSAPP_APP_SECRET", ""),
		},
		MetaVerifyToken: getEnv("META_VERIFY_TOKEN", ""),

		WebhookRetryCount:     getEnvInt("WEBHOOK_DEFAULT_RETRY_COUNT", 3),
		WebhookTimeoutSeconds: getEnvInt("WEBHOOK_DEFAULT_TIMEOUT_SECONDS", 30),

		DeliverySweepSpec: getEnv("DELIVERY_SWEEP_SPEC", "@every 1m"),
		StatusPollSpec:    getEnv("STATUS_POLL_SPEC", "@every 15m"),
	}
}

// loadRateLimits starts from the documented platform quotas and applies any
// RATE_LIMIT_<GROUP> override.
func loadRateLimits() map[string]client.Limit {
	limits := make(map[string]client.Limit, len(client.DefaultLimits))
	for group, limit := range client.DefaultLimits {
		limits[group] = limit
		key := "RATE_LIMIT_" + strings.ToUpper(group)
		raw := os.Getenv(key)
		if raw == "" {
			continue
		}
		parsed, err := ParseLimit(raw)
		if err != nil {
			slog.Warn("ignoring invalid rate limit override", "key", key, "value", raw, "error", err)
			continue
		}
		limits[group] = parsed
	}
	return limits
}

// ParseLimit reads "N/W": N requests per W seconds.
func ParseLimit(raw string) (client.Limit, error) {
	n, w, ok := strings.Cut(strings.TrimSpace(raw), "/")
	if !ok {
		return client.Limit{}, fmt.Errorf("expected N/W, got %q", raw)
	}
	requests, err := strconv.Atoi(strings.TrimSpace(n))
	if err != nil || requests <= 0 {
		return client.Limit{}, fmt.Errorf("invalid request count %q", n)
	}
	seconds, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil || seconds <= 0 {
		return client.Limit{}, fmt.Errorf("invalid window %q", w)
	}
	return client.Limit{Requests: requests, Window: time.Duration(seconds) * time.Second}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("ignoring invalid integer setting", "key", key, "value", value)
		return defaultValue
	}
	return n
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/market-shopper/internal/pricing"
	"github.com/noah-isme/market-shopper/internal/relay"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	RedisURL           string
	CORSAllowedOrigins []string
	BodyLimitBytes     int64

	SessionSecret   string
	SessionIssuer   string
	SessionAudience string
	SessionTTL      time.Duration
	DraftTTL        time.Duration

	QuoteRelayURL         string
	RelayTimeout          time.Duration
	RelayBreakerMinReq    int
	RelayBreakerFailRatio float64
	RelayBreakerOpenFor   time.Duration
	SubmitLockTTL         time.Duration

	PaymentEnabled    bool
	PaystackPublicKey string
	PaystackSecretKey string
	PaymentCurrency   string
	WebhookReplayTTL  time.Duration

	PricingBaseFee     int64
	PricingServiceRate decimal.Decimal
	PricingPriorityFee int64

	RateLimitSubmitMax    int
	RateLimitSubmitWindow time.Duration
	RateLimitSessions     string
	IdempotencyTTL        time.Duration
	EventStreamKey        string
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		RedisURL:           strings.TrimSpace(k.String("REDIS_URL")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		BodyLimitBytes:     parseInt64(k.String("BODY_LIMIT_BYTES"), 1<<20),

		SessionSecret:   k.String("SESSION_SECRET"),
		SessionIssuer:   valueOrDefault(k.String("SESSION_ISSUER"), "market-shopper"),
		SessionAudience: valueOrDefault(k.String("SESSION_AUDIENCE"), "market-shopper-web"),
		SessionTTL:      parseDuration(k.String("SESSION_TTL"), "72h"),
		DraftTTL:        parseDuration(k.String("DRAFT_TTL"), "720h"),

		QuoteRelayURL:         valueOrDefault(k.String("QUOTE_RELAY_URL"), relay.DefaultEndpoint),
		RelayTimeout:          parseDuration(k.String("RELAY_TIMEOUT"), "0s"),
		RelayBreakerMinReq:    parseInt(k.String("CIRCUIT_RELAY_MIN_REQ"), 5),
		RelayBreakerFailRatio: parseFloat(k.String("CIRCUIT_RELAY_FAILURE_RATE"), 0.5),
		RelayBreakerOpenFor:   parseDuration(k.String("CIRCUIT_RELAY_OPEN_FOR"), "30s"),
		SubmitLockTTL:         parseDuration(k.String("SUBMIT_LOCK_TTL"), "30s"),

		PaymentEnabled:    parseBool(valueOrDefault(k.String("PAYMENT_ENABLED"), "true")),
		PaystackPublicKey: strings.TrimSpace(k.String("PAYSTACK_PUBLIC_KEY")),
		PaystackSecretKey: strings.TrimSpace(k.String("PAYSTACK_SECRET_KEY")),
		PaymentCurrency:   valueOrDefault(k.String("PAYMENT_CURRENCY"), "NGN"),
		WebhookReplayTTL:  parseDuration(k.String("WEBHOOK_REPLAY_TTL"), "24h"),

		PricingBaseFee:     parseInt64(k.String("PRICING_BASE_FEE"), pricing.DefaultBaseFee),
		PricingPriorityFee: parseInt64(k.String("PRICING_PRIORITY_FEE"), pricing.DefaultPriorityFee),

		RateLimitSubmitMax:    parseInt(k.String("RATE_LIMIT_SUBMIT_MAX"), 5),
		RateLimitSubmitWindow: parseDuration(k.String("RATE_LIMIT_SUBMIT_WINDOW"), "1m"),
		RateLimitSessions:     valueOrDefault(k.String("RATE_LIMIT_SESSIONS"), "20-M"),
		IdempotencyTTL:        parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),
		EventStreamKey:        valueOrDefault(k.String("EVENT_STREAM_KEY"), "events:shopper"),
	}

	rate, err := parseRate(k.String("PRICING_SERVICE_RATE"))
	if err != nil {
		return nil, err
	}
	cfg.PricingServiceRate = rate

	if strings.TrimSpace(cfg.SessionSecret) == "" {
		return nil, errors.New("SESSION_SECRET is required")
	}
	if len(cfg.SessionSecret) < 32 && cfg.AppEnv == "production" {
		return nil, errors.New("SESSION_SECRET must be at least 32 bytes in production")
	}
	if cfg.PricingBaseFee < 0 || cfg.PricingPriorityFee < 0 {
		return nil, errors.New("pricing fees must not be negative")
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

// PricingSchedule returns the default schedule with configured overrides applied.
func (c *Config) PricingSchedule() pricing.Schedule {
	s := pricing.DefaultSchedule()
	s.BaseFee = c.PricingBaseFee
	s.ServiceRate = c.PricingServiceRate
	s.PriorityFees[pricing.PriorityExpress] = c.PricingPriorityFee
	return s
}

// UsesRedis reports whether a Redis URL was configured. Without one, drafts and guards stay in memory.
func (c *Config) UsesRedis() bool {
	return c.RedisURL != ""
}

func parseRate(value string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pricing.DefaultServiceRate, nil
	}
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("PRICING_SERVICE_RATE: %w", err)
	}
	if d.IsNegative() || d.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.Zero, errors.New("PRICING_SERVICE_RATE must be between 0 and 1")
	}
	return d, nil
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseInt64(value string, fallback int64) int64 {
	parsed, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseBool(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}

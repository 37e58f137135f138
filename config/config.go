package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Database providers
const (
	ProviderMongo    = "mongo"
	ProviderPostgres = "postgres"
	ProviderSQLite   = "sqlite"
	ProviderMemory   = "memory"
)

// Config holds all configuration for the API server
type Config struct {
	Port     string
	Env      string
	LogLevel string

	// Database configuration
	DatabaseProvider string
	MongoURI         string
	MongoDatabase    string
	DatabaseURL      string

	// Redis configuration
	RedisAddress  string
	RedisPassword string

	// Auth configuration
	JWTSecret    string
	JWTIssuer    string
	JWTAudience  string
	TokenTTL     time.Duration
	CookieDomain string
	CORSOrigins  []string

	// reCAPTCHA configuration
	RecaptchaSecretKey string
	RecaptchaMinScore  float64

	// SendGrid configuration
	SendGridAPIKey    string
	SendGridFromName  string
	SendGridFromEmail string

	// RabbitMQ configuration
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string

	NotifyTimeout time.Duration

	// Rate limits are requests per minute per client
	RateLimitPrefix string
	AuthRateLimit   int
	SubmitRateLimit int

	// Optional admin seeded at startup
	AdminEmail    string
	AdminPassword string
}

// Load loads configuration from environment variables
func Load() *Config {
	cfg := &Config{}

	cfg.Port = getEnv("PORT", "8080")
	cfg.Env = getEnv("GO_ENV", "development")
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")

	cfg.DatabaseProvider = strings.ToLower(getEnv("DATABASE_PROVIDER", ProviderMongo))
	cfg.MongoURI = getEnv("MONGODB_URI", "")
	cfg.MongoDatabase = getEnv("MONGODB_DATABASE", "civicservice")
	cfg.DatabaseURL = getEnv("DATABASE_URL", "")

	cfg.RedisAddress = getEnv("REDIS_ADDRESS", "")
	cfg.RedisPassword = getEnv("REDIS_PASSWORD", "")

	cfg.JWTSecret = getEnv("JWT_SECRET", "")
	cfg.JWTIssuer = getEnv("JWT_ISSUER", "civicservice")
	cfg.JWTAudience = getEnv("JWT_AUDIENCE", "civicservice")
	cfg.TokenTTL = getDurationEnv("TOKEN_TTL", 7*24*time.Hour)
	cfg.CookieDomain = getEnv("COOKIE_DOMAIN", "")
	cfg.CORSOrigins = splitList(getEnv("CORS_ORIGINS", "http://localhost:3000"))

	cfg.RecaptchaSecretKey = getEnv("RECAPTCHA_SECRET_KEY", "")
	cfg.RecaptchaMinScore = getFloatEnv("RECAPTCHA_MIN_SCORE", 0.5)

	cfg.SendGridAPIKey = getEnv("SENDGRID_API_KEY", "")
	cfg.SendGridFromName = getEnv("SENDGRID_FROM_NAME", "Civic Service Portal")
	cfg.SendGridFromEmail = getEnv("SENDGRID_FROM_EMAIL", "noreply@civicservice.local")

	cfg.AMQPURL = getEnv("AMQP_URL", "")
	cfg.AMQPExchange = getEnv("AMQP_EXCHANGE", "civicservice")
	cfg.AMQPRoutingKey = getEnv("AMQP_ROUTING_KEY", "request.status")

	cfg.NotifyTimeout = getDurationEnv("NOTIFY_TIMEOUT", 30*time.Second)

	cfg.RateLimitPrefix = getEnv("RATE_LIMIT_PREFIX", "civicservice:ratelimit")
	cfg.AuthRateLimit = getIntEnv("AUTH_RATE_LIMIT", 10)
	cfg.SubmitRateLimit = getIntEnv("SUBMIT_RATE_LIMIT", 5)

	cfg.AdminEmail = getEnv("ADMIN_EMAIL", "")
	cfg.AdminPassword = getEnv("ADMIN_PASSWORD", "")

	return cfg
}

// Validate reports every configuration problem at once
func (c *Config) Validate() error {
	var errs []error
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.DatabaseProvider {
	case ProviderMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGODB_URI is required for the mongo provider"))
		}
	case ProviderPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres provider"))
		}
	case ProviderSQLite, ProviderMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown DATABASE_PROVIDER %q", c.DatabaseProvider))
	}
	if c.RecaptchaMinScore < 0 || c.RecaptchaMinScore > 1 {
		errs = append(errs, fmt.Errorf("RECAPTCHA_MIN_SCORE must be between 0 and 1, got %v", c.RecaptchaMinScore))
	}
	if c.AuthRateLimit < 1 || c.SubmitRateLimit < 1 {
		errs = append(errs, errors.New("rate limits must be positive"))
	}
	if (c.AdminEmail == "") != (c.AdminPassword == "") {
		errs = append(errs, errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together"))
	}
	return errors.Join(errs...)
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if n, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return n
	}
	return fallback
}

func getFloatEnv(key string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return f
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(getEnv(key, "")); err == nil && d > 0 {
		return d
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

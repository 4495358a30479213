package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds the API server settings. Database and Redis settings live in
// db.Config and cache.Config.
type Config struct {
	Port        string        `validate:"required,numeric"`
	JWTSecret   string        `validate:"required,min=16"`
	TokenTTL    time.Duration `validate:"gt=0"`
	LocationTTL time.Duration `validate:"gt=0"`
	LogLevel    string        `validate:"oneof=debug info warn warning error"`

	EnableRateLimit  bool
	RateLimitWindow  time.Duration `validate:"gt=0"`
	RateLimitMax     int           `validate:"gt=0"`
	AuthRateLimitMax int           `validate:"gt=0"`

	// NATSURL empty disables live fan-out
	NATSURL           string `validate:"omitempty,url"`
	NATSSubjectPrefix string `validate:"required"`

	MetricsEnabled bool
	CORSOrigins    string `validate:"required"`
}

// Load reads .env (when present) and the environment
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", "3000"),
		JWTSecret:         os.Getenv("JWT_SECRET"),
		LogLevel:          strings.ToLower(getEnv("LOG_LEVEL", "info")),
		EnableRateLimit:   getEnvBool("ENABLE_RATE_LIMIT", true),
		NATSURL:           os.Getenv("NATS_URL"),
		NATSSubjectPrefix: getEnv("NATS_SUBJECT_PREFIX", "bus.locations"),
		MetricsEnabled:    getEnvBool("METRICS_ENABLED", true),
		CORSOrigins:       getEnv("CORS_ORIGINS", "*"),
	}

	var err error
	if cfg.TokenTTL, err = getEnvDuration("JWT_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.LocationTTL, err = getEnvDuration("LOCATION_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.RateLimitWindow, err = getEnvDuration("RATE_LIMIT_WINDOW", 15*time.Minute); err != nil {
		return nil, err
	}
	if cfg.RateLimitMax, err = getEnvInt("RATE_LIMIT_MAX", 100); err != nil {
		return nil, err
	}
	if cfg.AuthRateLimitMax, err = getEnvInt("AUTH_RATE_LIMIT_MAX", 5); err != nil {
		return nil, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, value)
	}
	return n, nil
}

// getEnvDuration accepts Go duration strings ("15m") or whole seconds ("900")
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, value)
	}
	return d, nil
}

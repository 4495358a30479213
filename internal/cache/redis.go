package cache

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/kusalkrp/bus-tracking-api/internal/models"
	"github.com/redis/go-redis/v9"
)

// DefaultLocationTTL is how long a fix stays readable after it is written
const DefaultLocationTTL = time.Hour

// Config holds Redis configuration
type Config struct {
	Host       string
	Port       int
	Password   string
	DB         int
	TLSEnabled bool
}

// LoadConfigFromEnv loads Redis configuration from environment variables
func LoadConfigFromEnv() *Config {
	port, _ := strconv.Atoi(getEnv("REDIS_PORT", "6379"))
	db, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))

	return &Config{
		Host:       getEnv("REDIS_HOST", "localhost"),
		Port:       port,
		Password:   getEnv("REDIS_PASSWORD", ""),
		DB:         db,
		TLSEnabled: getEnv("REDIS_TLS_ENABLED", "false") == "true",
	}
}

// NewClient opens a Redis client and verifies it with a ping
func NewClient(ctx context.Context, cfg *Config) (*redis.Client, error) {
	opts := &redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	}

	// Managed Redis offerings require TLS
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// TripKey is the cache key of the latest fix of a trip
func TripKey(tripID string) string {
	return fmt.Sprintf("location:%s", tripID)
}

// BusKey is the cache key of the latest fix of a bus
func BusKey(busID string) string {
	return fmt.Sprintf("bus_location:%s", busID)
}

// LocationCache keeps the latest fix per trip and per bus. Writes are
// last-writer-wins: an older fix arriving late replaces a newer one.
type LocationCache struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewLocationCache wraps rdb. A non-positive ttl selects DefaultLocationTTL.
func NewLocationCache(rdb redis.Cmdable, ttl time.Duration) *LocationCache {
	if ttl <= 0 {
		ttl = DefaultLocationTTL
	}
	return &LocationCache{rdb: rdb, ttl: ttl}
}

// StoreFix writes fix under both its trip and bus keys
func (c *LocationCache) StoreFix(ctx context.Context, fix *models.LocationFix) error {
	data, err := json.Marshal(fix)
	if err != nil {
		return fmt.Errorf("failed to marshal location: %w", err)
	}

	_, err = c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, TripKey(fix.TripID), data, c.ttl)
		pipe.Set(ctx, BusKey(fix.BusID), data, c.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to cache location: %w", err)
	}
	return nil
}

// TripLocation returns the latest fix of a trip, or nil when none is cached
func (c *LocationCache) TripLocation(ctx context.Context, tripID string) (*models.LocationFix, error) {
	return c.get(ctx, TripKey(tripID))
}

// BusLocation returns the latest fix of a bus, or nil when none is cached
func (c *LocationCache) BusLocation(ctx context.Context, busID string) (*models.LocationFix, error) {
	return c.get(ctx, BusKey(busID))
}

func (c *LocationCache) get(ctx context.Context, key string) (*models.LocationFix, error) {
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil // cache miss
	}
	if err != nil {
		return nil, err
	}

	var fix models.LocationFix
	if err := json.Unmarshal(data, &fix); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached location: %w", err)
	}
	return &fix, nil
}

// HealthCheck performs a health check on the Redis connection
func HealthCheck(ctx context.Context, rdb redis.Cmdable) error {
	if rdb == nil {
		return fmt.Errorf("Redis client not initialized")
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("Redis ping failed: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

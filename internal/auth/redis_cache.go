package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/uptrace/bun"

	"cloudtickets/internal/database"
	"cloudtickets/internal/logger"
	"cloudtickets/internal/models"
)

const (
	deviceKeyPrefix = "device:"
	// MaxDeviceCacheTTL bounds how long a deactivated device can keep scanning.
	MaxDeviceCacheTTL = 5 * time.Second
)

// DeviceStore resolves a device by its API key.
type DeviceStore interface {
	DeviceByAPIKey(ctx context.Context, apiKey string) (*models.Device, error)
}

// DeviceDB reads devices straight from the database.
type DeviceDB struct {
	Bun *bun.DB
}

func (d *DeviceDB) DeviceByAPIKey(ctx context.Context, apiKey string) (*models.Device, error) {
	var device models.Device
	err := d.Bun.NewSelect().
		Model(&device).
		Where("d.api_key = ?", apiKey).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, database.NotFound(err)
	}
	return &device, nil
}

// RedisDeviceCache keeps active devices in Redis for TTL so scanners at a busy
// gate do not hit the database on every read. Deactivation takes effect once
// the entry expires, at most MaxDeviceCacheTTL later.
type RedisDeviceCache struct {
	Next   DeviceStore
	Client *redis.Client
	TTL    time.Duration
	Logger *logger.Logger
}

func NewRedisDeviceCache(next DeviceStore, client *redis.Client, ttl time.Duration, log *logger.Logger) *RedisDeviceCache {
	if ttl <= 0 || ttl > MaxDeviceCacheTTL {
		log.Warn("AUTH", fmt.Sprintf("Device cache TTL %s out of range, using %s", ttl, MaxDeviceCacheTTL))
		ttl = MaxDeviceCacheTTL
	}
	return &RedisDeviceCache{Next: next, Client: client, TTL: ttl, Logger: log}
}

func (c *RedisDeviceCache) DeviceByAPIKey(ctx context.Context, apiKey string) (*models.Device, error) {
	key := cacheKey(apiKey)

	cached, err := c.Client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var device models.Device
		if err := json.Unmarshal(cached, &device); err == nil {
			return &device, nil
		}
		c.Logger.Warn("AUTH", "Discarding unreadable device cache entry")
	case !errors.Is(err, redis.Nil):
		c.Logger.Warn("AUTH", fmt.Sprintf("Device cache read failed, falling back to database: %v", err))
	}

	device, err := c.Next.DeviceByAPIKey(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	if !device.Active {
		return device, nil
	}

	if data, err := json.Marshal(device); err == nil {
		if err := c.Client.Set(ctx, key, data, c.TTL).Err(); err != nil {
			c.Logger.Warn("AUTH", fmt.Sprintf("Device cache write failed: %v", err))
		}
	}
	return device, nil
}

// cacheKey never stores the raw API key in Redis.
func cacheKey(apiKey string) string {
	sum := sha256.Sum256([]byte(apiKey))
	return deviceKeyPrefix + hex.EncodeToString(sum[:])
}

// InitializeRedis connects to Redis and tests the connection.
func InitializeRedis(ctx context.Context, redisAddr string, log *logger.Logger) (*redis.Client, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		PoolSize: 10,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		log.Error("AUTH", fmt.Sprintf("Failed to connect to Redis at %s: %v", redisAddr, err))
		redisClient.Close()
		return nil, err
	}

	log.Info("AUTH", fmt.Sprintf("Successfully connected to Redis at %s for device caching", redisAddr))
	return redisClient, nil
}

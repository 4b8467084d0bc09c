package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"

	"github.com/ManuelReschke/CreatorVault/internal/pkg/env"
)

var client *redis.Client

// Options builds the connection settings from CACHE_HOST, CACHE_PORT and CACHE_PASSWORD.
func Options() *redis.Options {
	return &redis.Options{
		Addr:     fmt.Sprintf("%s:%s", env.GetEnv("CACHE_HOST", "localhost"), env.GetEnv("CACHE_PORT", "6379")),
		Password: env.GetEnv("CACHE_PASSWORD", ""),
		DB:       env.GetEnvInt("CACHE_DB", 0),
	}
}

// SetupCache connects the shared Redis client used for locks, jobs and lookups.
func SetupCache() {
	client = redis.NewClient(Options())

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	pong, err := client.Ping(ctx).Result()
	if err != nil {
		log.Warnf("[Cache] Could not connect to %s: %v", client.Options().Addr, err)
	} else {
		log.Infof("[Cache] Connected to %s: %s", client.Options().Addr, pong)
	}
}

// GetClient returns the Redis client instance
func GetClient() *redis.Client {
	if client == nil {
		SetupCache()
	}
	return client
}

// SetClient replaces the shared client, e.g. with one pointed at a test database.
func SetClient(c *redis.Client) {
	client = c
}

// Ping reports whether the cache answers.
func Ping(ctx context.Context) error {
	return GetClient().Ping(ctx).Err()
}

// Set stores a value in the cache with the given key and expiration time
func Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error {
	return GetClient().Set(ctx, key, value, expiration).Err()
}

// Get retrieves a value from the cache by key
func Get(ctx context.Context, key string) (string, error) {
	return GetClient().Get(ctx, key).Result()
}

// GetInt retrieves an integer value from the cache by key
func GetInt(ctx context.Context, key string) (int, error) {
	val, err := GetClient().Get(ctx, key).Int()
	if err != nil {
		return 0, err
	}
	return val, nil
}

// Delete removes a value from the cache by key
func Delete(ctx context.Context, key string) error {
	return GetClient().Del(ctx, key).Err()
}

// IsMiss reports whether err means the key does not exist.
func IsMiss(err error) bool {
	return err == redis.Nil
}

package db

import (
	"context"
	"fmt"
	"time"

	"github.com/devquest/collab/internal/slogging"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds the configuration for the Redis connection
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisDB represents a Redis database connection
type RedisDB struct {
	client *redis.Client
	cfg    RedisConfig
}

// NewRedisDB creates a new Redis database connection and verifies it with a ping.
func NewRedisDB(cfg RedisConfig) (*RedisDB, error) {
	logger := slogging.Get()
	logger.Debug("Initializing Redis connection to %s DB=%d", cfg.Addr, cfg.DB)

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Error("Failed to ping Redis: %v", err)
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	logger.Debug("Redis connection established")

	return &RedisDB{client: client, cfg: cfg}, nil
}

// NewRedisDBFromClient wraps an existing client. Used by tests with miniredis.
func NewRedisDBFromClient(client *redis.Client) *RedisDB {
	return &RedisDB{client: client}
}

// Close closes the Redis connection
func (db *RedisDB) Close() error {
	if db.client != nil {
		if err := db.client.Close(); err != nil {
			slogging.Get().Error("Error closing Redis connection: %v", err)
			return err
		}
	}
	return nil
}

// GetClient returns the underlying Redis client
func (db *RedisDB) GetClient() *redis.Client {
	return db.client
}

// Ping checks if the Redis connection is alive
func (db *RedisDB) Ping(ctx context.Context) error {
	return db.client.Ping(ctx).Err()
}

// Set sets a key-value pair with expiration (0 = no expiration)
func (db *RedisDB) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	return db.client.Set(ctx, key, value, expiration).Err()
}

// Get gets a value by key
func (db *RedisDB) Get(ctx context.Context, key string) (string, error) {
	return db.client.Get(ctx, key).Result()
}

// Del deletes keys
func (db *RedisDB) Del(ctx context.Context, keys ...string) error {
	return db.client.Del(ctx, keys...).Err()
}

// SAdd adds members to a set
func (db *RedisDB) SAdd(ctx context.Context, key string, members ...any) error {
	return db.client.SAdd(ctx, key, members...).Err()
}

// SRem removes members from a set
func (db *RedisDB) SRem(ctx context.Context, key string, members ...any) error {
	return db.client.SRem(ctx, key, members...).Err()
}

// SMembers returns all members of a set
func (db *RedisDB) SMembers(ctx context.Context, key string) ([]string, error) {
	return db.client.SMembers(ctx, key).Result()
}

// HSet sets a hash field
func (db *RedisDB) HSet(ctx context.Context, key, field string, value any) error {
	return db.client.HSet(ctx, key, field, value).Err()
}

// HGet gets a hash field
func (db *RedisDB) HGet(ctx context.Context, key, field string) (string, error) {
	return db.client.HGet(ctx, key, field).Result()
}

// HDel deletes hash fields
func (db *RedisDB) HDel(ctx context.Context, key string, fields ...string) error {
	return db.client.HDel(ctx, key, fields...).Err()
}

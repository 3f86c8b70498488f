package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/TheServizephyr/ServiZephyrTheRealBot-sub000/internal/models"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client and checks connectivity
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Ping checks connectivity
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Get returns the raw value under key. A missing key is not an error.
func (c *Client) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// Set stores value under key with ttl
func (c *Client) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, value, ttl).Err()
}

// GetCounter reads an integer counter, treating a missing key as zero
func (c *Client) GetCounter(ctx context.Context, key string) (int64, error) {
	n, err := c.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return n, err
}

// Incr atomically increments a counter and returns the new value
func (c *Client) Incr(ctx context.Context, key string) (int64, error) {
	return c.rdb.Incr(ctx, key).Result()
}

// SetTrackingSnapshot writes the live tracking view of an order
func (c *Client) SetTrackingSnapshot(ctx context.Context, token string, snap models.TrackingSnapshot, ttl time.Duration) error {
	key := fmt.Sprintf("tracking:%s", token)

	pipe := c.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		"order_id", snap.OrderID,
		"status", string(snap.Status),
		"rider_id", snap.RiderID,
		"updated_at", snap.UpdatedAt.UTC().Format(time.RFC3339Nano))
	pipe.Expire(ctx, key, ttl)

	_, err := pipe.Exec(ctx)
	return err
}

// GetTrackingSnapshot reads the live tracking view of an order. A missing or
// expired snapshot is nil without an error.
func (c *Client) GetTrackingSnapshot(ctx context.Context, token string) (*models.TrackingSnapshot, error) {
	key := fmt.Sprintf("tracking:%s", token)

	result, err := c.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, nil
	}

	updated, _ := time.Parse(time.RFC3339Nano, result["updated_at"])
	return &models.TrackingSnapshot{
		OrderID:   result["order_id"],
		Status:    models.Status(result["status"]),
		RiderID:   result["rider_id"],
		UpdatedAt: updated,
	}, nil
}

// AcquireLock acquires a distributed lock
func (c *Client) AcquireLock(ctx context.Context, lockKey string, ttl time.Duration) (bool, error) {
	return c.rdb.SetNX(ctx, fmt.Sprintf("lock:%s", lockKey), "1", ttl).Result()
}

// ReleaseLock releases a distributed lock
func (c *Client) ReleaseLock(ctx context.Context, lockKey string) error {
	return c.rdb.Del(ctx, fmt.Sprintf("lock:%s", lockKey)).Err()
}

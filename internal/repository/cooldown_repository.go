package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CooldownRepository throttles verification mail resends per subject using
// Redis keys with a TTL. With no Redis client configured, every attempt is
// allowed.
type CooldownRepository struct {
	client *redis.Client
	logger *zap.Logger
}

// NewCooldownRepository constructs a cooldown repository.
func NewCooldownRepository(client *redis.Client, logger *zap.Logger) *CooldownRepository {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CooldownRepository{client: client, logger: logger}
}

// Acquire attempts to start a cooldown for the key. It returns false when a
// cooldown is already active.
func (r *CooldownRepository) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if r.client == nil {
		return true, nil
	}
	ok, err := r.client.SetNX(ctx, r.prefixed(key), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

func (r *CooldownRepository) prefixed(key string) string {
	return "cooldown:" + key
}

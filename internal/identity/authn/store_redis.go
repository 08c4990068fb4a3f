// Copyright (c) 2026 Veridian Labs. All rights reserved.

package authn

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/veridianlabs/veridian/internal/platform/apperr"
	"github.com/veridianlabs/veridian/internal/platform/constants"
)

// RedisResetTokenRepository implements [ResetTokenRepository] on Redis.
//
// # Key Layout
//
// One key per user (identity:reset_token:<userID>), holding the token
// digest. Keying by user enforces the at-most-one-live-token rule through
// plain overwrite, and the key TTL enforces expiry with no cleanup job.
type RedisResetTokenRepository struct {
	client *redis.Client
}

// NewRedisResetTokenRepository creates the Redis [ResetTokenRepository].
func NewRedisResetTokenRepository(client *redis.Client) *RedisResetTokenRepository {
	return &RedisResetTokenRepository{client: client}
}

func resetTokenKey(userID string) string {
	return constants.RedisPrefixResetToken + userID
}

// Set stores the token digest for the user, replacing any previous one and
// resetting the TTL.
func (repository *RedisResetTokenRepository) Set(ctx context.Context, userID, tokenHash string, ttl time.Duration) error {
	if err := repository.client.Set(ctx, resetTokenKey(userID), tokenHash, ttl).Err(); err != nil {
		return fmt.Errorf("redis_reset_repo_set_failed: %w", err)
	}
	return nil
}

// Get retrieves the stored digest for the user.
func (repository *RedisResetTokenRepository) Get(ctx context.Context, userID string) (string, error) {
	value, err := repository.client.Get(ctx, resetTokenKey(userID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", apperr.NotFound("Reset token")
		}
		return "", fmt.Errorf("redis_reset_repo_get_failed: %w", err)
	}
	return value, nil
}

// Delete removes the user's token after successful use.
func (repository *RedisResetTokenRepository) Delete(ctx context.Context, userID string) error {
	if err := repository.client.Del(ctx, resetTokenKey(userID)).Err(); err != nil {
		return fmt.Errorf("redis_reset_repo_delete_failed: %w", err)
	}
	return nil
}

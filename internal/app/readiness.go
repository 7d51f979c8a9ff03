package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	ai "github.com/fairyhunter13/talent-match-engine/internal/adapter/ai"
)

// PostgresCheck pings the pool for the readiness endpoint.
func PostgresCheck(pool *pgxpool.Pool) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if pool == nil {
			return fmt.Errorf("db pool not configured")
		}
		return pool.Ping(ctx)
	}
}

// RedisCheck pings the Redis client for the readiness endpoint.
func RedisCheck(rdb *redis.Client) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if rdb == nil {
			return fmt.Errorf("redis not configured")
		}
		return rdb.Ping(ctx).Err()
	}
}

// ProviderCheck reports whether the active AI provider answers its health
// probe. The result is cached inside the router.
func ProviderCheck(router *ai.Router) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if router == nil {
			return fmt.Errorf("provider not configured")
		}
		if !router.IsAvailable(ctx) {
			return fmt.Errorf("provider %s unhealthy", router.Name())
		}
		return nil
	}
}

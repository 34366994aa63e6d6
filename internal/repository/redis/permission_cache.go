package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hurshidbey/p57-access/internal/core/domain"
	"github.com/hurshidbey/p57-access/internal/core/port"
	"github.com/hurshidbey/p57-access/internal/repository"
)

// PermissionCache stores resolved permission snapshots in Redis, keyed per
// principal. Mutations of roles or grants invalidate entries explicitly; the
// TTL is only a backstop.
type PermissionCache struct {
	client *redis.Client
	prefix string
}

// NewPermissionCache constructs a Redis-backed permission cache.
func NewPermissionCache(client *redis.Client, prefix string) *PermissionCache {
	if prefix == "" {
		prefix = "access:permissions"
	}
	return &PermissionCache{client: client, prefix: prefix}
}

func (c *PermissionCache) key(principalID string) string {
	return fmt.Sprintf("%s:%s", c.prefix, principalID)
}

// Get returns the cached snapshot or repository.ErrNotFound on a miss.
func (c *PermissionCache) Get(ctx context.Context, principalID string) (*domain.ResolvedPermissions, error) {
	payload, err := c.client.Get(ctx, c.key(principalID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("get cached permissions: %w", err)
	}

	var resolved domain.ResolvedPermissions
	if err := json.Unmarshal(payload, &resolved); err != nil {
		return nil, fmt.Errorf("decode cached permissions: %w", err)
	}

	return &resolved, nil
}

// Set stores the snapshot with the given TTL.
func (c *PermissionCache) Set(ctx context.Context, principalID string, resolved *domain.ResolvedPermissions, ttl time.Duration) error {
	payload, err := json.Marshal(resolved)
	if err != nil {
		return fmt.Errorf("encode cached permissions: %w", err)
	}

	if err := c.client.Set(ctx, c.key(principalID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("set cached permissions: %w", err)
	}

	return nil
}

// InvalidatePrincipal drops the snapshot of one principal.
func (c *PermissionCache) InvalidatePrincipal(ctx context.Context, principalID string) error {
	if err := c.client.Del(ctx, c.key(principalID)).Err(); err != nil {
		return fmt.Errorf("invalidate cached permissions: %w", err)
	}
	return nil
}

// InvalidateAll drops every snapshot under the cache prefix. Used after role
// mutations, which may affect any number of principals.
func (c *PermissionCache) InvalidateAll(ctx context.Context) error {
	var cursor uint64
	pattern := c.prefix + ":*"

	for {
		keys, next, err := c.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return fmt.Errorf("scan cached permissions: %w", err)
		}

		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("delete cached permissions: %w", err)
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

var _ port.PermissionCache = (*PermissionCache)(nil)

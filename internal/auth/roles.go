package auth

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spec-kit/helpdesk-service/internal/domain"
	"github.com/spec-kit/helpdesk-service/internal/repository"
)

// RoleResolver returns the current stored role of a user. A missing user
// yields pgx.ErrNoRows.
type RoleResolver interface {
	ResolveRole(ctx context.Context, userID string) (domain.Role, error)
}

// StoreRoleResolver reads roles straight from the user repository.
type StoreRoleResolver struct {
	users repository.UserRepository
}

// NewStoreRoleResolver constructs a resolver backed by users.
func NewStoreRoleResolver(users repository.UserRepository) *StoreRoleResolver {
	return &StoreRoleResolver{users: users}
}

func (r *StoreRoleResolver) ResolveRole(ctx context.Context, userID string) (domain.Role, error) {
	user, err := r.users.GetByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.Role, nil
}

// RoleCache is the key/value surface the cached resolver needs.
type RoleCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// ErrCacheMiss is returned by RoleCache implementations on a miss.
var ErrCacheMiss = errors.New("cache miss")

type redisRoleCache struct {
	client *redis.Client
}

// NewRedisRoleCache adapts a go-redis client. A nil client yields nil.
func NewRedisRoleCache(client *redis.Client) RoleCache {
	if client == nil {
		return nil
	}
	return &redisRoleCache{client: client}
}

func (c *redisRoleCache) Get(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return val, err
}

func (c *redisRoleCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// CachedRoleResolver fronts another resolver with a TTL cache and collapses
// concurrent lookups for the same user. Cache failures fall through to the
// wrapped resolver.
type CachedRoleResolver struct {
	next   RoleResolver
	cache  RoleCache
	ttl    time.Duration
	logger *zap.Logger
	group  singleflight.Group
}

// NewCachedRoleResolver wraps next. cache may be nil.
func NewCachedRoleResolver(next RoleResolver, cache RoleCache, ttl time.Duration, logger *zap.Logger) *CachedRoleResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedRoleResolver{next: next, cache: cache, ttl: ttl, logger: logger}
}

func roleCacheKey(userID string) string {
	return "helpdesk:role:" + userID
}

func (r *CachedRoleResolver) ResolveRole(ctx context.Context, userID string) (domain.Role, error) {
	key := roleCacheKey(userID)
	if r.cache != nil {
		val, err := r.cache.Get(ctx, key)
		switch {
		case err == nil:
			return domain.Role(val), nil
		case !errors.Is(err, ErrCacheMiss):
			r.logger.Warn("role cache read failed", zap.String("user_id", userID), zap.Error(err))
		}
	}

	v, err, _ := r.group.Do(key, func() (any, error) {
		role, err := r.next.ResolveRole(ctx, userID)
		if err != nil {
			return nil, err
		}
		if r.cache != nil && r.ttl > 0 {
			if err := r.cache.Set(ctx, key, string(role), r.ttl); err != nil {
				r.logger.Warn("role cache write failed", zap.String("user_id", userID), zap.Error(err))
			}
		}
		return role, nil
	})
	if err != nil {
		return "", err
	}
	return v.(domain.Role), nil
}

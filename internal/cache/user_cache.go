package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"inquisitiveGrimalkin/models"
)

const keySearch = "users:search:"

// UserCache caches search results in Redis as JSON.
type UserCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewUserCache returns a new UserCache.
func NewUserCache(rdb *redis.Client, ttl time.Duration) *UserCache {
	return &UserCache{rdb: rdb, ttl: ttl}
}

// NewRedis connects to addr and pings it.
func NewRedis(ctx context.Context, addr string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
		PoolSize:     10,
	})
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return rdb, nil
}

// GetUser returns the cached user, or nil on a miss.
func (c *UserCache) GetUser(ctx context.Context, username string) (*models.User, error) {
	b, err := c.rdb.Get(ctx, key(username)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var u models.User
	if err := json.Unmarshal(b, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// SetUser stores the public view of u.
func (c *UserCache) SetUser(ctx context.Context, u *models.User) error {
	b, err := json.Marshal(u.Public())
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, key(u.Username), b, c.ttl).Err()
}

// Invalidate drops the entry for username.
func (c *UserCache) Invalidate(ctx context.Context, username string) error {
	return c.rdb.Del(ctx, key(username)).Err()
}

// key uses the username verbatim: usernames are case-sensitive in storage.
func key(username string) string {
	return keySearch + username
}

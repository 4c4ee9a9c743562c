package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"inquisitiveGrimalkin/models"
)

func newTestCache(t *testing.T, ttl time.Duration) (*UserCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := NewRedis(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return NewUserCache(rdb, ttl), mr
}

func TestKey_IsCaseSensitive(t *testing.T) {
	if key("Alice") != "users:search:Alice" {
		t.Fatalf("key = %q", key("Alice"))
	}
	if key("Alice") == key("alice") {
		t.Fatalf("distinct usernames must not share a key")
	}
}

func TestSetGet_RoundTripWithoutSecrets(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	u := &models.User{ID: 4, Username: "alice", Email: "a@x.io", FirstName: "Alice", Rank: models.RankModerator, Password: "pw", PasswordHash: "hash"}
	if err := c.SetUser(ctx, u); err != nil {
		t.Fatalf("set: %v", err)
	}

	raw, err := mr.Get("users:search:alice")
	if err != nil {
		t.Fatalf("raw get: %v", err)
	}
	if strings.Contains(raw, "pw") || strings.Contains(raw, "hash") {
		t.Fatalf("stored JSON leaks secrets: %s", raw)
	}
	if ttl := mr.TTL("users:search:alice"); ttl != time.Minute {
		t.Fatalf("ttl = %v", ttl)
	}

	got, err := c.GetUser(ctx, "alice")
	if err != nil || got == nil {
		t.Fatalf("get: %+v err=%v", got, err)
	}
	if got.Username != "alice" || got.Email != "a@x.io" || got.Rank != models.RankModerator || got.PasswordHash != "" {
		t.Fatalf("unexpected cached user: %+v", got)
	}
}

func TestGetUser_MissAndExpiry(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	if got, err := c.GetUser(ctx, "nobody"); err != nil || got != nil {
		t.Fatalf("miss: %+v err=%v", got, err)
	}

	if err := c.SetUser(ctx, &models.User{Username: "bob"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	mr.FastForward(2 * time.Minute)
	if got, err := c.GetUser(ctx, "bob"); err != nil || got != nil {
		t.Fatalf("expected expiry, got %+v err=%v", got, err)
	}
}

func TestInvalidate(t *testing.T) {
	c, mr := newTestCache(t, time.Minute)
	ctx := context.Background()

	if err := c.SetUser(ctx, &models.User{Username: "carol"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := c.Invalidate(ctx, "carol"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if mr.Exists("users:search:carol") {
		t.Fatalf("entry still present after invalidate")
	}
	if err := c.Invalidate(ctx, "carol"); err != nil {
		t.Fatalf("invalidating a missing entry: %v", err)
	}
}

func TestUsersDifferingInCase_DoNotShareEntries(t *testing.T) {
	c, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	if err := c.SetUser(ctx, &models.User{Username: "Alice", Email: "big@x.io"}); err != nil {
		t.Fatalf("set: %v", err)
	}
	if got, err := c.GetUser(ctx, "alice"); err != nil || got != nil {
		t.Fatalf("lower-case lookup hit the upper-case entry: %+v err=%v", got, err)
	}
}

func TestNewRedis_UnreachableFails(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := NewRedis(ctx, "127.0.0.1:1"); err == nil {
		t.Fatalf("expected ping failure for closed port")
	}
}

func TestGetUser_SurfacesConnectionErrors(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond, MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })
	c := NewUserCache(rdb, time.Minute)

	u, err := c.GetUser(context.Background(), "alice")
	if err == nil || u != nil {
		t.Fatalf("expected an error and no user, got %+v err=%v", u, err)
	}
}

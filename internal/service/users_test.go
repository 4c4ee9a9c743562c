package service

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sirupsen/logrus"

	"inquisitiveGrimalkin/internal/cache"
	"inquisitiveGrimalkin/internal/testutil"
	"inquisitiveGrimalkin/models"
	"inquisitiveGrimalkin/repository"
)

type memCache struct {
	mu      sync.Mutex
	entries map[string]models.User
	gets    int
	failGet bool
}

func newMemCache() *memCache { return &memCache{entries: map[string]models.User{}} }

func (c *memCache) GetUser(_ context.Context, username string) (*models.User, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	if c.failGet {
		return nil, errors.New("redis down")
	}
	u, ok := c.entries[username]
	if !ok {
		return nil, nil
	}
	return &u, nil
}

func (c *memCache) SetUser(_ context.Context, u *models.User) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[u.Username] = *u
	return nil
}

func (c *memCache) Invalidate(_ context.Context, username string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, username)
	return nil
}

func newTestService(t *testing.T, name string, cache SearchCache) *UsersService {
	t.Helper()
	d := testutil.OpenInMemoryDB(t, name)
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewUsersService(repository.NewUserRepository(d), repository.NewFollowRepository(d), cache, log)
}

func register(t *testing.T, s *UsersService, username string) *models.User {
	t.Helper()
	u, err := s.Register(context.Background(), models.User{Username: username, Email: username + "@example.com", Password: "hunter22"})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return u
}

func TestRegister_ValidatesHashesAndForcesNormie(t *testing.T) {
	s := newTestService(t, "svcregister", nil)
	ctx := context.Background()

	u, err := s.Register(ctx, models.User{Username: " alice ", Email: "alice@example.com", Password: "hunter22", Rank: models.RankAdmin})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if u.Username != "alice" || u.Rank != models.RankNormie || u.PasswordHash == "" || u.PasswordHash == "hunter22" {
		t.Fatalf("unexpected user: %+v", u)
	}

	if _, err := s.Register(ctx, models.User{Username: "alice", Email: "other@example.com", Password: "hunter22"}); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}

	bad := []models.User{
		{Username: "al", Email: "a@example.com", Password: "hunter22"},
		{Username: "bad name", Email: "a@example.com", Password: "hunter22"},
		{Username: "bobby", Email: "not-an-email", Password: "hunter22"},
		{Username: "bobby", Email: "b@example.com", Password: "123"},
		{Username: "bobby", Email: "b@example.com", Password: "hunter22", Rank: models.Rank(8)},
	}
	for i, u := range bad {
		if _, err := s.Register(ctx, u); !errors.Is(err, ErrInvalidUser) {
			t.Fatalf("case %d: expected ErrInvalidUser, got %v", i, err)
		}
	}
}

func TestLogin(t *testing.T) {
	s := newTestService(t, "svclogin", nil)
	register(t, s, "alice")
	ctx := context.Background()

	if u, err := s.Login(ctx, "alice", "hunter22"); err != nil || u.Username != "alice" {
		t.Fatalf("login: %v %+v", err, u)
	}
	if _, err := s.Login(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: %v", err)
	}
	if _, err := s.Login(ctx, "ghost", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown user: %v", err)
	}
}

func TestFollowAndUnfollow(t *testing.T) {
	s := newTestService(t, "svcfollow", nil)
	register(t, s, "alice")
	register(t, s, "bob")
	ctx := context.Background()

	if err := s.Follow(ctx, "bob", "alice"); err != nil {
		t.Fatalf("follow: %v", err)
	}
	if err := s.Follow(ctx, "bob", "bob"); !errors.Is(err, ErrSelfFollow) {
		t.Fatalf("self follow: %v", err)
	}
	if err := s.Follow(ctx, "bob", "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown followed: %v", err)
	}
	followers, err := s.Followers(ctx, "alice")
	if err != nil || len(followers) != 1 || followers[0] != "bob" {
		t.Fatalf("followers = %v err=%v", followers, err)
	}
	if err := s.Unfollow(ctx, "bob", "alice"); err != nil {
		t.Fatalf("unfollow: %v", err)
	}
	followers, _ = s.Followers(ctx, "alice")
	if len(followers) != 0 {
		t.Fatalf("followers after unfollow = %v", followers)
	}
	if _, err := s.Followers(ctx, "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("followers of unknown user: %v", err)
	}
}

func TestSearch_UsesCacheAndHidesSecrets(t *testing.T) {
	cache := newMemCache()
	s := newTestService(t, "svcsearch", cache)
	register(t, s, "carol")
	ctx := context.Background()

	u, err := s.Search(ctx, "carol")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if u.Username != "carol" || u.PasswordHash != "" || u.Password != "" {
		t.Fatalf("unexpected search result: %+v", u)
	}
	if _, ok := cache.entries["carol"]; !ok {
		t.Fatalf("result was not cached")
	}

	// Served from the cache now.
	cache.entries["carol"] = models.User{Username: "carol", FirstName: "cached"}
	u, err = s.Search(ctx, "carol")
	if err != nil || u.FirstName != "cached" {
		t.Fatalf("expected cached value, got %+v err=%v", u, err)
	}

	// Rank changes invalidate.
	if err := s.SetRank(ctx, "carol", models.RankModerator); err != nil {
		t.Fatalf("set rank: %v", err)
	}
	u, err = s.Search(ctx, "carol")
	if err != nil || u.Rank != models.RankModerator || u.FirstName == "cached" {
		t.Fatalf("expected fresh value after rank change, got %+v err=%v", u, err)
	}

	if _, err := s.Search(ctx, "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestSearch_CacheFailureFallsBackToDatabase(t *testing.T) {
	cache := newMemCache()
	cache.failGet = true
	s := newTestService(t, "svcsearchfail", cache)
	register(t, s, "dave")

	u, err := s.Search(context.Background(), "dave")
	if err != nil || u.Username != "dave" {
		t.Fatalf("search with broken cache: %+v err=%v", u, err)
	}
}

func TestSetRank_RejectsUnknownRankAndUser(t *testing.T) {
	s := newTestService(t, "svcrank", nil)
	register(t, s, "erin")
	ctx := context.Background()
	if err := s.SetRank(ctx, "erin", models.Rank(4)); !errors.Is(err, ErrInvalidUser) {
		t.Fatalf("invalid rank: %v", err)
	}
	if err := s.SetRank(ctx, "ghost", models.RankAdmin); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("unknown user: %v", err)
	}
}

func newRedisCache(t *testing.T) *cache.UserCache {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := cache.NewRedis(context.Background(), mr.Addr())
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return cache.NewUserCache(rdb, time.Minute)
}

func TestSearch_RedisCacheKeepsCaseDistinctUsersApart(t *testing.T) {
	s := newTestService(t, "svcsearchcase", newRedisCache(t))
	ctx := context.Background()
	for _, u := range []models.User{
		{Username: "Alice", Email: "big@x.io", Password: "hunter22"},
		{Username: "alice", Email: "small@x.io", Password: "hunter22"},
	} {
		if _, err := s.Register(ctx, u); err != nil {
			t.Fatalf("register %s: %v", u.Username, err)
		}
	}

	for i := 0; i < 2; i++ {
		big, err := s.Search(ctx, "Alice")
		if err != nil || big.Email != "big@x.io" {
			t.Fatalf("round %d: Search(Alice) = %+v err=%v", i, big, err)
		}
		small, err := s.Search(ctx, "alice")
		if err != nil || small.Username != "alice" || small.Email != "small@x.io" {
			t.Fatalf("round %d: Search(alice) = %+v err=%v", i, small, err)
		}
	}
}

func TestSearch_StaysCaseSensitiveOnceCached(t *testing.T) {
	s := newTestService(t, "svcsearchwarm", newRedisCache(t))
	ctx := context.Background()
	if _, err := s.Register(ctx, models.User{Username: "Bob", Email: "bob@x.io", Password: "hunter22"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	if _, err := s.Search(ctx, "bob"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("cold Search(bob): %v", err)
	}
	if u, err := s.Search(ctx, "Bob"); err != nil || u.Username != "Bob" {
		t.Fatalf("Search(Bob) = %+v err=%v", u, err)
	}
	if _, err := s.Search(ctx, "bob"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("warm Search(bob): %v", err)
	}
}

func TestSearch_SharedLookupIgnoresCallerCancellation(t *testing.T) {
	s := newTestService(t, "svcsearchcancel", nil)
	register(t, s, "frank")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	u, err := s.Search(ctx, "frank")
	if err != nil || u.Username != "frank" {
		t.Fatalf("search with cancelled caller: %+v err=%v", u, err)
	}
}

func TestAuthorize_UsesStoredRank(t *testing.T) {
	s := newTestService(t, "svcauthorize", nil)
	register(t, s, "gina")
	ctx := context.Background()

	if err := s.Authorize(ctx, "gina", models.RankAdmin); !errors.Is(err, ErrForbidden) {
		t.Fatalf("normie authorized as admin: %v", err)
	}
	if err := s.SetRank(ctx, "gina", models.RankAdmin); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if err := s.Authorize(ctx, "gina", models.RankAdmin); err != nil {
		t.Fatalf("admin rejected: %v", err)
	}
	if err := s.SetRank(ctx, "gina", models.RankNormie); err != nil {
		t.Fatalf("demote: %v", err)
	}
	if err := s.Authorize(ctx, "gina", models.RankAdmin); !errors.Is(err, ErrForbidden) {
		t.Fatalf("demoted admin still authorized: %v", err)
	}
	if err := s.Authorize(ctx, "ghost", models.RankNormie); !errors.Is(err, ErrForbidden) {
		t.Fatalf("unknown user authorized: %v", err)
	}
}

func TestFollowingAndCounts(t *testing.T) {
	s := newTestService(t, "svccounts", nil)
	for _, n := range []string{"hank", "iris", "jack"} {
		register(t, s, n)
	}
	ctx := context.Background()
	for _, f := range []string{"iris", "jack"} {
		if err := s.Follow(ctx, "hank", f); err != nil {
			t.Fatalf("hank follows %s: %v", f, err)
		}
	}
	if err := s.Follow(ctx, "iris", "hank"); err != nil {
		t.Fatalf("iris follows hank: %v", err)
	}

	following, err := s.Following(ctx, "hank")
	if err != nil || len(following) != 2 || following[0] != "iris" || following[1] != "jack" {
		t.Fatalf("following = %v err=%v", following, err)
	}
	counts, err := s.Counts(ctx, "hank")
	if err != nil || counts != (FollowCounts{Followers: 1, Following: 2}) {
		t.Fatalf("counts = %+v err=%v", counts, err)
	}
	if _, err := s.Following(ctx, "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("following of unknown user: %v", err)
	}
	if _, err := s.Counts(ctx, "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("counts of unknown user: %v", err)
	}
}

func TestDelete_SelfOrAdmin(t *testing.T) {
	c := newMemCache()
	s := newTestService(t, "svcdelete", c)
	for _, n := range []string{"kate", "liam", "mona"} {
		register(t, s, n)
	}
	ctx := context.Background()
	if err := s.Follow(ctx, "liam", "kate"); err != nil {
		t.Fatalf("follow: %v", err)
	}
	if _, err := s.Search(ctx, "kate"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	if err := s.Delete(ctx, "liam", "kate"); !errors.Is(err, ErrForbidden) {
		t.Fatalf("normie deleted someone else: %v", err)
	}
	if err := s.Delete(ctx, "kate", "kate"); err != nil {
		t.Fatalf("self delete: %v", err)
	}
	if _, ok := c.entries["kate"]; ok {
		t.Fatalf("cache entry survived delete")
	}
	if _, err := s.Search(ctx, "kate"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("deleted user still found: %v", err)
	}
	if counts, err := s.Counts(ctx, "liam"); err != nil || counts.Following != 0 {
		t.Fatalf("follow edge survived delete: %+v err=%v", counts, err)
	}

	if err := s.SetRank(ctx, "mona", models.RankAdmin); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if err := s.Delete(ctx, "mona", "liam"); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
	if err := s.Delete(ctx, "mona", "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("deleting unknown user: %v", err)
	}
}

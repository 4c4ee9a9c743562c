// Package service holds the users API business rules: registration, login,
// follow edges and cached lookups.
package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/singleflight"

	"inquisitiveGrimalkin/models"
	"inquisitiveGrimalkin/repository"
)

// lookupTimeout bounds a shared search query, which outlives any one caller.
const lookupTimeout = 5 * time.Second

var (
	ErrForbidden          = errors.New("insufficient rank")
	ErrInvalidUser        = errors.New("invalid user")
	ErrUsernameTaken      = errors.New("username already taken")
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrUserNotFound       = errors.New("user not found")
	ErrSelfFollow         = errors.New("users cannot follow themselves")
)

// UserStore is the subset of the user repository the service needs.
type UserStore interface {
	Create(ctx context.Context, u *models.User) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateRankByUsername(ctx context.Context, username string, rank models.Rank) error
	Delete(ctx context.Context, id int64) error
}

// FollowStore is the subset of the follow repository the service needs.
type FollowStore interface {
	Follow(ctx context.Context, follower, followed string) error
	Unfollow(ctx context.Context, follower, followed string) error
	Followers(ctx context.Context, username string) ([]string, error)
	Following(ctx context.Context, username string) ([]string, error)
	Counts(ctx context.Context, username string) (followers, following int, err error)
}

// FollowCounts is how many users follow an account and how many it follows.
type FollowCounts struct {
	Followers int `json:"followers"`
	Following int `json:"following"`
}

// SearchCache caches lookups by username. A nil user from GetUser is a miss.
type SearchCache interface {
	GetUser(ctx context.Context, username string) (*models.User, error)
	SetUser(ctx context.Context, u *models.User) error
	Invalidate(ctx context.Context, username string) error
}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

type registration struct {
	Username  string `validate:"required,min=3,max=32,username"`
	Email     string `validate:"required,email"`
	Password  string `validate:"required,min=6,max=72"`
	FirstName string `validate:"max=64"`
	LastName  string `validate:"max=64"`
	Rank      int    `validate:"rank"`
}

// UsersService implements the users API on top of the stores.
type UsersService struct {
	users    UserStore
	follows  FollowStore
	cache    SearchCache
	log      logrus.FieldLogger
	validate *validator.Validate
	lookups  singleflight.Group
}

// NewUsersService wires the stores together. cache may be nil.
func NewUsersService(users UserStore, follows FollowStore, cache SearchCache, log logrus.FieldLogger) *UsersService {
	v := validator.New()
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("rank", func(fl validator.FieldLevel) bool {
		return models.Rank(fl.Field().Int()).Valid()
	})
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &UsersService{users: users, follows: follows, cache: cache, log: log, validate: v}
}

// Register validates u, hashes its password and stores it. New accounts are
// always NORMIE whatever rank was requested.
func (s *UsersService) Register(ctx context.Context, u models.User) (*models.User, error) {
	u.Username = strings.TrimSpace(u.Username)
	u.Email = strings.TrimSpace(u.Email)
	if err := s.validate.Struct(registration{
		Username:  u.Username,
		Email:     u.Email,
		Password:  u.Password,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Rank:      int(u.Rank),
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUser, err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(u.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u.PasswordHash = string(hash)
	u.Password = ""
	u.Rank = models.RankNormie

	created, err := s.users.Create(ctx, &u)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateUsername) {
			return nil, ErrUsernameTaken
		}
		return nil, err
	}
	s.log.WithFields(logrus.Fields{"username": created.Username}).Info("user registered")
	return created, nil
}

// Login checks the credentials and returns the account.
func (s *UsersService) Login(ctx context.Context, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return u, nil
}

// Follow makes follower follow followed. Both must exist.
func (s *UsersService) Follow(ctx context.Context, follower, followed string) error {
	if err := s.checkEdge(ctx, follower, followed); err != nil {
		return err
	}
	if err := s.follows.Follow(ctx, follower, followed); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"follower": follower, "followed": followed}).Debug("follow")
	return nil
}

// Unfollow removes the edge; unfollowing someone not followed is fine.
func (s *UsersService) Unfollow(ctx context.Context, follower, followed string) error {
	if err := s.checkEdge(ctx, follower, followed); err != nil {
		return err
	}
	if err := s.follows.Unfollow(ctx, follower, followed); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"follower": follower, "followed": followed}).Debug("unfollow")
	return nil
}

func (s *UsersService) checkEdge(ctx context.Context, follower, followed string) error {
	if follower == followed {
		return ErrSelfFollow
	}
	for _, name := range []string{follower, followed} {
		if _, err := s.mustGet(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// Followers lists who follows username.
func (s *UsersService) Followers(ctx context.Context, username string) ([]string, error) {
	if _, err := s.mustGet(ctx, username); err != nil {
		return nil, err
	}
	return s.follows.Followers(ctx, username)
}

// Following lists whom username follows.
func (s *UsersService) Following(ctx context.Context, username string) ([]string, error) {
	if _, err := s.mustGet(ctx, username); err != nil {
		return nil, err
	}
	return s.follows.Following(ctx, username)
}

// Counts returns the follower and following totals of username.
func (s *UsersService) Counts(ctx context.Context, username string) (FollowCounts, error) {
	if _, err := s.mustGet(ctx, username); err != nil {
		return FollowCounts{}, err
	}
	followers, following, err := s.follows.Counts(ctx, username)
	if err != nil {
		return FollowCounts{}, err
	}
	return FollowCounts{Followers: followers, Following: following}, nil
}

// Authorize checks the stored rank of username, not the one baked into its
// token, so a demotion takes effect immediately.
func (s *UsersService) Authorize(ctx context.Context, username string, min models.Rank) error {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return err
	}
	if u == nil || u.Rank < min {
		return ErrForbidden
	}
	return nil
}

// Delete removes username and its follow edges. Callers other than the
// account itself need ADMIN.
func (s *UsersService) Delete(ctx context.Context, actor, username string) error {
	if actor != username {
		if err := s.Authorize(ctx, actor, models.RankAdmin); err != nil {
			return err
		}
	}
	u, err := s.mustGet(ctx, username)
	if err != nil {
		return err
	}
	if err := s.users.Delete(ctx, u.ID); err != nil {
		return err
	}
	s.invalidate(ctx, username)
	s.log.WithFields(logrus.Fields{"username": username, "actor": actor}).Info("user deleted")
	return nil
}

func (s *UsersService) mustGet(ctx context.Context, username string) (*models.User, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
	}
	return u, nil
}

func (s *UsersService) invalidate(ctx context.Context, username string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, username); err != nil {
		s.log.WithError(err).Warn("search cache invalidation failed")
	}
}

// Search returns the public view of the user named username. The cache is
// consulted first; cache failures fall back to the database. Concurrent
// lookups of the same name share one database query, which runs detached
// from any single caller's cancellation.
func (s *UsersService) Search(ctx context.Context, username string) (*models.User, error) {
	if s.cache != nil {
		cached, err := s.cache.GetUser(ctx, username)
		if err != nil {
			s.log.WithError(err).Warn("search cache read failed")
		} else if cached != nil {
			return cached, nil
		}
	}

	v, err, _ := s.lookups.Do(username, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()

		u, err := s.users.GetByUsername(ctx, username)
		if err != nil {
			return nil, err
		}
		if u == nil {
			return nil, fmt.Errorf("%w: %s", ErrUserNotFound, username)
		}
		pub := u.Public()
		if s.cache != nil {
			if err := s.cache.SetUser(ctx, &pub); err != nil {
				s.log.WithError(err).Warn("search cache write failed")
			}
		}
		return &pub, nil
	})
	if err != nil {
		return nil, err
	}
	u := *v.(*models.User)
	return &u, nil
}

// SetRank changes a user's rank and drops its cached search entry.
func (s *UsersService) SetRank(ctx context.Context, username string, rank models.Rank) error {
	if !rank.Valid() {
		return fmt.Errorf("%w: rank %d", ErrInvalidUser, int(rank))
	}
	if _, err := s.mustGet(ctx, username); err != nil {
		return err
	}
	if err := s.users.UpdateRankByUsername(ctx, username, rank); err != nil {
		return err
	}
	s.invalidate(ctx, username)
	s.log.WithFields(logrus.Fields{"username": username, "rank": rank.String()}).Info("rank changed")
	return nil
}

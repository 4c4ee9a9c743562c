package repository

import (
	"context"

	"inquisitiveGrimalkin/models"
)

// UserRepositoryI defines operations on User entities.
type UserRepositoryI interface {
	Create(ctx context.Context, u *models.User) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	UpdateRankByUsername(ctx context.Context, username string, rank models.Rank) error
	Delete(ctx context.Context, id int64) error
}

// FollowRepositoryI defines operations on follow edges between usernames.
type FollowRepositoryI interface {
	Follow(ctx context.Context, follower, followed string) error
	Unfollow(ctx context.Context, follower, followed string) error
	Followers(ctx context.Context, username string) ([]string, error)
	Following(ctx context.Context, username string) ([]string, error)
	Counts(ctx context.Context, username string) (followers, following int, err error)
}

var (
	_ UserRepositoryI   = (*UserRepository)(nil)
	_ FollowRepositoryI = (*FollowRepository)(nil)
)

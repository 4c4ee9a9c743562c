package repository

import (
	"context"
	"database/sql"
	"time"
)

// FollowRepository stores who follows whom, keyed by username.
type FollowRepository struct {
	db *sql.DB
}

func NewFollowRepository(db *sql.DB) *FollowRepository {
	return &FollowRepository{db: db}
}

// Follow records that follower follows followed. Repeating it is a no-op.
func (r *FollowRepository) Follow(ctx context.Context, follower, followed string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO follows (follower, followed) VALUES (?, ?)`, follower, followed)
	return err
}

// Unfollow removes the edge if present.
func (r *FollowRepository) Unfollow(ctx context.Context, follower, followed string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `DELETE FROM follows WHERE follower = ? AND followed = ?`, follower, followed)
	return err
}

// Followers lists who follows username, oldest first.
func (r *FollowRepository) Followers(ctx context.Context, username string) ([]string, error) {
	return r.names(ctx, `SELECT follower FROM follows WHERE followed = ? ORDER BY created_at, follower`, username)
}

// Following lists whom username follows, oldest first.
func (r *FollowRepository) Following(ctx context.Context, username string) ([]string, error) {
	return r.names(ctx, `SELECT followed FROM follows WHERE follower = ? ORDER BY created_at, followed`, username)
}

// Counts returns how many users follow username and how many it follows.
func (r *FollowRepository) Counts(ctx context.Context, username string) (followers, following int, err error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	err = r.db.QueryRowContext(ctx, `SELECT
        (SELECT COUNT(*) FROM follows WHERE followed = ?),
        (SELECT COUNT(*) FROM follows WHERE follower = ?)`, username, username).Scan(&followers, &following)
	return followers, following, err
}

func (r *FollowRepository) names(ctx context.Context, query, username string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

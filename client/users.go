package client

import (
	"context"
	"net/http"

	"inquisitiveGrimalkin/models"
)

// Follow makes the session user follow target. The result is the
// server's confirmation text.
func (s *UsersService) Follow(target string) *Call[string] {
	return s.postNoBody(s.endpoint(target, "follow"))
}

// Unfollow is the counterpart of Follow.
func (s *UsersService) Unfollow(target string) *Call[string] {
	return s.postNoBody(s.endpoint(target, "unfollow"))
}

// SearchForUser looks a user up by username. A missing user surfaces as
// an *HTTPError; see IsNotFound.
func (s *UsersService) SearchForUser(username string) *Call[models.User] {
	target := s.endpoint("search", username)
	return newCall(func(ctx context.Context) (models.User, error) {
		req, err := s.newRequest(ctx, http.MethodGet, target, nil)
		if err != nil {
			return models.User{}, err
		}
		var u models.User
		if _, err := s.doJSONRequest(req, &u); err != nil {
			return models.User{}, err
		}
		return u, nil
	})
}

// FollowCounts is how many users follow an account and how many it follows.
type FollowCounts struct {
	Followers int `json:"followers"`
	Following int `json:"following"`
}

// Followers lists the usernames following username.
func (s *UsersService) Followers(username string) *Call[[]string] {
	return getJSON[[]string](s, s.endpoint(username, "followers"))
}

// Following lists the usernames that username follows.
func (s *UsersService) Following(username string) *Call[[]string] {
	return getJSON[[]string](s, s.endpoint(username, "following"))
}

// Counts returns the follower and following totals of username.
func (s *UsersService) Counts(username string) *Call[FollowCounts] {
	return getJSON[FollowCounts](s, s.endpoint(username, "counts"))
}

// Delete removes an account. Only the account itself or an ADMIN may.
func (s *UsersService) Delete(username string) *Call[struct{}] {
	target := s.endpoint(username)
	return newCall(func(ctx context.Context) (struct{}, error) {
		req, err := s.newRequest(ctx, http.MethodDelete, target, nil)
		if err != nil {
			return struct{}{}, err
		}
		res, err := s.doRequest(req)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, res.Body.Close()
	})
}

func getJSON[T any](s *UsersService, target string) *Call[T] {
	return newCall(func(ctx context.Context) (T, error) {
		var out T
		req, err := s.newRequest(ctx, http.MethodGet, target, nil)
		if err != nil {
			return out, err
		}
		if _, err := s.doJSONRequest(req, &out); err != nil {
			var zero T
			return zero, err
		}
		return out, nil
	})
}

func (s *UsersService) postNoBody(target string) *Call[string] {
	return newCall(func(ctx context.Context) (string, error) {
		req, err := s.newRequest(ctx, http.MethodPost, target, nil)
		if err != nil {
			return "", err
		}
		return s.doStringRequest(req)
	})
}

package client

import (
	"context"
	"errors"
	"net/http"
	"strings"

	jwt "github.com/golang-jwt/jwt/v5"

	"inquisitiveGrimalkin/models"
)

// Session is what register and login hand back: the account and the
// bearer token to pass to WithToken.
type Session struct {
	User  models.User
	Token string
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Register creates an account.
func (s *UsersService) Register(user models.User) *Call[Session] {
	return s.sessionCall(s.endpoint("register"), user)
}

// Login exchanges credentials for a token.
func (s *UsersService) Login(username, password string) *Call[Session] {
	return s.sessionCall(s.endpoint("login"), credentials{Username: username, Password: password})
}

func (s *UsersService) sessionCall(target string, payload any) *Call[Session] {
	return newCall(func(ctx context.Context) (Session, error) {
		req, err := s.newRequest(ctx, http.MethodPost, target, payload)
		if err != nil {
			return Session{}, err
		}
		var u models.User
		res, err := s.doJSONRequest(req, &u)
		if err != nil {
			return Session{}, err
		}
		return Session{User: u, Token: bearerToken(res.Header.Get("Authorization"))}, nil
	})
}

// TokenInfo is the server's view of a token: whose it is and the rank it
// was issued with.
type TokenInfo struct {
	Username string      `json:"username"`
	Rank     models.Rank `json:"rank"`
}

// Validate asks the server whether token is genuine and unexpired. A
// rejected token surfaces as an *HTTPError with status 401.
func (s *UsersService) Validate(token string) *Call[TokenInfo] {
	target := s.endpoint("validate")
	return newCall(func(ctx context.Context) (TokenInfo, error) {
		req, err := s.newRequest(ctx, http.MethodPost, target, struct {
			Token string `json:"token"`
		}{token})
		if err != nil {
			return TokenInfo{}, err
		}
		var info TokenInfo
		if _, err := s.doJSONRequest(req, &info); err != nil {
			return TokenInfo{}, err
		}
		return info, nil
	})
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// CurrentUsername reads the username claim of a token without checking
// its signature; only the server holds the key.
func CurrentUsername(token string) (string, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", err
	}
	name, _ := claims["username"].(string)
	if name == "" {
		return "", errors.New("token has no username claim")
	}
	return name, nil
}

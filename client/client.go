// Package client talks to the users API: follow, unfollow and search,
// plus the register/login calls that hand out bearer tokens.
//
// Every method returns a *Call that does nothing until it is executed.
// Retries, timeouts and rate limits belong to the injected HTTPClient.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// DefaultBaseURL is where the users API listens in local development.
const DefaultBaseURL = "http://localhost:8080/users/"

// HTTPClient abstracts HTTP operations for dependency injection.
// The standard *http.Client satisfies this interface.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// UsersService issues requests against the users resource.
// It holds no mutable state and is safe for concurrent use.
type UsersService struct {
	http    HTTPClient
	baseURL string
	token   string
}

// Option configures a UsersService.
type Option func(*UsersService)

// WithBaseURL overrides DefaultBaseURL. A missing scheme defaults to http.
func WithBaseURL(base string) Option {
	return func(s *UsersService) { s.baseURL = normalizeBase(base) }
}

// WithToken sends "Authorization: Bearer <token>" on every request.
func WithToken(token string) Option {
	return func(s *UsersService) { s.token = strings.TrimSpace(token) }
}

// NewUsersService builds a service on top of httpClient (http.DefaultClient when nil).
func NewUsersService(httpClient HTTPClient, opts ...Option) *UsersService {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	s := &UsersService{http: httpClient, baseURL: DefaultBaseURL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BaseURL returns the resolved base address, always ending in "/".
func (s *UsersService) BaseURL() string {
	return s.baseURL
}

func normalizeBase(base string) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return DefaultBaseURL
	}
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base
}

// endpoint joins escaped path segments onto the base address.
func (s *UsersService) endpoint(segments ...string) string {
	escaped := make([]string, len(segments))
	for i, seg := range segments {
		escaped[i] = url.PathEscape(seg)
	}
	return s.baseURL + strings.Join(escaped, "/")
}

func (s *UsersService) newRequest(ctx context.Context, method, target string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json, text/plain")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	return req, nil
}

// doRequest sends req and returns the response only for 2xx statuses.
// Transport errors come back exactly as the HTTPClient produced them.
func (s *UsersService) doRequest(req *http.Request) (*http.Response, error) {
	res, err := s.http.Do(req)
	if err != nil {
		return nil, err
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		defer res.Body.Close()
		return nil, newHTTPError(res)
	}
	return res, nil
}

func (s *UsersService) doJSONRequest(req *http.Request, buffer any) (*http.Response, error) {
	res, err := s.doRequest(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, err
	}
	return res, json.Unmarshal(b, buffer)
}

// doStringRequest reads the body as text, or as a JSON string when the
// server labels it application/json.
func (s *UsersService) doStringRequest(req *http.Request) (string, error) {
	res, err := s.doRequest(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()

	b, err := io.ReadAll(res.Body)
	if err != nil {
		return "", err
	}
	if isJSON(res.Header.Get("Content-Type")) {
		var out string
		if err := json.Unmarshal(b, &out); err != nil {
			return "", err
		}
		return out, nil
	}
	return string(b), nil
}

func isJSON(contentType string) bool {
	mediaType, _, _ := strings.Cut(contentType, ";")
	return strings.EqualFold(strings.TrimSpace(mediaType), "application/json")
}

package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"inquisitiveGrimalkin/internal/auth"
	"inquisitiveGrimalkin/internal/service"
	"inquisitiveGrimalkin/models"
)

const maxBodyBytes = 1 << 20

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type rankRequest struct {
	Rank models.Rank `json:"rank"`
}

type validateRequest struct {
	Token string `json:"token"`
}

type tokenInfo struct {
	Username string      `json:"username"`
	Rank     models.Rank `json:"rank"`
}

func (a *API) Register() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var u models.User
		if err := decodeBody(w, r, &u); err != nil {
			http.Error(w, fmt.Sprintf("failed to parse the request body to user object %s", err), http.StatusBadRequest)
			return
		}
		created, err := a.users.Register(r.Context(), u)
		if err != nil {
			a.writeError(w, r, "failed to create user", err)
			return
		}
		a.writeSession(w, r, http.StatusCreated, created)
	}
}

func (a *API) Login() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := decodeBody(w, r, &req); err != nil {
			http.Error(w, fmt.Sprintf("failed to parse the request body %s", err), http.StatusBadRequest)
			return
		}
		u, err := a.users.Login(r.Context(), req.Username, req.Password)
		if err != nil {
			a.writeError(w, r, "failed to log in", err)
			return
		}
		a.writeSession(w, r, http.StatusOK, u)
	}
}

// Validate reports whose token it is. The token comes from the JSON body or,
// when the body has none, from the Authorization header.
func (a *API) Validate() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req validateRequest
		if r.ContentLength != 0 {
			if err := decodeBody(w, r, &req); err != nil {
				http.Error(w, fmt.Sprintf("failed to parse the request body %s", err), http.StatusBadRequest)
				return
			}
		}
		var (
			p   *auth.Principal
			err error
		)
		if req.Token != "" {
			p, err = a.issuer.Parse(req.Token)
		} else {
			p, err = a.issuer.ParseHeader(r.Header.Get("Authorization"))
		}
		if err != nil {
			http.Error(w, "invalid token "+err.Error(), http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, tokenInfo{Username: p.Username, Rank: p.Rank})
	}
}

func (a *API) Follow() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		followed := chi.URLParam(r, "username")
		p, _ := auth.FromContext(r.Context())
		if err := a.users.Follow(r.Context(), p.Username, followed); err != nil {
			a.writeError(w, r, "failed to follow user "+followed, err)
			return
		}
		writeText(w, http.StatusCreated, "followed "+followed)
	}
}

func (a *API) Unfollow() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		unfollowed := chi.URLParam(r, "username")
		p, _ := auth.FromContext(r.Context())
		if err := a.users.Unfollow(r.Context(), p.Username, unfollowed); err != nil {
			a.writeError(w, r, "failed to unfollow user "+unfollowed, err)
			return
		}
		writeText(w, http.StatusCreated, "unfollowed "+unfollowed)
	}
}

func (a *API) SearchForUsername() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := a.users.Search(r.Context(), chi.URLParam(r, "username"))
		if err != nil {
			a.writeError(w, r, "failed to find user", err)
			return
		}
		writeJSON(w, http.StatusOK, u)
	}
}

func (a *API) Followers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names, err := a.users.Followers(r.Context(), chi.URLParam(r, "username"))
		if err != nil {
			a.writeError(w, r, "failed to list followers", err)
			return
		}
		writeJSON(w, http.StatusOK, names)
	}
}

func (a *API) Following() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		names, err := a.users.Following(r.Context(), chi.URLParam(r, "username"))
		if err != nil {
			a.writeError(w, r, "failed to list following", err)
			return
		}
		writeJSON(w, http.StatusOK, names)
	}
}

func (a *API) Counts() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := a.users.Counts(r.Context(), chi.URLParam(r, "username"))
		if err != nil {
			a.writeError(w, r, "failed to count follows", err)
			return
		}
		writeJSON(w, http.StatusOK, counts)
	}
}

func (a *API) Delete() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := auth.FromContext(r.Context())
		username := chi.URLParam(r, "username")
		if err := a.users.Delete(r.Context(), p.Username, username); err != nil {
			a.writeError(w, r, "failed to delete user "+username, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (a *API) SetRank() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := auth.FromContext(r.Context())
		if err := a.users.Authorize(r.Context(), p.Username, models.RankAdmin); err != nil {
			a.writeError(w, r, "only ADMIN can change ranks", err)
			return
		}
		var req rankRequest
		if err := decodeBody(w, r, &req); err != nil {
			http.Error(w, fmt.Sprintf("failed to parse the request body %s", err), http.StatusBadRequest)
			return
		}
		username := chi.URLParam(r, "username")
		if err := a.users.SetRank(r.Context(), username, req.Rank); err != nil {
			a.writeError(w, r, "failed to change rank", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (a *API) writeSession(w http.ResponseWriter, r *http.Request, status int, u *models.User) {
	token, err := a.issuer.Issue(u)
	if err != nil {
		a.writeError(w, r, "failed to sign the jwt", err)
		return
	}
	w.Header().Set("Authorization", "Bearer "+token)
	writeJSON(w, status, u.Public())
}

// writeError maps service errors to status codes and writes msg plus the
// error as plain text.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, service.ErrInvalidUser), errors.Is(err, service.ErrSelfFollow):
		status = http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, service.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, service.ErrUserNotFound):
		status = http.StatusNotFound
	case errors.Is(err, service.ErrUsernameTaken):
		status = http.StatusConflict
	}
	entry := a.log.WithFields(logrus.Fields{
		"path":       r.URL.Path,
		"status":     status,
		"request_id": middleware.GetReqID(r.Context()),
	}).WithError(err)
	if status == http.StatusInternalServerError {
		entry.Error(msg)
		http.Error(w, msg, status)
		return
	}
	entry.Info(msg)
	http.Error(w, fmt.Sprintf("%s %s", msg, err), status)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeText(w http.ResponseWriter, status int, s string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(s))
}

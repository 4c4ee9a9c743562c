// Package httpapi exposes the users service over HTTP:
//
//	POST /users/register
//	POST /users/login
//	POST /users/validate
//	GET  /users/search/{username}
//	POST /users/{username}/follow
//	POST /users/{username}/unfollow
//	GET  /users/{username}/followers
//	GET  /users/{username}/following
//	GET  /users/{username}/counts
//	PUT  /users/{username}/rank      (ADMIN only)
//	DELETE /users/{username}         (the account itself or ADMIN)
//	GET  /metrics
//
// Every /users route except register, login and validate needs a bearer
// token; the follower in follow/unfollow is the token's user. Rank checks
// use the stored rank, not the one in the token.
package httpapi

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"inquisitiveGrimalkin/internal/auth"
	"inquisitiveGrimalkin/internal/service"
)

// API bundles the handler dependencies.
type API struct {
	users    *service.UsersService
	issuer   *auth.Issuer
	log      logrus.FieldLogger
	requests *prometheus.CounterVec
	gatherer prometheus.Gatherer
}

// New builds the API and registers its metrics on reg.
func New(users *service.UsersService, issuer *auth.Issuer, log logrus.FieldLogger, reg *prometheus.Registry) (*API, error) {
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "users_api_requests_total",
		Help: "Requests served by the users API by route and status code.",
	}, []string{"route", "code"})
	if err := reg.Register(requests); err != nil {
		return nil, err
	}
	return &API{users: users, issuer: issuer, log: log, requests: requests, gatherer: reg}, nil
}

// Router returns the HTTP handler.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.countRequests)

	r.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))

	r.Route("/users", func(r chi.Router) {
		r.Use(auth.Middleware(a.issuer, a.log, "/users/register", "/users/login", "/users/validate"))
		r.Post("/register", a.Register())
		r.Post("/login", a.Login())
		r.Post("/validate", a.Validate())
		r.Get("/search/{username}", a.SearchForUsername())
		r.Post("/{username}/follow", a.Follow())
		r.Post("/{username}/unfollow", a.Unfollow())
		r.Get("/{username}/followers", a.Followers())
		r.Get("/{username}/following", a.Following())
		r.Get("/{username}/counts", a.Counts())
		r.Put("/{username}/rank", a.SetRank())
		r.Delete("/{username}", a.Delete())
	})
	return r
}

func (a *API) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		a.requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	})
}

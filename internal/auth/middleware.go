package auth

import (
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

// Middleware authenticates every request except the allowlisted paths. The
// principal from a valid bearer token is stored in the request context;
// anything else gets 401.
func Middleware(issuer *Issuer, log logrus.FieldLogger, allowUnauthenticated ...string) func(http.Handler) http.Handler {
	allow := make(map[string]struct{}, len(allowUnauthenticated))
	for _, p := range allowUnauthenticated {
		allow[strings.TrimSpace(p)] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := allow[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			p, err := issuer.ParseHeader(r.Header.Get("Authorization"))
			if err != nil {
				log.WithFields(logrus.Fields{"path": r.URL.Path}).WithError(err).Info("rejected unauthenticated request")
				http.Error(w, "auth error: "+err.Error(), http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
		})
	}
}

package testutil

import (
	"database/sql"
	"net/http"
	"testing"
	"time"

	"inquisitiveGrimalkin/internal/auth"
	"inquisitiveGrimalkin/internal/db"
	"inquisitiveGrimalkin/models"
)

// OpenInMemoryDB opens an in-memory SQLite database and applies migrations.
// The DB is closed through t.Cleanup.
func OpenInMemoryDB(t *testing.T, name string) *sql.DB {
	t.Helper()
	// Shared cache so that every pooled connection sees the same database.
	d, err := db.Open("file:" + name + "?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// IssueToken returns a signed session token for username with the given rank.
func IssueToken(t *testing.T, secret, username string, rank models.Rank) string {
	t.Helper()
	s, err := auth.NewIssuer(secret, time.Hour).Issue(&models.User{Username: username, Rank: rank})
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

// WithBearer sets the Authorization header on r and returns it.
func WithBearer(r *http.Request, token string) *http.Request {
	r.Header.Set("Authorization", "Bearer "+token)
	return r
}

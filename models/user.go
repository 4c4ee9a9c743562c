package models

import "time"

// User is the account record exchanged with the users API.
// It maps to the `users` table in SQLite; ID and PasswordHash never leave the backend.
type User struct {
	ID           int64     `db:"id" json:"-"`
	Username     string    `db:"username" json:"username"`
	Password     string    `db:"-" json:"password,omitempty"`
	Email        string    `db:"email" json:"email"`
	FirstName    string    `db:"first_name" json:"firstName"`
	LastName     string    `db:"last_name" json:"lastName"`
	Rank         Rank      `db:"rank" json:"rank"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"-"`
}

// Public returns a copy safe to send to clients: no password, no hash.
func (u User) Public() User {
	u.Password = ""
	u.PasswordHash = ""
	return u
}

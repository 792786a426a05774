package auth

import "time"

type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
}

// SessionUser is the slice of a user record a session carries: the public
// fields only, never the password hash. It is a point-in-time copy, not a
// live reference; SessionManager.Refresh replaces it after an account
// mutation.
type SessionUser struct {
	ID       string
	Username string
}

type Session struct {
	ID        string
	Token     string
	User      SessionUser
	CreatedAt time.Time
}

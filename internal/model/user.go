// Package model defines the data structures used throughout the application.
package model

import "time"

// AuthProvider identifies which identity provider an account came from.
type AuthProvider string

const (
	ProviderEmail  AuthProvider = "email"
	ProviderGitHub AuthProvider = "github"
	ProviderGoogle AuthProvider = "google"
	ProviderOpenID AuthProvider = "openid"
)

// User represents a registered user account.
//
// Identity lives with the external provider, so the primary key is the
// provider's stable user ID (e.g. "user_2abc..."), not an ID we generate.
// User rows are created and refreshed by the webhook sync path and by the
// login path — never by the repository-connection flow.
type User struct {
	ID            string       `json:"id"            db:"id"` // identity-provider user ID
	Email         string       `json:"email"         db:"email"`
	Name          string       `json:"name"          db:"name"`
	Username      string       `json:"username"      db:"username"`
	Picture       string       `json:"picture"       db:"picture"`
	Locale        string       `json:"locale"        db:"locale"`
	EmailVerified bool         `json:"emailVerified" db:"email_verified"`
	Provider      AuthProvider `json:"provider"      db:"provider"`
	CreatedAt     time.Time    `json:"createdAt"     db:"created_at"`
	UpdatedAt     time.Time    `json:"updatedAt"     db:"updated_at"`
}

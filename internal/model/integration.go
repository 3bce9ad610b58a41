package model

import "time"

// GitIntegration holds a user's stored OAuth credential for a Git provider —
// one token per user per provider. The token is encrypted at rest; this
// struct carries the plaintext only between the auth layer and the GitHub
// client, and is never serialized to JSON with the token included.
type GitIntegration struct {
	UserID      string      `json:"userId"    db:"user_id"`
	Provider    GitProvider `json:"provider"  db:"provider"`
	AccessToken string      `json:"-"         db:"access_token"`
	Login       string      `json:"login"     db:"login"` // provider-side username
	CreatedAt   time.Time   `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time   `json:"updatedAt" db:"updated_at"`
}

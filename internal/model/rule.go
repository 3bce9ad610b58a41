package model

import "time"

// Rule is a cursor rule: a stored AI-assistant configuration artifact
// attached to a connected repository. Plain CRUD — the content is opaque
// text from the server's point of view.
type Rule struct {
	ID           string    `json:"id"           db:"id"`
	RepositoryID string    `json:"repositoryId" db:"repository_id"`
	Name         string    `json:"name"         db:"name"`
	Description  string    `json:"description"  db:"description"`
	Content      string    `json:"content"      db:"content"`
	Globs        string    `json:"globs"        db:"globs"` // comma-separated file patterns the rule applies to
	AlwaysApply  bool      `json:"alwaysApply"  db:"always_apply"`
	CreatedAt    time.Time `json:"createdAt"    db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt"    db:"updated_at"`
}

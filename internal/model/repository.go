package model

import "time"

// GitProvider identifies the hosting service a repository lives on.
// Only GitHub is wired today; the column exists so GitLab support doesn't
// need a migration.
type GitProvider string

const (
	GitProviderGitHub GitProvider = "GITHUB"
	GitProviderGitLab GitProvider = "GITLAB"
)

// Repository is a remote Git repository connected to a workspace.
//
// Rows are created by the connect flow, refreshed on explicit sync (which
// also stamps LastSyncedAt), deleted on disconnect, and cascade-deleted with
// their workspace. FullName is unique per workspace — connecting the same
// repo twice is a conflict, not a second row.
type Repository struct {
	ID            string      `json:"id"            db:"id"`
	WorkspaceID   string      `json:"workspaceId"   db:"workspace_id"`
	Name          string      `json:"name"          db:"name"`
	FullName      string      `json:"fullName"      db:"full_name"` // "owner/name"
	Provider      GitProvider `json:"provider"      db:"provider"`
	URL           string      `json:"url"           db:"url"`
	DefaultBranch string      `json:"defaultBranch" db:"default_branch"`
	IsPrivate     bool        `json:"isPrivate"     db:"is_private"`
	Language      string      `json:"language"      db:"language"`
	Topics        []string    `json:"topics"        db:"topics"`
	StarsCount    int         `json:"starsCount"    db:"stars_count"`
	ForksCount    int         `json:"forksCount"    db:"forks_count"`
	LastSyncedAt  *time.Time  `json:"lastSyncedAt"  db:"last_synced_at"`
	CreatedAt     time.Time   `json:"createdAt"     db:"created_at"`
	UpdatedAt     time.Time   `json:"updatedAt"     db:"updated_at"`
}

package model

import "time"

// Workspace is the tenant container: it owns connected repositories and has
// members with roles. Every user gets one default workspace on first sign-up;
// deleting a user deletes the workspaces they own (and, via cascade, their
// members, repositories and rules).
type Workspace struct {
	ID        string    `json:"id"        db:"id"`
	OwnerID   string    `json:"ownerId"   db:"owner_id"`
	Name      string    `json:"name"      db:"name"`
	IsDefault bool      `json:"isDefault" db:"is_default"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}

// MemberRole is a workspace member's permission level.
type MemberRole string

const (
	RoleOwner  MemberRole = "OWNER"
	RoleAdmin  MemberRole = "ADMIN"
	RoleMember MemberRole = "MEMBER"
)

// WorkspaceMember links a user to a workspace with a role.
// Composite key (WorkspaceID, UserID). At creation time every workspace has
// exactly one OWNER member equal to its OwnerID.
type WorkspaceMember struct {
	WorkspaceID string     `json:"workspaceId" db:"workspace_id"`
	UserID      string     `json:"userId"      db:"user_id"`
	Role        MemberRole `json:"role"        db:"role"`
	CreatedAt   time.Time  `json:"createdAt"   db:"created_at"`
}

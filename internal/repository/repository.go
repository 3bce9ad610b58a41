// Package repository defines the storage interfaces the service layer
// programs against.
//
// There are two interfaces because there are two trust contexts. Webhook
// processing has no authenticated end-user session, so it uses AdminStore,
// which answers for any row. User-initiated requests go through ScopedStore,
// whose workspace reads are membership-gated. Keeping them as separate types
// makes the authorization boundary visible in function signatures: a service
// that holds only a ScopedStore cannot reach across tenants.
package repository

import (
	"context"

	"github.com/rulescraft/cursorrulescraft/internal/model"
)

// AdminStore is the elevated data-access surface used by the webhook-driven
// sync pipeline. Constructed once at startup and shared; stateless between
// calls.
type AdminStore interface {
	// UpsertUser creates the user row or refreshes its mutable profile
	// fields. Idempotent under repeated identical input.
	UpsertUser(ctx context.Context, user *model.User) error

	// DeleteUser removes the user row. The git integration cascades; owned
	// workspaces do not (no FK from workspace owner to user deletion order),
	// so callers clean those up first via DeleteWorkspaces.
	DeleteUser(ctx context.Context, id string) error

	ListWorkspacesByOwner(ctx context.Context, ownerID string) ([]model.Workspace, error)

	// CreateWorkspaceWithOwner inserts the workspace and its OWNER membership
	// in one transaction. A second default workspace for the same owner is
	// reported as apperror.ErrConflict (unique-index violation), which the
	// lifecycle manager treats as "already exists, skip".
	CreateWorkspaceWithOwner(ctx context.Context, ws *model.Workspace) error

	// DeleteWorkspaces batch-deletes workspaces by ID. Members, repositories
	// and rules go with them via ON DELETE CASCADE.
	DeleteWorkspaces(ctx context.Context, ids []string) error

	// MarkDeliveryProcessed records a webhook delivery ID and reports whether
	// it was seen for the first time. Redeliveries return false.
	MarkDeliveryProcessed(ctx context.Context, deliveryID string) (bool, error)
}

// ScopedStore is the caller-scoped data-access surface for authenticated API
// requests. Workspace reads require the acting user to be a member; the
// service layer layers role checks (OWNER/ADMIN) on top via GetMember.
type ScopedStore interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	UpsertUser(ctx context.Context, user *model.User) error

	ListWorkspacesForMember(ctx context.Context, userID string) ([]model.Workspace, error)
	GetWorkspaceForMember(ctx context.Context, workspaceID, userID string) (*model.Workspace, error)
	CreateWorkspaceWithOwner(ctx context.Context, ws *model.Workspace) error
	RenameWorkspace(ctx context.Context, workspaceID, name string) error
	DeleteWorkspace(ctx context.Context, workspaceID string) error

	ListMembers(ctx context.Context, workspaceID string) ([]model.WorkspaceMember, error)
	GetMember(ctx context.Context, workspaceID, userID string) (*model.WorkspaceMember, error)
	AddMember(ctx context.Context, m *model.WorkspaceMember) error
	RemoveMember(ctx context.Context, workspaceID, userID string) error
	UpdateMemberRole(ctx context.Context, workspaceID, userID string, role model.MemberRole) error

	ListRepositories(ctx context.Context, workspaceID string) ([]model.Repository, error)
	GetRepositoryByID(ctx context.Context, id string) (*model.Repository, error)
	CreateRepository(ctx context.Context, repo *model.Repository) error
	UpdateRepository(ctx context.Context, repo *model.Repository) error
	DeleteRepository(ctx context.Context, id string) error

	GetIntegration(ctx context.Context, userID string, provider model.GitProvider) (*model.GitIntegration, error)
	UpsertIntegration(ctx context.Context, ig *model.GitIntegration) error
	DeleteIntegration(ctx context.Context, userID string, provider model.GitProvider) error

	ListRules(ctx context.Context, repositoryID string) ([]model.Rule, error)
	GetRuleByID(ctx context.Context, id string) (*model.Rule, error)
	CreateRule(ctx context.Context, rule *model.Rule) error
	UpdateRule(ctx context.Context, rule *model.Rule) error
	DeleteRule(ctx context.Context, id string) error
}

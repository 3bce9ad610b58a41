package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rulescraft/cursorrulescraft/internal/apperror"
	"github.com/rulescraft/cursorrulescraft/internal/model"
	"github.com/rulescraft/cursorrulescraft/internal/repository"
)

const MaxWorkspaceNameLength = 100

// WorkspaceService is the user-facing workspace and membership CRUD.
// Role policy: rename needs OWNER or ADMIN, delete needs OWNER, member
// management needs OWNER or ADMIN, role changes need OWNER. The OWNER
// membership row itself can be neither removed nor demoted while the user
// owns the workspace.
type WorkspaceService struct {
	store  repository.ScopedStore
	logger *slog.Logger
}

// NewWorkspaceService creates a WorkspaceService.
func NewWorkspaceService(store repository.ScopedStore, logger *slog.Logger) *WorkspaceService {
	return &WorkspaceService{store: store, logger: logger}
}

// List returns the workspaces the user is a member of.
func (s *WorkspaceService) List(ctx context.Context, userID string) ([]model.Workspace, error) {
	return s.store.ListWorkspacesForMember(ctx, userID)
}

// Get returns one workspace the user is a member of.
func (s *WorkspaceService) Get(ctx context.Context, userID, workspaceID string) (*model.Workspace, error) {
	return s.store.GetWorkspaceForMember(ctx, workspaceID, userID)
}

// Create makes an additional (non-default) workspace owned by the caller.
func (s *WorkspaceService) Create(ctx context.Context, userID, name string) (*model.Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "workspace name is required")
	}
	if len(name) > MaxWorkspaceNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("workspace name must be %d characters or less", MaxWorkspaceNameLength))
	}

	ws := &model.Workspace{OwnerID: userID, Name: name}
	if err := s.store.CreateWorkspaceWithOwner(ctx, ws); err != nil {
		return nil, err
	}

	s.logger.Info("workspace created",
		slog.String("workspaceID", ws.ID),
		slog.String("ownerID", userID),
	)
	return ws, nil
}

// Rename changes a workspace's name. Requires OWNER or ADMIN.
func (s *WorkspaceService) Rename(ctx context.Context, userID, workspaceID, name string) (*model.Workspace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "workspace name is required")
	}
	if len(name) > MaxWorkspaceNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("workspace name must be %d characters or less", MaxWorkspaceNameLength))
	}

	if err := s.requireRole(ctx, workspaceID, userID, model.RoleOwner, model.RoleAdmin); err != nil {
		return nil, err
	}
	if err := s.store.RenameWorkspace(ctx, workspaceID, name); err != nil {
		return nil, err
	}
	return s.store.GetWorkspaceForMember(ctx, workspaceID, userID)
}

// Delete removes a workspace and, via cascade, everything in it. OWNER only.
func (s *WorkspaceService) Delete(ctx context.Context, userID, workspaceID string) error {
	if err := s.requireRole(ctx, workspaceID, userID, model.RoleOwner); err != nil {
		return err
	}
	if err := s.store.DeleteWorkspace(ctx, workspaceID); err != nil {
		return err
	}

	s.logger.Info("workspace deleted",
		slog.String("workspaceID", workspaceID),
		slog.String("byUserID", userID),
	)
	return nil
}

// Members lists a workspace's members; any member may look.
func (s *WorkspaceService) Members(ctx context.Context, userID, workspaceID string) ([]model.WorkspaceMember, error) {
	if _, err := s.store.GetWorkspaceForMember(ctx, workspaceID, userID); err != nil {
		return nil, err
	}
	return s.store.ListMembers(ctx, workspaceID)
}

// AddMember adds an existing user to the workspace. OWNER/ADMIN only; the
// OWNER role cannot be granted this way.
func (s *WorkspaceService) AddMember(ctx context.Context, userID, workspaceID, newUserID string, role model.MemberRole) (*model.WorkspaceMember, error) {
	if role != model.RoleAdmin && role != model.RoleMember {
		return nil, apperror.ValidationFailed("role", "role must be ADMIN or MEMBER")
	}
	if err := s.requireRole(ctx, workspaceID, userID, model.RoleOwner, model.RoleAdmin); err != nil {
		return nil, err
	}
	// The member must be a known user; a typo'd ID should 404, not insert a
	// dangling row (the FK would refuse anyway, less helpfully).
	if _, err := s.store.GetUserByID(ctx, newUserID); err != nil {
		return nil, err
	}

	m := &model.WorkspaceMember{WorkspaceID: workspaceID, UserID: newUserID, Role: role}
	if err := s.store.AddMember(ctx, m); err != nil {
		return nil, err
	}

	s.logger.Info("member added",
		slog.String("workspaceID", workspaceID),
		slog.String("memberID", newUserID),
		slog.String("role", string(role)),
	)
	return m, nil
}

// RemoveMember removes a member. OWNER/ADMIN only; the owner cannot be
// removed from their own workspace.
func (s *WorkspaceService) RemoveMember(ctx context.Context, userID, workspaceID, memberID string) error {
	ws, err := s.store.GetWorkspaceForMember(ctx, workspaceID, userID)
	if err != nil {
		return err
	}
	if memberID == ws.OwnerID {
		return apperror.Forbidden("the workspace owner cannot be removed")
	}
	if err := s.requireRole(ctx, workspaceID, userID, model.RoleOwner, model.RoleAdmin); err != nil {
		return err
	}
	return s.store.RemoveMember(ctx, workspaceID, memberID)
}

// UpdateMemberRole changes a member's role. OWNER only; the owner's own row
// stays OWNER.
func (s *WorkspaceService) UpdateMemberRole(ctx context.Context, userID, workspaceID, memberID string, role model.MemberRole) error {
	if role != model.RoleAdmin && role != model.RoleMember {
		return apperror.ValidationFailed("role", "role must be ADMIN or MEMBER")
	}
	ws, err := s.store.GetWorkspaceForMember(ctx, workspaceID, userID)
	if err != nil {
		return err
	}
	if memberID == ws.OwnerID {
		return apperror.Forbidden("the workspace owner's role cannot be changed")
	}
	if err := s.requireRole(ctx, workspaceID, userID, model.RoleOwner); err != nil {
		return err
	}
	return s.store.UpdateMemberRole(ctx, workspaceID, memberID, role)
}

// requireRole checks that userID holds one of the given roles in the
// workspace. Membership lookup failures surface as NotFound; an
// insufficient role is Forbidden.
func (s *WorkspaceService) requireRole(ctx context.Context, workspaceID, userID string, roles ...model.MemberRole) error {
	m, err := s.store.GetMember(ctx, workspaceID, userID)
	if err != nil {
		return apperror.NotFound("workspace", workspaceID)
	}
	for _, r := range roles {
		if m.Role == r {
			return nil
		}
	}
	return apperror.Forbidden("insufficient role for this operation")
}

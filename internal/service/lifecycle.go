// Package service contains the business logic layer: webhook-driven user and
// workspace lifecycle sync, and the user-facing workspace, repository,
// integration and rule operations.
//
// Dependencies are injected as interfaces. The sync services take
// repository.AdminStore (webhook processing has no end-user session); the
// user-facing services take repository.ScopedStore and an acting user ID on
// every call, so tenant scoping is impossible to forget.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rulescraft/cursorrulescraft/internal/apperror"
	"github.com/rulescraft/cursorrulescraft/internal/model"
	"github.com/rulescraft/cursorrulescraft/internal/repository"
)

// NameHint carries the profile fields the default-workspace name is derived
// from. Any of them may be empty.
type NameHint struct {
	FirstName string
	LastName  string
	Email     string
}

// LifecycleService manages workspace creation and teardown tied to the user
// lifecycle. It runs on the elevated store: its callers are webhook handlers
// acting on behalf of the identity provider, not of a signed-in user.
type LifecycleService struct {
	store  repository.AdminStore
	logger *slog.Logger
}

// NewLifecycleService creates a LifecycleService.
func NewLifecycleService(store repository.AdminStore, logger *slog.Logger) *LifecycleService {
	return &LifecycleService{store: store, logger: logger}
}

// EnsureDefaultWorkspace creates the user's default workspace and OWNER
// membership if they don't already have one.
//
// The existence check is a fast path only; the real at-most-once guarantee
// is the unique index on default workspaces per owner, so two concurrent
// deliveries of the same user.created event race down to one insert and one
// conflict, and the conflict is a logged skip.
func (s *LifecycleService) EnsureDefaultWorkspace(ctx context.Context, userID string, hint NameHint) error {
	existing, err := s.store.ListWorkspacesByOwner(ctx, userID)
	if err != nil {
		return fmt.Errorf("checking existing workspaces for %s: %w", userID, err)
	}
	if len(existing) > 0 {
		s.logger.Info("user already has workspaces, skipping default creation",
			slog.String("userID", userID),
			slog.Int("count", len(existing)),
		)
		return nil
	}

	ws := &model.Workspace{
		OwnerID:   userID,
		Name:      defaultWorkspaceName(hint),
		IsDefault: true,
	}
	if err := s.store.CreateWorkspaceWithOwner(ctx, ws); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			s.logger.Info("default workspace already exists, skipping",
				slog.String("userID", userID),
			)
			return nil
		}
		return fmt.Errorf("creating default workspace for %s: %w", userID, err)
	}

	s.logger.Info("default workspace created",
		slog.String("userID", userID),
		slog.String("workspaceID", ws.ID),
		slog.String("name", ws.Name),
	)
	return nil
}

// CleanupUserWorkspaces deletes every workspace owned by userID. Dependent
// members, repositories and rules are removed by the storage layer's
// cascades. A user owning no workspaces triggers no writes.
func (s *LifecycleService) CleanupUserWorkspaces(ctx context.Context, userID string) error {
	owned, err := s.store.ListWorkspacesByOwner(ctx, userID)
	if err != nil {
		return fmt.Errorf("listing workspaces of deleted user %s: %w", userID, err)
	}
	if len(owned) == 0 {
		s.logger.Info("deleted user owned no workspaces", slog.String("userID", userID))
		return nil
	}

	ids := make([]string, len(owned))
	for i, ws := range owned {
		ids[i] = ws.ID
	}
	if err := s.store.DeleteWorkspaces(ctx, ids); err != nil {
		return fmt.Errorf("deleting %d workspaces of user %s: %w", len(ids), userID, err)
	}

	s.logger.Info("workspaces cleaned up",
		slog.String("userID", userID),
		slog.Int("count", len(ids)),
	)
	return nil
}

// defaultWorkspaceName derives a human-readable workspace name:
// "First Last", then "{emailLocal}'s Workspace", then "My Workspace".
func defaultWorkspaceName(hint NameHint) string {
	full := strings.TrimSpace(strings.TrimSpace(hint.FirstName) + " " + strings.TrimSpace(hint.LastName))
	if full != "" {
		return full
	}
	if local, _, ok := strings.Cut(hint.Email, "@"); ok && local != "" {
		return local + "'s Workspace"
	}
	return "My Workspace"
}

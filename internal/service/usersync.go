package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rulescraft/cursorrulescraft/internal/model"
	"github.com/rulescraft/cursorrulescraft/internal/repository"
	"github.com/rulescraft/cursorrulescraft/internal/webhook"
)

// ErrEventTypeMismatch means an event reached a handler for a different
// event type. That's a dispatch bug in this codebase, not a business
// condition — it should never fire in production.
var ErrEventTypeMismatch = errors.New("service: event type mismatch")

// UserSyncService applies verified identity-provider events to local state:
// user profile rows and, through the lifecycle service, workspaces.
type UserSyncService struct {
	store     repository.AdminStore
	lifecycle *LifecycleService
	logger    *slog.Logger
}

// NewUserSyncService creates a UserSyncService.
func NewUserSyncService(store repository.AdminStore, lifecycle *LifecycleService, logger *slog.Logger) *UserSyncService {
	return &UserSyncService{store: store, lifecycle: lifecycle, logger: logger}
}

// ProcessEvent deduplicates and dispatches one verified event.
//
// The returned error is for logging only: by the time this runs, the
// delivery is authenticated, and the webhook endpoint acks 200 regardless of
// what happens here. Failing the HTTP response instead would put the
// provider into an endless redelivery loop against a deterministic failure.
func (s *UserSyncService) ProcessEvent(ctx context.Context, ev *webhook.Event) error {
	firstTime, err := s.store.MarkDeliveryProcessed(ctx, ev.DeliveryID)
	if err != nil {
		// Ledger trouble shouldn't drop the event; the handlers are
		// idempotent enough to survive an occasional duplicate.
		s.logger.Warn("delivery ledger unavailable, processing anyway",
			slog.String("deliveryID", ev.DeliveryID),
			slog.String("error", err.Error()),
		)
	} else if !firstTime {
		s.logger.Info("duplicate delivery, skipping",
			slog.String("deliveryID", ev.DeliveryID),
			slog.String("type", string(ev.Type)),
		)
		return nil
	}

	switch ev.Type {
	case webhook.EventUserCreated:
		return s.HandleUserCreated(ctx, ev)
	case webhook.EventUserUpdated:
		return s.HandleUserUpdated(ctx, ev)
	case webhook.EventUserDeleted:
		return s.HandleUserDeleted(ctx, ev)
	default:
		s.logger.Info("ignoring unhandled event type",
			slog.String("deliveryID", ev.DeliveryID),
			slog.String("type", string(ev.Type)),
		)
		return nil
	}
}

// HandleUserCreated upserts the new user and provisions their default
// workspace.
//
// A payload without any email address is logged and dropped without error:
// the account exists upstream either way, and the next user.updated event
// carries a fresh snapshot.
func (s *UserSyncService) HandleUserCreated(ctx context.Context, ev *webhook.Event) error {
	if ev.Type != webhook.EventUserCreated {
		return fmt.Errorf("%w: got %s, want %s", ErrEventTypeMismatch, ev.Type, webhook.EventUserCreated)
	}

	email, ok := ev.User.PrimaryEmail()
	if !ok {
		s.logger.Warn("user.created event has no email address, skipping",
			slog.String("userID", ev.User.ID),
		)
		return nil
	}

	user := userFromEvent(ev.User, email)
	if err := s.store.UpsertUser(ctx, user); err != nil {
		return fmt.Errorf("syncing created user %s: %w", user.ID, err)
	}
	s.logger.Info("user created",
		slog.String("userID", user.ID),
		slog.String("email", user.Email),
	)

	return s.lifecycle.EnsureDefaultWorkspace(ctx, user.ID, NameHint{
		FirstName: ev.User.FirstName,
		LastName:  ev.User.LastName,
		Email:     email.EmailAddress,
	})
}

// HandleUserUpdated refreshes the stored profile snapshot.
func (s *UserSyncService) HandleUserUpdated(ctx context.Context, ev *webhook.Event) error {
	if ev.Type != webhook.EventUserUpdated {
		return fmt.Errorf("%w: got %s, want %s", ErrEventTypeMismatch, ev.Type, webhook.EventUserUpdated)
	}

	email, _ := ev.User.PrimaryEmail()
	user := userFromEvent(ev.User, email)
	if err := s.store.UpsertUser(ctx, user); err != nil {
		return fmt.Errorf("syncing updated user %s: %w", user.ID, err)
	}

	s.logger.Info("user profile refreshed", slog.String("userID", user.ID))
	return nil
}

// HandleUserDeleted tears down the user's owned workspaces (cascading to
// members, repositories and rules) and then the user row itself (cascading
// to the git integration and foreign memberships).
func (s *UserSyncService) HandleUserDeleted(ctx context.Context, ev *webhook.Event) error {
	if ev.Type != webhook.EventUserDeleted {
		return fmt.Errorf("%w: got %s, want %s", ErrEventTypeMismatch, ev.Type, webhook.EventUserDeleted)
	}

	userID := ev.User.ID
	if err := s.lifecycle.CleanupUserWorkspaces(ctx, userID); err != nil {
		return err
	}
	if err := s.store.DeleteUser(ctx, userID); err != nil {
		return fmt.Errorf("deleting user %s: %w", userID, err)
	}

	s.logger.Info("user deleted", slog.String("userID", userID))
	return nil
}

// userFromEvent maps the provider's user snapshot to our row shape.
func userFromEvent(u *webhook.UserData, email webhook.EmailAddress) *model.User {
	provider := model.ProviderEmail
	if len(u.ExternalAccounts) > 0 {
		switch first := u.ExternalAccounts[0].Provider; {
		case strings.Contains(first, "github"):
			provider = model.ProviderGitHub
		case strings.Contains(first, "google"):
			provider = model.ProviderGoogle
		default:
			provider = model.ProviderOpenID
		}
	}

	return &model.User{
		ID:            u.ID,
		Email:         email.EmailAddress,
		Name:          strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName)),
		Username:      u.Username,
		Picture:       u.ImageURL,
		EmailVerified: email.Verification.Status == "verified",
		Provider:      provider,
	}
}

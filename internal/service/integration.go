package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rulescraft/cursorrulescraft/internal/apperror"
	"github.com/rulescraft/cursorrulescraft/internal/github"
	"github.com/rulescraft/cursorrulescraft/internal/model"
	"github.com/rulescraft/cursorrulescraft/internal/repository"
)

// IntegrationStatus is the GitHub-linkage state reported to the UI:
// not connected, connected, or connected with an expired token.
type IntegrationStatus struct {
	Connected  bool   `json:"connected"`
	Login      string `json:"login,omitempty"`
	TokenValid bool   `json:"tokenValid"`
}

// IntegrationService manages the per-user GitHub OAuth linkage: one token
// per user per provider, encrypted at rest.
type IntegrationService struct {
	store  repository.ScopedStore
	gh     GitHubAPI
	cipher TokenCipher
	logger *slog.Logger
}

// NewIntegrationService creates an IntegrationService.
func NewIntegrationService(store repository.ScopedStore, gh GitHubAPI, cipher TokenCipher, logger *slog.Logger) *IntegrationService {
	return &IntegrationService{store: store, gh: gh, cipher: cipher, logger: logger}
}

// Link stores a freshly exchanged access token as the user's GitHub
// integration. The token is probed against /user first — storing a dud
// token would only defer the failure to the next repository call — and the
// probe doubles as the source of the linked account's login.
func (s *IntegrationService) Link(ctx context.Context, userID, accessToken string) (*model.GitIntegration, error) {
	ghUser, err := s.gh.GetUser(ctx, accessToken)
	if err != nil {
		if errors.Is(err, github.ErrBadCredentials) {
			return nil, apperror.Unauthorized("GitHub rejected the new token")
		}
		return nil, apperror.Upstream("github", err)
	}

	sealed, err := s.cipher.Encrypt(accessToken)
	if err != nil {
		return nil, fmt.Errorf("encrypting token for %s: %w", userID, err)
	}

	ig := &model.GitIntegration{
		UserID:      userID,
		Provider:    model.GitProviderGitHub,
		AccessToken: sealed,
		Login:       ghUser.Login,
	}
	if err := s.store.UpsertIntegration(ctx, ig); err != nil {
		return nil, err
	}

	s.logger.Info("github account linked",
		slog.String("userID", userID),
		slog.String("login", ghUser.Login),
	)
	return ig, nil
}

// Status reports whether the user has a GitHub integration and whether its
// stored token still works.
func (s *IntegrationService) Status(ctx context.Context, userID string) (*IntegrationStatus, error) {
	ig, err := s.store.GetIntegration(ctx, userID, model.GitProviderGitHub)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return &IntegrationStatus{Connected: false}, nil
		}
		return nil, err
	}

	token, err := s.cipher.Decrypt(ig.AccessToken)
	if err != nil {
		// Undecryptable token (rotated encryption key): linked but unusable.
		s.logger.Error("stored token cannot be decrypted",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return &IntegrationStatus{Connected: true, Login: ig.Login, TokenValid: false}, nil
	}

	if _, err := s.gh.GetUser(ctx, token); err != nil {
		if errors.Is(err, github.ErrBadCredentials) {
			return &IntegrationStatus{Connected: true, Login: ig.Login, TokenValid: false}, nil
		}
		return nil, apperror.Upstream("github", err)
	}

	return &IntegrationStatus{Connected: true, Login: ig.Login, TokenValid: true}, nil
}

// Unlink deletes the stored credential. Connected repositories stay — they
// just can't sync until the account is linked again.
func (s *IntegrationService) Unlink(ctx context.Context, userID string) error {
	if err := s.store.DeleteIntegration(ctx, userID, model.GitProviderGitHub); err != nil {
		return err
	}
	s.logger.Info("github account unlinked", slog.String("userID", userID))
	return nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rulescraft/cursorrulescraft/internal/apperror"
	"github.com/rulescraft/cursorrulescraft/internal/github"
	"github.com/rulescraft/cursorrulescraft/internal/model"
	"github.com/rulescraft/cursorrulescraft/internal/repository"
)

// GitHubAPI is the slice of the GitHub client the services use.
// Tests substitute a fake.
type GitHubAPI interface {
	GetUser(ctx context.Context, token string) (*github.User, error)
	ListRepositories(ctx context.Context, token string, page, perPage int) ([]github.Repository, error)
	GetRepository(ctx context.Context, token, owner, name string) (*github.Repository, error)
}

// TokenCipher is the at-rest encryption used for stored provider tokens.
type TokenCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// RemoteStatus qualifies a remote-repository listing result.
type RemoteStatus string

const (
	// RemoteOK: the listing succeeded.
	RemoteOK RemoteStatus = "ok"
	// RemoteRequiresSetup: the user has never linked a GitHub account.
	RemoteRequiresSetup RemoteStatus = "requires_setup"
	// RemoteRequiresReconnect: a token is stored but GitHub rejected it.
	RemoteRequiresReconnect RemoteStatus = "requires_reconnect"
)

// RemoteListing is the typed result of listing a user's remote repositories.
// Token problems are states the UI acts on (show a connect/reconnect
// prompt), not errors, so they travel in the result rather than as error
// values.
type RemoteListing struct {
	Status       RemoteStatus        `json:"status"`
	Repositories []github.Repository `json:"repositories,omitempty"`
}

const (
	defaultRepoPage = 30
	maxRepoPage     = 100
)

// RepoService connects, syncs and disconnects workspace repositories.
// Every operation is scoped to the acting user: workspace access is checked
// through membership before any read or write.
type RepoService struct {
	store  repository.ScopedStore
	gh     GitHubAPI
	cipher TokenCipher
	logger *slog.Logger
}

// NewRepoService creates a RepoService.
func NewRepoService(store repository.ScopedStore, gh GitHubAPI, cipher TokenCipher, logger *slog.Logger) *RepoService {
	return &RepoService{store: store, gh: gh, cipher: cipher, logger: logger}
}

// token loads and decrypts the user's GitHub token.
// Returns apperror.ErrNotFound when no integration is linked.
func (s *RepoService) token(ctx context.Context, userID string) (string, error) {
	ig, err := s.store.GetIntegration(ctx, userID, model.GitProviderGitHub)
	if err != nil {
		return "", err
	}
	token, err := s.cipher.Decrypt(ig.AccessToken)
	if err != nil {
		return "", fmt.Errorf("decrypting stored token for %s: %w", userID, err)
	}
	return token, nil
}

// ListAvailable lists the user's remote GitHub repositories for the connect
// picker. Missing or rejected credentials come back as a status, not an
// error.
func (s *RepoService) ListAvailable(ctx context.Context, userID string, page, perPage int) (*RemoteListing, error) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = defaultRepoPage
	}
	if perPage > maxRepoPage {
		perPage = maxRepoPage
	}

	token, err := s.token(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return &RemoteListing{Status: RemoteRequiresSetup}, nil
		}
		return nil, err
	}

	repos, err := s.gh.ListRepositories(ctx, token, page, perPage)
	if err != nil {
		if errors.Is(err, github.ErrBadCredentials) {
			s.logger.Info("stored GitHub token rejected",
				slog.String("userID", userID),
			)
			return &RemoteListing{Status: RemoteRequiresReconnect}, nil
		}
		return nil, apperror.Upstream("github", err)
	}

	return &RemoteListing{Status: RemoteOK, Repositories: repos}, nil
}

// Connect fetches a repository's metadata from GitHub and attaches it to the
// workspace. Connecting the same repository twice is a conflict.
func (s *RepoService) Connect(ctx context.Context, userID, workspaceID, owner, name string) (*model.Repository, error) {
	owner = strings.TrimSpace(owner)
	name = strings.TrimSpace(name)
	if owner == "" || name == "" {
		return nil, apperror.ValidationFailed("repository", "owner and repository name are required")
	}

	// Membership gate before anything leaves the process.
	if _, err := s.store.GetWorkspaceForMember(ctx, workspaceID, userID); err != nil {
		return nil, err
	}

	token, err := s.token(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.ValidationFailed("integration", "no GitHub account is linked")
		}
		return nil, err
	}

	remote, err := s.gh.GetRepository(ctx, token, owner, name)
	if err != nil {
		return nil, mapGitHubError(err, owner+"/"+name)
	}

	repo := repositoryFromRemote(remote)
	repo.WorkspaceID = workspaceID

	if err := s.store.CreateRepository(ctx, repo); err != nil {
		return nil, err
	}

	s.logger.Info("repository connected",
		slog.String("userID", userID),
		slog.String("workspaceID", workspaceID),
		slog.String("fullName", repo.FullName),
	)
	return repo, nil
}

// Sync refetches a connected repository's metadata from GitHub and updates
// the stored row, stamping LastSyncedAt.
func (s *RepoService) Sync(ctx context.Context, userID, repositoryID string) (*model.Repository, error) {
	repo, err := s.authorizedRepository(ctx, userID, repositoryID)
	if err != nil {
		return nil, err
	}

	token, err := s.token(ctx, userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.ValidationFailed("integration", "no GitHub account is linked")
		}
		return nil, err
	}

	owner, name, ok := strings.Cut(repo.FullName, "/")
	if !ok {
		return nil, fmt.Errorf("repository %s has malformed full name %q", repo.ID, repo.FullName)
	}

	remote, err := s.gh.GetRepository(ctx, token, owner, name)
	if err != nil {
		return nil, mapGitHubError(err, repo.FullName)
	}

	fresh := repositoryFromRemote(remote)
	repo.Name = fresh.Name
	repo.URL = fresh.URL
	repo.DefaultBranch = fresh.DefaultBranch
	repo.IsPrivate = fresh.IsPrivate
	repo.Language = fresh.Language
	repo.Topics = fresh.Topics
	repo.StarsCount = fresh.StarsCount
	repo.ForksCount = fresh.ForksCount
	now := time.Now().UTC()
	repo.LastSyncedAt = &now

	if err := s.store.UpdateRepository(ctx, repo); err != nil {
		return nil, err
	}

	s.logger.Info("repository synced",
		slog.String("repositoryID", repo.ID),
		slog.String("fullName", repo.FullName),
	)
	return repo, nil
}

// Disconnect removes the repository row. The GitHub token is untouched —
// revoking it is an account-level operation, not a per-repository one.
func (s *RepoService) Disconnect(ctx context.Context, userID, repositoryID string) error {
	repo, err := s.authorizedRepository(ctx, userID, repositoryID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteRepository(ctx, repo.ID); err != nil {
		return err
	}

	s.logger.Info("repository disconnected",
		slog.String("repositoryID", repo.ID),
		slog.String("fullName", repo.FullName),
	)
	return nil
}

// List returns a workspace's connected repositories for a member.
func (s *RepoService) List(ctx context.Context, userID, workspaceID string) ([]model.Repository, error) {
	if workspaceID == "" {
		return nil, apperror.ValidationFailed("workspaceId", "workspaceId is required")
	}
	if _, err := s.store.GetWorkspaceForMember(ctx, workspaceID, userID); err != nil {
		return nil, err
	}
	return s.store.ListRepositories(ctx, workspaceID)
}

// authorizedRepository loads a repository and verifies the acting user is a
// member of its workspace. Non-members get NotFound.
func (s *RepoService) authorizedRepository(ctx context.Context, userID, repositoryID string) (*model.Repository, error) {
	repo, err := s.store.GetRepositoryByID(ctx, repositoryID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetWorkspaceForMember(ctx, repo.WorkspaceID, userID); err != nil {
		return nil, apperror.NotFound("repository", repositoryID)
	}
	return repo, nil
}

func repositoryFromRemote(remote *github.Repository) *model.Repository {
	return &model.Repository{
		Name:          remote.Name,
		FullName:      remote.FullName,
		Provider:      model.GitProviderGitHub,
		URL:           remote.HTMLURL,
		DefaultBranch: remote.DefaultBranch,
		IsPrivate:     remote.Private,
		Language:      remote.Language,
		Topics:        remote.Topics,
		StarsCount:    remote.StarsCount,
		ForksCount:    remote.ForksCount,
	}
}

func mapGitHubError(err error, fullName string) error {
	switch {
	case errors.Is(err, github.ErrBadCredentials):
		return apperror.Unauthorized("GitHub rejected the stored token; reconnect your GitHub account")
	case github.IsNotFound(err):
		return apperror.NotFound("GitHub repository", fullName)
	default:
		return apperror.Upstream("github", err)
	}
}

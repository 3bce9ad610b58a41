package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulescraft/cursorrulescraft/internal/apperror"
	"github.com/rulescraft/cursorrulescraft/internal/github"
	"github.com/rulescraft/cursorrulescraft/internal/model"
	"github.com/rulescraft/cursorrulescraft/internal/repository"
)

// fakeScopedStore stubs just the ScopedStore methods the repo and
// integration services touch. The embedded interface makes any unstubbed
// call panic with a nil dereference, which is the failure mode we want in a
// test.
type fakeScopedStore struct {
	repository.ScopedStore

	memberships  map[string][]string // workspace ID -> member user IDs
	integrations map[string]*model.GitIntegration
	repos        map[string]*model.Repository
	nextID       int
}

func newFakeScopedStore() *fakeScopedStore {
	return &fakeScopedStore{
		memberships:  make(map[string][]string),
		integrations: make(map[string]*model.GitIntegration),
		repos:        make(map[string]*model.Repository),
	}
}

func (f *fakeScopedStore) GetWorkspaceForMember(ctx context.Context, workspaceID, userID string) (*model.Workspace, error) {
	for _, uid := range f.memberships[workspaceID] {
		if uid == userID {
			return &model.Workspace{ID: workspaceID, Name: "ws"}, nil
		}
	}
	return nil, apperror.NotFound("workspace", workspaceID)
}

func (f *fakeScopedStore) GetIntegration(ctx context.Context, userID string, provider model.GitProvider) (*model.GitIntegration, error) {
	ig, ok := f.integrations[userID]
	if !ok {
		return nil, apperror.NotFound("integration", userID)
	}
	return ig, nil
}

func (f *fakeScopedStore) UpsertIntegration(ctx context.Context, ig *model.GitIntegration) error {
	f.integrations[ig.UserID] = ig
	return nil
}

func (f *fakeScopedStore) DeleteIntegration(ctx context.Context, userID string, provider model.GitProvider) error {
	delete(f.integrations, userID)
	return nil
}

func (f *fakeScopedStore) CreateRepository(ctx context.Context, repo *model.Repository) error {
	for _, existing := range f.repos {
		if existing.WorkspaceID == repo.WorkspaceID && existing.FullName == repo.FullName {
			return apperror.Conflict("repository", repo.FullName)
		}
	}
	f.nextID++
	repo.ID = fmt.Sprintf("repo_%d", f.nextID)
	copied := *repo
	f.repos[repo.ID] = &copied
	return nil
}

func (f *fakeScopedStore) GetRepositoryByID(ctx context.Context, id string) (*model.Repository, error) {
	repo, ok := f.repos[id]
	if !ok {
		return nil, apperror.NotFound("repository", id)
	}
	copied := *repo
	return &copied, nil
}

func (f *fakeScopedStore) UpdateRepository(ctx context.Context, repo *model.Repository) error {
	if _, ok := f.repos[repo.ID]; !ok {
		return apperror.NotFound("repository", repo.ID)
	}
	copied := *repo
	f.repos[repo.ID] = &copied
	return nil
}

func (f *fakeScopedStore) DeleteRepository(ctx context.Context, id string) error {
	if _, ok := f.repos[id]; !ok {
		return apperror.NotFound("repository", id)
	}
	delete(f.repos, id)
	return nil
}

func (f *fakeScopedStore) ListRepositories(ctx context.Context, workspaceID string) ([]model.Repository, error) {
	var out []model.Repository
	for _, repo := range f.repos {
		if repo.WorkspaceID == workspaceID {
			out = append(out, *repo)
		}
	}
	return out, nil
}

// fakeGitHub serves canned responses in place of the real API client.
type fakeGitHub struct {
	user    *github.User
	userErr error

	repos   []github.Repository
	listErr error

	repo    *github.Repository
	repoErr error
}

func (f *fakeGitHub) GetUser(ctx context.Context, token string) (*github.User, error) {
	return f.user, f.userErr
}

func (f *fakeGitHub) ListRepositories(ctx context.Context, token string, page, perPage int) ([]github.Repository, error) {
	return f.repos, f.listErr
}

func (f *fakeGitHub) GetRepository(ctx context.Context, token, owner, name string) (*github.Repository, error) {
	return f.repo, f.repoErr
}

// plainCipher passes tokens through unchanged; the real cipher has its own
// tests.
type plainCipher struct{}

func (plainCipher) Encrypt(s string) (string, error) { return s, nil }
func (plainCipher) Decrypt(s string) (string, error) { return s, nil }

func linkToken(store *fakeScopedStore, userID, token string) {
	store.integrations[userID] = &model.GitIntegration{
		UserID:      userID,
		Provider:    model.GitProviderGitHub,
		AccessToken: token,
		Login:       "octocat",
	}
}

func remoteRepo(fullName string) *github.Repository {
	return &github.Repository{
		Name:          fullName[len("octocat/"):],
		FullName:      fullName,
		HTMLURL:       "https://github.com/" + fullName,
		DefaultBranch: "main",
		Language:      "Go",
		Topics:        []string{"cli"},
		StarsCount:    12,
	}
}

func TestListAvailable_Statuses(t *testing.T) {
	t.Run("no integration yields requires_setup", func(t *testing.T) {
		svc := NewRepoService(newFakeScopedStore(), &fakeGitHub{}, plainCipher{}, testLogger())

		listing, err := svc.ListAvailable(context.Background(), "user_1", 1, 30)
		require.NoError(t, err)
		assert.Equal(t, RemoteRequiresSetup, listing.Status)
		assert.Empty(t, listing.Repositories)
	})

	t.Run("rejected token yields requires_reconnect", func(t *testing.T) {
		store := newFakeScopedStore()
		linkToken(store, "user_1", "tok")
		gh := &fakeGitHub{listErr: github.ErrBadCredentials}
		svc := NewRepoService(store, gh, plainCipher{}, testLogger())

		listing, err := svc.ListAvailable(context.Background(), "user_1", 1, 30)
		require.NoError(t, err)
		assert.Equal(t, RemoteRequiresReconnect, listing.Status)
	})

	t.Run("valid token lists repositories", func(t *testing.T) {
		store := newFakeScopedStore()
		linkToken(store, "user_1", "tok")
		gh := &fakeGitHub{repos: []github.Repository{*remoteRepo("octocat/hello")}}
		svc := NewRepoService(store, gh, plainCipher{}, testLogger())

		listing, err := svc.ListAvailable(context.Background(), "user_1", 1, 30)
		require.NoError(t, err)
		assert.Equal(t, RemoteOK, listing.Status)
		require.Len(t, listing.Repositories, 1)
		assert.Equal(t, "octocat/hello", listing.Repositories[0].FullName)
	})

	t.Run("api outage is an upstream error", func(t *testing.T) {
		store := newFakeScopedStore()
		linkToken(store, "user_1", "tok")
		gh := &fakeGitHub{listErr: errors.New("502 bad gateway")}
		svc := NewRepoService(store, gh, plainCipher{}, testLogger())

		_, err := svc.ListAvailable(context.Background(), "user_1", 1, 30)
		assert.ErrorIs(t, err, apperror.ErrUpstream)
	})
}

func TestConnect(t *testing.T) {
	newConnectFixture := func() (*fakeScopedStore, *fakeGitHub, *RepoService) {
		store := newFakeScopedStore()
		store.memberships["ws_1"] = []string{"user_1"}
		linkToken(store, "user_1", "tok")
		gh := &fakeGitHub{repo: remoteRepo("octocat/hello")}
		return store, gh, NewRepoService(store, gh, plainCipher{}, testLogger())
	}

	t.Run("connects and stores metadata", func(t *testing.T) {
		_, _, svc := newConnectFixture()

		repo, err := svc.Connect(context.Background(), "user_1", "ws_1", "octocat", "hello")
		require.NoError(t, err)
		assert.Equal(t, "ws_1", repo.WorkspaceID)
		assert.Equal(t, "octocat/hello", repo.FullName)
		assert.Equal(t, "main", repo.DefaultBranch)
		assert.Equal(t, model.GitProviderGitHub, repo.Provider)
		assert.Nil(t, repo.LastSyncedAt)
	})

	t.Run("second connect of same repo conflicts", func(t *testing.T) {
		_, _, svc := newConnectFixture()

		_, err := svc.Connect(context.Background(), "user_1", "ws_1", "octocat", "hello")
		require.NoError(t, err)
		_, err = svc.Connect(context.Background(), "user_1", "ws_1", "octocat", "hello")
		assert.ErrorIs(t, err, apperror.ErrConflict)
	})

	t.Run("non-member cannot connect", func(t *testing.T) {
		store, _, svc := newConnectFixture()
		linkToken(store, "user_2", "tok2")

		_, err := svc.Connect(context.Background(), "user_2", "ws_1", "octocat", "hello")
		assert.ErrorIs(t, err, apperror.ErrNotFound)
	})

	t.Run("no linked account fails validation", func(t *testing.T) {
		store, _, svc := newConnectFixture()
		delete(store.integrations, "user_1")

		_, err := svc.Connect(context.Background(), "user_1", "ws_1", "octocat", "hello")
		assert.ErrorIs(t, err, apperror.ErrValidation)
	})

	t.Run("unknown remote repository maps to not found", func(t *testing.T) {
		_, gh, svc := newConnectFixture()
		gh.repo, gh.repoErr = nil, github.ErrNotFound

		_, err := svc.Connect(context.Background(), "user_1", "ws_1", "octocat", "missing")
		assert.ErrorIs(t, err, apperror.ErrNotFound)
	})

	t.Run("blank owner or name fails validation", func(t *testing.T) {
		_, _, svc := newConnectFixture()

		_, err := svc.Connect(context.Background(), "user_1", "ws_1", "  ", "hello")
		assert.ErrorIs(t, err, apperror.ErrValidation)
	})
}

func TestSync_RefreshesMetadata(t *testing.T) {
	store := newFakeScopedStore()
	store.memberships["ws_1"] = []string{"user_1"}
	linkToken(store, "user_1", "tok")
	gh := &fakeGitHub{repo: remoteRepo("octocat/hello")}
	svc := NewRepoService(store, gh, plainCipher{}, testLogger())
	ctx := context.Background()

	repo, err := svc.Connect(ctx, "user_1", "ws_1", "octocat", "hello")
	require.NoError(t, err)
	require.Nil(t, repo.LastSyncedAt)

	// The remote moved on since connect.
	gh.repo = remoteRepo("octocat/hello")
	gh.repo.DefaultBranch = "develop"
	gh.repo.StarsCount = 99
	gh.repo.Topics = []string{"cli", "tui"}

	before := time.Now().UTC()
	synced, err := svc.Sync(ctx, "user_1", repo.ID)
	require.NoError(t, err)

	assert.Equal(t, "develop", synced.DefaultBranch)
	assert.Equal(t, 99, synced.StarsCount)
	assert.Equal(t, []string{"cli", "tui"}, synced.Topics)
	require.NotNil(t, synced.LastSyncedAt)
	assert.False(t, synced.LastSyncedAt.Before(before))

	stored, err := store.GetRepositoryByID(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, "develop", stored.DefaultBranch)
}

func TestSync_NonMemberGetsNotFound(t *testing.T) {
	store := newFakeScopedStore()
	store.memberships["ws_1"] = []string{"user_1"}
	linkToken(store, "user_1", "tok")
	gh := &fakeGitHub{repo: remoteRepo("octocat/hello")}
	svc := NewRepoService(store, gh, plainCipher{}, testLogger())
	ctx := context.Background()

	repo, err := svc.Connect(ctx, "user_1", "ws_1", "octocat", "hello")
	require.NoError(t, err)

	_, err = svc.Sync(ctx, "user_2", repo.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestDisconnect(t *testing.T) {
	store := newFakeScopedStore()
	store.memberships["ws_1"] = []string{"user_1"}
	linkToken(store, "user_1", "tok")
	gh := &fakeGitHub{repo: remoteRepo("octocat/hello")}
	svc := NewRepoService(store, gh, plainCipher{}, testLogger())
	ctx := context.Background()

	repo, err := svc.Connect(ctx, "user_1", "ws_1", "octocat", "hello")
	require.NoError(t, err)

	require.NoError(t, svc.Disconnect(ctx, "user_1", repo.ID))
	_, err = store.GetRepositoryByID(ctx, repo.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	// The credential survives a disconnect.
	_, err = store.GetIntegration(ctx, "user_1", model.GitProviderGitHub)
	assert.NoError(t, err)
}

func TestIntegrationStatus(t *testing.T) {
	t.Run("never linked", func(t *testing.T) {
		svc := NewIntegrationService(newFakeScopedStore(), &fakeGitHub{}, plainCipher{}, testLogger())

		st, err := svc.Status(context.Background(), "user_1")
		require.NoError(t, err)
		assert.False(t, st.Connected)
		assert.False(t, st.TokenValid)
	})

	t.Run("linked with live token", func(t *testing.T) {
		store := newFakeScopedStore()
		linkToken(store, "user_1", "tok")
		gh := &fakeGitHub{user: &github.User{Login: "octocat"}}
		svc := NewIntegrationService(store, gh, plainCipher{}, testLogger())

		st, err := svc.Status(context.Background(), "user_1")
		require.NoError(t, err)
		assert.True(t, st.Connected)
		assert.True(t, st.TokenValid)
		assert.Equal(t, "octocat", st.Login)
	})

	t.Run("linked with revoked token", func(t *testing.T) {
		store := newFakeScopedStore()
		linkToken(store, "user_1", "tok")
		gh := &fakeGitHub{userErr: github.ErrBadCredentials}
		svc := NewIntegrationService(store, gh, plainCipher{}, testLogger())

		st, err := svc.Status(context.Background(), "user_1")
		require.NoError(t, err)
		assert.True(t, st.Connected)
		assert.False(t, st.TokenValid)
	})
}

func TestLink_ProbesTokenBeforeStoring(t *testing.T) {
	store := newFakeScopedStore()
	gh := &fakeGitHub{userErr: github.ErrBadCredentials}
	svc := NewIntegrationService(store, gh, plainCipher{}, testLogger())

	_, err := svc.Link(context.Background(), "user_1", "dud-token")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	assert.Empty(t, store.integrations, "a rejected token must not be stored")
}

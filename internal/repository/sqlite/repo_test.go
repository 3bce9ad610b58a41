package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rulescraft/cursorrulescraft/internal/apperror"
	"github.com/rulescraft/cursorrulescraft/internal/model"
)

func seedWorkspace(t *testing.T, db *DB) *model.Workspace {
	t.Helper()
	createTestUser(t, db, "user_1")
	return createTestWorkspace(t, db, "user_1", "Main", true)
}

func TestCreateRepository_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ws := seedWorkspace(t, db)

	repo := &model.Repository{
		WorkspaceID:   ws.ID,
		Name:          "hello-world",
		FullName:      "octocat/hello-world",
		Provider:      model.GitProviderGitHub,
		URL:           "https://github.com/octocat/hello-world",
		DefaultBranch: "main",
		IsPrivate:     true,
		Language:      "Go",
		Topics:        []string{"sample", "cli"},
		StarsCount:    42,
		ForksCount:    7,
	}
	require.NoError(t, db.CreateRepository(ctx, repo))
	require.NotEmpty(t, repo.ID)

	got, err := db.GetRepositoryByID(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, "octocat/hello-world", got.FullName)
	assert.Equal(t, []string{"sample", "cli"}, got.Topics)
	assert.True(t, got.IsPrivate)
	assert.Nil(t, got.LastSyncedAt, "a freshly connected repo has never been synced")
}

func TestCreateRepository_DuplicateFullName(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ws := seedWorkspace(t, db)

	first := &model.Repository{WorkspaceID: ws.ID, Name: "hello-world", FullName: "octocat/hello-world", Provider: model.GitProviderGitHub}
	require.NoError(t, db.CreateRepository(ctx, first))

	dup := &model.Repository{WorkspaceID: ws.ID, Name: "hello-world", FullName: "octocat/hello-world", Provider: model.GitProviderGitHub}
	err := db.CreateRepository(ctx, dup)
	assert.True(t, errors.Is(err, apperror.ErrConflict), "duplicate connect should be a Conflict, got %v", err)

	// The same repo in a different workspace is allowed.
	other := createTestWorkspace(t, db, "user_1", "Other", false)
	again := &model.Repository{WorkspaceID: other.ID, Name: "hello-world", FullName: "octocat/hello-world", Provider: model.GitProviderGitHub}
	assert.NoError(t, db.CreateRepository(ctx, again))
}

func TestUpdateRepository_SyncFields(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ws := seedWorkspace(t, db)

	repo := &model.Repository{WorkspaceID: ws.ID, Name: "hello-world", FullName: "octocat/hello-world", Provider: model.GitProviderGitHub}
	require.NoError(t, db.CreateRepository(ctx, repo))

	syncedAt := time.Now().UTC().Truncate(time.Second)
	repo.StarsCount = 100
	repo.Language = "Rust"
	repo.Topics = []string{"rewritten"}
	repo.LastSyncedAt = &syncedAt
	require.NoError(t, db.UpdateRepository(ctx, repo))

	got, err := db.GetRepositoryByID(ctx, repo.ID)
	require.NoError(t, err)
	assert.Equal(t, 100, got.StarsCount)
	assert.Equal(t, "Rust", got.Language)
	assert.Equal(t, []string{"rewritten"}, got.Topics)
	require.NotNil(t, got.LastSyncedAt)
	assert.WithinDuration(t, syncedAt, *got.LastSyncedAt, time.Second)
}

func TestUpdateRepository_Missing(t *testing.T) {
	db := newTestDB(t)
	err := db.UpdateRepository(context.Background(), &model.Repository{ID: "nope", Topics: nil})
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestDeleteRepository(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	ws := seedWorkspace(t, db)

	repo := &model.Repository{WorkspaceID: ws.ID, Name: "hello-world", FullName: "octocat/hello-world", Provider: model.GitProviderGitHub}
	require.NoError(t, db.CreateRepository(ctx, repo))
	require.NoError(t, db.DeleteRepository(ctx, repo.ID))

	_, err := db.GetRepositoryByID(ctx, repo.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))

	err = db.DeleteRepository(ctx, repo.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "double delete should be NotFound")
}

func TestIntegrationUpsertAndDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestUser(t, db, "user_1")

	ig := &model.GitIntegration{
		UserID:      "user_1",
		Provider:    model.GitProviderGitHub,
		AccessToken: "ciphertext-1",
		Login:       "octocat",
	}
	require.NoError(t, db.UpsertIntegration(ctx, ig))

	// Re-linking overwrites the token in place.
	ig.AccessToken = "ciphertext-2"
	require.NoError(t, db.UpsertIntegration(ctx, ig))

	got, err := db.GetIntegration(ctx, "user_1", model.GitProviderGitHub)
	require.NoError(t, err)
	assert.Equal(t, "ciphertext-2", got.AccessToken)
	assert.Equal(t, "octocat", got.Login)

	require.NoError(t, db.DeleteIntegration(ctx, "user_1", model.GitProviderGitHub))
	_, err = db.GetIntegration(ctx, "user_1", model.GitProviderGitHub)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestIntegration_CascadesWithUser(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestUser(t, db, "user_1")

	require.NoError(t, db.UpsertIntegration(ctx, &model.GitIntegration{
		UserID:      "user_1",
		Provider:    model.GitProviderGitHub,
		AccessToken: "ciphertext",
	}))

	require.NoError(t, db.DeleteUser(ctx, "user_1"))

	_, err := db.GetIntegration(ctx, "user_1", model.GitProviderGitHub)
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "integration should cascade with its user")
}

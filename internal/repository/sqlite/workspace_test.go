package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/rulescraft/cursorrulescraft/internal/apperror"
	"github.com/rulescraft/cursorrulescraft/internal/model"
)

// newTestDB returns a DB backed by an in-memory SQLite database.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("New(:memory:) error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestUser creates a user row and fails the test if it errors.
func createTestUser(t *testing.T, db *DB, id string) *model.User {
	t.Helper()
	user := &model.User{
		ID:       id,
		Email:    id + "@example.com",
		Name:     "Test " + id,
		Provider: model.ProviderGitHub,
	}
	if err := db.UpsertUser(context.Background(), user); err != nil {
		t.Fatalf("creating test user %s: %v", id, err)
	}
	return user
}

// createTestWorkspace creates a workspace (with OWNER membership) for ownerID.
func createTestWorkspace(t *testing.T, db *DB, ownerID, name string, isDefault bool) *model.Workspace {
	t.Helper()
	ws := &model.Workspace{OwnerID: ownerID, Name: name, IsDefault: isDefault}
	if err := db.CreateWorkspaceWithOwner(context.Background(), ws); err != nil {
		t.Fatalf("creating test workspace %q: %v", name, err)
	}
	return ws
}

func TestCreateWorkspaceWithOwner(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestUser(t, db, "user_1")

	ws := createTestWorkspace(t, db, "user_1", "Ada's Workspace", true)
	if ws.ID == "" {
		t.Error("CreateWorkspaceWithOwner() did not set ws.ID")
	}
	if ws.CreatedAt.IsZero() {
		t.Error("CreateWorkspaceWithOwner() did not set ws.CreatedAt")
	}

	// The OWNER membership is created in the same transaction.
	m, err := db.GetMember(ctx, ws.ID, "user_1")
	if err != nil {
		t.Fatalf("GetMember() error = %v", err)
	}
	if m.Role != model.RoleOwner {
		t.Errorf("owner member role = %q, want %q", m.Role, model.RoleOwner)
	}
}

func TestCreateWorkspaceWithOwner_DuplicateDefault(t *testing.T) {
	db := newTestDB(t)
	createTestUser(t, db, "user_1")
	createTestWorkspace(t, db, "user_1", "First", true)

	// Second default workspace for the same owner trips the partial unique
	// index and must surface as a Conflict, not a generic error.
	err := db.CreateWorkspaceWithOwner(context.Background(), &model.Workspace{
		OwnerID:   "user_1",
		Name:      "Second",
		IsDefault: true,
	})
	if !errors.Is(err, apperror.ErrConflict) {
		t.Fatalf("second default workspace: error = %v, want ErrConflict", err)
	}

	// A non-default workspace for the same owner is fine.
	if err := db.CreateWorkspaceWithOwner(context.Background(), &model.Workspace{
		OwnerID: "user_1",
		Name:    "Side Project",
	}); err != nil {
		t.Fatalf("non-default workspace: error = %v", err)
	}
}

func TestDeleteWorkspaces_Cascades(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestUser(t, db, "user_1")
	createTestUser(t, db, "user_2")

	ws1 := createTestWorkspace(t, db, "user_1", "One", true)
	ws2 := createTestWorkspace(t, db, "user_1", "Two", false)

	// Populate dependents: an extra member, a repository and a rule.
	if err := db.AddMember(ctx, &model.WorkspaceMember{
		WorkspaceID: ws1.ID, UserID: "user_2", Role: model.RoleMember,
	}); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}
	repo := &model.Repository{
		WorkspaceID: ws1.ID,
		Name:        "hello-world",
		FullName:    "octocat/hello-world",
		Provider:    model.GitProviderGitHub,
	}
	if err := db.CreateRepository(ctx, repo); err != nil {
		t.Fatalf("CreateRepository() error = %v", err)
	}
	rule := &model.Rule{RepositoryID: repo.ID, Name: "style", Content: "Use tabs."}
	if err := db.CreateRule(ctx, rule); err != nil {
		t.Fatalf("CreateRule() error = %v", err)
	}

	if err := db.DeleteWorkspaces(ctx, []string{ws1.ID, ws2.ID}); err != nil {
		t.Fatalf("DeleteWorkspaces() error = %v", err)
	}

	if got, err := db.ListWorkspacesByOwner(ctx, "user_1"); err != nil || len(got) != 0 {
		t.Errorf("ListWorkspacesByOwner() = %v, %v; want empty", got, err)
	}
	if _, err := db.GetMember(ctx, ws1.ID, "user_2"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("member survived workspace deletion: %v", err)
	}
	if _, err := db.GetRepositoryByID(ctx, repo.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("repository survived workspace deletion: %v", err)
	}
	if _, err := db.GetRuleByID(ctx, rule.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("rule survived workspace deletion: %v", err)
	}
}

func TestDeleteWorkspaces_Empty(t *testing.T) {
	db := newTestDB(t)
	if err := db.DeleteWorkspaces(context.Background(), nil); err != nil {
		t.Fatalf("DeleteWorkspaces(nil) error = %v", err)
	}
}

func TestGetWorkspaceForMember_Scoping(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	createTestUser(t, db, "user_1")
	createTestUser(t, db, "user_2")
	ws := createTestWorkspace(t, db, "user_1", "Private", true)

	// Owner sees it.
	if _, err := db.GetWorkspaceForMember(ctx, ws.ID, "user_1"); err != nil {
		t.Fatalf("owner GetWorkspaceForMember() error = %v", err)
	}

	// A non-member gets NotFound, not the row.
	if _, err := db.GetWorkspaceForMember(ctx, ws.ID, "user_2"); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("non-member GetWorkspaceForMember() error = %v, want ErrNotFound", err)
	}

	// After being added as a member, user_2 sees it too.
	if err := db.AddMember(ctx, &model.WorkspaceMember{
		WorkspaceID: ws.ID, UserID: "user_2", Role: model.RoleMember,
	}); err != nil {
		t.Fatalf("AddMember() error = %v", err)
	}
	if _, err := db.GetWorkspaceForMember(ctx, ws.ID, "user_2"); err != nil {
		t.Fatalf("member GetWorkspaceForMember() error = %v", err)
	}
}

func TestMarkDeliveryProcessed(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first, err := db.MarkDeliveryProcessed(ctx, "msg_1")
	if err != nil {
		t.Fatalf("MarkDeliveryProcessed() error = %v", err)
	}
	if !first {
		t.Error("first delivery reported as already processed")
	}

	again, err := db.MarkDeliveryProcessed(ctx, "msg_1")
	if err != nil {
		t.Fatalf("MarkDeliveryProcessed() redelivery error = %v", err)
	}
	if again {
		t.Error("redelivery reported as first-time")
	}
}

func TestUpsertUser_Idempotent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u := createTestUser(t, db, "user_1")
	created := u.CreatedAt

	// Second upsert with a changed name refreshes the profile but keeps
	// the creation timestamp.
	u.Name = "Ada Lovelace"
	u.CreatedAt = created
	if err := db.UpsertUser(ctx, u); err != nil {
		t.Fatalf("second UpsertUser() error = %v", err)
	}

	got, err := db.GetUserByID(ctx, "user_1")
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if got.Name != "Ada Lovelace" {
		t.Errorf("Name = %q, want refreshed profile", got.Name)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt changed on update: %v != %v", got.CreatedAt, created)
	}
}

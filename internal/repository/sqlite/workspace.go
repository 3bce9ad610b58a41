package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"github.com/rulescraft/cursorrulescraft/internal/apperror"
	"github.com/rulescraft/cursorrulescraft/internal/model"
)

const workspaceColumns = `id, owner_id, name, is_default, created_at, updated_at`

func scanWorkspace(row interface{ Scan(...any) error }) (*model.Workspace, error) {
	var w model.Workspace
	err := row.Scan(&w.ID, &w.OwnerID, &w.Name, &w.IsDefault, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// CreateWorkspaceWithOwner inserts the workspace and its OWNER membership in
// a single transaction, so a half-created workspace (row without an owner
// member) can never be observed or left behind.
//
// A duplicate default workspace for the same owner trips the partial unique
// index and comes back as apperror.ErrConflict.
func (db *DB) CreateWorkspaceWithOwner(ctx context.Context, ws *model.Workspace) error {
	ws.ID = xid.New().String()
	now := time.Now().UTC()
	ws.CreatedAt = now
	ws.UpdatedAt = now

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning workspace transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO workspaces (id, owner_id, name, is_default, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		ws.ID, ws.OwnerID, ws.Name, ws.IsDefault, ws.CreatedAt, ws.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("default workspace", ws.OwnerID)
		}
		return fmt.Errorf("sqlite: inserting workspace for %s: %w", ws.OwnerID, err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO workspace_members (workspace_id, user_id, role, created_at)
		 VALUES (?, ?, ?, ?)`,
		ws.ID, ws.OwnerID, model.RoleOwner, now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting owner membership for %s: %w", ws.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing workspace %s: %w", ws.ID, err)
	}
	return nil
}

// ListWorkspacesByOwner returns all workspaces owned by ownerID, oldest
// first. Admin path — no membership scoping.
func (db *DB) ListWorkspacesByOwner(ctx context.Context, ownerID string) ([]model.Workspace, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+workspaceColumns+` FROM workspaces WHERE owner_id = ? ORDER BY created_at`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing workspaces for owner %s: %w", ownerID, err)
	}
	defer rows.Close()

	return collectWorkspaces(rows)
}

// ListWorkspacesForMember returns every workspace the user belongs to, in
// join order (default workspace first thanks to creation order).
func (db *DB) ListWorkspacesForMember(ctx context.Context, userID string) ([]model.Workspace, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT w.id, w.owner_id, w.name, w.is_default, w.created_at, w.updated_at
		 FROM workspaces w
		 JOIN workspace_members m ON m.workspace_id = w.id
		 WHERE m.user_id = ?
		 ORDER BY w.created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing workspaces for member %s: %w", userID, err)
	}
	defer rows.Close()

	return collectWorkspaces(rows)
}

func collectWorkspaces(rows *sql.Rows) ([]model.Workspace, error) {
	var out []model.Workspace
	for rows.Next() {
		w, err := scanWorkspace(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning workspace: %w", err)
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// GetWorkspaceForMember fetches a workspace only if userID is a member.
// Non-members get NotFound rather than Forbidden, so the API doesn't confirm
// the workspace exists.
func (db *DB) GetWorkspaceForMember(ctx context.Context, workspaceID, userID string) (*model.Workspace, error) {
	w, err := scanWorkspace(db.conn.QueryRowContext(ctx,
		`SELECT w.id, w.owner_id, w.name, w.is_default, w.created_at, w.updated_at
		 FROM workspaces w
		 JOIN workspace_members m ON m.workspace_id = w.id
		 WHERE w.id = ? AND m.user_id = ?`,
		workspaceID, userID,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("workspace", workspaceID)
		}
		return nil, fmt.Errorf("sqlite: getting workspace %s: %w", workspaceID, err)
	}
	return w, nil
}

// RenameWorkspace updates the workspace name.
func (db *DB) RenameWorkspace(ctx context.Context, workspaceID, name string) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE workspaces SET name = ?, updated_at = ? WHERE id = ?`,
		name, time.Now().UTC(), workspaceID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: renaming workspace %s: %w", workspaceID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("workspace", workspaceID)
	}
	return nil
}

// DeleteWorkspace deletes one workspace; members, repositories and rules
// cascade.
func (db *DB) DeleteWorkspace(ctx context.Context, workspaceID string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM workspaces WHERE id = ?`, workspaceID)
	if err != nil {
		return fmt.Errorf("sqlite: deleting workspace %s: %w", workspaceID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("workspace", workspaceID)
	}
	return nil
}

// DeleteWorkspaces batch-deletes workspaces by ID (admin path, user cleanup).
func (db *DB) DeleteWorkspaces(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(ids)-1) + "?"
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	_, err := db.conn.ExecContext(ctx,
		`DELETE FROM workspaces WHERE id IN (`+placeholders+`)`, args...,
	)
	if err != nil {
		return fmt.Errorf("sqlite: batch-deleting %d workspaces: %w", len(ids), err)
	}
	return nil
}

// ListMembers returns a workspace's members, owner first.
func (db *DB) ListMembers(ctx context.Context, workspaceID string) ([]model.WorkspaceMember, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT workspace_id, user_id, role, created_at
		 FROM workspace_members WHERE workspace_id = ?
		 ORDER BY created_at`,
		workspaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing members of %s: %w", workspaceID, err)
	}
	defer rows.Close()

	var out []model.WorkspaceMember
	for rows.Next() {
		var m model.WorkspaceMember
		if err := rows.Scan(&m.WorkspaceID, &m.UserID, &m.Role, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning member: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GetMember returns one membership row, or apperror.ErrNotFound.
func (db *DB) GetMember(ctx context.Context, workspaceID, userID string) (*model.WorkspaceMember, error) {
	var m model.WorkspaceMember
	err := db.conn.QueryRowContext(ctx,
		`SELECT workspace_id, user_id, role, created_at
		 FROM workspace_members WHERE workspace_id = ? AND user_id = ?`,
		workspaceID, userID,
	).Scan(&m.WorkspaceID, &m.UserID, &m.Role, &m.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("member", userID)
		}
		return nil, fmt.Errorf("sqlite: getting member %s of %s: %w", userID, workspaceID, err)
	}
	return &m, nil
}

// AddMember inserts a membership; duplicates are a conflict.
func (db *DB) AddMember(ctx context.Context, m *model.WorkspaceMember) error {
	m.CreatedAt = time.Now().UTC()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO workspace_members (workspace_id, user_id, role, created_at)
		 VALUES (?, ?, ?, ?)`,
		m.WorkspaceID, m.UserID, m.Role, m.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("member", m.UserID)
		}
		return fmt.Errorf("sqlite: adding member %s to %s: %w", m.UserID, m.WorkspaceID, err)
	}
	return nil
}

// RemoveMember deletes a membership row.
func (db *DB) RemoveMember(ctx context.Context, workspaceID, userID string) error {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM workspace_members WHERE workspace_id = ? AND user_id = ?`,
		workspaceID, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: removing member %s from %s: %w", userID, workspaceID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("member", userID)
	}
	return nil
}

// UpdateMemberRole changes a member's role.
func (db *DB) UpdateMemberRole(ctx context.Context, workspaceID, userID string, role model.MemberRole) error {
	res, err := db.conn.ExecContext(ctx,
		`UPDATE workspace_members SET role = ? WHERE workspace_id = ? AND user_id = ?`,
		role, workspaceID, userID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating role of %s in %s: %w", userID, workspaceID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("member", userID)
	}
	return nil
}

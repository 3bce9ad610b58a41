package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/rulescraft/cursorrulescraft/internal/apperror"
	"github.com/rulescraft/cursorrulescraft/internal/model"
)

const repositoryColumns = `id, workspace_id, name, full_name, provider, url, default_branch,
	is_private, language, topics, stars_count, forks_count, last_synced_at, created_at, updated_at`

// Topics are stored as a JSON array in a TEXT column — they're an opaque
// list we only ever read and write whole.
func encodeTopics(topics []string) (string, error) {
	if topics == nil {
		topics = []string{}
	}
	b, err := json.Marshal(topics)
	if err != nil {
		return "", fmt.Errorf("encoding topics: %w", err)
	}
	return string(b), nil
}

func scanRepository(row interface{ Scan(...any) error }) (*model.Repository, error) {
	var (
		r      model.Repository
		topics string
		synced sql.NullTime
	)
	err := row.Scan(
		&r.ID, &r.WorkspaceID, &r.Name, &r.FullName, &r.Provider, &r.URL,
		&r.DefaultBranch, &r.IsPrivate, &r.Language, &topics,
		&r.StarsCount, &r.ForksCount, &synced, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(topics), &r.Topics); err != nil {
		return nil, fmt.Errorf("decoding topics for %s: %w", r.ID, err)
	}
	if synced.Valid {
		t := synced.Time
		r.LastSyncedAt = &t
	}
	return &r, nil
}

// CreateRepository inserts a connected repository. A duplicate
// (workspace_id, full_name) pair is reported as apperror.ErrConflict.
func (db *DB) CreateRepository(ctx context.Context, repo *model.Repository) error {
	repo.ID = xid.New().String()
	now := time.Now().UTC()
	repo.CreatedAt = now
	repo.UpdatedAt = now

	topics, err := encodeTopics(repo.Topics)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO repositories (id, workspace_id, name, full_name, provider, url, default_branch,
			is_private, language, topics, stars_count, forks_count, last_synced_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		repo.ID, repo.WorkspaceID, repo.Name, repo.FullName, repo.Provider, repo.URL,
		repo.DefaultBranch, repo.IsPrivate, repo.Language, topics,
		repo.StarsCount, repo.ForksCount, nullableTime(repo.LastSyncedAt), repo.CreatedAt, repo.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("repository", repo.FullName)
		}
		return fmt.Errorf("sqlite: inserting repository %s: %w", repo.FullName, err)
	}
	return nil
}

// GetRepositoryByID fetches one repository row.
func (db *DB) GetRepositoryByID(ctx context.Context, id string) (*model.Repository, error) {
	r, err := scanRepository(db.conn.QueryRowContext(ctx,
		`SELECT `+repositoryColumns+` FROM repositories WHERE id = ?`, id,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("repository", id)
		}
		return nil, fmt.Errorf("sqlite: getting repository %s: %w", id, err)
	}
	return r, nil
}

// ListRepositories returns a workspace's connected repositories, newest
// first.
func (db *DB) ListRepositories(ctx context.Context, workspaceID string) ([]model.Repository, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+repositoryColumns+` FROM repositories
		 WHERE workspace_id = ? ORDER BY created_at DESC`,
		workspaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing repositories of %s: %w", workspaceID, err)
	}
	defer rows.Close()

	var out []model.Repository
	for rows.Next() {
		r, err := scanRepository(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning repository: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// UpdateRepository rewrites the mutable metadata fields of an existing row.
func (db *DB) UpdateRepository(ctx context.Context, repo *model.Repository) error {
	repo.UpdatedAt = time.Now().UTC()

	topics, err := encodeTopics(repo.Topics)
	if err != nil {
		return fmt.Errorf("sqlite: %w", err)
	}

	res, err := db.conn.ExecContext(ctx,
		`UPDATE repositories SET
			name = ?, full_name = ?, url = ?, default_branch = ?, is_private = ?,
			language = ?, topics = ?, stars_count = ?, forks_count = ?,
			last_synced_at = ?, updated_at = ?
		 WHERE id = ?`,
		repo.Name, repo.FullName, repo.URL, repo.DefaultBranch, repo.IsPrivate,
		repo.Language, topics, repo.StarsCount, repo.ForksCount,
		nullableTime(repo.LastSyncedAt), repo.UpdatedAt, repo.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating repository %s: %w", repo.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("repository", repo.ID)
	}
	return nil
}

// DeleteRepository removes one repository row; its rules cascade.
func (db *DB) DeleteRepository(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM repositories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting repository %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("repository", id)
	}
	return nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

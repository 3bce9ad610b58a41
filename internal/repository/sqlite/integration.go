package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rulescraft/cursorrulescraft/internal/apperror"
	"github.com/rulescraft/cursorrulescraft/internal/model"
)

// GetIntegration returns the user's stored credential for a provider, or
// apperror.ErrNotFound when none is linked. AccessToken comes back exactly
// as stored (ciphertext — the auth layer decrypts).
func (db *DB) GetIntegration(ctx context.Context, userID string, provider model.GitProvider) (*model.GitIntegration, error) {
	var ig model.GitIntegration
	err := db.conn.QueryRowContext(ctx,
		`SELECT user_id, provider, access_token, login, created_at, updated_at
		 FROM git_integrations WHERE user_id = ? AND provider = ?`,
		userID, provider,
	).Scan(&ig.UserID, &ig.Provider, &ig.AccessToken, &ig.Login, &ig.CreatedAt, &ig.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("integration", string(provider))
		}
		return nil, fmt.Errorf("sqlite: getting %s integration for %s: %w", provider, userID, err)
	}
	return &ig, nil
}

// UpsertIntegration stores or replaces the user's credential for a provider.
// Re-linking after a token expired overwrites in place.
func (db *DB) UpsertIntegration(ctx context.Context, ig *model.GitIntegration) error {
	now := time.Now().UTC()
	if ig.CreatedAt.IsZero() {
		ig.CreatedAt = now
	}
	ig.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO git_integrations (user_id, provider, access_token, login, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, provider) DO UPDATE SET
			access_token = excluded.access_token,
			login        = excluded.login,
			updated_at   = excluded.updated_at`,
		ig.UserID, ig.Provider, ig.AccessToken, ig.Login, ig.CreatedAt, ig.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting %s integration for %s: %w", ig.Provider, ig.UserID, err)
	}
	return nil
}

// DeleteIntegration removes the stored credential. Deleting a non-existent
// one is NotFound so the API can tell the user nothing was linked.
func (db *DB) DeleteIntegration(ctx context.Context, userID string, provider model.GitProvider) error {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM git_integrations WHERE user_id = ? AND provider = ?`,
		userID, provider,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting %s integration for %s: %w", provider, userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("integration", string(provider))
	}
	return nil
}

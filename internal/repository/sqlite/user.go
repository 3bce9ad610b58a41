package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rulescraft/cursorrulescraft/internal/apperror"
	"github.com/rulescraft/cursorrulescraft/internal/model"
)

// UpsertUser inserts the user row or refreshes its mutable profile fields.
//
// The primary key is the identity provider's user ID, so ON CONFLICT on the
// key is the natural upsert shape — no lookup round-trip. CreatedAt survives
// updates; everything else is the latest provider snapshot.
func (db *DB) UpsertUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, email, name, username, picture, locale, email_verified, provider, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			email          = excluded.email,
			name           = excluded.name,
			username       = excluded.username,
			picture        = excluded.picture,
			locale         = excluded.locale,
			email_verified = excluded.email_verified,
			provider       = excluded.provider,
			updated_at     = excluded.updated_at`,
		user.ID,
		user.Email,
		user.Name,
		user.Username,
		user.Picture,
		user.Locale,
		user.EmailVerified,
		user.Provider,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting user %s: %w", user.ID, err)
	}
	return nil
}

// GetUserByID retrieves a user by their identity-provider ID.
// Returns apperror.ErrNotFound if no such user exists.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	var u model.User

	err := db.conn.QueryRowContext(ctx,
		`SELECT id, email, name, username, picture, locale, email_verified, provider, created_at, updated_at
		 FROM users WHERE id = ?`,
		id,
	).Scan(
		&u.ID,
		&u.Email,
		&u.Name,
		&u.Username,
		&u.Picture,
		&u.Locale,
		&u.EmailVerified,
		&u.Provider,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}

	return &u, nil
}

// DeleteUser removes the user row. Memberships and the git integration
// cascade; owned workspaces are expected to be gone already (the lifecycle
// manager deletes them first, and the owner_id cascade covers stragglers).
func (db *DB) DeleteUser(ctx context.Context, id string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}
	return nil
}

// MarkDeliveryProcessed records a webhook delivery ID, returning true the
// first time and false on redelivery.
func (db *DB) MarkDeliveryProcessed(ctx context.Context, deliveryID string) (bool, error) {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO webhook_deliveries (id, processed_at) VALUES (?, ?)`,
		deliveryID, time.Now().UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("sqlite: recording delivery %s: %w", deliveryID, err)
	}
	return true, nil
}

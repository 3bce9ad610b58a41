package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/rulescraft/cursorrulescraft/internal/apperror"
	"github.com/rulescraft/cursorrulescraft/internal/model"
)

const ruleColumns = `id, repository_id, name, description, content, globs, always_apply, created_at, updated_at`

func scanRule(row interface{ Scan(...any) error }) (*model.Rule, error) {
	var r model.Rule
	err := row.Scan(
		&r.ID, &r.RepositoryID, &r.Name, &r.Description, &r.Content,
		&r.Globs, &r.AlwaysApply, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRule inserts a cursor rule under a repository.
func (db *DB) CreateRule(ctx context.Context, rule *model.Rule) error {
	rule.ID = xid.New().String()
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO rules (id, repository_id, name, description, content, globs, always_apply, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.RepositoryID, rule.Name, rule.Description, rule.Content,
		rule.Globs, rule.AlwaysApply, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting rule %s: %w", rule.Name, err)
	}
	return nil
}

// GetRuleByID fetches one rule.
func (db *DB) GetRuleByID(ctx context.Context, id string) (*model.Rule, error) {
	r, err := scanRule(db.conn.QueryRowContext(ctx,
		`SELECT `+ruleColumns+` FROM rules WHERE id = ?`, id,
	))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("rule", id)
		}
		return nil, fmt.Errorf("sqlite: getting rule %s: %w", id, err)
	}
	return r, nil
}

// ListRules returns a repository's rules, oldest first.
func (db *DB) ListRules(ctx context.Context, repositoryID string) ([]model.Rule, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+ruleColumns+` FROM rules WHERE repository_id = ? ORDER BY created_at`,
		repositoryID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing rules of %s: %w", repositoryID, err)
	}
	defer rows.Close()

	var out []model.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning rule: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// UpdateRule rewrites a rule's mutable fields.
func (db *DB) UpdateRule(ctx context.Context, rule *model.Rule) error {
	rule.UpdatedAt = time.Now().UTC()

	res, err := db.conn.ExecContext(ctx,
		`UPDATE rules SET name = ?, description = ?, content = ?, globs = ?, always_apply = ?, updated_at = ?
		 WHERE id = ?`,
		rule.Name, rule.Description, rule.Content, rule.Globs, rule.AlwaysApply, rule.UpdatedAt, rule.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating rule %s: %w", rule.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("rule", rule.ID)
	}
	return nil
}

// DeleteRule removes one rule.
func (db *DB) DeleteRule(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting rule %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("rule", id)
	}
	return nil
}

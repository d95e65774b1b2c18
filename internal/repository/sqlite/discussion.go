package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"
	"github.com/sakif/discussions/internal/apperror"
	"github.com/sakif/discussions/internal/model"
	"github.com/sakif/discussions/internal/repository"
)

// DiscussionDB implements repository.DiscussionRepository.
type DiscussionDB struct {
	db *DB
}

// Discussions returns the discussion repository view of the database.
func (db *DB) Discussions() *DiscussionDB { return &DiscussionDB{db: db} }

// compile-time check that *DiscussionDB implements the interface
var _ repository.DiscussionRepository = (*DiscussionDB)(nil)

// Create inserts a new discussion.
func (r *DiscussionDB) Create(ctx context.Context, d *model.Discussion) error {
	d.ID = xid.New().String()
	now := time.Now().UTC()
	d.CreatedAt = now
	d.UpdatedAt = now

	_, err := r.db.conn.ExecContext(ctx,
		`INSERT INTO discussions (id, user_id, title, body, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		d.ID, d.UserID, d.Title, d.Body, d.CreatedAt, d.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating discussion: %w", err)
	}
	return nil
}

// GetByID retrieves a single discussion, with its vote score aggregated in
// the same query.
func (r *DiscussionDB) GetByID(ctx context.Context, id string) (*model.Discussion, error) {
	var d model.Discussion
	err := r.db.conn.QueryRowContext(ctx,
		`SELECT d.id, d.user_id, d.title, d.body, d.created_at, d.updated_at,
		        COALESCE((SELECT SUM(v.value) FROM votes v
		                  WHERE v.target_type = 'discussion' AND v.target_id = d.id), 0)
		 FROM discussions d
		 WHERE d.id = ?`,
		id,
	).Scan(&d.ID, &d.UserID, &d.Title, &d.Body, &d.CreatedAt, &d.UpdatedAt, &d.Score)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("discussion", id)
		}
		return nil, fmt.Errorf("sqlite: getting discussion %s: %w", id, err)
	}
	return &d, nil
}

// List returns discussions newest-first.
func (r *DiscussionDB) List(ctx context.Context, opts repository.ListOptions) ([]model.Discussion, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT d.id, d.user_id, d.title, d.body, d.created_at, d.updated_at,
		        COALESCE((SELECT SUM(v.value) FROM votes v
		                  WHERE v.target_type = 'discussion' AND v.target_id = d.id), 0)
		 FROM discussions d
		 ORDER BY d.created_at DESC, d.id DESC
		 LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing discussions: %w", err)
	}
	defer rows.Close()

	discussions := []model.Discussion{}
	for rows.Next() {
		var d model.Discussion
		if err := rows.Scan(&d.ID, &d.UserID, &d.Title, &d.Body, &d.CreatedAt, &d.UpdatedAt, &d.Score); err != nil {
			return nil, fmt.Errorf("sqlite: scanning discussion: %w", err)
		}
		discussions = append(discussions, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating discussions: %w", err)
	}
	return discussions, nil
}

// Update persists title and body changes.
func (r *DiscussionDB) Update(ctx context.Context, d *model.Discussion) error {
	d.UpdatedAt = time.Now().UTC()
	res, err := r.db.conn.ExecContext(ctx,
		`UPDATE discussions SET title = ?, body = ?, updated_at = ? WHERE id = ?`,
		d.Title, d.Body, d.UpdatedAt, d.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating discussion %s: %w", d.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("discussion", d.ID)
	}
	return nil
}

// Delete removes a discussion along with its comments and votes.
func (r *DiscussionDB) Delete(ctx context.Context, id string) error {
	tx, err := r.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Comment votes first, then comments, then the discussion's own votes
	// and row. Foreign keys have no ON DELETE CASCADE here — deletion
	// ordering is the caller's responsibility.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM votes WHERE target_type = 'comment'
		 AND target_id IN (SELECT id FROM comments WHERE discussion_id = ?)`, id); err != nil {
		return fmt.Errorf("sqlite: deleting comment votes: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM comments WHERE discussion_id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting comments: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM votes WHERE target_type = 'discussion' AND target_id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting discussion votes: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM discussions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting discussion %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("discussion", id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing discussion delete: %w", err)
	}
	return nil
}

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

// CommentDB implements repository.CommentRepository.
type CommentDB struct {
	db *DB
}

// Comments returns the comment repository view of the database.
func (db *DB) Comments() *CommentDB { return &CommentDB{db: db} }

// compile-time check that *CommentDB implements the interface
var _ repository.CommentRepository = (*CommentDB)(nil)

// Create inserts a new comment.
func (r *CommentDB) Create(ctx context.Context, c *model.Comment) error {
	c.ID = xid.New().String()
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	_, err := r.db.conn.ExecContext(ctx,
		`INSERT INTO comments (id, discussion_id, user_id, body, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.DiscussionID, c.UserID, c.Body, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating comment: %w", err)
	}
	return nil
}

// GetByID retrieves a single comment.
func (r *CommentDB) GetByID(ctx context.Context, id string) (*model.Comment, error) {
	var c model.Comment
	err := r.db.conn.QueryRowContext(ctx,
		`SELECT c.id, c.discussion_id, c.user_id, c.body, c.created_at, c.updated_at,
		        COALESCE((SELECT SUM(v.value) FROM votes v
		                  WHERE v.target_type = 'comment' AND v.target_id = c.id), 0)
		 FROM comments c
		 WHERE c.id = ?`,
		id,
	).Scan(&c.ID, &c.DiscussionID, &c.UserID, &c.Body, &c.CreatedAt, &c.UpdatedAt, &c.Score)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("comment", id)
		}
		return nil, fmt.Errorf("sqlite: getting comment %s: %w", id, err)
	}
	return &c, nil
}

// ListByDiscussion returns a discussion's comments oldest-first (thread order).
func (r *CommentDB) ListByDiscussion(ctx context.Context, discussionID string) ([]model.Comment, error) {
	rows, err := r.db.conn.QueryContext(ctx,
		`SELECT c.id, c.discussion_id, c.user_id, c.body, c.created_at, c.updated_at,
		        COALESCE((SELECT SUM(v.value) FROM votes v
		                  WHERE v.target_type = 'comment' AND v.target_id = c.id), 0)
		 FROM comments c
		 WHERE c.discussion_id = ?
		 ORDER BY c.created_at ASC, c.id ASC`,
		discussionID,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing comments for %s: %w", discussionID, err)
	}
	defer rows.Close()

	comments := []model.Comment{}
	for rows.Next() {
		var c model.Comment
		if err := rows.Scan(&c.ID, &c.DiscussionID, &c.UserID, &c.Body, &c.CreatedAt, &c.UpdatedAt, &c.Score); err != nil {
			return nil, fmt.Errorf("sqlite: scanning comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating comments: %w", err)
	}
	return comments, nil
}

// Delete removes a comment and its votes.
func (r *CommentDB) Delete(ctx context.Context, id string) error {
	tx, err := r.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM votes WHERE target_type = 'comment' AND target_id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting comment votes: %w", err)
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting comment %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("comment", id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing comment delete: %w", err)
	}
	return nil
}

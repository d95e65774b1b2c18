package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sakif/discussions/internal/apperror"
	"github.com/sakif/discussions/internal/model"
	"github.com/sakif/discussions/internal/repository"
)

// VoteDB implements repository.VoteRepository.
type VoteDB struct {
	db *DB
}

// Votes returns the vote repository view of the database.
func (db *DB) Votes() *VoteDB { return &VoteDB{db: db} }

// compile-time check that *VoteDB implements the interface
var _ repository.VoteRepository = (*VoteDB)(nil)

// Get returns the user's vote on a target.
func (r *VoteDB) Get(ctx context.Context, userID string, target model.VoteTarget, targetID string) (*model.Vote, error) {
	var v model.Vote
	err := r.db.conn.QueryRowContext(ctx,
		`SELECT user_id, target_type, target_id, value, created_at
		 FROM votes WHERE user_id = ? AND target_type = ? AND target_id = ?`,
		userID, target, targetID,
	).Scan(&v.UserID, &v.TargetType, &v.TargetID, &v.Value, &v.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("vote", targetID)
		}
		return nil, fmt.Errorf("sqlite: getting vote: %w", err)
	}
	return &v, nil
}

// Set inserts or replaces the user's vote. ON CONFLICT on the composite
// primary key makes re-voting a single statement.
func (r *VoteDB) Set(ctx context.Context, vote *model.Vote) error {
	if vote.CreatedAt.IsZero() {
		vote.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.conn.ExecContext(ctx,
		`INSERT INTO votes (user_id, target_type, target_id, value, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(user_id, target_type, target_id) DO UPDATE SET value = excluded.value`,
		vote.UserID, vote.TargetType, vote.TargetID, vote.Value, vote.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting vote: %w", err)
	}
	return nil
}

// Delete removes the user's vote on a target. Idempotent.
func (r *VoteDB) Delete(ctx context.Context, userID string, target model.VoteTarget, targetID string) error {
	_, err := r.db.conn.ExecContext(ctx,
		`DELETE FROM votes WHERE user_id = ? AND target_type = ? AND target_id = ?`,
		userID, target, targetID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting vote: %w", err)
	}
	return nil
}

// Score sums vote values for a target. No rows means zero.
func (r *VoteDB) Score(ctx context.Context, target model.VoteTarget, targetID string) (int, error) {
	var score int
	err := r.db.conn.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(value), 0) FROM votes WHERE target_type = ? AND target_id = ?`,
		target, targetID,
	).Scan(&score)
	if err != nil {
		return 0, fmt.Errorf("sqlite: summing votes: %w", err)
	}
	return score, nil
}

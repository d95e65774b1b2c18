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

// TokenDB implements repository.TokenRepository.
type TokenDB struct {
	db *DB
}

// Tokens returns the verification-token repository view of the database.
func (db *DB) Tokens() *TokenDB { return &TokenDB{db: db} }

// compile-time check that *TokenDB implements repository.TokenRepository
var _ repository.TokenRepository = (*TokenDB)(nil)

// Create inserts a verification token row. No uniqueness on identifier —
// two concurrent forgot-password requests both land.
func (r *TokenDB) Create(ctx context.Context, token *model.VerificationToken) error {
	token.ID = xid.New().String()
	if token.CreatedAt.IsZero() {
		token.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.conn.ExecContext(ctx,
		`INSERT INTO verification_tokens (id, identifier, token_hash, expires, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		token.ID, token.Identifier, token.TokenHash, token.Expires, token.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting verification token: %w", err)
	}
	return nil
}

// GetLatestByIdentifier returns the most-recently-issued row for the email.
// Ordering by created_at then id makes the pick deterministic even when two
// rows share a timestamp (xid sorts by creation order within a process).
func (r *TokenDB) GetLatestByIdentifier(ctx context.Context, identifier string) (*model.VerificationToken, error) {
	var t model.VerificationToken
	err := r.db.conn.QueryRowContext(ctx,
		`SELECT id, identifier, token_hash, expires, created_at
		 FROM verification_tokens
		 WHERE identifier = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT 1`,
		identifier,
	).Scan(&t.ID, &t.Identifier, &t.TokenHash, &t.Expires, &t.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("verification token", identifier)
		}
		return nil, fmt.Errorf("sqlite: getting verification token: %w", err)
	}
	return &t, nil
}

// Delete removes a token row (single-use enforcement).
func (r *TokenDB) Delete(ctx context.Context, id string) error {
	if _, err := r.db.conn.ExecContext(ctx, `DELETE FROM verification_tokens WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting verification token: %w", err)
	}
	return nil
}

// DeleteExpired garbage-collects rows past their expiry.
func (r *TokenDB) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.conn.ExecContext(ctx,
		`DELETE FROM verification_tokens WHERE expires <= ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting expired verification tokens: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

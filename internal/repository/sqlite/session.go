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

// SessionDB implements repository.SessionRepository.
type SessionDB struct {
	db *DB
}

// Sessions returns the session repository view of the database.
func (db *DB) Sessions() *SessionDB { return &SessionDB{db: db} }

// compile-time check that *SessionDB implements repository.SessionRepository
var _ repository.SessionRepository = (*SessionDB)(nil)

// Create inserts a session row. The id is generated by the caller (the
// service owns the randomness requirements for session ids).
func (r *SessionDB) Create(ctx context.Context, session *model.Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.conn.ExecContext(ctx,
		`INSERT INTO sessions (id, user_id, expires, created_at) VALUES (?, ?, ?, ?)`,
		session.ID, session.UserID, session.Expires, session.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting session: %w", err)
	}
	return nil
}

// GetWithUser resolves a session id into the session and its user in one
// join. The expires > now filter is in the query itself, so an expired row
// that still physically exists behaves exactly like a missing row.
func (r *SessionDB) GetWithUser(ctx context.Context, id string, now time.Time) (*model.Session, *model.User, error) {
	var (
		s model.Session
		u model.User
	)
	err := r.db.conn.QueryRowContext(ctx,
		`SELECT s.id, s.user_id, s.expires, s.created_at,
		        u.id, u.name, u.email, u.verified_at, u.image, u.created_at, u.updated_at
		 FROM sessions s
		 JOIN users u ON u.id = s.user_id
		 WHERE s.id = ? AND s.expires > ?`,
		id, now.UTC(),
	).Scan(
		&s.ID, &s.UserID, &s.Expires, &s.CreatedAt,
		&u.ID, &u.Name, &u.Email, &u.VerifiedAt, &u.Image, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil, apperror.NotFound("session", id)
		}
		return nil, nil, fmt.Errorf("sqlite: getting session: %w", err)
	}
	return &s, &u, nil
}

// Delete removes a session. Idempotent: deleting a nonexistent id succeeds.
func (r *SessionDB) Delete(ctx context.Context, id string) error {
	if _, err := r.db.conn.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: deleting session: %w", err)
	}
	return nil
}

// DeleteOthers revokes every session of the user except keepID.
func (r *SessionDB) DeleteOthers(ctx context.Context, userID, keepID string) error {
	_, err := r.db.conn.ExecContext(ctx,
		`DELETE FROM sessions WHERE user_id = ? AND id != ?`, userID, keepID)
	if err != nil {
		return fmt.Errorf("sqlite: deleting other sessions for %s: %w", userID, err)
	}
	return nil
}

// DeleteExpired garbage-collects expired rows. GetWithUser never returns
// them anyway; this just keeps the table from growing forever.
func (r *SessionDB) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.conn.ExecContext(ctx,
		`DELETE FROM sessions WHERE expires <= ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting expired sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

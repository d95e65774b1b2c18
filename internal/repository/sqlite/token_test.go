package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sakif/discussions/internal/apperror"
	"github.com/sakif/discussions/internal/model"
)

func createTestToken(t *testing.T, db *DB, identifier, hash string, createdAt time.Time) *model.VerificationToken {
	t.Helper()
	token := &model.VerificationToken{
		Identifier: identifier,
		TokenHash:  hash,
		Expires:    createdAt.Add(time.Hour),
		CreatedAt:  createdAt,
	}
	if err := db.Tokens().Create(context.Background(), token); err != nil {
		t.Fatalf("failed to create test token: %v", err)
	}
	return token
}

// =========================================================================
// MOST-RECENT-WINS TESTS
// =========================================================================

func TestTokenGetLatestByIdentifier(t *testing.T) {
	db := newTestDB(t)
	now := time.Now().UTC()

	// Two outstanding tokens for the same email — no uniqueness enforced.
	createTestToken(t, db, "x@y.com", "hash-old", now.Add(-10*time.Minute))
	newest := createTestToken(t, db, "x@y.com", "hash-new", now)

	got, err := db.Tokens().GetLatestByIdentifier(context.Background(), "x@y.com")
	if err != nil {
		t.Fatalf("GetLatestByIdentifier() error = %v", err)
	}
	if got.ID != newest.ID {
		t.Errorf("GetLatestByIdentifier() picked %q, want the most-recently-issued %q", got.ID, newest.ID)
	}
	if got.TokenHash != "hash-new" {
		t.Errorf("TokenHash = %q, want %q", got.TokenHash, "hash-new")
	}
}

func TestTokenGetLatestByIdentifier_TieBreaksDeterministically(t *testing.T) {
	db := newTestDB(t)
	now := time.Now().UTC().Truncate(time.Second)

	// Same created_at: the id ordering (xid sorts by creation order within a
	// process) breaks the tie, so the pick is still the later insert.
	createTestToken(t, db, "tie@y.com", "hash-first", now)
	second := createTestToken(t, db, "tie@y.com", "hash-second", now)

	got, err := db.Tokens().GetLatestByIdentifier(context.Background(), "tie@y.com")
	if err != nil {
		t.Fatalf("GetLatestByIdentifier() error = %v", err)
	}
	if got.ID != second.ID {
		t.Errorf("GetLatestByIdentifier() picked %q, want %q", got.ID, second.ID)
	}
}

func TestTokenGetLatestByIdentifier_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.Tokens().GetLatestByIdentifier(context.Background(), "nobody@y.com")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetLatestByIdentifier() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// DELETE TESTS
// =========================================================================

func TestTokenDelete(t *testing.T) {
	db := newTestDB(t)
	token := createTestToken(t, db, "once@y.com", "hash", time.Now().UTC())

	if err := db.Tokens().Delete(context.Background(), token.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	_, err := db.Tokens().GetLatestByIdentifier(context.Background(), "once@y.com")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetLatestByIdentifier() after Delete() error = %v, want ErrNotFound", err)
	}
}

func TestTokenDeleteExpired(t *testing.T) {
	db := newTestDB(t)
	now := time.Now().UTC()

	// createTestToken gives each row a one-hour life from its createdAt.
	createTestToken(t, db, "fresh@y.com", "hash", now)
	createTestToken(t, db, "stale@y.com", "hash", now.Add(-2*time.Hour))

	n, err := db.Tokens().DeleteExpired(context.Background(), now)
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if n != 1 {
		t.Errorf("DeleteExpired() removed %d rows, want 1", n)
	}

	if _, err := db.Tokens().GetLatestByIdentifier(context.Background(), "fresh@y.com"); err != nil {
		t.Errorf("fresh token should survive GC, got: %v", err)
	}
}

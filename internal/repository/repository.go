// Package repository declares the persistence interfaces the service layer
// consumes. The sqlite subpackage provides the production implementation;
// tests substitute in-memory fakes.
package repository

import (
	"context"
	"time"

	"github.com/sakif/discussions/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// UserRepository persists identity records.
type UserRepository interface {
	// CreateWithCredential inserts the user and their credential account in
	// one transaction. Partial failure leaves neither row committed.
	// Returns apperror.ErrDuplicateEmail if the email is already taken.
	CreateWithCredential(ctx context.Context, user *model.User, passwordHash string) error

	// Create inserts a bare user (OAuth first-login path, no credential).
	Create(ctx context.Context, user *model.User) error

	GetByID(ctx context.Context, id string) (*model.User, error)

	// GetByEmail returns apperror.ErrNotFound when no user holds the email.
	GetByEmail(ctx context.Context, email string) (*model.User, error)

	// Update persists name, image and verified_at changes.
	Update(ctx context.Context, user *model.User) error
}

// AccountRepository persists credential and OAuth bindings.
type AccountRepository interface {
	// CreateOAuth inserts an oauth account row. Returns
	// apperror.ErrConflict when (provider, providerAccountID) is taken.
	CreateOAuth(ctx context.Context, account *model.Account) error

	// GetByProvider looks up an oauth account by its unique
	// (provider, providerAccountID) pair. apperror.ErrNotFound if absent.
	GetByProvider(ctx context.Context, provider, providerAccountID string) (*model.Account, error)

	// GetCredentialByUserID returns the user's credential account, or
	// apperror.ErrNotFound if the user is OAuth-only.
	GetCredentialByUserID(ctx context.Context, userID string) (*model.Account, error)

	UpdatePasswordHash(ctx context.Context, accountID, passwordHash string) error
}

// SessionRepository persists server-side sessions.
type SessionRepository interface {
	Create(ctx context.Context, session *model.Session) error

	// GetWithUser resolves a session id into the session and its user in a
	// single join, filtered by expires > now. An expired row behaves
	// identically to a missing one: apperror.ErrNotFound.
	GetWithUser(ctx context.Context, id string, now time.Time) (*model.Session, *model.User, error)

	// Delete is idempotent — deleting a nonexistent session is not an error.
	Delete(ctx context.Context, id string) error

	// DeleteOthers revokes every session of the user except keepID.
	DeleteOthers(ctx context.Context, userID, keepID string) error

	// DeleteExpired garbage-collects rows past their expiry.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// TokenRepository persists password-reset verification tokens.
type TokenRepository interface {
	Create(ctx context.Context, token *model.VerificationToken) error

	// GetLatestByIdentifier returns the most-recently-issued token row for
	// the identifier. Multiple outstanding rows per identifier are allowed;
	// most-recent-wins is the documented consumption policy.
	GetLatestByIdentifier(ctx context.Context, identifier string) (*model.VerificationToken, error)

	Delete(ctx context.Context, id string) error

	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// DiscussionRepository persists forum threads.
type DiscussionRepository interface {
	Create(ctx context.Context, d *model.Discussion) error
	GetByID(ctx context.Context, id string) (*model.Discussion, error)
	List(ctx context.Context, opts ListOptions) ([]model.Discussion, error)
	Update(ctx context.Context, d *model.Discussion) error
	Delete(ctx context.Context, id string) error
}

// CommentRepository persists replies.
type CommentRepository interface {
	Create(ctx context.Context, c *model.Comment) error
	GetByID(ctx context.Context, id string) (*model.Comment, error)
	ListByDiscussion(ctx context.Context, discussionID string) ([]model.Comment, error)
	Delete(ctx context.Context, id string) error
}

// VoteRepository persists votes and aggregates scores.
type VoteRepository interface {
	// Get returns the user's vote on a target, or apperror.ErrNotFound.
	Get(ctx context.Context, userID string, target model.VoteTarget, targetID string) (*model.Vote, error)

	// Set inserts or replaces the user's vote on a target.
	Set(ctx context.Context, vote *model.Vote) error

	Delete(ctx context.Context, userID string, target model.VoteTarget, targetID string) error

	// Score sums vote values for a target.
	Score(ctx context.Context, target model.VoteTarget, targetID string) (int, error)
}

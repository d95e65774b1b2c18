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

// AccountDB implements repository.AccountRepository.
type AccountDB struct {
	db *DB
}

// Accounts returns the account repository view of the database.
func (db *DB) Accounts() *AccountDB { return &AccountDB{db: db} }

// compile-time check that *AccountDB implements repository.AccountRepository
var _ repository.AccountRepository = (*AccountDB)(nil)

const accountColumns = `id, user_id, type, provider, provider_account_id, password_hash, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (*model.Account, error) {
	var a model.Account
	err := row.Scan(&a.ID, &a.UserID, &a.Type, &a.Provider, &a.ProviderAccountID,
		&a.PasswordHash, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateOAuth inserts an oauth account row. The partial unique index on
// (provider, provider_account_id) guarantees one external identity maps to
// at most one local account; a violation surfaces as ErrConflict instead of
// corrupting state.
func (r *AccountDB) CreateOAuth(ctx context.Context, account *model.Account) error {
	now := time.Now().UTC()
	account.ID = xid.New().String()
	account.Type = model.AccountTypeOAuth
	account.CreatedAt = now
	account.UpdatedAt = now

	_, err := r.db.conn.ExecContext(ctx,
		`INSERT INTO accounts (id, user_id, type, provider, provider_account_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		account.ID, account.UserID, account.Type, account.Provider,
		account.ProviderAccountID, account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "") {
			return apperror.Conflict("account", account.Provider+":"+account.ProviderAccountID)
		}
		return fmt.Errorf("sqlite: inserting oauth account: %w", err)
	}
	return nil
}

// GetByProvider looks up an oauth account by its unique provider pair.
func (r *AccountDB) GetByProvider(ctx context.Context, provider, providerAccountID string) (*model.Account, error) {
	row := r.db.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts
		 WHERE type = ? AND provider = ? AND provider_account_id = ?`,
		model.AccountTypeOAuth, provider, providerAccountID,
	)

	a, err := scanAccount(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("account", provider+":"+providerAccountID)
		}
		return nil, fmt.Errorf("sqlite: getting account %s:%s: %w", provider, providerAccountID, err)
	}
	return a, nil
}

// GetCredentialByUserID returns the user's credential account.
// An OAuth-only user gets ErrNotFound.
func (r *AccountDB) GetCredentialByUserID(ctx context.Context, userID string) (*model.Account, error) {
	row := r.db.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE type = ? AND user_id = ?`,
		model.AccountTypeCredential, userID,
	)

	a, err := scanAccount(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("credential account", userID)
		}
		return nil, fmt.Errorf("sqlite: getting credential account for %s: %w", userID, err)
	}
	return a, nil
}

// UpdatePasswordHash overwrites the stored form on a credential account.
func (r *AccountDB) UpdatePasswordHash(ctx context.Context, accountID, passwordHash string) error {
	res, err := r.db.conn.ExecContext(ctx,
		`UPDATE accounts SET password_hash = ?, updated_at = ? WHERE id = ? AND type = ?`,
		passwordHash, time.Now().UTC(), accountID, model.AccountTypeCredential,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating password hash for account %s: %w", accountID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperror.NotFound("credential account", accountID)
	}
	return nil
}

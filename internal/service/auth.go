// Package service holds the business logic layer. It sits between the HTTP
// handlers and the repositories:
//
//	handler (HTTP) → service (rules) → repository (DB)
//	              ↘ auth (hashing, OAuth, state)
//
// Services know nothing about HTTP and repositories know nothing about
// business rules, which keeps both ends testable in isolation.
package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"net/url"
	"time"

	"github.com/sakif/discussions/internal/apperror"
	"github.com/sakif/discussions/internal/auth"
	"github.com/sakif/discussions/internal/mailer"
	"github.com/sakif/discussions/internal/model"
	"github.com/sakif/discussions/internal/repository"
)

const (
	// sessionTTL is the fixed lifetime of a login session.
	sessionTTL = 30 * 24 * time.Hour

	// resetTokenTTL bounds how long a password-reset link stays usable.
	resetTokenTTL = time.Hour

	minPasswordLength = 8
)

// AuthService owns every authentication rule: registration, password login,
// the password-reset token lifecycle, OAuth account linking, and sessions.
type AuthService struct {
	users    repository.UserRepository
	accounts repository.AccountRepository
	sessions repository.SessionRepository
	tokens   repository.TokenRepository
	hasher   *auth.PasswordHasher
	mail     mailer.Mailer
	logger   *slog.Logger

	// baseURL is the externally visible origin used to build reset links,
	// e.g. "https://discussions.example".
	baseURL string

	// now is the clock. Injected so expiry rules are testable without
	// sleeping.
	now func() time.Time
}

// NewAuthService wires an AuthService. All dependencies are explicit — no
// ambient lookups — so tests run it against fakes.
func NewAuthService(
	users repository.UserRepository,
	accounts repository.AccountRepository,
	sessions repository.SessionRepository,
	tokens repository.TokenRepository,
	hasher *auth.PasswordHasher,
	mail mailer.Mailer,
	logger *slog.Logger,
	baseURL string,
) *AuthService {
	return &AuthService{
		users:    users,
		accounts: accounts,
		sessions: sessions,
		tokens:   tokens,
		hasher:   hasher,
		mail:     mail,
		logger:   logger,
		baseURL:  baseURL,
		now:      time.Now,
	}
}

// compile-time check that *AuthService satisfies the middleware's view
var _ auth.SessionResolver = (*AuthService)(nil)

// =========================================================================
// REGISTRATION AND PASSWORD LOGIN
// =========================================================================

// Register creates a user plus credential account atomically.
// Returns apperror.ErrDuplicateEmail when the email is already taken.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*model.User, error) {
	if name == "" {
		return nil, apperror.ValidationFailed("name", "name is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperror.ValidationFailed("email", "a valid email address is required")
	}
	if len(password) < minPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/auth: hashing password: %w", err)
	}

	user := &model.User{Name: name, Email: email}
	if err := s.users.CreateWithCredential(ctx, user, hash); err != nil {
		return nil, fmt.Errorf("service/auth: registering %s: %w", email, err)
	}

	s.logger.Info("user registered", slog.String("userID", user.ID))
	return user, nil
}

// LoginWithPassword resolves email+password to a user.
//
// Every failure mode — unknown email, OAuth-only account, wrong password —
// comes back as the same ErrInvalidCredentials, so response content can't
// be used to enumerate accounts. Only a malformed stored hash is different:
// that's an internal fault (ErrCorruptCredential), not a login failure.
func (s *AuthService) LoginWithPassword(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/auth: looking up %s: %w", email, err)
	}

	account, err := s.accounts.GetCredentialByUserID(ctx, user.ID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			// OAuth-only user; behaves like a wrong password.
			return nil, apperror.InvalidCredentials()
		}
		return nil, fmt.Errorf("service/auth: loading credential for %s: %w", user.ID, err)
	}

	ok, err := s.hasher.Verify(password, account.PasswordHash)
	if err != nil {
		if errors.Is(err, auth.ErrMalformedHash) {
			s.logger.Error("malformed stored password hash", slog.String("userID", user.ID))
			return nil, apperror.CorruptCredential(user.ID)
		}
		return nil, fmt.Errorf("service/auth: verifying password: %w", err)
	}
	if !ok {
		return nil, apperror.InvalidCredentials()
	}

	return user, nil
}

// ChangePassword rotates the password of a signed-in user after verifying
// the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID, current, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	account, err := s.accounts.GetCredentialByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("service/auth: loading credential for %s: %w", userID, err)
	}

	ok, err := s.hasher.Verify(current, account.PasswordHash)
	if err != nil {
		if errors.Is(err, auth.ErrMalformedHash) {
			return apperror.CorruptCredential(userID)
		}
		return fmt.Errorf("service/auth: verifying password: %w", err)
	}
	if !ok {
		return apperror.InvalidCredentials()
	}

	return s.updatePassword(ctx, account, newPassword)
}

// updatePassword re-hashes and overwrites the stored form on a credential
// account.
func (s *AuthService) updatePassword(ctx context.Context, account *model.Account, newPassword string) error {
	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("service/auth: hashing password: %w", err)
	}
	if err := s.accounts.UpdatePasswordHash(ctx, account.ID, hash); err != nil {
		return fmt.Errorf("service/auth: updating password: %w", err)
	}
	return nil
}

// GetUserByID returns the user for the given internal id.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: user ID must not be empty")
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// =========================================================================
// PASSWORD RESET TOKENS
// =========================================================================

// hashToken is the one-way stored form of a reset secret. SHA-256 is enough
// here (unlike passwords): the plaintext is 256 bits of randomness, so
// brute force over the hash is hopeless and a slow KDF buys nothing.
func hashToken(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])
}

// RequestPasswordReset issues a reset token for the email and mails the
// link. An unknown email silently succeeds — the forgot-password endpoint
// must not reveal which addresses are registered.
//
// A mail delivery failure is logged and returned, but the issued token
// stays valid until expiry regardless; the user can retry the mail without
// invalidating anything.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	if _, err := s.users.GetByEmail(ctx, email); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			s.logger.Info("password reset requested for unknown email")
			return nil
		}
		return fmt.Errorf("service/auth: looking up %s: %w", email, err)
	}

	plaintext, err := randomSecret()
	if err != nil {
		return fmt.Errorf("service/auth: generating reset token: %w", err)
	}

	token := &model.VerificationToken{
		Identifier: email,
		TokenHash:  hashToken(plaintext),
		Expires:    s.now().Add(resetTokenTTL),
		CreatedAt:  s.now(),
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return fmt.Errorf("service/auth: storing reset token: %w", err)
	}

	q := url.Values{}
	q.Set("email", email)
	q.Set("token", plaintext)
	link := s.baseURL + "/reset-password?" + q.Encode()
	err = s.mail.Send(ctx, mailer.Message{
		To:      email,
		Subject: "Reset your Discussions password",
		Body: "Someone (hopefully you) asked to reset the password for this email.\n\n" +
			"Use this link within the next hour:\n\n" + link + "\n\n" +
			"If this wasn't you, ignore this mail — nothing changes without the link.",
	})
	if err != nil {
		s.logger.Error("sending reset mail failed", slog.String("error", err.Error()))
		return fmt.Errorf("service/auth: sending reset mail: %w", err)
	}

	return nil
}

// ResetPassword consumes a reset token and overwrites the password.
//
// Consumption policy: only the most-recently-issued token row for the email
// is consulted. If none exists, it's expired, or the presented secret
// doesn't verify, the whole call fails with ErrTokenInvalid and nothing is
// deleted. On success the row is deleted first (single-use), then the
// password is updated — a second presentation of the same secret finds no
// row and fails.
//
// Completing a reset also proves mailbox ownership, so the user's email is
// marked verified as a side effect.
func (s *AuthService) ResetPassword(ctx context.Context, email, presented, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	token, err := s.tokens.GetLatestByIdentifier(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return apperror.TokenInvalid()
		}
		return fmt.Errorf("service/auth: loading reset token: %w", err)
	}

	if !s.now().Before(token.Expires) {
		return apperror.TokenInvalid()
	}

	// Compare hashes with a constant-time primitive, not ==. Both sides are
	// fixed-length hex, so length never short-circuits the comparison.
	if subtle.ConstantTimeCompare([]byte(hashToken(presented)), []byte(token.TokenHash)) != 1 {
		return apperror.TokenInvalid()
	}

	if err := s.tokens.Delete(ctx, token.ID); err != nil {
		return fmt.Errorf("service/auth: consuming reset token: %w", err)
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("service/auth: looking up %s: %w", email, err)
	}

	account, err := s.accounts.GetCredentialByUserID(ctx, user.ID)
	if err != nil {
		// An OAuth-only user followed a reset link; there is no credential
		// account to overwrite. The token is gone (it was valid and used),
		// but the operation cannot complete.
		return fmt.Errorf("service/auth: no credential account for %s: %w", user.ID, err)
	}

	if err := s.updatePassword(ctx, account, newPassword); err != nil {
		return err
	}

	if !user.EmailVerified() {
		now := s.now()
		user.VerifiedAt = &now
		if err := s.users.Update(ctx, user); err != nil {
			// Verification is a bonus; the reset itself already succeeded.
			s.logger.Warn("marking email verified failed", slog.String("userID", user.ID))
		}
	}

	s.logger.Info("password reset completed", slog.String("userID", user.ID))
	return nil
}

// =========================================================================
// OAUTH ACCOUNT LINKING
// =========================================================================

// LinkProviderAccount completes an OAuth callback: it resolves the provider
// profile and merges it with local records.
//
// Rules, in order:
//
//  1. An account row for (provider, externalID) already exists → re-login;
//     return its user. Idempotent.
//  2. A local user holds the profile's email but never verified it (and has
//     no account for this provider, or we'd have matched in 1) → refuse
//     with ErrAccountHijackRisk. Otherwise an attacker could pre-register a
//     victim's email and have the victim's OAuth login silently merge into
//     the attacker's account.
//  3. A verified local user holds the email → link: create the oauth
//     account bound to that user.
//  4. No local user holds the email → create one, carrying the provider's
//     emailVerified assertion, then create the oauth account.
func (s *AuthService) LinkProviderAccount(ctx context.Context, provider auth.Provider, code string) (*model.User, error) {
	profile, err := provider.Exchange(ctx, code)
	if err != nil {
		if errors.Is(err, auth.ErrNoEmail) {
			return nil, apperror.EmailNotFound(provider.Name())
		}
		s.logger.Error("oauth exchange failed",
			slog.String("provider", provider.Name()),
			slog.String("error", err.Error()),
		)
		return nil, apperror.OAuthExchange(provider.Name())
	}

	// Rule 1: existing binding wins.
	account, err := s.accounts.GetByProvider(ctx, provider.Name(), profile.ExternalID)
	if err == nil {
		user, err := s.users.GetByID(ctx, account.UserID)
		if err != nil {
			return nil, fmt.Errorf("service/auth: loading user for account %s: %w", account.ID, err)
		}
		return user, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/auth: looking up %s account: %w", provider.Name(), err)
	}

	user, err := s.users.GetByEmail(ctx, profile.Email)
	switch {
	case err == nil:
		// Rules 2 and 3.
		if !user.EmailVerified() {
			s.logger.Warn("refusing to link onto unverified local account",
				slog.String("provider", provider.Name()),
				slog.String("userID", user.ID),
			)
			return nil, apperror.AccountHijackRisk(profile.Email)
		}

	case errors.Is(err, apperror.ErrNotFound):
		// Rule 4: first login, create the user.
		user = &model.User{
			Name:  profile.Name,
			Email: profile.Email,
			Image: profile.Image,
		}
		if profile.EmailVerified {
			now := s.now()
			user.VerifiedAt = &now
		}
		if err := s.users.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("service/auth: creating user for %s login: %w", provider.Name(), err)
		}

	default:
		return nil, fmt.Errorf("service/auth: looking up user by email: %w", err)
	}

	newAccount := &model.Account{
		UserID:            user.ID,
		Provider:          provider.Name(),
		ProviderAccountID: profile.ExternalID,
	}
	if err := s.accounts.CreateOAuth(ctx, newAccount); err != nil {
		return nil, fmt.Errorf("service/auth: creating %s account: %w", provider.Name(), err)
	}

	s.logger.Info("provider account linked",
		slog.String("provider", provider.Name()),
		slog.String("userID", user.ID),
	)
	return user, nil
}

// =========================================================================
// SESSIONS
// =========================================================================

// Login creates a fresh session for the user. Concurrent logins from the
// same user create independent sessions (multi-device support).
func (s *AuthService) Login(ctx context.Context, userID string) (*model.Session, error) {
	id, err := randomSecret()
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating session id: %w", err)
	}

	session := &model.Session{
		ID:        id,
		UserID:    userID,
		Expires:   s.now().Add(sessionTTL),
		CreatedAt: s.now(),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("service/auth: creating session: %w", err)
	}
	return session, nil
}

// ResolveSession implements auth.SessionResolver: a cookie-carried session
// id becomes the session plus its user, or (nil, nil, nil) for anything
// that shouldn't count as signed in — unknown id, expired row, either way.
func (s *AuthService) ResolveSession(ctx context.Context, sessionID string) (*model.User, *model.Session, error) {
	session, user, err := s.sessions.GetWithUser(ctx, sessionID, s.now())
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("service/auth: resolving session: %w", err)
	}
	return user, session, nil
}

// Logout revokes one session. Idempotent.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("service/auth: deleting session: %w", err)
	}
	return nil
}

// LogoutOthers revokes every session of the user except the current one
// ("sign out all other devices").
func (s *AuthService) LogoutOthers(ctx context.Context, userID, currentSessionID string) error {
	if err := s.sessions.DeleteOthers(ctx, userID, currentSessionID); err != nil {
		return fmt.Errorf("service/auth: deleting other sessions: %w", err)
	}
	return nil
}

// PurgeExpired garbage-collects expired sessions and verification tokens.
// Lookups already filter by expiry; this only bounds table growth. Called
// periodically by the server.
func (s *AuthService) PurgeExpired(ctx context.Context) {
	now := s.now()
	if n, err := s.sessions.DeleteExpired(ctx, now); err != nil {
		s.logger.Error("purging expired sessions failed", slog.String("error", err.Error()))
	} else if n > 0 {
		s.logger.Debug("purged expired sessions", slog.Int64("count", n))
	}
	if n, err := s.tokens.DeleteExpired(ctx, now); err != nil {
		s.logger.Error("purging expired tokens failed", slog.String("error", err.Error()))
	} else if n > 0 {
		s.logger.Debug("purged expired tokens", slog.Int64("count", n))
	}
}

// randomSecret returns 32 bytes of crypto/rand entropy, hex encoded.
// Used for session ids and reset tokens — both are bearer secrets, so xid
// (which is guessable by design) is not an option here.
func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

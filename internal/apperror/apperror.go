package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrValidation = errors.New("validation error")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")

	// Authentication taxonomy. Handlers map these to HTTP status codes;
	// the service layer never sees an http.ResponseWriter.
	ErrDuplicateEmail     = errors.New("email already in use")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountHijackRisk  = errors.New("account hijack risk")
	ErrOAuthExchange      = errors.New("oauth exchange failed")
	ErrEmailNotFound      = errors.New("provider reported no email")
	ErrTokenInvalid       = errors.New("token expired or invalid")
	ErrCorruptCredential  = errors.New("stored credential is corrupt")
	ErrUnauthenticated    = errors.New("authentication required")
)

type AppError struct {
	Err     error  // sentinel this error wraps
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// Forbidden returns an AppError indicating the caller lacks permission.
// HTTP handlers map this to 403 Forbidden.
func Forbidden(message string) *AppError {
	return &AppError{
		Err:     ErrForbidden,
		Message: message,
	}
}

// DuplicateEmail is returned when registering with an email another user holds.
func DuplicateEmail(email string) *AppError {
	return &AppError{
		Err:     ErrDuplicateEmail,
		Message: fmt.Sprintf("an account with email %s already exists", email),
		Field:   "email",
	}
}

// InvalidCredentials covers both "no such user" and "wrong password".
// The two cases are deliberately indistinguishable so the login endpoint
// can't be used to enumerate registered emails.
func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Message: "invalid email or password",
	}
}

// AccountHijackRisk is returned when an OAuth login would silently take over
// a local account whose email was never verified. See the linking rules in
// service.AuthService.LinkProviderAccount.
func AccountHijackRisk(email string) *AppError {
	return &AppError{
		Err:     ErrAccountHijackRisk,
		Message: fmt.Sprintf("an unverified account with email %s already exists; sign in with your password first", email),
	}
}

// OAuthExchange wraps a provider-side failure during the code-for-token
// exchange or the profile fetch. The underlying cause is logged server-side,
// never shown to the client.
func OAuthExchange(provider string) *AppError {
	return &AppError{
		Err:     ErrOAuthExchange,
		Message: fmt.Sprintf("%s sign-in failed, please try again", provider),
	}
}

// EmailNotFound is returned when the OAuth provider reports no primary email
// for the authenticated user.
func EmailNotFound(provider string) *AppError {
	return &AppError{
		Err:     ErrEmailNotFound,
		Message: fmt.Sprintf("%s did not report an email address for your account", provider),
	}
}

// TokenInvalid covers every verification-token failure: unknown identifier,
// expired row, or a secret that does not verify. Callers get one
// undifferentiated message on purpose.
func TokenInvalid() *AppError {
	return &AppError{
		Err:     ErrTokenInvalid,
		Message: "this link is invalid or has expired",
	}
}

// CorruptCredential signals that a stored password hash could not be parsed.
// This is an internal fault, never user-triggerable in normal operation.
func CorruptCredential(userID string) *AppError {
	return &AppError{
		Err:     ErrCorruptCredential,
		Message: fmt.Sprintf("stored credential for user %s is malformed", userID),
	}
}

// Unauthenticated is raised when a route requires a signed-in user and the
// request has none. The HTTP layer turns it into a 401 or a login redirect.
func Unauthenticated() *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: "authentication required",
	}
}

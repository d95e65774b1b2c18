// Package model defines the data structures used throughout the application.
package model

import "time"

// User is an identity record. A user signs in either with a password or via
// an OAuth provider; the bindings themselves live in Account rows, so one
// User can hold a credential account plus any number of provider accounts.
//
// VerifiedAt is nil until the user proves ownership of the email — either by
// completing a password reset (which requires receiving mail at the address)
// or because an OAuth provider asserted the email as verified. The account
// linking rules depend on this field: an unverified local account is never
// silently merged with an incoming OAuth identity.
type User struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Email      string     `json:"email"`
	VerifiedAt *time.Time `json:"verifiedAt,omitempty"` // nil = email not verified
	Image      string     `json:"image,omitempty"`      // avatar URL, may be empty
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// EmailVerified reports whether the user's email has been verified.
func (u *User) EmailVerified() bool {
	return u.VerifiedAt != nil
}

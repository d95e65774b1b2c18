package model

import "time"

// VerificationToken is an ephemeral proof of email ownership used by the
// password reset flow. Identifier is the target email; TokenHash is the
// SHA-256 of the plaintext secret (the plaintext only ever travels inside
// the reset link, it is never persisted).
//
// No uniqueness is enforced on Identifier: two concurrent forgot-password
// requests both leave a row behind. Consumption deterministically consults
// the most-recently-issued row only, so the older secret is dead the moment
// a newer one is issued.
type VerificationToken struct {
	ID         string    `json:"id"`
	Identifier string    `json:"identifier"` // target email
	TokenHash  string    `json:"-"`
	Expires    time.Time `json:"expires"`
	CreatedAt  time.Time `json:"createdAt"`
}

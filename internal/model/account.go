package model

import "time"

// AccountType discriminates the two Account variants.
type AccountType string

const (
	// AccountTypeCredential is the password-based variant. At most one per
	// user; PasswordHash holds the scrypt stored form.
	AccountTypeCredential AccountType = "credential"

	// AccountTypeOAuth binds an external identity. Provider plus
	// ProviderAccountID is unique across the table — one external identity
	// maps to at most one local account.
	AccountTypeOAuth AccountType = "oauth"
)

// Account is a credential or OAuth identity binding attached to exactly one
// User. The variant decides which fields are populated:
//
//	credential → PasswordHash
//	oauth      → Provider, ProviderAccountID
//
// PasswordHash is never serialized to JSON.
type Account struct {
	ID                string      `json:"id"`
	UserID            string      `json:"userId"`
	Type              AccountType `json:"type"`
	Provider          string      `json:"provider,omitempty"`          // e.g. "github"
	ProviderAccountID string      `json:"providerAccountId,omitempty"` // provider's stable user id
	PasswordHash      string      `json:"-"`
	CreatedAt         time.Time   `json:"createdAt"`
	UpdatedAt         time.Time   `json:"updatedAt"`
}

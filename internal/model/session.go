package model

import "time"

// Session is a server-side record backing an authenticated browser state.
// The ID is an opaque, unguessable secret delivered to the client in an
// HttpOnly cookie; there is nothing to decode in it and no signature — the
// database row is the source of truth, which is what makes revocation
// ("sign out other devices") immediate.
//
// A row whose Expires is in the past is treated exactly like a missing row.
type Session struct {
	ID        string    `json:"-"` // never serialized — it IS the credential
	UserID    string    `json:"userId"`
	Expires   time.Time `json:"expires"`
	CreatedAt time.Time `json:"createdAt"`
}

// Expired reports whether the session is past its expiry at the given time.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.Expires)
}

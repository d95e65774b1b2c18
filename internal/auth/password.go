// Package auth provides the security primitives behind login: password
// hashing, the OAuth provider adapter, signed OAuth state, and the
// session-resolving HTTP middleware.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// ErrMalformedHash is returned by Verify when the stored form cannot be
// parsed. This is an internal fault (corrupt row, bad migration) — a wrong
// password is NOT an error, it is a false return.
var ErrMalformedHash = errors.New("auth: malformed password hash")

// scrypt parameters. N=2^15 with r=8 costs ~32MB of memory per hash, which
// is the point: memory-hard functions make GPU/ASIC brute force expensive.
// Do not lower these outside of tests.
const (
	defaultN      = 32768 // CPU/memory cost, must be a power of two
	defaultR      = 8     // block size
	defaultP      = 1     // parallelism
	saltLength    = 16
	derivedKeyLen = 32
)

// PasswordHasher derives and verifies scrypt password hashes.
//
// The stored form is "saltHex:keyHex" — a per-call random salt and the
// derived key, hex encoded. The scrypt cost parameters are fixed by the
// hasher, not embedded in the stored form, so all rows in one deployment
// share the same parameters.
//
// It's a struct (not free functions) so the cost can be injected in tests —
// scrypt at production cost takes tens of milliseconds per call.
type PasswordHasher struct {
	n, r, p int
}

// NewPasswordHasher returns a PasswordHasher with production cost parameters.
func NewPasswordHasher() *PasswordHasher {
	return &PasswordHasher{n: defaultN, r: defaultR, p: defaultP}
}

// NewPasswordHasherForTest returns a hasher with the cheapest parameters
// scrypt accepts. Hashing drops from ~50ms to well under 1ms.
//
// Do NOT use in production.
func NewPasswordHasherForTest() *PasswordHasher {
	return &PasswordHasher{n: 1024, r: 8, p: 1}
}

// Hash derives a stored form for the given plaintext.
//
// Each call generates a fresh random salt, so hashing the same password
// twice yields two different stored forms — both of which verify.
func (h *PasswordHasher) Hash(plaintext string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("auth: generating salt: %w", err)
	}

	key, err := scrypt.Key([]byte(plaintext), salt, h.n, h.r, h.p, derivedKeyLen)
	if err != nil {
		return "", fmt.Errorf("auth: deriving key: %w", err)
	}

	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(key), nil
}

// Verify reports whether plaintext matches the stored form.
//
// A wrong password returns (false, nil). The only error condition is a
// stored form that cannot be parsed (ErrMalformedHash) — that means the
// database row is corrupt, not that the caller typed the wrong password.
//
// The derived keys are compared with subtle.ConstantTimeCompare, never with
// ==, so response time leaks nothing about how many bytes matched.
func (h *PasswordHasher) Verify(plaintext, stored string) (bool, error) {
	saltHex, keyHex, ok := strings.Cut(stored, ":")
	if !ok {
		return false, ErrMalformedHash
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil || len(salt) == 0 {
		return false, ErrMalformedHash
	}

	want, err := hex.DecodeString(keyHex)
	if err != nil || len(want) == 0 {
		return false, ErrMalformedHash
	}

	got, err := scrypt.Key([]byte(plaintext), salt, h.n, h.r, h.p, len(want))
	if err != nil {
		return false, fmt.Errorf("auth: deriving key: %w", err)
	}

	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

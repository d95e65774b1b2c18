package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// stateTTL bounds how long an OAuth consent screen can sit open before the
// callback is rejected. Long enough to read the GitHub prompt, short enough
// to limit replay.
const stateTTL = 10 * time.Minute

const stateIssuer = "discussions"

// StateService signs and validates the OAuth `state` parameter.
//
// The state is a short-lived HS256 JWT carrying a random nonce and an
// optional return-to path. Signing it means a forged or tampered state fails
// validation before we ever talk to the provider; the nonce is additionally
// mirrored into a SameSite cookie so the callback can prove it was issued to
// this same browser (CSRF protection — an attacker cannot complete an OAuth
// flow they didn't start in the victim's browser).
type StateService struct {
	secret []byte
}

// NewStateService creates a StateService with the given HMAC secret.
// The secret should be at least 32 bytes of random data in production.
func NewStateService(secret string) (*StateService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: state secret must be at least 16 characters")
	}
	return &StateService{secret: []byte(secret)}, nil
}

// StateClaims is the payload of a signed OAuth state.
type StateClaims struct {
	// ReturnTo is the path to land on after a successful login, e.g. the
	// page that triggered the forced-auth redirect. Only same-site paths
	// are honored — the login handler rejects absolute URLs.
	ReturnTo string `json:"rt,omitempty"`
	jwt.RegisteredClaims
}

// Issue signs a new state token. The returned nonce must be stored in a
// cookie and checked against the validated state on callback.
func (s *StateService) Issue(returnTo string) (state, nonce string, err error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", "", fmt.Errorf("auth: generating state nonce: %w", err)
	}
	nonce = hex.EncodeToString(buf)

	now := time.Now()
	c := StateClaims{
		ReturnTo: sanitizeReturnTo(returnTo),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        nonce,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
			Issuer:    stateIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	state, err = token.SignedString(s.secret)
	if err != nil {
		return "", "", fmt.Errorf("auth: signing state: %w", err)
	}

	return state, nonce, nil
}

// Validate parses and verifies a state token, returning its claims.
// The caller must still compare claims.ID against the nonce cookie.
func (s *StateService) Validate(state string) (*StateClaims, error) {
	token, err := jwt.ParseWithClaims(
		state,
		&StateClaims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("auth: state expired")
		}
		return nil, fmt.Errorf("auth: invalid state: %w", err)
	}

	c, ok := token.Claims.(*StateClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid state claims")
	}
	if c.ID == "" {
		return nil, fmt.Errorf("auth: state has no nonce")
	}

	return c, nil
}

// sanitizeReturnTo keeps only same-site absolute paths. Anything else
// ("https://evil.example", "//evil.example", "javascript:...") is dropped so
// the post-login redirect can't be used as an open redirect.
func sanitizeReturnTo(p string) string {
	if !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") {
		return ""
	}
	return p
}

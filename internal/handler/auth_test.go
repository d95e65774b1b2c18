package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/discussions/internal/auth"
	"github.com/sakif/discussions/internal/handler"
	"github.com/sakif/discussions/internal/mailer"
	"github.com/sakif/discussions/internal/model"
	"github.com/sakif/discussions/internal/repository/sqlite"
	"github.com/sakif/discussions/internal/service"
)

// recordingMailer captures outgoing mail so tests can fish the reset token
// out of the link.
type recordingMailer struct {
	sent []mailer.Message
}

func (m *recordingMailer) Send(_ context.Context, msg mailer.Message) error {
	m.sent = append(m.sent, msg)
	return nil
}

// stubProvider plays GitHub without the network round trips.
type stubProvider struct {
	profile auth.Profile
}

func (p *stubProvider) Name() string { return "github" }

func (p *stubProvider) AuthURL(state string) string {
	return "https://github.example/authorize?state=" + url.QueryEscape(state)
}
func (p *stubProvider) Exchange(_ context.Context, _ string) (*auth.Profile, error) {
	profile := p.profile
	return &profile, nil
}

type authTestEnv struct {
	router   *chi.Mux
	handler  *handler.AuthHandler
	authSvc  *service.AuthService
	mail     *recordingMailer
	provider *stubProvider
}

// newAuthEnv wires the real stack — sqlite in-memory, real services — behind
// the routes the server mounts, minus rate limiting.
func newAuthEnv(t *testing.T) *authTestEnv {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	mail := &recordingMailer{}
	authSvc := service.NewAuthService(
		db.Users(), db.Accounts(), db.Sessions(), db.Tokens(),
		auth.NewPasswordHasherForTest(), mail, logger,
		"http://localhost:8080",
	)

	state, err := auth.NewStateService("test-state-secret-test-state-secret")
	require.NoError(t, err)

	provider := &stubProvider{profile: auth.Profile{
		ExternalID:    "9001",
		Name:          "Octo Cat",
		Email:         "octo@example.com",
		EmailVerified: true,
	}}

	h := handler.NewAuthHandler(authSvc, provider, state, logger, false)

	r := chi.NewRouter()
	r.Use(auth.WithUser(authSvc))
	r.Post("/auth/register", h.HandleRegister)
	r.Post("/auth/login", h.HandleLogin)
	r.Post("/auth/logout", h.HandleLogout)
	r.Post("/auth/logout-others", h.HandleLogoutOthers)
	r.Get("/auth/github/login", h.HandleOAuthLogin)
	r.Get("/auth/github/callback", h.HandleOAuthCallback)
	r.Get("/api/me", h.HandleMe)

	return &authTestEnv{router: r, handler: h, authSvc: authSvc, mail: mail, provider: provider}
}

func (env *authTestEnv) do(method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	return rr
}

func sessionCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == auth.SessionCookie && c.Value != "" {
			return c
		}
	}
	t.Fatal("response set no session cookie")
	return nil
}

func TestRegisterLoginFlow(t *testing.T) {
	env := newAuthEnv(t)

	// Register: 201, user JSON, session cookie.
	rr := env.do(http.MethodPost, "/auth/register",
		`{"name":"Ada","email":"ada@example.com","password":"correct horse"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var user model.User
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&user))
	assert.Equal(t, "ada@example.com", user.Email)
	cookie := sessionCookie(t, rr)
	assert.True(t, cookie.HttpOnly, "session cookie must be HttpOnly")

	// The cookie authenticates /api/me.
	rr = env.do(http.MethodGet, "/api/me", "", cookie)
	require.Equal(t, http.StatusOK, rr.Code)

	// Without it, /api/me is anonymous.
	rr = env.do(http.MethodGet, "/api/me", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	// Fresh login works and issues a distinct session.
	rr = env.do(http.MethodPost, "/auth/login",
		`{"email":"ada@example.com","password":"correct horse"}`)
	require.Equal(t, http.StatusOK, rr.Code)
	second := sessionCookie(t, rr)
	assert.NotEqual(t, cookie.Value, second.Value)
}

func TestLogin_BadCredentials(t *testing.T) {
	env := newAuthEnv(t)
	env.do(http.MethodPost, "/auth/register",
		`{"name":"Ada","email":"ada@example.com","password":"correct horse"}`)

	rr := env.do(http.MethodPost, "/auth/login",
		`{"email":"ada@example.com","password":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	var resp handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "invalid_credentials", resp.Error)

	// Unknown email gets the identical error key.
	rr = env.do(http.MethodPost, "/auth/login",
		`{"email":"nobody@example.com","password":"whatever"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "invalid_credentials", resp.Error)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	env := newAuthEnv(t)
	env.do(http.MethodPost, "/auth/register",
		`{"name":"Ada","email":"ada@example.com","password":"correct horse"}`)

	rr := env.do(http.MethodPost, "/auth/register",
		`{"name":"Imposter","email":"ada@example.com","password":"other pass"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)
}

func TestLogout(t *testing.T) {
	env := newAuthEnv(t)
	rr := env.do(http.MethodPost, "/auth/register",
		`{"name":"Ada","email":"ada@example.com","password":"correct horse"}`)
	cookie := sessionCookie(t, rr)

	rr = env.do(http.MethodPost, "/auth/logout", "", cookie)
	require.Equal(t, http.StatusNoContent, rr.Code)

	// The session no longer resolves.
	rr = env.do(http.MethodGet, "/api/me", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	// Logging out again (or with no cookie at all) still succeeds.
	rr = env.do(http.MethodPost, "/auth/logout", "", cookie)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = env.do(http.MethodPost, "/auth/logout", "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestLogoutOthers(t *testing.T) {
	env := newAuthEnv(t)
	env.do(http.MethodPost, "/auth/register",
		`{"name":"Ada","email":"ada@example.com","password":"correct horse"}`)

	login := func() *http.Cookie {
		rr := env.do(http.MethodPost, "/auth/login",
			`{"email":"ada@example.com","password":"correct horse"}`)
		require.Equal(t, http.StatusOK, rr.Code)
		return sessionCookie(t, rr)
	}
	laptop := login()
	phone := login()

	rr := env.do(http.MethodPost, "/auth/logout-others", "", laptop)
	require.Equal(t, http.StatusNoContent, rr.Code)

	rr = env.do(http.MethodGet, "/api/me", "", laptop)
	assert.Equal(t, http.StatusOK, rr.Code, "current session must survive")
	rr = env.do(http.MethodGet, "/api/me", "", phone)
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "other sessions must be revoked")
}

func TestOAuthFlow(t *testing.T) {
	env := newAuthEnv(t)

	// Step 1: the login redirect carries signed state and parks a nonce.
	rr := env.do(http.MethodGet, "/auth/github/login?next=/discussions/42", "")
	require.Equal(t, http.StatusFound, rr.Code)

	location, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")
	require.NotEmpty(t, state)

	var nonce *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == "oauth_nonce" {
			nonce = c
		}
	}
	require.NotNil(t, nonce, "login must set the nonce cookie")

	// Step 2: the callback links the account, starts a session, and honors
	// the sanitized return path.
	rr = env.do(http.MethodGet,
		"/auth/github/callback?code=fake-code&state="+url.QueryEscape(state), "", nonce)
	require.Equal(t, http.StatusFound, rr.Code, rr.Body.String())
	assert.Equal(t, "/discussions/42", rr.Header().Get("Location"))

	cookie := sessionCookie(t, rr)
	rr = env.do(http.MethodGet, "/api/me", "", cookie)
	require.Equal(t, http.StatusOK, rr.Code)

	var user model.User
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&user))
	assert.Equal(t, "octo@example.com", user.Email)
	assert.NotNil(t, user.VerifiedAt, "provider-verified email should carry over")
}

func TestOAuthCallback_RejectsMissingNonce(t *testing.T) {
	env := newAuthEnv(t)

	rr := env.do(http.MethodGet, "/auth/github/login", "")
	location, err := url.Parse(rr.Header().Get("Location"))
	require.NoError(t, err)
	state := location.Query().Get("state")

	// Valid state but no nonce cookie: a cross-site replay of the callback.
	rr = env.do(http.MethodGet,
		"/auth/github/callback?code=fake-code&state="+url.QueryEscape(state), "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestOAuthCallback_RejectsForgedState(t *testing.T) {
	env := newAuthEnv(t)

	rr := env.do(http.MethodGet, "/auth/github/callback?code=x&state=forged", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestOAuthCallback_HijackRisk(t *testing.T) {
	env := newAuthEnv(t)

	// A local, unverified account already holds the provider email.
	env.do(http.MethodPost, "/auth/register",
		`{"name":"Squatter","email":"octo@example.com","password":"squatted pass"}`)

	rr := env.do(http.MethodGet, "/auth/github/login", "")
	location, _ := url.Parse(rr.Header().Get("Location"))
	state := location.Query().Get("state")
	var nonce *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == "oauth_nonce" {
			nonce = c
		}
	}

	rr = env.do(http.MethodGet,
		"/auth/github/callback?code=fake-code&state="+url.QueryEscape(state), "", nonce)
	assert.Equal(t, http.StatusConflict, rr.Code)

	var resp handler.ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "account_hijack_risk", resp.Error)
}

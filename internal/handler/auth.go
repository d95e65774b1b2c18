package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/discussions/internal/apperror"
	"github.com/sakif/discussions/internal/auth"
	"github.com/sakif/discussions/internal/service"
)

// nonceCookie carries the CSRF nonce across the OAuth redirect round trip.
// The state parameter travels via the provider; the nonce travels via the
// browser. Only the browser that started the flow holds both.
const nonceCookie = "oauth_nonce"

// AuthHandler exposes registration, login, password reset, and the OAuth
// flow over HTTP. All account rules live in the service; this layer only
// parses requests, moves cookies, and maps errors.
type AuthHandler struct {
	auth     *service.AuthService
	provider auth.Provider
	state    *auth.StateService
	logger   *slog.Logger

	// secureCookies is false only in local development over plain HTTP.
	secureCookies bool
}

func NewAuthHandler(
	authSvc *service.AuthService,
	provider auth.Provider,
	state *auth.StateService,
	logger *slog.Logger,
	secureCookies bool,
) *AuthHandler {
	return &AuthHandler{
		auth:          authSvc,
		provider:      provider,
		state:         state,
		logger:        logger,
		secureCookies: secureCookies,
	}
}

// =========================================================================
// COOKIE PLUMBING
// =========================================================================

func (h *AuthHandler) setSessionCookie(w http.ResponseWriter, sessionID string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    sessionID,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// startSession creates a session for the user and installs its cookie.
func (h *AuthHandler) startSession(w http.ResponseWriter, r *http.Request, userID string) error {
	session, err := h.auth.Login(r.Context(), userID)
	if err != nil {
		return err
	}
	h.setSessionCookie(w, session.ID, session.Expires)
	return nil
}

// =========================================================================
// REGISTRATION AND PASSWORD LOGIN
// =========================================================================

// HandleRegister creates an account and signs the new user in.
//
// HTTP: POST /auth/register
// BODY: {"name": "...", "email": "...", "password": "..."}
func (h *AuthHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	user, err := h.auth.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.startSession(w, r, user.ID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// HandleLogin signs in with email and password.
//
// HTTP: POST /auth/login
// BODY: {"email": "...", "password": "..."}
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	user, err := h.auth.LoginWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.startSession(w, r, user.ID); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// HandleLogout revokes the current session. Safe to call without one.
//
// HTTP: POST /auth/logout
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(auth.SessionCookie); err == nil && cookie.Value != "" {
		if err := h.auth.Logout(r.Context(), cookie.Value); err != nil {
			writeError(w, err)
			return
		}
	}
	h.clearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// HandleLogoutOthers revokes every session except the calling one.
//
// HTTP: POST /auth/logout-others (requires auth)
func (h *AuthHandler) HandleLogoutOthers(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	session, ok2 := auth.SessionFromContext(r.Context())
	if !ok || !ok2 {
		writeError(w, apperror.Unauthenticated())
		return
	}

	if err := h.auth.LogoutOthers(r.Context(), user.ID, session.ID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =========================================================================
// PASSWORD RESET
// =========================================================================

// HandleForgotPassword mails a reset link.
//
// HTTP: POST /auth/forgot-password
// BODY: {"email": "..."}
//
// Responds 202 whether or not the email is registered. The response body
// must be indistinguishable for both cases.
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	if err := h.auth.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// HandleResetPassword consumes a mailed token and sets a new password.
//
// HTTP: POST /auth/reset-password
// BODY: {"email": "...", "token": "...", "password": "..."}
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	if err := h.auth.ResetPassword(r.Context(), req.Email, req.Token, req.Password); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =========================================================================
// OAUTH FLOW
// =========================================================================

// HandleOAuthLogin starts the provider flow: issue signed state, park the
// nonce in a cookie, bounce the browser to the consent screen.
//
// HTTP: GET /auth/github/login?next=/some/path
func (h *AuthHandler) HandleOAuthLogin(w http.ResponseWriter, r *http.Request) {
	state, nonce, err := h.state.Issue(r.URL.Query().Get("next"))
	if err != nil {
		h.logger.Error("issuing oauth state failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     nonceCookie,
		Value:    nonce,
		Path:     "/auth",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, h.provider.AuthURL(state), http.StatusFound)
}

// HandleOAuthCallback finishes the provider flow: verify state against the
// nonce cookie, link the provider account, start a session, and send the
// browser back where it came from.
//
// HTTP: GET /auth/github/callback?code=...&state=...
func (h *AuthHandler) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	claims, err := h.state.Validate(r.URL.Query().Get("state"))
	if err != nil {
		writeError(w, apperror.TokenInvalid())
		return
	}

	// The state signature alone only proves WE issued it; matching the nonce
	// cookie proves THIS browser started the flow.
	cookie, err := r.Cookie(nonceCookie)
	if err != nil || cookie.Value != claims.ID {
		writeError(w, apperror.TokenInvalid())
		return
	}

	// Clear the nonce — each flow gets a fresh one.
	http.SetCookie(w, &http.Cookie{
		Name: nonceCookie, Value: "", Path: "/auth", MaxAge: -1,
		HttpOnly: true, Secure: h.secureCookies, SameSite: http.SameSiteLaxMode,
	})

	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		h.logger.Warn("provider returned an error",
			slog.String("provider", h.provider.Name()),
			slog.String("error", errMsg),
		)
		writeError(w, apperror.OAuthExchange(h.provider.Name()))
		return
	}

	user, err := h.auth.LinkProviderAccount(r.Context(), h.provider, r.URL.Query().Get("code"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.startSession(w, r, user.ID); err != nil {
		writeError(w, err)
		return
	}

	returnTo := claims.ReturnTo
	if returnTo == "" {
		returnTo = "/"
	}
	http.Redirect(w, r, returnTo, http.StatusFound)
}

// =========================================================================
// CURRENT USER
// =========================================================================

// HandleMe returns the signed-in user.
//
// HTTP: GET /api/me (requires auth)
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthenticated())
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// HandleChangePassword rotates the signed-in user's password.
//
// HTTP: POST /api/me/password (requires auth)
// BODY: {"currentPassword": "...", "newPassword": "..."}
func (h *AuthHandler) HandleChangePassword(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthenticated())
		return
	}

	var req struct {
		CurrentPassword string `json:"currentPassword"`
		NewPassword     string `json:"newPassword"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperror.ValidationFailed("body", "invalid JSON body"))
		return
	}

	if err := h.auth.ChangePassword(r.Context(), user.ID, req.CurrentPassword, req.NewPassword); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package auth

import (
	"context"
	"net/http"
	"net/url"

	"github.com/sakif/discussions/internal/model"
)

// SessionCookie is the name of the cookie carrying the opaque session id.
const SessionCookie = "session"

// contextKey is an unexported type for context keys in this package, so no
// other package can read or shadow the values we store.
type contextKey int

const (
	userKey contextKey = iota
	sessionKey
)

// SessionResolver turns a cookie-carried session id into the session and its
// user. Implemented by service.AuthService; an interface here keeps the
// middleware free of a dependency on the service package (and trivially
// testable with a fake).
//
// A missing, expired, or unknown session resolves to (nil, nil, nil) —
// anonymous is not an error.
type SessionResolver interface {
	ResolveSession(ctx context.Context, sessionID string) (*model.User, *model.Session, error)
}

// WithUser resolves the session cookie once per request and stores the
// resulting user and session in the request context. Anonymous requests pass
// through with no context user; only a failing resolver (e.g. the database is
// down) stops the request, with a 500.
//
// Mount this globally; RequireUser then only has to check the context.
func WithUser(sessions SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(SessionCookie)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			user, session, err := sessions.ResolveSession(r.Context(), cookie.Value)
			if err != nil {
				// The resolver couldn't answer; degrading to anonymous here
				// would turn an outage into a misleading 401 downstream.
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				w.Write([]byte(`{"error":"internal_error","message":"An internal error occurred"}`))
				return
			}
			if user == nil {
				// A stale cookie pointing at a deleted or expired session is
				// normal; the request proceeds anonymous.
				next.ServeHTTP(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			ctx = context.WithValue(ctx, sessionKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUser enforces authentication on protected routes.
//
// If loginPath is non-empty, unauthenticated requests are redirected there
// with the original target in a `next` query parameter (browser flows). With
// an empty loginPath the middleware answers 401 with a JSON body (API flows).
func RequireUser(loginPath string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := UserFromContext(r.Context()); !ok {
				if loginPath != "" {
					target := loginPath + "?next=" + url.QueryEscape(r.URL.RequestURI())
					http.Redirect(w, r, target, http.StatusSeeOther)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthenticated","message":"authentication required"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// UserFromContext returns the authenticated user resolved by WithUser.
// Returns (nil, false) for anonymous requests.
func UserFromContext(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok && u != nil
}

// SessionFromContext returns the session backing the current request.
// Logout and "sign out other devices" need its id.
func SessionFromContext(ctx context.Context) (*model.Session, bool) {
	s, ok := ctx.Value(sessionKey).(*model.Session)
	return s, ok && s != nil
}

package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"ory-auth-gate/auth"
)

// A private type for the context key to prevent collisions.
type contextKey string

const (
	// identityContextKey holds the auth.Identity resolved by the route guard.
	identityContextKey contextKey = "identity"
	// indeterminateContextKey is set when the caller's last sign-out failed.
	indeterminateContextKey contextKey = "session_indeterminate"
)

// RouteGuard resolves the caller's identity before any handler runs and
// applies the public/private policy:
//
//  1. not authenticated and path not public: redirect to the auth page
//  2. authenticated and path public: redirect home
//  3. otherwise pass through with the identity in the request context
//
// A session that cannot be determined counts as not authenticated.
func (a *App) RouteGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := a.resolveIdentity(w, r)
		indeterminate := errors.Is(err, auth.ErrSessionIndeterminate)
		if err != nil {
			a.logger.WarnContext(r.Context(), "route guard could not confirm session",
				slog.String("path", r.URL.Path),
				slog.Bool("indeterminate", indeterminate),
				slog.Any("error", err),
			)
			identity = auth.Anonymous()
		}

		authenticated := identity.Authenticated
		public := a.routes.IsPublic(r.URL.Path)

		if !authenticated && !public {
			http.Redirect(w, r, AuthPath, http.StatusSeeOther)
			return
		}
		if authenticated && public {
			http.Redirect(w, r, HomePath, http.StatusSeeOther)
			return
		}

		ctx := context.WithValue(r.Context(), identityContextKey, identity)
		if indeterminate {
			ctx = context.WithValue(ctx, indeterminateContextKey, true)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// resolveIdentity reads the session token from the cookie session, falling
// back to the Authorization header. A bearer JWT is verified locally when a
// verifier is configured; any other bearer value is a provider session token.
func (a *App) resolveIdentity(w http.ResponseWriter, r *http.Request) (auth.Identity, error) {
	ctx := r.Context()
	if token := a.cookies.Token(r); token != "" {
		if a.cookies.SignOutPending(r) {
			return a.finishSignOut(w, r, token)
		}
		return a.sessions.CurrentSession(ctx, token)
	}

	token := bearerToken(r)
	if token == "" {
		return auth.Anonymous(), nil
	}
	if a.verifier != nil && auth.LooksLikeJWT(token) {
		return a.verifier.Verify(ctx, token)
	}
	return a.sessions.CurrentSession(ctx, token)
}

// finishSignOut retries a sign-out that previously failed. The cached session
// state is never consulted: the caller stays signed out either way, and the
// error keeps the session indeterminate until the provider confirms.
func (a *App) finishSignOut(w http.ResponseWriter, r *http.Request, token string) (auth.Identity, error) {
	ctx := r.Context()
	if err := a.sessions.SignOut(ctx, token); err != nil {
		return auth.Anonymous(), err
	}
	if err := a.cookies.ClearToken(w, r); err != nil {
		a.logger.ErrorContext(ctx, "failed to clear session token", slog.Any("error", err))
	}
	a.logger.InfoContext(ctx, "pending sign-out completed")
	return auth.Anonymous(), nil
}

// IdentityFromContext returns the identity stored by RouteGuard.
func (a *App) IdentityFromContext(ctx context.Context) (auth.Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(auth.Identity)
	return identity, ok
}

// SessionIndeterminate reports whether RouteGuard found a session whose
// sign-out failed.
func (a *App) SessionIndeterminate(ctx context.Context) bool {
	v, _ := ctx.Value(indeterminateContextKey).(bool)
	return v
}

// RequestLogger logs one line per request.
func (a *App) RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		a.logger.LogAttrs(r.Context(), level, "http request",
			slog.String("request_id", middleware.GetReqID(r.Context())),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader {
		// Kratos native clients send the token in X-Session-Token.
		return strings.TrimSpace(r.Header.Get("X-Session-Token"))
	}
	return strings.TrimSpace(token)
}

package delivery

import (
	"context"
	"log/slog"
	"net/http"

	"ory-auth-gate/auth"
	"ory-auth-gate/form"
	"ory-auth-gate/websession"
)

// AppDependencies defines the contract that the delivery layer (HTTP handlers)
// expects from the core application layer.
type AppDependencies interface {
	// RouteGuard enforces the public/private page policy.
	RouteGuard(next http.Handler) http.Handler
	RequestLogger(next http.Handler) http.Handler

	IdentityFromContext(ctx context.Context) (auth.Identity, bool)
	SessionIndeterminate(ctx context.Context) bool

	SignInForm() *form.Controller
	SignUpForm() *form.Controller

	Sessions() SessionClient
	Cookies() *websession.Store
	Logger() *slog.Logger
}

// SessionClient is the part of the session client the handlers use directly.
// Sign-in and sign-up go through the form controllers.
type SessionClient interface {
	CurrentSession(ctx context.Context, token string) (auth.Identity, error)
	SignOut(ctx context.Context, token string) error
	TokenizeEnabled() bool
	Tokenize(ctx context.Context, token string) (string, error)
}

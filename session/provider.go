// Package session is the single point through which the application talks to
// the hosted identity provider. It owns the process-wide session cache: every
// read goes through Client, and only sign-in, sign-up and sign-out mutate it.
package session

import (
	"context"

	"ory-auth-gate/auth"
)

//go:generate mockgen -destination=../mocks/provider.go -package=mocks ory-auth-gate/session Provider

// Session is what the provider hands back after a successful credential
// submission: an opaque token and the identity it belongs to.
type Session struct {
	Token    string
	Identity auth.Identity
}

// Provider is the hosted identity service. Implementations map their failures
// onto the auth error taxonomy; anything unmapped is treated as a network
// failure by Client.
type Provider interface {
	// SubmitCredentials runs the shared credential operation. flow tells the
	// provider whether to create an account or log into an existing one.
	SubmitCredentials(ctx context.Context, flow auth.Flow, email, password string) (Session, error)

	// SignOut revokes the session behind token.
	SignOut(ctx context.Context, token string) error

	// Whoami resolves token to the current identity. An unknown or expired
	// token yields an anonymous identity and a nil error.
	Whoami(ctx context.Context, token string) (auth.Identity, error)

	// Tokenize exchanges a session token for a signed JWT using the named
	// provider-side template.
	Tokenize(ctx context.Context, token, template string) (string, error)
}

// Package devauth is an in-process identity provider for local development
// and tests. Accounts and sessions live in memory and vanish on restart.
package devauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"ory-auth-gate/auth"
	"ory-auth-gate/session"
)

// MinPasswordLength mirrors the default Kratos password policy floor.
const MinPasswordLength = 8

var (
	errUnavailable   = errors.New("devauth: provider unavailable")
	errNoTokenize    = errors.New("devauth: tokenize is not supported")
	errPasswordShort = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
)

type account struct {
	id           string
	email        string
	passwordHash []byte
}

// Provider implements session.Provider in memory.
type Provider struct {
	mu          sync.RWMutex
	accounts    map[string]account // keyed by lower-cased email
	sessions    map[string]string  // token -> account email key
	unavailable bool
	cost        int
}

var _ session.Provider = (*Provider)(nil)

// New returns an empty Provider.
func New() *Provider {
	return &Provider{
		accounts: make(map[string]account),
		sessions: make(map[string]string),
		cost:     bcrypt.DefaultCost,
	}
}

// NewForTest returns a Provider using the minimum bcrypt cost.
func NewForTest() *Provider {
	p := New()
	p.cost = bcrypt.MinCost
	return p
}

// SetUnavailable makes every call fail as if the provider could not be
// reached.
func (p *Provider) SetUnavailable(down bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.unavailable = down
}

func (p *Provider) SubmitCredentials(ctx context.Context, flow auth.Flow, email, password string) (session.Session, error) {
	if err := ctx.Err(); err != nil {
		return session.Session{}, fmt.Errorf("%w: %w", auth.ErrNetwork, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.unavailable {
		return session.Session{}, fmt.Errorf("%w: %w", auth.ErrNetwork, errUnavailable)
	}

	key := strings.ToLower(email)
	switch flow {
	case auth.FlowSignUp:
		if _, exists := p.accounts[key]; exists {
			return session.Session{}, auth.ErrAccountExists
		}
		if len(password) < MinPasswordLength {
			return session.Session{}, fmt.Errorf("%w: %w", auth.ErrValidationRejected, errPasswordShort)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(password), p.cost)
		if err != nil {
			return session.Session{}, fmt.Errorf("%w: %w", auth.ErrValidationRejected, err)
		}
		p.accounts[key] = account{id: uuid.NewString(), email: email, passwordHash: hash}
	case auth.FlowSignIn:
		acct, ok := p.accounts[key]
		if !ok {
			return session.Session{}, auth.ErrInvalidCredentials
		}
		if bcrypt.CompareHashAndPassword(acct.passwordHash, []byte(password)) != nil {
			return session.Session{}, auth.ErrInvalidCredentials
		}
	default:
		return session.Session{}, fmt.Errorf("unknown flow %q", flow)
	}

	token := uuid.NewString()
	p.sessions[token] = key
	return session.Session{Token: token, Identity: p.identity(p.accounts[key])}, nil
}

func (p *Provider) SignOut(_ context.Context, token string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.unavailable {
		return fmt.Errorf("%w: %w", auth.ErrNetwork, errUnavailable)
	}
	delete(p.sessions, token)
	return nil
}

func (p *Provider) Whoami(_ context.Context, token string) (auth.Identity, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.unavailable {
		return auth.Identity{}, fmt.Errorf("%w: %w", auth.ErrNetwork, errUnavailable)
	}
	key, ok := p.sessions[token]
	if !ok {
		return auth.Anonymous(), nil
	}
	return p.identity(p.accounts[key]), nil
}

func (p *Provider) Tokenize(context.Context, string, string) (string, error) {
	return "", errNoTokenize
}

func (p *Provider) identity(a account) auth.Identity {
	return auth.Identity{
		Authenticated: true,
		UserID:        a.id,
		Profile:       &auth.Profile{Email: a.email},
	}
}

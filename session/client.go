package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/singleflight"

	"ory-auth-gate/auth"
)

// errNoToken is returned when the provider reports success without a token.
var errNoToken = errors.New("provider returned no session token")

// ClientOptions groups the dependencies of a Client.
type ClientOptions struct {
	Provider Provider
	Cache    Cache
	Logger   *slog.Logger

	// TokenizeTemplate names the provider template used by Tokenize. Empty
	// disables tokenizing.
	TokenizeTemplate string
}

// Client is the Auth Session Client. Every consumer (form controllers, the
// route guard, the user menu) reads and mutates sessions through one Client.
type Client struct {
	provider         Provider
	cache            Cache
	logger           *slog.Logger
	tokenizeTemplate string
	lookups          singleflight.Group
}

// NewClient builds a Client. A nil cache falls back to an in-memory cache with
// DefaultCacheTTL.
func NewClient(opts ClientOptions) *Client {
	cache := opts.Cache
	if cache == nil {
		cache = NewMemoryCache(DefaultCacheTTL)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		provider:         opts.Provider,
		cache:            cache,
		logger:           logger,
		tokenizeTemplate: opts.TokenizeTemplate,
	}
}

// SignIn logs into an existing account.
func (c *Client) SignIn(ctx context.Context, email, password string) (Session, error) {
	return c.submit(ctx, auth.FlowSignIn, email, password)
}

// SignUp creates an account and signs into it. It is never retried here: an
// ErrAccountExists must reach the user.
func (c *Client) SignUp(ctx context.Context, email, password string) (Session, error) {
	return c.submit(ctx, auth.FlowSignUp, email, password)
}

func (c *Client) submit(ctx context.Context, flow auth.Flow, email, password string) (Session, error) {
	sess, err := c.provider.SubmitCredentials(ctx, flow, email, password)
	if err != nil {
		return Session{}, classify(err)
	}
	if sess.Token == "" {
		return Session{}, fmt.Errorf("%w: %w", auth.ErrNetwork, errNoToken)
	}

	sess.Identity.Authenticated = true
	c.write(ctx, sess.Token, Entry{Identity: sess.Identity})
	return sess, nil
}

// SignOut revokes the session behind token. When the provider cannot be
// reached the session is recorded as indeterminate and the returned error
// wraps both ErrSessionIndeterminate and ErrNetwork.
func (c *Client) SignOut(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}

	if err := c.provider.SignOut(ctx, token); err != nil {
		c.write(ctx, token, Entry{Indeterminate: true})
		return fmt.Errorf("%w: %w", auth.ErrSessionIndeterminate, classify(err))
	}

	c.write(ctx, token, Entry{Identity: auth.Anonymous()})
	return nil
}

// CurrentSession returns the identity behind token. An empty token is
// anonymous without a provider round trip. ErrNetwork means the state is
// unknown; ErrSessionIndeterminate means a sign-out for token failed.
func (c *Client) CurrentSession(ctx context.Context, token string) (auth.Identity, error) {
	if token == "" {
		return auth.Anonymous(), nil
	}

	key := CacheKey(token)
	entry, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.logger.WarnContext(ctx, "session cache read failed", slog.Any("error", err))
	}
	if ok {
		return fromEntry(entry)
	}

	v, err, _ := c.lookups.Do(key, func() (any, error) {
		lookupCtx := context.WithoutCancel(ctx)
		identity, err := c.provider.Whoami(lookupCtx, token)
		if err != nil {
			return Entry{}, classify(err)
		}

		fresh := Entry{Identity: identity}
		added, err := c.cache.Add(lookupCtx, key, fresh)
		if err != nil {
			c.logger.WarnContext(ctx, "session cache fill failed", slog.Any("error", err))
			return fresh, nil
		}
		if !added {
			// A sign-in or sign-out landed while we were asking; it wins.
			if current, ok, err := c.cache.Get(lookupCtx, key); err == nil && ok {
				return current, nil
			}
		}
		return fresh, nil
	})
	if err != nil {
		return auth.Anonymous(), err
	}
	return fromEntry(v.(Entry))
}

// IsAuthenticated waits for the session check behind token. Any error counts
// as not authenticated and is returned for logging.
func (c *Client) IsAuthenticated(ctx context.Context, token string) (bool, error) {
	identity, err := c.CurrentSession(ctx, token)
	if err != nil {
		return false, err
	}
	return identity.Authenticated, nil
}

// TokenizeEnabled reports whether Tokenize has a template to work with.
func (c *Client) TokenizeEnabled() bool {
	return c.tokenizeTemplate != ""
}

// Tokenize exchanges token for a provider-signed JWT.
func (c *Client) Tokenize(ctx context.Context, token string) (string, error) {
	if !c.TokenizeEnabled() {
		return "", errors.New("tokenize: no template configured")
	}
	jwt, err := c.provider.Tokenize(ctx, token, c.tokenizeTemplate)
	if err != nil {
		return "", classify(err)
	}
	return jwt, nil
}

// write records the outcome of a mutation. If the cache refuses the write the
// stale entry is dropped so the next read goes back to the provider.
func (c *Client) write(ctx context.Context, token string, e Entry) {
	key := CacheKey(token)
	if err := c.cache.Set(ctx, key, e); err != nil {
		c.logger.WarnContext(ctx, "session cache write failed", slog.Any("error", err))
		if err := c.cache.Delete(ctx, key); err != nil {
			c.logger.ErrorContext(ctx, "session cache evict failed", slog.Any("error", err))
		}
	}
	c.lookups.Forget(key)
}

func fromEntry(e Entry) (auth.Identity, error) {
	if e.Indeterminate {
		return auth.Anonymous(), auth.ErrSessionIndeterminate
	}
	return e.Identity, nil
}

// classify keeps taxonomy errors as they are and files everything else under
// ErrNetwork.
func classify(err error) error {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrAccountExists),
		errors.Is(err, auth.ErrValidationRejected),
		errors.Is(err, auth.ErrNetwork),
		errors.Is(err, auth.ErrSessionIndeterminate):
		return err
	default:
		return fmt.Errorf("%w: %w", auth.ErrNetwork, err)
	}
}

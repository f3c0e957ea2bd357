package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/lestrrat-go/jwx/jwk"

	"ory-auth-gate/auth"
)

var (
	ErrFetchJWKSet    = errors.New("failed to fetch JWK set")
	ErrMissingKeyID   = errors.New("expecting JWT header to have 'kid'")
	ErrUnknownKeyID   = errors.New("unable to find key with ID")
	ErrFailedRawKey   = errors.New("failed to get raw public key")
	ErrMissingSubject = errors.New("token has no subject")
)

// Kratos signs with "private:<id>" keys and publishes them as "public:<id>".
const (
	privateKeyPrefix = "private:"
	publicKeyPrefix  = "public:"
)

var signingMethods = []string{"RS256", "RS384", "RS512", "ES256", "ES384", "ES512", "EdDSA"}

// KeySetFetcher returns the current JWK set for a URL.
type KeySetFetcher interface {
	Fetch(ctx context.Context, url string) (jwk.Set, error)
}

// BearerVerifier turns a bearer JWT into an identity.
type BearerVerifier interface {
	Verify(ctx context.Context, raw string) (auth.Identity, error)
}

// sessionClaims are the claims of a JWT minted by the session tokenizer.
type sessionClaims struct {
	jwt.RegisteredClaims
	SessionID string `json:"sid,omitempty"`
	Email     string `json:"email,omitempty"`
	Name      string `json:"name,omitempty"`
	Picture   string `json:"picture,omitempty"`
}

// TokenVerifier checks JWT signatures against an auto-refreshing JWK set.
type TokenVerifier struct {
	keys    KeySetFetcher
	jwksURL string
	logger  *slog.Logger
}

var _ BearerVerifier = (*TokenVerifier)(nil)

// NewTokenVerifier fetches the JWK set at jwksURL once and keeps it fresh in
// the background until ctx ends.
func NewTokenVerifier(ctx context.Context, jwksURL string, refresh time.Duration, logger *slog.Logger) (*TokenVerifier, error) {
	if refresh <= 0 {
		refresh = DefaultJWKSRefresh
	}

	ar := jwk.NewAutoRefresh(ctx)
	ar.Configure(jwksURL, jwk.WithRefreshInterval(refresh))

	if _, err := ar.Fetch(ctx, jwksURL); err != nil {
		logger.ErrorContext(ctx, "failed to fetch initial JWK set", slog.String("url", jwksURL), slog.Any("error", err))
		return nil, fmt.Errorf("%w: %w", ErrFetchJWKSet, err)
	}
	return NewTokenVerifierWithFetcher(ar, jwksURL, logger), nil
}

// NewTokenVerifierWithFetcher builds a verifier over an existing key source.
func NewTokenVerifierWithFetcher(keys KeySetFetcher, jwksURL string, logger *slog.Logger) *TokenVerifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenVerifier{keys: keys, jwksURL: jwksURL, logger: logger}
}

// Verify validates the signature and time claims of raw and maps its claims
// to an authenticated identity.
func (v *TokenVerifier) Verify(ctx context.Context, raw string) (auth.Identity, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(token *jwt.Token) (interface{}, error) {
		return v.lookupKey(ctx, token)
	}, jwt.WithValidMethods(signingMethods))
	if err != nil {
		return auth.Identity{}, fmt.Errorf("verify bearer token: %w", err)
	}
	if claims.Subject == "" {
		return auth.Identity{}, ErrMissingSubject
	}

	return auth.Identity{
		Authenticated: true,
		UserID:        claims.Subject,
		Profile: &auth.Profile{
			Name:  claims.Name,
			Email: claims.Email,
			Image: claims.Picture,
		},
	}, nil
}

func (v *TokenVerifier) lookupKey(ctx context.Context, token *jwt.Token) (interface{}, error) {
	keyID, ok := token.Header["kid"].(string)
	if !ok || keyID == "" {
		return nil, ErrMissingKeyID
	}

	verificationKeyID := keyID
	if strings.HasPrefix(keyID, privateKeyPrefix) {
		verificationKeyID = publicKeyPrefix + strings.TrimPrefix(keyID, privateKeyPrefix)
		v.logger.DebugContext(ctx, "transformed private kid for verification",
			slog.String("kid", keyID),
			slog.String("verification_kid", verificationKeyID),
		)
	}

	keySet, err := v.keys.Fetch(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchJWKSet, err)
	}

	key, found := keySet.LookupKeyID(verificationKeyID)
	if !found {
		return nil, fmt.Errorf("%w '%s'", ErrUnknownKeyID, verificationKeyID)
	}

	var pubKey interface{}
	if err := key.Raw(&pubKey); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFailedRawKey, err)
	}
	return pubKey, nil
}

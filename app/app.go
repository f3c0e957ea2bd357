package app

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"ory-auth-gate/auth"
	"ory-auth-gate/delivery"
	"ory-auth-gate/devauth"
	"ory-auth-gate/form"
	"ory-auth-gate/kratos"
	"ory-auth-gate/session"
	"ory-auth-gate/websession"
)

const shutdownTimeout = 10 * time.Second

// App holds the application's dependencies and state, like the router and the
// session client.
type App struct {
	cfg      Config
	logger   *slog.Logger
	sessions *session.Client
	cookies  *websession.Store
	routes   Routes
	verifier BearerVerifier
	signIn   *form.Controller
	signUp   *form.Controller
	closers  []func() error

	Router http.Handler
}

// Options carries prebuilt dependencies into Assemble. Nil fields get defaults.
type Options struct {
	Provider session.Provider
	Cache    session.Cache
	Verifier BearerVerifier
	Logger   *slog.Logger
}

// New creates an App from cfg, connecting to the configured provider, cache
// and key set.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	opts := Options{Logger: logger}
	var closers []func() error

	switch cfg.Provider {
	case ProviderMemory:
		logger.WarnContext(ctx, "using in-memory identity provider; accounts are lost on restart")
		opts.Provider = devauth.New()
	default:
		opts.Provider = kratos.New(kratos.Config{
			PublicURL:  cfg.Kratos.PublicURL,
			HTTPClient: &http.Client{Timeout: cfg.SubmitTimeout},
			Logger:     logger,
		})
	}

	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}
		opts.Cache = session.NewRedisCache(client, cfg.Redis.KeyPrefix, cfg.SessionCacheTTL)
		closers = append(closers, client.Close)
	}

	if cfg.Kratos.JWKSURL != "" {
		verifier, err := NewTokenVerifier(ctx, cfg.Kratos.JWKSURL, cfg.Kratos.JWKSRefresh, logger)
		if err != nil {
			return nil, err
		}
		opts.Verifier = verifier
	}

	a, err := Assemble(cfg, opts)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closers...)
	return a, nil
}

// Assemble wires an App from cfg and prebuilt dependencies without touching
// the network.
func Assemble(cfg Config, opts Options) (*App, error) {
	if opts.Provider == nil {
		return nil, errors.New("assemble: identity provider is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cache := opts.Cache
	if cache == nil {
		cache = session.NewMemoryCache(cfg.SessionCacheTTL)
	}

	hashKey, blockKey, err := cookieKeys(cfg)
	if err != nil {
		return nil, err
	}

	sessions := session.NewClient(session.ClientOptions{
		Provider:         opts.Provider,
		Cache:            cache,
		Logger:           logger,
		TokenizeTemplate: cfg.Kratos.TokenizeTemplate,
	})
	validator := auth.NewValidator()
	formConfig := func(flow auth.Flow) form.Config {
		return form.Config{
			Flow:                   flow,
			RequireConfirmPassword: cfg.Form.RequireConfirmPassword,
			RequirePrivacyConsent:  cfg.Form.RequirePrivacyConsent,
			ShowPasswordToggle:     cfg.Form.ShowPasswordToggle,
			Timeout:                cfg.SubmitTimeout,
		}
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		sessions: sessions,
		cookies: websession.New(websession.Options{
			HashKey:  hashKey,
			BlockKey: blockKey,
			Secure:   cfg.Cookie.Secure,
			MaxAge:   cfg.Cookie.MaxAge,
		}, logger),
		routes:   NewRoutes(cfg.PublicPaths),
		verifier: opts.Verifier,
		signIn:   form.New(formConfig(auth.FlowSignIn), sessions, validator, logger),
		signUp:   form.New(formConfig(auth.FlowSignUp), sessions, validator, logger),
	}

	a.Router = delivery.NewRouter(a)
	return a, nil
}

// cookieKeys derives the signing and encryption keys for the session cookie.
// Development without a secret gets a random one per process.
func cookieKeys(cfg Config) ([]byte, []byte, error) {
	secret := []byte(cfg.Cookie.Secret)
	if len(secret) == 0 {
		if !cfg.IsDev {
			return nil, nil, errors.New("COOKIE_SECRET is required")
		}
		secret = make([]byte, minCookieSecretLen)
		if _, err := rand.Read(secret); err != nil {
			return nil, nil, fmt.Errorf("generate cookie secret: %w", err)
		}
	}
	block := sha256.Sum256(append([]byte("authgate-cookie-block:"), secret...))
	return secret, block[:], nil
}

// Run serves HTTP on the configured address until ctx ends, then shuts down
// gracefully.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.Addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		a.logger.InfoContext(ctx, "server listening", slog.String("addr", a.cfg.Addr), slog.String("provider", string(a.cfg.Provider)))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		a.close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	a.close()
	return err
}

func (a *App) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			a.logger.Warn("close failed", slog.Any("error", err))
		}
	}
}

func (a *App) SignInForm() *form.Controller { return a.signIn }
func (a *App) SignUpForm() *form.Controller { return a.signUp }

func (a *App) Sessions() delivery.SessionClient { return a.sessions }
func (a *App) Cookies() *websession.Store       { return a.cookies }
func (a *App) Logger() *slog.Logger             { return a.logger }

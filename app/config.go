package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"ory-auth-gate/form"
	"ory-auth-gate/session"
)

// ProviderKind selects the identity provider implementation.
type ProviderKind string

const (
	// ProviderKratos talks to an Ory Kratos public API.
	ProviderKratos ProviderKind = "kratos"
	// ProviderMemory keeps accounts in process (development only).
	ProviderMemory ProviderKind = "memory"
)

// UnmarshalText implements encoding.TextUnmarshaler for ProviderKind.
func (p *ProviderKind) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "kratos", "memory":
		*p = ProviderKind(v)
		return nil
	default:
		return fmt.Errorf("invalid ProviderKind: %q (valid options: kratos, memory)", v)
	}
}

const (
	DefaultAddr         = ":8080"
	DefaultJWKSRefresh  = 5 * time.Minute
	DefaultCookieMaxAge = 7 * 24 * 60 * 60
	minCookieSecretLen  = 32
)

// KratosConfig points at the Kratos public API.
type KratosConfig struct {
	PublicURL string `env:"PUBLIC_URL" envDefault:"http://127.0.0.1:4433"`
	// TokenizeTemplate, when set, makes the JSON session API return a JWT.
	TokenizeTemplate string `env:"TOKENIZE_TEMPLATE"`
	// JWKSURL, when set, lets the route guard accept bearer JWTs.
	JWKSURL     string        `env:"JWKS_URL"`
	JWKSRefresh time.Duration `env:"JWKS_REFRESH" envDefault:"5m"`
}

// RedisConfig configures the shared session cache. An empty Addr keeps the
// cache in process.
type RedisConfig struct {
	Addr      string `env:"ADDR"`
	Password  string `env:"PASSWORD"`
	DB        int    `env:"DB"         envDefault:"0"`
	KeyPrefix string `env:"KEY_PREFIX" envDefault:"authgate:session:"`
}

// CookieConfig configures the browser session cookie.
type CookieConfig struct {
	Secret string `env:"SECRET"`
	Secure bool   `env:"SECURE"  envDefault:"false"`
	MaxAge int    `env:"MAX_AGE" envDefault:"604800"`
}

// FormConfig holds the optional parts of the auth forms.
type FormConfig struct {
	ShowPasswordToggle     bool `env:"SHOW_PASSWORD_TOGGLE"     envDefault:"true"`
	RequireConfirmPassword bool `env:"REQUIRE_CONFIRM_PASSWORD" envDefault:"true"`
	RequirePrivacyConsent  bool `env:"REQUIRE_PRIVACY_CONSENT"  envDefault:"false"`
}

// LogConfig selects the log level and encoding.
type LogConfig struct {
	Level  string `env:"LEVEL"  envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
}

// Config is the application configuration, loaded from the environment.
type Config struct {
	Addr  string `env:"ADDR" envDefault:":8080"`
	IsDev bool   `env:"DEV"  envDefault:"false"`

	Provider ProviderKind `env:"AUTH_PROVIDER" envDefault:"kratos"`
	Kratos   KratosConfig `envPrefix:"KRATOS_"`
	Redis    RedisConfig  `envPrefix:"REDIS_"`
	Cookie   CookieConfig `envPrefix:"COOKIE_"`
	Form     FormConfig   `envPrefix:"FORM_"`
	Log      LogConfig    `envPrefix:"LOG_"`

	SessionCacheTTL time.Duration `env:"SESSION_CACHE_TTL" envDefault:"30s"`
	SubmitTimeout   time.Duration `env:"SUBMIT_TIMEOUT"    envDefault:"10s"`

	// PublicPaths are reachable without a session; everything else under the
	// guard requires one.
	PublicPaths []string `env:"PUBLIC_PATHS" envDefault:"/auth" envSeparator:","`
}

// LoadConfig reads .env when present, then the environment.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return Config{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.Sanitize()
	return cfg, nil
}

// Sanitize applies guardrails to values loaded from the environment.
func (c *Config) Sanitize() {
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = DefaultAddr
	}
	if c.Provider == "" {
		c.Provider = ProviderKratos
	}
	if c.Kratos.JWKSRefresh <= 0 {
		c.Kratos.JWKSRefresh = DefaultJWKSRefresh
	}
	if c.Redis.KeyPrefix == "" {
		c.Redis.KeyPrefix = session.DefaultRedisPrefix
	}
	if c.Cookie.MaxAge <= 0 {
		c.Cookie.MaxAge = DefaultCookieMaxAge
	}
	if c.SessionCacheTTL <= 0 {
		c.SessionCacheTTL = session.DefaultCacheTTL
	}
	if c.SubmitTimeout <= 0 {
		c.SubmitTimeout = form.DefaultTimeout
	}

	paths := c.PublicPaths[:0]
	for _, p := range c.PublicPaths {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	if len(paths) == 0 {
		paths = []string{AuthPath}
	}
	c.PublicPaths = paths
}

// Validate reports configuration that cannot run.
func (c *Config) Validate() error {
	var errs []error
	if !c.IsDev && len(c.Cookie.Secret) < minCookieSecretLen {
		errs = append(errs, fmt.Errorf("COOKIE_SECRET must be at least %d bytes", minCookieSecretLen))
	}
	if c.Provider == ProviderMemory && !c.IsDev {
		errs = append(errs, errors.New("AUTH_PROVIDER=memory requires DEV=true"))
	}
	if c.Provider == ProviderKratos && c.Kratos.PublicURL == "" {
		errs = append(errs, errors.New("KRATOS_PUBLIC_URL is required"))
	}
	for _, p := range c.PublicPaths {
		if !strings.HasPrefix(p, "/") {
			errs = append(errs, fmt.Errorf("public path %q must start with /", p))
		}
	}
	// Either mistake makes the guard redirect in a loop.
	routes := NewRoutes(c.PublicPaths)
	if !routes.IsPublic(AuthPath) {
		errs = append(errs, fmt.Errorf("PUBLIC_PATHS must include %s", AuthPath))
	}
	if routes.IsPublic(HomePath) {
		errs = append(errs, fmt.Errorf("PUBLIC_PATHS must not cover %s", HomePath))
	}
	return errors.Join(errs...)
}

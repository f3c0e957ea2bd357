// Package websession keeps the browser's provider session token and one-shot
// flash notices in a signed, encrypted cookie.
package websession

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/sessions"
)

const (
	// CookieName is the name of the session cookie.
	CookieName = "authgate_session"

	tokenKey          = "session_token"
	signOutPendingKey = "signout_pending"
)

// Flash levels.
const (
	FlashSuccess = "success"
	FlashError   = "error"
)

var flashLevels = []string{FlashSuccess, FlashError}

// Flash is a notice shown once on the next rendered page.
type Flash struct {
	Level   string
	Message string
}

// Options configures the cookie.
type Options struct {
	// HashKey signs the cookie and must be at least 32 bytes.
	HashKey []byte
	// BlockKey encrypts the cookie; 16, 24 or 32 bytes, or nil for signing only.
	BlockKey []byte
	Secure   bool
	MaxAge   int
}

// Store reads and writes the session cookie.
type Store struct {
	cookies *sessions.CookieStore
	logger  *slog.Logger
}

// New builds a Store.
func New(opts Options, logger *slog.Logger) *Store {
	keys := [][]byte{opts.HashKey}
	if len(opts.BlockKey) > 0 {
		keys = append(keys, opts.BlockKey)
	}
	cookies := sessions.NewCookieStore(keys...)
	cookies.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   opts.MaxAge,
		Secure:   opts.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{cookies: cookies, logger: logger}
}

// get never fails: an unreadable cookie (rotated key, tampering) yields a
// fresh session.
func (s *Store) get(r *http.Request) *sessions.Session {
	sess, err := s.cookies.Get(r, CookieName)
	if err != nil {
		s.logger.DebugContext(r.Context(), "discarding unreadable session cookie", slog.Any("error", err))
	}
	return sess
}

// Token returns the provider session token, or "" when there is none.
func (s *Store) Token(r *http.Request) string {
	token, _ := s.get(r).Values[tokenKey].(string)
	return token
}

// SetToken stores token in the cookie and drops any pending sign-out.
func (s *Store) SetToken(w http.ResponseWriter, r *http.Request, token string) error {
	sess := s.get(r)
	sess.Values[tokenKey] = token
	delete(sess.Values, signOutPendingKey)
	return sess.Save(r, w)
}

// ClearToken removes the token and the pending sign-out mark but keeps the
// cookie so flashes survive.
func (s *Store) ClearToken(w http.ResponseWriter, r *http.Request) error {
	sess := s.get(r)
	delete(sess.Values, tokenKey)
	delete(sess.Values, signOutPendingKey)
	return sess.Save(r, w)
}

// MarkSignOutPending records that sign-out of the stored token could not be
// confirmed. The mark lives until SetToken or ClearToken.
func (s *Store) MarkSignOutPending(w http.ResponseWriter, r *http.Request) error {
	sess := s.get(r)
	sess.Values[signOutPendingKey] = true
	return sess.Save(r, w)
}

// SignOutPending reports whether the stored token still has a sign-out to
// finish.
func (s *Store) SignOutPending(r *http.Request) bool {
	pending, _ := s.get(r).Values[signOutPendingKey].(bool)
	return pending
}

// AddFlash queues a notice for the next page.
func (s *Store) AddFlash(w http.ResponseWriter, r *http.Request, f Flash) error {
	sess := s.get(r)
	sess.AddFlash(f.Message, f.Level)
	return sess.Save(r, w)
}

// Flashes pops every queued notice. The cookie is rewritten only when there
// was something to pop.
func (s *Store) Flashes(w http.ResponseWriter, r *http.Request) []Flash {
	sess := s.get(r)

	var out []Flash
	for _, level := range flashLevels {
		for _, v := range sess.Flashes(level) {
			if msg, ok := v.(string); ok {
				out = append(out, Flash{Level: level, Message: msg})
			}
		}
	}
	if len(out) > 0 {
		if err := sess.Save(r, w); err != nil {
			s.logger.WarnContext(r.Context(), "failed to save session after reading flashes", slog.Any("error", err))
		}
	}
	return out
}

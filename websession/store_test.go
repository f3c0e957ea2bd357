package websession_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ory-auth-gate/websession"
)

var testKey = []byte(strings.Repeat("k", 32))

func newStore() *websession.Store {
	return websession.New(websession.Options{HashKey: testKey, MaxAge: 3600}, nil)
}

// roundTrip copies the cookies set on rec into a new request.
func roundTrip(t *testing.T, rec *httptest.ResponseRecorder) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	cookies := rec.Result().Cookies()
	require.NotEmpty(t, cookies)
	// Later Set-Cookie headers supersede earlier ones.
	r.AddCookie(cookies[len(cookies)-1])
	return r
}

func TestStore_Token(t *testing.T) {
	s := newStore()

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, s.Token(r))

	rec := httptest.NewRecorder()
	require.NoError(t, s.SetToken(rec, r, "tok-1"))

	cookie := rec.Result().Cookies()[0]
	assert.Equal(t, websession.CookieName, cookie.Name)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)
	assert.NotContains(t, cookie.Value, "tok-1")

	next := roundTrip(t, rec)
	assert.Equal(t, "tok-1", s.Token(next))

	rec = httptest.NewRecorder()
	require.NoError(t, s.ClearToken(rec, next))
	assert.Empty(t, s.Token(roundTrip(t, rec)))
}

func TestStore_SignOutPending(t *testing.T) {
	s := newStore()

	rec := httptest.NewRecorder()
	require.NoError(t, s.SetToken(rec, httptest.NewRequest(http.MethodGet, "/", nil), "tok-1"))
	signedIn := roundTrip(t, rec)
	assert.False(t, s.SignOutPending(signedIn))

	marked := httptest.NewRecorder()
	require.NoError(t, s.MarkSignOutPending(marked, signedIn))
	pending := roundTrip(t, marked)
	assert.True(t, s.SignOutPending(pending))
	assert.Equal(t, "tok-1", s.Token(pending), "the token is kept for the retry")

	// Signing in again replaces the token and the mark.
	rec = httptest.NewRecorder()
	require.NoError(t, s.SetToken(rec, roundTrip(t, marked), "tok-2"))
	assert.False(t, s.SignOutPending(roundTrip(t, rec)))

	rec = httptest.NewRecorder()
	require.NoError(t, s.ClearToken(rec, roundTrip(t, marked)))
	cleared := roundTrip(t, rec)
	assert.False(t, s.SignOutPending(cleared))
	assert.Empty(t, s.Token(cleared))
}

func TestStore_Flashes(t *testing.T) {
	s := newStore()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	require.NoError(t, s.SetToken(rec, r, "tok-1"))
	require.NoError(t, s.AddFlash(rec, r, websession.Flash{Level: websession.FlashSuccess, Message: "Signed in successfully"}))

	next := roundTrip(t, rec)
	rec = httptest.NewRecorder()
	flashes := s.Flashes(rec, next)
	assert.Equal(t, []websession.Flash{{Level: websession.FlashSuccess, Message: "Signed in successfully"}}, flashes)

	after := roundTrip(t, rec)
	assert.Empty(t, s.Flashes(httptest.NewRecorder(), after))
	assert.Equal(t, "tok-1", s.Token(after))
}

func TestStore_TamperedCookieIsIgnored(t *testing.T) {
	s := newStore()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: websession.CookieName, Value: "garbage"})

	assert.Empty(t, s.Token(r))
}

func TestStore_OtherKeyCannotRead(t *testing.T) {
	s := newStore()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	require.NoError(t, s.SetToken(rec, r, "tok-1"))

	other := websession.New(websession.Options{HashKey: []byte(strings.Repeat("x", 32))}, nil)
	assert.Empty(t, other.Token(roundTrip(t, rec)))
}

package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ory-auth-gate/auth"
	"ory-auth-gate/delivery/model"
	"ory-auth-gate/devauth"
	"ory-auth-gate/session"
)

type testEnv struct {
	app      *App
	provider *devauth.Provider
	srv      *httptest.Server
	client   *http.Client
}

func newTestEnv(t *testing.T, opts Options) *testEnv {
	t.Helper()
	cfg := Config{
		IsDev:    true,
		Provider: ProviderMemory,
		Cookie:   CookieConfig{Secret: strings.Repeat("s", 32)},
		Form:     FormConfig{ShowPasswordToggle: true, RequireConfirmPassword: true},
	}
	cfg.Sanitize()
	require.NoError(t, cfg.Validate())

	provider := devauth.NewForTest()
	if opts.Provider == nil {
		opts.Provider = provider
	}
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))

	a, err := Assemble(cfg, opts)
	require.NoError(t, err)

	srv := httptest.NewServer(a.Router)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return &testEnv{app: a, provider: provider, srv: srv, client: client}
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.Get(e.srv.URL + path)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func (e *testEnv) post(t *testing.T, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.PostForm(e.srv.URL+path, form)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

// sessionToken decodes the provider token from the client's cookie.
func (e *testEnv) sessionToken(t *testing.T) string {
	t.Helper()
	u, err := url.Parse(e.srv.URL)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, c := range e.client.Jar.Cookies(u) {
		req.AddCookie(c)
	}
	return e.app.cookies.Token(req)
}

func (e *testEnv) do(t *testing.T, req *http.Request) (*http.Response, string) {
	t.Helper()
	resp, err := e.client.Do(req)
	require.NoError(t, err)
	return resp, readBody(t, resp)
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func signUpForm(email, password, confirm string) url.Values {
	return url.Values{
		"flow":            {"signUp"},
		"form_id":         {"form-" + email},
		"email":           {email},
		"password":        {password},
		"confirmPassword": {confirm},
	}
}

func signInForm(email, password string) url.Values {
	return url.Values{
		"flow":     {"signIn"},
		"email":    {email},
		"password": {password},
	}
}

func assertRedirect(t *testing.T, resp *http.Response, location string) {
	t.Helper()
	assert.Equal(t, http.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, location, resp.Header.Get("Location"))
}

func TestRouteGuard_Scenarios(t *testing.T) {
	env := newTestEnv(t, Options{})

	// Unauthenticated.
	resp, _ := env.get(t, "/dashboard")
	assertRedirect(t, resp, "/auth")

	resp, body := env.get(t, "/auth")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `name="form_id"`)

	resp, _ = env.get(t, "/")
	assertRedirect(t, resp, "/auth")

	resp, _ = env.get(t, "/api/me")
	assertRedirect(t, resp, "/auth")

	// Sign up, which signs in.
	resp, _ = env.post(t, "/auth", signUpForm("user@example.com", "secret123", "secret123"))
	assertRedirect(t, resp, "/")

	// Authenticated.
	resp, _ = env.get(t, "/auth")
	assertRedirect(t, resp, "/")

	resp, _ = env.get(t, "/auth?mode=signup")
	assertRedirect(t, resp, "/")

	resp, body = env.get(t, "/dashboard")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, body, "does not exist")

	resp, body = env.get(t, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "user@example.com")
	assert.Contains(t, body, `<span class="avatar">U</span>`)
	assert.Contains(t, body, "Account created")

	resp, body = env.get(t, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, body, "Account created", "flash is shown once")

	resp, body = env.get(t, "/api/me")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var me model.IdentityResponse
	require.NoError(t, json.Unmarshal([]byte(body), &me))
	assert.True(t, me.Authenticated)
	assert.Equal(t, "user@example.com", me.Profile.Email)
}

func TestRouteGuard_UnguardedPaths(t *testing.T) {
	env := newTestEnv(t, Options{})

	resp, body := env.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "ok")

	resp, _ = env.get(t, "/static/app.css")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = env.get(t, "/error?reason=boom")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, body, "boom")
}

func TestAuthPage_SignUpMode(t *testing.T) {
	env := newTestEnv(t, Options{})

	_, body := env.get(t, "/auth?mode=signup")
	assert.Contains(t, body, `name="confirmPassword"`)
	assert.Contains(t, body, `value="signUp"`)
	assert.Contains(t, body, `data-toggle="password"`)
	assert.NotContains(t, body, `name="privacyConsent"`)

	_, body = env.get(t, "/auth")
	assert.NotContains(t, body, `name="confirmPassword"`)
	assert.Contains(t, body, `value="signIn"`)
}

func TestAuthSubmit_Failures(t *testing.T) {
	env := newTestEnv(t, Options{})

	resp, body := env.post(t, "/auth", signUpForm("user@example.com", "secret123", "secret124"))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, auth.MsgPasswordMismatch)
	assert.Contains(t, body, `value="user@example.com"`)

	resp, body = env.post(t, "/auth", signInForm("user@localhost", "secret123"))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Contains(t, body, auth.MsgEmailInvalid)

	// The mismatched sign-up never reached the provider.
	resp, body = env.post(t, "/auth", signInForm("user@example.com", "secret123"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body, "Invalid email or password")
	assert.Contains(t, body, `value="user@example.com"`)

	resp, _ = env.post(t, "/auth", signUpForm("user@example.com", "secret123", "secret123"))
	assertRedirect(t, resp, "/")

	resp, _ = env.post(t, "/api/auth/signout", nil)
	assertRedirect(t, resp, "/auth")

	resp, body = env.post(t, "/auth", signUpForm("user@example.com", "another123", "another123"))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Contains(t, body, "Unable to create account")

	env.provider.SetUnavailable(true)
	resp, body = env.post(t, "/auth", signInForm("user@example.com", "secret123"))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, body, "Invalid email or password")

	resp, _ = env.post(t, "/auth", url.Values{"flow": {"reset"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSignOut(t *testing.T) {
	env := newTestEnv(t, Options{})

	resp, _ := env.post(t, "/auth", signUpForm("user@example.com", "secret123", "secret123"))
	assertRedirect(t, resp, "/")

	resp, _ = env.post(t, "/api/auth/signout", nil)
	assertRedirect(t, resp, "/auth")

	resp, body := env.get(t, "/auth")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "Signed out")

	resp, _ = env.get(t, "/")
	assertRedirect(t, resp, "/auth")
}

func TestSignOut_FailureFailsSafe(t *testing.T) {
	env := newTestEnv(t, Options{})

	resp, _ := env.post(t, "/auth", signUpForm("user@example.com", "secret123", "secret123"))
	assertRedirect(t, resp, "/")

	env.provider.SetUnavailable(true)
	resp, _ = env.post(t, "/api/auth/signout", nil)
	assertRedirect(t, resp, "/auth")

	// Indeterminate: not let in, not shown the form as if signed out.
	resp, _ = env.get(t, "/")
	assertRedirect(t, resp, "/auth")

	resp, body := env.get(t, "/auth")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "could not confirm that you were signed out")
	assert.Contains(t, body, "Unable to sign out")

	// Retrying once the provider is back clears the session.
	env.provider.SetUnavailable(false)
	resp, _ = env.post(t, "/api/auth/signout", nil)
	assertRedirect(t, resp, "/auth")

	resp, body = env.get(t, "/auth")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, body, "could not confirm")
}

func TestSignOut_PendingOutlivesSessionCache(t *testing.T) {
	env := newTestEnv(t, Options{Cache: session.NewMemoryCache(50 * time.Millisecond)})
	ctx := context.Background()

	resp, _ := env.post(t, "/auth", signUpForm("user@example.com", "secret123", "secret123"))
	assertRedirect(t, resp, "/")
	token := env.sessionToken(t)
	require.NotEmpty(t, token)

	env.provider.SetUnavailable(true)
	resp, _ = env.post(t, "/api/auth/signout", nil)
	assertRedirect(t, resp, "/auth")

	time.Sleep(80 * time.Millisecond)
	resp, _ = env.get(t, "/")
	assertRedirect(t, resp, "/auth")

	// The provider recovers with the session still live and the cached
	// indeterminate entry gone.
	env.provider.SetUnavailable(false)
	time.Sleep(80 * time.Millisecond)
	identity, err := env.provider.Whoami(ctx, token)
	require.NoError(t, err)
	require.True(t, identity.Authenticated)

	resp, _ = env.get(t, "/")
	assertRedirect(t, resp, "/auth")

	identity, err = env.provider.Whoami(ctx, token)
	require.NoError(t, err)
	assert.False(t, identity.Authenticated, "the guard finished the sign-out")
	assert.Empty(t, env.sessionToken(t))

	resp, body := env.get(t, "/auth")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotContains(t, body, "could not confirm")
}

func TestSignOut_PendingDoesNotBlockSignIn(t *testing.T) {
	env := newTestEnv(t, Options{})

	resp, _ := env.post(t, "/auth", signUpForm("user@example.com", "secret123", "secret123"))
	assertRedirect(t, resp, "/")

	env.provider.SetUnavailable(true)
	resp, _ = env.post(t, "/api/auth/signout", nil)
	assertRedirect(t, resp, "/auth")
	env.provider.SetUnavailable(false)

	resp, _ = env.post(t, "/auth", signInForm("user@example.com", "secret123"))
	assertRedirect(t, resp, "/")

	resp, body := env.get(t, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "user@example.com")
}

func TestSessionAPI(t *testing.T) {
	env := newTestEnv(t, Options{})

	create := func(body string) (*http.Response, string) {
		req, err := http.NewRequest(http.MethodPost, env.srv.URL+"/api/auth/session", strings.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		return env.do(t, req)
	}

	resp, body := create(`{"flow":"signUp","email":"api@example.com","password":"secret123","confirmPassword":"secret123"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, body)
	var sess model.SessionResponse
	require.NoError(t, json.Unmarshal([]byte(body), &sess))
	assert.True(t, sess.Authenticated)
	assert.NotEmpty(t, sess.SessionToken)
	assert.Empty(t, sess.JWT)

	withToken := func(method, path string) (*http.Response, string) {
		req, err := http.NewRequest(method, env.srv.URL+path, nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+sess.SessionToken)
		return env.do(t, req)
	}

	resp, body = withToken(http.MethodGet, "/api/me")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "api@example.com")

	resp, _ = withToken(http.MethodDelete, "/api/auth/session")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = withToken(http.MethodGet, "/api/me")
	assertRedirect(t, resp, "/auth")

	resp, body = create(`{"flow":"signIn","email":"api@example.com","password":"wrong-password"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	var apiErr model.ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(body), &apiErr))
	assert.Equal(t, "INVALID_CREDENTIALS", apiErr.Error.Code)
	assert.Equal(t, "Invalid email or password", apiErr.Error.Message)

	resp, body = create(`{"flow":"signUp","email":"bad","password":"secret123","confirmPassword":"nope"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	require.NoError(t, json.Unmarshal([]byte(body), &apiErr))
	assert.Equal(t, "VALIDATION_FAILED", apiErr.Error.Code)
	assert.Contains(t, apiErr.Error.Attribute, "email")
	assert.Contains(t, apiErr.Error.Attribute, "confirmPassword")

	resp, _ = create(`{"flow":"reset"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = create(`not json`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, err := http.NewRequest(http.MethodDelete, env.srv.URL+"/api/auth/session", nil)
	require.NoError(t, err)
	resp, _ = env.do(t, req)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRouteGuard_BearerJWT(t *testing.T) {
	signer := newTestSigner(t, "public:k1")
	verifier := NewTokenVerifierWithFetcher(staticKeySet{set: signer.set}, "http://kratos/jwks", nil)
	env := newTestEnv(t, Options{Verifier: verifier})

	get := func(token string) (*http.Response, string) {
		req, err := http.NewRequest(http.MethodGet, env.srv.URL+"/api/me", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
		return env.do(t, req)
	}

	resp, body := get(signer.sign(t, "private:k1", validClaims()))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "identity-1")

	other := newTestSigner(t, "public:k1")
	resp, _ = get(other.sign(t, "private:k1", validClaims()))
	assertRedirect(t, resp, "/auth")
}

func TestSessionAPI_SignOutRequiresSessionToken(t *testing.T) {
	signer := newTestSigner(t, "public:k1")
	verifier := NewTokenVerifierWithFetcher(staticKeySet{set: signer.set}, "http://kratos/jwks", nil)
	env := newTestEnv(t, Options{Verifier: verifier})

	req, err := http.NewRequest(http.MethodDelete, env.srv.URL+"/api/auth/session", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+signer.sign(t, "private:k1", validClaims()))

	resp, body := env.do(t, req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var apiErr model.ErrorResponse
	require.NoError(t, json.Unmarshal([]byte(body), &apiErr))
	assert.Equal(t, "SESSION_TOKEN_REQUIRED", apiErr.Error.Code)
}

func TestRouteGuard_SharedRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	env := newTestEnv(t, Options{Cache: session.NewRedisCache(rdb, "test:", 30*time.Second)})

	resp, _ := env.post(t, "/auth", signUpForm("user@example.com", "secret123", "secret123"))
	assertRedirect(t, resp, "/")
	assert.Len(t, mr.Keys(), 1, "sign-in primes the shared cache")

	resp, _ = env.get(t, "/")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	env.provider.SetUnavailable(true)
	resp, _ = env.post(t, "/api/auth/signout", nil)
	assertRedirect(t, resp, "/auth")

	resp, body := env.get(t, "/auth")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, "could not confirm")
}

func TestRequestLogger(t *testing.T) {
	var buf bytes.Buffer
	a := &App{logger: slog.New(slog.NewJSONHandler(&buf, nil))}

	h := a.RequestLogger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/pot", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "http request", line["msg"])
	assert.Equal(t, "/pot", line["path"])
	assert.EqualValues(t, http.StatusTeapot, line["status"])
	assert.EqualValues(t, len("short and stout"), line["bytes"])
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, bearerToken(r))

	r.Header.Set("X-Session-Token", " ory_st_1 ")
	assert.Equal(t, "ory_st_1", bearerToken(r))

	r.Header.Set("Authorization", "Bearer ory_st_2")
	assert.Equal(t, "ory_st_2", bearerToken(r))
}

// slowProvider holds SubmitCredentials until release is closed.
type slowProvider struct {
	*devauth.Provider
	started chan struct{}
	release chan struct{}
}

func (p *slowProvider) SubmitCredentials(ctx context.Context, flow auth.Flow, email, password string) (session.Session, error) {
	p.started <- struct{}{}
	<-p.release
	return p.Provider.SubmitCredentials(ctx, flow, email, password)
}

func TestAuthSubmit_DuplicateRedirectsToForm(t *testing.T) {
	slow := &slowProvider{
		Provider: devauth.NewForTest(),
		started:  make(chan struct{}, 1),
		release:  make(chan struct{}),
	}
	env := newTestEnv(t, Options{Provider: slow})
	form := signUpForm("user@example.com", "secret123", "secret123")

	first := make(chan *http.Response, 1)
	go func() {
		resp, err := env.client.PostForm(env.srv.URL+"/auth", form)
		if err == nil {
			resp.Body.Close()
		}
		first <- resp
	}()
	<-slow.started

	resp, _ := env.post(t, "/auth", form)
	assertRedirect(t, resp, "/auth")

	close(slow.release)
	resp = <-first
	require.NotNil(t, resp)
	assertRedirect(t, resp, "/")
}

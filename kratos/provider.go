// Package kratos adapts the Ory Kratos public API to session.Provider using
// the native (API) self-service flows.
package kratos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	ory "github.com/ory/client-go"

	"ory-auth-gate/auth"
	"ory-auth-gate/session"
)

// Kratos UI message ids that mean the identifier is already registered.
var accountExistsMessageIDs = map[int64]bool{
	4000007: true,
	4000027: true,
	4000028: true,
}

var (
	errFlowExpired  = errors.New("self-service flow expired")
	errNotTokenized = errors.New("kratos did not return a tokenized session")
)

// Config configures the Kratos adapter.
type Config struct {
	// PublicURL is the Kratos public API, e.g. http://127.0.0.1:4433.
	PublicURL  string
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Provider talks to Kratos.
type Provider struct {
	client *ory.APIClient
	logger *slog.Logger
}

var _ session.Provider = (*Provider)(nil)

// New builds a Provider for the Kratos public API at cfg.PublicURL.
func New(cfg Config) *Provider {
	conf := ory.NewConfiguration()
	conf.Servers = ory.ServerConfigurations{
		{
			URL: strings.TrimSuffix(cfg.PublicURL, "/"),
		},
	}
	if cfg.HTTPClient != nil {
		conf.HTTPClient = cfg.HTTPClient
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{client: ory.NewAPIClient(conf), logger: logger.With(slog.String("component", "kratos"))}
}

// SubmitCredentials runs one native login or registration flow. An expired
// flow is restarted once.
func (p *Provider) SubmitCredentials(ctx context.Context, flow auth.Flow, email, password string) (session.Session, error) {
	submit := p.login
	if flow == auth.FlowSignUp {
		submit = p.register
	}

	sess, err := submit(ctx, email, password)
	if errors.Is(err, errFlowExpired) {
		p.logger.InfoContext(ctx, "self-service flow expired, restarting", slog.String("flow", string(flow)))
		sess, err = submit(ctx, email, password)
	}
	if errors.Is(err, errFlowExpired) {
		return session.Session{}, fmt.Errorf("%w: %w", auth.ErrNetwork, err)
	}
	return sess, err
}

func (p *Provider) login(ctx context.Context, email, password string) (session.Session, error) {
	flow, resp, err := p.client.FrontendAPI.CreateNativeLoginFlow(ctx).Execute()
	if err != nil {
		return session.Session{}, p.transportError(ctx, "create login flow", resp, err)
	}

	body := ory.UpdateLoginFlowWithPasswordMethodAsUpdateLoginFlowBody(&ory.UpdateLoginFlowWithPasswordMethod{
		Method:     "password",
		Identifier: email,
		Password:   password,
	})
	result, resp, err := p.client.FrontendAPI.UpdateLoginFlow(ctx).
		Flow(flow.GetId()).
		UpdateLoginFlowBody(body).
		Execute()
	if err != nil {
		switch status(resp) {
		case http.StatusBadRequest:
			return session.Session{}, auth.ErrInvalidCredentials
		case http.StatusGone:
			return session.Session{}, errFlowExpired
		}
		return session.Session{}, p.transportError(ctx, "update login flow", resp, err)
	}

	kratosSession := result.GetSession()
	return session.Session{
		Token:    result.GetSessionToken(),
		Identity: identityFromSession(&kratosSession),
	}, nil
}

func (p *Provider) register(ctx context.Context, email, password string) (session.Session, error) {
	flow, resp, err := p.client.FrontendAPI.CreateNativeRegistrationFlow(ctx).Execute()
	if err != nil {
		return session.Session{}, p.transportError(ctx, "create registration flow", resp, err)
	}

	body := ory.UpdateRegistrationFlowWithPasswordMethodAsUpdateRegistrationFlowBody(&ory.UpdateRegistrationFlowWithPasswordMethod{
		Method:   "password",
		Password: password,
		Traits: map[string]interface{}{
			"email": email,
		},
	})
	result, resp, err := p.client.FrontendAPI.UpdateRegistrationFlow(ctx).
		Flow(flow.GetId()).
		UpdateRegistrationFlowBody(body).
		Execute()
	if err != nil {
		switch status(resp) {
		case http.StatusBadRequest:
			return session.Session{}, registrationRejection(err)
		case http.StatusGone:
			return session.Session{}, errFlowExpired
		}
		return session.Session{}, p.transportError(ctx, "update registration flow", resp, err)
	}

	// Without the session hook on registration Kratos creates the identity but
	// no session; signing in completes the flow.
	if result.GetSessionToken() == "" {
		p.logger.InfoContext(ctx, "registration returned no session, signing in", slog.String("identity_id", result.Identity.GetId()))
		return p.login(ctx, email, password)
	}

	identity := identityFromTraits(result.Identity.GetId(), result.Identity.GetTraits())
	identity.Authenticated = true
	return session.Session{Token: result.GetSessionToken(), Identity: identity}, nil
}

// SignOut revokes token. A token Kratos no longer knows counts as signed out.
func (p *Provider) SignOut(ctx context.Context, token string) error {
	resp, err := p.client.FrontendAPI.PerformNativeLogout(ctx).
		PerformNativeLogoutBody(ory.PerformNativeLogoutBody{SessionToken: token}).
		Execute()
	if err != nil {
		switch status(resp) {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return nil
		}
		return p.transportError(ctx, "perform native logout", resp, err)
	}
	return nil
}

// Whoami resolves token to an identity. Unknown, expired and inactive
// sessions are anonymous.
func (p *Provider) Whoami(ctx context.Context, token string) (auth.Identity, error) {
	kratosSession, resp, err := p.client.FrontendAPI.ToSession(ctx).XSessionToken(token).Execute()
	if err != nil {
		switch status(resp) {
		case http.StatusUnauthorized, http.StatusForbidden:
			return auth.Anonymous(), nil
		}
		return auth.Identity{}, p.transportError(ctx, "to session", resp, err)
	}
	if !kratosSession.GetActive() {
		return auth.Anonymous(), nil
	}
	return identityFromSession(kratosSession), nil
}

// Tokenize exchanges token for a JWT minted from the named Kratos template.
func (p *Provider) Tokenize(ctx context.Context, token, template string) (string, error) {
	kratosSession, resp, err := p.client.FrontendAPI.ToSession(ctx).
		XSessionToken(token).
		TokenizeAs(template).
		Execute()
	if err != nil {
		return "", p.transportError(ctx, "tokenize session", resp, err)
	}
	if !kratosSession.HasTokenized() {
		return "", fmt.Errorf("%w: %w", auth.ErrNetwork, errNotTokenized)
	}
	return kratosSession.GetTokenized(), nil
}

func (p *Provider) transportError(ctx context.Context, op string, resp *http.Response, err error) error {
	p.logger.WarnContext(ctx, "kratos request failed",
		slog.String("op", op),
		slog.Int("status", status(resp)),
		slog.Any("error", err),
	)
	return fmt.Errorf("%w: %s: %w", auth.ErrNetwork, op, err)
}

func status(resp *http.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

// flowErrorBody is the part of a failed flow response we read messages from.
type flowErrorBody struct {
	UI struct {
		Messages []uiMessage `json:"messages"`
		Nodes    []struct {
			Messages []uiMessage `json:"messages"`
		} `json:"nodes"`
	} `json:"ui"`
}

type uiMessage struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
	Type string `json:"type"`
}

func registrationRejection(err error) error {
	var apiErr *ory.GenericOpenAPIError
	if !errors.As(err, &apiErr) {
		return auth.ErrValidationRejected
	}

	var body flowErrorBody
	if jsonErr := json.Unmarshal(apiErr.Body(), &body); jsonErr != nil {
		return auth.ErrValidationRejected
	}

	messages := body.UI.Messages
	for _, node := range body.UI.Nodes {
		messages = append(messages, node.Messages...)
	}
	for _, m := range messages {
		if accountExistsMessageIDs[m.ID] {
			return auth.ErrAccountExists
		}
	}
	return auth.ErrValidationRejected
}

func identityFromSession(s *ory.Session) auth.Identity {
	identity := s.GetIdentity()
	out := identityFromTraits(identity.GetId(), identity.GetTraits())
	out.Authenticated = true
	return out
}

// identityFromTraits maps the identity schema traits we know about: email,
// name as a string or {first,last}, and picture or image.
func identityFromTraits(id string, traits interface{}) auth.Identity {
	out := auth.Identity{UserID: id}
	m, ok := traits.(map[string]interface{})
	if !ok {
		return out
	}

	profile := &auth.Profile{}
	profile.Email, _ = m["email"].(string)

	switch name := m["name"].(type) {
	case string:
		profile.Name = name
	case map[string]interface{}:
		first, _ := name["first"].(string)
		last, _ := name["last"].(string)
		profile.Name = strings.TrimSpace(first + " " + last)
	}

	if picture, ok := m["picture"].(string); ok {
		profile.Image = picture
	} else if image, ok := m["image"].(string); ok {
		profile.Image = image
	}

	out.Profile = profile
	return out
}

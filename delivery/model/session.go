package model

import "ory-auth-gate/auth"

type (
	// SubmitCredentialsRequest is the body of POST /api/auth/session.
	SubmitCredentialsRequest struct {
		// Flow is "signIn" or "signUp".
		Flow            string `json:"flow"`
		FormID          string `json:"formId,omitempty"`
		Email           string `json:"email"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirmPassword,omitempty"`
		PrivacyConsent  bool   `json:"privacyConsent,omitempty"`
	}

	SessionResponse struct {
		IdentityResponse
		SessionToken string `json:"sessionToken"`
		// JWT is present when session tokenizing is configured.
		JWT string `json:"jwt,omitempty"`
	}
)

// IdentityResponse is the caller's identity as seen by the route guard.
type IdentityResponse struct {
	Authenticated bool          `json:"authenticated"`
	UserID        string        `json:"userId,omitempty"`
	Profile       *auth.Profile `json:"profile,omitempty"`
}

// NewIdentityResponse converts an identity for the wire.
func NewIdentityResponse(i auth.Identity) IdentityResponse {
	return IdentityResponse{
		Authenticated: i.Authenticated,
		UserID:        i.UserID,
		Profile:       i.Profile,
	}
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	ErrorType string         `json:"type"`
	Attribute map[string]any `json:"attribute,omitempty"`
}

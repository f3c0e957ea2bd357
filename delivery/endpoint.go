package delivery

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"ory-auth-gate/auth"
	"ory-auth-gate/delivery/model"
	"ory-auth-gate/form"
)

const maxRequestBody = 1_048_576 // 1MB

// createSessionHandler signs in or signs up an API client and returns the
// session token, plus a JWT when tokenizing is configured.
func (h *HTTPEndpoint) createSessionHandler(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	var req model.SubmitCredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body", "REQUEST_ERROR", nil)
		return
	}

	flow, err := auth.ParseFlow(req.Flow)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "INVALID_REQUEST", "flow must be signIn or signUp", "REQUEST_ERROR", nil)
		return
	}

	creds := auth.Credentials{
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		PrivacyConsent:  req.PrivacyConsent,
	}
	res, err := h.controller(flow).Submit(r.Context(), req.FormID, creds, &form.Recorder{})
	switch {
	case errors.Is(err, form.ErrSubmissionInFlight):
		writeJSONError(w, http.StatusConflict, "SUBMISSION_IN_FLIGHT", "a submission for this form is already in progress", "REQUEST_ERROR", nil)
		return
	case err != nil:
		return
	}

	if res.State != form.Success {
		if len(res.FieldErrors) > 0 {
			attribute := make(map[string]any, len(res.FieldErrors))
			for field, msg := range res.FieldErrors {
				attribute[field] = msg
			}
			writeJSONError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "invalid credentials input", "VALIDATION_ERROR", attribute)
			return
		}
		writeJSONError(w, failureStatus(res), errorCode(res.Err), res.Submission.ErrorMessage, "AUTH_ERROR", nil)
		return
	}

	resp := model.SessionResponse{
		IdentityResponse: model.NewIdentityResponse(res.Session.Identity),
		SessionToken:     res.Session.Token,
	}
	if sessions := h.app.Sessions(); sessions.TokenizeEnabled() {
		jwt, err := sessions.Tokenize(r.Context(), res.Session.Token)
		if err != nil {
			h.app.Logger().WarnContext(r.Context(), "failed to tokenize session", slog.Any("error", err))
		} else {
			resp.JWT = jwt
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// deleteSessionHandler revokes the bearer session token. JWTs minted from a
// session are rejected: they stay valid until they expire.
func (h *HTTPEndpoint) deleteSessionHandler(w http.ResponseWriter, r *http.Request) {
	token := sessionTokenFromHeader(r)
	if token == "" {
		writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authorization token is required and must be in Bearer format.", "AUTH_ERROR", nil)
		return
	}
	if auth.LooksLikeJWT(token) {
		writeJSONError(w, http.StatusBadRequest, "SESSION_TOKEN_REQUIRED", "sign out with the session token, not a JWT", "REQUEST_ERROR", nil)
		return
	}

	if err := h.app.Sessions().SignOut(r.Context(), token); err != nil {
		h.app.Logger().WarnContext(r.Context(), "api sign-out failed", slog.Any("error", err))
		writeJSONError(w, http.StatusServiceUnavailable, "SESSION_INDETERMINATE", "sign-out could not be confirmed; retry", "AUTH_ERROR", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func sessionTokenFromHeader(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == authHeader {
		return strings.TrimSpace(r.Header.Get("X-Session-Token"))
	}
	return strings.TrimSpace(token)
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return "INVALID_CREDENTIALS"
	case errors.Is(err, auth.ErrAccountExists):
		return "ACCOUNT_EXISTS"
	case errors.Is(err, auth.ErrValidationRejected):
		return "VALIDATION_REJECTED"
	case errors.Is(err, auth.ErrNetwork):
		return "PROVIDER_UNAVAILABLE"
	default:
		return "INTERNAL"
	}
}

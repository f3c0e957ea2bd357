package delivery

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"ory-auth-gate/auth"
	"ory-auth-gate/form"
	"ory-auth-gate/websession"
)

// authPageData holds the data for the sign-in / sign-up template.
type authPageData struct {
	Flashes []websession.Flash

	Flow   auth.Flow
	SignUp bool
	FormID string

	Email        string
	FieldErrors  auth.FieldErrors
	ErrorMessage string

	ShowPasswordToggle     bool
	RequireConfirmPassword bool
	RequirePrivacyConsent  bool

	// Indeterminate is set when the last sign-out could not be confirmed.
	Indeterminate bool
}

func (h *HTTPEndpoint) controller(flow auth.Flow) *form.Controller {
	if flow == auth.FlowSignUp {
		return h.app.SignUpForm()
	}
	return h.app.SignInForm()
}

func (h *HTTPEndpoint) newAuthPageData(w http.ResponseWriter, r *http.Request, c *form.Controller) authPageData {
	cfg := c.Config()
	return authPageData{
		Flashes:                h.flashes(w, r),
		Flow:                   cfg.Flow,
		SignUp:                 cfg.Flow == auth.FlowSignUp,
		FormID:                 form.NewFormID(),
		ShowPasswordToggle:     cfg.ShowPasswordToggle,
		RequireConfirmPassword: cfg.RequireConfirmPassword,
		RequirePrivacyConsent:  cfg.RequirePrivacyConsent,
		Indeterminate:          h.app.SessionIndeterminate(r.Context()),
	}
}

// authPageHandler renders the sign-in form, or the sign-up form with
// ?mode=signup.
func (h *HTTPEndpoint) authPageHandler(w http.ResponseWriter, r *http.Request) {
	flow := auth.FlowSignIn
	if r.URL.Query().Get("mode") == "signup" {
		flow = auth.FlowSignUp
	}
	data := h.newAuthPageData(w, r, h.controller(flow))
	h.render(w, r, http.StatusOK, authTemplate, data)
}

// authSubmitHandler handles the POST from either form. The hidden "flow"
// field tells the two apart.
func (h *HTTPEndpoint) authSubmitHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}
	flow, err := auth.ParseFlow(r.PostForm.Get("flow"))
	if err != nil {
		http.Error(w, "Missing or unknown flow", http.StatusBadRequest)
		return
	}

	c := h.controller(flow)
	creds := credentialsFromForm(r.PostForm)
	fx := &form.Recorder{}

	res, err := c.Submit(r.Context(), r.PostForm.Get("form_id"), creds, fx)
	switch {
	case errors.Is(err, form.ErrSubmissionInFlight):
		// The browser dropped the first request, so its answer is lost. Send
		// it back to a fresh form where the guard shows the real state.
		h.app.Logger().InfoContext(r.Context(), "duplicate form submission", slog.String("flow", string(flow)))
		http.Redirect(w, r, authPath, http.StatusSeeOther)
		return
	case err != nil:
		// The client went away; nothing to answer.
		return
	}

	if res.State == form.Success {
		if err := h.app.Cookies().SetToken(w, r, res.Session.Token); err != nil {
			h.app.Logger().ErrorContext(r.Context(), "failed to store session token", slog.Any("error", err))
			http.Redirect(w, r, "/error?reason="+url.QueryEscape("Could not start your session."), http.StatusSeeOther)
			return
		}
		h.applyEffects(w, r, fx)
		return
	}

	data := h.newAuthPageData(w, r, c)
	data.Email = creds.Normalized().Email
	data.FieldErrors = res.FieldErrors
	data.ErrorMessage = res.Submission.ErrorMessage
	for _, n := range fx.Notices {
		data.Flashes = append(data.Flashes, websession.Flash{Level: string(n.Level), Message: n.Message})
	}
	h.render(w, r, failureStatus(res), authTemplate, data)
}

// applyEffects turns the controller's side effects into the response: notices
// become flashes for the next page and the navigation becomes a redirect.
func (h *HTTPEndpoint) applyEffects(w http.ResponseWriter, r *http.Request, fx *form.Recorder) {
	for _, n := range fx.Notices {
		h.addFlash(w, r, string(n.Level), n.Message)
	}
	target := form.HomePath
	if len(fx.Navigations) > 0 {
		target = fx.Navigations[len(fx.Navigations)-1]
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func credentialsFromForm(v url.Values) auth.Credentials {
	return auth.Credentials{
		Email:           v.Get("email"),
		Password:        v.Get("password"),
		ConfirmPassword: v.Get("confirmPassword"),
		PrivacyConsent:  v.Get("privacyConsent") == "on",
	}
}

// failureStatus maps a failed submission to an HTTP status.
func failureStatus(res form.Result) int {
	switch {
	case len(res.FieldErrors) > 0, errors.Is(res.Err, auth.ErrValidationRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(res.Err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(res.Err, auth.ErrAccountExists):
		return http.StatusConflict
	case errors.Is(res.Err, auth.ErrNetwork):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

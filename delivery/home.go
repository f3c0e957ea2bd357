package delivery

import (
	"log/slog"
	"net/http"

	"ory-auth-gate/auth"
	"ory-auth-gate/delivery/model"
	"ory-auth-gate/websession"
)

// homePageData holds the data that will be passed to the home template.
type homePageData struct {
	Flashes  []websession.Flash
	Identity auth.Identity
}

func (h *HTTPEndpoint) homeHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.app.IdentityFromContext(r.Context())
	if !ok || !identity.Authenticated {
		// This should not happen if the guard is working, but it's a safe fallback.
		h.app.Logger().ErrorContext(r.Context(), "home: identity not found in context")
		http.Redirect(w, r, authPath, http.StatusSeeOther)
		return
	}

	data := homePageData{
		Flashes:  h.flashes(w, r),
		Identity: identity,
	}
	h.render(w, r, http.StatusOK, homeTemplate, data)
}

// meHandler returns the caller's identity.
func (h *HTTPEndpoint) meHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := h.app.IdentityFromContext(r.Context())
	if !ok {
		// For an API endpoint, it's better to return a JSON error than to redirect.
		h.app.Logger().ErrorContext(r.Context(), "me: identity not found in context", slog.String("path", r.URL.Path))
		writeJSONError(w, http.StatusInternalServerError, "INTERNAL", "identity not found in context", "SERVER_ERROR", nil)
		return
	}
	writeJSON(w, http.StatusOK, model.NewIdentityResponse(identity))
}

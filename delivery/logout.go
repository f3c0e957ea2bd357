package delivery

import (
	"log/slog"
	"net/http"

	"ory-auth-gate/websession"
)

const (
	authPath = "/auth"

	msgSignedOut     = "Signed out"
	msgSignOutFailed = "Unable to sign out. Please try again."
)

// signOutHandler ends the browser session. It sits outside the route guard so
// a session that could not be confirmed can still retry.
func (h *HTTPEndpoint) signOutHandler(w http.ResponseWriter, r *http.Request) {
	cookies := h.app.Cookies()
	token := cookies.Token(r)

	if err := h.app.Sessions().SignOut(r.Context(), token); err != nil {
		// Keep the token marked: the guard refuses it and retries the
		// sign-out until one succeeds.
		h.app.Logger().WarnContext(r.Context(), "sign-out failed", slog.Any("error", err))
		if err := cookies.MarkSignOutPending(w, r); err != nil {
			h.app.Logger().ErrorContext(r.Context(), "failed to mark sign-out pending", slog.Any("error", err))
		}
		h.addFlash(w, r, websession.FlashError, msgSignOutFailed)
		http.Redirect(w, r, authPath, http.StatusSeeOther)
		return
	}

	if err := cookies.ClearToken(w, r); err != nil {
		h.app.Logger().ErrorContext(r.Context(), "failed to clear session token", slog.Any("error", err))
	}
	h.addFlash(w, r, websession.FlashSuccess, msgSignedOut)
	http.Redirect(w, r, authPath, http.StatusSeeOther)
}

package delivery

import (
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"

	"ory-auth-gate/delivery/model"
	"ory-auth-gate/websession"
)

// HTTPEndpoint holds a reference to the core application.
type HTTPEndpoint struct {
	app AppDependencies
}

type errorPageData struct {
	Flashes []websession.Flash
	ID      string
	Reason  string
}

// errorHandler renders the generic error page.
func (h *HTTPEndpoint) errorHandler(w http.ResponseWriter, r *http.Request) {
	data := errorPageData{
		ID:     r.URL.Query().Get("id"),
		Reason: r.URL.Query().Get("reason"),
	}
	// If no specific reason is provided, use a generic one.
	if data.Reason == "" {
		data.Reason = "An unexpected error occurred."
	}
	h.render(w, r, http.StatusInternalServerError, errorTemplate, data)
}

func (h *HTTPEndpoint) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusNotFound, errorTemplate, errorPageData{Reason: "The page you asked for does not exist."})
}

func (h *HTTPEndpoint) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// render executes the layout of tmpl. A template failure falls back to a
// plain-text error since headers may already be gone.
func (h *HTTPEndpoint) render(w http.ResponseWriter, r *http.Request, status int, tmpl *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	if err := tmpl.ExecuteTemplate(w, "layout", data); err != nil {
		h.app.Logger().ErrorContext(r.Context(), "failed to execute template",
			slog.String("template", tmpl.Name()),
			slog.Any("error", err),
		)
		http.Error(w, "Failed to render the page", http.StatusInternalServerError)
	}
}

func (h *HTTPEndpoint) flashes(w http.ResponseWriter, r *http.Request) []websession.Flash {
	return h.app.Cookies().Flashes(w, r)
}

func (h *HTTPEndpoint) addFlash(w http.ResponseWriter, r *http.Request, level, msg string) {
	if err := h.app.Cookies().AddFlash(w, r, websession.Flash{Level: level, Message: msg}); err != nil {
		h.app.Logger().WarnContext(r.Context(), "failed to queue flash", slog.Any("error", err))
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeJSONError(w http.ResponseWriter, status int, code, message, errorType string, attribute map[string]any) {
	writeJSON(w, status, model.ErrorResponse{
		Error: model.ErrorDetail{
			Code:      code,
			Message:   message,
			ErrorType: errorType,
			Attribute: attribute,
		},
	})
}

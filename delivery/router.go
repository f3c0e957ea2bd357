package delivery

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the HTTP surface over the application dependencies.
func NewRouter(deps AppDependencies) http.Handler {
	ParseAllTemplates()

	r := chi.NewRouter()

	h := &HTTPEndpoint{
		app: deps,
	}

	// --- Global Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(deps.RequestLogger)
	r.Use(middleware.Recoverer)

	// --- Outside the guard: assets, health check and the session API ---
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(staticFiles())))
	r.Get("/healthz", h.healthHandler)
	r.Get("/error", h.errorHandler)

	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/session", h.createSessionHandler)
		r.Delete("/session", h.deleteSessionHandler)
		r.Post("/signout", h.signOutHandler)
	})

	// --- Guarded pages ---
	r.Group(func(r chi.Router) {
		r.Use(deps.RouteGuard)
		r.Get("/auth", h.authPageHandler)
		r.Post("/auth", h.authSubmitHandler)
		r.Get("/", h.homeHandler)
		r.Get("/api/me", h.meHandler)
		r.NotFound(h.notFoundHandler)
	})

	return r
}

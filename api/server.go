/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS (all scoped by the {tenant} path segment):
  /api/{tenant}/rates       Pay rate configuration
  /api/{tenant}/workers     Worker registry
  /api/{tenant}/workdays    Labor ledger
  /api/{tenant}/supplies    Supply ledger
  /api/{tenant}/closings    Monthly closings
  /api/{tenant}/tasks       Planned task calendar

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api/{tenant}", func(r chi.Router) {
		// Rate routes
		r.Route("/rates", func(r chi.Router) {
			r.Get("/", h.GetRates)
			r.Put("/", h.SetRates)
		})

		// Worker routes
		r.Route("/workers", func(r chi.Router) {
			r.Get("/", h.ListWorkers)
			r.Post("/", h.CreateWorker)
		})

		// Ledger routes
		r.Route("/workdays", func(r chi.Router) {
			r.Get("/", h.ListWorkdays)
			r.Post("/", h.CreateWorkday)
			r.Put("/{id}", h.UpdateWorkday)
		})
		r.Route("/supplies", func(r chi.Router) {
			r.Get("/", h.ListSupplies)
			r.Post("/", h.CreateSupply)
			r.Put("/{id}", h.UpdateSupply)
		})

		// Closing routes
		r.Route("/closings", func(r chi.Router) {
			r.Get("/", h.ListClosings)
			r.Post("/", h.CreateClosing)
			r.Get("/{id}", h.GetClosing)
		})

		// Task routes
		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", h.ListTasks)
			r.Post("/", h.CreateTask)
			r.Post("/{id}/complete", h.CompleteTask)
			r.Post("/{id}/postpone", h.PostponeTask)
		})
	})

	return r
}

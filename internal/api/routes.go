package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes builds the router for the ingestion API.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute)) // large export uploads

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.HandleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Route("/ingest", func(r chi.Router) {
			r.Post("/", h.HandleIngest)
			r.Get("/{jobID}", h.HandleIngestStatus)
			r.Get("/{jobID}/errors", h.HandleIngestErrors)
		})

		r.Get("/events", h.HandleListEvents)
		r.Get("/contacts", h.HandleListContacts)

		r.Route("/watcher", func(r chi.Router) {
			r.Post("/trigger", h.HandleWatcherTrigger)
			r.Get("/status", h.HandleWatcherStatus)
		})
	})

	return r
}

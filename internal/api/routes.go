package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("X-Server-Identity", "campaign-core-v1")
			next.ServeHTTP(w, req)
		})
	})

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders: []string{"Link"},
		MaxAge:         300,
	}))

	// Health (no auth)
	if h.health != nil {
		r.Get("/health", h.health.HandleHealth)
		r.Get("/health/live", h.health.HandleLiveness)
		r.Get("/health/ready", h.health.HandleReadiness)
	}

	// Tracking links and provider webhooks
	if h.tracking != nil {
		r.Mount("/track", h.tracking.Routes())
		r.Post("/webhooks/events", h.tracking.HandleWebhook)
	}

	r.Route("/api", func(r chi.Router) {
		// Recurrence rules
		r.Route("/schedules", func(r chi.Router) {
			r.Post("/validate", h.ValidateSchedule)
			r.Post("/preview", h.PreviewSchedule)
			r.Get("/{id}", h.GetSchedule)
		})

		r.Route("/campaigns/{id}", func(r chi.Router) {
			r.Get("/schedule", h.GetCampaignSchedule)
			r.Put("/schedule", h.PutCampaignSchedule)

			// Engagement analytics
			r.Get("/analytics", h.GetCampaignAnalytics)
			r.Get("/timeline", h.GetCampaignTimeline)
			r.Get("/contacts", h.GetCampaignContacts)
			r.Get("/contacts/{email}", h.GetCampaignContact)
			r.Get("/daily", h.GetCampaignDaily)
		})

		r.Get("/clients/{id}/analytics", h.GetClientAnalytics)
	})

	return r
}

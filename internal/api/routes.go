package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/marketsage/journey-engine/internal/config"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, corsCfg config.CORSConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsCfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Organization-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (no org context required)
	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Use(requireOrg)

		r.Route("/journeys", func(r chi.Router) {
			r.Get("/", h.ListJourneys)
			r.Post("/", h.CreateJourney)

			r.Route("/{journeyID}", func(r chi.Router) {
				r.Get("/", h.GetJourney)
				r.Put("/", h.UpdateJourney)
				r.Delete("/", h.DeleteJourney)
				r.Post("/activate", h.ActivateJourney)
				r.Post("/deactivate", h.DeactivateJourney)

				r.Post("/stages", h.AddStage)
				r.Put("/stages/{stageID}", h.UpdateStage)
				r.Delete("/stages/{stageID}", h.DeleteStage)
				r.Get("/stages/{stageID}/contacts", h.ListContactsInStage)

				r.Post("/transitions", h.AddTransition)
				r.Put("/transitions/{transitionID}", h.UpdateTransition)
				r.Delete("/transitions/{transitionID}", h.DeleteTransition)

				r.Post("/enrollments", h.Enroll)

				r.Route("/analytics", func(r chi.Router) {
					r.Post("/recompute", h.RecomputeAnalytics)
					r.Get("/latest", h.LatestSnapshot)
					r.Get("/bottlenecks", h.Bottlenecks)
					r.Get("/flow", h.FlowDistribution)
					r.Get("/completion-times", h.CompletionTimes)
				})

				r.Route("/metrics", func(r chi.Router) {
					r.Get("/", h.ListMetrics)
					r.Post("/", h.DefineMetric)
					r.Post("/recalculate", h.RecalculateMetrics)
					r.Get("/{metricID}", h.GetMetric)
					r.Put("/{metricID}", h.UpdateMetric)
					r.Delete("/{metricID}", h.DeleteMetric)
					r.Put("/{metricID}/stages/{stageID}", h.SetStageMetricValue)
				})
			})
		})

		r.Route("/contact-journeys/{contactJourneyID}", func(r chi.Router) {
			r.Get("/", h.GetContactJourney)
			r.Post("/advance", h.AdvanceStage)
			r.Post("/pause", h.PauseContactJourney)
			r.Post("/resume", h.ResumeContactJourney)
			r.Post("/drop", h.DropContactJourney)
		})

		r.Get("/contacts/{contactID}/journeys", h.ListContactJourneys)
	})

	return r
}

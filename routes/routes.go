package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/upb/gen-orchestrator/app"
	"github.com/upb/gen-orchestrator/handlers"
	"github.com/upb/gen-orchestrator/middleware"
	"github.com/upb/gen-orchestrator/utils"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(chimw.Recoverer)

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	generationTimeout := deps.Config.Generation.Timeout
	if generationTimeout <= 0 {
		generationTimeout = 5 * time.Minute
	}

	var db handlers.DatabaseChecker
	if deps.DB != nil {
		db = deps.DB
	}
	health := handlers.NewHealthHandler(db, deps.Providers, deps.Logger)
	generations := handlers.NewGenerationHandler(deps.GenerationService, deps.Logger)
	providers := handlers.NewProviderHandler(deps.Dispatcher, deps.Logger)

	// Health check endpoints
	r.Get("/healthz", health.HandleHealth)
	r.Get("/readyz", health.HandleReadiness)

	if deps.MetricsRegistry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.MetricsRegistry, promhttp.HandlerOpts{}))
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/generations", func(r chi.Router) {
			// Synchronous dispatch is bounded by the generation timeout
			r.With(chimw.Timeout(generationTimeout)).Post("/{kind}", generations.HandleGenerate)

			r.Group(func(r chi.Router) {
				r.Use(chimw.Timeout(10 * time.Second))
				r.Get("/", generations.HandleList)
				r.Get("/{id}", generations.HandleGet)
			})
		})

		r.Route("/providers", func(r chi.Router) {
			r.Get("/", providers.HandleList)
			r.Get("/stats", providers.HandleStats)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteNotFound(w, "endpoint not found")
	})

	return r
}

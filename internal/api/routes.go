package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Routes holds the pieces NewRouter mounts. Nil members are skipped.
type Routes struct {
	Handlers *Handlers
	Health   *HealthChecker
	Webhooks interface{ RegisterRoutes(chi.Router) }
	Metrics  http.Handler

	AllowedOrigins []string
}

// NewRouter configures all routes.
func NewRouter(rt Routes) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	origins := rt.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:8080"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if rt.Health != nil {
		r.Get("/health", rt.Health.HandleHealth)
		r.Get("/health/ready", rt.Health.HandleReadiness)
	}
	if rt.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.Metrics)
	}

	// Provider callbacks sit outside /api; providers cannot send our auth.
	if rt.Webhooks != nil {
		rt.Webhooks.RegisterRoutes(r)
	}

	if rt.Handlers != nil {
		r.Route("/api", func(r chi.Router) {
			r.Post("/campaigns/{id}/launch", rt.Handlers.LaunchCampaign)
			r.Get("/campaigns/{id}/stats", rt.Handlers.GetCampaignStats)
			r.Post("/triggers/{name}", rt.Handlers.RunTrigger)
		})
	}

	return r
}

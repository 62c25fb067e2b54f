// Package httpapi is the thin REST transport over the Memory Core
// (spec.md §6). Handlers decode a request DTO, delegate to [core.Core] (the
// batch endpoint once per item; /system/status also reads the store's
// capabilities), and project the result back to a DTO — they hold no
// business logic of their own.
package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/powermem-ai/powermem/internal/core"
	"github.com/powermem-ai/powermem/internal/health"
	"github.com/powermem-ai/powermem/internal/observe"
	"github.com/powermem-ai/powermem/pkg/memory"
)

// Server wires a [core.Core] to an [http.Handler] implementing the REST
// surface from spec.md §6.
type Server struct {
	core    *core.Core
	store   memory.Store
	health  *health.Handler
	metrics *observe.Metrics
	router  chi.Router
}

// Config configures [New].
type Config struct {
	Core    *core.Core
	Store   memory.Store
	Health  *health.Handler
	Metrics *observe.Metrics
	// APIKeys is the X-API-Key allow-list. Empty disables auth.
	APIKeys []string
}

// New builds a [Server] with its full route table wired.
func New(cfg Config) *Server {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}

	s := &Server{core: cfg.Core, store: cfg.Store, health: cfg.Health, metrics: metrics}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Content-Type", "X-API-Key"},
	}))
	r.Use(observe.Middleware(metrics))

	r.Get("/system/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	if s.health != nil {
		r.Get("/healthz", s.health.Healthz)
		r.Get("/readyz", s.health.Readyz)
	}

	r.Group(func(r chi.Router) {
		r.Use(apiKeyAuth(cfg.APIKeys))

		r.Route("/memories", func(r chi.Router) {
			r.Post("/", s.handleAdd)
			r.Post("/batch", s.handleAddBatch)
			r.Get("/", s.handleGetAll)
			r.Post("/search", s.handleSearch)
			r.Get("/{id}", s.handleGet)
			r.Put("/{id}", s.handleUpdate)
			r.Delete("/{id}", s.handleDelete)
		})

		r.Route("/system", func(r chi.Router) {
			r.Get("/status", s.handleStatus)
			r.Delete("/delete-all-memories", s.handleDeleteAll)
		})
	})

	s.router = r
	return s
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

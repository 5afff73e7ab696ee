package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cidesolutions/armonia-reconciler/internal/engine"
	"github.com/cidesolutions/armonia-reconciler/internal/repository"
	"github.com/cidesolutions/armonia-reconciler/internal/store"
	"github.com/cidesolutions/armonia-reconciler/internal/tenant"
)

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(
	eng *engine.Engine,
	st *store.Store,
	reconRepo *repository.ReconciliationRepo,
	resolver tenant.Resolver,
) http.Handler {
	h := &Handlers{
		engine:    eng,
		store:     st,
		reconRepo: reconRepo,
		resolver:  resolver,
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Route("/api/v1", func(r chi.Router) {
		// Statement processing.
		r.Post("/statements/process", h.ProcessStatement)

		// Reconciliations.
		r.Get("/reconciliations", h.ListReconciliations)
		r.Get("/reconciliations/stats", h.GetStats)
		r.Get("/reconciliations/{id}", h.GetReconciliation)
		r.Post("/reconciliations/bulk-action", h.BulkAction)
		r.Post("/reconciliations/manual-match", h.ManualMatch)

		// Engine configuration.
		r.Get("/config", h.GetConfig)
		r.Put("/config", h.UpdateConfig)

		// Health.
		r.Get("/health", h.Health)
	})

	return r
}

package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sevigo/integrator/internal/dispatch"
	"github.com/sevigo/integrator/internal/factory"
	"github.com/sevigo/integrator/internal/lifecycle"
	"github.com/sevigo/integrator/internal/server/handler"
	"github.com/sevigo/integrator/internal/storage"
)

// NewRouter creates the operations API router.
func NewRouter(jobs storage.JobStore, runs storage.RunStore, f *factory.Factory,
	submitter *dispatch.Submitter, manager *lifecycle.Manager, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		runHandler := handler.NewRunHandler(jobs, runs, f, submitter, manager, logger)
		r.Post("/jobs/{jobID}/runs", runHandler.Create)
		r.Get("/runs/{runID}", runHandler.Get)
		r.Post("/runs/{runID}/cancel", runHandler.Cancel)
		r.Post("/runs/{runID}/reset", runHandler.Reset)
	})

	return r
}

// Package server runs the ops HTTP server: health checks, metrics and a read-only
// view of order jobs.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/planet-pipeline/internal/core/health"
	middleware "github.com/mohammed-shakir/planet-pipeline/internal/core/middleware"
	"github.com/mohammed-shakir/planet-pipeline/internal/jobstore"
	"github.com/mohammed-shakir/planet-pipeline/internal/metrics"
)

type Deps struct {
	Store   jobstore.Store
	Metrics *metrics.Provider
	Checks  []health.Check
}

// Router builds the ops routes.
func Router(logger *slog.Logger, deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics())

	if deps.Metrics == nil {
		deps.Metrics = metrics.Init(metrics.Config{})
	}

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(2*time.Second, deps.Checks...))
	r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())

	if deps.Store != nil {
		r.Route("/runs/{run}/jobs", func(r chi.Router) {
			r.Get("/", listJobs(logger, deps.Store))
			r.Get("/{date}", getJob(logger, deps.Store))
		})
	}
	return r
}

// sets up http and starts serving
func Run(ctx context.Context, addr string, logger *slog.Logger, deps Deps) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Router(logger, deps),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}

func listJobs(logger *slog.Logger, store jobstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recs, err := store.List(r.Context(), chi.URLParam(r, "run"))
		if err != nil {
			logger.ErrorContext(r.Context(), "list jobs", "error", err)
			http.Error(w, "job store unavailable", http.StatusBadGateway)
			return
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

func getJob(logger *slog.Logger, store jobstore.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec, err := store.Get(r.Context(), chi.URLParam(r, "run"), chi.URLParam(r, "date"))
		switch {
		case errors.Is(err, jobstore.ErrNotFound):
			http.Error(w, "job not found", http.StatusNotFound)
		case err != nil:
			logger.ErrorContext(r.Context(), "get job", "error", err)
			http.Error(w, "job store unavailable", http.StatusBadGateway)
		default:
			writeJSON(w, http.StatusOK, rec)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

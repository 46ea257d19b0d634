// Package health serves the liveness and readiness endpoints.
package health

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"

	"groupcast/core/logger"
)

// Server is a small HTTP server exposing /healthz and /readyz. Readiness
// includes a database ping.
type Server struct {
	srv *http.Server
	db  *sqlx.DB
	log *slog.Logger
}

// New builds the server; it does not start listening yet.
func New(listen string, db *sqlx.DB) *Server {
	s := &Server{db: db, log: logger.L.With("component", "health")}

	router := chi.NewRouter()
	router.Use(chimw.Recoverer)
	router.Get("/healthz", s.healthz)
	router.Get("/readyz", s.readyz)

	s.srv = &http.Server{
		Addr:              listen,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start begins serving in the background.
func (s *Server) Start() {
	go func() {
		s.log.Info("health server listening",
			slog.String("event", "health.start"),
			slog.String("listen", s.srv.Addr),
		)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("health server failed",
				slog.String("event", "health.serve"),
				slog.String("err", err.Error()),
			)
		}
	}()
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		http.Error(w, "db unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

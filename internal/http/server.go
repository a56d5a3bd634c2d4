// README: API gateway; registers HTTP routes and delegates to module services.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"travelmate/internal/http/handlers"
	"travelmate/internal/modules/candidate"
	"travelmate/internal/modules/discovery"
	"travelmate/internal/modules/location"
	"travelmate/internal/observability"
)

// ServerDeps lists the collaborators behind the routes. Positions, Profiles
// and Metrics are optional.
type ServerDeps struct {
	Discovery *discovery.Manager
	Locations *location.Service
	Positions candidate.PositionWriter
	Profiles  candidate.ProfileWriter
	Addresses handlers.AddressLookup
	Metrics   *observability.Collector
	Logger    *slog.Logger
}

type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

func NewServer(addr string, deps ServerDeps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	// Event streams end once their sessions are closed.
	srv.RegisterOnShutdown(deps.Discovery.Close)
	return &Server{srv: srv, logger: deps.Logger}
}

func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Run serves until ctx is done, then drains connections for at most
// shutdownTimeout.
func (s *Server) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.srv.Addr)
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

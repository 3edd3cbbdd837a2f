// Package server provides the HTTP listener lifecycle for the proxy:
// the main listener, an optional forwarding health listener, and graceful
// shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Config holds the listener settings.
type Config struct {
	// Address is the main listener in host:port form.
	Address string

	// HealthAddress, when non-empty, starts a second listener whose
	// /_health forwards to the main listener. It lets health probes reach
	// the proxy on a port that carries no secret traffic.
	HealthAddress string

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Server runs the proxy listeners.
type Server struct {
	cfg     Config
	handler http.Handler
	logger  zerolog.Logger
}

// New creates a server for the given handler.
func New(cfg Config, handler http.Handler, logger zerolog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
	}
}

// Run starts the listeners and blocks until ctx is cancelled or a listener
// fails. On cancellation both listeners shut down gracefully within the
// configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	main := &http.Server{
		Addr:         s.cfg.Address,
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  s.cfg.IdleTimeout,
	}

	servers := []*http.Server{main}
	if s.cfg.HealthAddress != "" {
		servers = append(servers, &http.Server{
			Addr:         s.cfg.HealthAddress,
			Handler:      s.healthForwarder(),
			ReadTimeout:  s.cfg.ReadTimeout,
			WriteTimeout: s.cfg.WriteTimeout,
		})
	}

	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		srv := srv
		go func() {
			s.logger.Info().Str("address", srv.Addr).Msg("Listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info().Msg("Shutting down")
	case runErr = <-errCh:
		s.logger.Error().Err(runErr).Msg("Listener failed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout())
	defer cancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil && runErr == nil {
			runErr = fmt.Errorf("shutdown %s: %w", srv.Addr, err)
		}
	}
	return runErr
}

func (s *Server) shutdownTimeout() time.Duration {
	if s.cfg.ShutdownTimeout > 0 {
		return s.cfg.ShutdownTimeout
	}
	return 15 * time.Second
}

// healthForwarder proxies /_health to the main listener so the health
// port reflects the real serving state, not just process liveness.
func (s *Server) healthForwarder() http.Handler {
	client := &http.Client{Timeout: 5 * time.Second}
	target := fmt.Sprintf("http://%s/_health", dialableAddress(s.cfg.Address))

	mux := http.NewServeMux()
	mux.HandleFunc("GET /_health", func(w http.ResponseWriter, r *http.Request) {
		resp, err := client.Get(target)
		if err != nil {
			s.logger.Warn().Err(err).Str("url", target).Msg("Failed to forward health check")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			s.logger.Warn().Err(err).Str("url", target).Msg("Failed to read forwarded health check")
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(body)
	})
	return mux
}

// dialableAddress rewrites an unspecified listen host (0.0.0.0, ::) into a
// loopback target the forwarder can reach.
func dialableAddress(address string) string {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return address
	}
	if host == "" {
		return net.JoinHostPort("127.0.0.1", port)
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
		return net.JoinHostPort("127.0.0.1", port)
	}
	return net.JoinHostPort(host, port)
}

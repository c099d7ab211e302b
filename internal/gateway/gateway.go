// ABOUTME: Server assembly wiring the user directory, sessions, and auth surface
// ABOUTME: Owns the HTTP server lifecycle, janitor sweeps, and graceful shutdown

package gateway

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/CohesiumAI/openclaw-sub000/internal/auth"
	"github.com/CohesiumAI/openclaw-sub000/internal/config"
	"github.com/CohesiumAI/openclaw-sub000/internal/ratelimit"
	"github.com/CohesiumAI/openclaw-sub000/internal/session"
	"github.com/CohesiumAI/openclaw-sub000/internal/store"
	"github.com/CohesiumAI/openclaw-sub000/internal/webauth"
)

// sweepInterval is how often the janitor evicts expired sessions and
// spent rate-limit buckets.
const sweepInterval = 5 * time.Minute

// Server assembles the auth subsystem behind one HTTP listener.
type Server struct {
	config    *config.Config
	directory *store.SQLiteDirectory
	sessions  *session.Manager
	limiter   *ratelimit.Limiter
	tokens    *auth.TokenManager
	webAuth   *webauth.Handler

	httpServer  *http.Server
	logger      *slog.Logger
	janitorDone chan struct{}
	stopJanitor sync.Once
}

// New wires the directory, session manager, limiter, and auth handler
// into a runnable server. The caller owns config validation.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	directory, err := store.NewSQLiteDirectory(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening user directory: %w", err)
	}

	sessions, err := session.NewManager(session.Config{
		DataDir:      cfg.Storage.DataDir,
		TTL:          cfg.Session.TTL,
		PersistDelay: cfg.Session.PersistDelay,
		Logger:       logger.With("component", "session"),
	})
	if err != nil {
		_ = directory.Close()
		return nil, fmt.Errorf("starting session manager: %w", err)
	}

	trustedProxies, err := webauth.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		_ = sessions.Close()
		_ = directory.Close()
		return nil, err
	}

	secret, err := tokenSecret(cfg, logger)
	if err != nil {
		_ = sessions.Close()
		_ = directory.Close()
		return nil, err
	}

	limiter := ratelimit.New()
	tokens := auth.NewTokenManager(secret, 0)
	webAuth := webauth.NewHandler(directory, sessions, limiter, tokens, webauth.Config{
		TrustedProxies: trustedProxies,
		TotpIssuer:     cfg.Auth.TotpIssuer,
	})

	s := &Server{
		config:      cfg,
		directory:   directory,
		sessions:    sessions,
		limiter:     limiter,
		tokens:      tokens,
		webAuth:     webAuth,
		logger:      logger.With("component", "gateway"),
		janitorDone: make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /health/ready", s.handleReady)
	webAuth.RegisterRoutes(mux)

	// Outermost first: recovery catches everything, logging sees every
	// request, the CSRF guard fronts the routed handlers.
	handler := s.recoverPanics(s.logRequests(webAuth.CSRFProtect(mux)))

	s.httpServer = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// tokenSecret returns the configured handoff-token signing secret, or
// a random per-process one. A random secret invalidates outstanding
// tokens on restart.
func tokenSecret(cfg *config.Config, logger *slog.Logger) ([]byte, error) {
	if cfg.Auth.TokenSecret != "" {
		return []byte(cfg.Auth.TokenSecret), nil
	}
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generating token secret: %w", err)
	}
	logger.Warn("auth.token_secret not configured, using a per-process secret")
	return secret, nil
}

// Run starts the server and blocks until the context is canceled or
// the listener fails. Returns nil on graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.config.Server.ListenAddr, err)
	}

	go s.janitor()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := s.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context; the run
// context is already canceled by the time shutdown starts.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown stops the HTTP server and the janitor, then releases
// storage. The session manager closes before the directory so the
// final snapshot flush runs while everything is still up.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))

	s.stopJanitor.Do(func() { close(s.janitorDone) })

	errs = appendCloseError(errs, "session close", s.sessions.Close())
	errs = appendCloseError(errs, "directory close", s.directory.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// janitor periodically evicts expired sessions and stale rate-limit
// buckets so the maps track live traffic, not history.
func (s *Server) janitor() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepOnce()
		case <-s.janitorDone:
			return
		}
	}
}

func (s *Server) sweepOnce() {
	if n := s.sessions.SweepExpired(); n > 0 {
		s.logger.Info("swept expired sessions", "count", n)
	}
	s.limiter.Sweep()
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK once the user directory answers queries.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.directory.CountUsers(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("user directory unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

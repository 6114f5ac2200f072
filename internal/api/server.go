package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.balki.me/anyhttp"

	"github.com/kdells/postflight/internal/store"
	"github.com/kdells/postflight/internal/tasks"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
	writeTimeout      = 30 * time.Second
)

// Server wraps the chi router and application dependencies.
type Server struct {
	router     *chi.Mux
	store      store.Store
	dispatcher *tasks.Dispatcher
	logger     *slog.Logger
	addr       string
}

// NewServer creates and configures a new HTTP server.
func NewServer(addr string, s store.Store, d *tasks.Dispatcher, logger *slog.Logger) *Server {
	srv := &Server{
		router:     chi.NewRouter(),
		store:      s,
		dispatcher: d,
		logger:     logger,
		addr:       addr,
	}

	// The dispatcher middleware is outermost so that tasks registered before
	// a handler panic still dispatch once the recoverer has finalized the 500.
	srv.router.Use(d.Middleware)
	srv.router.Use(middleware.Recoverer)
	srv.router.Use(srv.loggingMiddleware)
	srv.router.Use(metricsMiddleware)
	srv.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	srv.routes()

	return srv
}

// routes registers all HTTP routes on the router.
func (s *Server) routes() {
	s.router.Get("/", s.handleIndex)
	s.router.Get("/healthz", s.handleHealthz)
	s.router.Handle("/metrics", metricsHandler())

	s.router.Get("/test", s.handleTest)
	s.router.Post("/register", s.handleRegister)
	s.router.Post("/upload", s.handleUpload)
	s.router.Get("/product/{id}", s.handleViewProduct)
	s.router.Post("/invalidate-cache", s.handleInvalidateCache)
	s.router.Post("/complete-order", s.handleCompleteOrder)

	s.router.Route("/v1", func(r chi.Router) {
		r.Get("/tasks", s.handleListTasks)
		r.Get("/tasks/{id}", s.handleGetTask)
		r.Get("/requests/{id}/tasks", s.handleListRequestTasks)
		r.Get("/requests/{id}/events", s.handleStreamEvents)
		r.Get("/stats", s.handleGetStats)
	})
}

// Router returns the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// listen resolves the configured address into a listener. Addresses of the
// form "unix/<path>" and "sysd/fdidx|fdname/<v>" are handled by anyhttp;
// anything else is treated as a TCP host:port.
func (s *Server) listen() (net.Listener, error) {
	// anyhttp.GetListener itself falls back to a TCP listener for
	// addresses that are not unix/sysd, so no extra fallback is needed.
	ln, _, _, err := anyhttp.GetListener(s.addr)
	if err != nil {
		return nil, err
	}
	return ln, nil
}

// Run starts the HTTP server and blocks until a shutdown signal is received.
// After the listener drains, in-flight deferred tasks are allowed to finish.
func (s *Server) Run() error {
	ln, err := s.listen()
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}

	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.addr)
		if err := httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		s.logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("draining deferred tasks")
	s.dispatcher.Wait()

	s.logger.Info("server stopped")
	return nil
}

// loggingMiddleware logs each request using the structured logger.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", tasks.RequestIDFromContext(r.Context()),
		)
	})
}

// Package server exposes ring buffer snapshots over HTTP: the daemon's own
// recent log output and the output of captured sessions, plus a websocket
// live tail.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/justinmoon/ringlog/internal/capture"
	"github.com/justinmoon/ringlog/internal/config"
	"github.com/justinmoon/ringlog/internal/dmesg"
	"github.com/justinmoon/ringlog/internal/events"
)

// timeoutMiddleware applies a timeout to all routes except streaming ones.
func timeoutMiddleware(timeout time.Duration) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.HasPrefix(r.URL.Path, "/ws/") {
				next.ServeHTTP(w, r)
				return
			}
			middleware.Timeout(timeout)(next).ServeHTTP(w, r)
		})
	}
}

type Server struct {
	cfg      *config.Config
	router   *chi.Mux
	server   *http.Server
	eventBus *events.Bus
	captures *capture.Manager
	dmesg    *dmesg.Log
}

func New(cfg *config.Config, dlog *dmesg.Log) (*Server, error) {
	eventBus, err := events.NewBus(cfg.Server.NatsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		router:   chi.NewRouter(),
		eventBus: eventBus,
		captures: capture.NewManager(cfg.Capture.BufferBytes, eventBus),
		dmesg:    dlog,
	}

	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(timeoutMiddleware(60 * time.Second))

	s.router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	// Daemon's own log ring
	s.router.Get("/v1/dmesg", s.handleDmesg)
	s.router.Get("/v1/dmesg/lines", s.handleDmesgLines)

	// Capture sessions
	s.router.Get("/v1/sessions", s.handleSessionList)
	s.router.Post("/v1/sessions", s.handleSessionCreate)
	s.router.Delete("/v1/sessions/{key}", s.handleSessionDelete)
	s.router.Get("/v1/sessions/{key}/log", s.handleSessionLog)
	s.router.Get("/v1/sessions/{key}/lines", s.handleSessionLines)

	// Live tail
	s.router.Get("/ws/sessions/{key}", s.handleSessionWS)
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	fmt.Printf("ringlog listening on http://%s\n", addr)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.captures != nil {
		s.captures.CloseAll()
	}
	if s.eventBus != nil {
		s.eventBus.Close()
	}
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Router exposes the handler for tests.
func (s *Server) Router() http.Handler {
	return s.router
}

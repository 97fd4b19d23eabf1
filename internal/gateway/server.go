// Package gateway serves the HTTP side of gpt-relay: health, active and
// archived sessions, the lifecycle event feed and websocket relays.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gpt-relay/internal/completion"
	"gpt-relay/internal/config"
	"gpt-relay/internal/events"
	"gpt-relay/internal/logger"
	"gpt-relay/internal/relay"
	"gpt-relay/internal/session"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	gorilla "github.com/gorilla/websocket"
)

var log = logger.Named("gateway")

const shutdownTimeout = 5 * time.Second

type Options struct {
	Config   config.Config
	Client   completion.Client
	Registry *session.Registry
	Bus      *events.Bus
}

// Server 持有网关依赖；Routes 返回挂好路由的 chi router。
type Server struct {
	cfg      config.Config
	client   completion.Client
	registry *session.Registry
	bus      *events.Bus
	relayCfg relay.Config
	upgrader gorilla.Upgrader

	heartbeat time.Duration
}

func New(opts Options) *Server {
	reg := opts.Registry
	if reg == nil {
		reg = session.NewRegistry(nil)
	}
	return &Server{
		cfg:      opts.Config,
		client:   opts.Client,
		registry: reg,
		bus:      opts.Bus,
		relayCfg: opts.Config.RelayOptions(),
		upgrader: gorilla.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin(opts.Config.Gateway.AllowedOrigins),
		},
		heartbeat: 15 * time.Second,
	}
}

// Routes wires the HTTP routes.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api", func(api chi.Router) {
		api.Get("/sessions", s.handleSessions)
		api.Get("/sessions/{sessionID}", s.handleSession)
		api.Get("/history", s.handleHistory)
		api.Get("/events", s.handleEvents)
		api.Get("/relay", s.handleRelay)
	})
	return r
}

// Run listens on addr until ctx is canceled. Request contexts derive from
// ctx so open event feeds and relays end with it.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		log.Infof("gateway listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"active": s.registry.Len(),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.registry.Active())
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")
	if sess, ok := s.registry.Get(id); ok {
		respondJSON(w, http.StatusOK, sess.Info())
		return
	}
	if s.registry.Archive != nil {
		if rec, err := s.registry.Archive.Load(id); err == nil {
			respondJSON(w, http.StatusOK, rec)
			return
		}
	}
	respondError(w, http.StatusNotFound, "session not found")
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.registry.Archive == nil {
		respondError(w, http.StatusServiceUnavailable, "transcript archive disabled")
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	records, err := s.registry.Archive.List(limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []session.Record{}
	}
	respondJSON(w, http.StatusOK, records)
}

// publisher avoids handing a typed nil *events.Bus to the relay.
func (s *Server) publisher() events.Publisher {
	if s.bus == nil {
		return nil
	}
	return s.bus
}

func checkOrigin(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		// nil 时 gorilla 只允许同源请求。
		return nil
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || strings.EqualFold(strings.TrimSpace(a), origin) {
				return true
			}
		}
		return false
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.WithFields(logger.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start).Round(time.Millisecond).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("http request")
	})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Warnf("encode response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

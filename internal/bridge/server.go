// Package bridge exposes the extension messaging surface over local HTTP: analyzeImage,
// getLastResult and clearHistory messages plus a websocket feed of analysis events.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/hay-kot/deepguard/internal/core/config"
	"github.com/hay-kot/deepguard/internal/core/history"
	"github.com/hay-kot/deepguard/internal/core/prediction"
	"github.com/hay-kot/deepguard/internal/deepguard"
)

const shutdownTimeout = 5 * time.Second

// Analyzer is the subset of deepguard.Analyzer the bridge needs.
type Analyzer interface {
	AnalyzeURL(ctx context.Context, rawURL string) (deepguard.Outcome, error)
	LastResult(ctx context.Context) (*prediction.Result, error)
	ClearHistory(ctx context.Context) error
	History(ctx context.Context, limit int) ([]history.Entry, error)
	Status(ctx context.Context) prediction.ModelStatus
	Subscribe() (<-chan deepguard.Event, func())
}

// Server is the local bridge.
type Server struct {
	analyzer     Analyzer
	cfg          config.BridgeConfig
	displayLimit int
	log          zerolog.Logger
	limiter      *Limiter
	upgrader     websocket.Upgrader

	closing chan struct{}
}

// New creates a bridge server.
func New(analyzer Analyzer, cfg config.BridgeConfig, displayLimit int, log zerolog.Logger) *Server {
	s := &Server{
		analyzer:     analyzer,
		cfg:          cfg,
		displayLimit: displayLimit,
		log:          log,
		limiter:      NewLimiter(cfg.RatePerMinute, cfg.Burst),
		closing:      make(chan struct{}),
	}

	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return s.originAllowed(r.Header.Get("Origin"))
		},
	}

	return s
}

// Handler returns the bridge routes.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/v1").Subrouter()

	limited := api.PathPrefix("").Subrouter()
	limited.Use(s.rateLimit)
	limited.HandleFunc("/messages", s.handleMessage).Methods(http.MethodPost, http.MethodOptions)

	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet, http.MethodOptions)

	r.Use(s.cors)

	return r
}

// Run serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", ln.Addr().String()).Msg("bridge listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	close(s.closing)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown bridge: %w", err)
	}

	s.log.Info().Msg("bridge stopped")
	return nil
}

// cors allows configured extension origins. Requests without an Origin header (local
// tools) pass through; unknown origins are rejected.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if !s.originAllowed(origin) {
				writeJSON(w, http.StatusForbidden, messageResponse{Error: "origin not allowed"})
				return
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	if origin == "" {
		return true
	}
	return slices.Contains(s.cfg.AllowedOrigins, "*") || slices.Contains(s.cfg.AllowedOrigins, origin)
}

// rateLimit enforces per-client limits keyed by remote IP.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	limit := strconv.Itoa(s.cfg.RatePerMinute)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		client := clientIP(r)

		if !s.limiter.Allow(client) {
			w.Header().Set("X-RateLimit-Limit", limit)
			w.Header().Set("X-RateLimit-Remaining", "0")
			s.log.Debug().Str("client", client).Msg("rate limit exceeded")
			writeJSON(w, http.StatusTooManyRequests, messageResponse{Error: "rate limit exceeded"})
			return
		}

		w.Header().Set("X-RateLimit-Limit", limit)
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(s.limiter.Tokens(client))))

		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

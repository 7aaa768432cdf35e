// Package api exposes the gateway's HTTP surface: tool inspection and
// selection, direct tool execution, and the streaming chat endpoints.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/clawinfra/toolclaw/internal/config"
	"github.com/clawinfra/toolclaw/internal/orchestrator"
	"github.com/clawinfra/toolclaw/internal/registry"
	"github.com/clawinfra/toolclaw/internal/session"
)

// ToolSource is the registry connection the gateway talks to. The RPC
// client satisfies it.
type ToolSource interface {
	ListTools() ([]registry.Descriptor, error)
	ExecuteTool(name string, params map[string]any) (any, error)
}

// Server is the HTTP API server.
type Server struct {
	cfg        *config.Config
	orch       *orchestrator.Orchestrator
	tools      ToolSource
	sessions   *session.Store
	logger     *slog.Logger
	httpServer *http.Server

	mu       sync.Mutex
	cached   []registry.Descriptor
	selected map[string]bool // nil means every tool is selected
	degraded bool
}

// NewServer creates the API server.
func NewServer(cfg *config.Config, orch *orchestrator.Orchestrator, tools ToolSource, sessions *session.Store, logger *slog.Logger) *Server {
	return &Server{
		cfg:      cfg,
		orch:     orch,
		tools:    tools,
		sessions: sessions,
		logger:   logger.With("component", "api"),
	}
}

// Handler builds the route mux with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/config", s.handleConfig)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/tools", s.handleTools)
	mux.HandleFunc("/api/tools/select", s.handleToolsSelect)
	mux.HandleFunc("/api/execute_tool", s.handleExecuteTool)
	mux.HandleFunc("/api/chat", s.handleChat)
	mux.HandleFunc("/api/chat/clear", s.handleChatClear)
	mux.HandleFunc("/api/chat/ws", s.handleChatWS)

	return s.corsMiddleware(s.loggingMiddleware(mux))
}

// Start serves until ctx is cancelled. Write timeout stays unset so
// SSE streams are not cut off mid-turn.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:        s.cfg.Web.Addr(),
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("API server starting", "addr", s.httpServer.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Session-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("encode response", "error", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": fmt.Sprintf(format, args...)})
}

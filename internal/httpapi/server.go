package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/llmrelay/llmrelay/internal/authkeys"
	"github.com/llmrelay/llmrelay/internal/logging"
)

// Server owns the listener and the middleware-wrapped mux, in the style of
// the teacher's internal/proxy.Server.
type Server struct {
	engine *Engine
	http   *http.Server
}

// NewServer builds a Server listening on addr, wiring the auth middleware
// ahead of every route except the anonymous paths internal/authkeys
// already exempts.
func NewServer(addr string, engine *Engine) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/chat/completions", engine.handleCompletions)
	mux.HandleFunc("/v1/responses", engine.handleCompletions)
	mux.HandleFunc("/v1/messages", engine.handleMessages)
	mux.HandleFunc("/v1/embeddings", engine.handleEmbeddings)
	mux.HandleFunc("/v1/rerank", engine.handleRerank)
	mux.HandleFunc("/v1/models", engine.handleModels)
	mux.HandleFunc("/health", engine.handleHealth)
	mux.HandleFunc("/admin/reload", engine.handleAdminReload)
	mux.HandleFunc("/admin/backends", engine.handleAdminBackends)

	var handler http.Handler = mux
	if engine.AuthStore != nil {
		handler = authkeys.Middleware(engine.AuthStore)(handler)
	}
	handler = accessLogMiddleware(handler)

	return &Server{
		engine: engine,
		http: &http.Server{
			Addr:         addr,
			Handler:      handler,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Start runs the server until it is shut down, blocking like
// http.Server.ListenAndServe.
func (s *Server) Start() error {
	logging.L().Info("starting server", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("httpapi: serve: %w", err)
	}
	return nil
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type statusCapture struct {
	http.ResponseWriter
	status int
}

func (c *statusCapture) WriteHeader(code int) {
	c.status = code
	c.ResponseWriter.WriteHeader(code)
}

func (c *statusCapture) Flush() {
	if f, ok := c.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// accessLogMiddleware logs one line per request, the ambient-stack
// counterpart to the teacher's loggingMiddleware, built on the zap logger
// instead of stdlib log.
func accessLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sc := &statusCapture{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sc, r)
		logging.L().Info("access",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", sc.status),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

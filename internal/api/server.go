// Package api exposes the HTTP surface: the streaming chat endpoint,
// conversation CRUD and search, title generation, and health probes.
package api

import (
	"errors"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quillchat/quill/internal/log"
)

// ServerConfig contains everything needed to build the API server.
type ServerConfig struct {
	Logger      log.Logger
	Turns       Runner            // Required: turn orchestrator
	Store       ConversationStore // Required: conversation persistence
	Titler      TitleGenerator    // Required: title generation
	Verifier    Verifier          // Required: bearer token verification
	Pool        *pgxpool.Pool     // Optional: nil makes /ready always 503
	CORSOrigins []string          // Allowed origins for CORS
	IsDev       bool              // Disables HSTS
	TrustProxy  bool              // Trust X-Real-IP/X-Forwarded-For
	RateBurst   int               // Rate limiter burst per IP (0 = 60)
}

// Server is the HTTP server for the chat API.
type Server struct {
	mux *http.ServeMux
}

// NewServer wires handlers, middleware, and health probes.
func NewServer(cfg ServerConfig) (*Server, error) {
	switch {
	case cfg.Turns == nil:
		return nil, errors.New("api: turn runner is required")
	case cfg.Store == nil:
		return nil, errors.New("api: conversation store is required")
	case cfg.Titler == nil:
		return nil, errors.New("api: title generator is required")
	case cfg.Verifier == nil:
		return nil, errors.New("api: token verifier is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	ch := &chatHandler{turns: cfg.Turns, logger: logger}
	cv := &conversationHandler{store: cfg.Store, logger: logger}
	th := &titleHandler{titler: cfg.Titler, logger: logger}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/chat", ch.send)

	mux.HandleFunc("GET /api/v1/conversations", cv.list)
	mux.HandleFunc("GET /api/v1/conversations/search", cv.search)
	mux.HandleFunc("GET /api/v1/conversations/{id}", cv.get)
	mux.HandleFunc("PATCH /api/v1/conversations/{id}", cv.rename)
	mux.HandleFunc("DELETE /api/v1/conversations/{id}", cv.remove)

	mux.HandleFunc("POST /api/v1/title", th.generate)

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack, outermost first:
	//   Recovery → RequestID → Logging → CORS → RateLimit → Auth → Routes
	// RequestID precedes Logging so request_id is in log attributes;
	// CORS precedes RateLimit so preflight gets CORS headers.
	var handler http.Handler = mux
	handler = authMiddleware(cfg.Verifier, logger)(handler)
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	isDev := cfg.IsDev
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		setSecurityHeaders(w, isDev)
		handler.ServeHTTP(w, r)
	})

	// Health probes bypass the middleware stack (and auth) via a
	// top-level mux.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health)
	topMux.Handle("GET /ready", readiness(cfg.Pool, logger))
	topMux.Handle("/", final)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

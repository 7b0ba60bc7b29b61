package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"qna-agent/internal/infra/config"
	"qna-agent/internal/infra/middleware"
	"qna-agent/internal/usecase"
	"qna-agent/internal/usecase/eventhub"
)

// Server is the HTTP gateway exposing the chat API and per-chat event
// streams.
type Server struct {
	chats     *usecase.ChatService
	messages  *usecase.MessageService
	hub       *eventhub.Hub
	logger    *slog.Logger
	cfg       config.ServerConfig
	keepalive time.Duration
	httpSrv   *http.Server
	boundAddr string
}

// ServerDeps holds injected dependencies for the gateway.
type ServerDeps struct {
	Chats     *usecase.ChatService
	Messages  *usecase.MessageService
	Hub       *eventhub.Hub
	Logger    *slog.Logger
	Server    config.ServerConfig
	KeepAlive time.Duration
}

// NewServer creates a gateway server.
func NewServer(deps ServerDeps) *Server {
	keepalive := deps.KeepAlive
	if keepalive <= 0 {
		keepalive = 30 * time.Second
	}
	return &Server{
		chats:     deps.Chats,
		messages:  deps.Messages,
		hub:       deps.Hub,
		logger:    deps.Logger,
		cfg:       deps.Server,
		keepalive: keepalive,
	}
}

// Handler builds the full HTTP handler: routes plus middleware.
func (s *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/v1/chats", s.handleCreateChat)
	mux.HandleFunc("GET /api/v1/chats", s.handleListChats)
	mux.HandleFunc("GET /api/v1/chats/{id}", s.handleGetChat)
	mux.HandleFunc("PATCH /api/v1/chats/{id}", s.handleUpdateChat)
	mux.HandleFunc("DELETE /api/v1/chats/{id}", s.handleDeleteChat)

	mux.HandleFunc("GET /api/v1/chats/{id}/messages", s.handleListMessages)
	mux.HandleFunc("POST /api/v1/chats/{id}/messages", s.handleSendMessage)
	mux.HandleFunc("GET /api/v1/chats/{id}/events", s.handleEvents)

	var handler http.Handler = mux
	if s.cfg.RateLimit.Enabled {
		handler = middleware.RateLimit(ctx,
			s.cfg.RateLimit.RequestsPerMin, s.cfg.RateLimit.BurstSize)(handler)
	}
	handler = middleware.SecurityHeaders(handler)
	return handler
}

// Start begins serving HTTP requests. Blocks until the context is
// cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.boundAddr = listener.Addr().String()

	s.httpSrv = &http.Server{
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("gateway started", "addr", s.boundAddr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.Stop(shutdownCtx)
	}()

	if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the gateway server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// BoundAddr returns the actual listen address after Start.
func (s *Server) BoundAddr() string { return s.boundAddr }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

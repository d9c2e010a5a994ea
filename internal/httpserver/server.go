// Package httpserver exposes the chat endpoints, one route per provider, plus
// conversation management and health.
package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/shilvister/devochat/internal/config"
	"github.com/shilvister/devochat/internal/httpserver/middleware"
	"github.com/shilvister/devochat/internal/observability"
	"go.uber.org/zap"
)

// Server represents the HTTP server.
type Server struct {
	config      *config.ServerConfig
	handler     *Handler
	middlewares middleware.Middleware
	srv         *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(
	cfg *config.ServerConfig,
	handler *Handler,
	middlewares middleware.Middleware,
) *Server {
	return &Server{
		config:      cfg,
		handler:     handler,
		middlewares: middlewares,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /chat/get_alias", s.handler.HandleChatAlias)
	mux.HandleFunc("POST /chat/new_conversation", s.handler.HandleNewConversation)
	mux.HandleFunc("GET /chat/conversation/{conversation_id}", s.handler.HandleGetConversation)
	mux.HandleFunc("POST /chat/{provider}", s.handler.HandleChat)

	mux.HandleFunc("GET /conversations", s.handler.HandleListConversations)
	mux.HandleFunc("PUT /conversation/{conversation_id}/rename", s.handler.HandleRenameConversation)
	mux.HandleFunc("PUT /conversation/{conversation_id}/star", s.handler.HandleStarConversation)
	mux.HandleFunc("DELETE /conversation/all", s.handler.HandleDeleteAllConversations)
	mux.HandleFunc("DELETE /conversation/{conversation_id}", s.handler.HandleDeleteConversation)
	mux.HandleFunc("DELETE /conversation/{conversation_id}/{start_index}", s.handler.HandleTruncateConversation)

	mux.HandleFunc("GET /health", s.handler.HandleHealth)

	handlerWithMiddleware := s.middlewares(mux)

	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      handlerWithMiddleware,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
	}

	ctx := context.Background()
	observability.FromContext(ctx).Info("starting HTTP server", zap.Int("port", s.config.Port))

	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	observability.FromContext(ctx).Info("shutting down HTTP server")

	if s.srv == nil {
		return nil
	}

	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}

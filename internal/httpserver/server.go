package httpserver

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/minbak/hearth/internal/config"
	"github.com/minbak/hearth/internal/httpserver/middleware"
	"github.com/minbak/hearth/internal/observability"
)

// Server represents the HTTP server.
type Server struct {
	config      config.ServerConfig
	images      config.ImagesConfig
	handler     *Handler
	middlewares middleware.Middleware
	srv         *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(
	cfg *config.Config,
	handler *Handler,
	middlewares middleware.Middleware,
) *Server {
	return &Server{
		config:      cfg.Server,
		images:      cfg.Images,
		handler:     handler,
		middlewares: middlewares,
		srv:         nil,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	mux := http.NewServeMux()

	// Register routes.
	mux.HandleFunc("POST /api/chat", s.handler.HandleChat)
	mux.HandleFunc("GET /api/conversations/{userID}", s.handler.HandleListConversations)
	mux.HandleFunc("GET /api/conversations/{conversationID}/messages", s.handler.HandleListMessages)
	mux.HandleFunc("DELETE /api/conversations/{conversationID}", s.handler.HandleDeleteConversation)
	mux.HandleFunc("GET /api/images/{userID}", s.handler.HandleListImages)
	mux.HandleFunc("DELETE /api/images/{imageID}", s.handler.HandleDeleteImage)
	mux.HandleFunc("GET /health", s.handler.HandleHealth)

	// Generated images are served at a predictable path.
	mux.Handle("GET "+s.images.BasePath+"/",
		http.StripPrefix(s.images.BasePath+"/", http.FileServer(http.Dir(s.images.Dir))))

	// Apply middleware chain.
	handlerWithMiddleware := s.middlewares(mux)

	// Create server with timeouts.
	s.srv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      handlerWithMiddleware,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
	}

	ctx := context.Background()
	observability.FromContext(ctx).Info("starting HTTP server", observability.Int("port", s.config.Port))

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

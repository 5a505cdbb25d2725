package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sha1n/relic-rag/internal/auth"
	"github.com/sha1n/relic-rag/internal/config"
)

// shutdownTimeout bounds how long in-flight answers may take to finish on shutdown.
const shutdownTimeout = 10 * time.Second

// StartSSEServer serves the MCP SSE endpoint and the chat API until ctx is done
func StartSSEServer(ctx context.Context, s *Server, settings *config.Settings) error {
	srv, err := NewSSEServer(s, settings)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening (HTTP)", "addr", srv.Addr, "auth_type", settings.Auth.Type)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// NewSSEServer creates the HTTP server with authentication middleware
func NewSSEServer(s *Server, settings *config.Settings) (*http.Server, error) {
	handler, err := NewHandler(s, settings.Auth)
	if err != nil {
		return nil, err
	}

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", settings.Host, settings.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

// NewHandler routes /health, the MCP SSE endpoint and the chat API behind the auth middleware.
func NewHandler(s *Server, authSettings config.AuthSettings) (http.Handler, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if s.MCPFor != nil {
		// Each SSE session gets a server bound to the identity that opened it
		mux.Handle("/sse", mcp.NewSSEHandler(func(r *http.Request) *mcp.Server {
			id, ok := auth.FromContext(r.Context())
			if !ok {
				return nil
			}
			return s.MCPFor(id)
		}, nil))
	}
	if s.API != nil {
		s.API.Register(mux)
	}

	authMiddleware, err := auth.NewMiddleware(authSettings)
	if err != nil {
		return nil, fmt.Errorf("failed to create auth middleware: %w", err)
	}
	return authMiddleware(mux), nil
}

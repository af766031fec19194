package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// HTTPServer runs an http.Server until ctx is cancelled, then shuts it down
// gracefully, waiting at most shutdownTimeout for in-flight requests.
type HTTPServer struct {
	srv             *http.Server
	shutdownTimeout time.Duration
	listen          func(network, addr string) (net.Listener, error)
}

// NewHTTPServer wraps srv.
func NewHTTPServer(srv *http.Server, shutdownTimeout time.Duration) *HTTPServer {
	return &HTTPServer{srv: srv, shutdownTimeout: shutdownTimeout, listen: net.Listen}
}

// Name returns the worker identifier.
func (w *HTTPServer) Name() string { return "http_server" }

// Run serves until ctx is cancelled or the listener fails.
func (w *HTTPServer) Run(ctx context.Context) error {
	ln, err := w.listen("tcp", w.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", w.srv.Addr, err)
	}
	slog.LogAttrs(ctx, slog.LevelInfo, "http server listening", slog.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- w.srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.shutdownTimeout)
	defer cancel()
	if err := w.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	<-errCh
	slog.LogAttrs(ctx, slog.LevelInfo, "http server stopped")
	return nil
}

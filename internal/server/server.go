package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"adhoc_rdv/internal/config"

	"go.uber.org/zap"
)

const shutdownTimeout = 5 * time.Second

// StartServer serves the node routes on cfg.Port until ctx is cancelled, then
// shuts down gracefully.
func StartServer(ctx context.Context, cfg *config.MainConfig, node *Node) error {
	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return err
	}
	return Serve(ctx, ln, node)
}

func Serve(ctx context.Context, ln net.Listener, node *Node) error {
	srv := &http.Server{
		Handler:           node.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	serverErr := make(chan error, 1)
	go func() {
		node.logger.Info("HTTP server listening", zap.String("addr", ln.Addr().String()))
		serverErr <- srv.Serve(ln)
	}()

	select {
	case err := <-serverErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-serverErr; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

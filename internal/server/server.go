package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/testforge/portalsuite/internal/config"
)

// Serve runs the HTTP server until ctx is cancelled, then shuts it down
// within the configured timeout
func Serve(ctx context.Context, cfg config.ServerConfig, handler http.Handler, logger *zap.Logger) error {
	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Report server listening", zap.String("addr", cfg.Addr()))
		serverErrors <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err

	case <-ctx.Done():
		logger.Info("Shutting down report server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("Graceful shutdown failed, forcing close", zap.Error(err))
			_ = server.Close()
			return err
		}

		logger.Info("Server stopped gracefully")
		return nil
	}
}

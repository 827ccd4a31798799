package app

import (
	"context"
	"os/signal"
	"syscall"
	"time"
)

// Run starts the app, waits for SIGINT/SIGTERM or a worker failure, then
// shuts the app down within the grace period.
func Run(a *App, shutdownTimeout time.Duration) error {
	sigCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := a.Start(sigCtx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

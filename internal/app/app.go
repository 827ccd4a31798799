package app

import (
	"context"
	"errors"
	"net/http"

	"gitlab.com/nevasik7/alerting/logger"
	"golang.org/x/sync/errgroup"
)

type HTTPServer interface {
	Start() error
	Shutdown(ctx context.Context) error
}

// Worker is a long-running task that returns when ctx is cancelled.
type Worker func(ctx context.Context) error

// App couples a service's background workers with its tech HTTP server.
type App struct {
	log     logger.Logger
	httpSrv HTTPServer
	workers []Worker
}

func New(log logger.Logger, httpSrv HTTPServer, workers ...Worker) *App {
	return &App{log: log, httpSrv: httpSrv, workers: workers}
}

// Start runs the HTTP server and all workers until ctx is cancelled or a
// worker fails.
func (a *App) Start(ctx context.Context) error {
	if a.httpSrv != nil {
		go func() {
			if err := a.httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Fatalf("Start HTTP server is error=%v", err)
			}
		}()
	}

	a.log.Info("App started")

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range a.workers {
		g.Go(func() error { return w(gctx) })
	}
	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	if a.httpSrv != nil {
		if err := a.httpSrv.Shutdown(ctx); err != nil {
			return err
		}
	}

	a.log.Info("App stopped")
	return nil
}

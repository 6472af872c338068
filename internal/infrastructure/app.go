package infrastructure

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Server is anything the App starts and stops: HTTP, gRPC, NATS handlers.
// Start blocks until the server exits.
type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

const shutdownTimeout = 10 * time.Second

type App struct {
	servers []Server
}

func NewApp(servers []Server) *App {
	return &App{servers: servers}
}

// Run starts every server and blocks until ctx is cancelled or one of them
// fails, then stops them all.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, srv := range a.servers {
		s := srv
		g.Go(func() error {
			return s.Start(ctx)
		})
	}

	<-ctx.Done()
	slog.Info("shutting down servers")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	for _, srv := range a.servers {
		if err := srv.Stop(stopCtx); err != nil {
			slog.Error("server stop failed", "error", err)
		}
	}

	return g.Wait()
}

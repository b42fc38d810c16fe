package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/cipherbet/cipherbet/internal/blob/s3"
	"github.com/cipherbet/cipherbet/internal/notify"
	"github.com/cipherbet/cipherbet/internal/server"
	"github.com/cipherbet/cipherbet/internal/server/handler"
	"github.com/cipherbet/cipherbet/internal/server/ws"
)

// ServeMode runs the HTTP + WebSocket API, the notification bridge, and the
// auto-resolver when enabled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting serve mode")

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(deps.SignalBus, a.logger)
	g.Go(func() error {
		err := hub.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
			RateLimit:   a.cfg.Server.RateLimit,
			RateWindow:  time.Second,
		},
		server.Handlers{
			Health: handler.NewHealthHandler(a.logger, map[string]handler.Pinger{
				"postgres": deps.PostgresPing,
				"redis":    deps.RedisPing,
			}),
			Rounds: handler.NewRoundHandler(deps.Rounds, deps.Reveal, deps.Claims, a.logger),
			Events: handler.NewEventsHandler(deps.SignalBus),
		},
		hub,
		deps.RateLimiter,
		a.logger,
	)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	a.startNotifyBridge(ctx, g, deps)
	a.startWatcher(ctx, g, deps)

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// WatchMode runs only the auto-resolver and the notification bridge; no API.
func (a *App) WatchMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting watch mode")

	if deps.Watcher == nil {
		a.logger.WarnContext(ctx, "watcher disabled in configuration; nothing to do")
		<-ctx.Done()
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startNotifyBridge(ctx, g, deps)
	g.Go(func() error {
		err := deps.Watcher.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ArchiveMode runs one archival pass over settled rounds and old bet
// records, then exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	archiver := s3blob.NewArchiver(
		deps.BlobWriter, deps.BlobReader, deps.Rounds, deps.Reveal, deps.Bets,
	)

	cutoff := time.Now().UTC()
	rounds, err := archiver.ArchiveSettledRounds(ctx, cutoff)
	if err != nil {
		return err
	}
	bets, err := archiver.ArchiveBets(ctx, cutoff)
	if err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "archive pass complete",
		slog.Int64("rounds_archived", rounds),
		slog.Int64("bets_archived", bets),
	)
	return nil
}

// FullMode runs the API server plus the auto-resolver, with a periodic
// archival pass when S3 is configured.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.ServeMode(gctx, deps)
	})

	if deps.BlobWriter != nil {
		g.Go(func() error {
			ticker := time.NewTicker(6 * time.Hour)
			defer ticker.Stop()
			for {
				select {
				case <-gctx.Done():
					return nil
				case <-ticker.C:
					if err := a.ArchiveMode(gctx, deps); err != nil {
						a.logger.WarnContext(gctx, "periodic archive failed",
							slog.String("error", err.Error()),
						)
					}
				}
			}
		})
	}

	return g.Wait()
}

// startNotifyBridge launches the bus-to-notifier bridge when any sender is
// configured.
func (a *App) startNotifyBridge(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	bridge := notify.NewRoundEvents(deps.SignalBus, deps.Notifier, a.logger)
	g.Go(func() error {
		err := bridge.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
}

// startWatcher launches the auto-resolver when enabled.
func (a *App) startWatcher(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Watcher == nil {
		return
	}
	g.Go(func() error {
		err := deps.Watcher.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
}

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gewnthar/parkalerts/handlers"
	"github.com/gewnthar/parkalerts/logging"
	"github.com/gewnthar/parkalerts/models"
)

const interruptedRunMessage = "interrupted: process exited before the run finished"

func serveCommand(opts *rootOptions) *cobra.Command {
	var noStartupRun bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and the read API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, store, err := opts.openStore()
			if err != nil {
				return err
			}
			defer logging.Close()
			defer store.Close()

			logger := logging.ForService("server")
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if n, err := store.MarkInterruptedRuns(ctx, interruptedRunMessage); err != nil {
				return err
			} else if n > 0 {
				logger.Warn("marked interrupted sync runs as failed", "count", n)
			}

			a, err := newApp(cfg, store)
			if err != nil {
				return err
			}
			api := handlers.New(store, a.scheduler, cfg.API.CacheTTL)
			a.scheduler.OnRunComplete(api.InvalidateCache)

			if err := a.scheduler.Start(cfg.Sync.Schedule); err != nil {
				return err
			}
			if cfg.Sync.RunOnStartup && !noStartupRun {
				if err := a.scheduler.Trigger(models.RunTypeStartup); err != nil {
					logger.Warn("startup sync not started", "error", err)
				}
			}

			e := handlers.NewServer(api, a.registry)
			addr := ":" + cfg.Server.Port

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("server starting", "addr", addr)
				if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				logger.Info("shutting down", "grace", cfg.Sync.ShutdownGrace)

				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.Sync.ShutdownGrace)
				defer cancel()

				httpErr := e.Shutdown(shutdownCtx)
				schedErr := a.scheduler.Stop(shutdownCtx)
				return errors.Join(httpErr, schedErr)
			})
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&noStartupRun, "no-startup-sync", false, "skip the sync normally run at startup")
	return cmd
}

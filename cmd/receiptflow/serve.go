package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (ingress, sources, ledgers and aggregates)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			log.Printf("receiptflow %s starting in serve mode", version)
			a, err := newApp(ctx, cfg, logger, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			log.Printf("API server starting on %s:%d", cfg.Server.Host, cfg.Server.Port)
			return a.newServer().Start(ctx)
		},
	}
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run pipeline workers and the poll scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			log.Printf("receiptflow %s starting in worker mode", version)
			a, err := newApp(ctx, cfg, logger, appOptions{Folder: true, Models: true})
			if err != nil {
				return err
			}
			defer a.Close()
			a.watchConfig(ctx, loader)

			return runWorker(ctx, a)
		},
	}
}

func newAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "all",
		Short: "Run the HTTP API and the workers in one process",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signalContext()
			defer stop()

			log.Printf("receiptflow %s starting in all mode", version)
			a, err := newApp(ctx, cfg, logger, appOptions{Folder: true, Models: true})
			if err != nil {
				return err
			}
			defer a.Close()
			a.watchConfig(ctx, loader)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return a.newServer().Start(gctx)
			})
			g.Go(func() error {
				return runWorker(gctx, a)
			})
			return g.Wait()
		},
	}
}

// runWorker blocks until ctx is cancelled, then drains the worker.
func runWorker(ctx context.Context, a *app) error {
	w := a.newWorker(cfg.Scheduler.Enabled)
	if cfg.Scheduler.Enabled {
		log.Printf("Scheduler enabled for %d source(s) (lock_required=%t)",
			len(cfg.Scheduler.Sources), cfg.Scheduler.LockRequired)
	} else {
		log.Println("Scheduler disabled via scheduler.enabled=false")
	}

	if err := w.Start(ctx); err != nil {
		return err
	}
	log.Println("Worker started, processing tasks...")

	<-ctx.Done()
	log.Println("Stopping worker...")
	w.Stop()
	log.Println("Worker stopped")
	return nil
}

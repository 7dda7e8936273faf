package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/hash-archive/internal/api"
	"github.com/JakeFAU/hash-archive/internal/archive/store"
	"github.com/JakeFAU/hash-archive/internal/clock/system"
	"github.com/JakeFAU/hash-archive/internal/config"
	"github.com/JakeFAU/hash-archive/internal/fetcher"
	"github.com/JakeFAU/hash-archive/internal/logging"
	"github.com/JakeFAU/hash-archive/internal/scheduler"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the archive: store, crawl workers, and HTTP API.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(parent context.Context, cfg config.Config) error {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck // best-effort flush

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(store.Options{
		Path:          cfg.DB.Path,
		InMemory:      cfg.DB.InMemory,
		HashPrefixLen: cfg.Index.HashPrefixLen,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("store close failed", zap.Error(err))
		}
	}()

	fetch := fetcher.New(fetcher.Config{
		UserAgent:   cfg.Fetch.UserAgent,
		Timeout:     cfg.FetchTimeout(),
		RedirectMax: cfg.Fetch.RedirectMax,
	}, logger.Named("fetcher"))

	sched, err := scheduler.New(st, fetch, system.New(), scheduler.Config{
		Workers:    cfg.Queue.Workers,
		CrawlDelay: cfg.CrawlDelay(),
		Backoff:    time.Duration(cfg.Queue.BackoffSeconds) * time.Second,
	}, logger.Named("scheduler"))
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewServer(st, sched, cfg, logger.Named("api")).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sched.Start(gctx)
		sched.Wait()
		return nil
	})

	g.Go(func() error {
		logger.Info("http server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

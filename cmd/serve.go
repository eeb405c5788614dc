package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/physiopulse/internal/adapters/http/api"
	service "github.com/okian/physiopulse/internal/app"
	"github.com/okian/physiopulse/internal/domain/dedupe"
	"github.com/okian/physiopulse/pkg/logger"
)

// HTTP server timeouts. The write timeout grows with the analysis timeout
// because POST /analyze answers only after the pipeline finished.
const (
	readTimeout       = 30 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	writeSlack        = 30 * time.Second
	shutdownTimeout   = 30 * time.Second
)

func newServeCommand(c *cliContext) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the analysis HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr != "" {
				c.cfg.Addr = addr
			}
			return serve(cmd.Context(), c)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides the addr setting)")
	return cmd
}

func serve(parent context.Context, c *cliContext) error {
	cfg := c.cfg
	log := logger.Named("serve")

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	configureMetrics(cfg)
	store, err := openStore(ctx, cfg, logger.Get())
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.Store, err)
	}

	analysisTimeout := time.Duration(cfg.AnalysisTimeoutSeconds) * time.Second
	svc := service.New(newPipelineFactory(cfg),
		service.WithStore(store),
		service.WithTracker(dedupe.NewInMemoryTracker(dedupe.WithMaxSize(cfg.IdempotencySize))),
		service.WithWorkerCount(cfg.WorkerCount),
		service.WithQueueSize(cfg.QueueSize),
		service.WithAnalysisTimeout(analysisTimeout),
		service.WithMaxListLimit(cfg.MaxListLimit),
		service.WithLogger(logger.Get()),
	)
	if err := svc.Start(ctx); err != nil {
		_ = store.Close()
		return fmt.Errorf("start service: %w", err)
	}

	handler := api.NewServer(svc,
		api.WithUploadDir(cfg.UploadDir),
		api.WithMaxUploadMB(cfg.MaxVideoSizeMB),
		api.WithVersion(version),
		api.WithLogger(logger.Get()),
	).Handler()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      analysisTimeout + writeSlack,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server",
			logger.String("addr", cfg.Addr),
			logger.String("store", cfg.Store),
			logger.String("extractor", cfg.Extractor),
			logger.Int("workers", cfg.WorkerCount))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info(ctx, "shutting down server...")
	case err := <-serveErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "service stop failed", logger.Error(err))
		runErr = errors.Join(runErr, err)
	}

	log.Info(shutdownCtx, "server stopped")
	return runErr
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chain_sync/internal/app/service"
	"chain_sync/internal/infrastructure/configloader"
	"chain_sync/internal/infrastructure/restapi"
	"chain_sync/internal/pkg/logger"
	"chain_sync/internal/pkg/metrics"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func main() {
	cfgPath := getEnv("CONFIG_PATH", "config/config.yaml")
	cfg, err := configloader.Load(cfgPath)
	if err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		logrus.Fatalf("Failed to initialize zap logger: %v", err)
	}
	defer zapLogger.Sync() //nolint:errcheck
	logger.InstallSlog(zapLogger)
	zapLogger.Info("Configuration loaded", zap.String("path", cfgPath))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, zapLogger); err != nil {
		zapLogger.Fatal("chain_sync stopped with error", zap.Error(err))
	}
	zapLogger.Info("Server exiting")
}

func run(ctx context.Context, cfg *configloader.Config, log *zap.Logger) error {
	app, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer app.close()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := restapi.NewSyncHandler(ctx, app.syncers, log.Named("restapi"))
	router := restapi.SetupRouter(handler, prometheus.DefaultGatherer, log.Named("http"))

	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	runner := service.NewRunner(app.syncers, cfg.Cadence, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server starting", zap.String("addr", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error { return runner.Run(gctx) })
	g.Go(func() error {
		metrics.WatchSchedulers(gctx, 15*time.Second, app.schedulers)
		return nil
	})

	return g.Wait()
}

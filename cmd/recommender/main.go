// cmd/recommender/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"project-recommender/internal/app"
	"project-recommender/internal/common/aws"
	"project-recommender/internal/common/config"
	"project-recommender/internal/common/database"
	"project-recommender/internal/common/logger"
	"project-recommender/internal/recommender/feedback"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	zapLog.Info("Starting recommender...",
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
		zap.String("catalogBackend", cfg.Stores.Catalog.Backend),
		zap.String("profileBackend", cfg.Stores.Profile.Backend),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conns, closeConns := connect(ctx, cfg, zapLog)
	defer closeConns()

	var opts []app.Option
	if cfg.Integrations.AWS.SNS.Enabled {
		sns, err := aws.NewSNSClient(ctx, cfg.Integrations.AWS.Region, cfg.Integrations.AWS.SNS.FeedbackTopicARN)
		if err != nil {
			zapLog.Fatal("sns client failed", zap.Error(err))
		}
		opts = append(opts, app.WithPublisher(feedback.NewSNSPublisher(sns)))
		zapLog.Info("Feedback events will be published to SNS")
	}

	engine, err := app.New(cfg, conns, log, opts...)
	if err != nil {
		zapLog.Fatal("engine wiring failed", zap.Error(err))
	}
	engine.Run(ctx)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      engine.Handler,
		ReadTimeout:  config.GetDuration(cfg.Server.ReadTimeout),
		WriteTimeout: config.GetDuration(cfg.Server.WriteTimeout),
	}

	// pprof stays off the public listener
	go func() {
		if err := http.ListenAndServe("localhost:6060", nil); err != nil {
			zapLog.Warn("pprof listener stopped", zap.Error(err))
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		zapLog.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		zapLog.Info("Shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			zapLog.Error("HTTP server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.GetDuration(cfg.Server.ShutdownTimeout))
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("HTTP server shutdown failed", zap.Error(err))
	}
	engine.Close()
	zapLog.Info("Recommender stopped")
}

// retry tuning for backend dials
var (
	connectAttempts   = 15
	connectRetryDelay = 2 * time.Second
)

// connect dials only the backends the configuration uses. Each client is
// built once and only its Ping is retried, so a slow backend does not leave
// a pool behind per attempt.
func connect(ctx context.Context, cfg *config.Config, zapLog *zap.Logger) (app.Connections, func()) {
	var conns app.Connections
	var closers []func() error
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				zapLog.Warn("close failed", zap.Error(err))
			}
		}
	}
	fatal := func(msg string, err error) {
		closeAll()
		zapLog.Fatal(msg, zap.Error(err))
	}

	if cfg.UsesPostgres() {
		pg, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			fatal("postgres client failed", err)
		}
		closers = append(closers, pg.Close)
		err = retryWithBackoff(func() error {
			return pg.Ping(ctx)
		}, connectAttempts, connectRetryDelay, zapLog, "PostgreSQL connection")
		if err != nil {
			fatal("postgres failed after retries", err)
		}
		conns.Postgres = pg
		zapLog.Info("PostgreSQL connected successfully")
	}

	if cfg.Stores.Catalog.Backend == config.BackendElasticsearch {
		es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
		if err != nil {
			fatal("elasticsearch client failed", err)
		}
		err = retryWithBackoff(func() error {
			return es.Ping(ctx)
		}, connectAttempts, connectRetryDelay, zapLog, "Elasticsearch connection")
		if err != nil {
			fatal("elasticsearch failed after retries", err)
		}
		conns.Elasticsearch = es
		zapLog.Info("Elasticsearch connected successfully")
	}

	if cfg.UsesRedis() {
		rc := database.NewRedis(cfg.Database.Redis)
		closers = append(closers, rc.Close)
		err := retryWithBackoff(func() error {
			return rc.Ping(ctx)
		}, connectAttempts, connectRetryDelay, zapLog, "Redis connection")
		if err != nil {
			fatal("redis failed after retries", err)
		}
		conns.Redis = rc
		zapLog.Info("Redis connected successfully")
	}

	return conns, closeAll
}

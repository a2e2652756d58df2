package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"convconv/internal/config"
	"convconv/internal/ffmpeg"
	"convconv/internal/logging"
	"convconv/internal/metrics"
	"convconv/internal/repository/memory"
	"convconv/internal/service"
	"convconv/internal/storage"
	httptransport "convconv/internal/transport/http"
	"convconv/internal/worker"
)

const shutdownTimeout = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the conversion service",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("reading configuration: %w", err)
		}

		log, err := logging.New(cfg.LogLevel)
		if err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		defer func() { _ = log.Sync() }()

		log.Info("Starting convconv", zap.Stringer("config", cfg))
		defer log.Info("convconv stopped")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg, log)
	},
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	files := storage.New(cfg.Storage.UploadDir, cfg.Storage.OutputDir, cfg.Storage.Retention, log.Named("storage"))
	if err := files.Init(); err != nil {
		return err
	}

	repo := memory.NewJobRepository()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	jobMetrics := metrics.New()
	httpMetrics := metrics.NewMiddleware("convconv")
	jobMetrics.MustRegister(reg, append(httpMetrics.Collectors(), metrics.NewJobStatusCollector(repo))...)

	bopts := []service.BroadcasterOption{service.WithBroadcastMetrics(jobMetrics)}
	if cfg.Redis.Addr != "" {
		rdb, err := newRedisClient(cfg)
		if err != nil {
			return err
		}
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		bopts = append(bopts, service.WithRelay(service.NewRedisEventRelay(rdb, cfg.Redis.ChannelPrefix)))
		log.Info("mirroring job events to redis", zap.String("prefix", cfg.Redis.ChannelPrefix))
	}
	events := service.NewBroadcaster(log.Named("broadcaster"), bopts...)

	runner := ffmpeg.NewRunner(ffmpeg.WithBinary(cfg.FFmpeg.Path), ffmpeg.WithLogger(log.Named("runner")))
	processor := worker.NewProcessor(repo, events, runner,
		worker.WithRecorder(jobMetrics),
		worker.WithProcessorLogger(log.Named("worker")),
	)

	// Задачи переживают отмену ctx до остановки HTTP сервера.
	jobsCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()
	supervisor := worker.NewSupervisor(jobsCtx, processor, log.Named("worker"), jobMetrics)

	jobSvc := service.NewJobService(repo, files, supervisor, runner, service.WithThreads(cfg.FFmpeg.Threads))
	h := httptransport.NewHandler(jobSvc, events, files, httptransport.HandlerConfig{
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		AllowedOrigins: cfg.Server.CORSOrigins,
		Logger:         log.Named("http"),
	})

	srv := &http.Server{
		Addr: cfg.Addr(),
		Handler: httptransport.Routes(h, httptransport.RoutesConfig{
			Logger:   log.Named("http"),
			Metrics:  httpMetrics,
			Gatherer: reg,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return files.RunSweeper(gctx, cfg.Storage.CleanupInterval)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down", zap.Int("running_jobs", supervisor.Running()))

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		cancelJobs()
		if jerr := supervisor.Shutdown(shutdownCtx); jerr != nil {
			log.Warn("jobs still running at shutdown", zap.Error(jerr))
		}
		return err
	})

	return g.Wait()
}

func newRedisClient(cfg *config.Config) (*redis.Client, error) {
	if strings.Contains(cfg.Redis.Addr, "://") {
		opts, err := redis.ParseURL(cfg.Redis.Addr)
		if err != nil {
			return nil, fmt.Errorf("redis url: %w", err)
		}
		if cfg.Redis.Password != "" {
			opts.Password = cfg.Redis.Password
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password}), nil
}

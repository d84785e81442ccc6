package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SamMebarek/mlopstest/internal/config"
	"github.com/SamMebarek/mlopstest/internal/datasource"
	"github.com/SamMebarek/mlopstest/internal/inference"
	"github.com/SamMebarek/mlopstest/internal/logging"
	"github.com/SamMebarek/mlopstest/internal/metrics"
	"github.com/SamMebarek/mlopstest/internal/model"
	"github.com/SamMebarek/mlopstest/internal/registry"
	"github.com/SamMebarek/mlopstest/internal/server"
	"github.com/SamMebarek/mlopstest/pkg/otel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config.yaml")
	paramsPath := flag.String("params", "config/params.yaml", "path to params.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath, *paramsPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.File.Logging.Level, cfg.File.Logging.Format, os.Stderr)

	if err := run(cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("server failed")
	}
}

func run(cfg *config.Config, logger zerolog.Logger) error {
	inf, err := cfg.Inference()
	if err != nil {
		return err
	}

	ctx := context.Background()

	tp, err := otel.InitTracer(ctx, &cfg.File.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		if err := otel.Shutdown(context.Background(), tp); err != nil {
			logger.Error().Err(err).Msg("tracer shutdown failed")
		}
	}()

	data, closeData, err := newDataSource(ctx, inf, logger)
	if err != nil {
		return err
	}
	defer closeData()

	models, err := newModelSource(inf, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	svc, err := inference.New(ctx, data, models, logger,
		inference.WithMetrics(m),
		inference.WithLocation(inf.Location),
	)
	if svc == nil {
		return err
	}
	if err != nil {
		// Serve anyway: /health reports the failure and /reload-model can recover.
		logger.Error().Err(err).Msg("initial model load failed, starting unavailable")
	}

	serviceName := ""
	if cfg.File.Tracing.Enabled {
		serviceName = cfg.File.Tracing.ServiceName
	}
	router := server.NewRouter(svc, server.Config{
		ServiceName:       serviceName,
		AdminUser:         inf.AdminUser,
		AdminPassword:     inf.AdminPassword,
		RequestsPerSecond: inf.RateLimit.RequestsPerSecond,
		Burst:             inf.RateLimit.Burst,
		Gatherer:          reg,
	}, m, logger)

	httpServer := &http.Server{
		Addr:         inf.Addr,
		Handler:      router,
		ReadTimeout:  inf.ReadTimeout,
		WriteTimeout: inf.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", inf.Addr).Str("state", svc.State().String()).
			Str("data_source", inf.DataSource).Str("model_source", inf.ModelSource).Msg("starting server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case sig := <-shutdown:
		logger.Info().Str("signal", sig.String()).Msg("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}

	logger.Info().Msg("server stopped")
	return nil
}

// newDataSource builds the configured observation source and a cleanup func
func newDataSource(ctx context.Context, inf config.Inference, logger zerolog.Logger) (inference.DataSource, func(), error) {
	noop := func() {}

	switch inf.DataSource {
	case "csv":
		return datasource.NewCSVSource(inf.DataCSVPath, inf.Location, logger), noop, nil
	case "gcs":
		opener, err := datasource.NewStorageOpener(ctx, inf.GCS.CredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		src := datasource.NewGCSSource(datasource.GCSConfig{
			Bucket:     inf.GCS.Bucket,
			Object:     inf.GCS.Object,
			Generation: inf.GCS.Generation,
			LocalPath:  inf.GCSLocalPath,
			Location:   inf.Location,
		}, opener, logger)
		return src, func() {
			if err := opener.Close(); err != nil {
				logger.Error().Err(err).Msg("failed to close storage client")
			}
		}, nil
	case "postgres":
		pool, err := datasource.Connect(ctx, inf.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		return datasource.NewPostgresSource(pool, inf.Postgres.Table, logger), pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown data source %q", inf.DataSource)
	}
}

func newModelSource(inf config.Inference, logger zerolog.Logger) (inference.ModelSource, error) {
	switch inf.ModelSource {
	case "file":
		return model.NewFileSource(inf.ModelPath, logger), nil
	case "registry":
		reg, err := registry.Open(inf.RegistryDir, logger)
		if err != nil {
			return nil, err
		}
		return registry.NewSource(reg, inf.CacheSize, logger)
	default:
		return nil, fmt.Errorf("unknown model source %q", inf.ModelSource)
	}
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	httpadapter "github.com/couchcryptid/crop-kc-etl/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/crop-kc-etl/internal/adapter/kafka"
	"github.com/couchcryptid/crop-kc-etl/internal/config"
	"github.com/couchcryptid/crop-kc-etl/internal/cropdb"
	"github.com/couchcryptid/crop-kc-etl/internal/observability"
	"github.com/couchcryptid/crop-kc-etl/internal/pipeline"
	"github.com/couchcryptid/crop-kc-etl/internal/season"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	// Crop table: CROP_DB_PATH when set, the embedded FAO-56 table otherwise.
	var catalog *cropdb.Catalog
	source := cfg.CropDBPath
	if source != "" {
		catalog, err = cropdb.Load(source)
	} else {
		source = cropdb.DefaultName
		catalog, err = cropdb.Default()
	}
	if err != nil {
		logger.Error("failed to load crop database", "error", err)
		os.Exit(1)
	}
	metrics.CatalogCrops.Set(float64(catalog.Len()))
	logger.Info("crop database loaded", "source", source, "crops", catalog.Len())

	seasons := season.NewTracker(cfg.SeasonCacheSize, season.WithEvictionHook(metrics.SeasonEvictions.Inc))

	reader := kafkaadapter.NewReader(cfg, logger)
	writer := kafkaadapter.NewWriter(cfg, logger)
	transformer := pipeline.NewTransformer(catalog, seasons, logger)

	p := pipeline.New(reader, transformer, writer, logger, metrics, cfg.BatchSize)

	srv := httpadapter.NewServer(cfg.HTTPAddr, p, catalog, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Start ETL pipeline.
	go func() {
		if err := p.Run(ctx); err != nil {
			logger.Error("pipeline error", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	if err := reader.Close(); err != nil {
		logger.Error("kafka reader close error", "error", err)
	}
	if err := writer.Close(); err != nil {
		logger.Error("kafka writer close error", "error", err)
	}

	logger.Info("shutdown complete")
}

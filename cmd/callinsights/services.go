package main

import (
	"context"

	"github.com/rotisserie/eris"
	"google.golang.org/api/option"

	"call-insights-go/internal/extractor"
	"call-insights-go/internal/metrics"
	"call-insights-go/internal/objectstore"
	"call-insights-go/internal/pipeline"
	"call-insights-go/internal/processor"
	"call-insights-go/internal/retry"
	"call-insights-go/internal/warehouse"
)

// schemaWarehouse is a warehouse that can create its own table.
type schemaWarehouse interface {
	warehouse.Warehouse
	EnsureSchema(ctx context.Context) error
}

// services holds everything a command needs, built once from cfg.
type services struct {
	Metrics      *metrics.Recorder
	Processor    *processor.Processor
	Orchestrator *pipeline.Orchestrator
	Warehouse    *warehouse.Gateway

	closers []func()
}

func initServices(ctx context.Context) (*services, error) {
	s := &services{Metrics: metrics.New()}
	exec := retry.New(cfg.Pipeline.MaxRetries, cfg.Pipeline.BaseDelay(), appLog)

	store, err := initObjectStore(ctx, s)
	if err != nil {
		return nil, err
	}

	wh, err := initWarehouse(ctx, s)
	if err != nil {
		s.Close()
		return nil, err
	}
	if err := wh.EnsureSchema(ctx); err != nil {
		s.Close()
		return nil, eris.Wrap(err, "ensure warehouse schema")
	}

	model := extractor.NewGeminiClient(extractor.GeminiOptions{
		BaseURL:           cfg.Analysis.BaseURL,
		APIKey:            cfg.Analysis.APIKey,
		Timeout:           secs(cfg.Analysis.TimeoutSecs),
		RequestsPerSecond: cfg.Analysis.RequestsPerSecond,
		Burst:             cfg.Analysis.Burst,
	}, appLog)

	s.Warehouse = warehouse.NewGateway(wh, exec, appLog)
	s.Processor = processor.New(
		objectstore.NewGateway(store, cfg.Storage.Prefix, exec, appLog),
		extractor.NewGateway(model, cfg.Analysis.Model, exec, appLog),
		s.Metrics,
		cfg.Pipeline.MaxConcurrentTasks,
		appLog,
	)
	s.Orchestrator = pipeline.New(s.Processor, s.Warehouse, s.Metrics, appLog)

	appLog.WithField("storage", cfg.Storage.Driver).
		WithField("warehouse", wh.TableRef()).
		WithField("max_concurrent", cfg.Pipeline.MaxConcurrentTasks).
		WithField("max_retries", cfg.Pipeline.MaxRetries).
		Info("services ready")
	return s, nil
}

func initObjectStore(ctx context.Context, s *services) (objectstore.Store, error) {
	switch cfg.Storage.Driver {
	case "local":
		local, err := objectstore.NewLocalStore(cfg.Storage.LocalRoot, cfg.Storage.Bucket)
		if err != nil {
			return nil, err
		}
		return local, nil
	default:
		gcs, err := objectstore.NewGCSStore(ctx, cfg.Storage.Bucket, option.WithUserAgent("callinsights"))
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = gcs.Close() })
		return gcs, nil
	}
}

func initWarehouse(ctx context.Context, s *services) (schemaWarehouse, error) {
	switch cfg.Warehouse.Driver {
	case "sqlite":
		dsn := cfg.Warehouse.DatabaseURL
		if dsn == "" {
			dsn = "file:callinsights.db"
		}
		wh, err := warehouse.NewSQLite(dsn, cfg.Warehouse.Table)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() { _ = wh.Close() })
		return wh, nil
	default:
		wh, err := warehouse.NewPostgres(ctx, cfg.Warehouse.DatabaseURL, cfg.Warehouse.Dataset, cfg.Warehouse.Table)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, wh.Close)
		return wh, nil
	}
}

// Close releases clients in reverse order of creation.
func (s *services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

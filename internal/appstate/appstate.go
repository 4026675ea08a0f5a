// Package appstate assembles the chunk store, metadata index, metrics
// registry, request pipeline, and deletion worker from configuration into
// the single state container the HTTP layer is built against. It is the
// object storage service's analogue of the teacher's controlplane runtime:
// one place that owns every long-lived dependency and its shutdown.
package appstate

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vitality-ai/warpdrive/internal/chunkstore"
	"github.com/vitality-ai/warpdrive/internal/chunkstore/fsbackend"
	"github.com/vitality-ai/warpdrive/internal/chunkstore/memorybackend"
	chunkstores3 "github.com/vitality-ai/warpdrive/internal/chunkstore/s3backend"
	"github.com/vitality-ai/warpdrive/internal/config"
	"github.com/vitality-ai/warpdrive/internal/deletionworker"
	"github.com/vitality-ai/warpdrive/internal/logger"
	"github.com/vitality-ai/warpdrive/internal/metadataindex"
	metadatamemory "github.com/vitality-ai/warpdrive/internal/metadataindex/memorybackend"
	"github.com/vitality-ai/warpdrive/internal/metadataindex/sqlitebackend"
	"github.com/vitality-ai/warpdrive/internal/metrics"
	"github.com/vitality-ai/warpdrive/internal/requestpipeline"
)

// AppState bundles every dependency the HTTP handlers need. It is built
// once at startup and shared read-only across requests; nothing on it
// mutates except through the backends' own internal synchronization.
type AppState struct {
	Config   *config.Config
	CS       chunkstore.Store
	MI       metadataindex.Index
	Metrics  *metrics.Registry
	Pipeline *requestpipeline.Pipeline
	Deletion *deletionworker.Worker
	Prom     *prometheus.Registry
}

// New builds an AppState from cfg. The caller is responsible for calling
// Close when done.
func New(ctx context.Context, cfg *config.Config) (*AppState, error) {
	cs, err := buildChunkStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("appstate: build chunk store: %w", err)
	}

	mi, err := buildMetadataIndex(cfg)
	if err != nil {
		return nil, fmt.Errorf("appstate: build metadata index: %w", err)
	}

	promReg := prometheus.NewRegistry()
	var reg *metrics.Registry
	if cfg.Metrics.Enabled {
		reg = metrics.NewRegistry(promReg)
	}

	pipeline := requestpipeline.New(cs, mi, requestpipeline.WithMetrics(reg))

	worker := deletionworker.New(cs, mi,
		deletionworker.WithInterval(cfg.Deletion.Interval),
		deletionworker.WithBatchSize(cfg.Deletion.BatchSize),
		deletionworker.WithRetention(cfg.Deletion.Retention),
		deletionworker.WithMetrics(reg),
	)

	return &AppState{
		Config:   cfg,
		CS:       cs,
		MI:       mi,
		Metrics:  reg,
		Pipeline: pipeline,
		Deletion: worker,
		Prom:     promReg,
	}, nil
}

func buildChunkStore(ctx context.Context, cfg *config.Config) (chunkstore.Store, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return memorybackend.New(), nil
	case "fs":
		return fsbackend.New(fsbackend.Config{BasePath: cfg.Storage.Root})
	case "s3":
		return chunkstores3.NewFromConfig(ctx, chunkstores3.Config{
			Bucket:         cfg.Storage.S3.Bucket,
			Region:         cfg.Storage.S3.Region,
			Endpoint:       cfg.Storage.S3.Endpoint,
			KeyPrefix:      cfg.Storage.S3.KeyPrefix,
			ForcePathStyle: cfg.Storage.S3.ForcePathStyle,
		})
	default:
		return nil, fmt.Errorf("appstate: unknown storage backend %q", cfg.Storage.Backend)
	}
}

func buildMetadataIndex(cfg *config.Config) (metadataindex.Index, error) {
	switch cfg.Metadata.Backend {
	case "memory":
		return metadatamemory.New(), nil
	case "sqlite":
		return sqlitebackend.New(sqlitebackend.Config{Path: cfg.Metadata.DSN})
	default:
		return nil, fmt.Errorf("appstate: unknown metadata backend %q", cfg.Metadata.Backend)
	}
}

// HealthCheck verifies the chunk store and metadata index are reachable.
func (a *AppState) HealthCheck(ctx context.Context) error {
	if err := a.CS.HealthCheck(ctx); err != nil {
		return fmt.Errorf("appstate: chunk store unhealthy: %w", err)
	}
	if err := a.MI.HealthCheck(ctx); err != nil {
		return fmt.Errorf("appstate: metadata index unhealthy: %w", err)
	}
	return nil
}

// Close releases the chunk store and metadata index's resources.
func (a *AppState) Close() error {
	if err := a.CS.Close(); err != nil {
		logger.Error("appstate: close chunk store failed", "error", err)
	}
	return a.MI.Close()
}

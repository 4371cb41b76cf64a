package cmd

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/gewnthar/parkalerts/config"
	"github.com/gewnthar/parkalerts/database"
	"github.com/gewnthar/parkalerts/matching"
	"github.com/gewnthar/parkalerts/metrics"
	"github.com/gewnthar/parkalerts/scraper"
	"github.com/gewnthar/parkalerts/services"
)

// app is the wired sync pipeline shared by serve and sync.
type app struct {
	registry  *prometheus.Registry
	metrics   *metrics.SyncMetrics
	processor *services.DataProcessor
	scheduler *services.Scheduler
}

func newApp(cfg *config.Config, store *database.Store) (*app, error) {
	if err := cfg.ValidateSources(); err != nil {
		return nil, err
	}

	matchOpts := matching.Options{
		SuffixPatterns: cfg.Matching.SuffixPatterns,
		LocationRules:  cfg.Matching.LocationRules,
	}
	// Compile the rules once up front so a bad pattern fails at startup.
	if _, err := matching.New(nil, nil, matchOpts); err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.NewSyncMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	var overrides services.OverrideLoader = scraper.NewFileOverrideLoader(cfg.Overrides.Path)
	if cfg.Overrides.URL != "" {
		overrides = scraper.NewRemoteOverrideLoader(cfg.Overrides.URL, cfg.Overrides.Path, cfg.Sources.Alerts.Timeout)
	}

	processor := services.NewDataProcessor(
		store,
		scraper.NewAlertClient(cfg.Sources.Alerts),
		scraper.NewReserveClient(cfg.Sources.Reserves),
		overrides,
		services.ProcessorOptions{
			Matching:                 matchOpts,
			KeepAlertsOnFetchFailure: cfg.Sync.KeepAlertsOnFetchFailure,
		},
		m,
	)

	return &app{
		registry:  registry,
		metrics:   m,
		processor: processor,
		scheduler: services.NewScheduler(processor, m),
	}, nil
}

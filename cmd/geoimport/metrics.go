package main

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/ruslano69/geoimport/pkg/resultlog"
	"github.com/ruslano69/geoimport/pkg/settings"
)

var (
	lastRunSuccess = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "geoimport_last_run_success",
		Help: "1 if the last import succeeded, 0 otherwise.",
	})

	lastRunDuration = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "geoimport_last_run_duration_seconds",
		Help: "Wall time of the last import.",
	})

	lastRunRecords = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "geoimport_last_run_records",
		Help: "Records loaded by the last import, by entity kind.",
	}, []string{"kind"})
)

func recordRun(result resultlog.RunResult) {
	if result.Status == resultlog.StatusSuccess {
		lastRunSuccess.Set(1)
	} else {
		lastRunSuccess.Set(0)
	}
	lastRunDuration.Set(float64(result.DurationMs) / 1000)
	for _, e := range result.Entities {
		lastRunRecords.WithLabelValues(e.Kind).Set(float64(e.Loaded))
	}
}

// pushMetrics sends the default registry to the Pushgateway, grouped by
// backend. Without a gateway URL it does nothing.
func pushMetrics(ctx context.Context, cfg settings.MetricsConfig, backend string) error {
	if cfg.PushGateway == "" {
		return nil
	}

	err := push.New(cfg.PushGateway, cfg.Job).
		Gatherer(prometheus.DefaultGatherer).
		Grouping("backend", backend).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to push metrics: %w", err)
	}
	return nil
}

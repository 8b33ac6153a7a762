// Package metrics exposes the Prometheus counters the dashboard's ops view
// scrapes.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncCycles counts completed sync cycles per type
	SyncCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trackarr_sync_cycles_total",
		Help: "Completed sync cycles by type.",
	}, []string{"type"})

	// SyncCyclesDropped counts cycle requests shed by the run-lock
	SyncCyclesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trackarr_sync_cycles_dropped_total",
		Help: "Sync requests dropped because a cycle was already running.",
	})

	// EventsIngested counts normalized events written per service and kind
	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trackarr_events_ingested_total",
		Help: "Normalized events written by source service and event kind.",
	}, []string{"service", "kind"})

	// CollectorErrors counts per-connection sync errors
	CollectorErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trackarr_collector_errors_total",
		Help: "Collector errors by source service.",
	}, []string{"service"})
)

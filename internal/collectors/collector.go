// Package collectors translates each external service's API into normalized
// store writes. One collector per service type; all share the same result
// shape and never let per-record failures escape a sync call.
package collectors

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/trackarr/trackarr/internal/models"
)

const historyPageSize = 100

// Result is what every sync operation returns. Per-record failures are
// accumulated here instead of aborting the batch.
type Result struct {
	Processed int
	Errors    []string
}

// AddErrorf appends a formatted error to the result
func (r *Result) AddErrorf(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

// TestResult is the outcome of a connection test
type TestResult struct {
	Success bool
	Version string
	Error   string
}

// Collector is the minimal contract every service collector implements
type Collector interface {
	TestConnection(ctx context.Context) TestResult
}

// MetadataSyncer syncs the service's full library listing into MediaItems
type MetadataSyncer interface {
	SyncMetadata(ctx context.Context) Result
}

// HistorySyncer walks the service's history feed newest-first down to the
// cutoff and ingests normalized events
type HistorySyncer interface {
	SyncHistory(ctx context.Context, since time.Time) Result
}

// PlaybackSyncer ingests playback sessions and completed plays
type PlaybackSyncer interface {
	SyncPlayback(ctx context.Context) Result
}

// StatsSyncer maintains daily indexer aggregates
type StatsSyncer interface {
	SyncStats(ctx context.Context, since time.Time) Result
}

// New builds the collector for a connection's service type. Selection is a
// plain switch over the fixed enum.
func New(conn *models.Connection, db *models.Database, timeout, pageDelay time.Duration, logger *logrus.Logger) Collector {
	switch conn.ServiceType {
	case models.ServiceRadarr:
		return newRadarr(conn, db, timeout, pageDelay, logger)
	case models.ServiceSonarr:
		return newSonarr(conn, db, timeout, pageDelay, logger)
	case models.ServiceBazarr:
		return newBazarr(conn, db, timeout, pageDelay, logger)
	case models.ServiceProwlarr:
		return newProwlarr(conn, db, timeout, pageDelay, logger)
	case models.ServiceOverseerr:
		return newOverseerr(conn, db, timeout, pageDelay, logger)
	case models.ServiceJellyfin:
		return newJellyfin(conn, db, timeout, logger)
	default:
		return nil
	}
}

// mapEventType translates a service's native event name through its lookup
// table; unrecognized names pass through verbatim rather than being dropped
func mapEventType(table map[string]models.EventType, native string) models.EventType {
	if mapped, ok := table[native]; ok {
		return mapped
	}
	return models.EventType(native)
}

// failedResult wraps a top-level failure (network, auth) as a single-error
// result so it never throws past the collector boundary
func failedResult(err error) Result {
	return Result{Errors: []string{err.Error()}}
}

// formatID renders a numeric external id, keeping absent ids empty
func formatID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}

// pagePause waits the inter-page throttle, bailing out early on cancellation
func pagePause(ctx context.Context, delay time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

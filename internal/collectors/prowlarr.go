package collectors

import (
	"context"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/trackarr/trackarr/internal/metrics"
	"github.com/trackarr/trackarr/internal/models"
	"github.com/trackarr/trackarr/internal/services/prowlarr"
)

const statDateLayout = "2006-01-02"

// Prowlarr maintains daily per-indexer aggregates. The snapshot endpoint
// bulk-replaces today's counters; when it is unavailable the grab history
// feed incrementally bumps the same daily rows, so both paths converge on
// one shape.
type Prowlarr struct {
	conn      *models.Connection
	client    *prowlarr.Client
	db        *models.Database
	pageDelay time.Duration
	logger    *logrus.Logger
}

func newProwlarr(conn *models.Connection, db *models.Database, timeout, pageDelay time.Duration, logger *logrus.Logger) *Prowlarr {
	return &Prowlarr{
		conn:      conn,
		client:    prowlarr.NewClient(conn.BaseURL, conn.APIKey, timeout, logger),
		db:        db,
		pageDelay: pageDelay,
		logger:    logger,
	}
}

// TestConnection probes the service and reports its version
func (c *Prowlarr) TestConnection(ctx context.Context) TestResult {
	status, err := c.client.GetSystemStatus(ctx)
	if err != nil {
		return TestResult{Error: err.Error()}
	}
	return TestResult{Success: true, Version: status.Version}
}

// SyncStats refreshes the daily indexer aggregates: snapshot first, history
// fallback
func (c *Prowlarr) SyncStats(ctx context.Context, since time.Time) Result {
	res := Result{}

	stats, err := c.client.GetIndexerStats(ctx)
	if err == nil {
		c.replaceFromSnapshot(stats, &res)
		return res
	}

	c.logger.WithError(err).WithField("connection", c.conn.Name).
		Warn("Stats snapshot unavailable, falling back to history feed")
	c.bumpFromHistory(ctx, since, &res)
	return res
}

// replaceFromSnapshot bulk-replaces today's counters per indexer
func (c *Prowlarr) replaceFromSnapshot(stats *prowlarr.IndexerStats, res *Result) {
	today := time.Now().UTC().Format(statDateLayout)

	for _, entry := range stats.Indexers {
		if entry.IndexerName == "" {
			continue
		}
		err := c.db.ReplaceIndexerStat(&models.IndexerStat{
			Indexer:           entry.IndexerName,
			Date:              today,
			Searches:          entry.NumberOfQueries,
			Grabs:             entry.NumberOfGrabs,
			FailedGrabs:       entry.NumberOfFailedGrabs,
			AvgResponseTimeMs: entry.AverageResponseTime,
		})
		if err != nil {
			res.AddErrorf("indexer %s: %v", entry.IndexerName, err)
			continue
		}
		res.Processed++
		metrics.EventsIngested.WithLabelValues(string(c.conn.ServiceType), "indexer_stat").Inc()
	}

	c.logger.WithFields(logrus.Fields{
		"connection": c.conn.Name,
		"indexers":   res.Processed,
	}).Info("Prowlarr stats snapshot applied")
}

// bumpFromHistory walks the grab feed newest-first down to the cutoff and
// increments the daily rows per grab event
func (c *Prowlarr) bumpFromHistory(ctx context.Context, since time.Time, res *Result) {
	indexers, err := c.client.GetIndexers(ctx)
	if err != nil {
		res.AddErrorf("listing indexers: %v", err)
		return
	}
	names := make(map[int64]string, len(indexers))
	for _, idx := range indexers {
		names[idx.ID] = idx.Name
	}

	page := 1
	for {
		hp, err := c.client.GetHistory(ctx, page, historyPageSize)
		if err != nil {
			res.AddErrorf("history page %d: %v", page, err)
			return
		}
		if len(hp.Records) == 0 {
			return
		}

		reachedCutoff := false
		for _, rec := range hp.Records {
			if rec.Date.Before(since) {
				reachedCutoff = true
				break
			}
			if rec.EventType != "releaseGrabbed" {
				continue
			}
			name := names[rec.IndexerID]
			if name == "" {
				continue
			}

			elapsed, _ := strconv.Atoi(rec.Data["elapsedTime"])
			day := rec.Date.UTC().Format(statDateLayout)
			if err := c.db.BumpIndexerGrab(name, day, !rec.Successful, elapsed); err != nil {
				res.AddErrorf("grab for %s: %v", name, err)
				continue
			}
			res.Processed++
			metrics.EventsIngested.WithLabelValues(string(c.conn.ServiceType), "indexer_stat").Inc()
		}

		if reachedCutoff || len(hp.Records) < historyPageSize {
			return
		}
		page++
		if err := pagePause(ctx, c.pageDelay); err != nil {
			res.AddErrorf("stats sync interrupted: %v", err)
			return
		}
	}
}

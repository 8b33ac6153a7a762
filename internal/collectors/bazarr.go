package collectors

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/trackarr/trackarr/internal/metrics"
	"github.com/trackarr/trackarr/internal/models"
	"github.com/trackarr/trackarr/internal/services/bazarr"
)

// bazarrTimestampLayout is the feed's two-digit-year timestamp format
const bazarrTimestampLayout = "01/02/06 15:04:05"

// Bazarr collects subtitle download/upgrade history for movies and episodes
type Bazarr struct {
	conn      *models.Connection
	client    *bazarr.Client
	db        *models.Database
	pageDelay time.Duration
	logger    *logrus.Logger
}

func newBazarr(conn *models.Connection, db *models.Database, timeout, pageDelay time.Duration, logger *logrus.Logger) *Bazarr {
	return &Bazarr{
		conn:      conn,
		client:    bazarr.NewClient(conn.BaseURL, conn.APIKey, timeout, logger),
		db:        db,
		pageDelay: pageDelay,
		logger:    logger,
	}
}

// TestConnection probes the service and reports its version
func (c *Bazarr) TestConnection(ctx context.Context) TestResult {
	status, err := c.client.GetSystemStatus(ctx)
	if err != nil {
		return TestResult{Error: err.Error()}
	}
	return TestResult{Success: true, Version: status.Data.BazarrVersion}
}

// SyncHistory walks the movie and episode subtitle feeds newest-first down
// to the cutoff. Only downloaded and upgraded actions are ingested.
func (c *Bazarr) SyncHistory(ctx context.Context, since time.Time) Result {
	res := Result{}
	c.syncFeed(ctx, since, false, &res)
	c.syncFeed(ctx, since, true, &res)

	c.logger.WithFields(logrus.Fields{
		"connection": c.conn.Name,
		"processed":  res.Processed,
		"errors":     len(res.Errors),
	}).Info("Bazarr history sync completed")
	return res
}

func (c *Bazarr) syncFeed(ctx context.Context, since time.Time, series bool, res *Result) {
	feed := "movies"
	if series {
		feed = "series"
	}

	start := 0
	for {
		var page *bazarr.HistoryPage
		var err error
		if series {
			page, err = c.client.GetSeriesHistory(ctx, start, historyPageSize)
		} else {
			page, err = c.client.GetMovieHistory(ctx, start, historyPageSize)
		}
		if err != nil {
			res.AddErrorf("%s history at offset %d: %v", feed, start, err)
			return
		}
		if len(page.Data) == 0 {
			return
		}

		reachedCutoff := false
		for i := range page.Data {
			item := &page.Data[i]

			ts, err := parseBazarrTimestamp(item.Timestamp)
			if err != nil {
				c.logger.WithFields(logrus.Fields{
					"connection": c.conn.Name,
					"timestamp":  item.Timestamp,
				}).Warn("Unparseable subtitle timestamp, skipping")
				continue
			}
			if ts.Before(since) {
				reachedCutoff = true
				break
			}

			if item.Action != bazarr.ActionDownloaded && item.Action != bazarr.ActionUpgraded {
				continue
			}

			inserted, err := c.processItem(item, ts, series)
			if err != nil {
				res.AddErrorf("%s subtitle record: %v", feed, err)
				continue
			}
			if inserted {
				res.Processed++
			}
		}

		if reachedCutoff || len(page.Data) < historyPageSize {
			return
		}
		start += historyPageSize
		if err := pagePause(ctx, c.pageDelay); err != nil {
			res.AddErrorf("%s history sync interrupted: %v", feed, err)
			return
		}
	}
}

// processItem upserts the referenced media item (and episode, for series
// feeds) and inserts the subtitle event. Dedup relies on the storage layer's
// unique index: insert, ignore conflict.
func (c *Bazarr) processItem(item *bazarr.HistoryItem, ts time.Time, series bool) (bool, error) {
	var mediaItem *models.MediaItem
	var episodeID *uint64
	var err error

	if series {
		if item.SonarrSeriesID == 0 || item.SeriesTitle == "" {
			return false, nil // no embedded entity, skip
		}
		mediaItem, err = c.db.UpsertMediaItem(&models.MediaItem{
			Source:     c.conn.ServiceType,
			ExternalID: fmt.Sprintf("series-%d", item.SonarrSeriesID),
			MediaType:  models.MediaTypeTV,
			Title:      item.SeriesTitle,
		})
		if err != nil {
			return false, err
		}

		if season, episode, ok := parseEpisodeNumber(item.EpisodeNumber); ok {
			ep, err := c.db.UpsertEpisode(&models.Episode{
				MediaItemID:   mediaItem.ID,
				SeasonNumber:  season,
				EpisodeNumber: episode,
				Title:         item.Title,
			})
			if err != nil {
				return false, err
			}
			episodeID = &ep.ID
		}
	} else {
		if item.RadarrID == 0 || item.Title == "" {
			return false, nil
		}
		mediaItem, err = c.db.UpsertMediaItem(&models.MediaItem{
			Source:     c.conn.ServiceType,
			ExternalID: fmt.Sprintf("movie-%d", item.RadarrID),
			MediaType:  models.MediaTypeMovie,
			Title:      item.Title,
		})
		if err != nil {
			return false, err
		}
	}

	inserted, err := c.db.InsertSubtitleEvent(&models.SubtitleEvent{
		MediaItemID: mediaItem.ID,
		EpisodeID:   episodeID,
		Language:    item.Language.Code2,
		Provider:    item.Provider,
		Timestamp:   ts,
		Score:       parseBazarrScore(item.Score),
	})
	if err != nil {
		return false, err
	}
	if inserted {
		metrics.EventsIngested.WithLabelValues(string(c.conn.ServiceType), "subtitle").Inc()
	}
	return inserted, nil
}

// parseBazarrTimestamp parses the feed's two-digit-year timestamps as UTC
func parseBazarrTimestamp(value string) (time.Time, error) {
	return time.Parse(bazarrTimestampLayout, strings.TrimSpace(value))
}

// parseBazarrScore parses a percent-formatted score string ("90.5%");
// malformed scores yield 0
func parseBazarrScore(value string) float64 {
	trimmed := strings.TrimSuffix(strings.TrimSpace(value), "%")
	if trimmed == "" {
		return 0
	}
	score, err := strconv.ParseFloat(trimmed, 64)
	if err != nil {
		return 0
	}
	return score
}

// parseEpisodeNumber parses the feed's "SxE" episode notation ("1x04")
func parseEpisodeNumber(value string) (season, episode int, ok bool) {
	parts := strings.SplitN(strings.TrimSpace(value), "x", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	season, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	episode, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return season, episode, true
}

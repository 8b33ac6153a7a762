package collectors

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/timshannon/bolthold"

	"github.com/trackarr/trackarr/internal/metrics"
	"github.com/trackarr/trackarr/internal/models"
	"github.com/trackarr/trackarr/internal/services/radarr"
	"github.com/trackarr/trackarr/internal/utils"
)

// radarrEventTypes maps the service's native history vocabulary onto the
// normalized enum
var radarrEventTypes = map[string]models.EventType{
	"grabbed":                models.EventGrabbed,
	"downloadFolderImported": models.EventDownloaded,
	"movieFileDeleted":       models.EventDeleted,
	"movieFileRenamed":       models.EventRenamed,
}

// Radarr collects movie library metadata and download history
type Radarr struct {
	conn      *models.Connection
	client    *radarr.Client
	db        *models.Database
	pageDelay time.Duration
	logger    *logrus.Logger
}

func newRadarr(conn *models.Connection, db *models.Database, timeout, pageDelay time.Duration, logger *logrus.Logger) *Radarr {
	return &Radarr{
		conn:      conn,
		client:    radarr.NewClient(conn.BaseURL, conn.APIKey, timeout, logger),
		db:        db,
		pageDelay: pageDelay,
		logger:    logger,
	}
}

// TestConnection probes the service and reports its version
func (c *Radarr) TestConnection(ctx context.Context) TestResult {
	status, err := c.client.GetSystemStatus(ctx)
	if err != nil {
		return TestResult{Error: err.Error()}
	}
	return TestResult{Success: true, Version: status.Version}
}

// SyncMetadata fetches the full movie library and overwrites each item in
// place
func (c *Radarr) SyncMetadata(ctx context.Context) Result {
	res := Result{}

	movies, err := c.client.GetMovies(ctx)
	if err != nil {
		return failedResult(err)
	}

	for i := range movies {
		if _, err := c.upsertMovie(&movies[i]); err != nil {
			res.AddErrorf("movie %d (%s): %v", movies[i].ID, movies[i].Title, err)
			continue
		}
		res.Processed++
	}

	c.logger.WithFields(logrus.Fields{
		"connection": c.conn.Name,
		"synced":     res.Processed,
	}).Info("Radarr metadata sync completed")
	return res
}

// SyncHistory walks the history feed newest-first, stopping at the cutoff or
// at the end of data
func (c *Radarr) SyncHistory(ctx context.Context, since time.Time) Result {
	res := Result{}

	page := 1
	for {
		hp, err := c.client.GetHistory(ctx, page, historyPageSize)
		if err != nil {
			res.AddErrorf("history page %d: %v", page, err)
			break
		}
		if len(hp.Records) == 0 {
			break
		}

		reachedCutoff := false
		for i := range hp.Records {
			rec := &hp.Records[i]
			if rec.Date.Before(since) {
				reachedCutoff = true
				break
			}
			inserted, err := c.processHistoryRecord(rec)
			if err != nil {
				res.AddErrorf("history record %d: %v", rec.ID, err)
				continue
			}
			if inserted {
				res.Processed++
			}
		}

		if reachedCutoff || len(hp.Records) < historyPageSize {
			break
		}
		page++
		if err := pagePause(ctx, c.pageDelay); err != nil {
			res.AddErrorf("history sync interrupted: %v", err)
			break
		}
	}

	c.logger.WithFields(logrus.Fields{
		"connection": c.conn.Name,
		"processed":  res.Processed,
		"errors":     len(res.Errors),
	}).Info("Radarr history sync completed")
	return res
}

// processHistoryRecord runs the per-record pipeline: resolve the movie, map
// the event type, dedup, parse quality signals, detect upgrades, insert.
// Returns true when a new event row was written.
func (c *Radarr) processHistoryRecord(rec *radarr.HistoryRecord) (bool, error) {
	if rec.Movie == nil {
		// The service didn't embed the referenced entity; skip this record
		c.logger.WithFields(logrus.Fields{
			"connection": c.conn.Name,
			"record":     rec.ID,
		}).Warn("History record missing embedded movie, skipping")
		return false, nil
	}

	item, err := c.upsertMovie(rec.Movie)
	if err != nil {
		return false, err
	}

	eventType := mapEventType(radarrEventTypes, rec.EventType)
	date := rec.Date.UTC()

	// Idempotent no-op for events already ingested by a previous poll
	exists, err := c.db.HasDownloadEvent(c.conn.ServiceType, item.ID, date, eventType)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	info := utils.ParseReleaseTitle(rec.SourceTitle)
	group := rec.Data["releaseGroup"]
	if group == "" {
		group = info.Group
	}

	size, _ := strconv.ParseInt(rec.Data["size"], 10, 64)
	if size == 0 && rec.Movie.MovieFile != nil {
		size = rec.Movie.MovieFile.Size
	}

	raw, _ := json.Marshal(rec)

	ev := &models.DownloadEvent{
		Source:         c.conn.ServiceType,
		MediaItemID:    item.ID,
		EventType:      eventType,
		Date:           date,
		SizeBytes:      size,
		Resolution:     info.Resolution,
		QualitySource:  info.Source,
		Codec:          info.Codec,
		QualityScore:   info.Score,
		ReleaseGroup:   group,
		ReleaseTitle:   rec.SourceTitle,
		Indexer:        rec.Data["indexer"],
		DownloadClient: rec.Data["downloadClient"],
		RawJSON:        string(raw),
	}

	// Upgrade detection: a repeat "downloaded" event for an item that was
	// already downloaded once implies a replacement file
	if eventType == models.EventDownloaded {
		prior, err := c.db.GetLastDownloadedEvent(item.ID, nil)
		if err == nil {
			ev.IsUpgrade = true
			ev.PreviousSizeBytes = prior.SizeBytes
		} else if !errors.Is(err, bolthold.ErrNotFound) {
			return false, err
		}
	}

	inserted, err := c.db.InsertDownloadEvent(ev)
	if err != nil {
		return false, err
	}
	if inserted {
		metrics.EventsIngested.WithLabelValues(string(c.conn.ServiceType), "download").Inc()
	}
	return inserted, nil
}

// upsertMovie maps a movie payload onto a MediaItem and overwrites it in
// the store
func (c *Radarr) upsertMovie(movie *radarr.Movie) (*models.MediaItem, error) {
	quality := ""
	size := movie.SizeOnDisk
	if movie.MovieFile != nil {
		quality = movie.MovieFile.Quality.Quality.Name
		if size == 0 {
			size = movie.MovieFile.Size
		}
	}

	item := &models.MediaItem{
		Source:          c.conn.ServiceType,
		ExternalID:      strconv.FormatInt(movie.ID, 10),
		MediaType:       models.MediaTypeMovie,
		Title:           movie.Title,
		Year:            movie.Year,
		TmdbID:          formatID(movie.TmdbID),
		ImdbID:          movie.ImdbID,
		RuntimeMinutes:  movie.Runtime,
		SizeOnDiskBytes: size,
		Quality:         quality,
		PosterURL:       movie.PosterURL(),
	}
	item.SetGenres(movie.Genres)
	item.SetMetadata(map[string]string{
		"studio":   movie.Studio,
		"overview": movie.Overview,
	})

	return c.db.UpsertMediaItem(item)
}

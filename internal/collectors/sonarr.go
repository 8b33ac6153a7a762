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
	"github.com/trackarr/trackarr/internal/services/sonarr"
	"github.com/trackarr/trackarr/internal/utils"
)

var sonarrEventTypes = map[string]models.EventType{
	"grabbed":                models.EventGrabbed,
	"downloadFolderImported": models.EventDownloaded,
	"episodeFileDeleted":     models.EventDeleted,
	"episodeFileRenamed":     models.EventRenamed,
}

// Sonarr collects series/episode metadata and per-episode download history
type Sonarr struct {
	conn      *models.Connection
	client    *sonarr.Client
	db        *models.Database
	pageDelay time.Duration
	logger    *logrus.Logger
}

func newSonarr(conn *models.Connection, db *models.Database, timeout, pageDelay time.Duration, logger *logrus.Logger) *Sonarr {
	return &Sonarr{
		conn:      conn,
		client:    sonarr.NewClient(conn.BaseURL, conn.APIKey, timeout, logger),
		db:        db,
		pageDelay: pageDelay,
		logger:    logger,
	}
}

// TestConnection probes the service and reports its version
func (c *Sonarr) TestConnection(ctx context.Context) TestResult {
	status, err := c.client.GetSystemStatus(ctx)
	if err != nil {
		return TestResult{Error: err.Error()}
	}
	return TestResult{Success: true, Version: status.Version}
}

// SyncMetadata fetches the series library and each series' episodes,
// overwriting items and episodes in place
func (c *Sonarr) SyncMetadata(ctx context.Context) Result {
	res := Result{}

	series, err := c.client.GetSeries(ctx)
	if err != nil {
		return failedResult(err)
	}

	for i := range series {
		s := &series[i]
		item, err := c.upsertSeries(s)
		if err != nil {
			res.AddErrorf("series %d (%s): %v", s.ID, s.Title, err)
			continue
		}

		episodes, err := c.client.GetEpisodes(ctx, s.ID)
		if err != nil {
			res.AddErrorf("episodes of %s: %v", s.Title, err)
			// The series itself still synced
			res.Processed++
			continue
		}
		for j := range episodes {
			if _, err := c.upsertEpisode(item.ID, &episodes[j]); err != nil {
				res.AddErrorf("episode %d of %s: %v", episodes[j].ID, s.Title, err)
			}
		}
		res.Processed++
	}

	c.logger.WithFields(logrus.Fields{
		"connection": c.conn.Name,
		"synced":     res.Processed,
	}).Info("Sonarr metadata sync completed")
	return res
}

// SyncHistory walks the history feed newest-first, stopping at the cutoff or
// at the end of data
func (c *Sonarr) SyncHistory(ctx context.Context, since time.Time) Result {
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
	}).Info("Sonarr history sync completed")
	return res
}

// processHistoryRecord ingests one history record; the upgrade lookup is
// scoped to the referenced episode
func (c *Sonarr) processHistoryRecord(rec *sonarr.HistoryRecord) (bool, error) {
	if rec.Series == nil {
		c.logger.WithFields(logrus.Fields{
			"connection": c.conn.Name,
			"record":     rec.ID,
		}).Warn("History record missing embedded series, skipping")
		return false, nil
	}

	item, err := c.upsertSeries(rec.Series)
	if err != nil {
		return false, err
	}

	var episodeID *uint64
	if rec.Episode != nil {
		ep, err := c.upsertEpisode(item.ID, rec.Episode)
		if err != nil {
			return false, err
		}
		episodeID = &ep.ID
	}

	eventType := mapEventType(sonarrEventTypes, rec.EventType)
	date := rec.Date.UTC()

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

	raw, _ := json.Marshal(rec)

	ev := &models.DownloadEvent{
		Source:         c.conn.ServiceType,
		MediaItemID:    item.ID,
		EpisodeID:      episodeID,
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

	if eventType == models.EventDownloaded {
		prior, err := c.db.GetLastDownloadedEvent(item.ID, episodeID)
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

func (c *Sonarr) upsertSeries(s *sonarr.Series) (*models.MediaItem, error) {
	item := &models.MediaItem{
		Source:          c.conn.ServiceType,
		ExternalID:      strconv.FormatInt(s.ID, 10),
		MediaType:       models.MediaTypeTV,
		Title:           s.Title,
		Year:            s.Year,
		TmdbID:          formatID(s.TmdbID),
		TvdbID:          formatID(s.TvdbID),
		ImdbID:          s.ImdbID,
		RuntimeMinutes:  s.Runtime,
		SizeOnDiskBytes: s.Statistics.SizeOnDisk,
		PosterURL:       s.PosterURL(),
	}
	item.SetGenres(s.Genres)
	item.SetMetadata(map[string]string{
		"network":  s.Network,
		"overview": s.Overview,
	})

	return c.db.UpsertMediaItem(item)
}

func (c *Sonarr) upsertEpisode(mediaItemID uint64, ep *sonarr.Episode) (*models.Episode, error) {
	episode := &models.Episode{
		MediaItemID:   mediaItemID,
		SeasonNumber:  ep.SeasonNumber,
		EpisodeNumber: ep.EpisodeNumber,
		ExternalID:    strconv.FormatInt(ep.ID, 10),
		Title:         ep.Title,
	}
	if ep.AirDateUtc != "" {
		if air, err := time.Parse(time.RFC3339, ep.AirDateUtc); err == nil {
			episode.AirDate = &air
		}
	}
	return c.db.UpsertEpisode(episode)
}

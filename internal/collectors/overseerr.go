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
	"github.com/trackarr/trackarr/internal/services/overseerr"
)

// Overseerr collects media requests: the request list doubles as a library
// listing (metadata) and, ordered by modification time, as a history feed.
// No episode-level granularity.
type Overseerr struct {
	conn      *models.Connection
	client    *overseerr.Client
	db        *models.Database
	pageDelay time.Duration
	logger    *logrus.Logger
}

func newOverseerr(conn *models.Connection, db *models.Database, timeout, pageDelay time.Duration, logger *logrus.Logger) *Overseerr {
	return &Overseerr{
		conn:      conn,
		client:    overseerr.NewClient(conn.BaseURL, conn.APIKey, timeout, logger),
		db:        db,
		pageDelay: pageDelay,
		logger:    logger,
	}
}

// TestConnection probes the service and reports its version
func (c *Overseerr) TestConnection(ctx context.Context) TestResult {
	status, err := c.client.GetStatus(ctx)
	if err != nil {
		return TestResult{Error: err.Error()}
	}
	return TestResult{Success: true, Version: status.Version}
}

// SyncMetadata upserts a MediaItem per requested media
func (c *Overseerr) SyncMetadata(ctx context.Context) Result {
	res := Result{}

	skip := 0
	for {
		page, err := c.client.GetRequests(ctx, historyPageSize, skip)
		if err != nil {
			if skip == 0 {
				return failedResult(err)
			}
			res.AddErrorf("requests at offset %d: %v", skip, err)
			break
		}
		if len(page.Results) == 0 {
			break
		}

		for i := range page.Results {
			req := &page.Results[i]
			if _, err := c.upsertRequestMedia(req); err != nil {
				if errors.Is(err, errNoEmbeddedMedia) {
					continue
				}
				res.AddErrorf("request %d: %v", req.ID, err)
				continue
			}
			res.Processed++
		}

		if len(page.Results) < historyPageSize {
			break
		}
		skip += historyPageSize
		if err := pagePause(ctx, c.pageDelay); err != nil {
			res.AddErrorf("metadata sync interrupted: %v", err)
			break
		}
	}

	c.logger.WithFields(logrus.Fields{
		"connection": c.conn.Name,
		"synced":     res.Processed,
	}).Info("Overseerr metadata sync completed")
	return res
}

// SyncHistory walks requests most-recently-modified-first, mapping request
// status transitions onto the normalized event vocabulary
func (c *Overseerr) SyncHistory(ctx context.Context, since time.Time) Result {
	res := Result{}

	skip := 0
	for {
		page, err := c.client.GetRequests(ctx, historyPageSize, skip)
		if err != nil {
			res.AddErrorf("requests at offset %d: %v", skip, err)
			break
		}
		if len(page.Results) == 0 {
			break
		}

		reachedCutoff := false
		for i := range page.Results {
			req := &page.Results[i]
			if req.UpdatedAt.Before(since) {
				reachedCutoff = true
				break
			}
			inserted, err := c.processRequest(req)
			if err != nil {
				res.AddErrorf("request %d: %v", req.ID, err)
				continue
			}
			if inserted {
				res.Processed++
			}
		}

		if reachedCutoff || len(page.Results) < historyPageSize {
			break
		}
		skip += historyPageSize
		if err := pagePause(ctx, c.pageDelay); err != nil {
			res.AddErrorf("history sync interrupted: %v", err)
			break
		}
	}

	c.logger.WithFields(logrus.Fields{
		"connection": c.conn.Name,
		"processed":  res.Processed,
		"errors":     len(res.Errors),
	}).Info("Overseerr history sync completed")
	return res
}

// requestEventType maps request statuses onto the normalized vocabulary;
// unmapped statuses pass through as their upstream name
func requestEventType(status int) models.EventType {
	switch status {
	case overseerr.StatusPendingApproval, overseerr.StatusApproved:
		return models.EventGrabbed
	case overseerr.StatusAvailable, overseerr.StatusPartiallyAvail:
		return models.EventDownloaded
	case overseerr.StatusDeclined:
		return models.EventType("declined")
	default:
		return models.EventType("unknown")
	}
}

var errNoEmbeddedMedia = errors.New("request has no usable embedded media")

func (c *Overseerr) processRequest(req *overseerr.Request) (bool, error) {
	item, err := c.upsertRequestMedia(req)
	if err != nil {
		if errors.Is(err, errNoEmbeddedMedia) {
			c.logger.WithFields(logrus.Fields{
				"connection": c.conn.Name,
				"request":    req.ID,
			}).Warn("Request missing embedded media, skipping")
			return false, nil
		}
		return false, err
	}

	eventType := requestEventType(req.Status)
	date := req.UpdatedAt.UTC()

	exists, err := c.db.HasDownloadEvent(c.conn.ServiceType, item.ID, date, eventType)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}

	raw, _ := json.Marshal(req)
	ev := &models.DownloadEvent{
		Source:      c.conn.ServiceType,
		MediaItemID: item.ID,
		EventType:   eventType,
		Date:        date,
		RawJSON:     string(raw),
	}

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

func (c *Overseerr) upsertRequestMedia(req *overseerr.Request) (*models.MediaItem, error) {
	media := &req.Media
	if media.ID == 0 || (media.Title == "" && media.TmdbID == 0 && media.TvdbID == 0) {
		return nil, errNoEmbeddedMedia
	}

	mediaType := models.MediaTypeMovie
	if media.MediaType == "tv" {
		mediaType = models.MediaTypeTV
	}

	item := &models.MediaItem{
		Source:     c.conn.ServiceType,
		ExternalID: strconv.FormatInt(media.ID, 10),
		MediaType:  mediaType,
		Title:      media.Title,
		TmdbID:     formatID(media.TmdbID),
		TvdbID:     formatID(media.TvdbID),
		ImdbID:     media.ImdbID,
		PosterURL:  media.PosterURL,
	}
	item.SetMetadata(map[string]string{
		"requestedBy": req.RequestedBy.DisplayName,
	})

	return c.db.UpsertMediaItem(item)
}

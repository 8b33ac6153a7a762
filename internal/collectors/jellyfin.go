package collectors

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/trackarr/trackarr/internal/metrics"
	"github.com/trackarr/trackarr/internal/models"
	"github.com/trackarr/trackarr/internal/services/jellyfin"
	"github.com/trackarr/trackarr/internal/utils"
)

const (
	// Plays shorter than this are treated as accidental/skip plays
	minPlaybackSeconds = 120

	// How far back the activity log walk reaches
	activityLookback = 48 * time.Hour

	ticksPerSecond = 10_000_000
)

// Jellyfin tracks playback. Active sessions are upserted in place; finished
// plays are reconstructed by pairing start/stop activity-log entries per
// (user, item). Plays are only persisted when they match an already-known
// MediaItem by exact title or provider id; no fuzzy matching, to avoid
// false positives between unrelated titles.
type Jellyfin struct {
	conn   *models.Connection
	client *jellyfin.Client
	db     *models.Database
	logger *logrus.Logger
}

func newJellyfin(conn *models.Connection, db *models.Database, timeout time.Duration, logger *logrus.Logger) *Jellyfin {
	return &Jellyfin{
		conn:   conn,
		client: jellyfin.NewClient(conn.BaseURL, conn.APIKey, timeout, logger),
		db:     db,
		logger: logger,
	}
}

// TestConnection probes the server and reports its version
func (c *Jellyfin) TestConnection(ctx context.Context) TestResult {
	info, err := c.client.GetSystemInfo(ctx)
	if err != nil {
		return TestResult{Error: err.Error()}
	}
	return TestResult{Success: true, Version: info.Version}
}

// SyncPlayback ingests active sessions and completed plays
func (c *Jellyfin) SyncPlayback(ctx context.Context) Result {
	res := Result{}

	index, err := c.buildLibraryIndex()
	if err != nil {
		return failedResult(fmt.Errorf("building library index: %w", err))
	}

	c.syncSessions(ctx, index, &res)
	c.syncActivityLog(ctx, index, &res)

	c.logger.WithFields(logrus.Fields{
		"connection": c.conn.Name,
		"processed":  res.Processed,
		"errors":     len(res.Errors),
	}).Info("Jellyfin playback sync completed")
	return res
}

// syncSessions upserts in-progress plays, mutating duration and play method
// in place until the session ends
func (c *Jellyfin) syncSessions(ctx context.Context, index *libraryIndex, res *Result) {
	sessions, err := c.client.GetSessions(ctx)
	if err != nil {
		res.AddErrorf("fetching sessions: %v", err)
		return
	}

	for i := range sessions {
		session := &sessions[i]
		if session.NowPlayingItem == nil {
			continue
		}
		playing := session.NowPlayingItem

		title := playing.Name
		if playing.Type == "Episode" && playing.SeriesName != "" {
			title = playing.SeriesName
		}
		item := index.lookup(title, playing.ProviderIDs)
		if item == nil {
			continue // not a library title we know; dropped, not guessed
		}

		var episodeID *uint64
		if playing.Type == "Episode" {
			if ep, err := c.db.GetEpisodeByNumber(item.ID, playing.SeasonNumber, playing.IndexNumber); err == nil {
				episodeID = &ep.ID
			}
		}

		started := session.LastActivityDate.Add(-time.Duration(session.PlayState.PositionTicks/ticksPerSecond) * time.Second)
		_, err := c.db.UpsertPlaybackEvent(&models.PlaybackEvent{
			Source:          c.conn.ServiceType,
			ExternalID:      "session-" + session.ID,
			MediaItemID:     item.ID,
			EpisodeID:       episodeID,
			UserID:          session.UserID,
			UserName:        session.UserName,
			StartedAt:       started,
			DurationSeconds: int(session.PlayState.PositionTicks / ticksPerSecond),
			Completed:       false,
			PlayMethod:      session.PlayState.PlayMethod,
		})
		if err != nil {
			res.AddErrorf("session %s: %v", session.ID, err)
			continue
		}
		res.Processed++
	}
}

// syncActivityLog pairs playback start/stop log entries into completed plays
func (c *Jellyfin) syncActivityLog(ctx context.Context, index *libraryIndex, res *Result) {
	cutoff := time.Now().Add(-activityLookback)

	var entries []jellyfin.ActivityEntry
	startIndex := 0
	for {
		page, err := c.client.GetActivityLog(ctx, startIndex, historyPageSize)
		if err != nil {
			res.AddErrorf("activity log at index %d: %v", startIndex, err)
			break
		}
		if len(page.Items) == 0 {
			break
		}

		reachedCutoff := false
		for _, entry := range page.Items {
			if entry.Date.Before(cutoff) {
				reachedCutoff = true
				break
			}
			if entry.Type == jellyfin.ActivityPlaybackStart || entry.Type == jellyfin.ActivityPlaybackStop {
				entries = append(entries, entry)
			}
		}

		if reachedCutoff || len(page.Items) < historyPageSize {
			break
		}
		startIndex += historyPageSize
	}

	// Pair oldest-first so each stop matches the nearest preceding start
	sort.Slice(entries, func(i, j int) bool { return entries[i].Date.Before(entries[j].Date) })

	starts := make(map[string]jellyfin.ActivityEntry)
	for _, entry := range entries {
		itemName := extractItemName(entry.Name)
		if itemName == "" {
			continue
		}
		key := entry.UserID + "|" + strings.ToLower(itemName)

		if entry.Type == jellyfin.ActivityPlaybackStart {
			starts[key] = entry
			continue
		}

		start, ok := starts[key]
		if !ok {
			continue // stop without a matching start in the window
		}
		delete(starts, key)

		duration := int(entry.Date.Sub(start.Date).Seconds())
		if duration < minPlaybackSeconds {
			continue // accidental/skip play
		}

		item := index.lookup(itemName, nil)
		if item == nil {
			continue // unmatched title; dropped rather than fuzzy-matched
		}

		ended := entry.Date
		_, err := c.db.UpsertPlaybackEvent(&models.PlaybackEvent{
			Source:          c.conn.ServiceType,
			ExternalID:      fmt.Sprintf("activity-%d", entry.ID),
			MediaItemID:     item.ID,
			UserID:          entry.UserID,
			UserName:        extractUserName(entry.Name),
			StartedAt:       start.Date,
			EndedAt:         &ended,
			DurationSeconds: duration,
			Completed:       true,
		})
		if err != nil {
			res.AddErrorf("activity %d: %v", entry.ID, err)
			continue
		}
		res.Processed++
		metrics.EventsIngested.WithLabelValues(string(c.conn.ServiceType), "playback").Inc()
	}
}

// libraryIndex supports exact-match lookups by normalized title or provider
// id across all known media items
type libraryIndex struct {
	byTitle    map[string]*models.MediaItem
	byProvider map[string]*models.MediaItem
}

func (c *Jellyfin) buildLibraryIndex() (*libraryIndex, error) {
	items, err := c.db.GetAllMediaItems()
	if err != nil {
		return nil, err
	}

	index := &libraryIndex{
		byTitle:    make(map[string]*models.MediaItem, len(items)),
		byProvider: make(map[string]*models.MediaItem),
	}
	for _, item := range items {
		index.byTitle[utils.NormalizeTitle(item.Title)] = item
		if item.TmdbID != "" {
			index.byProvider["tmdb:"+item.TmdbID] = item
		}
		if item.ImdbID != "" {
			index.byProvider["imdb:"+strings.ToLower(item.ImdbID)] = item
		}
		if item.TvdbID != "" {
			index.byProvider["tvdb:"+item.TvdbID] = item
		}
	}
	return index, nil
}

// lookup resolves by provider id first, then exact case-insensitive title
// with any trailing year suffix stripped
func (idx *libraryIndex) lookup(title string, providerIDs map[string]string) *models.MediaItem {
	for key, id := range providerIDs {
		if id == "" {
			continue
		}
		if item, ok := idx.byProvider[strings.ToLower(key)+":"+strings.ToLower(id)]; ok {
			return item
		}
	}
	return idx.byTitle[utils.NormalizeTitle(title)]
}

// extractItemName pulls the media title out of an activity entry name like
// "Alice has finished playing The Matrix (1999) on Chrome"
func extractItemName(name string) string {
	idx := strings.Index(name, " playing ")
	if idx < 0 {
		return ""
	}
	rest := name[idx+len(" playing "):]
	if j := strings.LastIndex(rest, " on "); j > 0 {
		rest = rest[:j]
	}
	return strings.TrimSpace(rest)
}

// extractUserName pulls the user display name out of an activity entry name
func extractUserName(name string) string {
	if idx := strings.Index(name, " has "); idx > 0 {
		return name[:idx]
	}
	if idx := strings.Index(name, " is "); idx > 0 {
		return name[:idx]
	}
	return ""
}

package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/timshannon/bolthold"
	"go.etcd.io/bbolt"
)

// Database wraps the bolthold store
type Database struct {
	store *bolthold.Store
}

// NewDatabase creates a new database connection
func NewDatabase(path string) (*Database, error) {
	store, err := bolthold.Open(path, 0600, &bolthold.Options{
		Options: &bbolt.Options{
			Timeout: 1 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Database{store: store}, nil
}

// Close closes the database connection
func (db *Database) Close() error {
	return db.store.Close()
}

// Connection operations

// CreateConnection creates a new connection record
func (db *Database) CreateConnection(conn *Connection) error {
	conn.CreatedAt = time.Now()
	conn.UpdatedAt = time.Now()
	return db.store.Insert(bolthold.NextSequence(), conn)
}

// UpdateConnection updates an existing connection record
func (db *Database) UpdateConnection(conn *Connection) error {
	conn.UpdatedAt = time.Now()
	return db.store.Update(conn.ID, conn)
}

// GetConnection retrieves a connection by ID
func (db *Database) GetConnection(id uint64) (*Connection, error) {
	var conn Connection
	if err := db.store.Get(id, &conn); err != nil {
		return nil, err
	}
	return &conn, nil
}

// GetConnections retrieves all connections
func (db *Database) GetConnections() ([]*Connection, error) {
	var conns []*Connection
	err := db.store.Find(&conns, nil)
	return conns, err
}

// GetEnabledConnections retrieves all enabled connections in listing order
func (db *Database) GetEnabledConnections() ([]*Connection, error) {
	var conns []*Connection
	err := db.store.Find(&conns, bolthold.Where("Enabled").Eq(true))
	return conns, err
}

// DeleteConnection deletes a connection and its sync state
func (db *Database) DeleteConnection(id uint64) error {
	if err := db.store.Delete(id, &Connection{}); err != nil {
		return err
	}
	_ = db.store.DeleteMatching(&SyncState{}, bolthold.Where("ConnectionID").Eq(id))
	return nil
}

// Media operations

// GetMediaItem retrieves a media item by internal ID
func (db *Database) GetMediaItem(id uint64) (*MediaItem, error) {
	var item MediaItem
	if err := db.store.Get(id, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// GetMediaItemByNaturalKey retrieves a media item by (source, external id)
func (db *Database) GetMediaItemByNaturalKey(source ServiceType, externalID string) (*MediaItem, error) {
	var item MediaItem
	err := db.store.FindOne(&item, bolthold.Where("NaturalKey").Eq(MediaNaturalKey(source, externalID)))
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// GetAllMediaItems retrieves all media items
func (db *Database) GetAllMediaItems() ([]*MediaItem, error) {
	var items []*MediaItem
	err := db.store.Find(&items, nil)
	return items, err
}

// UpsertMediaItem inserts or fully overwrites a media item matched by its
// natural key. The returned item carries the stored internal ID.
func (db *Database) UpsertMediaItem(item *MediaItem) (*MediaItem, error) {
	item.NaturalKey = MediaNaturalKey(item.Source, item.ExternalID)

	existing, err := db.GetMediaItemByNaturalKey(item.Source, item.ExternalID)
	if err == nil {
		item.ID = existing.ID
		item.CreatedAt = existing.CreatedAt
		item.UpdatedAt = time.Now()
		if err := db.store.Update(existing.ID, item); err != nil {
			return nil, err
		}
		return item, nil
	}
	if !errors.Is(err, bolthold.ErrNotFound) {
		return nil, err
	}

	item.CreatedAt = time.Now()
	item.UpdatedAt = time.Now()
	if err := db.store.Insert(bolthold.NextSequence(), item); err != nil {
		return nil, err
	}
	return item, nil
}

// Episode operations

// GetEpisodeByNumber retrieves an episode by its natural key
func (db *Database) GetEpisodeByNumber(mediaItemID uint64, season, episode int) (*Episode, error) {
	var ep Episode
	err := db.store.FindOne(&ep, bolthold.Where("NaturalKey").Eq(EpisodeNaturalKey(mediaItemID, season, episode)))
	if err != nil {
		return nil, err
	}
	return &ep, nil
}

// UpsertEpisode inserts or overwrites an episode matched by
// (media item, season, episode number)
func (db *Database) UpsertEpisode(ep *Episode) (*Episode, error) {
	ep.NaturalKey = EpisodeNaturalKey(ep.MediaItemID, ep.SeasonNumber, ep.EpisodeNumber)

	existing, err := db.GetEpisodeByNumber(ep.MediaItemID, ep.SeasonNumber, ep.EpisodeNumber)
	if err == nil {
		ep.ID = existing.ID
		ep.CreatedAt = existing.CreatedAt
		ep.UpdatedAt = time.Now()
		if err := db.store.Update(existing.ID, ep); err != nil {
			return nil, err
		}
		return ep, nil
	}
	if !errors.Is(err, bolthold.ErrNotFound) {
		return nil, err
	}

	ep.CreatedAt = time.Now()
	ep.UpdatedAt = time.Now()
	if err := db.store.Insert(bolthold.NextSequence(), ep); err != nil {
		return nil, err
	}
	return ep, nil
}

// Download event operations

// InsertDownloadEvent inserts a download event, silently skipping duplicates.
// Returns true when a new row was written, false on a dedup-key collision.
// The unique index is the last line of defense against overlapping polls.
func (db *Database) InsertDownloadEvent(ev *DownloadEvent) (bool, error) {
	ev.DedupKey = DownloadDedupKey(ev.Source, ev.MediaItemID, ev.Date, ev.EventType)
	ev.CreatedAt = time.Now()

	err := db.store.Insert(bolthold.NextSequence(), ev)
	if err != nil {
		if errors.Is(err, bolthold.ErrUniqueExists) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// HasDownloadEvent reports whether an event with the given dedup key exists
func (db *Database) HasDownloadEvent(source ServiceType, mediaItemID uint64, date time.Time, eventType EventType) (bool, error) {
	var ev DownloadEvent
	err := db.store.FindOne(&ev, bolthold.Where("DedupKey").Eq(DownloadDedupKey(source, mediaItemID, date, eventType)))
	if err != nil {
		if errors.Is(err, bolthold.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetLastDownloadedEvent retrieves the most recent prior "downloaded" event
// for a media item, scoped to one episode when episodeID is non-nil. Used by
// upgrade detection; only sees events already ingested.
func (db *Database) GetLastDownloadedEvent(mediaItemID uint64, episodeID *uint64) (*DownloadEvent, error) {
	var evs []*DownloadEvent
	err := db.store.Find(&evs, bolthold.Where("MediaItemID").Eq(mediaItemID).And("EventType").Eq(EventDownloaded))
	if err != nil {
		return nil, err
	}

	var latest *DownloadEvent
	for _, ev := range evs {
		if episodeID != nil {
			if ev.EpisodeID == nil || *ev.EpisodeID != *episodeID {
				continue
			}
		}
		if latest == nil || ev.Date.After(latest.Date) {
			latest = ev
		}
	}
	if latest == nil {
		return nil, bolthold.ErrNotFound
	}
	return latest, nil
}

// CountDownloadEvents returns the total number of download events
func (db *Database) CountDownloadEvents() (int, error) {
	var evs []*DownloadEvent
	if err := db.store.Find(&evs, nil); err != nil {
		return 0, err
	}
	return len(evs), nil
}

// GetDownloadEventsByMediaItem retrieves all download events for a media item
func (db *Database) GetDownloadEventsByMediaItem(mediaItemID uint64) ([]*DownloadEvent, error) {
	var evs []*DownloadEvent
	err := db.store.Find(&evs, bolthold.Where("MediaItemID").Eq(mediaItemID))
	return evs, err
}

// Playback event operations

// UpsertPlaybackEvent inserts a playback event or, for a known
// (source, external id), updates the active session in place
func (db *Database) UpsertPlaybackEvent(ev *PlaybackEvent) (*PlaybackEvent, error) {
	ev.DedupKey = PlaybackDedupKey(ev.Source, ev.ExternalID)

	var existing PlaybackEvent
	err := db.store.FindOne(&existing, bolthold.Where("DedupKey").Eq(ev.DedupKey))
	if err == nil {
		// Completed plays are immutable
		if existing.Completed {
			return &existing, nil
		}
		ev.ID = existing.ID
		ev.CreatedAt = existing.CreatedAt
		ev.UpdatedAt = time.Now()
		if err := db.store.Update(existing.ID, ev); err != nil {
			return nil, err
		}
		return ev, nil
	}
	if !errors.Is(err, bolthold.ErrNotFound) {
		return nil, err
	}

	ev.CreatedAt = time.Now()
	ev.UpdatedAt = time.Now()
	if err := db.store.Insert(bolthold.NextSequence(), ev); err != nil {
		if errors.Is(err, bolthold.ErrUniqueExists) {
			return ev, nil
		}
		return nil, err
	}
	return ev, nil
}

// CountPlaybackEvents returns the total number of playback events
func (db *Database) CountPlaybackEvents() (int, error) {
	var evs []*PlaybackEvent
	if err := db.store.Find(&evs, nil); err != nil {
		return 0, err
	}
	return len(evs), nil
}

// Subtitle event operations

// InsertSubtitleEvent inserts a subtitle event, silently skipping duplicates
func (db *Database) InsertSubtitleEvent(ev *SubtitleEvent) (bool, error) {
	ev.DedupKey = SubtitleDedupKey(ev.MediaItemID, ev.Language, ev.Timestamp)
	ev.CreatedAt = time.Now()

	err := db.store.Insert(bolthold.NextSequence(), ev)
	if err != nil {
		if errors.Is(err, bolthold.ErrUniqueExists) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CountSubtitleEvents returns the total number of subtitle events
func (db *Database) CountSubtitleEvents() (int, error) {
	var evs []*SubtitleEvent
	if err := db.store.Find(&evs, nil); err != nil {
		return 0, err
	}
	return len(evs), nil
}

// Indexer stat operations

// GetIndexerStat retrieves one daily indexer row
func (db *Database) GetIndexerStat(indexer, date string) (*IndexerStat, error) {
	var stat IndexerStat
	err := db.store.FindOne(&stat, bolthold.Where("DedupKey").Eq(IndexerStatKey(indexer, date)))
	if err != nil {
		return nil, err
	}
	return &stat, nil
}

// ReplaceIndexerStat bulk-replaces the counters of one daily indexer row
// from a snapshot
func (db *Database) ReplaceIndexerStat(stat *IndexerStat) error {
	stat.DedupKey = IndexerStatKey(stat.Indexer, stat.Date)

	existing, err := db.GetIndexerStat(stat.Indexer, stat.Date)
	if err == nil {
		stat.ID = existing.ID
		stat.CreatedAt = existing.CreatedAt
		stat.UpdatedAt = time.Now()
		return db.store.Update(existing.ID, stat)
	}
	if !errors.Is(err, bolthold.ErrNotFound) {
		return err
	}

	stat.CreatedAt = time.Now()
	stat.UpdatedAt = time.Now()
	return db.store.Insert(bolthold.NextSequence(), stat)
}

// BumpIndexerGrab increments one daily indexer row for a single grab event
func (db *Database) BumpIndexerGrab(indexer, date string, failed bool, responseTimeMs int) error {
	stat, err := db.GetIndexerStat(indexer, date)
	if err != nil {
		if !errors.Is(err, bolthold.ErrNotFound) {
			return err
		}
		stat = &IndexerStat{
			Indexer:   indexer,
			Date:      date,
			DedupKey:  IndexerStatKey(indexer, date),
			CreatedAt: time.Now(),
		}
		stat.applyGrab(failed, responseTimeMs)
		stat.UpdatedAt = time.Now()
		return db.store.Insert(bolthold.NextSequence(), stat)
	}

	stat.applyGrab(failed, responseTimeMs)
	stat.UpdatedAt = time.Now()
	return db.store.Update(stat.ID, stat)
}

// applyGrab folds one grab into the daily counters, keeping the running
// average response time
func (s *IndexerStat) applyGrab(failed bool, responseTimeMs int) {
	if failed {
		s.FailedGrabs++
	} else {
		s.Grabs++
	}
	if responseTimeMs > 0 {
		total := s.Grabs + s.FailedGrabs
		s.AvgResponseTimeMs = ((s.AvgResponseTimeMs * (total - 1)) + responseTimeMs) / total
	}
}

// Sync state operations

// GetSyncState retrieves the sync state for a connection
func (db *Database) GetSyncState(connectionID uint64) (*SyncState, error) {
	var state SyncState
	err := db.store.FindOne(&state, bolthold.Where("ConnectionID").Eq(connectionID))
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// SaveSyncState inserts or updates the sync state for a connection
func (db *Database) SaveSyncState(state *SyncState) error {
	existing, err := db.GetSyncState(state.ConnectionID)
	if err == nil {
		state.ID = existing.ID
		state.UpdatedAt = time.Now()
		return db.store.Update(existing.ID, state)
	}
	if !errors.Is(err, bolthold.ErrNotFound) {
		return err
	}

	state.UpdatedAt = time.Now()
	return db.store.Insert(bolthold.NextSequence(), state)
}

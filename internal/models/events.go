package models

import (
	"fmt"
	"time"
)

// DownloadEvent is an append-style log entry for one grab/download/delete/
// rename lifecycle transition. Rows are immutable once written; the
// (Source, MediaItemID, Date, EventType) tuple is the idempotency key.
type DownloadEvent struct {
	ID uint64 `boltholdKey:"ID"`

	// "<source>|<media item id>|<unix ts>|<event type>", unique per row.
	// The store rejects duplicates, which is what makes repeated polls and
	// backfills idempotent.
	DedupKey string `boltholdUnique:"DedupKey"`

	Source      ServiceType
	MediaItemID uint64  `boltholdIndex:"MediaItemID"`
	EpisodeID   *uint64

	EventType EventType
	Date      time.Time

	SizeBytes    int64
	Resolution   string
	QualitySource string
	Codec        string
	QualityScore int

	ReleaseGroup   string
	ReleaseTitle   string
	Indexer        string
	DownloadClient string

	// Upgrade heuristic: set when a prior "downloaded" event for the same
	// item (or episode) was already ingested. Forward-only; never rewritten
	// by later backfills.
	IsUpgrade         bool
	PreviousSizeBytes int64

	// Raw upstream payload, serialized for diagnostics
	RawJSON string

	CreatedAt time.Time
}

// DownloadDedupKey builds the idempotency key for a download event
func DownloadDedupKey(source ServiceType, mediaItemID uint64, date time.Time, eventType EventType) string {
	return fmt.Sprintf("%s|%d|%d|%s", source, mediaItemID, date.Unix(), eventType)
}

// PlaybackEvent is one playback session or completed play. Active sessions
// are mutated in place (duration/method) until they end; completed plays are
// immutable. (Source, ExternalID) is the dedup key.
type PlaybackEvent struct {
	ID uint64 `boltholdKey:"ID"`

	// "<source>|<external id>", unique per row
	DedupKey string `boltholdUnique:"DedupKey"`

	Source      ServiceType
	ExternalID  string
	MediaItemID uint64 `boltholdIndex:"MediaItemID"`
	EpisodeID   *uint64

	UserID   string
	UserName string

	StartedAt       time.Time
	EndedAt         *time.Time
	DurationSeconds int
	Completed       bool
	PlayMethod      string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PlaybackDedupKey builds the dedup key for a playback event
func PlaybackDedupKey(source ServiceType, externalID string) string {
	return fmt.Sprintf("%s|%s", source, externalID)
}

// SubtitleEvent records one subtitle download/upgrade.
// (MediaItemID, Language, Timestamp) is the dedup key.
type SubtitleEvent struct {
	ID uint64 `boltholdKey:"ID"`

	// "<media item id>|<language>|<unix ts>", unique per row
	DedupKey string `boltholdUnique:"DedupKey"`

	MediaItemID uint64 `boltholdIndex:"MediaItemID"`
	EpisodeID   *uint64

	Language  string
	Provider  string
	Timestamp time.Time
	Score     float64

	CreatedAt time.Time
}

// SubtitleDedupKey builds the dedup key for a subtitle event
func SubtitleDedupKey(mediaItemID uint64, language string, ts time.Time) string {
	return fmt.Sprintf("%d|%s|%d", mediaItemID, language, ts.Unix())
}

// IndexerStat is one daily aggregate row per indexer. Upserted: either
// bulk-replaced from a stats snapshot, or incremented per grab event from a
// history feed. Both paths converge on this shape.
type IndexerStat struct {
	ID uint64 `boltholdKey:"ID"`

	// "<indexer>|<yyyy-mm-dd>", unique per row
	DedupKey string `boltholdUnique:"DedupKey"`

	Indexer string `boltholdIndex:"Indexer"`
	Date    string // yyyy-mm-dd

	Searches          int
	Grabs             int
	FailedGrabs       int
	AvgResponseTimeMs int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IndexerStatKey builds the unique key for a daily indexer row
func IndexerStatKey(indexer, date string) string {
	return fmt.Sprintf("%s|%s", indexer, date)
}

package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// MediaItem represents one movie or one series known to a source service.
// The (Source, ExternalID) pair is the natural key; metadata syncs overwrite
// every field in place from the latest fetch.
type MediaItem struct {
	ID uint64 `boltholdKey:"ID"`

	// Natural identity: "<source>|<external id>", unique per row
	NaturalKey string `boltholdUnique:"NaturalKey"`
	Source     ServiceType
	ExternalID string

	MediaType MediaType
	Title     string
	Year      int

	// Cross-reference ids
	TmdbID string
	ImdbID string
	TvdbID string

	RuntimeMinutes int
	SizeOnDiskBytes int64
	Quality        string
	PosterURL      string

	// Serialized columns, schema-on-read; absent or malformed blobs read as
	// empty values
	GenresJSON   string
	MetadataJSON string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MediaNaturalKey builds the unique key for a media item
func MediaNaturalKey(source ServiceType, externalID string) string {
	return fmt.Sprintf("%s|%s", source, externalID)
}

// Genres deserializes the genre list; a missing or malformed blob yields nil
func (m *MediaItem) Genres() []string {
	if m.GenresJSON == "" {
		return nil
	}
	var genres []string
	if err := json.Unmarshal([]byte(m.GenresJSON), &genres); err != nil {
		return nil
	}
	return genres
}

// SetGenres serializes the genre list
func (m *MediaItem) SetGenres(genres []string) {
	if len(genres) == 0 {
		m.GenresJSON = ""
		return
	}
	data, err := json.Marshal(genres)
	if err != nil {
		return
	}
	m.GenresJSON = string(data)
}

// Metadata deserializes the opaque metadata map; malformed blobs yield an
// empty map, never an error
func (m *MediaItem) Metadata() map[string]string {
	meta := make(map[string]string)
	if m.MetadataJSON == "" {
		return meta
	}
	if err := json.Unmarshal([]byte(m.MetadataJSON), &meta); err != nil {
		return make(map[string]string)
	}
	return meta
}

// SetMetadata serializes the opaque metadata map
func (m *MediaItem) SetMetadata(meta map[string]string) {
	if len(meta) == 0 {
		m.MetadataJSON = ""
		return
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return
	}
	m.MetadataJSON = string(data)
}

// Episode belongs to exactly one MediaItem. (MediaItemID, Season, Episode)
// is the natural key.
type Episode struct {
	ID uint64 `boltholdKey:"ID"`

	// "<media item id>|<season>|<episode>", unique per row
	NaturalKey  string `boltholdUnique:"NaturalKey"`
	MediaItemID uint64 `boltholdIndex:"MediaItemID"`

	SeasonNumber  int
	EpisodeNumber int

	ExternalID string
	Title      string
	SizeBytes  int64
	Quality    string
	AirDate    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// EpisodeNaturalKey builds the unique key for an episode
func EpisodeNaturalKey(mediaItemID uint64, season, episode int) string {
	return fmt.Sprintf("%d|%d|%d", mediaItemID, season, episode)
}

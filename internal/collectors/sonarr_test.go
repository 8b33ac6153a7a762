package collectors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackarr/trackarr/internal/models"
	"github.com/trackarr/trackarr/internal/services/sonarr"
)

func sonarrSeries(id int64, title string) *sonarr.Series {
	s := &sonarr.Series{
		ID:     id,
		Title:  title,
		Year:   2022,
		TvdbID: id * 10,
	}
	s.Statistics.SizeOnDisk = 1_000_000
	return s
}

func TestSonarrSyncHistoryEpisodeScopedUpgrade(t *testing.T) {
	series := sonarrSeries(3, "Some Show")
	ep1 := &sonarr.Episode{ID: 31, SeriesID: 3, SeasonNumber: 1, EpisodeNumber: 1, Title: "Pilot"}
	ep2 := &sonarr.Episode{ID: 32, SeriesID: 3, SeasonNumber: 1, EpisodeNumber: 2, Title: "Second"}

	oldDate := time.Now().Add(-48 * time.Hour).UTC().Truncate(time.Second)
	newDate := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)

	records := []sonarr.HistoryRecord{{
		ID:          1,
		EventType:   "downloadFolderImported",
		Date:        oldDate,
		SourceTitle: "Some.Show.S01E01.720p.HDTV.x264-GRP",
		Data:        map[string]string{"size": "700000000"},
		Series:      series,
		Episode:     ep1,
	}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v3/history" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(sonarr.HistoryPage{Records: records})
	}))
	defer srv.Close()

	db := newTestDB(t)
	col := newSonarr(testConn(models.ServiceSonarr, srv.URL), db, 5*time.Second, time.Millisecond, testLogger())

	since := time.Now().Add(-30 * 24 * time.Hour)
	res := col.SyncHistory(context.Background(), since)
	require.Empty(t, res.Errors)
	require.Equal(t, 1, res.Processed)

	// Next poll: replacement import for E01 and a first import for E02.
	// Only E01 is an upgrade; the E02 import has no prior download.
	records = []sonarr.HistoryRecord{
		{
			ID:          2,
			EventType:   "downloadFolderImported",
			Date:        newDate,
			SourceTitle: "Some.Show.S01E01.1080p.WEB-DL.x265-GRP",
			Data:        map[string]string{"size": "1400000000"},
			Series:      series,
			Episode:     ep1,
		},
		{
			ID:          3,
			EventType:   "downloadFolderImported",
			Date:        newDate.Add(-time.Minute),
			SourceTitle: "Some.Show.S01E02.1080p.WEB-DL.x265-GRP",
			Data:        map[string]string{"size": "1400000000"},
			Series:      series,
			Episode:     ep2,
		},
	}
	res = col.SyncHistory(context.Background(), since)
	require.Empty(t, res.Errors)
	require.Equal(t, 2, res.Processed)

	item, err := db.GetMediaItemByNaturalKey(models.ServiceSonarr, "3")
	require.NoError(t, err)

	events, err := db.GetDownloadEventsByMediaItem(item.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)

	storedE1, err := db.GetEpisodeByNumber(item.ID, 1, 1)
	require.NoError(t, err)
	storedE2, err := db.GetEpisodeByNumber(item.ID, 1, 2)
	require.NoError(t, err)

	for _, ev := range events {
		if ev.Date.Equal(oldDate) {
			assert.False(t, ev.IsUpgrade)
			continue
		}
		require.NotNil(t, ev.EpisodeID)
		switch *ev.EpisodeID {
		case storedE1.ID:
			assert.True(t, ev.IsUpgrade)
			assert.Equal(t, int64(700_000_000), ev.PreviousSizeBytes)
		case storedE2.ID:
			assert.False(t, ev.IsUpgrade)
		default:
			t.Fatalf("event bound to unexpected episode %d", *ev.EpisodeID)
		}
	}
}

func TestSonarrSyncMetadataFetchesEpisodes(t *testing.T) {
	series := sonarrSeries(5, "Another Show")
	series.Genres = []string{"Drama"}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/series":
			json.NewEncoder(w).Encode([]sonarr.Series{*series})
		case "/api/v3/episode":
			assert.Equal(t, "5", r.URL.Query().Get("seriesId"))
			json.NewEncoder(w).Encode([]sonarr.Episode{
				{ID: 51, SeriesID: 5, SeasonNumber: 1, EpisodeNumber: 1, Title: "One", AirDateUtc: "2022-09-01T00:00:00Z"},
				{ID: 52, SeriesID: 5, SeasonNumber: 1, EpisodeNumber: 2, Title: "Two"},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	db := newTestDB(t)
	col := newSonarr(testConn(models.ServiceSonarr, srv.URL), db, 5*time.Second, time.Millisecond, testLogger())

	res := col.SyncMetadata(context.Background())
	assert.Empty(t, res.Errors)
	assert.Equal(t, 1, res.Processed)

	item, err := db.GetMediaItemByNaturalKey(models.ServiceSonarr, "5")
	require.NoError(t, err)
	assert.Equal(t, models.MediaTypeTV, item.MediaType)
	assert.Equal(t, "50", item.TvdbID)
	assert.Equal(t, []string{"Drama"}, item.Genres())

	ep, err := db.GetEpisodeByNumber(item.ID, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "One", ep.Title)
	require.NotNil(t, ep.AirDate)
	assert.Equal(t, 2022, ep.AirDate.Year())
}

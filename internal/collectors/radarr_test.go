package collectors

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackarr/trackarr/internal/models"
	"github.com/trackarr/trackarr/internal/services/radarr"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func newTestDB(t *testing.T) *models.Database {
	t.Helper()
	db, err := models.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testConn(serviceType models.ServiceType, baseURL string) *models.Connection {
	return &models.Connection{
		ID:          1,
		Name:        "test",
		ServiceType: serviceType,
		BaseURL:     baseURL,
		APIKey:      "key",
		Enabled:     true,
	}
}

func radarrMovie(id int64, title string, size int64) *radarr.Movie {
	m := &radarr.Movie{
		ID:         id,
		Title:      title,
		Year:       2023,
		TmdbID:     id * 100,
		SizeOnDisk: size,
	}
	m.MovieFile = &radarr.MovieFile{Size: size}
	m.MovieFile.Quality.Quality.Name = "Bluray-1080p"
	return m
}

func radarrHistoryServer(t *testing.T, pages *[][]radarr.HistoryRecord, historyCalls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/system/status":
			json.NewEncoder(w).Encode(radarr.SystemStatus{Version: "5.2.6"})
		case "/api/v3/history":
			page := int(atomic.AddInt32(historyCalls, 1))
			var records []radarr.HistoryRecord
			if page <= len(*pages) {
				records = (*pages)[page-1]
			}
			json.NewEncoder(w).Encode(radarr.HistoryPage{
				Page:    page,
				Records: records,
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestRadarrSyncHistoryIdempotent(t *testing.T) {
	movie := radarrMovie(42, "The Matrix", 5_000_000_000)
	date := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)

	pages := [][]radarr.HistoryRecord{{
		{
			ID:          1,
			MovieID:     42,
			EventType:   "downloadFolderImported",
			Date:        date,
			SourceTitle: "The.Matrix.1999.1080p.BluRay.x264-GRP",
			Data:        map[string]string{"size": "5000000000", "indexer": "nzbgeek"},
			Movie:       movie,
		},
		{
			ID:          2,
			MovieID:     42,
			EventType:   "grabbed",
			Date:        date.Add(-time.Minute),
			SourceTitle: "The.Matrix.1999.1080p.BluRay.x264-GRP",
			Data:        map[string]string{"releaseGroup": "GRP"},
			Movie:       movie,
		},
	}}

	var calls int32
	srv := radarrHistoryServer(t, &pages, &calls)
	defer srv.Close()

	db := newTestDB(t)
	col := newRadarr(testConn(models.ServiceRadarr, srv.URL), db, 5*time.Second, time.Millisecond, testLogger())

	since := time.Now().Add(-24 * time.Hour)
	res := col.SyncHistory(context.Background(), since)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 2, res.Processed)

	count, err := db.CountDownloadEvents()
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Second poll over the same feed writes nothing
	atomic.StoreInt32(&calls, 0)
	res = col.SyncHistory(context.Background(), since)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 0, res.Processed)

	count, err = db.CountDownloadEvents()
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRadarrSyncHistoryUpgradeDetection(t *testing.T) {
	oldDate := time.Now().Add(-48 * time.Hour).UTC().Truncate(time.Second)
	newDate := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)

	first := radarrMovie(7, "Dune", 10_737_418_240)
	pages := [][]radarr.HistoryRecord{{
		{
			ID:          1,
			MovieID:     7,
			EventType:   "downloadFolderImported",
			Date:        oldDate,
			SourceTitle: "Dune.2021.1080p.WEB-DL.x264-GRP",
			Data:        map[string]string{"size": "10737418240"},
			Movie:       first,
		},
	}}

	var calls int32
	srv := radarrHistoryServer(t, &pages, &calls)
	defer srv.Close()

	db := newTestDB(t)
	col := newRadarr(testConn(models.ServiceRadarr, srv.URL), db, 5*time.Second, time.Millisecond, testLogger())

	since := time.Now().Add(-30 * 24 * time.Hour)
	res := col.SyncHistory(context.Background(), since)
	require.Empty(t, res.Errors)
	require.Equal(t, 1, res.Processed)

	// Next poll sees the replacement import
	upgraded := radarrMovie(7, "Dune", 32_000_000_000)
	pages[0] = []radarr.HistoryRecord{
		{
			ID:          2,
			MovieID:     7,
			EventType:   "downloadFolderImported",
			Date:        newDate,
			SourceTitle: "Dune.2021.2160p.BluRay.Remux.HEVC-GRP",
			Data:        map[string]string{"size": "32000000000"},
			Movie:       upgraded,
		},
	}
	atomic.StoreInt32(&calls, 0)
	res = col.SyncHistory(context.Background(), since)
	require.Empty(t, res.Errors)
	require.Equal(t, 1, res.Processed)

	item, err := db.GetMediaItemByNaturalKey(models.ServiceRadarr, "7")
	require.NoError(t, err)

	events, err := db.GetDownloadEventsByMediaItem(item.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)

	var upgrade *models.DownloadEvent
	for _, ev := range events {
		if ev.Date.Equal(newDate) {
			upgrade = ev
		}
	}
	require.NotNil(t, upgrade)
	assert.True(t, upgrade.IsUpgrade)
	assert.Equal(t, int64(10_737_418_240), upgrade.PreviousSizeBytes)
	assert.Equal(t, "2160p", upgrade.Resolution)
	assert.Equal(t, "remux", upgrade.QualitySource)
}

func TestRadarrSyncHistoryCutoffStopsPagination(t *testing.T) {
	movie := radarrMovie(1, "Old Movie", 100)

	// A full page whose last record predates the cutoff; page 2 must never
	// be requested
	records := make([]radarr.HistoryRecord, historyPageSize)
	for i := range records {
		records[i] = radarr.HistoryRecord{
			ID:        int64(i + 1),
			MovieID:   1,
			EventType: "grabbed",
			Date:      time.Now().Add(-time.Duration(i+1) * 30 * 24 * time.Hour),
			Movie:     movie,
		}
	}
	pages := [][]radarr.HistoryRecord{records, records}

	var calls int32
	srv := radarrHistoryServer(t, &pages, &calls)
	defer srv.Close()

	db := newTestDB(t)
	col := newRadarr(testConn(models.ServiceRadarr, srv.URL), db, 5*time.Second, time.Millisecond, testLogger())

	res := col.SyncHistory(context.Background(), time.Now().Add(-40*24*time.Hour))
	assert.Empty(t, res.Errors)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRadarrSyncHistorySkipsRecordsWithoutMovie(t *testing.T) {
	pages := [][]radarr.HistoryRecord{{
		{
			ID:        1,
			EventType: "grabbed",
			Date:      time.Now().Add(-time.Hour),
			Movie:     nil,
		},
	}}

	var calls int32
	srv := radarrHistoryServer(t, &pages, &calls)
	defer srv.Close()

	db := newTestDB(t)
	col := newRadarr(testConn(models.ServiceRadarr, srv.URL), db, 5*time.Second, time.Millisecond, testLogger())

	res := col.SyncHistory(context.Background(), time.Now().Add(-24*time.Hour))
	assert.Empty(t, res.Errors)
	assert.Equal(t, 0, res.Processed)
}

func TestRadarrSyncMetadata(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v3/movie":
			movies := []radarr.Movie{
				*radarrMovie(1, "First", 100),
				*radarrMovie(2, "Second", 200),
			}
			movies[0].Genres = []string{"Action", "Sci-Fi"}
			json.NewEncoder(w).Encode(movies)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	db := newTestDB(t)
	col := newRadarr(testConn(models.ServiceRadarr, srv.URL), db, 5*time.Second, time.Millisecond, testLogger())

	res := col.SyncMetadata(context.Background())
	assert.Empty(t, res.Errors)
	assert.Equal(t, 2, res.Processed)

	item, err := db.GetMediaItemByNaturalKey(models.ServiceRadarr, "1")
	require.NoError(t, err)
	assert.Equal(t, "First", item.Title)
	assert.Equal(t, models.MediaTypeMovie, item.MediaType)
	assert.Equal(t, "100", item.TmdbID)
	assert.Equal(t, []string{"Action", "Sci-Fi"}, item.Genres())
	assert.Equal(t, "Bluray-1080p", item.Quality)

	// Running again keeps a single row per movie
	res = col.SyncMetadata(context.Background())
	assert.Equal(t, 2, res.Processed)

	items, err := db.GetAllMediaItems()
	require.NoError(t, err)
	assert.Len(t, items, 2)
}

func TestRadarrTestConnection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v3/system/status" {
			json.NewEncoder(w).Encode(radarr.SystemStatus{Version: "5.2.6"})
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	col := newRadarr(testConn(models.ServiceRadarr, srv.URL), newTestDB(t), 5*time.Second, time.Millisecond, testLogger())

	result := col.TestConnection(context.Background())
	assert.True(t, result.Success)
	assert.Equal(t, "5.2.6", result.Version)
}

func TestRadarrTestConnectionUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	col := newRadarr(testConn(models.ServiceRadarr, srv.URL), newTestDB(t), 5*time.Second, time.Millisecond, testLogger())

	result := col.TestConnection(context.Background())
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

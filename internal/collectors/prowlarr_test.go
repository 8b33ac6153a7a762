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
	"github.com/trackarr/trackarr/internal/services/prowlarr"
)

func TestProwlarrSyncStatsSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/indexerstats" {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(prowlarr.IndexerStats{
			Indexers: []prowlarr.IndexerStatEntry{
				{IndexerID: 1, IndexerName: "nzbgeek", NumberOfQueries: 120, NumberOfGrabs: 8, NumberOfFailedGrabs: 1, AverageResponseTime: 340},
				{IndexerID: 2, IndexerName: "nyaa", NumberOfQueries: 45, NumberOfGrabs: 3},
				{IndexerID: 3}, // nameless entries are skipped
			},
		})
	}))
	defer srv.Close()

	db := newTestDB(t)
	col := newProwlarr(testConn(models.ServiceProwlarr, srv.URL), db, 5*time.Second, time.Millisecond, testLogger())

	res := col.SyncStats(context.Background(), time.Now().Add(-24*time.Hour))
	assert.Empty(t, res.Errors)
	assert.Equal(t, 2, res.Processed)

	today := time.Now().UTC().Format(statDateLayout)
	stat, err := db.GetIndexerStat("nzbgeek", today)
	require.NoError(t, err)
	assert.Equal(t, 120, stat.Searches)
	assert.Equal(t, 8, stat.Grabs)
	assert.Equal(t, 1, stat.FailedGrabs)
	assert.Equal(t, 340, stat.AvgResponseTimeMs)

	// Re-running replaces today's counters instead of accumulating
	res = col.SyncStats(context.Background(), time.Now().Add(-24*time.Hour))
	assert.Equal(t, 2, res.Processed)

	stat, err = db.GetIndexerStat("nzbgeek", today)
	require.NoError(t, err)
	assert.Equal(t, 8, stat.Grabs)
}

func TestProwlarrSyncStatsHistoryFallback(t *testing.T) {
	// Fixed midday base keeps every record on one calendar day
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/indexerstats":
			w.WriteHeader(http.StatusNotFound)
		case "/api/v1/indexer":
			json.NewEncoder(w).Encode([]prowlarr.Indexer{{ID: 1, Name: "nzbgeek"}})
		case "/api/v1/history":
			json.NewEncoder(w).Encode(prowlarr.HistoryPage{Records: []prowlarr.HistoryRecord{
				{ID: 10, IndexerID: 1, EventType: "releaseGrabbed", Successful: true, Date: now.Add(-time.Hour), Data: map[string]string{"elapsedTime": "200"}},
				{ID: 9, IndexerID: 1, EventType: "releaseGrabbed", Successful: false, Date: now.Add(-2 * time.Hour)},
				{ID: 8, IndexerID: 1, EventType: "indexerQuery", Successful: true, Date: now.Add(-3 * time.Hour)},
				{ID: 7, IndexerID: 99, EventType: "releaseGrabbed", Successful: true, Date: now.Add(-4 * time.Hour)},
			}})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	db := newTestDB(t)
	col := newProwlarr(testConn(models.ServiceProwlarr, srv.URL), db, 5*time.Second, time.Millisecond, testLogger())

	res := col.SyncStats(context.Background(), now.Add(-24*time.Hour))
	assert.Empty(t, res.Errors)
	// Two grabs for a known indexer count; queries and unknown indexers don't
	assert.Equal(t, 2, res.Processed)

	day := now.Format(statDateLayout)
	stat, err := db.GetIndexerStat("nzbgeek", day)
	require.NoError(t, err)
	assert.Equal(t, 1, stat.Grabs)
	assert.Equal(t, 1, stat.FailedGrabs)
}

func TestProwlarrHistoryFallbackCutoff(t *testing.T) {
	now := time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)

	var historyCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/indexerstats":
			w.WriteHeader(http.StatusNotFound)
		case "/api/v1/indexer":
			json.NewEncoder(w).Encode([]prowlarr.Indexer{{ID: 1, Name: "nzbgeek"}})
		case "/api/v1/history":
			historyCalls++
			records := make([]prowlarr.HistoryRecord, historyPageSize)
			for i := range records {
				records[i] = prowlarr.HistoryRecord{
					ID:        int64(i),
					IndexerID: 1,
					EventType: "releaseGrabbed",
					Date:      now.Add(-time.Duration(i+1) * 48 * time.Hour),
				}
			}
			json.NewEncoder(w).Encode(prowlarr.HistoryPage{Records: records})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	db := newTestDB(t)
	col := newProwlarr(testConn(models.ServiceProwlarr, srv.URL), db, 5*time.Second, time.Millisecond, testLogger())

	res := col.SyncStats(context.Background(), now.Add(-72*time.Hour))
	assert.Empty(t, res.Errors)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, historyCalls)
}

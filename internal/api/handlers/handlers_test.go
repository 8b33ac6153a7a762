package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackarr/trackarr/internal/config"
	"github.com/trackarr/trackarr/internal/models"
	"github.com/trackarr/trackarr/internal/registry"
	"github.com/trackarr/trackarr/internal/syncer"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func testDB(t *testing.T) *models.Database {
	t.Helper()
	db, err := models.NewDatabase(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		HistorySyncMinutes:    60,
		MetadataSyncMinutes:   360,
		PlaybackSyncMinutes:   15,
		HistoryImportMonths:   12,
		RequestTimeoutSeconds: 5,
		PageDelayMs:           1,
	}
}

func TestHealthHandler(t *testing.T) {
	h := NewHealthHandler(testLogger())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSyncHandlerStatus(t *testing.T) {
	orch := syncer.New(testDB(t), testConfig(), testLogger())
	h := NewSyncHandler(orch, testLogger())

	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/api/sync/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	var status syncer.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.False(t, status.Running)
}

func TestSyncHandlerTrigger(t *testing.T) {
	orch := syncer.New(testDB(t), testConfig(), testLogger())
	h := NewSyncHandler(orch, testLogger())

	rec := httptest.NewRecorder()
	h.Trigger(rec, httptest.NewRequest(http.MethodPost, "/api/sync/history", nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	h.Trigger(rec, httptest.NewRequest(http.MethodPost, "/api/sync/bogus", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.Trigger(rec, httptest.NewRequest(http.MethodGet, "/api/sync/history", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func newConnectionsHandler(t *testing.T) (*ConnectionsHandler, *models.Database) {
	t.Helper()
	db := testDB(t)
	reg := registry.New(db, testConfig(), testLogger())
	return NewConnectionsHandler(reg, testLogger()), db
}

func TestConnectionsCreateAndList(t *testing.T) {
	h, _ := newConnectionsHandler(t)

	payload, _ := json.Marshal(connectionRequest{
		Name:        "radarr",
		ServiceType: models.ServiceRadarr,
		BaseURL:     "http://radarr:7878/",
		APIKey:      "secret",
		Enabled:     true,
	})

	rec := httptest.NewRecorder()
	h.Collection(rec, httptest.NewRequest(http.MethodPost, "/api/connections", bytes.NewReader(payload)))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created connectionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotZero(t, created.ID)
	// Trailing slash trimmed, API key never echoed
	assert.Equal(t, "http://radarr:7878", created.BaseURL)
	assert.NotContains(t, rec.Body.String(), "secret")

	rec = httptest.NewRecorder()
	h.Collection(rec, httptest.NewRequest(http.MethodGet, "/api/connections", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var list []connectionView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "radarr", list[0].Name)
}

func TestConnectionsCreateRejectsInvalid(t *testing.T) {
	h, _ := newConnectionsHandler(t)

	payload, _ := json.Marshal(connectionRequest{Name: "x", ServiceType: "plex", BaseURL: "http://x"})
	rec := httptest.NewRecorder()
	h.Collection(rec, httptest.NewRequest(http.MethodPost, "/api/connections", bytes.NewReader(payload)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.Collection(rec, httptest.NewRequest(http.MethodPost, "/api/connections", bytes.NewReader([]byte("{not json"))))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConnectionsUpdateKeepsAPIKeyWhenBlank(t *testing.T) {
	h, db := newConnectionsHandler(t)

	conn := &models.Connection{Name: "radarr", ServiceType: models.ServiceRadarr, BaseURL: "http://a", APIKey: "original", Enabled: true}
	require.NoError(t, db.CreateConnection(conn))

	payload, _ := json.Marshal(connectionRequest{
		Name:        "radarr-4k",
		ServiceType: models.ServiceRadarr,
		BaseURL:     "http://b",
		Enabled:     true,
	})
	rec := httptest.NewRecorder()
	h.Item(rec, httptest.NewRequest(http.MethodPut, "/api/connections/1", bytes.NewReader(payload)))
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := db.GetConnection(conn.ID)
	require.NoError(t, err)
	assert.Equal(t, "radarr-4k", stored.Name)
	assert.Equal(t, "original", stored.APIKey)
}

func TestConnectionsDeleteAndNotFound(t *testing.T) {
	h, db := newConnectionsHandler(t)

	conn := &models.Connection{Name: "radarr", ServiceType: models.ServiceRadarr, BaseURL: "http://a", Enabled: true}
	require.NoError(t, db.CreateConnection(conn))

	rec := httptest.NewRecorder()
	h.Item(rec, httptest.NewRequest(http.MethodDelete, "/api/connections/1", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.Item(rec, httptest.NewRequest(http.MethodGet, "/api/connections/1", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.Item(rec, httptest.NewRequest(http.MethodGet, "/api/connections/abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

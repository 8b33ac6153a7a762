package arrhttp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func TestGetJSONDecodesResponse(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		w.Write([]byte(`{"version":"5.2.6"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, map[string]string{"X-Api-Key": "secret"}, 5*time.Second, testLogger())

	var out struct {
		Version string `json:"version"`
	}
	err := client.GetJSON(context.Background(), "/api/v3/system/status", nil, &out)
	require.NoError(t, err)
	assert.Equal(t, "5.2.6", out.Version)
	assert.Equal(t, "secret", gotKey)
}

func TestGetJSONRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil, 5*time.Second, testLogger())

	var out struct {
		OK bool `json:"ok"`
	}
	err := client.GetJSON(context.Background(), "/thing", nil, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestGetJSONUnauthorizedNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil, 5*time.Second, testLogger())

	err := client.GetJSON(context.Background(), "/thing", nil, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetJSONClientErrorNotRetried(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(srv.URL, nil, 5*time.Second, testLogger())

	err := client.GetJSON(context.Background(), "/missing", nil, nil)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetJSONQueryEncoding(t *testing.T) {
	var gotQuery url.Values
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL+"/", nil, 5*time.Second, testLogger())

	query := url.Values{}
	query.Set("page", "2")
	query.Set("sortKey", "date")

	var out []struct{}
	require.NoError(t, client.GetJSON(context.Background(), "/api/v3/history", query, &out))
	assert.Equal(t, "2", gotQuery.Get("page"))
	assert.Equal(t, "date", gotQuery.Get("sortKey"))
}

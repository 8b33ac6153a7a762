package bazarr

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/trackarr/trackarr/internal/services/arrhttp"
)

// Subtitle history action codes used by the upstream feed. Only downloaded
// and upgraded entries are ingested.
const (
	ActionDownloaded = 1
	ActionDeleted    = 2
	ActionUpgraded   = 3
)

// SystemStatus is the version probe response
type SystemStatus struct {
	Data struct {
		BazarrVersion string `json:"bazarr_version"`
	} `json:"data"`
}

// Language identifies the subtitle language of a history entry
type Language struct {
	Name  string `json:"name"`
	Code2 string `json:"code2"`
}

// HistoryItem is one entry of the subtitle history feed.
// Timestamp uses the service's two-digit-year format (MM/DD/YY HH:MM:SS) and
// Score is a percent-formatted string ("90.5%").
type HistoryItem struct {
	Action         int      `json:"action"`
	Timestamp      string   `json:"parsed_timestamp"`
	Language       Language `json:"language"`
	Provider       string   `json:"provider"`
	Score          string   `json:"score"`
	Title          string   `json:"title"`
	SeriesTitle    string   `json:"seriesTitle"`
	EpisodeNumber  string   `json:"episode_number"` // "1x04"
	RadarrID       int64    `json:"radarrId"`
	SonarrSeriesID int64    `json:"sonarrSeriesId"`
}

// HistoryPage is one page of the subtitle history feed
type HistoryPage struct {
	Data  []HistoryItem `json:"data"`
	Total int           `json:"total"`
}

// Client wraps the Bazarr API
type Client struct {
	http   *arrhttp.Client
	logger *logrus.Logger
}

// NewClient creates a new Bazarr client
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *logrus.Logger) *Client {
	return &Client{
		http:   arrhttp.NewClient(baseURL, map[string]string{"X-API-KEY": apiKey}, timeout, logger),
		logger: logger,
	}
}

// GetSystemStatus probes the service for reachability and version
func (c *Client) GetSystemStatus(ctx context.Context) (*SystemStatus, error) {
	var status SystemStatus
	if err := c.http.GetJSON(ctx, "/api/system/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetMovieHistory fetches one page of movie subtitle history, newest-first
func (c *Client) GetMovieHistory(ctx context.Context, start, length int) (*HistoryPage, error) {
	return c.getHistory(ctx, "/api/movies/history", start, length)
}

// GetSeriesHistory fetches one page of episode subtitle history, newest-first
func (c *Client) GetSeriesHistory(ctx context.Context, start, length int) (*HistoryPage, error) {
	return c.getHistory(ctx, "/api/episodes/history", start, length)
}

func (c *Client) getHistory(ctx context.Context, path string, start, length int) (*HistoryPage, error) {
	query := url.Values{}
	query.Set("start", strconv.Itoa(start))
	query.Set("length", strconv.Itoa(length))

	var page HistoryPage
	if err := c.http.GetJSON(ctx, path, query, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

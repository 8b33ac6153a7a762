package prowlarr

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/trackarr/trackarr/internal/services/arrhttp"
)

// SystemStatus is the version probe response
type SystemStatus struct {
	Version string `json:"version"`
	AppName string `json:"appName"`
}

// IndexerStatEntry is one indexer's aggregate counters from the stats
// snapshot endpoint
type IndexerStatEntry struct {
	IndexerID           int64  `json:"indexerId"`
	IndexerName         string `json:"indexerName"`
	NumberOfQueries     int    `json:"numberOfQueries"`
	NumberOfGrabs       int    `json:"numberOfGrabs"`
	NumberOfFailedGrabs int    `json:"numberOfFailedGrabs"`
	AverageResponseTime int    `json:"averageResponseTime"`
}

// IndexerStats is the stats snapshot response
type IndexerStats struct {
	Indexers []IndexerStatEntry `json:"indexers"`
}

// HistoryRecord is one entry of the grab/search history feed
type HistoryRecord struct {
	ID         int64             `json:"id"`
	IndexerID  int64             `json:"indexerId"`
	EventType  string            `json:"eventType"` // releaseGrabbed, indexerQuery, ...
	Successful bool              `json:"successful"`
	Date       time.Time         `json:"date"`
	Data       map[string]string `json:"data"`
}

// HistoryPage is one page of the history feed, newest-first
type HistoryPage struct {
	Page         int             `json:"page"`
	PageSize     int             `json:"pageSize"`
	TotalRecords int             `json:"totalRecords"`
	Records      []HistoryRecord `json:"records"`
}

// Indexer is one configured indexer definition (used to resolve indexer
// names for history records)
type Indexer struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Client wraps the Prowlarr v1 API
type Client struct {
	http   *arrhttp.Client
	logger *logrus.Logger
}

// NewClient creates a new Prowlarr client
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *logrus.Logger) *Client {
	return &Client{
		http:   arrhttp.NewClient(baseURL, map[string]string{"X-Api-Key": apiKey}, timeout, logger),
		logger: logger,
	}
}

// GetSystemStatus probes the service for reachability and version
func (c *Client) GetSystemStatus(ctx context.Context) (*SystemStatus, error) {
	var status SystemStatus
	if err := c.http.GetJSON(ctx, "/api/v1/system/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetIndexerStats fetches the aggregate stats snapshot for all indexers
func (c *Client) GetIndexerStats(ctx context.Context) (*IndexerStats, error) {
	var stats IndexerStats
	if err := c.http.GetJSON(ctx, "/api/v1/indexerstats", nil, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// GetIndexers fetches all configured indexer definitions
func (c *Client) GetIndexers(ctx context.Context) ([]Indexer, error) {
	var indexers []Indexer
	if err := c.http.GetJSON(ctx, "/api/v1/indexer", nil, &indexers); err != nil {
		return nil, err
	}
	return indexers, nil
}

// GetHistory fetches one page of grab/search history, newest-first
func (c *Client) GetHistory(ctx context.Context, page, pageSize int) (*HistoryPage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("pageSize", strconv.Itoa(pageSize))
	query.Set("sortKey", "date")
	query.Set("sortDirection", "descending")

	var result HistoryPage
	if err := c.http.GetJSON(ctx, "/api/v1/history", query, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

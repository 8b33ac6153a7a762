package sonarr

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

// Image is one poster/fanart entry on a series
type Image struct {
	CoverType string `json:"coverType"`
	RemoteURL string `json:"remoteUrl"`
}

// Series is one library entry
type Series struct {
	ID         int64    `json:"id"`
	Title      string   `json:"title"`
	Year       int      `json:"year"`
	TvdbID     int64    `json:"tvdbId"`
	TmdbID     int64    `json:"tmdbId"`
	ImdbID     string   `json:"imdbId"`
	Runtime    int      `json:"runtime"`
	Genres     []string `json:"genres"`
	Images     []Image  `json:"images"`
	Network    string   `json:"network"`
	Overview   string   `json:"overview"`
	Statistics struct {
		SizeOnDisk   int64 `json:"sizeOnDisk"`
		EpisodeCount int   `json:"episodeCount"`
	} `json:"statistics"`
}

// Episode is one episode entity, embedded in history records or listed per
// series
type Episode struct {
	ID            int64  `json:"id"`
	SeriesID      int64  `json:"seriesId"`
	SeasonNumber  int    `json:"seasonNumber"`
	EpisodeNumber int    `json:"episodeNumber"`
	Title         string `json:"title"`
	AirDateUtc    string `json:"airDateUtc"`
}

// HistoryRecord is one entry of the paginated history feed
type HistoryRecord struct {
	ID          int64     `json:"id"`
	SeriesID    int64     `json:"seriesId"`
	EpisodeID   int64     `json:"episodeId"`
	EventType   string    `json:"eventType"`
	Date        time.Time `json:"date"`
	SourceTitle string    `json:"sourceTitle"`
	Quality     struct {
		Quality struct {
			Name       string `json:"name"`
			Resolution int    `json:"resolution"`
			Source     string `json:"source"`
		} `json:"quality"`
	} `json:"quality"`
	Data    map[string]string `json:"data"`
	Series  *Series           `json:"series"`
	Episode *Episode          `json:"episode"`
}

// HistoryPage is one page of the history feed, newest-first
type HistoryPage struct {
	Page         int             `json:"page"`
	PageSize     int             `json:"pageSize"`
	TotalRecords int             `json:"totalRecords"`
	Records      []HistoryRecord `json:"records"`
}

// Client wraps the Sonarr v3 API
type Client struct {
	http   *arrhttp.Client
	logger *logrus.Logger
}

// NewClient creates a new Sonarr client
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *logrus.Logger) *Client {
	return &Client{
		http:   arrhttp.NewClient(baseURL, map[string]string{"X-Api-Key": apiKey}, timeout, logger),
		logger: logger,
	}
}

// GetSystemStatus probes the service for reachability and version
func (c *Client) GetSystemStatus(ctx context.Context) (*SystemStatus, error) {
	var status SystemStatus
	if err := c.http.GetJSON(ctx, "/api/v3/system/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetSeries fetches the full series library
func (c *Client) GetSeries(ctx context.Context) ([]Series, error) {
	var series []Series
	if err := c.http.GetJSON(ctx, "/api/v3/series", nil, &series); err != nil {
		return nil, err
	}
	return series, nil
}

// GetEpisodes fetches all episodes of one series
func (c *Client) GetEpisodes(ctx context.Context, seriesID int64) ([]Episode, error) {
	query := url.Values{}
	query.Set("seriesId", strconv.FormatInt(seriesID, 10))

	var episodes []Episode
	if err := c.http.GetJSON(ctx, "/api/v3/episode", query, &episodes); err != nil {
		return nil, err
	}
	return episodes, nil
}

// GetHistory fetches one page of history, newest-first, with series and
// episode entities embedded per record
func (c *Client) GetHistory(ctx context.Context, page, pageSize int) (*HistoryPage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("pageSize", strconv.Itoa(pageSize))
	query.Set("sortKey", "date")
	query.Set("sortDirection", "descending")
	query.Set("includeSeries", "true")
	query.Set("includeEpisode", "true")

	var result HistoryPage
	if err := c.http.GetJSON(ctx, "/api/v3/history", query, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PosterURL returns the remote poster URL of a series, if any
func (s *Series) PosterURL() string {
	for _, img := range s.Images {
		if img.CoverType == "poster" {
			return img.RemoteURL
		}
	}
	return ""
}

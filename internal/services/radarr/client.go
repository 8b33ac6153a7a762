package radarr

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

// Image is one poster/fanart entry on a movie
type Image struct {
	CoverType string `json:"coverType"`
	RemoteURL string `json:"remoteUrl"`
}

// MovieFile carries the on-disk file details of a movie
type MovieFile struct {
	Size    int64 `json:"size"`
	Quality struct {
		Quality struct {
			Name string `json:"name"`
		} `json:"quality"`
	} `json:"quality"`
}

// Movie is one library entry
type Movie struct {
	ID         int64      `json:"id"`
	Title      string     `json:"title"`
	Year       int        `json:"year"`
	TmdbID     int64      `json:"tmdbId"`
	ImdbID     string     `json:"imdbId"`
	Runtime    int        `json:"runtime"`
	SizeOnDisk int64      `json:"sizeOnDisk"`
	Genres     []string   `json:"genres"`
	Images     []Image    `json:"images"`
	MovieFile  *MovieFile `json:"movieFile"`
	Studio     string     `json:"studio"`
	Overview   string     `json:"overview"`
}

// HistoryRecord is one entry of the paginated history feed
type HistoryRecord struct {
	ID          int64     `json:"id"`
	MovieID     int64     `json:"movieId"`
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
	Data  map[string]string `json:"data"`
	Movie *Movie            `json:"movie"`
}

// HistoryPage is one page of the history feed, newest-first
type HistoryPage struct {
	Page         int             `json:"page"`
	PageSize     int             `json:"pageSize"`
	TotalRecords int             `json:"totalRecords"`
	Records      []HistoryRecord `json:"records"`
}

// Client wraps the Radarr v3 API
type Client struct {
	http   *arrhttp.Client
	logger *logrus.Logger
}

// NewClient creates a new Radarr client
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

// GetMovies fetches the full movie library
func (c *Client) GetMovies(ctx context.Context) ([]Movie, error) {
	var movies []Movie
	if err := c.http.GetJSON(ctx, "/api/v3/movie", nil, &movies); err != nil {
		return nil, err
	}
	return movies, nil
}

// GetHistory fetches one page of history, newest-first, with the movie
// entity embedded per record
func (c *Client) GetHistory(ctx context.Context, page, pageSize int) (*HistoryPage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("pageSize", strconv.Itoa(pageSize))
	query.Set("sortKey", "date")
	query.Set("sortDirection", "descending")
	query.Set("includeMovie", "true")

	var result HistoryPage
	if err := c.http.GetJSON(ctx, "/api/v3/history", query, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// PosterURL returns the remote poster URL of a movie, if any
func (m *Movie) PosterURL() string {
	for _, img := range m.Images {
		if img.CoverType == "poster" {
			return img.RemoteURL
		}
	}
	return ""
}

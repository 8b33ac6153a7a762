package overseerr

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/trackarr/trackarr/internal/services/arrhttp"
)

// Request status codes used by the upstream API
const (
	StatusPendingApproval = 1
	StatusApproved        = 2
	StatusDeclined        = 3
	StatusPartiallyAvail  = 4
	StatusAvailable       = 5
)

// Status is the version probe response
type Status struct {
	Version string `json:"version"`
}

// MediaInfo is the media entity embedded in a request
type MediaInfo struct {
	ID        int64  `json:"id"`
	TmdbID    int64  `json:"tmdbId"`
	TvdbID    int64  `json:"tvdbId"`
	ImdbID    string `json:"imdbId"`
	MediaType string `json:"mediaType"` // movie, tv
	Status    int    `json:"status"`
	Title     string `json:"title"`
	PosterURL string `json:"posterPath"`
}

// Request is one media request
type Request struct {
	ID        int64     `json:"id"`
	Status    int       `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Type      string    `json:"type"`
	Media     MediaInfo `json:"media"`
	RequestedBy struct {
		ID          int64  `json:"id"`
		DisplayName string `json:"displayName"`
	} `json:"requestedBy"`
}

// RequestPage is one page of the requests feed
type RequestPage struct {
	PageInfo struct {
		Pages   int `json:"pages"`
		Results int `json:"results"`
	} `json:"pageInfo"`
	Results []Request `json:"results"`
}

// Client wraps the Overseerr v1 API
type Client struct {
	http   *arrhttp.Client
	logger *logrus.Logger
}

// NewClient creates a new Overseerr client
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *logrus.Logger) *Client {
	return &Client{
		http:   arrhttp.NewClient(baseURL, map[string]string{"X-Api-Key": apiKey}, timeout, logger),
		logger: logger,
	}
}

// GetStatus probes the service for reachability and version
func (c *Client) GetStatus(ctx context.Context) (*Status, error) {
	var status Status
	if err := c.http.GetJSON(ctx, "/api/v1/status", nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// GetRequests fetches one page of media requests, most recently modified
// first
func (c *Client) GetRequests(ctx context.Context, take, skip int) (*RequestPage, error) {
	query := url.Values{}
	query.Set("take", strconv.Itoa(take))
	query.Set("skip", strconv.Itoa(skip))
	query.Set("filter", "all")
	query.Set("sort", "modified")

	var page RequestPage
	if err := c.http.GetJSON(ctx, "/api/v1/request", query, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

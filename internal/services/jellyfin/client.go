package jellyfin

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/trackarr/trackarr/internal/services/arrhttp"
)

// Activity log entry types for playback tracking
const (
	ActivityPlaybackStart = "VideoPlayback"
	ActivityPlaybackStop  = "VideoPlaybackStopped"
)

// SystemInfo is the version probe response
type SystemInfo struct {
	Version    string `json:"Version"`
	ServerName string `json:"ServerName"`
}

// NowPlayingItem is the media currently playing in a session
type NowPlayingItem struct {
	ID           string            `json:"Id"`
	Name         string            `json:"Name"`
	Type         string            `json:"Type"` // Movie, Episode
	SeriesName   string            `json:"SeriesName"`
	SeasonNumber int               `json:"ParentIndexNumber"`
	IndexNumber  int               `json:"IndexNumber"`
	RunTimeTicks int64             `json:"RunTimeTicks"`
	ProviderIDs  map[string]string `json:"ProviderIds"`
	ProductionYear int             `json:"ProductionYear"`
}

// Session is one active server session
type Session struct {
	ID             string          `json:"Id"`
	UserID         string          `json:"UserId"`
	UserName       string          `json:"UserName"`
	NowPlayingItem *NowPlayingItem `json:"NowPlayingItem"`
	PlayState      struct {
		PositionTicks int64  `json:"PositionTicks"`
		PlayMethod    string `json:"PlayMethod"` // DirectPlay, DirectStream, Transcode
		IsPaused      bool   `json:"IsPaused"`
	} `json:"PlayState"`
	LastActivityDate time.Time `json:"LastActivityDate"`
}

// ActivityEntry is one activity log entry. Playback start and stop arrive as
// separate entries that have to be paired by user and item.
type ActivityEntry struct {
	ID       int64     `json:"Id"`
	Name     string    `json:"Name"` // "<user> has finished playing <item> on <device>"
	Type     string    `json:"Type"`
	ItemID   string    `json:"ItemId"`
	UserID   string    `json:"UserId"`
	Date     time.Time `json:"Date"`
	Severity string    `json:"Severity"`
}

// ActivityLog is one page of the activity log, newest-first
type ActivityLog struct {
	Items            []ActivityEntry `json:"Items"`
	TotalRecordCount int             `json:"TotalRecordCount"`
}

// Client wraps the Jellyfin API
type Client struct {
	http   *arrhttp.Client
	logger *logrus.Logger
}

// NewClient creates a new Jellyfin client
func NewClient(baseURL, apiKey string, timeout time.Duration, logger *logrus.Logger) *Client {
	return &Client{
		http:   arrhttp.NewClient(baseURL, map[string]string{"X-Emby-Token": apiKey}, timeout, logger),
		logger: logger,
	}
}

// GetSystemInfo probes the server for reachability and version
func (c *Client) GetSystemInfo(ctx context.Context) (*SystemInfo, error) {
	var info SystemInfo
	if err := c.http.GetJSON(ctx, "/System/Info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// GetSessions fetches all active sessions
func (c *Client) GetSessions(ctx context.Context) ([]Session, error) {
	var sessions []Session
	if err := c.http.GetJSON(ctx, "/Sessions", nil, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetActivityLog fetches one page of the activity log, newest-first
func (c *Client) GetActivityLog(ctx context.Context, startIndex, limit int) (*ActivityLog, error) {
	query := url.Values{}
	query.Set("startIndex", strconv.Itoa(startIndex))
	query.Set("limit", strconv.Itoa(limit))

	var log ActivityLog
	if err := c.http.GetJSON(ctx, "/System/ActivityLog/Entries", query, &log); err != nil {
		return nil, err
	}
	return &log, nil
}

package models

import "time"

// Connection is one configured external service endpoint
type Connection struct {
	ID uint64 `boltholdKey:"ID"`

	Name        string
	ServiceType ServiceType `boltholdIndex:"ServiceType"`
	BaseURL     string
	APIKey      string

	Enabled   bool `boltholdIndex:"Enabled"`
	IsDefault bool

	// Last connection-test outcome
	LastTestOK    bool
	LastTestError string
	LastTestedAt  *time.Time
	Version       string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SyncState tracks per-connection sync progress for incremental catch-up and
// diagnostics. One row per connection.
type SyncState struct {
	ID           uint64 `boltholdKey:"ID"`
	ConnectionID uint64 `boltholdUnique:"ConnectionID"`

	LastSyncedAt  time.Time
	LastHistoryID string
	LastStatus    string
	LastError     string

	UpdatedAt time.Time
}

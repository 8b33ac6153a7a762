// Package registry manages configured service connections: CRUD, health
// tests, and the cached outcomes of those tests.
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/trackarr/trackarr/internal/collectors"
	"github.com/trackarr/trackarr/internal/config"
	"github.com/trackarr/trackarr/internal/models"
)

// testCacheTTL bounds how often dashboard polling can re-test the same
// connection
const testCacheTTL = 5 * time.Minute

// Registry is the CRUD and health-check surface over configured connections
type Registry struct {
	db        *models.Database
	cfg       *config.Config
	testCache *cache.Cache
	logger    *logrus.Logger
}

// New creates a new registry
func New(db *models.Database, cfg *config.Config, logger *logrus.Logger) *Registry {
	return &Registry{
		db:        db,
		cfg:       cfg,
		testCache: cache.New(testCacheTTL, 10*time.Minute),
		logger:    logger,
	}
}

// List returns all configured connections
func (r *Registry) List() ([]*models.Connection, error) {
	return r.db.GetConnections()
}

// Get returns one connection by ID
func (r *Registry) Get(id uint64) (*models.Connection, error) {
	return r.db.GetConnection(id)
}

// Create validates and stores a new connection
func (r *Registry) Create(conn *models.Connection) error {
	if err := validate(conn); err != nil {
		return err
	}
	if err := r.db.CreateConnection(conn); err != nil {
		return err
	}
	r.logger.WithFields(logrus.Fields{
		"name": conn.Name,
		"type": conn.ServiceType,
	}).Info("Connection created")
	return nil
}

// Update validates and overwrites an existing connection
func (r *Registry) Update(conn *models.Connection) error {
	if err := validate(conn); err != nil {
		return err
	}
	existing, err := r.db.GetConnection(conn.ID)
	if err != nil {
		return err
	}
	conn.CreatedAt = existing.CreatedAt
	if err := r.db.UpdateConnection(conn); err != nil {
		return err
	}
	r.testCache.Delete(cacheKey(conn.ID))
	return nil
}

// Delete removes a connection and its sync state
func (r *Registry) Delete(id uint64) error {
	if err := r.db.DeleteConnection(id); err != nil {
		return err
	}
	r.testCache.Delete(cacheKey(id))
	r.logger.WithField("id", id).Info("Connection deleted")
	return nil
}

// Test probes a connection's service and persists the outcome on the
// connection row. Recent outcomes are served from cache.
func (r *Registry) Test(ctx context.Context, id uint64) (collectors.TestResult, error) {
	if cached, ok := r.testCache.Get(cacheKey(id)); ok {
		return cached.(collectors.TestResult), nil
	}

	conn, err := r.db.GetConnection(id)
	if err != nil {
		return collectors.TestResult{}, err
	}

	col := collectors.New(conn, r.db, r.cfg.RequestTimeout(), r.cfg.PageDelay(), r.logger)
	if col == nil {
		return collectors.TestResult{}, fmt.Errorf("unsupported service type %q", conn.ServiceType)
	}

	result := col.TestConnection(ctx)

	now := time.Now()
	conn.LastTestOK = result.Success
	conn.LastTestError = result.Error
	conn.LastTestedAt = &now
	if result.Version != "" {
		conn.Version = result.Version
	}
	if err := r.db.UpdateConnection(conn); err != nil {
		r.logger.WithError(err).WithField("connection", conn.Name).Error("Failed to persist test outcome")
	}

	r.testCache.Set(cacheKey(id), result, cache.DefaultExpiration)
	return result, nil
}

func validate(conn *models.Connection) error {
	if conn.Name == "" {
		return fmt.Errorf("connection name is required")
	}
	if !conn.ServiceType.Valid() {
		return fmt.Errorf("unknown service type %q", conn.ServiceType)
	}
	if conn.BaseURL == "" {
		return fmt.Errorf("base URL is required")
	}
	return nil
}

func cacheKey(id uint64) string {
	return fmt.Sprintf("test-%d", id)
}

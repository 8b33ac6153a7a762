// Package syncer owns the sync run-lock, drives timed and on-demand cycles
// across all configured connections, and publishes live per-connection
// progress to observers.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/timshannon/bolthold"

	"github.com/trackarr/trackarr/internal/collectors"
	"github.com/trackarr/trackarr/internal/config"
	"github.com/trackarr/trackarr/internal/metrics"
	"github.com/trackarr/trackarr/internal/models"
)

// ErrSyncInProgress is returned when a sync request is shed because the
// run-lock is held. Requests are dropped, not queued.
var ErrSyncInProgress = errors.New("a sync is already running")

// maxObservers bounds the observer set; the oldest subscriber is evicted
// beyond this cap
const maxObservers = 100

// Observer receives the full status snapshot after every state transition
type Observer func(Status)

type observerEntry struct {
	id uint64
	fn Observer
}

type cycleTotals struct {
	processed int
	errors    int
}

// Orchestrator is the single authority for whether a sync is running, what
// kind, and its live progress. One long-lived instance, constructed at
// process start and injected wherever status needs to be read.
type Orchestrator struct {
	db     *models.Database
	cfg    *config.Config
	logger *logrus.Logger

	mu             sync.Mutex
	running        bool
	status         Status
	observers      []observerEntry
	nextObserverID uint64

	// collector construction, replaceable in tests
	newCollector func(conn *models.Connection) collectors.Collector
}

// New creates the orchestrator
func New(db *models.Database, cfg *config.Config, logger *logrus.Logger) *Orchestrator {
	o := &Orchestrator{
		db:     db,
		cfg:    cfg,
		logger: logger,
	}
	o.newCollector = func(conn *models.Connection) collectors.Collector {
		return collectors.New(conn, db, cfg.RequestTimeout(), cfg.PageDelay(), logger)
	}
	return o
}

// Run executes one sync cycle synchronously. If a cycle is already running
// the request is dropped with ErrSyncInProgress.
func (o *Orchestrator) Run(ctx context.Context, kind SyncKind) error {
	if !o.begin(kind) {
		o.logger.WithField("kind", kind).Info("Sync already running, dropping request")
		metrics.SyncCyclesDropped.Inc()
		return ErrSyncInProgress
	}
	defer o.finish()
	return o.execute(ctx, kind)
}

// Trigger starts one sync cycle in the background. Returns
// ErrSyncInProgress without doing any work when the run-lock is held.
func (o *Orchestrator) Trigger(kind SyncKind) error {
	if !o.begin(kind) {
		o.logger.WithField("kind", kind).Info("Sync already running, dropping request")
		metrics.SyncCyclesDropped.Inc()
		return ErrSyncInProgress
	}
	go func() {
		defer o.finish()
		if err := o.execute(context.Background(), kind); err != nil {
			o.logger.WithError(err).WithField("kind", kind).Error("Sync cycle aborted")
		}
	}()
	return nil
}

// GetSyncStatus returns a snapshot of the current sync status
func (o *Orchestrator) GetSyncStatus() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.status.clone()
}

// OnStatusChange registers an observer and returns its unsubscribe
// function. When the cap is exceeded the oldest observer is evicted.
func (o *Orchestrator) OnStatusChange(fn Observer) func() {
	o.mu.Lock()
	o.nextObserverID++
	id := o.nextObserverID
	o.observers = append(o.observers, observerEntry{id: id, fn: fn})
	if len(o.observers) > maxObservers {
		o.observers = o.observers[1:]
	}
	o.mu.Unlock()

	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		for i, entry := range o.observers {
			if entry.id == id {
				o.observers = append(o.observers[:i], o.observers[i+1:]...)
				return
			}
		}
	}
}

// ObserverCount reports the current number of registered observers
func (o *Orchestrator) ObserverCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.observers)
}

// begin atomically check-and-sets the run-lock and resets the live status
func (o *Orchestrator) begin(kind SyncKind) bool {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return false
	}
	o.running = true
	now := time.Now()
	o.status.Running = true
	o.status.Kind = kind
	o.status.StartedAt = &now
	o.status.Tasks = nil
	o.mu.Unlock()

	o.publish()
	return true
}

// finish always releases the run-lock, whatever happened during the cycle
func (o *Orchestrator) finish() {
	o.mu.Lock()
	o.running = false
	o.status.Running = false
	o.mu.Unlock()

	o.publish()
}

// execute runs the categories of one cycle in sequence under the
// already-held lock. A category-level fatal error aborts the whole cycle
// and leaves no lastSync summary for the attempt.
func (o *Orchestrator) execute(ctx context.Context, kind SyncKind) error {
	start := time.Now()
	totals := cycleTotals{}

	for _, cat := range categoriesFor(kind) {
		if err := o.runCategory(ctx, cat, &totals); err != nil {
			return fmt.Errorf("%s cycle: %w", cat, err)
		}
	}

	o.recordLastSync(kind, start, &totals)
	metrics.SyncCycles.WithLabelValues(string(kind)).Inc()
	return nil
}

// categoriesFor expands a sync kind into its categories; full runs all
// three under the one lock acquisition
func categoriesFor(kind SyncKind) []models.SyncCategory {
	switch kind {
	case KindHistory:
		return []models.SyncCategory{models.CategoryHistory}
	case KindMetadata:
		return []models.SyncCategory{models.CategoryMetadata}
	case KindPlayback:
		return []models.SyncCategory{models.CategoryPlayback}
	default:
		return []models.SyncCategory{models.CategoryHistory, models.CategoryMetadata, models.CategoryPlayback}
	}
}

// runCategory processes every capable connection strictly one at a time, in
// listing order. A failure to list connections is cycle-fatal; everything
// per-connection is contained.
func (o *Orchestrator) runCategory(ctx context.Context, cat models.SyncCategory, totals *cycleTotals) error {
	conns, err := o.db.GetEnabledConnections()
	if err != nil {
		return fmt.Errorf("listing connections: %w", err)
	}

	var matching []*models.Connection
	for _, conn := range conns {
		caps := models.Capabilities(conn.ServiceType)
		// Stats-capable services are swept during the history cycle
		if caps.Has(cat) || (cat == models.CategoryHistory && caps.Has(models.CategoryStats)) {
			matching = append(matching, conn)
		}
	}
	if len(matching) == 0 {
		return nil
	}

	o.mu.Lock()
	base := len(o.status.Tasks)
	for _, conn := range matching {
		o.status.Tasks = append(o.status.Tasks, ConnectionTask{
			ConnectionID: conn.ID,
			Name:         conn.Name,
			ServiceType:  conn.ServiceType,
			Category:     cat,
			State:        TaskPending,
		})
	}
	o.mu.Unlock()
	o.publish()

	for i, conn := range matching {
		o.mutateTask(base+i, func(t *ConnectionTask) {
			now := time.Now()
			t.State = TaskRunning
			t.StartedAt = &now
		})

		res := o.runConnection(ctx, conn, cat)

		totals.processed += res.Processed
		totals.errors += len(res.Errors)
		if len(res.Errors) > 0 {
			metrics.CollectorErrors.WithLabelValues(string(conn.ServiceType)).Add(float64(len(res.Errors)))
		}

		o.mutateTask(base+i, func(t *ConnectionTask) {
			now := time.Now()
			t.FinishedAt = &now
			t.Processed = res.Processed
			t.Errors = res.Errors
			if len(res.Errors) > 0 {
				t.State = TaskError
			} else {
				t.State = TaskCompleted
			}
		})
	}

	return nil
}

// runConnection invokes the category-appropriate collector operation,
// containing panics as defense in depth
func (o *Orchestrator) runConnection(ctx context.Context, conn *models.Connection, cat models.SyncCategory) (res collectors.Result) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.WithFields(logrus.Fields{
				"connection": conn.Name,
				"panic":      r,
			}).Error("Collector panicked")
			res = collectors.Result{Errors: []string{fmt.Sprintf("collector panic: %v", r)}}
		}
	}()

	col := o.newCollector(conn)
	if col == nil {
		return collectors.Result{Errors: []string{fmt.Sprintf("unsupported service type %q", conn.ServiceType)}}
	}

	switch cat {
	case models.CategoryHistory:
		caps := models.Capabilities(conn.ServiceType)
		if caps.Stats {
			if syncer, ok := col.(collectors.StatsSyncer); ok {
				res = syncer.SyncStats(ctx, o.resolveSince(conn))
				o.saveSyncState(conn, res)
				return res
			}
		}
		if syncer, ok := col.(collectors.HistorySyncer); ok {
			res = syncer.SyncHistory(ctx, o.resolveSince(conn))
			o.saveSyncState(conn, res)
			return res
		}
	case models.CategoryMetadata:
		if syncer, ok := col.(collectors.MetadataSyncer); ok {
			return syncer.SyncMetadata(ctx)
		}
	case models.CategoryPlayback:
		if syncer, ok := col.(collectors.PlaybackSyncer); ok {
			return syncer.SyncPlayback(ctx)
		}
	}
	return collectors.Result{}
}

// resolveSince derives the history cutoff: the configured import window,
// advanced to the last successfully synced timestamp for incremental
// catch-up
func (o *Orchestrator) resolveSince(conn *models.Connection) time.Time {
	since := time.Now().AddDate(0, -o.cfg.HistoryImportMonths, 0)
	state, err := o.db.GetSyncState(conn.ID)
	if err == nil && state.LastSyncedAt.After(since) {
		since = state.LastSyncedAt
	}
	return since
}

// saveSyncState records the per-connection sync outcome. The incremental
// cutoff only advances on clean runs so a failed poll cannot skip records.
func (o *Orchestrator) saveSyncState(conn *models.Connection, res collectors.Result) {
	state := &models.SyncState{
		ConnectionID: conn.ID,
		LastSyncedAt: time.Now(),
		LastStatus:   "ok",
	}
	if len(res.Errors) > 0 {
		state.LastStatus = "error"
		state.LastError = res.Errors[0]
		if prev, err := o.db.GetSyncState(conn.ID); err == nil {
			state.LastSyncedAt = prev.LastSyncedAt
		} else if errors.Is(err, bolthold.ErrNotFound) {
			state.LastSyncedAt = time.Time{}
		}
	}

	if err := o.db.SaveSyncState(state); err != nil {
		o.logger.WithError(err).WithField("connection", conn.Name).Error("Failed to save sync state")
	}
}

// recordLastSync stores the terminal summary of a completed cycle
func (o *Orchestrator) recordLastSync(kind SyncKind, start time.Time, totals *cycleTotals) {
	o.mu.Lock()
	o.status.LastSync = &LastSync{
		Kind:        kind,
		CompletedAt: time.Now(),
		Duration:    time.Since(start),
		Processed:   totals.processed,
		ErrorCount:  totals.errors,
	}
	o.mu.Unlock()
	o.publish()
}

// mutateTask applies one task transition and publishes the new snapshot
func (o *Orchestrator) mutateTask(index int, mutate func(*ConnectionTask)) {
	o.mu.Lock()
	if index >= 0 && index < len(o.status.Tasks) {
		mutate(&o.status.Tasks[index])
	}
	o.mu.Unlock()
	o.publish()
}

// publish sends the current snapshot to every observer. Observer panics are
// swallowed so one failing observer cannot break the sync loop or the
// others.
func (o *Orchestrator) publish() {
	o.mu.Lock()
	snap := o.status.clone()
	obs := make([]Observer, len(o.observers))
	for i, entry := range o.observers {
		obs[i] = entry.fn
	}
	o.mu.Unlock()

	for _, fn := range obs {
		o.safeNotify(fn, snap)
	}
}

func (o *Orchestrator) safeNotify(fn Observer, snap Status) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.WithField("panic", r).Warn("Status observer panicked")
		}
	}()
	fn(snap)
}

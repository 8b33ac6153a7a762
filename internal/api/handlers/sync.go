package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/trackarr/trackarr/internal/syncer"
)

// SyncHandler exposes sync status and manual sync triggers
type SyncHandler struct {
	orch   *syncer.Orchestrator
	logger *logrus.Logger
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(orch *syncer.Orchestrator, logger *logrus.Logger) *SyncHandler {
	return &SyncHandler{orch: orch, logger: logger}
}

// Status handles GET /api/sync/status
func (h *SyncHandler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.orch.GetSyncStatus())
}

// Trigger handles POST /api/sync/{full|history|metadata|playback}.
// A request arriving while a cycle runs is shed with 409, not queued.
func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var kind syncer.SyncKind
	switch strings.TrimPrefix(r.URL.Path, "/api/sync/") {
	case "full":
		kind = syncer.KindFull
	case "history":
		kind = syncer.KindHistory
	case "metadata":
		kind = syncer.KindMetadata
	case "playback":
		kind = syncer.KindPlayback
	default:
		http.Error(w, "Unknown sync kind", http.StatusNotFound)
		return
	}

	if err := h.orch.Trigger(kind); err != nil {
		if errors.Is(err, syncer.ErrSyncInProgress) {
			http.Error(w, "A sync is already running", http.StatusConflict)
			return
		}
		h.logger.WithError(err).Error("Failed to trigger sync")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"started": string(kind)})
}

package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/trackarr/trackarr/internal/models"
	"github.com/trackarr/trackarr/internal/scheduler"
	"github.com/trackarr/trackarr/internal/syncer"
)

// StatusHandler reports application state: store counts, registered
// timers and the outcome of the last sync cycle
type StatusHandler struct {
	db     *models.Database
	sched  *scheduler.Scheduler
	orch   *syncer.Orchestrator
	logger *logrus.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(db *models.Database, sched *scheduler.Scheduler, orch *syncer.Orchestrator, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{db: db, sched: sched, orch: orch, logger: logger}
}

type statusResponse struct {
	Downloads int               `json:"downloads"`
	Playbacks int               `json:"playbacks"`
	Subtitles int               `json:"subtitles"`
	Jobs      map[string]string `json:"jobs"`
	LastSync  *syncer.LastSync  `json:"lastSync,omitempty"`
}

// Handle handles GET /api/status
func (h *StatusHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	downloads, err := h.db.CountDownloadEvents()
	if err != nil {
		h.logger.WithError(err).Error("Failed to count download events")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	playbacks, err := h.db.CountPlaybackEvents()
	if err != nil {
		h.logger.WithError(err).Error("Failed to count playback events")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	subtitles, err := h.db.CountSubtitleEvents()
	if err != nil {
		h.logger.WithError(err).Error("Failed to count subtitle events")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	resp := statusResponse{
		Downloads: downloads,
		Playbacks: playbacks,
		Subtitles: subtitles,
		Jobs:      h.sched.Jobs(),
		LastSync:  h.orch.GetSyncStatus().LastSync,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/timshannon/bolthold"

	"github.com/trackarr/trackarr/internal/models"
	"github.com/trackarr/trackarr/internal/registry"
)

// ConnectionsHandler is the CRUD and test surface for service connections
type ConnectionsHandler struct {
	registry *registry.Registry
	logger   *logrus.Logger
}

// NewConnectionsHandler creates a new connections handler
func NewConnectionsHandler(reg *registry.Registry, logger *logrus.Logger) *ConnectionsHandler {
	return &ConnectionsHandler{registry: reg, logger: logger}
}

// connectionView omits the API key from responses
type connectionView struct {
	ID            uint64             `json:"id"`
	Name          string             `json:"name"`
	ServiceType   models.ServiceType `json:"serviceType"`
	BaseURL       string             `json:"baseUrl"`
	Enabled       bool               `json:"enabled"`
	IsDefault     bool               `json:"isDefault"`
	LastTestOK    bool               `json:"lastTestOk"`
	LastTestError string             `json:"lastTestError,omitempty"`
	Version       string             `json:"version,omitempty"`
}

func toView(conn *models.Connection) connectionView {
	return connectionView{
		ID:            conn.ID,
		Name:          conn.Name,
		ServiceType:   conn.ServiceType,
		BaseURL:       conn.BaseURL,
		Enabled:       conn.Enabled,
		IsDefault:     conn.IsDefault,
		LastTestOK:    conn.LastTestOK,
		LastTestError: conn.LastTestError,
		Version:       conn.Version,
	}
}

// connectionRequest is the create/update payload
type connectionRequest struct {
	Name        string             `json:"name"`
	ServiceType models.ServiceType `json:"serviceType"`
	BaseURL     string             `json:"baseUrl"`
	APIKey      string             `json:"apiKey"`
	Enabled     bool               `json:"enabled"`
	IsDefault   bool               `json:"isDefault"`
}

// Collection handles /api/connections (GET list, POST create)
func (h *ConnectionsHandler) Collection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.list(w)
	case http.MethodPost:
		h.create(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// Item handles /api/connections/{id} and /api/connections/{id}/test
func (h *ConnectionsHandler) Item(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/connections/")
	idPart, action, _ := strings.Cut(rest, "/")

	id, err := strconv.ParseUint(idPart, 10, 64)
	if err != nil {
		http.Error(w, "Invalid connection ID", http.StatusBadRequest)
		return
	}

	if action == "test" {
		h.test(w, r, id)
		return
	}
	if action != "" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.get(w, id)
	case http.MethodPut:
		h.update(w, r, id)
	case http.MethodDelete:
		h.delete(w, id)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *ConnectionsHandler) list(w http.ResponseWriter) {
	conns, err := h.registry.List()
	if err != nil {
		h.logger.WithError(err).Error("Failed to list connections")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	views := make([]connectionView, 0, len(conns))
	for _, conn := range conns {
		views = append(views, toView(conn))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}

func (h *ConnectionsHandler) get(w http.ResponseWriter, id uint64) {
	conn, err := h.registry.Get(id)
	if err != nil {
		writeLookupError(w, err, h.logger)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toView(conn))
}

func (h *ConnectionsHandler) create(w http.ResponseWriter, r *http.Request) {
	var req connectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}

	conn := &models.Connection{
		Name:        req.Name,
		ServiceType: req.ServiceType,
		BaseURL:     strings.TrimRight(req.BaseURL, "/"),
		APIKey:      req.APIKey,
		Enabled:     req.Enabled,
		IsDefault:   req.IsDefault,
	}

	if err := h.registry.Create(conn); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(toView(conn))
}

func (h *ConnectionsHandler) update(w http.ResponseWriter, r *http.Request, id uint64) {
	existing, err := h.registry.Get(id)
	if err != nil {
		writeLookupError(w, err, h.logger)
		return
	}

	var req connectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
		return
	}

	existing.Name = req.Name
	existing.ServiceType = req.ServiceType
	existing.BaseURL = strings.TrimRight(req.BaseURL, "/")
	existing.Enabled = req.Enabled
	existing.IsDefault = req.IsDefault
	// Blank API key in the payload keeps the stored one
	if req.APIKey != "" {
		existing.APIKey = req.APIKey
	}

	if err := h.registry.Update(existing); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toView(existing))
}

func (h *ConnectionsHandler) delete(w http.ResponseWriter, id uint64) {
	if err := h.registry.Delete(id); err != nil {
		writeLookupError(w, err, h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ConnectionsHandler) test(w http.ResponseWriter, r *http.Request, id uint64) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := h.registry.Test(r.Context(), id)
	if err != nil {
		writeLookupError(w, err, h.logger)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

func writeLookupError(w http.ResponseWriter, err error, logger *logrus.Logger) {
	if errors.Is(err, bolthold.ErrNotFound) {
		http.Error(w, "Connection not found", http.StatusNotFound)
		return
	}
	logger.WithError(err).Error("Connection lookup failed")
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

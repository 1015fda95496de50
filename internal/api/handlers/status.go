package handlers

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/privatecinema/internal/models"
)

// StatsSource reports record counts
type StatsSource interface {
	GetStats() (*models.Stats, error)
}

// StatusHandler handles status requests
type StatusHandler struct {
	db     StatsSource
	logger *logrus.Logger
}

// NewStatusHandler creates a new status handler
func NewStatusHandler(db StatsSource, logger *logrus.Logger) *StatusHandler {
	return &StatusHandler{
		db:     db,
		logger: logger,
	}
}

// StatusResponse represents the status response
type StatusResponse struct {
	PendingServers int `json:"pending_servers"`
	LinkedServers  int `json:"linked_servers"`
	TotalMedias    int `json:"total_medias"`
	ActivePlayback int `json:"active_playback"`
}

// ServeHTTP handles the status endpoint
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	stats, err := h.db.GetStats()
	if err != nil {
		writeError(w, h.logger, fmt.Errorf("failed to get stats: %w", err))
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		PendingServers: stats.PendingServers,
		LinkedServers:  stats.LinkedServers,
		TotalMedias:    stats.Media,
		ActivePlayback: stats.ActivePlayback,
	})
}

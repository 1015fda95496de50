package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/privatecinema/internal/api/middleware"
	"github.com/amaumene/privatecinema/internal/controllers"
)

// PlaybackHandler serves POST /playbackReport
type PlaybackHandler struct {
	playback *controllers.PlaybackController
	logger   *logrus.Logger
}

// NewPlaybackHandler creates a new playback handler
func NewPlaybackHandler(playback *controllers.PlaybackController, logger *logrus.Logger) *PlaybackHandler {
	return &PlaybackHandler{
		playback: playback,
		logger:   logger,
	}
}

// ServeHTTP handles one playback report
func (h *PlaybackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	uid, ok := middleware.UIDFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, controllers.ErrUnauthenticated)
		return
	}

	var report controllers.PlaybackReport
	if err := decodeBody(w, r, jsonBodyLimit, &report); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.playback.Report(r.Context(), uid, &report); err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

package handlers

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/privatecinema/internal/api/middleware"
	"github.com/amaumene/privatecinema/internal/controllers"
)

// EnrichHandler serves POST /tmdbEnrich
type EnrichHandler struct {
	enrich *controllers.EnrichController
	logger *logrus.Logger
}

// NewEnrichHandler creates a new enrichment handler
func NewEnrichHandler(enrich *controllers.EnrichController, logger *logrus.Logger) *EnrichHandler {
	return &EnrichHandler{
		enrich: enrich,
		logger: logger,
	}
}

// ServeHTTP enriches the requested media of the signed-in user
func (h *EnrichHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	uid, ok := middleware.UIDFromContext(r.Context())
	if !ok {
		writeError(w, h.logger, controllers.ErrUnauthenticated)
		return
	}

	var req controllers.EnrichRequest
	if err := decodeBody(w, r, jsonBodyLimit, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	results, err := h.enrich.Enrich(r.Context(), uid, &req)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

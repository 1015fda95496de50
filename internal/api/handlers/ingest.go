package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/privatecinema/internal/api/middleware"
	"github.com/amaumene/privatecinema/internal/apperr"
	"github.com/amaumene/privatecinema/internal/controllers"
)

// IngestHandler serves POST /agentIngest
type IngestHandler struct {
	ingest  *controllers.IngestController
	maxBody int64
	logger  *logrus.Logger
}

// NewIngestHandler creates a new ingest handler
func NewIngestHandler(ingest *controllers.IngestController, maxBody int64, logger *logrus.Logger) *IngestHandler {
	return &IngestHandler{
		ingest:  ingest,
		maxBody: maxBody,
		logger:  logger,
	}
}

type ingestEnvelope struct {
	Items []json.RawMessage `json:"items"`
}

// ServeHTTP decodes the envelope and answers 200, 400 or 207 depending on
// how many items were upserted
func (h *IngestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var envelope ingestEnvelope
	if err := decodeBody(w, r, h.maxBody, &envelope); err != nil {
		writeError(w, h.logger, err)
		return
	}
	if envelope.Items == nil {
		writeError(w, h.logger, apperr.New(apperr.InvalidArgument, "Request body must contain an items array."))
		return
	}

	response, err := h.ingest.Ingest(r.Context(), middleware.BearerToken(r), envelope.Items)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, IngestStatus(response.Results), response)
}

// IngestStatus is 200 when every item succeeded (or there were none), 400
// when every item failed and 207 otherwise
func IngestStatus(results []controllers.IngestResult) int {
	failed := 0
	for _, r := range results {
		if r.Status == controllers.IngestStatusError {
			failed++
		}
	}

	switch {
	case failed == 0:
		return http.StatusOK
	case failed == len(results):
		return http.StatusBadRequest
	default:
		return http.StatusMultiStatus
	}
}

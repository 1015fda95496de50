package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/amaumene/privatecinema/internal/apperr"
	"github.com/amaumene/privatecinema/internal/metrics"
	"github.com/amaumene/privatecinema/internal/models"
	"github.com/amaumene/privatecinema/internal/utils"
)

const (
	// MaxIngestItems is the largest envelope an agent may push at once
	MaxIngestItems = 200
	// IngestChunkSize keeps each commit under the store's batch ceiling
	IngestChunkSize = 450

	touchTimeout = 10 * time.Second
)

// Per-item ingest statuses
const (
	IngestStatusUpserted = "upserted"
	IngestStatusError    = "error"
)

// IngestStore is the persistence needed by agent ingest
type IngestStore interface {
	FindLinkedServers(keyPrefix string) ([]*models.ServerRecord, error)
	TouchServer(ctx context.Context, path string, at time.Time) error
	CommitMediaBatch(uid string, upserts []*models.MediaUpsert, now time.Time) error
}

// IngestItem is one media file reported by an agent
type IngestItem struct {
	MediaID     string           `json:"mediaId" validate:"omitempty,docid"`
	Title       string           `json:"title" validate:"required"`
	Filename    string           `json:"filename" validate:"required"`
	Path        string           `json:"path" validate:"required"`
	Type        models.MediaType `json:"type" validate:"required,oneof=movie episode"`
	Season      *int             `json:"season" validate:"omitempty,min=0"`
	Episode     *int             `json:"episode" validate:"omitempty,min=0"`
	Year        *int             `json:"year"`
	Size        int64            `json:"size" validate:"gt=0"`
	Duration    float64          `json:"duration" validate:"gt=0"`
	Codec       *string          `json:"codec"`
	PosterURL   *string          `json:"posterUrl" validate:"omitempty,url"`
	BackdropURL *string          `json:"backdropUrl" validate:"omitempty,url"`
	TMDBID      *int             `json:"tmdbId"`
	AddedAt     *string          `json:"addedAt" validate:"omitempty,iso8601"`
}

// IngestResult is the per-item outcome reported back to the agent
type IngestResult struct {
	MediaID string `json:"mediaId,omitempty"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Path    string `json:"path,omitempty"`
}

// IngestResponse holds the per-item results in request order
type IngestResponse struct {
	Results  []IngestResult `json:"results"`
	OwnerUID string         `json:"-"`
	ServerID string         `json:"-"`
}

// IngestController authenticates agents by API key and upserts the media
// they report
type IngestController struct {
	store     IngestStore
	chunkSize int
	now       func() time.Time
	touches   sync.WaitGroup
	logger    *logrus.Logger
}

// NewIngestController creates a new ingest controller
func NewIngestController(store IngestStore, logger *logrus.Logger) *IngestController {
	return &IngestController{
		store:     store,
		chunkSize: IngestChunkSize,
		now:       time.Now,
		logger:    logger,
	}
}

// Wait blocks until background lastSeen updates have finished
func (c *IngestController) Wait() {
	c.touches.Wait()
}

// Ingest authenticates apiKey and merge-writes every valid item. One bad
// item never aborts the others; a failed chunk commit demotes all items of
// that chunk to errors.
func (c *IngestController) Ingest(ctx context.Context, apiKey string, items []json.RawMessage) (*IngestResponse, error) {
	ctx, span := tracer.Start(ctx, "IngestController.Ingest")
	defer span.End()
	span.SetAttributes(attribute.Int("items", len(items)))

	if len(items) > MaxIngestItems {
		return nil, apperr.New(apperr.InvalidArgument,
			fmt.Sprintf("Cannot process more than %d items per request", MaxIngestItems))
	}
	if apiKey == "" {
		return nil, ErrMissingAPIKey
	}
	if len(items) == 0 {
		return &IngestResponse{Results: []IngestResult{}}, nil
	}

	server, ownerUID, err := c.authenticate(apiKey)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	c.touchLastSeen(ctx, server)

	now := c.now().UTC()
	response := &IngestResponse{
		Results:  make([]IngestResult, 0, len(items)),
		OwnerUID: ownerUID,
		ServerID: server.ServerID,
	}

	var pending []*models.MediaUpsert
	var pendingIdx []int
	flush := func() {
		if len(pending) == 0 {
			return
		}
		if err := c.store.CommitMediaBatch(ownerUID, pending, now); err != nil {
			metrics.IngestChunkFailures.Inc()
			c.logger.WithError(err).WithFields(logrus.Fields{
				"server_id": server.ServerID,
				"items":     len(pending),
			}).Error("Failed to commit media batch")
			for _, idx := range pendingIdx {
				response.Results[idx].Status = IngestStatusError
				response.Results[idx].Message = "Failed to commit batch."
			}
		}
		pending, pendingIdx = nil, nil
	}

	for _, raw := range items {
		upsert, result := c.prepareItem(server.ServerID, raw)
		response.Results = append(response.Results, result)
		if upsert == nil {
			continue
		}

		pending = append(pending, upsert)
		pendingIdx = append(pendingIdx, len(response.Results)-1)
		if len(pending) >= c.chunkSize {
			flush()
		}
	}
	flush()

	upserted := 0
	for _, r := range response.Results {
		metrics.IngestItems.WithLabelValues(r.Status).Inc()
		if r.Status == IngestStatusUpserted {
			upserted++
		}
	}

	c.logger.WithFields(logrus.Fields{
		"uid":       ownerUID,
		"server_id": server.ServerID,
		"items":     len(items),
		"upserted":  upserted,
	}).Info("Agent ingest processed")

	return response, nil
}

// authenticate finds the linked server whose stored hash matches apiKey
func (c *IngestController) authenticate(apiKey string) (*models.ServerRecord, string, error) {
	prefix := apiKey
	if len(prefix) > KeyPrefixLength {
		prefix = prefix[:KeyPrefixLength]
	}

	servers, err := c.store.FindLinkedServers(prefix)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list linked servers: %w", err)
	}

	for _, server := range servers {
		if server.APIKeyHash == "" || server.Salt == "" {
			continue
		}
		if !utils.VerifyKeyHash(apiKey, server.Salt, server.APIKeyHash) {
			continue
		}

		ownerUID, ok := models.OwnerFromPath(server.DocPath)
		if !ok {
			c.logger.WithField("path", server.DocPath).Error("Linked server stored outside a user")
			continue
		}
		return server, ownerUID, nil
	}

	c.logger.WithField("candidates", len(servers)).Warn("Ingest rejected: unknown API key")
	return nil, "", ErrInvalidAPIKey
}

// touchLastSeen updates lastSeen in the background; failures are only logged
func (c *IngestController) touchLastSeen(ctx context.Context, server *models.ServerRecord) {
	seen := c.now().UTC()
	c.touches.Add(1)
	go func() {
		defer c.touches.Done()
		touchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), touchTimeout)
		defer cancel()

		if err := c.store.TouchServer(touchCtx, server.DocPath, seen); err != nil {
			c.logger.WithError(err).WithField("server_id", server.ServerID).Warn("Failed to update lastSeen")
		}
	}()
}

// prepareItem validates one raw item and builds its merge payload.
// A nil upsert means the item failed and result carries the error.
func (c *IngestController) prepareItem(serverID string, raw json.RawMessage) (*models.MediaUpsert, IngestResult) {
	var item IngestItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, IngestResult{
			Status:  IngestStatusError,
			Message: "Invalid item: " + err.Error(),
			Path:    item.Path,
		}
	}
	if err := validate.Struct(&item); err != nil {
		return nil, IngestResult{
			Status:  IngestStatusError,
			Message: validationMessage(err),
			Path:    item.Path,
		}
	}

	mediaID := item.MediaID
	if mediaID == "" {
		mediaID = utils.SHA256Hex(serverID + ":" + item.Path)
	}

	upsert := &models.MediaUpsert{
		MediaID:     mediaID,
		ServerID:    serverID,
		Title:       item.Title,
		Filename:    item.Filename,
		Path:        item.Path,
		Type:        item.Type,
		Season:      item.Season,
		Episode:     item.Episode,
		Year:        item.Year,
		Size:        item.Size,
		Duration:    item.Duration,
		Codec:       item.Codec,
		PosterURL:   item.PosterURL,
		BackdropURL: item.BackdropURL,
		TMDBID:      item.TMDBID,
	}
	if item.AddedAt != nil {
		added, _ := time.Parse(time.RFC3339Nano, *item.AddedAt)
		added = added.UTC()
		upsert.AddedAt = &added
	}

	return upsert, IngestResult{MediaID: mediaID, Status: IngestStatusUpserted, Path: item.Path}
}

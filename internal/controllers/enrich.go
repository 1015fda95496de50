package controllers

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"

	"github.com/amaumene/privatecinema/internal/metrics"
	"github.com/amaumene/privatecinema/internal/models"
	"github.com/amaumene/privatecinema/internal/services/tmdb"
	"github.com/amaumene/privatecinema/internal/utils"
)

const (
	enrichCooldown = 10 * time.Second
	tmdbCacheTTL   = 30 * 24 * time.Hour

	backfillLimit    = 200
	backfillPerOwner = 50
	backfillPause    = time.Second
)

// Per-item enrichment statuses
const (
	EnrichStatusEnriched = "enriched"
	EnrichStatusSkipped  = "skipped"
	EnrichStatusNotFound = "not_found"
	EnrichStatusError    = "error"
)

// MetadataLookup resolves a title to TMDB metadata
type MetadataLookup interface {
	Configured() bool
	Lookup(ctx context.Context, mediaType models.MediaType, title string, year int) (*tmdb.Details, error)
}

// EnrichStore is the persistence needed by metadata enrichment
type EnrichStore interface {
	RunTransaction(fn func(tx *models.Tx) error) error
	GetMedia(uid, mediaID string) (*models.MediaRecord, error)
	GetTMDBCache(uid, key string) (*models.TMDBCacheRecord, error)
	PutTMDBCache(uid, key string, rec *models.TMDBCacheRecord) error
	FindMediaMissingTMDB(limit int) ([]*models.MediaRecord, error)
}

// EnrichItem names one media record to enrich
type EnrichItem struct {
	MediaID string           `json:"mediaId" validate:"required,docid"`
	Type    models.MediaType `json:"type" validate:"required,oneof=movie episode"`
	Title   string           `json:"title" validate:"required"`
	Year    *int             `json:"year"`
}

// EnrichRequest is a batch of 1 to 50 items
type EnrichRequest struct {
	Items []EnrichItem `json:"items" validate:"required,min=1,max=50,dive"`
}

// EnrichResult is the outcome for one item
type EnrichResult struct {
	MediaID string `json:"mediaId"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// EnrichController copies TMDB metadata onto media records
type EnrichController struct {
	store  EnrichStore
	tmdb   MetadataLookup
	cache  *gocache.Cache
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	logger *logrus.Logger
}

// NewEnrichController creates a new enrichment controller
func NewEnrichController(store EnrichStore, lookup MetadataLookup, logger *logrus.Logger) *EnrichController {
	return &EnrichController{
		store:  store,
		tmdb:   lookup,
		cache:  gocache.New(time.Hour, 10*time.Minute),
		now:    time.Now,
		sleep:  sleepContext,
		logger: logger,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// CacheKey identifies a title lookup: namespace, folded title and year
func CacheKey(mediaType models.MediaType, title string, year *int) string {
	yearPart := ""
	if year != nil {
		yearPart = strconv.Itoa(*year)
	}
	sum := sha1.Sum([]byte(string(mediaType.TMDBType()) + ":" + utils.FoldTitle(title) + ":" + yearPart))
	return hex.EncodeToString(sum[:])[:40]
}

// Enrich resolves each item against TMDB (through the caches) and merges
// the metadata into the user's media records
func (c *EnrichController) Enrich(ctx context.Context, uid string, req *EnrichRequest) ([]EnrichResult, error) {
	ctx, span := tracer.Start(ctx, "EnrichController.Enrich")
	defer span.End()

	if err := validateInput(req); err != nil {
		return nil, err
	}
	if c.tmdb == nil || !c.tmdb.Configured() {
		return nil, ErrTMDBNotConfigured
	}

	now := c.now().UTC()
	err := c.store.RunTransaction(func(tx *models.Tx) error {
		limit, err := tx.GetEnrichRateLimit(uid)
		if err != nil && !errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("failed to read rate limit: %w", err)
		}
		if limit.Active(now) {
			return ErrEnrichRateLimited
		}
		return tx.PutEnrichRateLimit(uid, &models.EnrichRateLimitRecord{
			LastCallAt:       now,
			RateLimitedUntil: now.Add(enrichCooldown),
		})
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	results := make([]EnrichResult, 0, len(req.Items))
	for _, item := range req.Items {
		result := c.enrichItem(ctx, uid, item)
		metrics.EnrichResults.WithLabelValues(result.Status).Inc()
		results = append(results, result)
	}

	span.SetAttributes(attribute.Int("items", len(results)))
	return results, nil
}

func (c *EnrichController) enrichItem(ctx context.Context, uid string, item EnrichItem) EnrichResult {
	result := EnrichResult{MediaID: item.MediaID}
	log := c.logger.WithFields(logrus.Fields{"uid": uid, "media_id": item.MediaID})

	media, err := c.store.GetMedia(uid, item.MediaID)
	if errors.Is(err, models.ErrNotFound) {
		result.Status = EnrichStatusError
		result.Message = "media not found"
		return result
	}
	if err != nil {
		log.WithError(err).Error("Failed to read media")
		result.Status = EnrichStatusError
		result.Message = "Failed to read media."
		return result
	}

	if media.TMDBID != nil && media.HasArtwork() {
		result.Status = EnrichStatusSkipped
		return result
	}

	cached, err := c.resolve(ctx, uid, item)
	if errors.Is(err, tmdb.ErrNotFound) {
		result.Status = EnrichStatusNotFound
		return result
	}
	if err != nil {
		log.WithError(err).Warn("TMDB lookup failed")
		result.Status = EnrichStatusError
		result.Message = "TMDB lookup failed."
		return result
	}

	err = c.store.RunTransaction(func(tx *models.Tx) error {
		current, err := tx.GetMedia(uid, item.MediaID)
		if err != nil {
			return err
		}
		applyEnrichment(current, cached, c.now().UTC())
		return tx.PutMedia(current)
	})
	if err != nil {
		log.WithError(err).Error("Failed to save enrichment")
		result.Status = EnrichStatusError
		result.Message = "Failed to save metadata."
		return result
	}

	result.Status = EnrichStatusEnriched
	return result
}

// resolve returns fresh metadata from the in-process cache, the stored
// cache, or TMDB, in that order
func (c *EnrichController) resolve(ctx context.Context, uid string, item EnrichItem) (*models.TMDBCacheRecord, error) {
	key := CacheKey(item.Type, item.Title, item.Year)
	l1Key := uid + ":" + key
	now := c.now().UTC()

	if hit, ok := c.cache.Get(l1Key); ok {
		if rec := hit.(*models.TMDBCacheRecord); rec.Fresh(now, tmdbCacheTTL) {
			return rec, nil
		}
	}

	stored, err := c.store.GetTMDBCache(uid, key)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		c.logger.WithError(err).Warn("Failed to read TMDB cache")
	}
	if stored.Fresh(now, tmdbCacheTTL) {
		c.cache.SetDefault(l1Key, stored)
		return stored, nil
	}

	year := 0
	if item.Year != nil {
		year = *item.Year
	}
	details, err := c.tmdb.Lookup(ctx, item.Type, item.Title, year)
	if err != nil {
		return nil, err
	}

	rec := &models.TMDBCacheRecord{
		TMDBID:       details.ID,
		TMDBType:     details.Type,
		Overview:     details.Overview,
		Genres:       details.Genres,
		ReleaseDate:  details.ReleaseDate,
		FirstAirDate: details.FirstAirDate,
		PosterPath:   details.PosterPath,
		BackdropPath: details.BackdropPath,
		VoteAverage:  details.VoteAverage,
		Language:     details.Language,
		CachedAt:     now,
	}
	if err := c.store.PutTMDBCache(uid, key, rec); err != nil {
		c.logger.WithError(err).Warn("Failed to store TMDB cache")
	}
	c.cache.SetDefault(l1Key, rec)

	return rec, nil
}

// applyEnrichment copies cached metadata onto media; values the cache
// lacks keep whatever the record already had
func applyEnrichment(media *models.MediaRecord, cached *models.TMDBCacheRecord, now time.Time) {
	id := cached.TMDBID
	tmdbType := cached.TMDBType
	media.TMDBID = &id
	media.TMDBType = &tmdbType
	media.Overview = coalesce(cached.Overview, media.Overview)
	media.ReleaseDate = coalesce(cached.ReleaseDate, media.ReleaseDate)
	media.FirstAirDate = coalesce(cached.FirstAirDate, media.FirstAirDate)
	media.Language = coalesce(cached.Language, media.Language)
	media.PosterURL = coalesce(tmdb.ImageURL(cached.PosterPath), media.PosterURL)
	media.BackdropURL = coalesce(tmdb.ImageURL(cached.BackdropPath), media.BackdropURL)
	if cached.VoteAverage != nil {
		media.VoteAverage = cached.VoteAverage
	}
	if cached.Genres != nil {
		media.Genres = cached.Genres
	}
	media.UpdatedAt = now
}

func coalesce(values ...*string) *string {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}

// BackfillSweep enriches media that still lack a tmdbId, across all users.
// Owners are processed one after another with a pause in between; an
// owner that fails is logged and skipped.
func (c *EnrichController) BackfillSweep(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "EnrichController.BackfillSweep")
	defer span.End()

	medias, err := c.store.FindMediaMissingTMDB(backfillLimit)
	if err != nil {
		return 0, fmt.Errorf("failed to find media missing metadata: %w", err)
	}

	var owners []string
	byOwner := make(map[string][]EnrichItem)
	for _, m := range medias {
		uid, ok := models.OwnerFromPath(m.DocPath)
		if !ok {
			continue
		}
		mediaType := models.MediaTypeMovie
		if m.Type == models.MediaTypeEpisode {
			mediaType = models.MediaTypeEpisode
		}
		title := m.Title
		if title == "" {
			title = m.Filename
		}
		if title == "" {
			title = "unknown"
		}
		if _, seen := byOwner[uid]; !seen {
			owners = append(owners, uid)
		}
		byOwner[uid] = append(byOwner[uid], EnrichItem{
			MediaID: m.MediaID,
			Type:    mediaType,
			Title:   title,
			Year:    m.Year,
		})
	}

	for i, uid := range owners {
		if i > 0 {
			if err := c.sleep(ctx, backfillPause); err != nil {
				return i, err
			}
		}

		items := byOwner[uid]
		if len(items) > backfillPerOwner {
			items = items[:backfillPerOwner]
		}

		log := c.logger.WithFields(logrus.Fields{"uid": uid, "items": len(items)})
		results, err := c.Enrich(ctx, uid, &EnrichRequest{Items: items})
		if err != nil {
			log.WithError(err).Warn("Skipping backfill for user")
			continue
		}
		metrics.BackfillOwners.Inc()

		enriched := 0
		for _, r := range results {
			if r.Status == EnrichStatusEnriched {
				enriched++
			}
		}
		log.WithField("enriched", enriched).Info("Backfilled TMDB metadata")
	}

	span.SetAttributes(attribute.Int("owners", len(owners)))
	return len(owners), nil
}

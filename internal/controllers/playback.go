package controllers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/privatecinema/internal/metrics"
	"github.com/amaumene/privatecinema/internal/models"
)

// finishDebounce is the window in which repeated finish reports count once
const finishDebounce = 60 * time.Second

// PlaybackStore is the persistence needed by playback reports
type PlaybackStore interface {
	RunTransaction(fn func(tx *models.Tx) error) error
}

// PlaybackReport is a progress or completion report from a player
type PlaybackReport struct {
	MediaID  string   `json:"mediaId" validate:"required,docid"`
	Position *float64 `json:"position" validate:"required,gte=0"`
	Duration float64  `json:"duration" validate:"gt=0"`
	Finished *bool    `json:"finished"`
}

// PlaybackController records playback progress and play counts
type PlaybackController struct {
	store  PlaybackStore
	now    func() time.Time
	logger *logrus.Logger
}

// NewPlaybackController creates a new playback controller
func NewPlaybackController(store PlaybackStore, logger *logrus.Logger) *PlaybackController {
	return &PlaybackController{
		store:  store,
		now:    time.Now,
		logger: logger,
	}
}

// FinishThreshold returns the position from which playback counts as
// finished: 90% of duration, at least 1
func FinishThreshold(duration float64) float64 {
	return math.Max(1, math.Floor(0.9*duration))
}

// Report applies one playback report for uid in a single transaction
func (c *PlaybackController) Report(ctx context.Context, uid string, report *PlaybackReport) error {
	_, span := tracer.Start(ctx, "PlaybackController.Report")
	defer span.End()

	if err := validateInput(report); err != nil {
		return err
	}

	position := *report.Position
	finished := (report.Finished != nil && *report.Finished) || position >= FinishThreshold(report.Duration)
	outcome := "progress"

	err := c.store.RunTransaction(func(tx *models.Tx) error {
		media, err := tx.GetMedia(uid, report.MediaID)
		if errors.Is(err, models.ErrNotFound) {
			return ErrMediaNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read media: %w", err)
		}

		now := c.now().UTC()
		if !finished {
			return tx.PutPlayback(uid, &models.PlaybackRecord{
				MediaID:      report.MediaID,
				LastPosition: position,
				Duration:     report.Duration,
				LastPlayedAt: now,
			})
		}

		if media.LastFinishedAt == nil || media.LastFinishedAt.Before(now.Add(-finishDebounce)) {
			media.PlayCount++
			outcome = "finished"
		} else {
			outcome = "finished_debounced"
		}
		finishedAt := now
		media.LastFinishedAt = &finishedAt
		if err := tx.PutMedia(media); err != nil {
			return fmt.Errorf("failed to update media: %w", err)
		}

		return tx.DeletePlayback(uid, report.MediaID)
	})
	if err != nil {
		span.RecordError(err)
		metrics.PlaybackReports.WithLabelValues("error").Inc()
		return err
	}

	metrics.PlaybackReports.WithLabelValues(outcome).Inc()
	c.logger.WithFields(logrus.Fields{
		"uid":      uid,
		"media_id": report.MediaID,
		"outcome":  outcome,
	}).Debug("Playback report applied")

	return nil
}

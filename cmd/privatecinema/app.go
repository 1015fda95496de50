package main

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/amaumene/privatecinema/internal/api"
	"github.com/amaumene/privatecinema/internal/config"
	"github.com/amaumene/privatecinema/internal/controllers"
	"github.com/amaumene/privatecinema/internal/models"
	"github.com/amaumene/privatecinema/internal/scheduler"
	"github.com/amaumene/privatecinema/internal/services/identity"
)

// App holds the wired service components
type App struct {
	DB        *models.Database
	Server    *api.Server
	Scheduler *scheduler.Scheduler
	Enrich    *controllers.EnrichController
	Verifier  *identity.Verifier
}

func provideDatabase(cfg *config.Config, logger *logrus.Logger) (*models.Database, func(), error) {
	db, err := models.NewDatabase(cfg.DatabaseFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	logger.WithField("path", cfg.DatabaseFile).Info("Database initialized")

	cleanup := func() {
		if err := db.Close(); err != nil {
			logger.WithError(err).Error("Failed to close database")
		}
	}
	return db, cleanup, nil
}

func provideVerifier(cfg *config.Config, logger *logrus.Logger) *identity.Verifier {
	return identity.NewVerifier(cfg.IDTokenSecret, cfg.IDTokenIssuer, logger)
}

func provideScheduler(backfill scheduler.Backfiller, cfg *config.Config, logger *logrus.Logger) *scheduler.Scheduler {
	return scheduler.NewScheduler(backfill, cfg.BackfillSchedule, logger)
}

//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"
	"github.com/sirupsen/logrus"

	"github.com/amaumene/privatecinema/internal/api"
	"github.com/amaumene/privatecinema/internal/config"
	"github.com/amaumene/privatecinema/internal/controllers"
	"github.com/amaumene/privatecinema/internal/models"
	"github.com/amaumene/privatecinema/internal/scheduler"
	"github.com/amaumene/privatecinema/internal/services/tmdb"
)

func initializeApp(cfg *config.Config, logger *logrus.Logger) (*App, func(), error) {
	wire.Build(
		provideDatabase,
		provideVerifier,
		tmdb.NewClient,
		wire.Bind(new(controllers.ClaimStore), new(*models.Database)),
		wire.Bind(new(controllers.IngestStore), new(*models.Database)),
		wire.Bind(new(controllers.PlaybackStore), new(*models.Database)),
		wire.Bind(new(controllers.EnrichStore), new(*models.Database)),
		wire.Bind(new(controllers.MetadataLookup), new(*tmdb.Client)),
		controllers.NewClaimController,
		controllers.NewIngestController,
		controllers.NewPlaybackController,
		controllers.NewEnrichController,
		wire.Bind(new(scheduler.Backfiller), new(*controllers.EnrichController)),
		provideScheduler,
		api.NewServer,
		wire.Struct(new(App), "*"),
	)
	return nil, nil, nil
}

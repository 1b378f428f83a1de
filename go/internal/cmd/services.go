package main

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/lopixlabs/polichrono/go/internal/gateway"
	"github.com/lopixlabs/polichrono/go/internal/speakers"
	"github.com/rs/zerolog/log"
)

type Services struct {
	Speakers *speakers.Service
	Gateway  *gateway.Service
}

func setupServices(ctx context.Context, config *Config) (*Services, error) {
	// Wire up dependency injection chain
	// Storage → App → Gateway (reads App) → Service (writes App, notifies Gateway)
	clock := clockwork.NewRealClock()

	repo := speakers.NewFileRepository(config.Storage.SpeakersFile)
	images := speakers.NewDiskImageStore(config.Storage.ImagesDir)
	app := speakers.NewApp(repo, images, clock, speakers.Defaults{
		AutoStop: config.Chrono.AutoStop,
		Title:    config.Chrono.Title,
	})

	// a broken file means starting empty
	if err := app.Load(ctx); err != nil {
		log.Error().Err(err).Str("path", config.Storage.SpeakersFile).Msg("failed to load speakers, starting empty")
	}

	gatewayConfig := gateway.DefaultConfig()
	gatewayConfig.Clock = clock
	if config.Nats.URL != "" {
		natsConfig := gateway.DefaultNatsConfig()
		natsConfig.URL = config.Nats.URL
		natsConfig.SubjectPrefix = config.Nats.SubjectPrefix
		gatewayConfig.Nats = &natsConfig
	}

	gatewayService, err := gateway.NewService(gatewayConfig, app)
	if err != nil {
		return nil, err
	}

	return &Services{
		Speakers: speakers.NewService(app, images, gatewayService),
		Gateway:  gatewayService,
	}, nil
}

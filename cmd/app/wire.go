//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"

	"github.com/yanqian/cycleroute/internal/bootstrap"
	"github.com/yanqian/cycleroute/internal/domain/planner"
	"github.com/yanqian/cycleroute/internal/infra/config"
	"github.com/yanqian/cycleroute/internal/infra/routing/ors"
	httpiface "github.com/yanqian/cycleroute/internal/interface/http"
)

func initializeApp() (*bootstrap.App, func(), error) {
	wire.Build(
		config.Load,
		provideLogger,
		providePlannerConfig,
		provideRoutingClient,
		provideCacheStore,
		provideWeatherClient,
		provideElevationService,
		provideChatGPTClient,
		provideNarrativeEngine,
		provideTokenCounter,
		provideHistoryStore,
		providePlanRepository,
		provideArchive,
		provideEventPublisher,
		providePlanSinks,
		planner.NewService,
		planner.NewHistoryService,
		wire.Bind(new(planner.RoutingClient), new(*ors.Client)),
		wire.Bind(new(planner.Geocoder), new(*ors.Client)),
		httpiface.NewHandler,
		httpiface.NewRouter,
		bootstrap.NewApp,
	)
	return nil, nil, nil
}

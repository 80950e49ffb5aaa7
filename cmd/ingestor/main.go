package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/ANIKETSHETTY47/containment-telemetry/internal/broker"
	"github.com/ANIKETSHETTY47/containment-telemetry/internal/config"
	"github.com/ANIKETSHETTY47/containment-telemetry/internal/database"
	httpHandlers "github.com/ANIKETSHETTY47/containment-telemetry/internal/http"
	"github.com/ANIKETSHETTY47/containment-telemetry/internal/metrics"
	"github.com/ANIKETSHETTY47/containment-telemetry/internal/repository"
	"github.com/ANIKETSHETTY47/containment-telemetry/internal/service"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	config.SetupLogging()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	settings, err := service.SettingsFromConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid engine settings")
	}

	db, err := database.Connect(ctx, config.DBDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}
	defer db.Close()

	clouds, err := service.CloudFromConfig(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("cloud services init failed")
	}

	m := metrics.New()
	client := broker.New(broker.Options{
		Broker:         config.MQTTBroker(),
		ClientIDPrefix: config.MQTTClientIDPrefix(),
		Username:       config.MQTTUsername(),
		Password:       config.MQTTPassword(),
		QoS:            config.MQTTQoS(),
		ConnectRetries: config.MQTTConnectRetries(),
		ConnectBackoff: config.MQTTConnectBackoff(),
	})
	client.OnConnectionChange(m.SetBrokerConnected)

	engine := service.New(repository.New(db), client, clouds, settings, m)
	if err := engine.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("engine start failed")
	}

	if err := client.Connect(ctx); err != nil {
		log.Fatal().Err(err).Msg("mqtt connect")
	}
	defer client.Disconnect()

	ops := fiber.New(fiber.Config{DisableStartupMessage: true})
	httpHandlers.RegisterOps(ops, client.IsConnected, m.Registry())

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(gctx) })
	g.Go(func() error {
		log.Info().Str("addr", config.OpsAddr()).Msg("ops endpoint listening")
		return ops.Listen(config.OpsAddr())
	})
	g.Go(func() error {
		<-gctx.Done()
		return ops.ShutdownWithTimeout(5 * time.Second)
	})

	log.Info().Int("workers", settings.Workers).Msg("ingestor running; Ctrl+C to stop")
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("ingestor exit")
	}
	log.Info().Msg("ingestor stopped")
}

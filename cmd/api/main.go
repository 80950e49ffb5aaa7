package main

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/ANIKETSHETTY47/containment-telemetry/internal/config"
	"github.com/ANIKETSHETTY47/containment-telemetry/internal/database"
	httpHandlers "github.com/ANIKETSHETTY47/containment-telemetry/internal/http"
	"github.com/ANIKETSHETTY47/containment-telemetry/internal/repository"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	config.SetupLogging()

	db, err := database.Connect(context.Background(), config.DBDSN())
	if err != nil {
		log.Fatal().Err(err).Msg("db connect failed")
	}
	defer db.Close()

	app := fiber.New()
	httpHandlers.Register(app, repository.New(db))

	addr := config.APIAddr()
	log.Info().Str("addr", addr).Msg("api listening")
	log.Fatal().Err(app.Listen(addr)).Msg("server exit")
}

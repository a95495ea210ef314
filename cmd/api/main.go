package main

import (
	"context"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/jun/vidshare/internal/app"
	"github.com/jun/vidshare/internal/config"
	"github.com/jun/vidshare/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger := logging.New(cfg.Log)

	application, err := app.NewApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
	}
	lambda.Start(application.HandleRequest)
}

package main

import (
	"github.com/egt-labs/egt-gpt/internal/config"
	"github.com/egt-labs/egt-gpt/internal/conversation"
	"github.com/egt-labs/egt-gpt/internal/db"
	"github.com/egt-labs/egt-gpt/internal/httpapi"
	"github.com/egt-labs/egt-gpt/internal/logging"
	"github.com/egt-labs/egt-gpt/internal/models"
	"github.com/egt-labs/egt-gpt/internal/store/docstore"
	"github.com/egt-labs/egt-gpt/internal/store/rabbitmq"
	"github.com/egt-labs/egt-gpt/internal/store/redisstore"
)

func main() {
	logger := logging.New("server")
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)
	if err := docstore.Migrate(gdb); err != nil {
		logger.Fatal().Err(err).Msg("migrate documents")
	}
	if err := gdb.AutoMigrate(&models.User{}, &conversation.RetitleJob{}); err != nil {
		logger.Fatal().Err(err).Msg("migrate tables")
	}

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()

	// The retitle queue is optional; without it fallback titles just stay.
	var publisher conversation.JobPublisher
	if pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue); err != nil {
		logger.Warn().Err(err).Msg("rabbitmq unavailable, retitle jobs disabled")
	} else {
		publisher = pub
		defer pub.Close()
	}

	r := httpapi.NewRouter(gdb, cfg, rds, publisher, logger)

	logger.Info().Str("addr", cfg.HTTPAddr).Bool("auth", cfg.AuthEnabled).Bool("stream", cfg.StreamEnabled).Msg("server starting")
	if err := r.Run(cfg.HTTPAddr); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}

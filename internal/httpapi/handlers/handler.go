package handlers

import (
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/egt-labs/egt-gpt/internal/ai"
	"github.com/egt-labs/egt-gpt/internal/config"
	"github.com/egt-labs/egt-gpt/internal/conversation"
	"github.com/egt-labs/egt-gpt/internal/history"
	"github.com/egt-labs/egt-gpt/internal/prompts"
	"github.com/egt-labs/egt-gpt/internal/store/docstore"
)

type Handler struct {
	DB      *gorm.DB
	Cfg     config.Config
	ChatSvc *conversation.Service
	Prompts *prompts.Store
	Logger  zerolog.Logger
}

func NewHandler(db *gorm.DB, cfg config.Config, publisher conversation.JobPublisher, logger zerolog.Logger) *Handler {
	docs := docstore.NewStore(db)
	hist := history.NewStore(docs)

	provider := ai.NewOpenAIProvider(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.ChatTimeout)

	models := ai.NewModelTable(cfg.DefaultDeployment)
	models.Register("gpt-4", cfg.GPT4Deployment)
	models.Register("gpt-3.5-turbo", cfg.GPT35Deployment)
	models.Register("gpt-35-turbo-16k", cfg.GPT35Deployment)

	params := ai.GenerationParams{
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		TopP:        cfg.TopP,
		Stop:        cfg.StopSequence,
		Stream:      cfg.StreamEnabled,
	}

	svc := conversation.NewService(hist, provider, models, params, cfg.SystemMessage, cfg.TitleMaxTokens, logger)
	if publisher != nil {
		svc = svc.WithRetitleJobs(conversation.NewJobRepo(db), publisher)
	}

	return &Handler{DB: db, Cfg: cfg, ChatSvc: svc, Prompts: prompts.NewStore(docs), Logger: logger}
}

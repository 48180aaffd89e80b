package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/egt-labs/egt-gpt/internal/common"
	"github.com/egt-labs/egt-gpt/internal/config"
	"github.com/egt-labs/egt-gpt/internal/conversation"
	"github.com/egt-labs/egt-gpt/internal/httpapi/handlers"
	"github.com/egt-labs/egt-gpt/internal/httpapi/middleware"
	"github.com/egt-labs/egt-gpt/internal/identity"
	"github.com/egt-labs/egt-gpt/internal/store/redisstore"
)

func NewRouter(db *gorm.DB, cfg config.Config, rds *redisstore.Store, publisher conversation.JobPublisher, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger())
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, "method not allowed")
	})

	h := handlers.NewHandler(db, cfg, publisher, logger)

	// Which resolver runs is decided here, by configuration, never by the
	// shape of an individual request.
	var resolver identity.Resolver
	if cfg.AuthEnabled {
		resolver = identity.NewTokenResolver(cfg.JWTSecret, rds, cfg.PrincipalCacheTTL)
	} else {
		resolver = identity.NewStaticResolver(cfg.DevPrincipalID, cfg.DevPrincipalName)
	}

	r.GET("/ping", h.Ping)
	r.GET("/frontend_settings", h.FrontendSettings)
	r.POST("/users", h.CreateUser)
	r.POST("/login", h.Login)

	authed := r.Group("/")
	authed.Use(middleware.Identity(resolver))
	authed.GET("/me", h.Me)
	authed.POST("/conversation", h.Conversation)

	hist := authed.Group("/history")
	hist.POST("/generate", h.HistoryGenerate)
	hist.POST("/update", h.HistoryUpdate)
	hist.GET("/list", h.HistoryList)
	hist.POST("/read", h.HistoryRead)
	hist.POST("/rename", h.HistoryRename)
	hist.DELETE("/delete", h.HistoryDelete)
	hist.DELETE("/delete_all", h.HistoryDeleteAll)
	hist.POST("/clear", h.HistoryClear)
	hist.POST("/message_feedback", h.HistoryMessageFeedback)
	hist.GET("/ensure", h.HistoryEnsure)

	// prompt library; edit/delete sit at the root, matching the client
	authed.POST("/prompt/add", h.PromptAdd)
	authed.GET("/prompt/get_prompts", h.PromptList)
	authed.POST("/edit_prompt", h.PromptEdit)
	authed.POST("/delete_prompt", h.PromptDelete)

	return r
}

package api

import (
	"log/slog"

	"stridebot/internal/api/handlers"
	"stridebot/internal/api/middleware"
	"stridebot/internal/storage"
	"stridebot/internal/stride"

	"github.com/gin-gonic/gin"
)

// glanceLabel is the initial badge text shown before any state update
const glanceLabel = "Click me!"

// RouterConfig holds dependencies for the API router
type RouterConfig struct {
	Storage      storage.Storage
	Client       *stride.Client
	ClientSecret string
	ConfigKey    string
	GlanceKey    string
	Logger       *slog.Logger
}

// NewRouter creates and configures the Gin router
func NewRouter(config RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery(config.Logger))
	router.Use(middleware.Logging(config.Logger))

	// Health check (no auth)
	healthHandler := handlers.NewHealthHandler()
	router.GET("/health", healthHandler.GetHealth)

	// Installation lifecycle callbacks
	lifecycleHandler := handlers.NewLifecycleHandler(config.Storage, config.Client, config.Logger)
	router.POST("/installed", middleware.ContentType(), lifecycleHandler.Installed)
	router.POST("/uninstalled", middleware.ContentType(), lifecycleHandler.Uninstalled)

	// Webhook and module routes: every call must carry a token signed
	// with the client secret
	webhookAuth := middleware.WebhookAuth(config.ClientSecret, config.Logger)

	mentionHandler := handlers.NewBotMentionHandler(config.Client, config.Logger)
	router.POST("/bot-mention", webhookAuth, middleware.ContentType(), mentionHandler.Mention)

	eventHandler := handlers.NewEventHandler(config.Client, config.Logger)
	router.POST("/conversation-updated", webhookAuth, middleware.ContentType(), eventHandler.ConversationUpdated)
	router.POST("/roster-updated", webhookAuth, middleware.ContentType(), eventHandler.RosterUpdated)
	router.POST("/ui/ping", webhookAuth, eventHandler.Ping)

	module := router.Group("/module")
	module.Use(webhookAuth)
	{
		glanceHandler := handlers.NewGlanceHandler(glanceLabel)
		module.GET("/glance/state", glanceHandler.GetState)

		configHandler := handlers.NewConfigModuleHandler(
			config.Storage,
			config.Client,
			config.ConfigKey,
			config.GlanceKey,
			config.Logger,
		)
		module.GET("/config/state", configHandler.GetState)
		module.GET("/config/content", configHandler.GetContent)
		module.POST("/config/content", middleware.ContentType(), configHandler.SaveContent)
	}

	return router
}

package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"stridebot/internal/api/middleware"
	"stridebot/internal/storage"
	"stridebot/internal/stride"

	"github.com/gin-gonic/gin"
)

// defaultNotificationLevel is returned before a conversation has been
// configured
const defaultNotificationLevel = "NONE"

// ConfigModuleHandler serves the configuration dialog's state and content
type ConfigModuleHandler struct {
	storage   storage.Storage
	client    *stride.Client
	configKey string
	glanceKey string
	logger    *slog.Logger
}

// NewConfigModuleHandler creates a new configuration module handler
func NewConfigModuleHandler(storage storage.Storage, client *stride.Client, configKey, glanceKey string, logger *slog.Logger) *ConfigModuleHandler {
	return &ConfigModuleHandler{
		storage:   storage,
		client:    client,
		configKey: configKey,
		glanceKey: glanceKey,
		logger:    logger,
	}
}

// GetState reports whether the app is configured for the conversation
// GET /module/config/state
func (h *ConfigModuleHandler) GetState(c *gin.Context) {
	callContext, ok := middleware.CallContextFrom(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{
			"error": "missing call context",
			"code":  "AUTH_REQUIRED",
		})
		return
	}

	config, err := h.storage.GetConversationConfig(c.Request.Context(), callContext.ConversationID)
	if err != nil {
		h.internalError(c, "Failed to look up conversation config", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"configured": config != nil})
}

// GetContent returns the saved configuration for the dialog
// GET /module/config/content
func (h *ConfigModuleHandler) GetContent(c *gin.Context) {
	callContext, ok := middleware.CallContextFrom(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{
			"error": "missing call context",
			"code":  "AUTH_REQUIRED",
		})
		return
	}

	config, err := h.storage.GetConversationConfig(c.Request.Context(), callContext.ConversationID)
	if err != nil {
		h.internalError(c, "Failed to look up conversation config", err)
		return
	}

	level := defaultNotificationLevel
	if config != nil {
		level = config.NotificationLevel
	}

	c.JSON(http.StatusOK, gin.H{"notificationLevel": level})
}

// saveContentRequest is the body posted by the configuration dialog
type saveContentRequest struct {
	NotificationLevel string `json:"notificationLevel"`
}

// SaveContent persists the configuration and reports the configured state
// back to the platform
// POST /module/config/content
func (h *ConfigModuleHandler) SaveContent(c *gin.Context) {
	callContext, ok := middleware.CallContextFrom(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{
			"error": "missing call context",
			"code":  "AUTH_REQUIRED",
		})
		return
	}

	var req saveContentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
			"code":  "INVALID_REQUEST",
		})
		return
	}
	if req.NotificationLevel == "" {
		req.NotificationLevel = defaultNotificationLevel
	}

	ctx := c.Request.Context()

	config := &storage.ConversationConfig{
		ConversationID:    callContext.ConversationID,
		NotificationLevel: req.NotificationLevel,
		UpdatedAt:         time.Now().UTC(),
	}
	if err := h.storage.SaveConversationConfig(ctx, config); err != nil {
		h.internalError(c, "Failed to save conversation config", err)
		return
	}

	h.logger.Info("Conversation configured",
		"component", "api",
		"conversation_id", callContext.ConversationID,
		"notification_level", req.NotificationLevel,
	)

	if err := h.client.UpdateConfigurationState(ctx, callContext.CloudID, callContext.ConversationID, h.configKey, true); err != nil {
		h.logger.Error("Failed to update configuration state",
			"component", "api",
			"conversation_id", callContext.ConversationID,
			"error", err,
		)
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Failed to reach the chat platform",
			"code":  "UPSTREAM_ERROR",
		})
		return
	}

	// Refresh the glance badge to show the chosen level. A failed refresh
	// is logged but doesn't fail the save.
	label := "Notifications: " + req.NotificationLevel
	if err := h.client.UpdateGlanceState(ctx, callContext.CloudID, callContext.ConversationID, h.glanceKey, label); err != nil {
		h.logger.Error("Failed to update glance state",
			"component", "api",
			"conversation_id", callContext.ConversationID,
			"error", err,
		)
	}

	c.Status(http.StatusNoContent)
}

func (h *ConfigModuleHandler) internalError(c *gin.Context, msg string, err error) {
	h.logger.Error(msg,
		"component", "api",
		"request_id", c.GetString(middleware.RequestIDKey),
		"error", err,
	)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "Internal server error",
		"code":  "INTERNAL_ERROR",
	})
}

package handlers

import (
	"log/slog"
	"net/http"

	"stridebot/internal/api/middleware"
	"stridebot/internal/stride"

	"github.com/gin-gonic/gin"
)

// BotMentionHandler answers messages that mention the bot
type BotMentionHandler struct {
	client *stride.Client
	logger *slog.Logger
}

// NewBotMentionHandler creates a new bot mention handler
func NewBotMentionHandler(client *stride.Client, logger *slog.Logger) *BotMentionHandler {
	return &BotMentionHandler{
		client: client,
		logger: logger,
	}
}

// Mention replies in the conversation, mentioning the sender. The cloud
// and conversation IDs come from the verified token, not the payload.
// POST /bot-mention
func (h *BotMentionHandler) Mention(c *gin.Context) {
	callContext, ok := middleware.CallContextFrom(c)
	if !ok {
		// WebhookAuth guarantees the context; reaching this means the
		// route is miswired
		c.JSON(http.StatusForbidden, gin.H{
			"error": "missing call context",
			"code":  "AUTH_REQUIRED",
		})
		return
	}

	var payload stride.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
			"code":  "INVALID_REQUEST",
		})
		return
	}

	senderID := payload.Sender.ID
	if senderID == "" {
		senderID = callContext.UserID
	}

	h.logger.Info("Bot mentioned",
		"component", "api",
		"request_id", c.GetString(middleware.RequestIDKey),
		"cloud_id", callContext.CloudID,
		"conversation_id", callContext.ConversationID,
		"sender_id", senderID,
	)

	ctx := c.Request.Context()

	document, err := h.client.CreateDocMentioningUser(ctx, callContext.CloudID, senderID, "Hey {{MENTION}}, what's up?")
	if err != nil {
		// Fall back to plain text when the user lookup fails
		h.logger.Warn("Failed to build mention reply",
			"component", "api",
			"sender_id", senderID,
			"error", err,
		)
		if _, err := h.client.SendTextMessage(ctx, callContext.CloudID, callContext.ConversationID, "Hey, what's up?"); err != nil {
			h.replyFailed(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
		return
	}

	if _, err := h.client.SendMessage(ctx, callContext.CloudID, callContext.ConversationID, document); err != nil {
		h.replyFailed(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *BotMentionHandler) replyFailed(c *gin.Context, err error) {
	h.logger.Error("Failed to send reply",
		"component", "api",
		"request_id", c.GetString(middleware.RequestIDKey),
		"error", err,
	)
	c.JSON(http.StatusBadGateway, gin.H{
		"error": "Failed to reach the chat platform",
		"code":  "UPSTREAM_ERROR",
	})
}

package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"stridebot/internal/api/middleware"
	"stridebot/internal/stride"

	"github.com/gin-gonic/gin"
)

// EventHandler answers conversation lifecycle webhooks and calls from the
// app's own frontend
type EventHandler struct {
	client *stride.Client
	logger *slog.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler(client *stride.Client, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		client: client,
		logger: logger,
	}
}

// conversationEvent is the body of conversation-updated and
// roster-updated webhooks. The action payload varies by event and is
// logged as-is.
type conversationEvent struct {
	Conversation struct {
		ID string `json:"id"`
	} `json:"conversation"`
	Action json.RawMessage `json:"action"`
}

// ConversationUpdated records a change to a conversation the app is in
// POST /conversation-updated
func (h *EventHandler) ConversationUpdated(c *gin.Context) {
	var event conversationEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
			"code":  "INVALID_REQUEST",
		})
		return
	}

	h.logger.Info("Conversation updated",
		"component", "api",
		"request_id", c.GetString(middleware.RequestIDKey),
		"conversation_id", event.Conversation.ID,
		"action", string(event.Action),
	)

	c.Status(http.StatusOK)
}

// RosterUpdated records a user joining or leaving a conversation
// POST /roster-updated
func (h *EventHandler) RosterUpdated(c *gin.Context) {
	var event conversationEvent
	if err := c.ShouldBindJSON(&event); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
			"code":  "INVALID_REQUEST",
		})
		return
	}

	h.logger.Info("Roster updated",
		"component", "api",
		"request_id", c.GetString(middleware.RequestIDKey),
		"conversation_id", event.Conversation.ID,
		"action", string(event.Action),
	)

	c.Status(http.StatusOK)
}

// Ping answers a call from the app frontend by posting "Pong" into the
// conversation identified by the verified token. The frontend gets a 200
// either way; the status field reports whether the message went out.
// POST /ui/ping
func (h *EventHandler) Ping(c *gin.Context) {
	callContext, ok := middleware.CallContextFrom(c)
	if !ok {
		c.JSON(http.StatusForbidden, gin.H{
			"error": "missing call context",
			"code":  "AUTH_REQUIRED",
		})
		return
	}

	if _, err := h.client.SendTextMessage(c.Request.Context(), callContext.CloudID, callContext.ConversationID, "Pong"); err != nil {
		h.logger.Error("Failed to answer frontend ping",
			"component", "api",
			"request_id", c.GetString(middleware.RequestIDKey),
			"conversation_id", callContext.ConversationID,
			"error", err,
		)
		c.JSON(http.StatusOK, gin.H{"status": "Failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "Pong"})
}

package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"stridebot/internal/idgen"
	"stridebot/internal/storage"
	"stridebot/internal/stride"

	"github.com/gin-gonic/gin"
)

const welcomeText = "Hi there! Thanks for adding me to this conversation. To see me in action, just mention me in a message."

// LifecycleHandler handles app install/uninstall callbacks
type LifecycleHandler struct {
	storage storage.Storage
	client  *stride.Client
	logger  *slog.Logger
}

// NewLifecycleHandler creates a new lifecycle handler
func NewLifecycleHandler(storage storage.Storage, client *stride.Client, logger *slog.Logger) *LifecycleHandler {
	return &LifecycleHandler{
		storage: storage,
		client:  client,
		logger:  logger,
	}
}

// installedRequest is the context Stride sends when the app is installed
// in a conversation
type installedRequest struct {
	CloudID    string `json:"cloudId"`
	ResourceID string `json:"resourceId"`
	UserID     string `json:"userId"`
}

// Installed records the installation and greets the conversation
// POST /installed
func (h *LifecycleHandler) Installed(c *gin.Context) {
	var req installedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
			"code":  "INVALID_REQUEST",
		})
		return
	}
	if req.CloudID == "" || req.ResourceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "cloudId and resourceId are required",
			"code":  "INVALID_REQUEST",
		})
		return
	}

	ctx := c.Request.Context()

	existing, err := h.storage.GetInstallation(ctx, req.ResourceID)
	if err != nil {
		h.logger.Error("Failed to look up installation",
			"component", "api",
			"conversation_id", req.ResourceID,
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Internal server error",
			"code":  "INTERNAL_ERROR",
		})
		return
	}

	if existing == nil {
		installation := &storage.Installation{
			ID:             idgen.NewInstallation(),
			CloudID:        req.CloudID,
			ConversationID: req.ResourceID,
			InstalledBy:    req.UserID,
			InstalledAt:    time.Now().UTC(),
		}
		if err := h.storage.SaveInstallation(ctx, installation); err != nil {
			h.logger.Error("Failed to save installation",
				"component", "api",
				"conversation_id", req.ResourceID,
				"error", err,
			)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Internal server error",
				"code":  "INTERNAL_ERROR",
			})
			return
		}
		h.logger.Info("App installed in conversation",
			"component", "api",
			"cloud_id", req.CloudID,
			"conversation_id", req.ResourceID,
			"installed_by", req.UserID,
		)
	} else {
		h.logger.Info("App already installed in conversation",
			"component", "api",
			"conversation_id", req.ResourceID,
		)
	}

	// Announce the app is ready. A failed announcement is logged but
	// doesn't fail the installation.
	if _, err := h.client.SendTextMessage(ctx, req.CloudID, req.ResourceID, welcomeText); err != nil {
		h.logger.Error("Failed to send welcome message",
			"component", "api",
			"conversation_id", req.ResourceID,
			"error", err,
		)
	}

	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// uninstalledRequest is the context Stride sends when the app is removed
type uninstalledRequest struct {
	ResourceID string `json:"resourceId"`
}

// Uninstalled removes the installation record
// POST /uninstalled
func (h *LifecycleHandler) Uninstalled(c *gin.Context) {
	var req uninstalledRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ResourceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "resourceId is required",
			"code":  "INVALID_REQUEST",
		})
		return
	}

	// The app can't message the conversation anymore at this point
	if err := h.storage.DeleteInstallation(c.Request.Context(), req.ResourceID); err != nil {
		h.logger.Error("Failed to delete installation",
			"component", "api",
			"conversation_id", req.ResourceID,
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Internal server error",
			"code":  "INTERNAL_ERROR",
		})
		return
	}

	h.logger.Info("App uninstalled from conversation",
		"component", "api",
		"conversation_id", req.ResourceID,
	)

	c.Status(http.StatusNoContent)
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GlanceHandler serves the initial glance state queried when a user opens
// a conversation where the app is installed
type GlanceHandler struct {
	label string
}

// NewGlanceHandler creates a new glance handler
func NewGlanceHandler(label string) *GlanceHandler {
	return &GlanceHandler{label: label}
}

// GetState returns the glance label
// GET /module/glance/state
func (h *GlanceHandler) GetState(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"label": gin.H{
			"value": h.label,
		},
	})
}

package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"stridebot/internal/stride"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// CallContextKey is the gin context key under which the verified call
// context is stored.
const CallContextKey = "stride_call_context"

// webhookClaims are the claims Stride signs into the token it sends with
// every webhook, glance and configuration call.
type webhookClaims struct {
	Context struct {
		CloudID    string `json:"cloudId"`
		ResourceID string `json:"resourceId"`
	} `json:"context"`
	jwt.RegisteredClaims
}

// WebhookAuth verifies the JWT Stride attaches to inbound calls, using
// the app's client secret as the HS256 key. The token comes from the
// "jwt" query parameter or the Authorization Bearer header. Any failure
// rejects the request with 403 before the handler runs; on success the
// call context (cloudId, conversationId, userId) is set in the gin
// context.
func WebhookAuth(clientSecret string, logger *slog.Logger) gin.HandlerFunc {
	secret := []byte(clientSecret)

	return func(c *gin.Context) {
		encoded := tokenFromRequest(c)
		if encoded == "" {
			logger.Warn("Webhook call without token",
				"component", "api",
				"request_id", c.GetString(RequestIDKey),
				"path", c.Request.URL.Path,
			)
			c.JSON(http.StatusForbidden, gin.H{
				"error": "missing token",
				"code":  "AUTH_REQUIRED",
			})
			c.Abort()
			return
		}

		claims := &webhookClaims{}
		parsed, err := jwt.ParseWithClaims(encoded, claims, func(t *jwt.Token) (interface{}, error) {
			// Claims are only trusted once the signature check against
			// the configured secret passes
			if t.Method != jwt.SigningMethodHS256 {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return secret, nil
		})
		if err != nil || !parsed.Valid {
			logger.Warn("Webhook call with invalid token",
				"component", "api",
				"request_id", c.GetString(RequestIDKey),
				"path", c.Request.URL.Path,
				"error", err,
			)
			c.JSON(http.StatusForbidden, gin.H{
				"error": "invalid token",
				"code":  "INVALID_TOKEN",
			})
			c.Abort()
			return
		}

		c.Set(CallContextKey, stride.CallContext{
			CloudID:        claims.Context.CloudID,
			ConversationID: claims.Context.ResourceID,
			UserID:         claims.Subject,
		})

		c.Next()
	}
}

// CallContextFrom returns the verified call context set by WebhookAuth.
func CallContextFrom(c *gin.Context) (stride.CallContext, bool) {
	value, ok := c.Get(CallContextKey)
	if !ok {
		return stride.CallContext{}, false
	}
	callContext, ok := value.(stride.CallContext)
	return callContext, ok
}

// tokenFromRequest extracts the encoded token from the "jwt" query
// parameter or the Authorization header
func tokenFromRequest(c *gin.Context) string {
	if token := c.Query("jwt"); token != "" {
		return token
	}

	auth := c.GetHeader("Authorization")
	const bearerPrefix = "Bearer "
	if strings.HasPrefix(auth, bearerPrefix) {
		return strings.TrimPrefix(auth, bearerPrefix)
	}
	return ""
}

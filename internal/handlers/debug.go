package handlers

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"messaging-service/internal/telemetry"
	"messaging-service/internal/ws"
)

// RegisterDebugRoutes wires debug-only endpoints. They sit behind auth and
// are off unless enabled.
func RegisterDebugRoutes(router gin.IRouter, auth gin.HandlerFunc, hub *ws.Hub, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	debug := router.Group("/debug", auth)
	debug.GET("/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		emitter.Emit(c.Request.Context(), "INFO", "audit test", requestIDFromContext(c), userIDFromContext(c))
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	debug.GET("/presence/:user_id", func(c *gin.Context) {
		userID, ok := parseID(c, "user_id")
		if !ok {
			return
		}
		resp := gin.H{"user_id": userID, "online": false}
		if conn, online := hub.Connection(userID); online {
			resp["online"] = true
			resp["conn_id"] = conn.ID()
		}
		c.JSON(http.StatusOK, resp)
	})

	debug.GET("/rooms/:chat_id", func(c *gin.Context) {
		chatID, ok := parseID(c, "chat_id")
		if !ok {
			return
		}
		members := hub.Members(chatID)
		sort.Strings(members)
		c.JSON(http.StatusOK, gin.H{"chat_id": chatID, "members": members})
	})
}

package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fixora-chat-service/internal/chat"
	"fixora-chat-service/internal/middleware"
	"fixora-chat-service/internal/telemetry"
)

// RegisterDebugRoutes wires debug-only endpoints: the audit-pipeline check
// and the unread-counter repair operation.
func RegisterDebugRoutes(router *gin.Engine, service *chat.Service, emitter *telemetry.AuditEmitter, enabled bool) {
	if !enabled {
		return
	}

	router.GET("/debug/audit-test", func(c *gin.Context) {
		if emitter == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit emitter not configured"})
			return
		}
		userID := middleware.UserID(c)
		emitter.Emit(c.Request.Context(), "audit_test", 0, "debug probe", requestIDFromContext(c), &userID)
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// The unread counters are maintained incrementally; this rebuilds them
	// from the message log when they drift.
	router.POST("/debug/rooms/:room_id/recompute-unread", func(c *gin.Context) {
		roomID, err := strconv.ParseInt(c.Param("room_id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
			return
		}
		room, err := service.RecomputeUnread(c.Request.Context(), roomID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"room_id":         room.ID,
			"unread_customer": room.UnreadCustomer,
			"unread_partner":  room.UnreadPartner,
		})
	})
}

package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"fixora-chat-service/internal/chat"
	"fixora-chat-service/internal/middleware"
	"fixora-chat-service/internal/models"
	"fixora-chat-service/internal/telemetry"
)

// ChatHandler exposes the REST side of the chat core. The websocket layer
// shares the same service, so both surfaces enforce identical membership
// gates and produce identical fanout.
type ChatHandler struct {
	service *chat.Service
	audit   *telemetry.AuditEmitter
	logger  *zap.Logger
}

// NewChatHandler builds a ChatHandler.
func NewChatHandler(service *chat.Service, audit *telemetry.AuditEmitter, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{service: service, audit: audit, logger: logger}
}

// GetOrCreateRoom handles GET /chat/booking/:booking_id. The room for the
// booking is created lazily on first access by either participant.
func (h *ChatHandler) GetOrCreateRoom(c *gin.Context) {
	bookingID, err := strconv.ParseInt(c.Param("booking_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid booking id"})
		return
	}
	userID := middleware.UserID(c)

	room, created, err := h.service.GetOrCreateRoom(c.Request.Context(), bookingID, userID)
	if err != nil {
		h.writeError(c, err, "could not open chat room")
		return
	}

	if created {
		h.emitAudit(c, "room_created", room.RoomID)
	}
	c.JSON(http.StatusOK, gin.H{"room": room})
}

// ListRooms handles GET /chat/rooms.
func (h *ChatHandler) ListRooms(c *gin.Context) {
	userID := middleware.UserID(c)

	rooms, err := h.service.ListRooms(c.Request.Context(), userID)
	if err != nil {
		h.writeError(c, err, "failed to load chat rooms")
		return
	}
	c.JSON(http.StatusOK, gin.H{"rooms": rooms})
}

// GetMessages handles GET /chat/rooms/:room_id/messages?page&limit; the page
// comes back in chronological order regardless of how storage pages it.
func (h *ChatHandler) GetMessages(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	userID := middleware.UserID(c)

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(chat.DefaultPageSize)))

	history, err := h.service.ListPage(c.Request.Context(), roomID, userID, page, limit)
	if err != nil {
		h.writeError(c, err, "failed to load messages")
		return
	}
	c.JSON(http.StatusOK, history)
}

// PostMessage handles POST /chat/rooms/:room_id/messages. Clients normally
// send over the socket; this path keeps sending possible while reconnecting.
func (h *ChatHandler) PostMessage(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	userID := middleware.UserID(c)

	var req struct {
		Content     string              `json:"content" binding:"required"`
		Type        models.MessageType  `json:"type"`
		Attachments []models.Attachment `json:"attachments"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.service.Send(c.Request.Context(), roomID, userID, req.Content, req.Type, req.Attachments)
	if err != nil {
		h.writeError(c, err, "failed to send message")
		return
	}

	h.emitAudit(c, "message_sent", roomID)
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// MarkRead handles PATCH /chat/rooms/:room_id/read. Omitting message_ids
// acknowledges everything unread that the caller did not send.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	userID := middleware.UserID(c)

	var req struct {
		MessageIDs []int64 `json:"message_ids"`
	}
	// An empty body is valid: it means "mark everything".
	_ = c.ShouldBindJSON(&req)

	readIDs, err := h.service.MarkRead(c.Request.Context(), roomID, userID, req.MessageIDs)
	if err != nil {
		h.writeError(c, err, "failed to mark messages read")
		return
	}
	if readIDs == nil {
		readIDs = []int64{}
	}
	c.JSON(http.StatusOK, gin.H{"message_ids": readIDs})
}

// DeleteRoom handles DELETE /chat/rooms/:room_id: a soft delete. History is
// preserved and remains readable through GetMessages.
func (h *ChatHandler) DeleteRoom(c *gin.Context) {
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	userID := middleware.UserID(c)

	if err := h.service.SetActive(c.Request.Context(), roomID, userID, false); err != nil {
		h.writeError(c, err, "could not delete chat room")
		return
	}

	h.emitAudit(c, "room_closed", roomID)
	c.Status(http.StatusNoContent)
}

func (h *ChatHandler) writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, chat.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, chat.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("chat request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

func (h *ChatHandler) emitAudit(c *gin.Context, event string, roomID int64) {
	if h.audit == nil {
		return
	}
	userID := middleware.UserID(c)
	h.audit.Emit(c.Request.Context(), event, roomID, "", requestIDFromContext(c), &userID)
}

func roomIDParam(c *gin.Context) (int64, bool) {
	roomID, err := strconv.ParseInt(c.Param("room_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid room id"})
		return 0, false
	}
	return roomID, true
}

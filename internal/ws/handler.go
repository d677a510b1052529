package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"fixora-chat-service/internal/auth"
	"fixora-chat-service/internal/chat"
	"fixora-chat-service/internal/observability"
)

// Handler upgrades and authenticates chat websocket connections.
type Handler struct {
	hub      *Hub
	service  *chat.Service
	verifier auth.Verifier
	logger   *zap.Logger
}

// NewHandler constructs a websocket Handler.
func NewHandler(hub *Hub, service *chat.Service, verifier auth.Verifier, logger *zap.Logger) *Handler {
	return &Handler{hub: hub, service: service, verifier: verifier, logger: logger}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handle validates the bearer credential exactly once, upgrades the
// connection and registers it on the user's personal channel. An invalid
// credential refuses the connection; no partial session is retained.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("fixora-chat-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	identity, err := h.verifier.Verify(bearerToken(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	connID := uuid.NewString()
	client := NewClient(h.hub, conn, h.service, identity.UserID, identity.Role, connID, h.logger)
	h.hub.Register(client)

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	connectedAt := time.Now()

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	_ = observability.PublishEvent(ctx, "ws_events.chat", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload: map[string]interface{}{
			"conn_id":   connID,
			"user_id":   identity.UserID,
			"role":      identity.Role,
			"device_id": observability.DeviceIDFromRequest(c.Request),
			"ip":        observability.IPFromRequest(c.Request),
		},
	}, observability.BuildHeaders(requestID, traceID))

	go func() {
		defer func() {
			observability.DecWSActive()
			observability.IncWSEvent("ws_disconnect")
			// The request context is cancelled once the handshake handler
			// returns; the disconnect event outlives it.
			_ = observability.PublishEvent(context.Background(), "ws_events.chat", observability.EventEnvelope{
				EventType: "ws_events",
				EventName: "ws_disconnect",
				Payload: map[string]interface{}{
					"conn_id":     connID,
					"user_id":     identity.UserID,
					"duration_ms": time.Since(connectedAt).Milliseconds(),
				},
			}, observability.BuildHeaders(requestID, traceID))
		}()
		client.Run()
	}()
}

// bearerToken accepts the credential from the Authorization header or, for
// browser websocket clients that cannot set headers, a token query param.
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	return c.Query("token")
}

package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"fixora-chat-service/internal/chat"
	"fixora-chat-service/internal/models"
	"fixora-chat-service/internal/observability"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendQueueSize  = 32
	handleTimeout  = 10 * time.Second
	// maxInflightEvents bounds concurrent handlers per connection; reads
	// pause only when this many events are already suspended in storage.
	maxInflightEvents = 16
)

// Client is one live authenticated websocket connection. Exactly one user,
// any number of joined rooms.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	service *chat.Service
	logger  *zap.Logger

	userID int64
	role   models.Role
	connID string

	send     chan models.ChatEvent
	inflight chan struct{}
	// rooms is guarded by hub.mu.
	rooms map[int64]struct{}

	closeOnce sync.Once
}

// NewClient wraps an upgraded connection.
func NewClient(hub *Hub, conn *websocket.Conn, service *chat.Service, userID int64, role models.Role, connID string, logger *zap.Logger) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		service:  service,
		logger:   logger,
		userID:   userID,
		role:     role,
		connID:   connID,
		send:     make(chan models.ChatEvent, sendQueueSize),
		inflight: make(chan struct{}, maxInflightEvents),
		rooms:    make(map[int64]struct{}),
	}
}

// Run starts the read and write pumps. Returns when the connection dies.
func (c *Client) Run() {
	go c.writePump()
	c.readPump()
}

// closeSlow tears down a connection whose send queue is full.
func (c *Client) closeSlow() {
	c.closeOnce.Do(func() {
		c.conn.Close()
	})
}

func (c *Client) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("websocket read error",
					zap.String("conn_id", c.connID),
					zap.Error(err),
				)
			}
			return
		}
		c.dispatch(raw)
	}
}

// dispatch runs the handler on its own goroutine so an event suspended in a
// storage round trip never blocks the next read: a join in one room and a
// send in another proceed independently on the same connection.
func (c *Client) dispatch(raw []byte) {
	c.inflight <- struct{}{}
	go func() {
		defer func() { <-c.inflight }()
		c.handleEvent(raw)
	}()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

type inboundEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// handleEvent dispatches one inbound event to the chat service. Every
// failure becomes an error event scoped to this connection only.
func (c *Client) handleEvent(raw []byte) {
	var envelope inboundEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		c.sendError("malformed event payload")
		return
	}
	observability.IncWSEvent(envelope.Event)

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	switch envelope.Event {
	case models.EventJoinChat:
		c.handleJoin(ctx, envelope.Data)
	case models.EventSendMsg:
		c.handleSend(ctx, envelope.Data)
	case models.EventTypingOn:
		c.handleTyping(envelope.Data, true)
	case models.EventTypingOff:
		c.handleTyping(envelope.Data, false)
	case models.EventMarkRead:
		c.handleMarkRead(ctx, envelope.Data)
	default:
		c.sendError("unknown event")
	}
}

func (c *Client) handleJoin(ctx context.Context, data json.RawMessage) {
	var payload models.JoinChatPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ChatRoomID == 0 {
		c.sendError("invalid join payload")
		return
	}

	room, err := c.service.JoinRoom(ctx, payload.ChatRoomID, c.userID)
	if err != nil {
		c.sendServiceError(err)
		return
	}

	c.hub.Subscribe(room.ID, c)
	c.enqueue(models.ChatEvent{
		Event: models.EventJoinedChat,
		Data: models.JoinedChatData{
			ChatRoomID: room.ID,
			Message:    "joined chat room",
		},
	})
}

func (c *Client) handleSend(ctx context.Context, data json.RawMessage) {
	var payload models.SendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ChatRoomID == 0 {
		c.sendError("invalid message payload")
		return
	}

	// The fanout delivers the committed message back to this connection
	// along with every other room subscriber; no separate ack.
	if _, err := c.service.Send(ctx, payload.ChatRoomID, c.userID, payload.Content, payload.Type, payload.Attachments); err != nil {
		c.sendServiceError(err)
	}
}

func (c *Client) handleTyping(data json.RawMessage, start bool) {
	var payload models.TypingPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ChatRoomID == 0 {
		c.sendError("invalid typing payload")
		return
	}
	// Typing relays only within rooms this connection has joined; no
	// persistence, no storage round trip.
	if !c.hub.inRoom(c, payload.ChatRoomID) {
		c.sendError("join the room before typing signals")
		return
	}
	c.hub.Typing(payload.ChatRoomID, c.userID, start)
}

func (c *Client) handleMarkRead(ctx context.Context, data json.RawMessage) {
	var payload models.MarkReadPayload
	if err := json.Unmarshal(data, &payload); err != nil || payload.ChatRoomID == 0 {
		c.sendError("invalid mark-read payload")
		return
	}

	if _, err := c.service.MarkRead(ctx, payload.ChatRoomID, c.userID, payload.MessageIDs); err != nil {
		c.sendServiceError(err)
	}
}

func (c *Client) sendServiceError(err error) {
	switch {
	case errors.Is(err, chat.ErrNotFound), errors.Is(err, chat.ErrForbidden), errors.Is(err, chat.ErrValidation):
		c.sendError(err.Error())
	default:
		c.logger.Error("socket event failed",
			zap.Int64("user_id", c.userID),
			zap.String("conn_id", c.connID),
			zap.Error(err),
		)
		c.sendError("internal error")
	}
}

func (c *Client) sendError(message string) {
	observability.IncWSEvent(models.EventError)
	c.enqueue(models.ChatEvent{
		Event: models.EventError,
		Data:  models.ErrorData{Message: message},
	})
}

func (c *Client) enqueue(event models.ChatEvent) {
	select {
	case c.send <- event:
	default:
		observability.IncFanoutDropped()
		c.closeSlow()
	}
}

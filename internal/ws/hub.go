package ws

import (
	"sync"

	"go.uber.org/zap"

	"fixora-chat-service/internal/models"
	"fixora-chat-service/internal/observability"
)

// Hub owns all live websocket state: which connections exist, which personal
// channel they belong to and which rooms they are subscribed to. A user is
// online iff they hold at least one live connection; multi-device is
// supported, so presence is a set of connections per user, not a single slot.
type Hub struct {
	mu    sync.RWMutex
	rooms map[int64]map[*Client]struct{}
	users map[int64]map[*Client]struct{}

	bridge *Bridge
	logger *zap.Logger
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		rooms:  make(map[int64]map[*Client]struct{}),
		users:  make(map[int64]map[*Client]struct{}),
		logger: logger,
	}
}

// SetBridge attaches the cross-instance pub/sub bridge. Optional; without it
// fanout stays in-process.
func (h *Hub) SetBridge(bridge *Bridge) {
	h.bridge = bridge
}

// Register adds an authenticated connection to its personal channel.
func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.users[c.userID]; !ok {
		h.users[c.userID] = make(map[*Client]struct{})
	}
	h.users[c.userID][c] = struct{}{}
}

// Unregister removes a connection from its personal channel and from every
// room it joined. Message history and room membership facts are unaffected.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if conns, ok := h.users[c.userID]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(h.users, c.userID)
		}
	}
	for roomID := range c.rooms {
		if conns, ok := h.rooms[roomID]; ok {
			delete(conns, c)
			if len(conns) == 0 {
				delete(h.rooms, roomID)
			}
		}
	}
}

// Subscribe attaches a connection to a room's broadcast channel. The caller
// has already passed the participant gate.
func (h *Hub) Subscribe(roomID int64, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[*Client]struct{})
	}
	h.rooms[roomID][c] = struct{}{}
	c.rooms[roomID] = struct{}{}
}

func (h *Hub) inRoom(c *Client, roomID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.rooms[roomID]
	return ok
}

// IsOnline reports whether the user holds any live connection.
func (h *Hub) IsOnline(userID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.users[userID]) > 0
}

// MessageCreated implements chat.Fanout: the new message goes to every
// connection subscribed to the room, and a lightweight notification goes to
// the other participant's personal connections that are not viewing the room.
func (h *Hub) MessageCreated(room models.ChatRoom, msg models.MessageView) {
	observability.IncMessageSent(string(msg.Type))

	event := models.ChatEvent{
		Event: models.EventNewMessage,
		Data:  models.NewMessageData{Message: msg},
	}
	h.broadcastRoomLocal(room.ID, event, 0)

	// System messages have no "other participant" to notify.
	if msg.SenderUserID != nil {
		other := room.OtherParticipant(*msg.SenderUserID)
		notification := models.ChatEvent{
			Event: models.EventNotification,
			Data: models.NotificationData{
				ChatRoomID: room.ID,
				Message:    models.Preview(msg.Content),
				SenderName: msg.SenderName,
			},
		}
		h.notifyUserLocal(other, room.ID, notification)
		if h.bridge != nil {
			h.bridge.PublishUser(other, room.ID, notification)
		}
	}

	if h.bridge != nil {
		h.bridge.PublishRoom(room.ID, 0, event)
	}
}

// MessagesRead implements chat.Fanout: read receipts go to room subscribers.
func (h *Hub) MessagesRead(roomID int64, messageIDs []int64, readBy int64) {
	event := models.ChatEvent{
		Event: models.EventMessageRead,
		Data: models.MessageReadData{
			ChatRoomID: roomID,
			MessageIDs: messageIDs,
			ReadBy:     readBy,
		},
	}
	h.broadcastRoomLocal(roomID, event, 0)
	if h.bridge != nil {
		h.bridge.PublishRoom(roomID, 0, event)
	}
}

// Typing relays an ephemeral typing signal to the room's other subscribers.
// Nothing is persisted and delivery is not guaranteed.
func (h *Hub) Typing(roomID, userID int64, start bool) {
	name := models.EventUserStopTyping
	if start {
		name = models.EventUserTyping
	}
	event := models.ChatEvent{
		Event: name,
		Data:  models.TypingData{UserID: userID, ChatRoomID: roomID},
	}
	h.broadcastRoomLocal(roomID, event, userID)
	if h.bridge != nil {
		h.bridge.PublishRoom(roomID, userID, event)
	}
}

// broadcastRoomLocal pushes an event to this instance's room subscribers,
// skipping every connection of exceptUser when non-zero. Delivery is
// at-most-once per connection: a full queue drops the connection, and a
// reconnecting client recovers history over REST.
func (h *Hub) broadcastRoomLocal(roomID int64, event models.ChatEvent, exceptUser int64) {
	h.mu.RLock()
	conns := make([]*Client, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		if exceptUser != 0 && c.userID == exceptUser {
			continue
		}
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		h.deliver(c, event)
	}
}

// notifyUserLocal pushes an event to the user's connections that do NOT have
// the room open; those that do already receive the full message.
func (h *Hub) notifyUserLocal(userID, roomID int64, event models.ChatEvent) {
	h.mu.RLock()
	conns := make([]*Client, 0, len(h.users[userID]))
	for c := range h.users[userID] {
		if _, viewing := c.rooms[roomID]; viewing {
			continue
		}
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		h.deliver(c, event)
	}
}

func (h *Hub) deliver(c *Client, event models.ChatEvent) {
	select {
	case c.send <- event:
	default:
		observability.IncFanoutDropped()
		h.logger.Warn("dropping slow websocket client",
			zap.Int64("user_id", c.userID),
			zap.String("conn_id", c.connID),
		)
		c.closeSlow()
	}
}

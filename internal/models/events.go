package models

// Socket event names, shared by the hub and the client dispatcher.
const (
	EventJoinChat  = "join_chat"
	EventSendMsg   = "send_message"
	EventTypingOn  = "typing_start"
	EventTypingOff = "typing_stop"
	EventMarkRead  = "mark_as_read"

	EventJoinedChat     = "joined_chat"
	EventNewMessage     = "new_message"
	EventNotification   = "new_message_notification"
	EventUserTyping     = "user_typing"
	EventUserStopTyping = "user_stopped_typing"
	EventMessageRead    = "message_read"
	EventError          = "error"
)

// ChatEvent is the envelope exchanged over websocket connections.
type ChatEvent struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// JoinChatPayload is sent by clients to subscribe to a room.
type JoinChatPayload struct {
	ChatRoomID int64 `json:"chat_room_id"`
}

// SendMessagePayload carries an inbound message send.
type SendMessagePayload struct {
	ChatRoomID  int64        `json:"chat_room_id"`
	Content     string       `json:"content"`
	Type        MessageType  `json:"type,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// TypingPayload scopes a typing signal to a room.
type TypingPayload struct {
	ChatRoomID int64 `json:"chat_room_id"`
}

// MarkReadPayload acknowledges messages in a room. An empty MessageIDs slice
// acknowledges everything unread that the caller did not send.
type MarkReadPayload struct {
	ChatRoomID int64   `json:"chat_room_id"`
	MessageIDs []int64 `json:"message_ids,omitempty"`
}

// JoinedChatData acks a successful join.
type JoinedChatData struct {
	ChatRoomID int64  `json:"chat_room_id"`
	Message    string `json:"message"`
}

// NewMessageData fans a persisted message out to room subscribers.
type NewMessageData struct {
	Message MessageView `json:"message"`
}

// NotificationData is the lightweight ping sent to the other participant's
// personal channel when they are online but not viewing the room.
type NotificationData struct {
	ChatRoomID int64  `json:"chat_room_id"`
	Message    string `json:"message"`
	SenderName string `json:"sender_name"`
}

// TypingData identifies who is typing where.
type TypingData struct {
	UserID     int64 `json:"user_id"`
	ChatRoomID int64 `json:"chat_room_id"`
}

// MessageReadData tells room subscribers which messages were acknowledged.
type MessageReadData struct {
	ChatRoomID int64   `json:"chat_room_id"`
	MessageIDs []int64 `json:"message_ids"`
	ReadBy     int64   `json:"read_by"`
}

// ErrorData is scoped to the requesting connection only.
type ErrorData struct {
	Message string `json:"message"`
}

package models

import (
	"database/sql"
	"encoding/json"
	"time"
)

// MessageType classifies a chat message.
type MessageType string

const (
	MessageTypeText   MessageType = "text"
	MessageTypeImage  MessageType = "image"
	MessageTypeFile   MessageType = "file"
	MessageTypeSystem MessageType = "system"
)

// MaxContentLength bounds message content; longer sends are rejected.
const MaxContentLength = 2000

// PreviewLength bounds the room's last-message preview and notification text.
const PreviewLength = 100

// Attachment is upload metadata carried on a message. The chat service never
// touches the referenced storage.
type Attachment struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	FileType string `json:"file_type"`
	FileSize int64  `json:"file_size"`
}

// Message is one entry in a room's append-only log. SenderID is NULL for
// system messages. CreatedAt is assigned by the database and is the
// authoritative ordering key.
type Message struct {
	ID          int64           `db:"id" json:"id"`
	RoomID      int64           `db:"room_id" json:"room_id"`
	SenderID    sql.NullInt64   `db:"sender_id" json:"-"`
	SenderRole  Role            `db:"sender_role" json:"sender_role"`
	Content     string          `db:"content" json:"content"`
	Type        MessageType     `db:"msg_type" json:"type"`
	IsRead      bool            `db:"is_read" json:"is_read"`
	ReadAt      sql.NullTime    `db:"read_at" json:"-"`
	Attachments json.RawMessage `db:"attachments" json:"attachments,omitempty"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// MessageView is the API shape of a message, with nullable columns unwrapped
// and the sender's display name attached.
type MessageView struct {
	Message
	SenderUserID  *int64     `json:"sender_id"`
	SenderName    string     `json:"sender_name,omitempty"`
	ReadTimestamp *time.Time `json:"read_at,omitempty"`
}

// View converts a stored message for API responses.
func (m Message) View(senderName string) MessageView {
	v := MessageView{Message: m, SenderName: senderName}
	if m.SenderID.Valid {
		id := m.SenderID.Int64
		v.SenderUserID = &id
	}
	if m.ReadAt.Valid {
		t := m.ReadAt.Time
		v.ReadTimestamp = &t
	}
	return v
}

// Preview truncates content for room previews and notifications.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= PreviewLength {
		return content
	}
	return string(runes[:PreviewLength])
}

// Pagination describes one page of a room's history.
type Pagination struct {
	CurrentPage   int  `json:"current_page"`
	TotalPages    int  `json:"total_pages"`
	TotalMessages int  `json:"total_messages"`
	HasMore       bool `json:"has_more"`
}

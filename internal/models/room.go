package models

import (
	"database/sql"
	"time"
)

// Role identifies which side of a booking a user is on. It is fixed when the
// room is created and never changes afterwards.
type Role string

const (
	RoleCustomer Role = "customer"
	RolePartner  Role = "partner"
	RoleSystem   Role = "system"
)

// Other returns the opposite participant role.
func (r Role) Other() Role {
	if r == RoleCustomer {
		return RolePartner
	}
	return RoleCustomer
}

// ChatRoom is the durable room record, unique per booking.
type ChatRoom struct {
	ID                 int64        `db:"id" json:"id"`
	BookingID          int64        `db:"booking_id" json:"booking_id"`
	CustomerID         int64        `db:"customer_id" json:"customer_id"`
	PartnerUserID      int64        `db:"partner_user_id" json:"partner_user_id"`
	CustomerLastSeenAt time.Time    `db:"customer_last_seen_at" json:"customer_last_seen_at"`
	PartnerLastSeenAt  time.Time    `db:"partner_last_seen_at" json:"partner_last_seen_at"`
	LastMessagePreview string       `db:"last_message_preview" json:"last_message_preview"`
	LastMessageAt      sql.NullTime `db:"last_message_at" json:"-"`
	UnreadCustomer     int          `db:"unread_customer" json:"unread_customer"`
	UnreadPartner      int          `db:"unread_partner" json:"unread_partner"`
	IsActive           bool         `db:"is_active" json:"is_active"`
	CreatedAt          time.Time    `db:"created_at" json:"created_at"`
}

// RoleOf reports the role a user holds in this room, if any.
func (r ChatRoom) RoleOf(userID int64) (Role, bool) {
	switch userID {
	case r.CustomerID:
		return RoleCustomer, true
	case r.PartnerUserID:
		return RolePartner, true
	}
	return "", false
}

// OtherParticipant returns the user id of the participant that is not userID.
func (r ChatRoom) OtherParticipant(userID int64) int64 {
	if userID == r.CustomerID {
		return r.PartnerUserID
	}
	return r.CustomerID
}

// UnreadFor returns the unread counter kept for the given role.
func (r ChatRoom) UnreadFor(role Role) int {
	if role == RoleCustomer {
		return r.UnreadCustomer
	}
	return r.UnreadPartner
}

// Participant is the API view of one side of a room.
type Participant struct {
	UserID     int64     `json:"user_id"`
	Role       Role      `json:"role"`
	FullName   string    `json:"full_name,omitempty"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// RoomSummary is the API view of a room in the caller's room list.
type RoomSummary struct {
	RoomID             int64         `json:"room_id"`
	BookingID          int64         `json:"booking_id"`
	Participants       []Participant `json:"participants"`
	LastMessagePreview string        `json:"last_message_preview"`
	LastMessageAt      *time.Time    `json:"last_message_at,omitempty"`
	UnreadCount        int           `json:"unread_count"`
	CreatedAt          time.Time     `json:"created_at"`
}

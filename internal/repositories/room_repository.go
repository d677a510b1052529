package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"fixora-chat-service/internal/models"
)

var ErrRoomNotFound = errors.New("chat room not found")

const roomColumns = `id, booking_id, customer_id, partner_user_id,
    customer_last_seen_at, partner_last_seen_at, last_message_preview,
    last_message_at, unread_customer, unread_partner, is_active, created_at`

// RoomRepository abstracts chat room persistence.
type RoomRepository interface {
	GetOrCreate(ctx context.Context, bookingID, customerID, partnerUserID int64) (models.ChatRoom, bool, error)
	GetRoom(ctx context.Context, roomID int64) (models.ChatRoom, error)
	ListForUser(ctx context.Context, userID int64) ([]models.ChatRoom, error)
	IsParticipant(ctx context.Context, roomID, userID int64) (bool, error)
	SetActive(ctx context.Context, roomID int64, active bool) error
	TouchLastSeen(ctx context.Context, roomID int64, role models.Role) error
	ResetUnread(ctx context.Context, roomID int64, role models.Role) error
	RecomputeUnread(ctx context.Context, roomID int64) (models.ChatRoom, error)
}

// RoomRepo is a sqlx implementation of RoomRepository.
type RoomRepo struct {
	db *sqlx.DB
}

// NewRoomRepo constructs a RoomRepo.
func NewRoomRepo(db *sqlx.DB) *RoomRepo {
	return &RoomRepo{db: db}
}

// GetOrCreate returns the room for a booking, creating it on first access,
// and reports whether this call created it. Insert races are resolved by the
// unique booking_id constraint: the loser of a concurrent create takes the
// conflict branch. The xmax = 0 check distinguishes a fresh insert from the
// conflict update.
func (r *RoomRepo) GetOrCreate(ctx context.Context, bookingID, customerID, partnerUserID int64) (models.ChatRoom, bool, error) {
	var row struct {
		models.ChatRoom
		Inserted bool `db:"inserted"`
	}
	err := r.db.QueryRowxContext(ctx, `INSERT INTO chat_rooms (booking_id, customer_id, partner_user_id)
        VALUES ($1, $2, $3)
        ON CONFLICT (booking_id) DO UPDATE SET is_active = TRUE
        RETURNING `+roomColumns+`, (xmax = 0) AS inserted`, bookingID, customerID, partnerUserID).StructScan(&row)
	if err != nil {
		return models.ChatRoom{}, false, err
	}
	return row.ChatRoom, row.Inserted, nil
}

// GetRoom fetches a room by id.
func (r *RoomRepo) GetRoom(ctx context.Context, roomID int64) (models.ChatRoom, error) {
	var room models.ChatRoom
	err := r.db.GetContext(ctx, &room, `SELECT `+roomColumns+` FROM chat_rooms WHERE id=$1`, roomID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChatRoom{}, ErrRoomNotFound
	}
	return room, err
}

// ListForUser returns the user's active rooms, most recent activity first.
func (r *RoomRepo) ListForUser(ctx context.Context, userID int64) ([]models.ChatRoom, error) {
	var rooms []models.ChatRoom
	err := r.db.SelectContext(ctx, &rooms, `SELECT `+roomColumns+` FROM chat_rooms
        WHERE (customer_id=$1 OR partner_user_id=$1) AND is_active = TRUE
        ORDER BY last_message_at DESC NULLS LAST, created_at DESC`, userID)
	return rooms, err
}

// IsParticipant checks whether a user belongs to the room.
func (r *RoomRepo) IsParticipant(ctx context.Context, roomID, userID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM chat_rooms
        WHERE id=$1 AND (customer_id=$2 OR partner_user_id=$2))`, roomID, userID)
	return exists, err
}

// SetActive flips the soft-delete flag. Idempotent.
func (r *RoomRepo) SetActive(ctx context.Context, roomID int64, active bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE chat_rooms SET is_active=$2 WHERE id=$1`, roomID, active)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrRoomNotFound
	}
	return nil
}

// TouchLastSeen stamps the participant's last_seen_at column for their role.
func (r *RoomRepo) TouchLastSeen(ctx context.Context, roomID int64, role models.Role) error {
	column := "customer_last_seen_at"
	if role == models.RolePartner {
		column = "partner_last_seen_at"
	}
	_, err := r.db.ExecContext(ctx, `UPDATE chat_rooms SET `+column+` = NOW() WHERE id=$1`, roomID)
	return err
}

// ResetUnread zeroes the unread counter kept for the given role.
func (r *RoomRepo) ResetUnread(ctx context.Context, roomID int64, role models.Role) error {
	column := "unread_customer"
	if role == models.RolePartner {
		column = "unread_partner"
	}
	_, err := r.db.ExecContext(ctx, `UPDATE chat_rooms SET `+column+` = 0 WHERE id=$1`, roomID)
	return err
}

// RecomputeUnread rebuilds both unread counters from the message log. The
// incremental counters drift if either the append or the mark-read path ever
// misbehaves; this is the repair operation.
func (r *RoomRepo) RecomputeUnread(ctx context.Context, roomID int64) (models.ChatRoom, error) {
	var room models.ChatRoom
	err := r.db.QueryRowxContext(ctx, `UPDATE chat_rooms SET
        unread_customer = (SELECT COUNT(*) FROM chat_messages
            WHERE room_id=$1 AND sender_role='partner' AND is_read = FALSE),
        unread_partner = (SELECT COUNT(*) FROM chat_messages
            WHERE room_id=$1 AND sender_role='customer' AND is_read = FALSE)
        WHERE id=$1
        RETURNING `+roomColumns, roomID).StructScan(&room)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ChatRoom{}, ErrRoomNotFound
	}
	return room, err
}

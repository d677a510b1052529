package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jmoiron/sqlx"

	"fixora-chat-service/internal/models"
)

var ErrMessageNotFound = errors.New("message not found")

const messageColumns = `id, room_id, sender_id, sender_role, content,
    msg_type, is_read, read_at, attachments, created_at`

// MessageRepository defines interactions for the per-room message log.
type MessageRepository interface {
	Append(ctx context.Context, roomID int64, senderID *int64, role models.Role, content string, msgType models.MessageType, attachments []models.Attachment) (models.Message, error)
	ListPage(ctx context.Context, roomID int64, page, pageSize int) ([]models.Message, int, error)
	MarkRead(ctx context.Context, roomID, readerID int64, readerRole models.Role, messageIDs []int64) ([]int64, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

// Append inserts a message and updates the room's preview, last_message_at
// and the other role's unread counter in one transaction. The unread bump is
// a SQL-side increment so concurrent sends into the same room never lose
// updates.
func (r *MessageRepo) Append(ctx context.Context, roomID int64, senderID *int64, role models.Role, content string, msgType models.MessageType, attachments []models.Attachment) (models.Message, error) {
	var attachmentsJSON interface{}
	if len(attachments) > 0 {
		raw, err := json.Marshal(attachments)
		if err != nil {
			return models.Message{}, err
		}
		attachmentsJSON = raw
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Message{}, err
	}
	defer tx.Rollback()

	var sender sql.NullInt64
	if senderID != nil {
		sender = sql.NullInt64{Int64: *senderID, Valid: true}
	}

	var msg models.Message
	err = tx.QueryRowxContext(ctx, `INSERT INTO chat_messages (room_id, sender_id, sender_role, content, msg_type, attachments)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING `+messageColumns, roomID, sender, role, content, msgType, attachmentsJSON).StructScan(&msg)
	if err != nil {
		return models.Message{}, err
	}

	unreadBump := roomUnreadExpr(role)
	res, err := tx.ExecContext(ctx, `UPDATE chat_rooms SET
        last_message_preview = $2,
        last_message_at = $3`+unreadBump+`
        WHERE id = $1`, roomID, models.Preview(content), msg.CreatedAt)
	if err != nil {
		return models.Message{}, err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return models.Message{}, err
	}
	if count == 0 {
		return models.Message{}, ErrRoomNotFound
	}

	if err := tx.Commit(); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// roomUnreadExpr picks the unread column of the participant that did NOT
// send. System messages bump neither counter.
func roomUnreadExpr(senderRole models.Role) string {
	switch senderRole {
	case models.RoleCustomer:
		return `, unread_partner = unread_partner + 1`
	case models.RolePartner:
		return `, unread_customer = unread_customer + 1`
	}
	return ``
}

// ListPage fetches one page newest-first and reports the total message count.
// Callers reverse the page for chronological display.
func (r *MessageRepo) ListPage(ctx context.Context, roomID int64, page, pageSize int) ([]models.Message, int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM chat_messages WHERE room_id=$1`, roomID); err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	var msgs []models.Message
	err := r.db.SelectContext(ctx, &msgs, `SELECT `+messageColumns+` FROM chat_messages
        WHERE room_id=$1
        ORDER BY created_at DESC, id DESC
        LIMIT $2 OFFSET $3`, roomID, pageSize, offset)
	return msgs, total, err
}

// MarkRead flags unread messages not sent by the reader and zeroes the
// reader's unread counter; both happen in one transaction. Re-marking
// already-read messages is a no-op, so the call is idempotent. Returns the
// ids that actually flipped.
func (r *MessageRepo) MarkRead(ctx context.Context, roomID, readerID int64, readerRole models.Role, messageIDs []int64) ([]int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `UPDATE chat_messages SET is_read = TRUE, read_at = NOW()
        WHERE room_id = ?
        AND sender_id IS DISTINCT FROM ?
        AND is_read = FALSE`
	args := []interface{}{roomID, readerID}
	if len(messageIDs) > 0 {
		query += ` AND id IN (?)`
		args = append(args, messageIDs)
		query, args, err = sqlx.In(query, args...)
		if err != nil {
			return nil, err
		}
	}
	query = sqlx.Rebind(sqlx.DOLLAR, query+` RETURNING id`)

	rows, err := tx.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var readIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		readIDs = append(readIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	column := "unread_customer"
	if readerRole == models.RolePartner {
		column = "unread_partner"
	}
	if _, err := tx.ExecContext(ctx, `UPDATE chat_rooms SET `+column+` = 0 WHERE id=$1`, roomID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return readIDs, nil
}

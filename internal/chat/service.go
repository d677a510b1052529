package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"fixora-chat-service/internal/models"
	"fixora-chat-service/internal/repositories"
)

const (
	// DefaultPageSize is used when the caller does not pass a limit.
	DefaultPageSize = 50
	// MaxPageSize caps a single history page.
	MaxPageSize = 100
)

// Fanout receives committed state changes for best-effort real-time delivery.
// Implementations must never fail the calling operation: the persisted write
// is the success criterion, delivery is not.
type Fanout interface {
	MessageCreated(room models.ChatRoom, msg models.MessageView)
	MessagesRead(roomID int64, messageIDs []int64, readBy int64)
}

// NopFanout drops everything; used when no socket layer is attached.
type NopFanout struct{}

func (NopFanout) MessageCreated(models.ChatRoom, models.MessageView) {}
func (NopFanout) MessagesRead(int64, []int64, int64)                 {}

// Service implements the chat core: room registry, message log, unread
// counters and read-state transitions. It is transport-free: REST handlers
// and the websocket dispatcher are thin adapters over it.
type Service struct {
	rooms    repositories.RoomRepository
	messages repositories.MessageRepository
	bookings repositories.BookingRepository
	users    repositories.UserRepository
	fanout   Fanout
	logger   *zap.Logger
}

// NewService wires the chat core.
func NewService(rooms repositories.RoomRepository, messages repositories.MessageRepository, bookings repositories.BookingRepository, users repositories.UserRepository, fanout Fanout, logger *zap.Logger) *Service {
	if fanout == nil {
		fanout = NopFanout{}
	}
	return &Service{
		rooms:    rooms,
		messages: messages,
		bookings: bookings,
		users:    users,
		fanout:   fanout,
		logger:   logger,
	}
}

// GetOrCreateRoom authorizes the requester against the booking's two parties
// and materializes the room on first access. Repeat calls for the same
// booking always land on the same room; the bool reports whether this call
// created it.
func (s *Service) GetOrCreateRoom(ctx context.Context, bookingID, userID int64) (models.RoomSummary, bool, error) {
	booking, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, repositories.ErrBookingNotFound) {
			return models.RoomSummary{}, false, fmt.Errorf("%w: booking %d", ErrNotFound, bookingID)
		}
		return models.RoomSummary{}, false, err
	}
	if !booking.Party(userID) {
		return models.RoomSummary{}, false, fmt.Errorf("%w: not a party of booking %d", ErrForbidden, bookingID)
	}

	room, created, err := s.rooms.GetOrCreate(ctx, booking.ID, booking.CustomerID, booking.PartnerUserID)
	if err != nil {
		return models.RoomSummary{}, false, err
	}
	return s.summarize(ctx, room, userID), created, nil
}

// ListRooms returns the caller's active rooms, annotated with the caller's
// own unread count and the other participant's display name, most recent
// activity first.
func (s *Service) ListRooms(ctx context.Context, userID int64) ([]models.RoomSummary, error) {
	rooms, err := s.rooms.ListForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(rooms)*2)
	for _, room := range rooms {
		ids = append(ids, room.CustomerID, room.PartnerUserID)
	}
	names := s.lookupNames(ctx, ids)

	summaries := make([]models.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summaries = append(summaries, summaryWithNames(room, userID, names))
	}
	return summaries, nil
}

// JoinRoom gates a socket subscription: the caller must be a participant.
// On success the caller's last-seen stamp is refreshed.
func (s *Service) JoinRoom(ctx context.Context, roomID, userID int64) (models.ChatRoom, error) {
	room, role, err := s.roomForParticipant(ctx, roomID, userID)
	if err != nil {
		return models.ChatRoom{}, err
	}
	if err := s.rooms.TouchLastSeen(ctx, roomID, role); err != nil {
		// The join itself succeeded; a stale last-seen stamp is tolerable.
		s.logger.Warn("touch last seen failed", zap.Int64("room_id", roomID), zap.Error(err))
	}
	return room, nil
}

// Send validates and appends a message, then hands the committed result to
// the fanout. The append, the room preview update and the unread bump for
// the other participant commit atomically in the repository.
func (s *Service) Send(ctx context.Context, roomID, senderID int64, content string, msgType models.MessageType, attachments []models.Attachment) (models.MessageView, error) {
	room, role, err := s.roomForParticipant(ctx, roomID, senderID)
	if err != nil {
		return models.MessageView{}, err
	}

	if msgType == "" {
		msgType = models.MessageTypeText
	}
	switch msgType {
	case models.MessageTypeText, models.MessageTypeImage, models.MessageTypeFile:
	default:
		return models.MessageView{}, fmt.Errorf("%w: unsupported message type %q", ErrValidation, msgType)
	}
	if strings.TrimSpace(content) == "" {
		return models.MessageView{}, fmt.Errorf("%w: content must not be empty", ErrValidation)
	}
	if utf8.RuneCountInString(content) > models.MaxContentLength {
		return models.MessageView{}, fmt.Errorf("%w: content exceeds %d characters", ErrValidation, models.MaxContentLength)
	}

	msg, err := s.messages.Append(ctx, roomID, &senderID, role, content, msgType, attachments)
	if err != nil {
		return models.MessageView{}, err
	}

	view := msg.View(s.lookupName(ctx, senderID))
	s.fanout.MessageCreated(room, view)
	return view, nil
}

// SendSystem appends a system message (no sender, no unread bump) and fans
// it out to room subscribers.
func (s *Service) SendSystem(ctx context.Context, roomID int64, content string) (models.MessageView, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, repositories.ErrRoomNotFound) {
			return models.MessageView{}, fmt.Errorf("%w: room %d", ErrNotFound, roomID)
		}
		return models.MessageView{}, err
	}
	if strings.TrimSpace(content) == "" {
		return models.MessageView{}, fmt.Errorf("%w: content must not be empty", ErrValidation)
	}

	msg, err := s.messages.Append(ctx, roomID, nil, models.RoleSystem, content, models.MessageTypeSystem, nil)
	if err != nil {
		return models.MessageView{}, err
	}

	view := msg.View("")
	s.fanout.MessageCreated(room, view)
	return view, nil
}

// HistoryPage is one chronological page of a room's log.
type HistoryPage struct {
	Messages   []models.MessageView `json:"messages"`
	Pagination models.Pagination    `json:"pagination"`
}

// ListPage returns a page of history in display order (oldest of the page
// first). The repository fetches newest-first for cheap offset pagination;
// the page is reversed here. A page past the end yields an empty slice, not
// an error.
func (s *Service) ListPage(ctx context.Context, roomID, userID int64, page, pageSize int) (HistoryPage, error) {
	if _, _, err := s.roomForParticipant(ctx, roomID, userID); err != nil {
		return HistoryPage{}, err
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	msgs, total, err := s.messages.ListPage(ctx, roomID, page, pageSize)
	if err != nil {
		return HistoryPage{}, err
	}

	ids := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		if m.SenderID.Valid {
			ids = append(ids, m.SenderID.Int64)
		}
	}
	names := s.lookupNames(ctx, ids)

	// Reverse newest-first storage order into chronological display order.
	views := make([]models.MessageView, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		name := ""
		if m.SenderID.Valid {
			name = names[m.SenderID.Int64].FullName
		}
		views = append(views, m.View(name))
	}

	totalPages := (total + pageSize - 1) / pageSize
	return HistoryPage{
		Messages: views,
		Pagination: models.Pagination{
			CurrentPage:   page,
			TotalPages:    totalPages,
			TotalMessages: total,
			HasMore:       page*pageSize < total,
		},
	}, nil
}

// MarkRead acknowledges messages the caller did not send and zeroes the
// caller's unread counter. Idempotent: a second call is a no-op. The ids
// that actually flipped are fanned out as a read receipt.
func (s *Service) MarkRead(ctx context.Context, roomID, userID int64, messageIDs []int64) ([]int64, error) {
	_, role, err := s.roomForParticipant(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}

	readIDs, err := s.messages.MarkRead(ctx, roomID, userID, role, messageIDs)
	if err != nil {
		return nil, err
	}
	if len(readIDs) > 0 {
		s.fanout.MessagesRead(roomID, readIDs, userID)
	}
	return readIDs, nil
}

// SetActive flips the room's soft-delete flag for a participant. Inactive
// rooms drop out of listings but keep their history readable.
func (s *Service) SetActive(ctx context.Context, roomID, userID int64, active bool) error {
	if _, _, err := s.roomForParticipant(ctx, roomID, userID); err != nil {
		return err
	}
	return s.rooms.SetActive(ctx, roomID, active)
}

// IsParticipant answers the authorization gate used before any read or
// mutation on a room.
func (s *Service) IsParticipant(ctx context.Context, roomID, userID int64) (bool, error) {
	return s.rooms.IsParticipant(ctx, roomID, userID)
}

// RecomputeUnread rebuilds both unread counters from the message log. This
// is the operational repair path for counter drift.
func (s *Service) RecomputeUnread(ctx context.Context, roomID int64) (models.ChatRoom, error) {
	room, err := s.rooms.RecomputeUnread(ctx, roomID)
	if errors.Is(err, repositories.ErrRoomNotFound) {
		return models.ChatRoom{}, fmt.Errorf("%w: room %d", ErrNotFound, roomID)
	}
	return room, err
}

func (s *Service) roomForParticipant(ctx context.Context, roomID, userID int64) (models.ChatRoom, models.Role, error) {
	room, err := s.rooms.GetRoom(ctx, roomID)
	if err != nil {
		if errors.Is(err, repositories.ErrRoomNotFound) {
			return models.ChatRoom{}, "", fmt.Errorf("%w: room %d", ErrNotFound, roomID)
		}
		return models.ChatRoom{}, "", err
	}
	role, ok := room.RoleOf(userID)
	if !ok {
		return models.ChatRoom{}, "", fmt.Errorf("%w: not a room participant", ErrForbidden)
	}
	return room, role, nil
}

func (s *Service) summarize(ctx context.Context, room models.ChatRoom, callerID int64) models.RoomSummary {
	names := s.lookupNames(ctx, []int64{room.CustomerID, room.PartnerUserID})
	return summaryWithNames(room, callerID, names)
}

func summaryWithNames(room models.ChatRoom, callerID int64, names map[int64]repositories.User) models.RoomSummary {
	callerRole, _ := room.RoleOf(callerID)

	summary := models.RoomSummary{
		RoomID:             room.ID,
		BookingID:          room.BookingID,
		LastMessagePreview: room.LastMessagePreview,
		UnreadCount:        room.UnreadFor(callerRole),
		CreatedAt:          room.CreatedAt,
		Participants: []models.Participant{
			{
				UserID:     room.CustomerID,
				Role:       models.RoleCustomer,
				FullName:   names[room.CustomerID].FullName,
				LastSeenAt: room.CustomerLastSeenAt,
			},
			{
				UserID:     room.PartnerUserID,
				Role:       models.RolePartner,
				FullName:   names[room.PartnerUserID].FullName,
				LastSeenAt: room.PartnerLastSeenAt,
			},
		},
	}
	if room.LastMessageAt.Valid {
		t := room.LastMessageAt.Time
		summary.LastMessageAt = &t
	}
	return summary
}

// lookupNames is best-effort: display names missing from a summary are less
// harmful than failing the whole operation.
func (s *Service) lookupNames(ctx context.Context, ids []int64) map[int64]repositories.User {
	seen := make(map[int64]struct{}, len(ids))
	distinct := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			distinct = append(distinct, id)
		}
	}

	names, err := s.users.BulkUsers(ctx, distinct)
	if err != nil {
		s.logger.Warn("bulk user lookup failed", zap.Error(err))
		return map[int64]repositories.User{}
	}
	return names
}

func (s *Service) lookupName(ctx context.Context, userID int64) string {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		s.logger.Warn("user lookup failed", zap.Int64("user_id", userID), zap.Error(err))
		return ""
	}
	return user.FullName
}

package chat

import (
	"context"
	"database/sql"
	"sort"
	"time"

	"fixora-chat-service/internal/models"
	"fixora-chat-service/internal/repositories"
)

// fakeStore backs the repository fakes with the same semantics the SQL
// implementations have, so service tests exercise real invariants without a
// database.
type fakeStore struct {
	rooms      map[int64]*models.ChatRoom
	byBooking  map[int64]int64
	messages   map[int64][]*models.Message
	bookings   map[int64]repositories.Booking
	users      map[int64]repositories.User
	nextRoomID int64
	nextMsgID  int64
	clock      time.Time
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rooms:     make(map[int64]*models.ChatRoom),
		byBooking: make(map[int64]int64),
		messages:  make(map[int64][]*models.Message),
		bookings:  make(map[int64]repositories.Booking),
		users:     make(map[int64]repositories.User),
		clock:     time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
}

// tick advances the fake clock so every write gets a distinct timestamp.
func (s *fakeStore) tick() time.Time {
	s.clock = s.clock.Add(time.Second)
	return s.clock
}

type fakeRoomRepo struct{ store *fakeStore }

func (r *fakeRoomRepo) GetOrCreate(_ context.Context, bookingID, customerID, partnerUserID int64) (models.ChatRoom, bool, error) {
	if roomID, ok := r.store.byBooking[bookingID]; ok {
		room := r.store.rooms[roomID]
		room.IsActive = true
		return *room, false, nil
	}
	r.store.nextRoomID++
	now := r.store.tick()
	room := &models.ChatRoom{
		ID:                 r.store.nextRoomID,
		BookingID:          bookingID,
		CustomerID:         customerID,
		PartnerUserID:      partnerUserID,
		CustomerLastSeenAt: now,
		PartnerLastSeenAt:  now,
		IsActive:           true,
		CreatedAt:          now,
	}
	r.store.rooms[room.ID] = room
	r.store.byBooking[bookingID] = room.ID
	return *room, true, nil
}

func (r *fakeRoomRepo) GetRoom(_ context.Context, roomID int64) (models.ChatRoom, error) {
	room, ok := r.store.rooms[roomID]
	if !ok {
		return models.ChatRoom{}, repositories.ErrRoomNotFound
	}
	return *room, nil
}

func (r *fakeRoomRepo) ListForUser(_ context.Context, userID int64) ([]models.ChatRoom, error) {
	var rooms []models.ChatRoom
	for _, room := range r.store.rooms {
		if room.IsActive && (room.CustomerID == userID || room.PartnerUserID == userID) {
			rooms = append(rooms, *room)
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		a, b := rooms[i], rooms[j]
		if a.LastMessageAt.Valid != b.LastMessageAt.Valid {
			return a.LastMessageAt.Valid
		}
		if a.LastMessageAt.Valid {
			return a.LastMessageAt.Time.After(b.LastMessageAt.Time)
		}
		return a.CreatedAt.After(b.CreatedAt)
	})
	return rooms, nil
}

func (r *fakeRoomRepo) IsParticipant(_ context.Context, roomID, userID int64) (bool, error) {
	room, ok := r.store.rooms[roomID]
	if !ok {
		return false, nil
	}
	return room.CustomerID == userID || room.PartnerUserID == userID, nil
}

func (r *fakeRoomRepo) SetActive(_ context.Context, roomID int64, active bool) error {
	room, ok := r.store.rooms[roomID]
	if !ok {
		return repositories.ErrRoomNotFound
	}
	room.IsActive = active
	return nil
}

func (r *fakeRoomRepo) TouchLastSeen(_ context.Context, roomID int64, role models.Role) error {
	room, ok := r.store.rooms[roomID]
	if !ok {
		return repositories.ErrRoomNotFound
	}
	if role == models.RoleCustomer {
		room.CustomerLastSeenAt = r.store.tick()
	} else {
		room.PartnerLastSeenAt = r.store.tick()
	}
	return nil
}

func (r *fakeRoomRepo) ResetUnread(_ context.Context, roomID int64, role models.Role) error {
	room, ok := r.store.rooms[roomID]
	if !ok {
		return repositories.ErrRoomNotFound
	}
	if role == models.RoleCustomer {
		room.UnreadCustomer = 0
	} else {
		room.UnreadPartner = 0
	}
	return nil
}

func (r *fakeRoomRepo) RecomputeUnread(_ context.Context, roomID int64) (models.ChatRoom, error) {
	room, ok := r.store.rooms[roomID]
	if !ok {
		return models.ChatRoom{}, repositories.ErrRoomNotFound
	}
	unreadCustomer, unreadPartner := 0, 0
	for _, msg := range r.store.messages[roomID] {
		if msg.IsRead {
			continue
		}
		switch msg.SenderRole {
		case models.RolePartner:
			unreadCustomer++
		case models.RoleCustomer:
			unreadPartner++
		}
	}
	room.UnreadCustomer = unreadCustomer
	room.UnreadPartner = unreadPartner
	return *room, nil
}

type fakeMessageRepo struct{ store *fakeStore }

func (r *fakeMessageRepo) Append(_ context.Context, roomID int64, senderID *int64, role models.Role, content string, msgType models.MessageType, _ []models.Attachment) (models.Message, error) {
	room, ok := r.store.rooms[roomID]
	if !ok {
		return models.Message{}, repositories.ErrRoomNotFound
	}

	r.store.nextMsgID++
	msg := &models.Message{
		ID:         r.store.nextMsgID,
		RoomID:     roomID,
		SenderRole: role,
		Content:    content,
		Type:       msgType,
		CreatedAt:  r.store.tick(),
	}
	if senderID != nil {
		msg.SenderID = sql.NullInt64{Int64: *senderID, Valid: true}
	}
	r.store.messages[roomID] = append(r.store.messages[roomID], msg)

	room.LastMessagePreview = models.Preview(content)
	room.LastMessageAt = sql.NullTime{Time: msg.CreatedAt, Valid: true}
	switch role {
	case models.RoleCustomer:
		room.UnreadPartner++
	case models.RolePartner:
		room.UnreadCustomer++
	}
	return *msg, nil
}

func (r *fakeMessageRepo) ListPage(_ context.Context, roomID int64, page, pageSize int) ([]models.Message, int, error) {
	log := r.store.messages[roomID]
	total := len(log)

	// Newest first, like the SQL ORDER BY created_at DESC, id DESC.
	newest := make([]*models.Message, len(log))
	copy(newest, log)
	sort.Slice(newest, func(i, j int) bool { return newest[i].ID > newest[j].ID })

	offset := (page - 1) * pageSize
	if offset >= total {
		return nil, total, nil
	}
	end := offset + pageSize
	if end > total {
		end = total
	}
	out := make([]models.Message, 0, end-offset)
	for _, msg := range newest[offset:end] {
		out = append(out, *msg)
	}
	return out, total, nil
}

func (r *fakeMessageRepo) MarkRead(_ context.Context, roomID, readerID int64, readerRole models.Role, messageIDs []int64) ([]int64, error) {
	room, ok := r.store.rooms[roomID]
	if !ok {
		return nil, repositories.ErrRoomNotFound
	}

	wanted := map[int64]bool{}
	for _, id := range messageIDs {
		wanted[id] = true
	}

	var flipped []int64
	now := r.store.tick()
	for _, msg := range r.store.messages[roomID] {
		if msg.IsRead {
			continue
		}
		if msg.SenderID.Valid && msg.SenderID.Int64 == readerID {
			continue
		}
		if len(wanted) > 0 && !wanted[msg.ID] {
			continue
		}
		msg.IsRead = true
		msg.ReadAt = sql.NullTime{Time: now, Valid: true}
		flipped = append(flipped, msg.ID)
	}

	if readerRole == models.RoleCustomer {
		room.UnreadCustomer = 0
	} else {
		room.UnreadPartner = 0
	}
	return flipped, nil
}

type fakeBookingRepo struct{ store *fakeStore }

func (r *fakeBookingRepo) GetBooking(_ context.Context, bookingID int64) (repositories.Booking, error) {
	booking, ok := r.store.bookings[bookingID]
	if !ok {
		return repositories.Booking{}, repositories.ErrBookingNotFound
	}
	return booking, nil
}

type fakeUserRepo struct{ store *fakeStore }

func (r *fakeUserRepo) GetUser(_ context.Context, userID int64) (repositories.User, error) {
	user, ok := r.store.users[userID]
	if !ok {
		return repositories.User{}, repositories.ErrUserNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) BulkUsers(_ context.Context, ids []int64) (map[int64]repositories.User, error) {
	out := make(map[int64]repositories.User, len(ids))
	for _, id := range ids {
		if user, ok := r.store.users[id]; ok {
			out[id] = user
		}
	}
	return out, nil
}

// recordingFanout captures what the service would push to live connections.
type recordingFanout struct {
	created []models.MessageView
	rooms   []models.ChatRoom
	read    []readCall
}

type readCall struct {
	roomID     int64
	messageIDs []int64
	readBy     int64
}

func (f *recordingFanout) MessageCreated(room models.ChatRoom, msg models.MessageView) {
	f.rooms = append(f.rooms, room)
	f.created = append(f.created, msg)
}

func (f *recordingFanout) MessagesRead(roomID int64, messageIDs []int64, readBy int64) {
	f.read = append(f.read, readCall{roomID: roomID, messageIDs: messageIDs, readBy: readBy})
}

var (
	_ repositories.RoomRepository    = (*fakeRoomRepo)(nil)
	_ repositories.MessageRepository = (*fakeMessageRepo)(nil)
	_ repositories.BookingRepository = (*fakeBookingRepo)(nil)
	_ repositories.UserRepository    = (*fakeUserRepo)(nil)
	_ Fanout                         = (*recordingFanout)(nil)
)

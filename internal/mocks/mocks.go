package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"fixora-chat-service/internal/auth"
	"fixora-chat-service/internal/models"
	"fixora-chat-service/internal/repositories"
)

type RoomRepositoryMock struct {
	mock.Mock
}

func (m *RoomRepositoryMock) GetOrCreate(ctx context.Context, bookingID, customerID, partnerUserID int64) (models.ChatRoom, bool, error) {
	args := m.Called(ctx, bookingID, customerID, partnerUserID)
	var room models.ChatRoom
	if val := args.Get(0); val != nil {
		room = val.(models.ChatRoom)
	}
	return room, args.Bool(1), args.Error(2)
}

func (m *RoomRepositoryMock) GetRoom(ctx context.Context, roomID int64) (models.ChatRoom, error) {
	args := m.Called(ctx, roomID)
	var room models.ChatRoom
	if val := args.Get(0); val != nil {
		room = val.(models.ChatRoom)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) ListForUser(ctx context.Context, userID int64) ([]models.ChatRoom, error) {
	args := m.Called(ctx, userID)
	var rooms []models.ChatRoom
	if val := args.Get(0); val != nil {
		rooms = val.([]models.ChatRoom)
	}
	return rooms, args.Error(1)
}

func (m *RoomRepositoryMock) IsParticipant(ctx context.Context, roomID, userID int64) (bool, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *RoomRepositoryMock) SetActive(ctx context.Context, roomID int64, active bool) error {
	args := m.Called(ctx, roomID, active)
	return args.Error(0)
}

func (m *RoomRepositoryMock) TouchLastSeen(ctx context.Context, roomID int64, role models.Role) error {
	args := m.Called(ctx, roomID, role)
	return args.Error(0)
}

func (m *RoomRepositoryMock) ResetUnread(ctx context.Context, roomID int64, role models.Role) error {
	args := m.Called(ctx, roomID, role)
	return args.Error(0)
}

func (m *RoomRepositoryMock) RecomputeUnread(ctx context.Context, roomID int64) (models.ChatRoom, error) {
	args := m.Called(ctx, roomID)
	var room models.ChatRoom
	if val := args.Get(0); val != nil {
		room = val.(models.ChatRoom)
	}
	return room, args.Error(1)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Append(ctx context.Context, roomID int64, senderID *int64, role models.Role, content string, msgType models.MessageType, attachments []models.Attachment) (models.Message, error) {
	args := m.Called(ctx, roomID, senderID, role, content, msgType, attachments)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListPage(ctx context.Context, roomID int64, page, pageSize int) ([]models.Message, int, error) {
	args := m.Called(ctx, roomID, page, pageSize)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Int(1), args.Error(2)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, roomID, readerID int64, readerRole models.Role, messageIDs []int64) ([]int64, error) {
	args := m.Called(ctx, roomID, readerID, readerRole, messageIDs)
	var ids []int64
	if val := args.Get(0); val != nil {
		ids = val.([]int64)
	}
	return ids, args.Error(1)
}

type BookingRepositoryMock struct {
	mock.Mock
}

func (m *BookingRepositoryMock) GetBooking(ctx context.Context, bookingID int64) (repositories.Booking, error) {
	args := m.Called(ctx, bookingID)
	var booking repositories.Booking
	if val := args.Get(0); val != nil {
		booking = val.(repositories.Booking)
	}
	return booking, args.Error(1)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID int64) (repositories.User, error) {
	args := m.Called(ctx, userID)
	var user repositories.User
	if val := args.Get(0); val != nil {
		user = val.(repositories.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) BulkUsers(ctx context.Context, ids []int64) (map[int64]repositories.User, error) {
	args := m.Called(ctx, ids)
	var users map[int64]repositories.User
	if val := args.Get(0); val != nil {
		users = val.(map[int64]repositories.User)
	}
	return users, args.Error(1)
}

type VerifierMock struct {
	mock.Mock
}

func (m *VerifierMock) Verify(token string) (auth.Identity, error) {
	args := m.Called(token)
	var identity auth.Identity
	if val := args.Get(0); val != nil {
		identity = val.(auth.Identity)
	}
	return identity, args.Error(1)
}

var _ repositories.RoomRepository = (*RoomRepositoryMock)(nil)
var _ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
var _ repositories.BookingRepository = (*BookingRepositoryMock)(nil)
var _ repositories.UserRepository = (*UserRepositoryMock)(nil)
var _ auth.Verifier = (*VerifierMock)(nil)

package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"fixora-chat-service/internal/auth"
	"fixora-chat-service/internal/chat"
	"fixora-chat-service/internal/mocks"
	"fixora-chat-service/internal/models"
	"fixora-chat-service/internal/observability"
	"fixora-chat-service/internal/repositories"
)

type socketMocks struct {
	rooms    *mocks.RoomRepositoryMock
	messages *mocks.MessageRepositoryMock
	bookings *mocks.BookingRepositoryMock
	users    *mocks.UserRepositoryMock
}

// dialTestSocket stands up a hub + service over mocks behind a real
// websocket endpoint and returns the connected client side.
func dialTestSocket(t *testing.T, userID int64, role models.Role) (*websocket.Conn, socketMocks) {
	t.Helper()

	m := socketMocks{
		rooms:    new(mocks.RoomRepositoryMock),
		messages: new(mocks.MessageRepositoryMock),
		bookings: new(mocks.BookingRepositoryMock),
		users:    new(mocks.UserRepositoryMock),
	}
	hub := NewHub(zap.NewNop())
	service := chat.NewService(m.rooms, m.messages, m.bookings, m.users, hub, zap.NewNop())

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		client := NewClient(hub, conn, service, userID, role, "test-conn", zap.NewNop())
		hub.Register(client)
		go client.Run()
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, m
}

type outboundEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

func readEvent(t *testing.T, conn *websocket.Conn) outboundEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event outboundEvent
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func sendEvent(t *testing.T, conn *websocket.Conn, event string, data interface{}) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(models.ChatEvent{Event: event, Data: data}))
}

func joinRoom(t *testing.T, conn *websocket.Conn, roomID int64) {
	t.Helper()
	sendEvent(t, conn, models.EventJoinChat, models.JoinChatPayload{ChatRoomID: roomID})
	ack := readEvent(t, conn)
	require.Equal(t, models.EventJoinedChat, ack.Event)
}

func errorMessage(t *testing.T, event outboundEvent) string {
	t.Helper()
	require.Equal(t, models.EventError, event.Event)
	var data models.ErrorData
	require.NoError(t, json.Unmarshal(event.Data, &data))
	return data.Message
}

func TestJoinAckOverSocket(t *testing.T) {
	conn, m := dialTestSocket(t, 101, models.RoleCustomer)

	m.rooms.On("GetRoom", mock.Anything, int64(1)).Return(testRoom(), nil)
	m.rooms.On("TouchLastSeen", mock.Anything, int64(1), models.RoleCustomer).Return(nil)

	sendEvent(t, conn, models.EventJoinChat, models.JoinChatPayload{ChatRoomID: 1})

	ack := readEvent(t, conn)
	require.Equal(t, models.EventJoinedChat, ack.Event)
	var data models.JoinedChatData
	require.NoError(t, json.Unmarshal(ack.Data, &data))
	assert.Equal(t, int64(1), data.ChatRoomID)
	assert.Equal(t, "joined chat room", data.Message)
}

func TestSocketErrorEventsAreScoped(t *testing.T) {
	conn, m := dialTestSocket(t, 303, models.RoleCustomer)
	m.rooms.On("GetRoom", mock.Anything, int64(1)).Return(testRoom(), nil)

	// Malformed frame.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":`)))
	assert.Equal(t, "malformed event payload", errorMessage(t, readEvent(t, conn)))

	// Unknown event name.
	sendEvent(t, conn, "presence_ping", nil)
	assert.Equal(t, "unknown event", errorMessage(t, readEvent(t, conn)))

	// Missing room id in the payload.
	sendEvent(t, conn, models.EventJoinChat, models.JoinChatPayload{})
	assert.Equal(t, "invalid join payload", errorMessage(t, readEvent(t, conn)))

	// Not a participant of the room.
	sendEvent(t, conn, models.EventJoinChat, models.JoinChatPayload{ChatRoomID: 1})
	assert.Contains(t, errorMessage(t, readEvent(t, conn)), "forbidden")

	// Typing before joining.
	sendEvent(t, conn, models.EventTypingOn, models.TypingPayload{ChatRoomID: 1})
	assert.Equal(t, "join the room before typing signals", errorMessage(t, readEvent(t, conn)))
}

func TestSendMessageOverSocket(t *testing.T) {
	conn, m := dialTestSocket(t, 101, models.RoleCustomer)

	m.rooms.On("GetRoom", mock.Anything, int64(1)).Return(testRoom(), nil)
	m.rooms.On("TouchLastSeen", mock.Anything, int64(1), models.RoleCustomer).Return(nil)
	senderID := int64(101)
	m.messages.On("Append", mock.Anything, int64(1), &senderID, models.RoleCustomer, "halo", models.MessageTypeText, []models.Attachment(nil)).
		Return(models.Message{ID: 9, RoomID: 1, SenderRole: models.RoleCustomer, Content: "halo", Type: models.MessageTypeText}, nil)
	m.users.On("GetUser", mock.Anything, int64(101)).
		Return(repositories.User{ID: 101, FullName: "Dina"}, nil)

	joinRoom(t, conn, 1)
	sendEvent(t, conn, models.EventSendMsg, models.SendMessagePayload{ChatRoomID: 1, Content: "halo"})

	// The fanout delivers the committed message back to the sender's own
	// subscribed connection; there is no separate ack.
	event := readEvent(t, conn)
	require.Equal(t, models.EventNewMessage, event.Event)
	var data models.NewMessageData
	require.NoError(t, json.Unmarshal(event.Data, &data))
	assert.Equal(t, int64(9), data.Message.ID)
	assert.Equal(t, "halo", data.Message.Content)
	assert.Equal(t, "Dina", data.Message.SenderName)
	m.messages.AssertExpectations(t)
}

func TestMarkReadOverSocket(t *testing.T) {
	conn, m := dialTestSocket(t, 101, models.RoleCustomer)

	m.rooms.On("GetRoom", mock.Anything, int64(1)).Return(testRoom(), nil)
	m.rooms.On("TouchLastSeen", mock.Anything, int64(1), models.RoleCustomer).Return(nil)
	m.messages.On("MarkRead", mock.Anything, int64(1), int64(101), models.RoleCustomer, []int64(nil)).
		Return([]int64{4, 5}, nil)

	joinRoom(t, conn, 1)
	sendEvent(t, conn, models.EventMarkRead, models.MarkReadPayload{ChatRoomID: 1})

	event := readEvent(t, conn)
	require.Equal(t, models.EventMessageRead, event.Event)
	var data models.MessageReadData
	require.NoError(t, json.Unmarshal(event.Data, &data))
	assert.Equal(t, int64(1), data.ChatRoomID)
	assert.Equal(t, []int64{4, 5}, data.MessageIDs)
	assert.Equal(t, int64(101), data.ReadBy)
}

func TestSlowEventDoesNotBlockTheConnection(t *testing.T) {
	conn, m := dialTestSocket(t, 101, models.RoleCustomer)

	// The join stalls in storage; the next event must still be answered
	// immediately.
	m.rooms.On("GetRoom", mock.Anything, int64(1)).
		Run(func(mock.Arguments) { time.Sleep(300 * time.Millisecond) }).
		Return(testRoom(), nil)
	m.rooms.On("TouchLastSeen", mock.Anything, int64(1), models.RoleCustomer).Return(nil)

	sendEvent(t, conn, models.EventJoinChat, models.JoinChatPayload{ChatRoomID: 1})
	sendEvent(t, conn, "presence_ping", nil)

	first := readEvent(t, conn)
	assert.Equal(t, "unknown event", errorMessage(t, first))

	second := readEvent(t, conn)
	assert.Equal(t, models.EventJoinedChat, second.Event)
}

// capturingPublisher records ops events along with the state of the context
// they were published under.
type capturingPublisher struct {
	mu     sync.Mutex
	events []capturedEvent
}

type capturedEvent struct {
	name   string
	ctxErr error
}

func (p *capturingPublisher) PublishJSON(ctx context.Context, routingKey string, message interface{}, headers map[string]string) error {
	envelope, _ := message.(observability.EventEnvelope)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, capturedEvent{name: envelope.EventName, ctxErr: ctx.Err()})
	return nil
}

func (p *capturingPublisher) snapshot() []capturedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]capturedEvent(nil), p.events...)
}

func TestHandlerConnectionLifecycleEvents(t *testing.T) {
	gin.SetMode(gin.TestMode)

	publisher := &capturingPublisher{}
	observability.SetPublisher(publisher)
	t.Cleanup(func() { observability.SetPublisher(nil) })

	verifier := new(mocks.VerifierMock)
	verifier.On("Verify", "good-token").
		Return(auth.Identity{UserID: 101, Role: models.RoleCustomer}, nil)
	verifier.On("Verify", "bad-token").
		Return(auth.Identity{}, auth.ErrInvalidToken)

	hub := NewHub(zap.NewNop())
	service := chat.NewService(
		new(mocks.RoomRepositoryMock),
		new(mocks.MessageRepositoryMock),
		new(mocks.BookingRepositoryMock),
		new(mocks.UserRepositoryMock),
		hub,
		zap.NewNop(),
	)
	handler := NewHandler(hub, service, verifier, zap.NewNop())

	router := gin.New()
	router.GET("/ws", handler.Handle)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	// An invalid credential refuses the upgrade outright.
	_, resp, err := websocket.DefaultDialer.Dial(wsURL+"?token=bad-token", nil)
	require.Error(t, err)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token=good-token", nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return hub.IsOnline(101) }, time.Second, 10*time.Millisecond)
	conn.Close()
	require.Eventually(t, func() bool { return !hub.IsOnline(101) }, time.Second, 10*time.Millisecond)

	var names []string
	require.Eventually(t, func() bool {
		names = names[:0]
		for _, event := range publisher.snapshot() {
			names = append(names, event.name)
		}
		return len(names) == 2
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"ws_connect", "ws_disconnect"}, names)

	// The disconnect event must not ride the request context, which is
	// cancelled once the handshake handler returns.
	for _, event := range publisher.snapshot() {
		assert.NoError(t, event.ctxErr, event.name)
	}
}

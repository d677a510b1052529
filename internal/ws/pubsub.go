package ws

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"fixora-chat-service/internal/models"
)

const bridgeChannel = "fixora:chat:fanout"

// bridgeFrame is one fanout event relayed between instances. RoomID frames
// go to room subscribers; UserID frames go to personal channels. Instance
// lets receivers skip their own publishes.
type bridgeFrame struct {
	Instance   string           `json:"instance"`
	RoomID     int64            `json:"room_id,omitempty"`
	UserID     int64            `json:"user_id,omitempty"`
	ExceptUser int64            `json:"except_user,omitempty"`
	Event      models.ChatEvent `json:"event"`
}

// Bridge relays room broadcasts and personal notifications through Redis
// pub/sub so clients connected to other instances receive them. Delivery
// stays best-effort: a lost bus message is recovered through REST history.
type Bridge struct {
	rdb      *redis.Client
	hub      *Hub
	instance string
	logger   *zap.Logger
}

// NewBridge wires a bridge between the hub and Redis.
func NewBridge(rdb *redis.Client, hub *Hub, instanceID string, logger *zap.Logger) *Bridge {
	return &Bridge{rdb: rdb, hub: hub, instance: instanceID, logger: logger}
}

// PublishRoom relays a room broadcast to other instances.
func (b *Bridge) PublishRoom(roomID, exceptUser int64, event models.ChatEvent) {
	b.publish(bridgeFrame{Instance: b.instance, RoomID: roomID, ExceptUser: exceptUser, Event: event})
}

// PublishUser relays a personal-channel notification to other instances.
// RoomID is carried so each instance can apply its own not-viewing check.
func (b *Bridge) PublishUser(userID, roomID int64, event models.ChatEvent) {
	b.publish(bridgeFrame{Instance: b.instance, UserID: userID, RoomID: roomID, Event: event})
}

func (b *Bridge) publish(frame bridgeFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		b.logger.Warn("bridge marshal failed", zap.Error(err))
		return
	}
	if err := b.rdb.Publish(context.Background(), bridgeChannel, payload).Err(); err != nil {
		b.logger.Warn("bridge publish failed", zap.Error(err))
	}
}

// Listen consumes relayed frames until ctx is cancelled. Frames published by
// this instance are skipped; everything else replays through the hub's local
// delivery paths only, so the event is not republished.
func (b *Bridge) Listen(ctx context.Context) {
	pubsub := b.rdb.Subscribe(ctx, bridgeChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var frame bridgeFrame
			if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
				b.logger.Warn("bridge unmarshal failed", zap.Error(err))
				continue
			}
			if frame.Instance == b.instance {
				continue
			}
			if frame.UserID != 0 {
				b.hub.notifyUserLocal(frame.UserID, frame.RoomID, frame.Event)
				continue
			}
			b.hub.broadcastRoomLocal(frame.RoomID, frame.Event, frame.ExceptUser)
		}
	}
}

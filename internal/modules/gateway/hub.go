package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"
	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"

	"github.com/mx-space/diary/internal/models"
	pkgredis "github.com/mx-space/diary/internal/pkg/redis"
)

// NewHub creates the socket.io server. rc may be nil for a single instance.
func NewHub(rc *pkgredis.Client, opts Options, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hub{
		id:         uuid.NewString(),
		sidRoom:    make(map[string]string),
		roomCount:  make(map[string]int),
		diaryRooms: make(map[string]map[string]struct{}),
		admins:     make(map[string]*socketio.Socket),
		logSubs:    make(map[string]adminLogSubscription),
		broadcast:  make(chan Message, 256),
		register:   make(chan clientMeta, 256),
		unregister: make(chan clientMeta, 256),
		rc:         rc,
		opts:       opts,
		logger:     logger.Named("Gateway"),
		sio:        socketio.NewServer(nil, nil),
	}
	h.registerNamespaces()
	if opts.Editor != nil {
		opts.Editor.SetNotifier(h.editorEvent)
	}
	return h
}

// Run starts the hub loop and Redis subscriber.
func (h *Hub) Run(ctx context.Context) {
	if h.rc != nil {
		go h.subscribeRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			h.sio.Close(nil)
			return

		case c := <-h.register:
			h.registerClient(c)

		case c := <-h.unregister:
			h.unregisterClient(c)

		case msg := <-h.broadcast:
			h.deliver(msg)
			if h.rc == nil {
				continue
			}
			channel := redisChanPublic
			if msg.Room == RoomAdmin {
				channel = redisChanAdmin
			}
			msg.Origin = h.id
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if err := h.rc.Publish(ctx, channel, string(data)); err != nil {
				h.logger.Warn("gateway publish failed", zap.String("channel", channel), zap.Error(err))
			}
		}
	}
}

func (h *Hub) registerClient(c clientMeta) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if oldRoom, ok := h.sidRoom[c.sid]; ok {
		if oldRoom == c.room {
			return
		}
		if h.roomCount[oldRoom] > 0 {
			h.roomCount[oldRoom]--
		}
	}
	h.sidRoom[c.sid] = c.room
	h.roomCount[c.room]++
}

func (h *Hub) unregisterClient(c clientMeta) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.sidRoom[c.sid]
	if !ok {
		return
	}
	delete(h.sidRoom, c.sid)
	delete(h.admins, c.sid)
	if h.roomCount[room] > 0 {
		h.roomCount[room]--
	}
	for diaryID, members := range h.diaryRooms {
		delete(members, c.sid)
		if len(members) == 0 {
			delete(h.diaryRooms, diaryID)
		}
	}
}

func diaryRoom(diaryID string) string { return roomDiaryPrefix + diaryID }

func (h *Hub) joinDiary(sid, diaryID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.diaryRooms[diaryID] == nil {
		h.diaryRooms[diaryID] = make(map[string]struct{})
	}
	h.diaryRooms[diaryID][sid] = struct{}{}
}

func (h *Hub) leaveDiary(sid, diaryID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	members := h.diaryRooms[diaryID]
	delete(members, sid)
	if len(members) == 0 {
		delete(h.diaryRooms, diaryID)
	}
}

// WatchedDiaries lists diaries with at least one viewer on this instance.
func (h *Hub) WatchedDiaries() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.diaryRooms))
	for id := range h.diaryRooms {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Viewers is the number of local sockets in a diary room.
func (h *Hub) Viewers(diaryID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.diaryRooms[diaryID])
}

// PublishCards pushes a diary snapshot to its room on this instance. Every
// instance watches the store itself, so diary rooms are not fanned out.
func (h *Hub) PublishCards(diaryID string, cards []models.Card) {
	if h.Viewers(diaryID) == 0 {
		return
	}
	h.deliver(Message{
		Event:   eventDiaryCards,
		Payload: map[string]any{"diaryId": diaryID, "cards": cards},
		Room:    diaryRoom(diaryID),
	})
}

func (h *Hub) gatewayMessageFormat(event string, payload any, code *int) gatewayPayload {
	return gatewayPayload{
		Type: event,
		Data: payload,
		Code: code,
	}
}

func (h *Hub) emitNamespace(nsp string, msg Message) {
	_ = h.sio.Of(nsp, nil).Emit("message", h.gatewayMessageFormat(msg.Event, msg.Payload, msg.Code))
}

func (h *Hub) deliver(msg Message) {
	if h.delivered != nil {
		h.delivered(msg)
	}
	switch {
	case msg.Room == RoomAdmin:
		h.emitNamespace(namespaceAdmin, msg)
	case msg.Room == RoomPublic:
		h.emitNamespace(namespaceWeb, msg)
	case msg.Room == "":
		h.emitNamespace(namespaceAdmin, msg)
		h.emitNamespace(namespaceWeb, msg)
	case strings.HasPrefix(msg.Room, roomDiaryPrefix):
		_ = h.sio.Of(namespaceWeb, nil).To(socketio.Room(msg.Room)).
			Emit("message", h.gatewayMessageFormat(msg.Event, msg.Payload, msg.Code))
	}
}

// subscribeRedis listens for broadcasts from other server instances.
func (h *Hub) subscribeRedis(ctx context.Context) {
	pubsub := h.rc.Subscribe(ctx, redisChanAdmin, redisChanPublic)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return

		case redisMsg, ok := <-ch:
			if !ok {
				return
			}
			var msg Message
			if err := json.Unmarshal([]byte(redisMsg.Payload), &msg); err != nil {
				continue
			}
			if msg.Origin == h.id {
				continue
			}
			h.deliver(msg)
		}
	}
}

// Broadcast sends an event to all clients in the given room (or all if room="").
func (h *Hub) Broadcast(event string, payload any, room string) {
	h.broadcast <- Message{Event: event, Payload: payload, Room: room}
}

// BroadcastAdmin sends to admin room only.
func (h *Hub) BroadcastAdmin(event string, payload any) {
	h.Broadcast(event, payload, RoomAdmin)
}

// BroadcastPublic sends to the public room.
func (h *Hub) BroadcastPublic(event string, payload any) {
	h.Broadcast(event, payload, RoomPublic)
}

// ClientCount returns the number of connected clients (optionally filtered by room).
func (h *Hub) ClientCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if room == "" {
		return len(h.sidRoom)
	}
	return h.roomCount[room]
}

// Handler returns the socket.io HTTP handler mounted at /socket.io.
func (h *Hub) Handler() http.Handler {
	return h.sio.ServeHandler(nil)
}

package gateway

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"

	"github.com/mx-space/diary/internal/pkg/apperr"
)

const joinTimeout = 5 * time.Second

type inboundMessage struct {
	Type    string         `json:"type"`
	Payload map[string]any `json:"payload"`
}

func (h *Hub) registerNamespaces() {
	webNS := h.sio.Of(namespaceWeb, nil)
	_ = webNS.On("connection", func(args ...any) {
		client, ok := args[0].(*socketio.Socket)
		if !ok {
			return
		}
		sid := string(client.Id())
		h.register <- clientMeta{sid: sid, room: RoomPublic}
		_ = client.Emit("message", h.gatewayMessageFormat(eventConnect, "WebSocket connected", nil))

		_ = client.On("message", func(eventArgs ...any) {
			msg, ok := parseInbound(eventArgs...)
			if !ok {
				return
			}
			diaryID := strings.TrimPrefix(firstNonEmptyString(
				strFromAny(msg.Payload["diaryId"]),
				strFromAny(msg.Payload["roomName"]),
			), roomDiaryPrefix)
			if diaryID == "" {
				return
			}
			switch msg.Type {
			case messageJoin:
				h.joinViewer(client, diaryID, strFromAny(msg.Payload["token"]))
			case messageLeave:
				client.Leave(socketio.Room(diaryRoom(diaryID)))
				h.leaveDiary(sid, diaryID)
			}
		})

		_ = client.On("disconnect", func(_ ...any) {
			h.unregister <- clientMeta{sid: sid, room: RoomPublic}
		})
	})

	adminNS := h.sio.Of(namespaceAdmin, nil)
	_ = adminNS.On("connection", func(args ...any) {
		client, ok := args[0].(*socketio.Socket)
		if !ok {
			return
		}

		token := normalizeToken(extractToken(client))
		if token == "" || h.opts.ValidateAdmin == nil || !h.opts.ValidateAdmin(token) {
			_ = client.Emit("message", h.gatewayMessageFormat(eventAuthFailed, "auth failed", nil))
			client.Disconnect(true)
			return
		}

		sid := string(client.Id())
		h.mu.Lock()
		h.admins[sid] = client
		h.mu.Unlock()
		h.register <- clientMeta{sid: sid, room: RoomAdmin}
		_ = client.Emit("message", h.gatewayMessageFormat(eventConnect, "WebSocket connected", nil))

		_ = client.On("log", func(eventArgs ...any) {
			h.subscribeStdout(client, parsePrevLogOption(eventArgs))
		})
		_ = client.On("unlog", func(_ ...any) {
			h.unsubscribeStdout(sid)
		})
		h.registerEditorEvents(client)

		_ = client.On("disconnect", func(_ ...any) {
			h.unsubscribeStdout(sid)
			if h.opts.Editor != nil {
				if n := h.opts.Editor.CloseOwner(sid); n > 0 {
					h.logger.Info("closed editor sessions of disconnected admin", zap.String("sid", sid), zap.Int("sessions", n))
				}
			}
			h.unregister <- clientMeta{sid: sid, room: RoomAdmin}
		})
	})
}

// joinViewer puts a /web socket in a diary room once it may read the diary,
// and sends it the current cards.
func (h *Hub) joinViewer(client *socketio.Socket, diaryID, token string) {
	if h.opts.Diaries == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), joinTimeout)
	defer cancel()

	_, cards, err := h.opts.Diaries.Read(ctx, diaryID, token, false)
	if err != nil {
		_ = client.Emit("message", h.gatewayMessageFormat(eventJoinDenied, map[string]any{
			"diaryId": diaryID,
			"message": apperr.PublicMessage(err),
		}, nil))
		return
	}
	client.Join(socketio.Room(diaryRoom(diaryID)))
	h.joinDiary(string(client.Id()), diaryID)
	_ = client.Emit("message", h.gatewayMessageFormat(eventDiaryCards, map[string]any{
		"diaryId": diaryID,
		"cards":   cards,
	}, nil))
}

func extractToken(client *socketio.Socket) string {
	handshake := client.Handshake()
	if handshake == nil {
		return ""
	}
	if token := firstValueFromMultiMap(handshake.Query, "token"); token != "" {
		return token
	}
	if token := firstValueFromMultiMap(handshake.Headers, "authorization"); token != "" {
		return token
	}
	return ""
}

func firstValueFromMultiMap(values map[string][]string, key string) string {
	for k, list := range values {
		if !strings.EqualFold(strings.TrimSpace(k), key) || len(list) == 0 {
			continue
		}
		if v := strings.TrimSpace(list[0]); v != "" {
			return v
		}
	}
	return ""
}

func normalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}

// parseInbound accepts {"type", "payload"} as a decoded map or JSON text.
func parseInbound(args ...any) (inboundMessage, bool) {
	if len(args) == 0 || args[0] == nil {
		return inboundMessage{}, false
	}

	var msg inboundMessage
	switch raw := args[0].(type) {
	case map[string]any:
		msg.Type = strFromAny(raw["type"])
		msg.Payload = mapFromAny(raw["payload"])
	case string:
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			return inboundMessage{}, false
		}
	case []byte:
		if err := json.Unmarshal(raw, &msg); err != nil {
			return inboundMessage{}, false
		}
	default:
		return inboundMessage{}, false
	}

	msg.Type = strings.TrimSpace(msg.Type)
	if msg.Type == "" {
		return inboundMessage{}, false
	}
	if msg.Payload == nil {
		msg.Payload = map[string]any{}
	}
	return msg, true
}

// mapFromAny normalises a payload argument into a map.
func mapFromAny(v any) map[string]any {
	switch typed := v.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		return typed
	case string:
		out := map[string]any{}
		if err := json.Unmarshal([]byte(typed), &out); err != nil {
			return map[string]any{}
		}
		return out
	default:
		data, err := json.Marshal(typed)
		if err != nil {
			return map[string]any{}
		}
		out := map[string]any{}
		if err := json.Unmarshal(data, &out); err != nil {
			return map[string]any{}
		}
		return out
	}
}

func strFromAny(v any) string {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

func intFromAny(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case int64:
		return int(n), true
	}
	return 0, false
}

func firstNonEmptyString(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

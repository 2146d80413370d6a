package gateway

import (
	"context"
	"sync"

	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"

	"github.com/mx-space/diary/internal/models"
	"github.com/mx-space/diary/internal/modules/editor"
	pkgredis "github.com/mx-space/diary/internal/pkg/redis"
)

const (
	RoomAdmin       = "admin"
	RoomPublic      = "public"
	roomDiaryPrefix = "diary:"
	namespaceAdmin  = "/admin"
	namespaceWeb    = "/web"
	redisChanAdmin  = "diary:gateway:admin"
	redisChanPublic = "diary:gateway:public"

	nativeLogSnapshotChunkSize = 32 * 1024
)

// Outbound event types, sent as {"type", "data"} on the "message" event.
const (
	eventConnect      = "GATEWAY_CONNECT"
	eventAuthFailed   = "AUTH_FAILED"
	eventStdout       = "STDOUT"
	eventDiaryCards   = "DIARY_CARDS"
	eventJoinDenied   = "DIARY_LOCKED"
	eventEditorState  = "EDITOR_STATE"
	eventEditorSaveKO = "EDITOR_SAVE_FAILED"
	eventEditorError  = "EDITOR_ERROR"
	eventEditorClosed = "EDITOR_CLOSED"
)

// Inbound /web message types.
const (
	messageJoin  = "join"
	messageLeave = "leave"
)

// Diaries gates the /web diary rooms.
type Diaries interface {
	Read(ctx context.Context, id, unlockToken string, isAdmin bool) (*models.Diary, []models.Card, error)
}

// Options wires the hub to the rest of the application. Every field is optional.
type Options struct {
	ValidateAdmin func(token string) bool
	Diaries       Diaries
	Editor        *editor.Manager
	LogDir        string
}

// Message is the envelope used by hub broadcasts and Redis fan-out.
type Message struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
	Code    *int   `json:"code,omitempty"`
	Room    string `json:"room,omitempty"`
	// Origin is the instance that published the message; it skips its own echo.
	Origin string `json:"origin,omitempty"`
}

type gatewayPayload struct {
	Type string `json:"type"`
	Data any    `json:"data"`
	Code *int   `json:"code,omitempty"`
}

type clientMeta struct {
	sid  string
	room string
}

type adminLogSubscription struct {
	streamID int
	stopCh   chan struct{}
}

// Hub manages socket.io namespaces and cluster fan-out.
type Hub struct {
	id string

	mu        sync.RWMutex
	sidRoom   map[string]string
	roomCount map[string]int
	// diaryRooms tracks /web sockets per diary room.
	diaryRooms map[string]map[string]struct{}
	admins     map[string]*socketio.Socket

	logSubMu sync.Mutex
	logSubs  map[string]adminLogSubscription

	broadcast  chan Message
	register   chan clientMeta
	unregister chan clientMeta

	rc     *pkgredis.Client
	opts   Options
	logger *zap.Logger
	sio    *socketio.Server

	// delivered observes every local delivery; tests only.
	delivered func(Message)
}

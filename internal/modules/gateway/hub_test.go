package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mx-space/diary/internal/models"
	"github.com/mx-space/diary/internal/modules/content/card"
	"github.com/mx-space/diary/internal/modules/editor"
	"github.com/mx-space/diary/internal/pkg/apperr"
	pkgredis "github.com/mx-space/diary/internal/pkg/redis"
	"github.com/mx-space/diary/internal/store"
)

type deliveries struct {
	mu   sync.Mutex
	msgs []Message
}

func (d *deliveries) add(m Message) {
	d.mu.Lock()
	d.msgs = append(d.msgs, m)
	d.mu.Unlock()
}

func (d *deliveries) events(name string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, m := range d.msgs {
		if m.Event == name {
			n++
		}
	}
	return n
}

func TestParseInbound(t *testing.T) {
	msg, ok := parseInbound(map[string]any{"type": "join", "payload": map[string]any{"diaryId": "d1"}})
	require.True(t, ok)
	assert.Equal(t, "join", msg.Type)
	assert.Equal(t, "d1", msg.Payload["diaryId"])

	msg, ok = parseInbound(`{"type":" leave ","payload":{"roomName":"diary:d2"}}`)
	require.True(t, ok)
	assert.Equal(t, "leave", msg.Type)

	msg, ok = parseInbound(`{"type":"join"}`)
	require.True(t, ok)
	assert.NotNil(t, msg.Payload)

	_, ok = parseInbound(`{"payload":{}}`)
	assert.False(t, ok)
	_, ok = parseInbound(42)
	assert.False(t, ok)
	_, ok = parseInbound()
	assert.False(t, ok)
}

func TestTokenAndOptionHelpers(t *testing.T) {
	assert.Equal(t, "abc", normalizeToken("Bearer abc"))
	assert.Equal(t, "abc", normalizeToken(" abc "))
	assert.Equal(t, "x", firstValueFromMultiMap(map[string][]string{"Authorization": {" x "}}, "authorization"))

	assert.True(t, parsePrevLogOption(nil))
	assert.False(t, parsePrevLogOption([]any{map[string]any{"prevLog": false}}))
	assert.False(t, parsePrevLogOption([]any{`{"prevLog":"off"}`}))
	assert.True(t, parsePrevLogOption([]any{map[string]any{"prevLog": float64(1)}}))

	n, ok := intFromAny(float64(3))
	assert.True(t, ok)
	assert.Equal(t, 3, n)
	_, ok = intFromAny("3")
	assert.False(t, ok)
}

func TestDiaryRoomsTrackViewers(t *testing.T) {
	h := NewHub(nil, Options{}, nil)
	got := &deliveries{}
	h.delivered = got.add

	h.PublishCards("d1", nil)
	assert.Equal(t, 0, got.events(eventDiaryCards), "no viewers, nothing sent")

	h.registerClient(clientMeta{sid: "s1", room: RoomPublic})
	h.registerClient(clientMeta{sid: "s2", room: RoomPublic})
	h.joinDiary("s1", "d2")
	h.joinDiary("s2", "d1")
	h.joinDiary("s1", "d1")
	assert.Equal(t, []string{"d1", "d2"}, h.WatchedDiaries())
	assert.Equal(t, 2, h.Viewers("d1"))
	assert.Equal(t, 2, h.ClientCount(RoomPublic))

	h.PublishCards("d1", []models.Card{{Topic: "x"}})
	assert.Equal(t, 1, got.events(eventDiaryCards))

	h.leaveDiary("s2", "d1")
	h.unregisterClient(clientMeta{sid: "s1", room: RoomPublic})
	assert.Empty(t, h.WatchedDiaries())
	assert.Equal(t, 1, h.ClientCount(""))
}

func TestRedisFanOutSkipsOwnEcho(t *testing.T) {
	mr := miniredis.RunT(t)
	connect := func() *pkgredis.Client {
		c, err := pkgredis.Connect("redis://" + mr.Addr())
		require.NoError(t, err)
		t.Cleanup(func() { _ = c.Close() })
		return c
	}

	a := NewHub(connect(), Options{}, nil)
	b := NewHub(connect(), Options{}, nil)
	gotA, gotB := &deliveries{}, &deliveries{}
	a.delivered = gotA.add
	b.delivered = gotB.add

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go a.Run(ctx)
	go b.Run(ctx)
	require.Eventually(t, func() bool {
		return mr.PubSubNumSub(redisChanAdmin)[redisChanAdmin] == 2
	}, 2*time.Second, 10*time.Millisecond)

	a.BroadcastAdmin("DIARY_CREATE", map[string]any{"id": "d1"})

	require.Eventually(t, func() bool { return gotB.events("DIARY_CREATE") == 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, gotA.events("DIARY_CREATE"))
}

type anyDiary struct{}

func (anyDiary) Exists(context.Context, string) error { return nil }

func newEditorHub(t *testing.T) *Hub {
	t.Helper()
	mem := store.NewMemory()
	mgr := editor.NewManager(card.NewService(mem, nil), anyDiary{}, nil, editor.Options{Debounce: time.Hour}, nil)
	t.Cleanup(func() {
		mgr.Shutdown()
		_ = mem.Close(context.Background())
	})
	return NewHub(nil, Options{Editor: mgr}, nil)
}

func TestHandleEditorEvents(t *testing.T) {
	ctx := context.Background()
	h := newEditorHub(t)

	res, err := h.handleEditor(ctx, "sock1", EditorOpen, map[string]any{"diaryId": "d1"})
	require.NoError(t, err)
	st := res.(editor.State)
	require.Len(t, st.Cards, 1)
	sid := st.SessionID

	res, err = h.handleEditor(ctx, "sock1", EditorAdd, map[string]any{"sessionId": sid})
	require.NoError(t, err)
	assert.Len(t, res.(editor.State).Cards, 2)

	res, err = h.handleEditor(ctx, "sock1", EditorEdit, map[string]any{"sessionId": sid, "topic": "Fear"})
	require.NoError(t, err)
	assert.Equal(t, "Fear", res.(editor.State).Cards[1].Topic)

	res, err = h.handleEditor(ctx, "sock1", EditorNav, map[string]any{"sessionId": sid, "direction": "goto", "index": float64(0)})
	require.NoError(t, err)
	assert.Equal(t, 0, res.(editor.State).Current)

	res, err = h.handleEditor(ctx, "sock1", EditorUndo, map[string]any{"sessionId": sid})
	require.NoError(t, err)
	assert.True(t, res.(travelResult).Applied)

	_, err = h.handleEditor(ctx, "sock2", EditorAdd, map[string]any{"sessionId": sid})
	assert.True(t, apperr.Is(err, apperr.KindForbidden))

	_, err = h.handleEditor(ctx, "sock1", EditorNav, map[string]any{"sessionId": sid, "direction": "up"})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = h.handleEditor(ctx, "sock1", EditorClose, map[string]any{"sessionId": sid})
	require.NoError(t, err)
	_, err = h.handleEditor(ctx, "sock1", EditorAdd, map[string]any{"sessionId": sid})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestHandleEditorRequiresIDs(t *testing.T) {
	h := newEditorHub(t)
	_, err := h.handleEditor(context.Background(), "sock1", EditorOpen, nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = h.handleEditor(context.Background(), "sock1", EditorUndo, map[string]any{})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

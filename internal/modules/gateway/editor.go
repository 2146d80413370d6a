package gateway

import (
	"context"
	"time"

	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"

	"github.com/mx-space/diary/internal/modules/editor"
	"github.com/mx-space/diary/internal/pkg/apperr"
)

const editorOpTimeout = 10 * time.Second

// Editor events accepted on the /admin namespace. Each takes one object
// payload; every session operation needs "sessionId".
const (
	EditorOpen      = "editor:open"
	EditorEdit      = "editor:edit"
	EditorNav       = "editor:nav"
	EditorAdd       = "editor:add"
	EditorDuplicate = "editor:duplicate"
	EditorDelete    = "editor:delete"
	EditorReorder   = "editor:reorder"
	EditorUndo      = "editor:undo"
	EditorRedo      = "editor:redo"
	EditorClose     = "editor:close"
)

var editorEvents = []string{
	EditorOpen, EditorEdit, EditorNav, EditorAdd, EditorDuplicate,
	EditorDelete, EditorReorder, EditorUndo, EditorRedo, EditorClose,
}

func (h *Hub) registerEditorEvents(client *socketio.Socket) {
	if h.opts.Editor == nil {
		return
	}
	owner := string(client.Id())
	for _, event := range editorEvents {
		_ = client.On(event, func(args ...any) {
			var payload map[string]any
			if len(args) > 0 {
				payload = mapFromAny(args[0])
			}
			ctx, cancel := context.WithTimeout(context.Background(), editorOpTimeout)
			defer cancel()

			result, err := h.handleEditor(ctx, owner, event, payload)
			if err != nil {
				_ = client.Emit("message", h.gatewayMessageFormat(eventEditorError, map[string]any{
					"event":   event,
					"kind":    apperr.KindOf(err),
					"message": apperr.PublicMessage(err),
				}, nil))
				return
			}
			typ := eventEditorState
			if event == EditorClose {
				typ = eventEditorClosed
			}
			_ = client.Emit("message", h.gatewayMessageFormat(typ, result, nil))
		})
	}
}

type travelResult struct {
	State   editor.State `json:"state"`
	Applied bool         `json:"applied"`
}

// handleEditor runs one editor event for owner and returns the reply payload.
func (h *Hub) handleEditor(ctx context.Context, owner, event string, payload map[string]any) (any, error) {
	mgr := h.opts.Editor
	if mgr == nil {
		return nil, apperr.New(apperr.KindInternal, "editor is not available")
	}
	if payload == nil {
		payload = map[string]any{}
	}

	if event == EditorOpen {
		diaryID := strFromAny(payload["diaryId"])
		if diaryID == "" {
			return nil, apperr.Validation("diaryId is required")
		}
		_, st, err := mgr.Open(ctx, diaryID, owner)
		if err != nil {
			return nil, err
		}
		return st, nil
	}

	sessionID := strFromAny(payload["sessionId"])
	if sessionID == "" {
		return nil, apperr.Validation("sessionId is required")
	}
	if o, ok := mgr.Owner(sessionID); !ok {
		return nil, apperr.NotFound("editor session not found")
	} else if o != owner {
		return nil, apperr.Forbidden("editor session belongs to another client")
	}
	if event == EditorClose {
		if err := mgr.Close(sessionID); err != nil {
			return nil, err
		}
		return map[string]any{"sessionId": sessionID}, nil
	}
	s, err := mgr.Get(sessionID)
	if err != nil {
		return nil, err
	}

	switch event {
	case EditorEdit:
		edit := editor.TextEdit{}
		if v, ok := payload["topic"].(string); ok {
			edit.Topic = &v
		}
		if v, ok := payload["bodyText"].(string); ok {
			edit.BodyText = &v
		}
		return s.EditText(edit)
	case EditorNav:
		switch strFromAny(payload["direction"]) {
		case "next":
			return s.Next()
		case "prev":
			return s.Prev()
		case "goto":
			i, ok := intFromAny(payload["index"])
			if !ok {
				return nil, apperr.Validation("index is required")
			}
			return s.Goto(i)
		}
		return nil, apperr.Validation("direction must be next, prev or goto")
	case EditorAdd:
		return s.AddCard(ctx)
	case EditorDuplicate:
		return s.DuplicateCard(ctx)
	case EditorDelete:
		return s.DeleteCard(ctx)
	case EditorReorder:
		cardID := strFromAny(payload["cardId"])
		target, ok := intFromAny(payload["targetIndex"])
		if cardID == "" || !ok {
			return nil, apperr.Validation("cardId and targetIndex are required")
		}
		return s.Reorder(ctx, cardID, target)
	case EditorUndo:
		st, applied, err := s.Undo(ctx)
		return travelResult{State: st, Applied: applied}, err
	case EditorRedo:
		st, applied, err := s.Redo(ctx)
		return travelResult{State: st, Applied: applied}, err
	}
	return nil, apperr.Validation("unknown editor event %q", event)
}

// editorEvent routes session notifications to the socket that owns the
// session, or to every admin when it was opened over HTTP.
func (h *Hub) editorEvent(ev editor.Event) {
	typ := eventEditorState
	if ev.Type == editor.EventSaveFailed {
		typ = eventEditorSaveKO
	}

	owner, _ := h.opts.Editor.Owner(ev.SessionID)
	h.mu.RLock()
	client, ok := h.admins[owner]
	h.mu.RUnlock()
	if ok {
		_ = client.Emit("message", h.gatewayMessageFormat(typ, ev, nil))
		return
	}

	select {
	case h.broadcast <- Message{Event: typ, Payload: ev, Room: RoomAdmin}:
	default:
		h.logger.Warn("gateway broadcast queue full, editor event dropped",
			zap.String("sessionId", ev.SessionID), zap.String("type", ev.Type))
	}
}

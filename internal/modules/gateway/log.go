package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"

	"github.com/mx-space/diary/internal/pkg/nativelog"
)

func parsePrevLogOption(args []any) bool {
	if len(args) == 0 {
		return true
	}
	return extractPrevLog(args[0], true)
}

func extractPrevLog(raw any, fallback bool) bool {
	switch v := raw.(type) {
	case map[string]any:
		if value, ok := v["prevLog"]; ok {
			return toBool(value, fallback)
		}
	case string:
		payload := make(map[string]any)
		if err := json.Unmarshal([]byte(v), &payload); err == nil {
			if value, ok := payload["prevLog"]; ok {
				return toBool(value, fallback)
			}
		}
	}
	return fallback
}

func toBool(raw any, fallback bool) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	case float64:
		return v != 0
	case int:
		return v != 0
	}
	return fallback
}

// subscribeStdout streams log lines to an admin socket until unsubscribed.
func (h *Hub) subscribeStdout(client *socketio.Socket, prevLog bool) {
	sid := string(client.Id())
	if sid == "" {
		return
	}

	h.logSubMu.Lock()
	if _, exists := h.logSubs[sid]; exists {
		h.logSubMu.Unlock()
		return
	}
	streamID, stream := nativelog.Subscribe(512)
	stopCh := make(chan struct{})
	h.logSubs[sid] = adminLogSubscription{
		streamID: streamID,
		stopCh:   stopCh,
	}
	h.logSubMu.Unlock()

	if prevLog {
		h.emitLogSnapshot(client)
	}

	go func() {
		for {
			select {
			case <-stopCh:
				return
			case frame, ok := <-stream:
				if !ok {
					return
				}
				if frame == "" {
					continue
				}
				_ = client.Emit("message", h.gatewayMessageFormat(eventStdout, frame, nil))
			}
		}
	}()
}

func (h *Hub) unsubscribeStdout(sid string) {
	h.logSubMu.Lock()
	sub, exists := h.logSubs[sid]
	if exists {
		delete(h.logSubs, sid)
	}
	h.logSubMu.Unlock()
	if !exists {
		return
	}

	close(sub.stopCh)
	nativelog.Unsubscribe(sub.streamID)
}

// emitLogSnapshot sends today's log file in chunks.
func (h *Hub) emitLogSnapshot(client *socketio.Socket) {
	dir := h.opts.LogDir
	if dir == "" {
		dir = nativelog.ResolveDir()
	}
	path := filepath.Join(dir, nativelog.TodayFilename(time.Now()))
	file, err := os.Open(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			h.logger.Warn("gateway log snapshot open failed", zap.String("path", path), zap.Error(err))
		}
		return
	}
	defer file.Close()

	buf := make([]byte, nativeLogSnapshotChunkSize)
	for {
		n, readErr := file.Read(buf)
		if n > 0 {
			_ = client.Emit("message", h.gatewayMessageFormat(eventStdout, string(buf[:n]), nil))
		}
		if readErr == nil {
			continue
		}
		if !errors.Is(readErr, io.EOF) {
			h.logger.Warn("gateway log snapshot read failed", zap.String("path", path), zap.Error(readErr))
		}
		return
	}
}

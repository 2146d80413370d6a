package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	IdempotenceHeader = "X-Idempotence-Key"
	idempotenceTTL    = 60 * time.Second
	idempotencePrefix = "diary:idempotence:"
)

// KeyValueStore is the subset of the redis client used for idempotence marks.
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
}

// Idempotence rejects a repeated create request (same key, or same method,
// url, body and client) for a minute after it succeeded, and while it is
// still in flight. Failed requests release the key.
func Idempotence(kv KeyValueStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		key, err := resolveIdempotenceKey(c)
		if err != nil || key == "" {
			c.Next()
			return
		}
		redisKey := idempotencePrefix + key
		ctx := c.Request.Context()

		val, err := kv.Get(ctx, redisKey)
		if err != nil {
			c.Next()
			return
		}
		if val != "" {
			msg := "the same request can only be sent once per minute"
			if val == "0" {
				msg = "the same request is still being processed"
			}
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"ok": 0, "code": http.StatusConflict, "message": msg})
			return
		}
		if err := kv.Set(ctx, redisKey, "0", idempotenceTTL); err != nil {
			c.Next()
			return
		}

		c.Next()

		if status := c.Writer.Status(); status >= 200 && status < 300 {
			_ = kv.Set(context.WithoutCancel(ctx), redisKey, "1", idempotenceTTL)
		} else {
			_ = kv.Del(context.WithoutCancel(ctx), redisKey)
		}
	}
}

func resolveIdempotenceKey(c *gin.Context) (string, error) {
	if hdr := c.GetHeader(IdempotenceHeader); hdr != "" {
		return hdr, nil
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", err
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))
	if len(body) == 0 {
		return "", nil
	}

	raw := c.Request.Method + "|" + c.Request.URL.String() + "|" + string(body) + "|" +
		c.Request.UserAgent() + "|" + c.ClientIP() + "|" + extractToken(c)
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:]), nil
}

// Package session keeps admin login sessions in Redis. A JWT only carries the
// session id; revoking the Redis entry invalidates the token immediately.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	jwtpkg "github.com/mx-space/diary/internal/pkg/jwt"
	redispkg "github.com/mx-space/diary/internal/pkg/redis"
)

const (
	DefaultTTL = 7 * 24 * time.Hour
	keyPrefix  = "diary:session:"
)

var ErrNotFound = errors.New("session not found or expired")

// Session is the data stored for each login.
type Session struct {
	ID        string    `json:"id"`
	IP        string    `json:"ip"`
	UA        string    `json:"ua"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type Store struct {
	rdb *redispkg.Client
	ttl time.Duration
}

func NewStore(rdb *redispkg.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) key(id string) string {
	return keyPrefix + id
}

// Issue creates a session and signs an admin JWT bound to it.
func (s *Store) Issue(ctx context.Context, ip, ua string) (string, *Session, error) {
	now := time.Now()
	sess := &Session{
		ID:        uuid.NewString(),
		IP:        strings.TrimSpace(ip),
		UA:        strings.TrimSpace(ua),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return "", nil, fmt.Errorf("marshal session: %w", err)
	}
	if err := s.rdb.Set(ctx, s.key(sess.ID), data, s.ttl); err != nil {
		return "", nil, fmt.Errorf("save session: %w", err)
	}

	token, err := jwtpkg.SignAdmin(sess.ID, s.ttl)
	if err != nil {
		_ = s.rdb.Del(ctx, s.key(sess.ID))
		return "", nil, err
	}
	return token, sess, nil
}

// Lookup returns the live session for id.
func (s *Store) Lookup(ctx context.Context, id string) (*Session, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrNotFound
	}
	raw, err := s.rdb.Get(ctx, s.key(id))
	if err != nil {
		return nil, fmt.Errorf("lookup session: %w", err)
	}
	if raw == "" {
		return nil, ErrNotFound
	}
	var sess Session
	if err := json.Unmarshal([]byte(raw), &sess); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}
	return &sess, nil
}

// Verify parses an admin token and checks its session is still live.
func (s *Store) Verify(ctx context.Context, token string) (*Session, error) {
	claims, err := jwtpkg.ParseScoped(token, jwtpkg.ScopeAdmin)
	if err != nil {
		return nil, err
	}
	return s.Lookup(ctx, claims.SessionID)
}

func (s *Store) Revoke(ctx context.Context, id string) error {
	if err := s.rdb.Del(ctx, s.key(id)); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// RevokeAllExcept removes every session but keepID. Used after a password change.
func (s *Store) RevokeAllExcept(ctx context.Context, keepID string) error {
	keys, err := s.rdb.Keys(ctx, keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}
	var drop []string
	for _, k := range keys {
		if k != s.key(keepID) {
			drop = append(drop, k)
		}
	}
	if len(drop) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, drop...)
}

package jwt

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

const defaultSecret = "diary-secret-change-me"

const (
	ScopeAdmin  = "admin"
	ScopeUnlock = "unlock"
)

var secret = []byte(defaultSecret)

// ErrScope is returned when a valid token was issued for another purpose.
var ErrScope = errors.New("token scope mismatch")

// SetSecret configures the JWT signing secret (call on startup).
func SetSecret(s string) {
	if s != "" {
		secret = []byte(s)
	}
}

// Claims is the JWT payload. Admin tokens carry a session id that must
// still exist in the session store; unlock tokens carry the diary id.
type Claims struct {
	Scope     string `json:"scope"`
	SessionID string `json:"sid,omitempty"`
	DiaryID   string `json:"did,omitempty"`
	jwtlib.RegisteredClaims
}

// SignAdmin creates an admin token bound to sessionID.
func SignAdmin(sessionID string, ttl time.Duration) (string, error) {
	return sign(Claims{Scope: ScopeAdmin, SessionID: sessionID}, ttl)
}

// SignUnlock creates a token granting read access to a locked diary.
func SignUnlock(diaryID string, ttl time.Duration) (string, error) {
	return sign(Claims{Scope: ScopeUnlock, DiaryID: diaryID}, ttl)
}

func sign(claims Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	claims.RegisteredClaims = jwtlib.RegisteredClaims{
		ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
		IssuedAt:  jwtlib.NewNumericDate(now),
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// Parse validates a token string and returns the claims.
func Parse(tokenStr string) (*Claims, error) {
	token, err := jwtlib.ParseWithClaims(tokenStr, &Claims{}, func(t *jwtlib.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// ParseScoped parses tokenStr and checks that it was issued for scope.
func ParseScoped(tokenStr, scope string) (*Claims, error) {
	claims, err := Parse(tokenStr)
	if err != nil {
		return nil, err
	}
	if claims.Scope != scope {
		return nil, ErrScope
	}
	return claims, nil
}

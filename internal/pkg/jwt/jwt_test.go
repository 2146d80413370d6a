package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndParseScoped(t *testing.T) {
	SetSecret("test-secret")

	admin, err := SignAdmin("sid-1", time.Hour)
	require.NoError(t, err)
	claims, err := ParseScoped(admin, ScopeAdmin)
	require.NoError(t, err)
	assert.Equal(t, "sid-1", claims.SessionID)

	unlock, err := SignUnlock("diary-1", time.Hour)
	require.NoError(t, err)
	_, err = ParseScoped(unlock, ScopeAdmin)
	assert.ErrorIs(t, err, ErrScope, "an unlock token must not grant admin access")

	claims, err = ParseScoped(unlock, ScopeUnlock)
	require.NoError(t, err)
	assert.Equal(t, "diary-1", claims.DiaryID)
}

func TestParseRejectsExpiredAndForeign(t *testing.T) {
	SetSecret("test-secret")
	expired, err := SignAdmin("sid", -time.Minute)
	require.NoError(t, err)
	_, err = Parse(expired)
	assert.Error(t, err)

	token, err := SignAdmin("sid", time.Hour)
	require.NoError(t, err)
	SetSecret("rotated")
	defer SetSecret("test-secret")
	_, err = Parse(token)
	assert.Error(t, err)
}

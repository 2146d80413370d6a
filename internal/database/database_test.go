package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mx-space/diary/internal/config"
	"github.com/mx-space/diary/internal/store"
)

func TestConnectMemory(t *testing.T) {
	cfg, err := config.Parse([]byte("store: memory\n"))
	require.NoError(t, err)

	s, err := Connect(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer s.Close(context.Background())

	_, ok := s.(*store.Memory)
	assert.True(t, ok)
}

package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mx-space/diary/internal/store"
)

func TestStoredValueOverridesDefault(t *testing.T) {
	ctx := context.Background()
	svc := NewService(store.NewMemory(), Defaults{AdminPasswordHash: "cfg-hash"}, nil)

	h, err := svc.AdminPasswordHash(ctx)
	require.NoError(t, err)
	assert.Equal(t, "cfg-hash", h)

	require.NoError(t, svc.SetAdminPasswordHash(ctx, "db-hash"))
	require.NoError(t, svc.SetAdminPasswordHash(ctx, "db-hash-2"))
	h, err = svc.AdminPasswordHash(ctx)
	require.NoError(t, err)
	assert.Equal(t, "db-hash-2", h)

	u, err := svc.UniversalPasswordHash(ctx)
	require.NoError(t, err)
	assert.Empty(t, u)
}

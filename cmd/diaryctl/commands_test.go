package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/mx-space/diary/internal/app"
	"github.com/mx-space/diary/internal/config"
	"github.com/mx-space/diary/internal/models"
	"github.com/mx-space/diary/internal/modules/content/diary"
	"github.com/mx-space/diary/internal/store"
)

type diaryDTO = diary.CreateDiaryDTO

// memoryEnv runs commands against one in-memory store shared across calls.
func memoryEnv(t *testing.T) (*env, *bytes.Buffer, *app.Services) {
	t.Helper()
	cfg, err := config.Parse([]byte("store: memory\n"))
	require.NoError(t, err)
	cfg.Paths.Backups = t.TempDir()
	svc, err := app.NewServices(store.NewMemory(), cfg, nil)
	require.NoError(t, err)

	var out bytes.Buffer
	e := newEnv(&out)
	e.open = func(context.Context, *env) (*app.Services, func(), error) {
		return svc, func() {}, nil
	}
	return e, &out, svc
}

func run(e *env, args ...string) error {
	cmd := newRootCmd(e)
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestHashPassword(t *testing.T) {
	e, out, _ := memoryEnv(t)
	require.NoError(t, run(e, "hash-password", "correct horse"))
	hash := strings.TrimSpace(out.String())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("correct horse")))

	out.Reset()
	e.in = strings.NewReader("from stdin!\n")
	require.NoError(t, run(e, "hash-password"))
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(strings.TrimSpace(out.String())), []byte("from stdin!")))

	assert.Error(t, run(e, "hash-password", "short"))
}

func TestImportAndCompact(t *testing.T) {
	e, out, svc := memoryEnv(t)
	ctx := context.Background()

	file := filepath.Join(t.TempDir(), "situations.md")
	require.NoError(t, os.WriteFile(file, []byte("- Conflict at work\n  - Felt tense\n    - Took a walk\n"), 0o644))
	require.NoError(t, run(e, "import-situations", file))
	assert.Contains(t, out.String(), "imported 1 situations, 1 before items, 1 after items")

	diaries, err := svc.Diaries.Create(ctx, []diaryDTO{{ClientID: "c-1", Name: "Jane"}})
	require.NoError(t, err)
	id := diaries[0].ID
	_, err = svc.Cards.Create(ctx, id, "A", "", 0.25)
	require.NoError(t, err)
	_, err = svc.Cards.Create(ctx, id, "B", "", 0.5)
	require.NoError(t, err)

	out.Reset()
	require.NoError(t, run(e, "compact", id))
	assert.Equal(t, "compacted 2 cards\n", out.String())

	cards, err := svc.Cards.List(ctx, id)
	require.NoError(t, err)
	require.Len(t, cards, 2)
	assert.Equal(t, []float64{1, 2}, []float64{cards[0].Order, cards[1].Order})

	assert.Error(t, run(e, "compact", "missing"))

	out.Reset()
	require.NoError(t, run(e, "export", "cards", id))
	assert.Equal(t, "order,topic,body\n1,A,\n2,B,\n", out.String())

	assert.Error(t, run(e, "export", "cards"))
}

func TestBackupAndRestore(t *testing.T) {
	e, out, svc := memoryEnv(t)
	ctx := context.Background()
	_, err := svc.Diaries.Create(ctx, []diaryDTO{{ClientID: "c-1", Name: "Jane"}})
	require.NoError(t, err)

	require.NoError(t, run(e, "backup"))
	path := strings.TrimSpace(out.String())
	assert.FileExists(t, path)

	assert.Error(t, run(e, "restore", path), "restore needs --yes")

	_, err = svc.Diaries.Create(ctx, []diaryDTO{{ClientID: "c-2", Name: "Later"}})
	require.NoError(t, err)

	out.Reset()
	require.NoError(t, run(e, "restore", "--yes", path))
	assert.Contains(t, out.String(), models.CollectionDiaries+": 1")
}

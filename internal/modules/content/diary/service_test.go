package diary

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/crypto/bcrypt"

	"github.com/mx-space/diary/internal/models"
	"github.com/mx-space/diary/internal/modules/content/card"
	"github.com/mx-space/diary/internal/pkg/apperr"
	jwtpkg "github.com/mx-space/diary/internal/pkg/jwt"
	"github.com/mx-space/diary/internal/pkg/pagination"
	"github.com/mx-space/diary/internal/store"
)

type fakeSecrets struct{ hash string }

func (f fakeSecrets) UniversalPasswordHash(context.Context) (string, error) { return f.hash, nil }

type fixture struct {
	svc   *Service
	cards *card.Service
	mem   *store.Memory
}

func newFixture(t *testing.T, universal string) fixture {
	t.Helper()
	jwtpkg.SetSecret("diary-test")
	mem := store.NewMemory()
	t.Cleanup(func() { _ = mem.Close(context.Background()) })

	hash := ""
	if universal != "" {
		b, err := bcrypt.GenerateFromPassword([]byte(universal), bcrypt.MinCost)
		require.NoError(t, err)
		hash = string(b)
	}
	cards := card.NewService(mem, nil)
	svc := NewService(mem, cards, fakeSecrets{hash: hash}, func(id string) string {
		return "https://diary.test/diary/" + id
	}, nil)
	return fixture{svc: svc, cards: cards, mem: mem}
}

func createOne(t *testing.T, f fixture, dto CreateDiaryDTO) models.Diary {
	t.Helper()
	out, err := f.svc.Create(context.Background(), []CreateDiaryDTO{dto})
	require.NoError(t, err)
	require.Len(t, out, 1)
	return out[0]
}

func TestCreateBuildsURLAndNormalizes(t *testing.T) {
	f := newFixture(t, "")
	d := createOne(t, f, CreateDiaryDTO{ClientID: " c-1 ", Name: " Alice ", Gender: "Female"})

	assert.Equal(t, "c-1", d.ClientID)
	assert.Equal(t, "Alice", d.Name)
	assert.Equal(t, models.GenderFemale, d.Gender)
	assert.Equal(t, "https://diary.test/diary/"+d.ID, d.URL)
	assert.False(t, d.Locked())

	got, err := f.svc.Get(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.URL, got.URL)
}

func TestCreateBulkIsAllOrNothingOnValidation(t *testing.T) {
	f := newFixture(t, "")
	_, err := f.svc.Create(context.Background(), []CreateDiaryDTO{
		{ClientID: "a", Name: "ok"},
		{ClientID: "b", Name: ""},
	})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.Contains(t, apperr.PublicMessage(err), "diary 2")

	n, err := f.mem.Count(context.Background(), models.CollectionDiaries, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, "")
	cases := []struct {
		name string
		dto  CreateDiaryDTO
	}{
		{"missing client id", CreateDiaryDTO{Name: "n"}},
		{"client id too long", CreateDiaryDTO{ClientID: strings.Repeat("x", MaxClientIDLength+1), Name: "n"}},
		{"name too long", CreateDiaryDTO{ClientID: "c", Name: strings.Repeat("é", MaxNameLength+1)}},
		{"bad gender", CreateDiaryDTO{ClientID: "c", Name: "n", Gender: "robot"}},
		{"short password", CreateDiaryDTO{ClientID: "c", Name: "n", Password: "abc"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(context.Background(), []CreateDiaryDTO{tc.dto})
			assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
		})
	}

	_, err := f.svc.Create(context.Background(), nil)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = f.svc.Create(context.Background(), []CreateDiaryDTO{{
		ClientID: strings.Repeat("x", MaxClientIDLength),
		Name:     strings.Repeat("y", MaxNameLength),
	}})
	assert.NoError(t, err, "limits are inclusive")
}

func TestGetMissing(t *testing.T) {
	f := newFixture(t, "")
	_, err := f.svc.Get(context.Background(), "nope")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestListNewestFirst(t *testing.T) {
	f := newFixture(t, "")
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"old", "mid", "new"} {
		at := base.Add(time.Duration(i) * time.Hour)
		f.svc.now = func() time.Time { return at }
		createOne(t, f, CreateDiaryDTO{ClientID: name, Name: name})
	}

	items, meta, err := f.svc.List(context.Background(), pagination.Query{Page: 1, Size: 2})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "new", items[0].Name)
	assert.Equal(t, "mid", items[1].Name)
	assert.Equal(t, int64(3), meta.Total)
	assert.True(t, meta.HasNextPage)
}

func TestUpdatePartialAndSoftMissing(t *testing.T) {
	f := newFixture(t, "")
	d := createOne(t, f, CreateDiaryDTO{ClientID: "c", Name: "before", Gender: "male"})
	ctx := context.Background()

	name := "after"
	require.NoError(t, f.svc.Update(ctx, d.ID, UpdateDiaryDTO{Name: &name}))
	got, err := f.svc.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.Name)
	assert.Equal(t, "male", got.Gender, "untouched fields are kept")

	assert.NoError(t, f.svc.Update(ctx, "missing", UpdateDiaryDTO{Name: &name}))

	empty := " "
	err = f.svc.Update(ctx, d.ID, UpdateDiaryDTO{Name: &empty})
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestDeleteCascadesCards(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	d := createOne(t, f, CreateDiaryDTO{ClientID: "c", Name: "n"})
	other := createOne(t, f, CreateDiaryDTO{ClientID: "o", Name: "o"})
	for i := 1; i <= 3; i++ {
		_, err := f.cards.Create(ctx, d.ID, "t", "", float64(i))
		require.NoError(t, err)
	}
	_, err := f.cards.Create(ctx, other.ID, "t", "", 1)
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, d.ID))

	n, err := f.cards.Count(ctx, d.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = f.svc.Get(ctx, d.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	n, err = f.cards.Count(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestDeletePartialFailureLeavesEmptyDiary(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	d := createOne(t, f, CreateDiaryDTO{ClientID: "c", Name: "n"})
	_, err := f.cards.Create(ctx, d.ID, "t", "", 1)
	require.NoError(t, err)

	f.mem.SetFault(func(op store.Op, coll string, _ bson.M) error {
		if op == store.OpDelete && coll == models.CollectionDiaries {
			return errors.New("boom")
		}
		return nil
	})
	err = f.svc.Delete(ctx, d.ID)
	require.Error(t, err)
	assert.Equal(t, "failed to delete diary", apperr.PublicMessage(err))
	f.mem.SetFault(nil)

	_, err = f.svc.Get(ctx, d.ID)
	assert.NoError(t, err)
	n, err := f.cards.Count(ctx, d.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIncrementReadingCount(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	d := createOne(t, f, CreateDiaryDTO{ClientID: "c", Name: "n"})

	for i := 1; i <= 3; i++ {
		n, err := f.svc.IncrementReadingCount(ctx, d.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(i), n)
	}

	_, err := f.svc.IncrementReadingCount(ctx, "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestLockAndUnlock(t *testing.T) {
	f := newFixture(t, "master-key")
	ctx := context.Background()
	d := createOne(t, f, CreateDiaryDTO{ClientID: "c", Name: "n", Password: "secret"})
	require.True(t, d.Locked())

	_, _, err := f.svc.Read(ctx, d.ID, "", false)
	assert.True(t, apperr.Is(err, apperr.KindLocked))

	_, err = f.svc.Unlock(ctx, d.ID, "wrong")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))

	token, err := f.svc.Unlock(ctx, d.ID, "secret")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	_, _, err = f.svc.Read(ctx, d.ID, token, false)
	assert.NoError(t, err)

	universal, err := f.svc.Unlock(ctx, d.ID, "master-key")
	require.NoError(t, err)
	assert.NotEmpty(t, universal)

	_, _, err = f.svc.Read(ctx, d.ID, "", true)
	assert.NoError(t, err, "admins bypass the lock")

	require.NoError(t, f.svc.SetLock(ctx, d.ID, ""))
	_, _, err = f.svc.Read(ctx, d.ID, "", false)
	assert.NoError(t, err)

	assert.True(t, apperr.Is(f.svc.SetLock(ctx, "missing", "secret"), apperr.KindNotFound))
}

func TestUnlockTokenIsBoundToDiary(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	a := createOne(t, f, CreateDiaryDTO{ClientID: "a", Name: "a", Password: "pass-a"})
	b := createOne(t, f, CreateDiaryDTO{ClientID: "b", Name: "b", Password: "pass-b"})

	token, err := f.svc.Unlock(ctx, a.ID, "pass-a")
	require.NoError(t, err)

	assert.NoError(t, CheckAccess(&a, token, false))
	assert.True(t, apperr.Is(CheckAccess(&b, token, false), apperr.KindLocked))

	admin, err := jwtpkg.SignAdmin("sid", time.Hour)
	require.NoError(t, err)
	assert.True(t, apperr.Is(CheckAccess(&a, admin, false), apperr.KindLocked), "admin tokens are not unlock tokens")
}

func TestMetadata(t *testing.T) {
	f := newFixture(t, "")
	ctx := context.Background()
	d := createOne(t, f, CreateDiaryDTO{ClientID: "c", Name: "Alice"})
	_, err := f.cards.Create(ctx, d.ID, "Topic", "<p>I felt <b>calm</b> today.</p>", 1)
	require.NoError(t, err)

	meta, err := f.svc.Metadata(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice · Diary", meta.Title)
	assert.Equal(t, "I felt calm today.", meta.Description)
	assert.Equal(t, d.URL, meta.URL)
	assert.Equal(t, 1, meta.CardCount)

	require.NoError(t, f.svc.SetLock(ctx, d.ID, "secret"))
	meta, err = f.svc.Metadata(ctx, d.ID)
	require.NoError(t, err)
	assert.True(t, meta.Locked)
	assert.Equal(t, defaultDescription, meta.Description)
}

package diary

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/mx-space/diary/internal/models"
	"github.com/mx-space/diary/internal/pkg/apperr"
	jwtpkg "github.com/mx-space/diary/internal/pkg/jwt"
	"github.com/mx-space/diary/internal/pkg/pagination"
	"github.com/mx-space/diary/internal/pkg/response"
	"github.com/mx-space/diary/internal/pkg/sanitize"
	"github.com/mx-space/diary/internal/store"
)

const (
	UnlockTTL          = 12 * time.Hour
	descriptionLength  = 160
	defaultDescription = "A private therapy diary."
)

// Cards is the part of the card service a diary needs.
type Cards interface {
	List(ctx context.Context, diaryID string) ([]models.Card, error)
	DeleteByDiary(ctx context.Context, diaryID string) (int64, error)
}

// Secrets provides the universal diary password hash.
type Secrets interface {
	UniversalPasswordHash(ctx context.Context) (string, error)
}

type Service struct {
	store   store.Store
	cards   Cards
	secrets Secrets
	urlFor  func(id string) string
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(st store.Store, cards Cards, secrets Secrets, urlFor func(string) string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:   st,
		cards:   cards,
		secrets: secrets,
		urlFor:  urlFor,
		logger:  logger.Named("DiaryService"),
		now:     models.Now,
	}
}

func (s *Service) storeErr(op string, err error, fields ...zap.Field) error {
	s.logger.Error("failed to "+op, append(fields, zap.Error(err))...)
	return apperr.Store(op, err)
}

// Create validates every entry first and then inserts them in one batch.
func (s *Service) Create(ctx context.Context, dtos []CreateDiaryDTO) ([]models.Diary, error) {
	if len(dtos) == 0 {
		return nil, apperr.Validation("at least one diary is required")
	}
	for i := range dtos {
		dtos[i].normalize()
		if err := dtos[i].validate(); err != nil {
			if len(dtos) > 1 {
				return nil, apperr.Validation("diary %d: %s", i+1, apperr.PublicMessage(err))
			}
			return nil, err
		}
	}

	now := s.now()
	diaries := make([]models.Diary, 0, len(dtos))
	docs := make([]any, 0, len(dtos))
	for _, dto := range dtos {
		d := models.Diary{ClientID: dto.ClientID, Name: dto.Name, Gender: dto.Gender}
		d.Stamp(now)
		d.URL = s.urlFor(d.ID)
		if dto.Password != "" {
			hash, err := bcrypt.GenerateFromPassword([]byte(dto.Password), bcrypt.DefaultCost)
			if err != nil {
				return nil, fmt.Errorf("hash diary password: %w", err)
			}
			d.PasswordHash = string(hash)
		}
		diaries = append(diaries, d)
		docs = append(docs, d)
	}
	if err := s.store.InsertMany(ctx, models.CollectionDiaries, docs); err != nil {
		return nil, s.storeErr("create diary", err, zap.Int("count", len(docs)))
	}
	return diaries, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Diary, error) {
	var d models.Diary
	found, err := s.store.FindOne(ctx, models.CollectionDiaries, store.ByID(id), &d)
	if err != nil {
		return nil, s.storeErr("load diary", err, zap.String("diaryId", id))
	}
	if !found {
		return nil, apperr.NotFound("diary not found")
	}
	return &d, nil
}

// Exists returns apperr.NotFound for unknown ids.
func (s *Service) Exists(ctx context.Context, id string) error {
	_, err := s.Get(ctx, id)
	return err
}

// List returns diaries newest first.
func (s *Service) List(ctx context.Context, q pagination.Query) ([]models.Diary, response.Pagination, error) {
	total, err := s.store.Count(ctx, models.CollectionDiaries, nil)
	if err != nil {
		return nil, response.Pagination{}, s.storeErr("load diaries", err)
	}
	var items []models.Diary
	err = s.store.Find(ctx, models.CollectionDiaries, store.Query{
		Sort:  []store.SortField{store.Desc("createdAt")},
		Skip:  q.Skip(),
		Limit: q.Limit(),
	}, &items)
	if err != nil {
		return nil, response.Pagination{}, s.storeErr("load diaries", err)
	}
	if items == nil {
		items = []models.Diary{}
	}
	return items, q.Meta(total), nil
}

// All returns every diary newest first.
func (s *Service) All(ctx context.Context) ([]models.Diary, error) {
	var items []models.Diary
	err := s.store.Find(ctx, models.CollectionDiaries, store.Query{
		Sort: []store.SortField{store.Desc("createdAt")},
	}, &items)
	if err != nil {
		return nil, s.storeErr("load diaries", err)
	}
	return items, nil
}

// Update applies a partial update. A missing diary is a silent no-op.
func (s *Service) Update(ctx context.Context, id string, dto UpdateDiaryDTO) error {
	if err := dto.validate(); err != nil {
		return err
	}
	set := bson.M{}
	if dto.ClientID != nil {
		set["clientId"] = strings.TrimSpace(*dto.ClientID)
	}
	if dto.Name != nil {
		set["name"] = strings.TrimSpace(*dto.Name)
	}
	if dto.Gender != nil {
		set["gender"] = strings.ToLower(strings.TrimSpace(*dto.Gender))
	}
	if len(set) == 0 {
		return nil
	}
	set["updatedAt"] = s.now()

	matched, err := s.store.Update(ctx, models.CollectionDiaries, store.ByID(id), store.Update{Set: set})
	if err != nil {
		return s.storeErr("update diary", err, zap.String("diaryId", id))
	}
	if matched == 0 {
		s.logger.Debug("update of missing diary ignored", zap.String("diaryId", id))
	}
	return nil
}

// Delete removes the diary's cards and then the diary. The two phases are not
// atomic: when the second fails the diary survives without cards.
func (s *Service) Delete(ctx context.Context, id string) error {
	removed, err := s.cards.DeleteByDiary(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.store.Delete(ctx, models.CollectionDiaries, store.ByID(id)); err != nil {
		return s.storeErr("delete diary", err, zap.String("diaryId", id), zap.Int64("cardsRemoved", removed))
	}
	s.logger.Info("diary deleted", zap.String("diaryId", id), zap.Int64("cards", removed))
	return nil
}

// IncrementReadingCount bumps cardReadingCount by one and returns the new value.
func (s *Service) IncrementReadingCount(ctx context.Context, id string) (int64, error) {
	matched, err := s.store.Update(ctx, models.CollectionDiaries, store.ByID(id), store.Update{
		Inc: bson.M{"cardReadingCount": int64(1)},
	})
	if err != nil {
		return 0, s.storeErr("update reading count", err, zap.String("diaryId", id))
	}
	if matched == 0 {
		return 0, apperr.NotFound("diary not found")
	}
	d, err := s.Get(ctx, id)
	if err != nil {
		return 0, err
	}
	return d.CardReadingCount, nil
}

// SetLock sets the diary password; an empty password removes the lock.
func (s *Service) SetLock(ctx context.Context, id, password string) error {
	if err := s.Exists(ctx, id); err != nil {
		return err
	}
	hash := ""
	if password != "" {
		if err := validatePassword(password); err != nil {
			return err
		}
		b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash diary password: %w", err)
		}
		hash = string(b)
	}
	_, err := s.store.Update(ctx, models.CollectionDiaries, store.ByID(id), store.Update{
		Set: bson.M{"passwordHash": hash, "updatedAt": s.now()},
	})
	if err != nil {
		return s.storeErr("update diary", err, zap.String("diaryId", id))
	}
	return nil
}

// Unlock checks password against the diary's own password or the universal
// password and returns a short-lived token for the diary. Unlocked diaries
// return an empty token.
func (s *Service) Unlock(ctx context.Context, id, password string) (string, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if !d.Locked() {
		return "", nil
	}
	ok, err := s.passwordMatches(ctx, d, password)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", apperr.Unauthorized("wrong password")
	}
	return jwtpkg.SignUnlock(d.ID, UnlockTTL)
}

func (s *Service) passwordMatches(ctx context.Context, d *models.Diary, password string) (bool, error) {
	if password == "" {
		return false, nil
	}
	if bcrypt.CompareHashAndPassword([]byte(d.PasswordHash), []byte(password)) == nil {
		return true, nil
	}
	universal, err := s.secrets.UniversalPasswordHash(ctx)
	if err != nil {
		return false, err
	}
	if universal == "" {
		return false, nil
	}
	return bcrypt.CompareHashAndPassword([]byte(universal), []byte(password)) == nil, nil
}

// CheckAccess allows admins, unlocked diaries, and holders of a valid unlock
// token for this diary.
func CheckAccess(d *models.Diary, unlockToken string, isAdmin bool) error {
	if isAdmin || !d.Locked() {
		return nil
	}
	if unlockToken == "" {
		return apperr.Locked("diary is locked")
	}
	claims, err := jwtpkg.ParseScoped(unlockToken, jwtpkg.ScopeUnlock)
	if err != nil || claims.DiaryID != d.ID {
		return apperr.Locked("diary is locked")
	}
	return nil
}

// Read loads a diary and its cards if the caller may see them.
func (s *Service) Read(ctx context.Context, id, unlockToken string, isAdmin bool) (*models.Diary, []models.Card, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := CheckAccess(d, unlockToken, isAdmin); err != nil {
		return nil, nil, err
	}
	cards, err := s.cards.List(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return d, cards, nil
}

// Metadata builds the link preview of /diary/{id}. Locked diaries never leak
// card text.
func (s *Service) Metadata(ctx context.Context, id string) (*Metadata, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	cards, err := s.cards.List(ctx, id)
	if err != nil {
		return nil, err
	}

	meta := &Metadata{
		Title:       d.Name + " · Diary",
		Description: defaultDescription,
		URL:         d.URL,
		OGType:      "article",
		Locked:      d.Locked(),
		CardCount:   len(cards),
	}
	if d.Locked() {
		return meta, nil
	}
	for _, c := range cards {
		if text := sanitize.Excerpt(c.BodyText, descriptionLength); text != "" {
			meta.Description = text
			break
		}
		if topic := strings.TrimSpace(c.Topic); topic != "" {
			meta.Description = topic
			break
		}
	}
	return meta, nil
}


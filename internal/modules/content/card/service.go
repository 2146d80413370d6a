package card

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/mx-space/diary/internal/models"
	"github.com/mx-space/diary/internal/pkg/apperr"
	"github.com/mx-space/diary/internal/pkg/sanitize"
	"github.com/mx-space/diary/internal/store"
)

// Seeder renders a situation into card content.
type Seeder interface {
	Seed(ctx context.Context, situationID string) (topic, body string, err error)
}

type Service struct {
	store  store.Store
	seeder Seeder
	logger *zap.Logger
	now    func() time.Time
}

func NewService(st store.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, logger: logger.Named("CardService"), now: models.Now}
}

// SetSeeder wires the situation library used by AppendFromSituation.
func (s *Service) SetSeeder(seeder Seeder) { s.seeder = seeder }

// storeErr logs a store failure and wraps it as "failed to <op>".
func (s *Service) storeErr(op string, err error, fields ...zap.Field) error {
	s.logger.Error("failed to "+op, append(fields, zap.Error(err))...)
	return apperr.Store(op, err)
}

// Create persists a new card at the order given by the caller and returns its id.
func (s *Service) Create(ctx context.Context, diaryID, topic, bodyText string, order float64) (string, error) {
	c, err := s.create(ctx, diaryID, topic, bodyText, order)
	if err != nil {
		return "", err
	}
	return c.ID, nil
}

func (s *Service) create(ctx context.Context, diaryID, topic, bodyText string, order float64) (*models.Card, error) {
	if strings.TrimSpace(diaryID) == "" {
		return nil, apperr.Validation("diaryId is required")
	}
	if err := validateTopic(topic); err != nil {
		return nil, err
	}
	if err := validateBody(bodyText); err != nil {
		return nil, err
	}

	c := &models.Card{
		DiaryID:  diaryID,
		Topic:    topic,
		BodyText: sanitize.HTML(bodyText),
		Order:    order,
	}
	c.Stamp(s.now())
	if err := s.store.Insert(ctx, models.CollectionCards, c); err != nil {
		return nil, s.storeErr("create card", err, zap.String("diaryId", diaryID))
	}
	return c, nil
}

// Get returns one card by its application id.
func (s *Service) Get(ctx context.Context, cardID string) (*models.Card, error) {
	var c models.Card
	found, err := s.store.FindOne(ctx, models.CollectionCards, store.ByID(cardID), &c)
	if err != nil {
		return nil, s.storeErr("load card", err, zap.String("cardId", cardID))
	}
	if !found {
		return nil, apperr.NotFound("card not found")
	}
	return &c, nil
}

// List returns a diary's cards in display order.
func (s *Service) List(ctx context.Context, diaryID string) ([]models.Card, error) {
	var cards []models.Card
	err := s.store.Find(ctx, models.CollectionCards, store.Query{
		Filter: bson.M{"diaryId": diaryID},
		Sort:   []store.SortField{store.Asc("order"), store.Asc("createdAt")},
	}, &cards)
	if err != nil {
		return nil, s.storeErr("load cards", err, zap.String("diaryId", diaryID))
	}
	Sort(cards)
	if cards == nil {
		cards = []models.Card{}
	}
	return cards, nil
}

// Count returns the number of cards in a diary.
func (s *Service) Count(ctx context.Context, diaryID string) (int64, error) {
	n, err := s.store.Count(ctx, models.CollectionCards, bson.M{"diaryId": diaryID})
	if err != nil {
		return 0, s.storeErr("count cards", err, zap.String("diaryId", diaryID))
	}
	return n, nil
}

// Insert creates a card right after cards[i] using midpoint ordering. When
// the gap between the neighbours has underflowed, the diary is compacted and
// the compacted list is returned alongside the new card.
func (s *Service) Insert(ctx context.Context, diaryID string, cards []models.Card, i int, topic, bodyText string) (*models.Card, []models.Card, error) {
	order, ok := InsertionOrder(cards, i)
	var compacted []models.Card
	if !ok {
		var err error
		compacted, err = s.Compact(ctx, diaryID)
		if err != nil {
			return nil, nil, err
		}
		// Compact re-reads the diary, so anchor i on the same card id.
		i = relocate(cards, compacted, i)
		order, ok = InsertionOrder(compacted, i)
		if !ok {
			return nil, nil, apperr.Store("create card", errors.New("no order available after compaction"))
		}
	}
	c, err := s.create(ctx, diaryID, topic, bodyText, order)
	if err != nil {
		return nil, nil, err
	}
	return c, compacted, nil
}

// InsertAt is Insert against the persisted list; nil afterIndex appends.
func (s *Service) InsertAt(ctx context.Context, diaryID string, afterIndex *int, topic, bodyText string) (*models.Card, error) {
	cards, err := s.List(ctx, diaryID)
	if err != nil {
		return nil, err
	}
	if afterIndex == nil {
		return s.create(ctx, diaryID, topic, bodyText, AppendOrder(cards))
	}
	c, _, err := s.Insert(ctx, diaryID, cards, *afterIndex, topic, bodyText)
	return c, err
}

// Duplicate copies a card right after itself with " (Copy)" appended to the topic.
func (s *Service) Duplicate(ctx context.Context, cardID string) (*models.Card, error) {
	original, err := s.Get(ctx, cardID)
	if err != nil {
		return nil, err
	}
	siblings, err := s.List(ctx, original.DiaryID)
	if err != nil {
		return nil, err
	}

	order, ok := DuplicateOrder(siblings, *original)
	if !ok {
		compacted, err := s.Compact(ctx, original.DiaryID)
		if err != nil {
			return nil, err
		}
		if idx := indexOf(compacted, original.ID); idx >= 0 {
			original.Order = compacted[idx].Order
		}
		if order, ok = DuplicateOrder(compacted, *original); !ok {
			return nil, apperr.Store("duplicate card", errors.New("no order available after compaction"))
		}
	}

	return s.create(ctx, original.DiaryID, CopyTopic(original.Topic), original.BodyText, order)
}

// Update merges patch into the card and bumps updatedAt. A missing card is a
// silent no-op.
func (s *Service) Update(ctx context.Context, cardID string, patch Patch) error {
	if err := ValidatePatch(patch); err != nil {
		return err
	}
	if patch.Empty() {
		return nil
	}

	set := bson.M{"updatedAt": s.now()}
	if patch.Topic != nil {
		set["topic"] = *patch.Topic
	}
	if patch.BodyText != nil {
		set["bodyText"] = sanitize.HTML(*patch.BodyText)
	}
	if patch.Order != nil {
		set["order"] = *patch.Order
	}
	matched, err := s.store.Update(ctx, models.CollectionCards, store.ByID(cardID), store.Update{Set: set})
	if err != nil {
		return s.storeErr("update card", err, zap.String("cardId", cardID))
	}
	if matched == 0 {
		s.logger.Debug("update of missing card ignored", zap.String("cardId", cardID))
	}
	return nil
}

// Delete removes a card. A missing card is a silent no-op.
func (s *Service) Delete(ctx context.Context, cardID string) error {
	n, err := s.store.Delete(ctx, models.CollectionCards, store.ByID(cardID))
	if err != nil {
		return s.storeErr("delete card", err, zap.String("cardId", cardID))
	}
	if n == 0 {
		s.logger.Debug("delete of missing card ignored", zap.String("cardId", cardID))
	}
	return nil
}

// DeleteByDiary removes every card of a diary.
func (s *Service) DeleteByDiary(ctx context.Context, diaryID string) (int64, error) {
	n, err := s.store.Delete(ctx, models.CollectionCards, bson.M{"diaryId": diaryID})
	if err != nil {
		return 0, s.storeErr("delete cards", err, zap.String("diaryId", diaryID))
	}
	return n, nil
}

// Restore re-inserts a card exactly as given, keeping its id and timestamps.
// Used to undo a delete.
func (s *Service) Restore(ctx context.Context, c models.Card) error {
	if err := s.store.Insert(ctx, models.CollectionCards, &c); err != nil {
		return s.storeErr("restore card", err, zap.String("cardId", c.ID))
	}
	return nil
}

// Reorder moves draggedID to targetIndex and rewrites every card's order to
// index+1.
func (s *Service) Reorder(ctx context.Context, diaryID, draggedID string, targetIndex int) ([]models.Card, error) {
	cards, err := s.List(ctx, diaryID)
	if err != nil {
		return nil, err
	}
	moved, ok := Move(cards, draggedID, targetIndex)
	if !ok {
		return nil, apperr.NotFound("card not found")
	}
	if err := s.PersistOrders(ctx, moved); err != nil {
		return nil, err
	}
	return moved, nil
}

// PersistOrders writes every card's order concurrently. Each write is atomic
// on its own; the batch is not, so a failure can leave a partial renumbering.
func (s *Service) PersistOrders(ctx context.Context, cards []models.Card) error {
	now := s.now()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, c := range cards {
		wg.Add(1)
		go func(id string, order float64) {
			defer wg.Done()
			_, err := s.store.Update(ctx, models.CollectionCards, store.ByID(id), store.Update{
				Set: bson.M{"order": order, "updatedAt": now},
			})
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(c.ID, c.Order)
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return s.storeErr("reorder cards", err, zap.Int("failed", len(errs)), zap.Int("total", len(cards)))
	}
	return nil
}

// Compact renumbers a diary's cards to 1..n keeping their current sequence.
func (s *Service) Compact(ctx context.Context, diaryID string) ([]models.Card, error) {
	cards, err := s.List(ctx, diaryID)
	if err != nil {
		return nil, err
	}
	Renumber(cards)
	if err := s.PersistOrders(ctx, cards); err != nil {
		return nil, err
	}
	s.logger.Info("compacted card order", zap.String("diaryId", diaryID), zap.Int("cards", len(cards)))
	return cards, nil
}

// AppendFromSituation adds a card seeded from a situation at the end of the diary.
func (s *Service) AppendFromSituation(ctx context.Context, diaryID, situationID string) (*models.Card, error) {
	if s.seeder == nil {
		return nil, apperr.New(apperr.KindInternal, "situation library is not available")
	}
	topic, body, err := s.seeder.Seed(ctx, situationID)
	if err != nil {
		return nil, err
	}
	cards, err := s.List(ctx, diaryID)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, diaryID, truncateRunes(topic, MaxTopicLength), truncateRunes(body, MaxBodyLength), AppendOrder(cards))
}

// relocate maps index i of before onto the index of the same card in after.
func relocate(before, after []models.Card, i int) int {
	if len(before) == 0 {
		return i
	}
	i = clamp(i, 0, len(before)-1)
	if idx := indexOf(after, before[i].ID); idx >= 0 {
		return idx
	}
	return i
}

// CopyTopic is the topic given to a copy of a card titled topic.
func CopyTopic(topic string) string {
	return truncateRunes(topic+copySuffix, MaxTopicLength)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

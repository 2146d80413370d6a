package situation

import (
	"context"
	"html"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.uber.org/zap"

	"github.com/mx-space/diary/internal/models"
	"github.com/mx-space/diary/internal/pkg/apperr"
	"github.com/mx-space/diary/internal/store"
)

// Indexer keeps an external search index in step with the library.
type Indexer interface {
	Index(ctx context.Context, trees []models.SituationTree) error
	Remove(ctx context.Context, ids []string) error
}

type Service struct {
	store   store.Store
	indexer Indexer
	logger  *zap.Logger
	now     func() time.Time
}

func NewService(st store.Store, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, logger: logger.Named("SituationService"), now: models.Now}
}

func (s *Service) SetIndexer(ix Indexer) { s.indexer = ix }

func (s *Service) storeErr(op string, err error, fields ...zap.Field) error {
	s.logger.Error("failed to "+op, append(fields, zap.Error(err))...)
	return apperr.Store(op, err)
}

// reindex pushes the situation's current tree to the index. Index failures
// never fail the write that triggered them.
func (s *Service) reindex(ctx context.Context, situationID string) {
	if s.indexer == nil {
		return
	}
	tree, err := s.TreeOf(ctx, situationID)
	if err != nil {
		s.logger.Warn("reindex skipped", zap.String("situationId", situationID), zap.Error(err))
		return
	}
	if err := s.indexer.Index(ctx, []models.SituationTree{*tree}); err != nil {
		s.logger.Warn("reindex failed", zap.String("situationId", situationID), zap.Error(err))
	}
}

func (s *Service) unindex(ctx context.Context, situationID string) {
	if s.indexer == nil {
		return
	}
	if err := s.indexer.Remove(ctx, []string{situationID}); err != nil {
		s.logger.Warn("unindex failed", zap.String("situationId", situationID), zap.Error(err))
	}
}

// nextOrder returns max(order)+1 among documents matching filter, or 1.
func (s *Service) nextOrder(ctx context.Context, coll string, filter bson.M) (int64, error) {
	var last []struct {
		Order int64 `bson:"order"`
	}
	err := s.store.Find(ctx, coll, store.Query{
		Filter: filter,
		Sort:   []store.SortField{store.Desc("order")},
		Limit:  1,
	}, &last)
	if err != nil {
		return 0, err
	}
	if len(last) == 0 {
		return 1, nil
	}
	return last[0].Order + 1, nil
}

// Situations

func (s *Service) CreateSituation(ctx context.Context, title string) (*models.Situation, error) {
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	order, err := s.nextOrder(ctx, models.CollectionSituations, nil)
	if err != nil {
		return nil, s.storeErr("create situation", err)
	}
	sit := &models.Situation{Title: strings.TrimSpace(title), Order: order}
	sit.Stamp(s.now())
	if err := s.store.Insert(ctx, models.CollectionSituations, sit); err != nil {
		return nil, s.storeErr("create situation", err)
	}
	s.reindex(ctx, sit.ID)
	return sit, nil
}

func (s *Service) GetSituation(ctx context.Context, id string) (*models.Situation, error) {
	var sit models.Situation
	found, err := s.store.FindOne(ctx, models.CollectionSituations, store.ByID(id), &sit)
	if err != nil {
		return nil, s.storeErr("load situation", err, zap.String("situationId", id))
	}
	if !found {
		return nil, apperr.NotFound("situation not found")
	}
	return &sit, nil
}

func (s *Service) ListSituations(ctx context.Context) ([]models.Situation, error) {
	var out []models.Situation
	err := s.store.Find(ctx, models.CollectionSituations, store.Query{
		Sort: []store.SortField{store.Asc("order"), store.Asc("createdAt")},
	}, &out)
	if err != nil {
		return nil, s.storeErr("load situations", err)
	}
	if out == nil {
		out = []models.Situation{}
	}
	return out, nil
}

// UpdateSituation is a soft no-op for unknown ids.
func (s *Service) UpdateSituation(ctx context.Context, id string, p Patch) error {
	set := bson.M{}
	if p.Title != nil {
		if err := validateTitle(*p.Title); err != nil {
			return err
		}
		set["title"] = strings.TrimSpace(*p.Title)
	}
	if p.Order != nil {
		set["order"] = *p.Order
	}
	if len(set) == 0 {
		return nil
	}
	set["updatedAt"] = s.now()
	matched, err := s.store.Update(ctx, models.CollectionSituations, store.ByID(id), store.Update{Set: set})
	if err != nil {
		return s.storeErr("update situation", err, zap.String("situationId", id))
	}
	if matched > 0 {
		s.reindex(ctx, id)
	}
	return nil
}

// DeleteSituation removes after-items, then before-items, then the situation.
func (s *Service) DeleteSituation(ctx context.Context, id string) error {
	bySituation := bson.M{"situationId": id}
	if _, err := s.store.Delete(ctx, models.CollectionAfterItems, bySituation); err != nil {
		return s.storeErr("delete situation", err, zap.String("situationId", id))
	}
	if _, err := s.store.Delete(ctx, models.CollectionBeforeItems, bySituation); err != nil {
		return s.storeErr("delete situation", err, zap.String("situationId", id))
	}
	if _, err := s.store.Delete(ctx, models.CollectionSituations, store.ByID(id)); err != nil {
		return s.storeErr("delete situation", err, zap.String("situationId", id))
	}
	s.unindex(ctx, id)
	return nil
}

// Before-items

func (s *Service) AddBefore(ctx context.Context, situationID, text string) (*models.BeforeItem, error) {
	if err := validateText(text); err != nil {
		return nil, err
	}
	if _, err := s.GetSituation(ctx, situationID); err != nil {
		return nil, err
	}
	order, err := s.nextOrder(ctx, models.CollectionBeforeItems, bson.M{"situationId": situationID})
	if err != nil {
		return nil, s.storeErr("create before item", err)
	}
	item := &models.BeforeItem{SituationID: situationID, Text: strings.TrimSpace(text), Order: order}
	item.Stamp(s.now())
	if err := s.store.Insert(ctx, models.CollectionBeforeItems, item); err != nil {
		return nil, s.storeErr("create before item", err, zap.String("situationId", situationID))
	}
	s.reindex(ctx, situationID)
	return item, nil
}

func (s *Service) getBefore(ctx context.Context, id string) (*models.BeforeItem, error) {
	var item models.BeforeItem
	found, err := s.store.FindOne(ctx, models.CollectionBeforeItems, store.ByID(id), &item)
	if err != nil {
		return nil, s.storeErr("load before item", err, zap.String("beforeItemId", id))
	}
	if !found {
		return nil, apperr.NotFound("before item not found")
	}
	return &item, nil
}

func (s *Service) UpdateBefore(ctx context.Context, id string, p Patch) error {
	set, err := itemSet(p, s.now())
	if err != nil || set == nil {
		return err
	}
	item, err := s.getBefore(ctx, id)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := s.store.Update(ctx, models.CollectionBeforeItems, store.ByID(id), store.Update{Set: set}); err != nil {
		return s.storeErr("update before item", err, zap.String("beforeItemId", id))
	}
	s.reindex(ctx, item.SituationID)
	return nil
}

// DeleteBefore removes the item's after-items and then the item.
func (s *Service) DeleteBefore(ctx context.Context, id string) error {
	item, err := s.getBefore(ctx, id)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := s.store.Delete(ctx, models.CollectionAfterItems, bson.M{"beforeItemId": id}); err != nil {
		return s.storeErr("delete before item", err, zap.String("beforeItemId", id))
	}
	if _, err := s.store.Delete(ctx, models.CollectionBeforeItems, store.ByID(id)); err != nil {
		return s.storeErr("delete before item", err, zap.String("beforeItemId", id))
	}
	s.reindex(ctx, item.SituationID)
	return nil
}

// After-items

func (s *Service) AddAfter(ctx context.Context, beforeID, text string) (*models.AfterItem, error) {
	if err := validateText(text); err != nil {
		return nil, err
	}
	before, err := s.getBefore(ctx, beforeID)
	if err != nil {
		return nil, err
	}
	order, err := s.nextOrder(ctx, models.CollectionAfterItems, bson.M{"beforeItemId": beforeID})
	if err != nil {
		return nil, s.storeErr("create after item", err)
	}
	item := &models.AfterItem{
		SituationID:  before.SituationID,
		BeforeItemID: beforeID,
		Text:         strings.TrimSpace(text),
		Order:        order,
	}
	item.Stamp(s.now())
	if err := s.store.Insert(ctx, models.CollectionAfterItems, item); err != nil {
		return nil, s.storeErr("create after item", err, zap.String("beforeItemId", beforeID))
	}
	s.reindex(ctx, before.SituationID)
	return item, nil
}

func (s *Service) getAfter(ctx context.Context, id string) (*models.AfterItem, error) {
	var item models.AfterItem
	found, err := s.store.FindOne(ctx, models.CollectionAfterItems, store.ByID(id), &item)
	if err != nil {
		return nil, s.storeErr("load after item", err, zap.String("afterItemId", id))
	}
	if !found {
		return nil, apperr.NotFound("after item not found")
	}
	return &item, nil
}

func (s *Service) UpdateAfter(ctx context.Context, id string, p Patch) error {
	set, err := itemSet(p, s.now())
	if err != nil || set == nil {
		return err
	}
	item, err := s.getAfter(ctx, id)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := s.store.Update(ctx, models.CollectionAfterItems, store.ByID(id), store.Update{Set: set}); err != nil {
		return s.storeErr("update after item", err, zap.String("afterItemId", id))
	}
	s.reindex(ctx, item.SituationID)
	return nil
}

func (s *Service) DeleteAfter(ctx context.Context, id string) error {
	item, err := s.getAfter(ctx, id)
	if apperr.Is(err, apperr.KindNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if _, err := s.store.Delete(ctx, models.CollectionAfterItems, store.ByID(id)); err != nil {
		return s.storeErr("delete after item", err, zap.String("afterItemId", id))
	}
	s.reindex(ctx, item.SituationID)
	return nil
}

func itemSet(p Patch, now time.Time) (bson.M, error) {
	set := bson.M{}
	if p.Text != nil {
		if err := validateText(*p.Text); err != nil {
			return nil, err
		}
		set["text"] = strings.TrimSpace(*p.Text)
	}
	if p.Order != nil {
		set["order"] = *p.Order
	}
	if len(set) == 0 {
		return nil, nil
	}
	set["updatedAt"] = now
	return set, nil
}

// Tree returns the whole library, every level in ascending order.
func (s *Service) Tree(ctx context.Context) ([]models.SituationTree, error) {
	situations, err := s.ListSituations(ctx)
	if err != nil {
		return nil, err
	}
	var befores []models.BeforeItem
	if err := s.store.Find(ctx, models.CollectionBeforeItems, store.Query{
		Sort: []store.SortField{store.Asc("order"), store.Asc("createdAt")},
	}, &befores); err != nil {
		return nil, s.storeErr("load before items", err)
	}
	var afters []models.AfterItem
	if err := s.store.Find(ctx, models.CollectionAfterItems, store.Query{
		Sort: []store.SortField{store.Asc("order"), store.Asc("createdAt")},
	}, &afters); err != nil {
		return nil, s.storeErr("load after items", err)
	}
	return assemble(situations, befores, afters), nil
}

// TreeOf returns one situation with its items.
func (s *Service) TreeOf(ctx context.Context, id string) (*models.SituationTree, error) {
	sit, err := s.GetSituation(ctx, id)
	if err != nil {
		return nil, err
	}
	q := store.Query{
		Filter: bson.M{"situationId": id},
		Sort:   []store.SortField{store.Asc("order"), store.Asc("createdAt")},
	}
	var befores []models.BeforeItem
	if err := s.store.Find(ctx, models.CollectionBeforeItems, q, &befores); err != nil {
		return nil, s.storeErr("load before items", err, zap.String("situationId", id))
	}
	var afters []models.AfterItem
	if err := s.store.Find(ctx, models.CollectionAfterItems, q, &afters); err != nil {
		return nil, s.storeErr("load after items", err, zap.String("situationId", id))
	}
	trees := assemble([]models.Situation{*sit}, befores, afters)
	return &trees[0], nil
}

func assemble(situations []models.Situation, befores []models.BeforeItem, afters []models.AfterItem) []models.SituationTree {
	afterByBefore := make(map[string][]models.AfterItem)
	for _, a := range afters {
		afterByBefore[a.BeforeItemID] = append(afterByBefore[a.BeforeItemID], a)
	}
	beforeBySituation := make(map[string][]models.BeforeTree)
	for _, b := range befores {
		after := afterByBefore[b.ID]
		if after == nil {
			after = []models.AfterItem{}
		}
		beforeBySituation[b.SituationID] = append(beforeBySituation[b.SituationID], models.BeforeTree{BeforeItem: b, After: after})
	}
	out := make([]models.SituationTree, 0, len(situations))
	for _, sit := range situations {
		before := beforeBySituation[sit.ID]
		if before == nil {
			before = []models.BeforeTree{}
		}
		out = append(out, models.SituationTree{Situation: sit, Before: before})
	}
	return out
}

// Seed renders a situation as card content: the title becomes the topic and
// each before-item a paragraph followed by its after-items as a list.
func (s *Service) Seed(ctx context.Context, situationID string) (string, string, error) {
	tree, err := s.TreeOf(ctx, situationID)
	if err != nil {
		return "", "", err
	}
	return tree.Title, RenderBody(*tree), nil
}

// RenderBody renders the before/after items of a tree as HTML.
func RenderBody(tree models.SituationTree) string {
	var b strings.Builder
	for _, before := range tree.Before {
		b.WriteString("<p>")
		b.WriteString(html.EscapeString(before.Text))
		b.WriteString("</p>")
		if len(before.After) == 0 {
			continue
		}
		b.WriteString("<ul>")
		for _, after := range before.After {
			b.WriteString("<li>")
			b.WriteString(html.EscapeString(after.Text))
			b.WriteString("</li>")
		}
		b.WriteString("</ul>")
	}
	return b.String()
}

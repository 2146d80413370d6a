// Package search finds situations by title or item text. Meilisearch serves
// queries while it is healthy; otherwise the store is scanned directly.
package search

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appcfg "github.com/mx-space/diary/internal/config"
	"github.com/mx-space/diary/internal/models"
	"github.com/mx-space/diary/internal/pkg/apperr"
	"github.com/mx-space/diary/internal/pkg/response"
	"github.com/mx-space/diary/internal/store"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
	maxQueryLen  = 200
)

// Hit is one matching situation.
type Hit struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Snippet string `json:"snippet,omitempty"`
}

// TreeSource loads the full situation library for reindexing.
type TreeSource interface {
	Tree(ctx context.Context) ([]models.SituationTree, error)
}

type Service struct {
	store  store.Store
	meili  *Meili
	logger *zap.Logger
}

// NewService builds the search service. Meilisearch is only contacted when
// enabled in cfg.
func NewService(st store.Store, cfg appcfg.MeiliSearchRuntimeConfig, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("SearchService")
	s := &Service{store: st, logger: logger}
	if cfg.Enable {
		s.meili = NewMeili(cfg.Endpoint(), cfg.APIKey, cfg.IndexName, logger)
	}
	return s
}

func (s *Service) usingMeili() bool { return s.meili != nil && s.meili.Healthy() }

// Search returns situations matching q. Meilisearch errors fall back to a scan.
func (s *Service) Search(ctx context.Context, q string, limit int) ([]Hit, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, apperr.Validation("query is required")
	}
	if len([]rune(q)) > maxQueryLen {
		return nil, apperr.Validation("query is too long")
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	if s.usingMeili() {
		hits, err := s.meili.search(q, limit)
		if err == nil {
			return hits, nil
		}
		s.logger.Warn("meilisearch error, falling back to store scan", zap.Error(err))
	}
	return s.scan(ctx, q, limit)
}

// scan matches q case-insensitively against titles and item texts.
func (s *Service) scan(ctx context.Context, q string, limit int) ([]Hit, error) {
	var situations []models.Situation
	if err := s.store.Find(ctx, models.CollectionSituations, store.Query{
		Sort: []store.SortField{store.Asc("order"), store.Asc("createdAt")},
	}, &situations); err != nil {
		s.logger.Error("failed to search situations", zap.Error(err))
		return nil, apperr.Store("search situations", err)
	}
	var befores []models.BeforeItem
	if err := s.store.Find(ctx, models.CollectionBeforeItems, store.Query{}, &befores); err != nil {
		s.logger.Error("failed to search situations", zap.Error(err))
		return nil, apperr.Store("search situations", err)
	}
	var afters []models.AfterItem
	if err := s.store.Find(ctx, models.CollectionAfterItems, store.Query{}, &afters); err != nil {
		s.logger.Error("failed to search situations", zap.Error(err))
		return nil, apperr.Store("search situations", err)
	}

	texts := make(map[string][]string)
	for _, b := range befores {
		texts[b.SituationID] = append(texts[b.SituationID], b.Text)
	}
	for _, a := range afters {
		texts[a.SituationID] = append(texts[a.SituationID], a.Text)
	}

	needle := strings.ToLower(q)
	hits := []Hit{}
	for _, sit := range situations {
		if len(hits) >= limit {
			break
		}
		if strings.Contains(strings.ToLower(sit.Title), needle) {
			hits = append(hits, Hit{ID: sit.ID, Title: sit.Title})
			continue
		}
		if snippet := firstMatch(q, texts[sit.ID]); snippet != "" {
			hits = append(hits, Hit{ID: sit.ID, Title: sit.Title, Snippet: snippet})
		}
	}
	return hits, nil
}

// Index adds or replaces situation trees in Meilisearch. It is a no-op while
// Meilisearch is disabled or unhealthy.
func (s *Service) Index(_ context.Context, trees []models.SituationTree) error {
	if !s.usingMeili() {
		return nil
	}
	docs := make([]document, 0, len(trees))
	for _, t := range trees {
		docs = append(docs, toDocument(t))
	}
	return s.meili.index(docs)
}

// Remove deletes situations from Meilisearch.
func (s *Service) Remove(_ context.Context, ids []string) error {
	if !s.usingMeili() {
		return nil
	}
	return s.meili.remove(ids)
}

// Reindex rebuilds the index from the store.
func (s *Service) Reindex(ctx context.Context, src TreeSource) error {
	if !s.usingMeili() {
		s.logger.Debug("reindex skipped, meilisearch unavailable")
		return nil
	}
	trees, err := src.Tree(ctx)
	if err != nil {
		return err
	}
	if err := s.meili.reset(); err != nil {
		return err
	}
	if err := s.Index(ctx, trees); err != nil {
		return err
	}
	s.logger.Info("reindexed situations", zap.Int("count", len(trees)))
	return nil
}

func (s *Service) Close() {
	if s.meili != nil {
		s.meili.Close()
	}
}

func toDocument(t models.SituationTree) document {
	doc := document{ID: t.ID, Title: t.Title, Order: t.Order, Before: []string{}, After: []string{}}
	for _, b := range t.Before {
		doc.Before = append(doc.Before, b.Text)
		for _, a := range b.After {
			doc.After = append(doc.After, a.Text)
		}
	}
	return doc
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	rg.GET("/situations/search", authMW, h.search)
}

// GET /situations/search?q=&limit=
func (h *Handler) search(c *gin.Context) {
	limit := DefaultLimit
	if v := c.Query("limit"); v != "" {
		if n, ok := parseLimit(v); ok {
			limit = n
		}
	}
	hits, err := h.svc.Search(c.Request.Context(), c.Query("q"), limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, hits)
}

func parseLimit(v string) (int, bool) {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

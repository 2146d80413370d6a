package search

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"go.uber.org/zap"
)

const healthInterval = 15 * time.Second

// document is the indexed shape of one situation tree.
type document struct {
	ID     string   `json:"id"`
	Title  string   `json:"title"`
	Before []string `json:"before"`
	After  []string `json:"after"`
	Order  int64    `json:"order"`
}

// Meili indexes situations in one Meilisearch index and tracks its health.
type Meili struct {
	client    meili.ServiceManager
	indexName string
	healthy   atomic.Bool
	done      chan struct{}
	logger    *zap.Logger
}

// NewMeili connects to url and starts the health monitor. An unreachable
// server is not an error; the monitor keeps probing.
func NewMeili(url, apiKey, indexName string, logger *zap.Logger) *Meili {
	m := &Meili{
		client:    meili.New(url, meili.WithAPIKey(apiKey)),
		indexName: indexName,
		done:      make(chan struct{}),
		logger:    logger,
	}
	if _, err := m.client.Health(); err != nil {
		logger.Warn("meilisearch unavailable", zap.String("url", url), zap.Error(err))
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}
	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{Uid: m.indexName, PrimaryKey: "id"}); err != nil {
		m.logger.Debug("create index (may already exist)", zap.String("index", m.indexName), zap.Error(err))
	}
	searchable := []string{"title", "before", "after"}
	if _, err := m.client.Index(m.indexName).UpdateSearchableAttributes(&searchable); err != nil {
		m.logger.Warn("update searchable attributes", zap.String("index", m.indexName), zap.Error(err))
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			was := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !was {
				m.logger.Info("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

func (m *Meili) Healthy() bool { return m.healthy.Load() }

func (m *Meili) Close() { close(m.done) }

func (m *Meili) search(q string, limit int) ([]Hit, error) {
	resp, err := m.client.Index(m.indexName).Search(q, &meili.SearchRequest{
		Limit:                 int64(limit),
		AttributesToHighlight: []string{"title"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, fmt.Errorf("meilisearch search: %w", err)
	}
	hits := make([]Hit, 0, len(resp.Hits))
	for _, h := range resp.Hits {
		hits = append(hits, Hit{
			ID:      decodeString(h, "id"),
			Title:   decodeString(h, "title"),
			Snippet: firstMatch(q, decodeStrings(h, "before"), decodeStrings(h, "after")),
		})
	}
	return hits, nil
}

func (m *Meili) index(docs []document) error {
	if len(docs) == 0 {
		return nil
	}
	_, err := m.client.Index(m.indexName).AddDocuments(docs, nil)
	return err
}

func (m *Meili) remove(ids []string) error {
	index := m.client.Index(m.indexName)
	for _, id := range ids {
		if _, err := index.DeleteDocument(id, nil); err != nil {
			return err
		}
	}
	return nil
}

// reset drops the index and recreates it empty.
func (m *Meili) reset() error {
	if _, err := m.client.DeleteIndex(m.indexName); err != nil {
		return err
	}
	m.configureIndex()
	return nil
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

func decodeStrings(hit meili.Hit, key string) []string {
	raw, ok := hit[key]
	if !ok {
		return nil
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// firstMatch returns the first text containing q, case-insensitively.
func firstMatch(q string, groups ...[]string) string {
	needle := strings.ToLower(strings.TrimSpace(q))
	for _, g := range groups {
		for _, t := range g {
			if needle != "" && strings.Contains(strings.ToLower(t), needle) {
				return t
			}
		}
	}
	return ""
}

package editor

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mx-space/diary/internal/models"
	"github.com/mx-space/diary/internal/pkg/apperr"
)

// Options tune every session of a Manager.
type Options struct {
	Debounce         time.Duration
	HistoryLimit     int
	TextHistoryLimit int
}

func (o Options) withDefaults() Options {
	if o.Debounce <= 0 {
		o.Debounce = 450 * time.Millisecond
	}
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = DefaultHistoryLimit
	}
	if o.TextHistoryLimit <= 0 {
		o.TextHistoryLimit = DefaultTextHistoryLimit
	}
	return o
}

// Subscriber delivers ordered card snapshots of a diary whenever it changes.
type Subscriber interface {
	Subscribe(diaryID string, fn func([]models.Card)) (unsubscribe func())
}

// DiaryLookup reports apperr.NotFound for unknown diaries.
type DiaryLookup interface {
	Exists(ctx context.Context, diaryID string) error
}

type entry struct {
	session     *Session
	owner       string
	unsubscribe func()
}

// Manager owns the open editing sessions.
type Manager struct {
	cards   Cards
	diaries DiaryLookup
	bridge  Subscriber
	opts    Options
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	bootMu sync.Mutex

	mu       sync.RWMutex
	sessions map[string]*entry
	notify   func(Event)
}

func NewManager(cards Cards, diaries DiaryLookup, bridge Subscriber, opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cards:    cards,
		diaries:  diaries,
		bridge:   bridge,
		opts:     opts.withDefaults(),
		logger:   logger.Named("Editor"),
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(map[string]*entry),
	}
}

// SetNotifier installs the sink for session events.
func (m *Manager) SetNotifier(fn func(Event)) {
	m.mu.Lock()
	m.notify = fn
	m.mu.Unlock()
}

func (m *Manager) dispatch(ev Event) {
	m.mu.RLock()
	fn := m.notify
	m.mu.RUnlock()
	if fn != nil {
		fn(ev)
	}
}

// Open starts a session on diaryID for owner (an admin session or socket id).
func (m *Manager) Open(ctx context.Context, diaryID, owner string) (*Session, State, error) {
	if err := m.diaries.Exists(ctx, diaryID); err != nil {
		return nil, State{}, err
	}
	s := newSession(m.ctx, uuid.NewString(), diaryID, m.cards, m.opts, &m.bootMu, m.dispatch, m.logger)
	st, err := s.Open(ctx)
	if err != nil {
		s.Close()
		return nil, State{}, err
	}

	e := &entry{session: s, owner: owner, unsubscribe: func() {}}
	if m.bridge != nil {
		e.unsubscribe = m.bridge.Subscribe(diaryID, s.ApplySnapshot)
	}
	m.mu.Lock()
	m.sessions[s.ID()] = e
	m.mu.Unlock()

	m.logger.Info("editor session opened", zap.String("sessionId", s.ID()), zap.String("diaryId", diaryID))
	return s, st, nil
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, apperr.NotFound("editor session not found")
	}
	return e.session, nil
}

// Owner returns who opened a session.
func (m *Manager) Owner(id string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[id]
	if !ok {
		return "", false
	}
	return e.owner, true
}

// Close flushes and removes a session.
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return apperr.NotFound("editor session not found")
	}
	m.closeEntry(e)
	return nil
}

// CloseOwner closes every session opened by owner and returns how many.
func (m *Manager) CloseOwner(owner string) int {
	m.mu.Lock()
	var closing []*entry
	for id, e := range m.sessions {
		if e.owner == owner {
			closing = append(closing, e)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, e := range closing {
		m.closeEntry(e)
	}
	return len(closing)
}

// Shutdown closes all sessions, flushing their pending writes.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	all := make([]*entry, 0, len(m.sessions))
	for id, e := range m.sessions {
		all = append(all, e)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, e := range all {
		m.closeEntry(e)
	}
	m.cancel()
}

func (m *Manager) closeEntry(e *entry) {
	e.unsubscribe()
	e.session.Close()
	m.logger.Info("editor session closed", zap.String("sessionId", e.session.ID()))
}

// Len is the number of open sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

package editor

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/mx-space/diary/internal/models"
	"github.com/mx-space/diary/internal/modules/content/card"
	"github.com/mx-space/diary/internal/pkg/apperr"
	"github.com/mx-space/diary/internal/pkg/sanitize"
)

// Cards is the card persistence an editing session writes through.
type Cards interface {
	List(ctx context.Context, diaryID string) ([]models.Card, error)
	Insert(ctx context.Context, diaryID string, cards []models.Card, i int, topic, bodyText string) (*models.Card, []models.Card, error)
	Update(ctx context.Context, cardID string, patch card.Patch) error
	Delete(ctx context.Context, cardID string) error
	Restore(ctx context.Context, c models.Card) error
	PersistOrders(ctx context.Context, cards []models.Card) error
}

const (
	EventState      = "state"
	EventSaveFailed = "save_failed"
)

// Event is pushed to the admin clients of a session.
type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	DiaryID   string `json:"diaryId"`
	CardID    string `json:"cardId,omitempty"`
	Message   string `json:"message,omitempty"`
	State     *State `json:"state,omitempty"`
}

// State is the client view of a session.
type State struct {
	SessionID string        `json:"sessionId"`
	DiaryID   string        `json:"diaryId"`
	Cards     []models.Card `json:"cards"`
	Current   int           `json:"current"`
	CanUndo   bool          `json:"canUndo"`
	CanRedo   bool          `json:"canRedo"`
	// Dirty lists cards with edits the store has not confirmed yet.
	Dirty []string `json:"dirty"`
}

// TextEdit replaces the topic and/or body of the focused card.
type TextEdit struct {
	Topic    *string `json:"topic"`
	BodyText *string `json:"bodyText"`
}

var errClosed = apperr.New(apperr.KindConflict, "editor session is closed")

// Session is one admin editing a diary. Text edits are applied locally at once
// and written after the debounce delay; structural changes are written
// immediately and recorded for undo.
type Session struct {
	id      string
	diaryID string
	cards   Cards
	emit    func(Event)
	logger  *zap.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	debounce *Debouncer
	bootMu   *sync.Mutex

	mu         sync.Mutex
	state      []models.Card
	current    int
	structural *History
	text       *History
	local      map[string]uint64 // edits applied locally, per card
	confirmed  map[string]uint64 // edits acknowledged by the store, per card
	closed     bool
}

func newSession(ctx context.Context, id, diaryID string, cards Cards, opts Options, bootMu *sync.Mutex, emit func(Event), logger *zap.Logger) *Session {
	ctx, cancel := context.WithCancel(ctx)
	if emit == nil {
		emit = func(Event) {}
	}
	return &Session{
		id:         id,
		diaryID:    diaryID,
		cards:      cards,
		emit:       emit,
		logger:     logger.With(zap.String("sessionId", id), zap.String("diaryId", diaryID)),
		ctx:        ctx,
		cancel:     cancel,
		debounce:   NewDebouncer(opts.Debounce),
		bootMu:     bootMu,
		structural: NewHistory(opts.HistoryLimit),
		text:       NewHistory(opts.TextHistoryLimit),
		local:      make(map[string]uint64),
		confirmed:  make(map[string]uint64),
	}
}

func (s *Session) ID() string { return s.id }

func (s *Session) DiaryID() string { return s.diaryID }

// Open loads the diary. An empty diary gets a single "New Topic" card.
func (s *Session) Open(ctx context.Context) (State, error) {
	cards, err := s.ensureCard(ctx)
	if err != nil {
		return State{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = cards
	s.current = 0
	return s.stateLocked(), nil
}

// ensureCard lists the diary and inserts a "New Topic" card when it has none.
// bootMu is shared by every session of a Manager, so concurrent sessions
// seeing the same empty diary create one card between them.
func (s *Session) ensureCard(ctx context.Context) ([]models.Card, error) {
	s.bootMu.Lock()
	defer s.bootMu.Unlock()
	cards, err := s.cards.List(ctx, s.diaryID)
	if err != nil || len(cards) > 0 {
		return cards, err
	}
	c, _, err := s.cards.Insert(ctx, s.diaryID, nil, 0, card.DefaultTopic, "")
	if err != nil {
		return nil, err
	}
	s.logger.Info("bootstrapped empty diary", zap.String("cardId", c.ID))
	return []models.Card{*c}, nil
}

// State returns the current view.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	dirty := []string{}
	for _, c := range s.state {
		if s.local[c.ID] > s.confirmed[c.ID] {
			dirty = append(dirty, c.ID)
		}
	}
	cards := models.CloneCards(s.state)
	if cards == nil {
		cards = []models.Card{}
	}
	return State{
		SessionID: s.id,
		DiaryID:   s.diaryID,
		Cards:     cards,
		Current:   s.current,
		CanUndo:   s.text.CanUndo() || s.structural.CanUndo(),
		CanRedo:   s.text.CanRedo() || s.structural.CanRedo(),
		Dirty:     dirty,
	}
}

// EditText applies edit to the focused card and schedules its write.
func (s *Session) EditText(edit TextEdit) (State, error) {
	patch := card.Patch{Topic: edit.Topic, BodyText: edit.BodyText}
	if patch.Empty() {
		return State{}, apperr.Validation("topic or bodyText is required")
	}
	if err := card.ValidatePatch(patch); err != nil {
		return State{}, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return State{}, errClosed
	}
	if len(s.state) == 0 {
		s.mu.Unlock()
		return State{}, apperr.Validation("diary has no card to edit")
	}
	s.text.Record(takeSnapshot(s.state, s.current))
	c := &s.state[s.current]
	if edit.Topic != nil {
		c.Topic = *edit.Topic
	}
	if edit.BodyText != nil {
		c.BodyText = sanitize.HTML(*edit.BodyText)
	}
	s.local[c.ID]++
	id := c.ID
	// Armed before unlocking so Close, which marks the session closed first,
	// always finds it.
	s.debounce.Trigger(id, func() { s.save(id) })
	st := s.stateLocked()
	s.mu.Unlock()
	return st, nil
}

// save writes the card's latest local text.
func (s *Session) save(id string) {
	s.mu.Lock()
	i := indexOf(s.state, id)
	if i < 0 {
		s.mu.Unlock()
		return
	}
	c := s.state[i]
	version := s.local[id]
	s.mu.Unlock()

	topic, body := c.Topic, c.BodyText
	if err := s.cards.Update(s.ctx, id, card.Patch{Topic: &topic, BodyText: &body}); err != nil {
		s.saveFailed(id, err)
		return
	}
	s.mu.Lock()
	if s.confirmed[id] < version {
		s.confirmed[id] = version
	}
	s.mu.Unlock()
}

// saveFailed reports a write that did not land. Local state is kept.
func (s *Session) saveFailed(cardID string, err error) {
	s.logger.Error("autosave failed", zap.String("cardId", cardID), zap.Error(err))
	s.emit(Event{
		Type:      EventSaveFailed,
		SessionID: s.id,
		DiaryID:   s.diaryID,
		CardID:    cardID,
		Message:   apperr.PublicMessage(err),
	})
}

// Next, Prev and Goto flush pending writes before moving focus.

func (s *Session) Next() (State, error) {
	return s.move(func(cur, n int) (int, error) {
		if cur+1 < n {
			return cur + 1, nil
		}
		return cur, nil
	})
}

func (s *Session) Prev() (State, error) {
	return s.move(func(cur, _ int) (int, error) {
		if cur > 0 {
			return cur - 1, nil
		}
		return cur, nil
	})
}

func (s *Session) Goto(index int) (State, error) {
	return s.move(func(_, n int) (int, error) {
		if index < 0 || index >= n {
			return 0, apperr.Validation("card index %d is out of range", index)
		}
		return index, nil
	})
}

func (s *Session) move(next func(cur, n int) (int, error)) (State, error) {
	s.debounce.FlushAll()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return State{}, errClosed
	}
	i, err := next(s.current, len(s.state))
	if err != nil {
		return State{}, err
	}
	s.current = i
	return s.stateLocked(), nil
}

// AddCard inserts a "New Topic" card after the focused one and focuses it.
func (s *Session) AddCard(ctx context.Context) (State, error) {
	return s.insert(ctx, false)
}

// DuplicateCard inserts a copy of the focused card right after it.
func (s *Session) DuplicateCard(ctx context.Context) (State, error) {
	return s.insert(ctx, true)
}

func (s *Session) insert(ctx context.Context, duplicate bool) (State, error) {
	s.debounce.FlushAll()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return State{}, errClosed
	}
	topic, body := card.DefaultTopic, ""
	if duplicate {
		if len(s.state) == 0 {
			return State{}, apperr.Validation("diary has no card to duplicate")
		}
		cur := s.state[s.current]
		topic, body = card.CopyTopic(cur.Topic), cur.BodyText
	}

	before := takeSnapshot(s.state, s.current)
	created, compacted, err := s.cards.Insert(ctx, s.diaryID, models.CloneCards(s.state), s.current, topic, body)
	if err != nil {
		return State{}, err
	}
	s.structural.Record(before)
	if compacted != nil {
		s.adoptOrders(compacted)
	}
	s.state = append(s.state, *created)
	card.Sort(s.state)
	s.current = indexOf(s.state, created.ID)
	return s.stateLocked(), nil
}

// adoptOrders copies persisted orders onto the local cards.
func (s *Session) adoptOrders(persisted []models.Card) {
	orders := make(map[string]float64, len(persisted))
	for _, c := range persisted {
		orders[c.ID] = c.Order
	}
	for i := range s.state {
		if o, ok := orders[s.state[i].ID]; ok {
			s.state[i].Order = o
		}
	}
}

// DeleteCard removes the focused card. Focus stays on the same index, or the
// new last card. Deleting the last card bootstraps a fresh one.
func (s *Session) DeleteCard(ctx context.Context) (State, error) {
	s.debounce.FlushAll()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return State{}, errClosed
	}
	if len(s.state) == 0 {
		return State{}, apperr.Validation("diary has no card to delete")
	}
	before := takeSnapshot(s.state, s.current)
	id := s.state[s.current].ID
	if err := s.cards.Delete(ctx, id); err != nil {
		return State{}, err
	}
	s.structural.Record(before)
	s.state = append(s.state[:s.current:s.current], s.state[s.current+1:]...)
	if s.current >= len(s.state) {
		s.current = len(s.state) - 1
	}
	if s.current < 0 {
		s.current = 0
	}
	if len(s.state) == 0 {
		cards, err := s.ensureCard(ctx)
		if err != nil {
			// The next empty snapshot retries.
			s.logger.Error("bootstrap after delete failed", zap.Error(err))
		} else {
			s.state = cards
		}
	}
	return s.stateLocked(), nil
}

// Reorder moves cardID to targetIndex, renumbering every card, and focuses it.
func (s *Session) Reorder(ctx context.Context, cardID string, targetIndex int) (State, error) {
	s.debounce.FlushAll()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return State{}, errClosed
	}
	moved, ok := card.Move(s.state, cardID, targetIndex)
	if !ok {
		return State{}, apperr.NotFound("card not found")
	}
	before := takeSnapshot(s.state, s.current)
	if err := s.cards.PersistOrders(ctx, moved); err != nil {
		return State{}, err
	}
	s.structural.Record(before)
	s.state = moved
	s.current = indexOf(moved, cardID)
	return s.stateLocked(), nil
}

// Undo reverts the latest text edit, or when there is none the latest
// structural change. applied is false when both histories are empty.
func (s *Session) Undo(ctx context.Context) (st State, applied bool, err error) {
	return s.travel(ctx, (*History).Undo, (*History).CanUndo)
}

// Redo re-applies what Undo reverted, with the same priority.
func (s *Session) Redo(ctx context.Context) (st State, applied bool, err error) {
	return s.travel(ctx, (*History).Redo, (*History).CanRedo)
}

func (s *Session) travel(ctx context.Context, step func(*History, snapshot) (snapshot, bool), can func(*History) bool) (State, bool, error) {
	s.debounce.FlushAll()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return State{}, false, errClosed
	}
	present := takeSnapshot(s.state, s.current)

	var target snapshot
	switch {
	case can(s.text):
		snap, _ := step(s.text, present)
		target = s.textTarget(snap)
	case can(s.structural):
		target, _ = step(s.structural, present)
	default:
		st := s.stateLocked()
		s.mu.Unlock()
		return st, false, nil
	}

	from := s.state
	s.state = target.cards
	s.current = clampIndex(target.current, len(s.state))
	versions := s.markTextChanges(from, s.state)
	to := models.CloneCards(s.state)
	s.mu.Unlock()

	written, err := s.persistDiff(ctx, from, to)

	s.mu.Lock()
	for _, id := range written {
		if s.confirmed[id] < versions[id] {
			s.confirmed[id] = versions[id]
		}
	}
	st := s.stateLocked()
	s.mu.Unlock()

	if err != nil {
		s.saveFailed("", err)
	}
	return st, true, nil
}

// markTextChanges counts a local edit for every card whose text differs
// between from and to, so snapshots arriving mid-write keep the new text.
// s.mu must be held.
func (s *Session) markTextChanges(from, to []models.Card) map[string]uint64 {
	fromByID := make(map[string]models.Card, len(from))
	for _, c := range from {
		fromByID[c.ID] = c
	}
	versions := make(map[string]uint64)
	for _, c := range to {
		old, ok := fromByID[c.ID]
		if !ok || (old.Topic == c.Topic && old.BodyText == c.BodyText) {
			continue
		}
		s.local[c.ID]++
		versions[c.ID] = s.local[c.ID]
	}
	return versions
}

// textTarget applies the text of snap onto the present card list. Text
// history never adds or removes cards.
func (s *Session) textTarget(snap snapshot) snapshot {
	byID := make(map[string]models.Card, len(snap.cards))
	for _, c := range snap.cards {
		byID[c.ID] = c
	}
	out := models.CloneCards(s.state)
	for i := range out {
		if old, ok := byID[out[i].ID]; ok {
			out[i].Topic = old.Topic
			out[i].BodyText = old.BodyText
		}
	}
	current := s.current
	if len(snap.cards) > 0 && snap.current < len(snap.cards) {
		if i := indexOf(out, snap.cards[snap.current].ID); i >= 0 {
			current = i
		}
	}
	return snapshot{cards: out, current: current}
}

// persistDiff writes whatever turns from into to: deleted cards, restored
// cards, and changed fields. Every write is attempted; errors are joined.
// written lists the cards whose text update landed. Runs without s.mu.
func (s *Session) persistDiff(ctx context.Context, from, to []models.Card) (written []string, err error) {
	toByID := make(map[string]models.Card, len(to))
	for _, c := range to {
		toByID[c.ID] = c
	}
	fromByID := make(map[string]models.Card, len(from))
	for _, c := range from {
		fromByID[c.ID] = c
	}

	var errs []error
	for _, c := range from {
		if _, ok := toByID[c.ID]; !ok {
			if err := s.cards.Delete(ctx, c.ID); err != nil {
				errs = append(errs, err)
			}
		}
	}
	for _, c := range to {
		old, ok := fromByID[c.ID]
		if !ok {
			if err := s.cards.Restore(ctx, c); err != nil {
				errs = append(errs, err)
			}
			continue
		}
		patch := diffPatch(old, c)
		if patch.Empty() {
			continue
		}
		if err := s.cards.Update(ctx, c.ID, patch); err != nil {
			errs = append(errs, err)
			continue
		}
		if patch.Topic != nil || patch.BodyText != nil {
			written = append(written, c.ID)
		}
	}
	return written, errors.Join(errs...)
}

func diffPatch(old, c models.Card) card.Patch {
	var p card.Patch
	if old.Topic != c.Topic {
		topic := c.Topic
		p.Topic = &topic
	}
	if old.BodyText != c.BodyText {
		body := c.BodyText
		p.BodyText = &body
	}
	if old.Order != c.Order {
		order := c.Order
		p.Order = &order
	}
	return p
}

// ApplySnapshot replaces the local list with a pushed snapshot. Cards with
// unconfirmed local edits keep their local text. An empty snapshot bootstraps
// a fresh card so an open diary never runs out of cards.
func (s *Session) ApplySnapshot(remote []models.Card) {
	if len(remote) == 0 {
		if s.isClosed() {
			return
		}
		cards, err := s.ensureCard(s.ctx)
		if err != nil {
			s.saveFailed("", err)
		} else {
			remote = cards
		}
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	var focused string
	if s.current < len(s.state) {
		focused = s.state[s.current].ID
	}
	merged := models.CloneCards(remote)
	for i := range merged {
		id := merged[i].ID
		if s.local[id] <= s.confirmed[id] && !s.debounce.Pending(id) {
			continue
		}
		if j := indexOf(s.state, id); j >= 0 {
			merged[i].Topic = s.state[j].Topic
			merged[i].BodyText = s.state[j].BodyText
		}
	}
	card.Sort(merged)
	s.state = merged
	if i := indexOf(merged, focused); i >= 0 {
		s.current = i
	} else {
		s.current = clampIndex(s.current, len(merged))
	}
	st := s.stateLocked()
	s.mu.Unlock()

	s.emit(Event{Type: EventState, SessionID: s.id, DiaryID: s.diaryID, State: &st})
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close rejects further edits, then flushes pending writes and stops the
// session.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.debounce.FlushAll()
	s.debounce.Stop()
	s.cancel()
}

func indexOf(cards []models.Card, id string) int {
	for i, c := range cards {
		if c.ID == id {
			return i
		}
	}
	return -1
}

func clampIndex(i, n int) int {
	if i >= n {
		i = n - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}

// Package bridge turns store change events on the cards collection into
// ordered per-diary snapshots for editor sessions and public viewers.
package bridge

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mx-space/diary/internal/models"
	"github.com/mx-space/diary/internal/store"
)

const (
	// burstWindow is how long a change waits for followers before the
	// affected diaries are re-queried once.
	burstWindow   = 25 * time.Millisecond
	retryInterval = 2 * time.Second
)

// Lister loads a diary's cards in display order.
type Lister interface {
	List(ctx context.Context, diaryID string) ([]models.Card, error)
}

// Publisher forwards snapshots to remote viewers, e.g. a gateway room.
type Publisher interface {
	PublishCards(diaryID string, cards []models.Card)
	// WatchedDiaries lists diaries that have remote viewers.
	WatchedDiaries() []string
}

type Bridge struct {
	st     store.Store
	cards  Lister
	logger *zap.Logger

	mu        sync.RWMutex
	subs      map[string]map[int]func([]models.Card)
	nextID    int
	publisher Publisher

	done chan struct{}
}

func New(st store.Store, cards Lister, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		st:     st,
		cards:  cards,
		logger: logger.Named("Bridge"),
		subs:   make(map[string]map[int]func([]models.Card)),
		done:   make(chan struct{}),
	}
}

// SetPublisher installs the remote fan-out.
func (b *Bridge) SetPublisher(p Publisher) {
	b.mu.Lock()
	b.publisher = p
	b.mu.Unlock()
}

// Subscribe calls fn with the diary's full ordered card list after every
// change to it, until unsubscribe is called.
func (b *Bridge) Subscribe(diaryID string, fn func([]models.Card)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[diaryID] == nil {
		b.subs[diaryID] = make(map[int]func([]models.Card))
	}
	b.subs[diaryID][id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[diaryID], id)
			if len(b.subs[diaryID]) == 0 {
				delete(b.subs, diaryID)
			}
		})
	}
}

// Subscribers is the number of local subscriptions on diaryID.
func (b *Bridge) Subscribers(diaryID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[diaryID])
}

// Start opens the change stream and processes it in the background until ctx
// is done. The first watch is opened synchronously so writes made after Start
// returns are observed.
func (b *Bridge) Start(ctx context.Context) error {
	changes, err := b.st.Watch(ctx, models.CollectionCards)
	if err != nil {
		return err
	}
	go b.run(ctx, changes)
	return nil
}

// Done is closed when the bridge has stopped.
func (b *Bridge) Done() <-chan struct{} { return b.done }

func (b *Bridge) run(ctx context.Context, changes <-chan store.Change) {
	defer close(b.done)
	for {
		b.consume(ctx, changes)
		if ctx.Err() != nil {
			return
		}
		b.logger.Warn("card change stream ended, reopening")
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(retryInterval):
			}
			var err error
			changes, err = b.st.Watch(ctx, models.CollectionCards)
			if err == nil {
				break
			}
			b.logger.Warn("reopen card change stream failed", zap.Error(err))
		}
	}
}

func (b *Bridge) consume(ctx context.Context, changes <-chan store.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case ch, ok := <-changes:
			if !ok {
				return
			}
			affected, all := collect(ch)
			open := b.drain(ctx, changes, affected, &all)
			b.refresh(ctx, affected, all)
			if !open {
				return
			}
		}
	}
}

// drain gathers changes arriving within burstWindow so a batch of writes
// costs one re-query per diary. It reports whether the stream is still open.
func (b *Bridge) drain(ctx context.Context, changes <-chan store.Change, affected map[string]struct{}, all *bool) bool {
	timer := time.NewTimer(burstWindow)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-timer.C:
			return true
		case ch, ok := <-changes:
			if !ok {
				return false
			}
			more, everything := collect(ch)
			for id := range more {
				affected[id] = struct{}{}
			}
			*all = *all || everything
		}
	}
}

// collect maps a change to the diaries it touches. all is true when the
// change carries no diary id, as for deletes on a Mongo change stream.
func collect(ch store.Change) (affected map[string]struct{}, all bool) {
	affected = make(map[string]struct{})
	if id, ok := ch.StringField("diaryId"); ok && id != "" {
		affected[id] = struct{}{}
		return affected, false
	}
	return affected, true
}

func (b *Bridge) refresh(ctx context.Context, affected map[string]struct{}, all bool) {
	b.mu.RLock()
	pub := b.publisher
	if all {
		for id := range b.subs {
			affected[id] = struct{}{}
		}
	}
	b.mu.RUnlock()
	if all && pub != nil {
		for _, id := range pub.WatchedDiaries() {
			affected[id] = struct{}{}
		}
	}

	for id := range affected {
		if err := b.Refresh(ctx, id); err != nil {
			b.logger.Warn("refresh diary snapshot failed", zap.String("diaryId", id), zap.Error(err))
		}
	}
}

// Refresh re-queries diaryID and delivers the snapshot to every subscriber
// and the publisher.
func (b *Bridge) Refresh(ctx context.Context, diaryID string) error {
	b.mu.RLock()
	fns := make([]func([]models.Card), 0, len(b.subs[diaryID]))
	for _, fn := range b.subs[diaryID] {
		fns = append(fns, fn)
	}
	pub := b.publisher
	b.mu.RUnlock()
	if len(fns) == 0 && pub == nil {
		return nil
	}

	cards, err := b.cards.List(ctx, diaryID)
	if err != nil {
		return err
	}
	for _, fn := range fns {
		fn(models.CloneCards(cards))
	}
	if pub != nil {
		pub.PublishCards(diaryID, cards)
	}
	return nil
}

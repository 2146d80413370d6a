package store

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const memoryWatchBuffer = 64

// FaultFunc lets callers fail selected operations of a Memory store.
// Returning a non-nil error aborts the operation before it touches any document.
type FaultFunc func(op Op, collection string, filter bson.M) error

// Memory is an in-process Store. Documents are kept bson-encoded so decoding
// behaves like the Mongo implementation.
type Memory struct {
	mu     sync.RWMutex
	colls  map[string][]bson.M
	fault  FaultFunc
	closed bool

	watchMu  sync.Mutex
	nextID   int
	watchers map[string]map[int]chan Change
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		colls:    make(map[string][]bson.M),
		watchers: make(map[string]map[int]chan Change),
	}
}

// SetFault installs fn as the fault injector; nil removes it.
func (m *Memory) SetFault(fn FaultFunc) {
	m.mu.Lock()
	m.fault = fn
	m.mu.Unlock()
}

func (m *Memory) checkFault(op Op, collection string, filter bson.M) error {
	if m.closed {
		return ErrClosed
	}
	if m.fault == nil {
		return nil
	}
	return m.fault(op, collection, filter)
}

func (m *Memory) Insert(ctx context.Context, collection string, doc any) error {
	return m.InsertMany(ctx, collection, []any{doc})
}

func (m *Memory) InsertMany(_ context.Context, collection string, docs []any) error {
	encoded := make([]bson.M, 0, len(docs))
	for _, doc := range docs {
		d, err := toDocument(doc)
		if err != nil {
			return err
		}
		if _, ok := d["_id"]; !ok {
			d["_id"] = primitive.NewObjectID()
		}
		encoded = append(encoded, d)
	}

	m.mu.Lock()
	if err := m.checkFault(OpInsert, collection, nil); err != nil {
		m.mu.Unlock()
		return err
	}
	m.colls[collection] = append(m.colls[collection], encoded...)
	m.mu.Unlock()

	for _, d := range encoded {
		m.emit(Change{Op: OpInsert, Collection: collection, Document: copyDocument(d)})
	}
	return nil
}

func (m *Memory) FindOne(_ context.Context, collection string, filter bson.M, out any) (bool, error) {
	nf, err := normalizeFilter(filter)
	if err != nil {
		return false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkFault(Op("find"), collection, filter); err != nil {
		return false, err
	}
	for _, d := range m.colls[collection] {
		if matches(d, nf) {
			return true, decodeDocument(d, out)
		}
	}
	return false, nil
}

func (m *Memory) Find(_ context.Context, collection string, q Query, out any) error {
	rv := reflect.ValueOf(out)
	if rv.Kind() != reflect.Ptr || rv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("store: find target must be a pointer to a slice, got %T", out)
	}
	nf, err := normalizeFilter(q.Filter)
	if err != nil {
		return err
	}

	m.mu.RLock()
	if err := m.checkFault(Op("find"), collection, q.Filter); err != nil {
		m.mu.RUnlock()
		return err
	}
	var hits []bson.M
	for _, d := range m.colls[collection] {
		if matches(d, nf) {
			hits = append(hits, copyDocument(d))
		}
	}
	m.mu.RUnlock()

	if len(q.Sort) > 0 {
		sort.SliceStable(hits, func(i, j int) bool {
			for _, s := range q.Sort {
				c := compareValues(hits[i][s.Field], hits[j][s.Field])
				if c == 0 {
					continue
				}
				if s.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if q.Skip > 0 {
		if q.Skip >= int64(len(hits)) {
			hits = nil
		} else {
			hits = hits[q.Skip:]
		}
	}
	if q.Limit > 0 && int64(len(hits)) > q.Limit {
		hits = hits[:q.Limit]
	}

	slice := rv.Elem()
	elemType := slice.Type().Elem()
	result := reflect.MakeSlice(slice.Type(), 0, len(hits))
	for _, d := range hits {
		ev := reflect.New(elemType)
		if err := decodeDocument(d, ev.Interface()); err != nil {
			return err
		}
		result = reflect.Append(result, ev.Elem())
	}
	slice.Set(result)
	return nil
}

func (m *Memory) Count(_ context.Context, collection string, filter bson.M) (int64, error) {
	nf, err := normalizeFilter(filter)
	if err != nil {
		return 0, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.checkFault(Op("count"), collection, filter); err != nil {
		return 0, err
	}
	var n int64
	for _, d := range m.colls[collection] {
		if matches(d, nf) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) Update(_ context.Context, collection string, filter bson.M, u Update) (int64, error) {
	nf, err := normalizeFilter(filter)
	if err != nil {
		return 0, err
	}
	set, err := normalizeFilter(u.Set)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	if err := m.checkFault(OpUpdate, collection, filter); err != nil {
		m.mu.Unlock()
		return 0, err
	}
	var changed []bson.M
	for _, d := range m.colls[collection] {
		if !matches(d, nf) {
			continue
		}
		for k, v := range set {
			d[k] = v
		}
		for k, v := range u.Inc {
			d[k] = addNumbers(d[k], v)
		}
		changed = append(changed, copyDocument(d))
	}
	m.mu.Unlock()

	for _, d := range changed {
		m.emit(Change{Op: OpUpdate, Collection: collection, Document: d})
	}
	return int64(len(changed)), nil
}

func (m *Memory) Delete(_ context.Context, collection string, filter bson.M) (int64, error) {
	nf, err := normalizeFilter(filter)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	if err := m.checkFault(OpDelete, collection, filter); err != nil {
		m.mu.Unlock()
		return 0, err
	}
	docs := m.colls[collection]
	kept := docs[:0]
	var removed []bson.M
	for _, d := range docs {
		if matches(d, nf) {
			removed = append(removed, d)
			continue
		}
		kept = append(kept, d)
	}
	m.colls[collection] = kept
	m.mu.Unlock()

	for _, d := range removed {
		m.emit(Change{Op: OpDelete, Collection: collection, Document: d})
	}
	return int64(len(removed)), nil
}

// Watch streams changes until ctx is done. Sends never block: a consumer that
// falls behind misses events, and is expected to re-query on the next one.
func (m *Memory) Watch(ctx context.Context, collection string) (<-chan Change, error) {
	ch := make(chan Change, memoryWatchBuffer)

	m.watchMu.Lock()
	id := m.nextID
	m.nextID++
	if m.watchers[collection] == nil {
		m.watchers[collection] = make(map[int]chan Change)
	}
	m.watchers[collection][id] = ch
	m.watchMu.Unlock()

	go func() {
		<-ctx.Done()
		m.watchMu.Lock()
		if subs, ok := m.watchers[collection]; ok {
			if _, ok := subs[id]; ok {
				delete(subs, id)
				close(ch)
			}
		}
		m.watchMu.Unlock()
	}()
	return ch, nil
}

func (m *Memory) emit(c Change) {
	m.watchMu.Lock()
	defer m.watchMu.Unlock()
	for _, ch := range m.watchers[c.Collection] {
		select {
		case ch <- c:
		default:
		}
	}
}

func (m *Memory) Close(context.Context) error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.watchMu.Lock()
	for coll, subs := range m.watchers {
		for id, ch := range subs {
			close(ch)
			delete(subs, id)
		}
		delete(m.watchers, coll)
	}
	m.watchMu.Unlock()
	return nil
}

func toDocument(doc any) (bson.M, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("store: encode document: %w", err)
	}
	var out bson.M
	if err := bson.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("store: decode document: %w", err)
	}
	return out, nil
}

func decodeDocument(d bson.M, out any) error {
	raw, err := bson.Marshal(d)
	if err != nil {
		return fmt.Errorf("store: encode document: %w", err)
	}
	if err := bson.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("store: decode document: %w", err)
	}
	return nil
}

func copyDocument(d bson.M) bson.M {
	out := make(bson.M, len(d))
	for k, v := range d {
		out[k] = v
	}
	return out
}

// normalizeFilter runs the values through bson so they compare like stored values.
func normalizeFilter(f bson.M) (bson.M, error) {
	if len(f) == 0 {
		return nil, nil
	}
	return toDocument(f)
}

func matches(d bson.M, filter bson.M) bool {
	for k, want := range filter {
		got, ok := d[k]
		if !ok {
			if want == nil {
				continue
			}
			return false
		}
		if compareValues(got, want) != 0 {
			return false
		}
	}
	return true
}

func addNumbers(cur, delta any) any {
	ci, cIsInt := asInt(cur)
	di, dIsInt := asInt(delta)
	if (cIsInt || cur == nil) && dIsInt {
		return ci + di
	}
	cf, _ := asFloat(cur)
	df, _ := asFloat(delta)
	return cf + df
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	if i, ok := asInt(v); ok {
		return float64(i), true
	}
	if f, ok := v.(float64); ok {
		return f, true
	}
	return 0, false
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case primitive.DateTime:
		return t.Time(), true
	case time.Time:
		return t, true
	}
	return time.Time{}, false
}

// compareValues orders two bson values: numbers numerically, times chronologically,
// strings lexically; anything else only compares for equality.
func compareValues(a, b any) int {
	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			switch {
			case af < bf:
				return -1
			case af > bf:
				return 1
			}
			return 0
		}
	}
	if at, ok := asTime(a); ok {
		if bt, ok := asTime(b); ok {
			return at.Compare(bt)
		}
	}
	if as, ok := a.(string); ok {
		if bs, ok := b.(string); ok {
			return strings.Compare(as, bs)
		}
	}
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	if reflect.DeepEqual(a, b) {
		return 0
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

package editor

import (
	"sync"
	"time"
)

// Debouncer runs the last function triggered for a key once the key has been
// quiet for the delay. Every armed call either fires on its timer or runs from
// Flush; it never runs twice.
type Debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	pending map[string]*call
	running map[string]*call
	stopped bool
}

type call struct {
	fn    func()
	timer *time.Timer
	done  chan struct{}
	after *call // previous run of the same key, finished before fn starts
}

func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:   delay,
		pending: make(map[string]*call),
		running: make(map[string]*call),
	}
}

// Trigger cancels any pending call for key and arms fn.
func (d *Debouncer) Trigger(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if prev, ok := d.pending[key]; ok {
		prev.timer.Stop()
	}
	c := &call{fn: fn, done: make(chan struct{})}
	c.timer = time.AfterFunc(d.delay, func() { d.fire(key, c) })
	d.pending[key] = c
}

func (d *Debouncer) fire(key string, c *call) {
	d.mu.Lock()
	if d.pending[key] != c {
		// Flushed or re-armed since the timer started.
		d.mu.Unlock()
		return
	}
	d.start(key, c)
	d.mu.Unlock()

	d.run(key, c)
}

// start moves c from pending to running. d.mu must be held.
func (d *Debouncer) start(key string, c *call) {
	delete(d.pending, key)
	c.after = d.running[key]
	d.running[key] = c
}

func (d *Debouncer) run(key string, c *call) {
	defer func() {
		d.mu.Lock()
		if d.running[key] == c {
			delete(d.running, key)
		}
		d.mu.Unlock()
		close(c.done)
	}()
	if c.after != nil {
		<-c.after.done
	}
	c.fn()
}

// Flush runs the pending call for key now, or waits for one already running.
// It reports whether a call was pending or running.
func (d *Debouncer) Flush(key string) bool {
	d.mu.Lock()
	if c, ok := d.pending[key]; ok {
		c.timer.Stop()
		d.start(key, c)
		d.mu.Unlock()
		d.run(key, c)
		return true
	}
	c, ok := d.running[key]
	d.mu.Unlock()
	if ok {
		<-c.done
	}
	return ok
}

// FlushAll flushes every key.
func (d *Debouncer) FlushAll() {
	d.mu.Lock()
	keys := make([]string, 0, len(d.pending)+len(d.running))
	for k := range d.pending {
		keys = append(keys, k)
	}
	for k := range d.running {
		if _, dup := d.pending[k]; !dup {
			keys = append(keys, k)
		}
	}
	d.mu.Unlock()

	for _, k := range keys {
		d.Flush(k)
	}
}

// Cancel drops the pending call for key without running it.
func (d *Debouncer) Cancel(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.pending[key]; ok {
		c.timer.Stop()
		delete(d.pending, key)
	}
}

// Pending reports whether key has an armed call.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

// Stop cancels all pending calls and rejects new ones. Call FlushAll first to
// keep them.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for k, c := range d.pending {
		c.timer.Stop()
		delete(d.pending, k)
	}
}

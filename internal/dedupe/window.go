// ABOUTME: Size-bounded window of recently seen message digests
// ABOUTME: Lets the MQTT handler skip batches the broker redelivers

package dedupe

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

type entry struct {
	seenAt time.Time
	elem   *list.Element
}

// Window remembers keys for a fixed duration. When full, the oldest key is
// evicted first. A Window is safe for concurrent use.
type Window struct {
	mu      sync.Mutex
	entries map[string]*entry
	order   *list.List // keys, oldest at front
	ttl     time.Duration
	maxSize int
	now     func() time.Time
	done    chan struct{}
	closed  bool
}

// NewWindow creates a window that remembers up to maxSize keys for ttl.
// A background goroutine sweeps expired keys until Close is called.
func NewWindow(ttl time.Duration, maxSize int) *Window {
	if maxSize < 1 {
		maxSize = 1
	}
	w := &Window{
		entries: make(map[string]*entry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
		done:    make(chan struct{}),
	}
	go w.sweepLoop()
	return w
}

// Key returns the digest used to identify payload.
func Key(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Claim records key and reports whether it was new. A false result means the
// key was claimed within the window and the caller should skip the work.
func (w *Window) Claim(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if e, ok := w.entries[key]; ok {
		if now.Sub(e.seenAt) < w.ttl {
			return false
		}
		e.seenAt = now
		w.order.MoveToBack(e.elem)
		return true
	}

	if len(w.entries) >= w.maxSize {
		w.evictOldest()
	}
	w.entries[key] = &entry{seenAt: now, elem: w.order.PushBack(key)}
	return true
}

// Release forgets key so a later Claim succeeds. Used when the claimed work
// failed and a redelivery should be processed.
func (w *Window) Release(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if e, ok := w.entries[key]; ok {
		w.order.Remove(e.elem)
		delete(w.entries, key)
	}
}

// Len returns the number of remembered keys, expired or not.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

// must hold mu
func (w *Window) evictOldest() {
	front := w.order.Front()
	if front == nil {
		return
	}
	key, _ := front.Value.(string)
	w.order.Remove(front)
	delete(w.entries, key)
}

func (w *Window) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.sweep()
		case <-w.done:
			return
		}
	}
}

// sweep drops expired keys. Keys are ordered by claim time, so it stops at
// the first live one.
func (w *Window) sweep() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	for front := w.order.Front(); front != nil; front = w.order.Front() {
		key, _ := front.Value.(string)
		if now.Sub(w.entries[key].seenAt) < w.ttl {
			return
		}
		w.order.Remove(front)
		delete(w.entries, key)
	}
}

// Close stops the background sweep. It is safe to call multiple times.
func (w *Window) Close() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.closed {
		close(w.done)
		w.closed = true
	}
}

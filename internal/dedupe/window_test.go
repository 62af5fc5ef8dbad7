// ABOUTME: Tests for the dedupe window
// ABOUTME: Validates claim expiry, release, eviction order, sweeping and concurrent claims

package dedupe

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock lets tests move time without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestWindow(t *testing.T, ttl time.Duration, size int) (*Window, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2021, 5, 7, 0, 0, 0, 0, time.UTC)}
	w := NewWindow(ttl, size)
	w.now = clock.now
	t.Cleanup(w.Close)
	return w, clock
}

func TestWindow_Claim(t *testing.T) {
	w, _ := newTestWindow(t, time.Minute, 10)

	assert.True(t, w.Claim("a"))
	assert.False(t, w.Claim("a"))
	assert.True(t, w.Claim("b"))
	assert.Equal(t, 2, w.Len())
}

func TestWindow_ClaimAfterExpiry(t *testing.T) {
	w, clock := newTestWindow(t, time.Minute, 10)

	require.True(t, w.Claim("a"))
	clock.advance(59 * time.Second)
	assert.False(t, w.Claim("a"))

	clock.advance(time.Second)
	assert.True(t, w.Claim("a"))
	assert.Equal(t, 1, w.Len())
}

func TestWindow_Release(t *testing.T) {
	w, _ := newTestWindow(t, time.Minute, 10)

	require.True(t, w.Claim("a"))
	w.Release("a")
	assert.Equal(t, 0, w.Len())
	assert.True(t, w.Claim("a"))

	// Releasing an unknown key is a no-op.
	w.Release("missing")
	assert.Equal(t, 1, w.Len())
}

func TestWindow_EvictsOldest(t *testing.T) {
	w, clock := newTestWindow(t, time.Hour, 2)

	w.Claim("a")
	clock.advance(time.Second)
	w.Claim("b")
	clock.advance(time.Second)
	w.Claim("c")

	assert.Equal(t, 2, w.Len())
	assert.True(t, w.Claim("a"), "oldest key should have been evicted")
	assert.False(t, w.Claim("c"))
}

func TestWindow_Sweep(t *testing.T) {
	w, clock := newTestWindow(t, time.Minute, 10)

	w.Claim("old")
	clock.advance(30 * time.Second)
	w.Claim("new")
	clock.advance(45 * time.Second)

	w.sweep()
	assert.Equal(t, 1, w.Len())
	assert.False(t, w.Claim("new"))
}

func TestWindow_MinimumSize(t *testing.T) {
	w, _ := newTestWindow(t, time.Minute, 0)

	assert.True(t, w.Claim("a"))
	assert.True(t, w.Claim("b"))
	assert.Equal(t, 1, w.Len())
}

func TestWindow_ConcurrentClaims(t *testing.T) {
	w, _ := newTestWindow(t, time.Minute, 100)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if w.Claim("same") {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestWindow_CloseTwice(t *testing.T) {
	w := NewWindow(time.Minute, 10)
	w.Close()
	assert.NotPanics(t, w.Close)
}

func TestKey(t *testing.T) {
	a := Key([]byte(`{"deviceName":"Noosa_Sensor"}`))
	b := Key([]byte(`{"deviceName":"Noosa_Sensor"}`))
	c := Key([]byte(`{"deviceName":"Woodford_Sensor"}`))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

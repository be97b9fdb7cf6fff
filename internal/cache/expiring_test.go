package cache

import (
	"sync"
	"testing"
	"time"
)

// fakeClock lets tests advance time without sleeping.
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
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestCache(ttl time.Duration) (*Expiring, *fakeClock) {
	clk := &fakeClock{t: time.Unix(1700000000, 0)}
	e := NewExpiring(ttl)
	e.now = clk.now
	return e, clk
}

func TestPutIfAbsent_FirstInsertWins(t *testing.T) {
	e, _ := newTestCache(time.Minute)

	if !e.PutIfAbsent("msg-1") {
		t.Error("first insert should report absent")
	}
	if e.PutIfAbsent("msg-1") {
		t.Error("second insert within TTL should report present")
	}
}

func TestContains_WithinWindow(t *testing.T) {
	e, clk := newTestCache(time.Minute)

	e.Put("msg-1")
	if !e.Contains("msg-1") {
		t.Error("key should be present right after insert")
	}

	clk.advance(59 * time.Second)
	if !e.Contains("msg-1") {
		t.Error("key should be present just before TTL")
	}
}

func TestContains_AfterExpiry(t *testing.T) {
	e, clk := newTestCache(time.Minute)

	e.Put("msg-1")
	clk.advance(time.Minute)
	if e.Contains("msg-1") {
		t.Error("key should be gone at exactly t+TTL")
	}
}

func TestPutIfAbsent_ReinsertAfterExpiry(t *testing.T) {
	e, clk := newTestCache(time.Minute)

	e.PutIfAbsent("msg-1")
	clk.advance(2 * time.Minute)
	if !e.PutIfAbsent("msg-1") {
		t.Error("expired id should be insertable again")
	}
}

func TestContains_Missing(t *testing.T) {
	e, _ := newTestCache(time.Minute)
	if e.Contains("never-inserted") {
		t.Error("absent key reported present")
	}
}

func TestLen_CountsOnlyLive(t *testing.T) {
	e, clk := newTestCache(time.Minute)

	e.Put("a")
	e.Put("b")
	clk.advance(30 * time.Second)
	e.Put("c")
	clk.advance(40 * time.Second) // a and b expired, c alive

	if got := e.Len(); got != 1 {
		t.Errorf("Len = %d, want 1", got)
	}
}

func TestPutIfAbsent_ConcurrentSingleWinner(t *testing.T) {
	e, _ := newTestCache(time.Minute)

	const goroutines = 32
	var wg sync.WaitGroup
	var winners sync.Map
	wins := 0
	var winsMu sync.Mutex

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if e.PutIfAbsent("contended") {
				winners.Store(n, true)
				winsMu.Lock()
				wins++
				winsMu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Errorf("expected exactly one winner, got %d", wins)
	}
}

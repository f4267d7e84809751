package infra

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"fleet-coord/middleware/coord/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
)

// storeHarness devolve um store e uma forma de avançar o relógio que ele usa para TTL.
type storeHarness func(t *testing.T) (domain.Store, func(time.Duration))

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func memoryHarness(t *testing.T) (domain.Store, func(time.Duration)) {
	clk := newFakeClock()
	return NewMemoryStore(WithClock(clk.Now)), clk.Advance
}

func redisHarness(t *testing.T) (domain.Store, func(time.Duration)) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb), mr.FastForward
}

func TestStoreContract(t *testing.T) {
	harnesses := map[string]storeHarness{
		"memory": memoryHarness,
		"redis":  redisHarness,
	}
	for name, h := range harnesses {
		t.Run(name, func(t *testing.T) {
			t.Run("StringsAndTTL", func(t *testing.T) { testStrings(t, h) })
			t.Run("Counters", func(t *testing.T) { testCounters(t, h) })
			t.Run("SortedSets", func(t *testing.T) { testSortedSets(t, h) })
			t.Run("Sets", func(t *testing.T) { testSets(t, h) })
			t.Run("Lists", func(t *testing.T) { testLists(t, h) })
			t.Run("KeysByPrefix", func(t *testing.T) { testKeys(t, h) })
		})
	}
}

func testStrings(t *testing.T, h storeHarness) {
	ctx := context.Background()
	s, advance := h(t)

	if _, ok, err := s.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing key to report ok=false, got ok=%v err=%v", ok, err)
	}

	won, err := s.SetNX(ctx, "lock", "1", time.Second)
	if err != nil || !won {
		t.Fatalf("expected first SetNX to win, got %v err=%v", won, err)
	}
	won, _ = s.SetNX(ctx, "lock", "2", time.Second)
	if won {
		t.Fatalf("expected second SetNX to lose while key is live")
	}

	advance(1100 * time.Millisecond)
	won, _ = s.SetNX(ctx, "lock", "3", time.Second)
	if !won {
		t.Fatalf("expected SetNX to win after TTL elapsed")
	}

	if err := s.Set(ctx, "v", "hello", time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	v, ok, _ := s.Get(ctx, "v")
	if !ok || v != "hello" {
		t.Fatalf("expected hello, got %q ok=%v", v, ok)
	}

	if err := s.Del(ctx, "v", "lock"); err != nil {
		t.Fatalf("Del failed: %v", err)
	}
	if _, ok, _ := s.Get(ctx, "v"); ok {
		t.Fatalf("expected key to be deleted")
	}
}

func testCounters(t *testing.T, h storeHarness) {
	ctx := context.Background()
	s, advance := h(t)

	for want := int64(1); want <= 3; want++ {
		n, err := s.IncrWithExpire(ctx, "c", time.Second)
		if err != nil {
			t.Fatalf("IncrWithExpire failed: %v", err)
		}
		if n != want {
			t.Fatalf("expected %d, got %d", want, n)
		}
	}

	advance(2 * time.Second)
	n, _ := s.IncrWithExpire(ctx, "c", time.Second)
	if n != 1 {
		t.Fatalf("expected counter to reset after expiry, got %d", n)
	}

	n, _ = s.Incr(ctx, "plain")
	if n != 1 {
		t.Fatalf("expected plain Incr to start at 1, got %d", n)
	}
}

func testSortedSets(t *testing.T, h storeHarness) {
	ctx := context.Background()
	s, _ := h(t)

	for i, m := range []string{"a", "b", "c", "d"} {
		if err := s.ZAdd(ctx, "z", float64(100*(i+1)), m); err != nil {
			t.Fatalf("ZAdd failed: %v", err)
		}
	}
	if n, _ := s.ZCard(ctx, "z"); n != 4 {
		t.Fatalf("expected 4 members, got %d", n)
	}

	score, ok, _ := s.ZScore(ctx, "z", "b")
	if !ok || score != 200 {
		t.Fatalf("expected score 200 for b, got %v ok=%v", score, ok)
	}
	if _, ok, _ := s.ZScore(ctx, "z", "nope"); ok {
		t.Fatalf("expected missing member to report ok=false")
	}

	// remove a (100) e b (200)
	if err := s.ZRemRangeByScore(ctx, "z", math.Inf(-1), 200); err != nil {
		t.Fatalf("ZRemRangeByScore failed: %v", err)
	}
	if n, _ := s.ZCard(ctx, "z"); n != 2 {
		t.Fatalf("expected 2 members after score trim, got %d", n)
	}

	// remove o de menor score (c)
	if err := s.ZRemRangeByRank(ctx, "z", 0, 0); err != nil {
		t.Fatalf("ZRemRangeByRank failed: %v", err)
	}
	if _, ok, _ := s.ZScore(ctx, "z", "c"); ok {
		t.Fatalf("expected lowest ranked member to be removed")
	}

	if err := s.ZRem(ctx, "z", "d"); err != nil {
		t.Fatalf("ZRem failed: %v", err)
	}
	if n, _ := s.ZCard(ctx, "z"); n != 0 {
		t.Fatalf("expected empty set, got %d", n)
	}
}

func testSets(t *testing.T, h storeHarness) {
	ctx := context.Background()
	s, _ := h(t)

	added, err := s.SAdd(ctx, "s", "h1")
	if err != nil || !added {
		t.Fatalf("expected first SAdd to add, got %v err=%v", added, err)
	}
	added, _ = s.SAdd(ctx, "s", "h1")
	if added {
		t.Fatalf("expected duplicate SAdd to report false")
	}
	if err := s.SRem(ctx, "s", "h1"); err != nil {
		t.Fatalf("SRem failed: %v", err)
	}
	added, _ = s.SAdd(ctx, "s", "h1")
	if !added {
		t.Fatalf("expected SAdd after SRem to add again")
	}
}

func testLists(t *testing.T, h storeHarness) {
	ctx := context.Background()
	s, _ := h(t)

	for _, v := range []string{"first", "second", "third"} {
		if err := s.LPush(ctx, "l", v); err != nil {
			t.Fatalf("LPush failed: %v", err)
		}
	}
	if n, _ := s.LLen(ctx, "l"); n != 3 {
		t.Fatalf("expected length 3, got %d", n)
	}

	v, ok, _ := s.RPop(ctx, "l")
	if !ok || v != "first" {
		t.Fatalf("expected RPop to return oldest (first), got %q", v)
	}
	v, ok, _ = s.LPop(ctx, "l")
	if !ok || v != "third" {
		t.Fatalf("expected LPop to return newest (third), got %q", v)
	}
	_, _, _ = s.RPop(ctx, "l")
	if _, ok, _ := s.RPop(ctx, "l"); ok {
		t.Fatalf("expected empty list to report ok=false")
	}
	if n, _ := s.LLen(ctx, "l"); n != 0 {
		t.Fatalf("expected empty list length 0, got %d", n)
	}
}

func testKeys(t *testing.T, h storeHarness) {
	ctx := context.Background()
	s, _ := h(t)

	_ = s.Set(ctx, "app:a", "1", 0)
	_ = s.Set(ctx, "app:b", "1", 0)
	_, _ = s.SAdd(ctx, "app:set", "x")
	_ = s.Set(ctx, "other:c", "1", 0)

	got, err := s.Keys(ctx, "app:")
	if err != nil {
		t.Fatalf("Keys failed: %v", err)
	}
	want := map[string]bool{"app:a": true, "app:b": true, "app:set": true}
	gotSet := map[string]bool{}
	for _, k := range got {
		gotSet[k] = true
	}
	if diff := cmp.Diff(want, gotSet); diff != "" {
		t.Fatalf("unexpected keys (-want +got):\n%s", diff)
	}
}

func TestMemoryStore_WrongType(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_ = s.Set(ctx, "k", "v", 0)
	if _, err := s.SAdd(ctx, "k", "m"); err != ErrWrongType {
		t.Fatalf("expected ErrWrongType, got %v", err)
	}
}

func TestMemoryStore_TTL(t *testing.T) {
	clk := newFakeClock()
	s := NewMemoryStore(WithClock(clk.Now))
	ctx := context.Background()

	if got := s.TTL("none"); got != -2 {
		t.Fatalf("expected -2 for missing key, got %v", got)
	}
	_ = s.Set(ctx, "forever", "1", 0)
	if got := s.TTL("forever"); got != -1 {
		t.Fatalf("expected -1 for key without expiry, got %v", got)
	}
	_ = s.Set(ctx, "k", "1", time.Minute)
	clk.Advance(20 * time.Second)
	if got := s.TTL("k"); got != 40*time.Second {
		t.Fatalf("expected 40s remaining, got %v", got)
	}
}

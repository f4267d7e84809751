package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"fleet-coord/middleware/coord/domain"
	"fleet-coord/middleware/coord/infra"
)

var errBoom = errors.New("boom")

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

// newStore devolve um MemoryStore preso ao relógio falso.
func newStore() (*infra.MemoryStore, *fakeClock) {
	clk := newFakeClock()
	return infra.NewMemoryStore(infra.WithClock(clk.Now)), clk
}

// flakyStore delega para o store real e falha as operações marcadas.
type flakyStore struct {
	domain.Store

	mu   sync.Mutex
	fail map[string]bool
}

func newFlaky(s domain.Store, ops ...string) *flakyStore {
	f := &flakyStore{Store: s, fail: map[string]bool{}}
	f.set(true, ops...)
	return f
}

func (f *flakyStore) set(failing bool, ops ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, op := range ops {
		f.fail[op] = failing
	}
}

func (f *flakyStore) failing(op string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fail[op] || f.fail["*"]
}

func (f *flakyStore) Get(ctx context.Context, key string) (string, bool, error) {
	if f.failing("Get") {
		return "", false, errBoom
	}
	return f.Store.Get(ctx, key)
}

func (f *flakyStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if f.failing("Set") {
		return errBoom
	}
	return f.Store.Set(ctx, key, value, ttl)
}

func (f *flakyStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if f.failing("SetNX") {
		return false, errBoom
	}
	return f.Store.SetNX(ctx, key, value, ttl)
}

func (f *flakyStore) IncrWithExpire(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if f.failing("IncrWithExpire") {
		return 0, errBoom
	}
	return f.Store.IncrWithExpire(ctx, key, ttl)
}

func (f *flakyStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	if f.failing("ZAdd") {
		return errBoom
	}
	return f.Store.ZAdd(ctx, key, score, member)
}

func (f *flakyStore) ZCard(ctx context.Context, key string) (int64, error) {
	if f.failing("ZCard") {
		return 0, errBoom
	}
	return f.Store.ZCard(ctx, key)
}

func (f *flakyStore) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	if f.failing("ZScore") {
		return 0, false, errBoom
	}
	return f.Store.ZScore(ctx, key, member)
}

func (f *flakyStore) ZRemRangeByScore(ctx context.Context, key string, min, max float64) error {
	if f.failing("ZRemRangeByScore") {
		return errBoom
	}
	return f.Store.ZRemRangeByScore(ctx, key, min, max)
}

func (f *flakyStore) SAdd(ctx context.Context, key, member string) (bool, error) {
	if f.failing("SAdd") {
		return false, errBoom
	}
	return f.Store.SAdd(ctx, key, member)
}

func (f *flakyStore) LPush(ctx context.Context, key, value string) error {
	if f.failing("LPush") {
		return errBoom
	}
	return f.Store.LPush(ctx, key, value)
}

func (f *flakyStore) RPop(ctx context.Context, key string) (string, bool, error) {
	if f.failing("RPop") {
		return "", false, errBoom
	}
	return f.Store.RPop(ctx, key)
}

func (f *flakyStore) LLen(ctx context.Context, key string) (int64, error) {
	if f.failing("LLen") {
		return 0, errBoom
	}
	return f.Store.LLen(ctx, key)
}

// countingRecorder guarda os contadores por "evento/outcome".
type countingRecorder struct {
	mu     sync.Mutex
	counts map[string]float64
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{counts: map[string]float64{}}
}

func (r *countingRecorder) Add(name string, v float64, tags map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[name+"/"+tags["outcome"]] += v
}

func (r *countingRecorder) Observe(string, float64, map[string]string) {}

func (r *countingRecorder) get(key string) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[key]
}

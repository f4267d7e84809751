package application

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"fleet-coord/middleware/coord/domain"
	"fleet-coord/middleware/coord/infra"
)

type blockingPool struct {
}

func (p *blockingPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case <-ctx.Done():
		return nil, false
	case <-time.After(5 * time.Second):
		// não deve chegar aqui nos testes
		return nil, false
	}
}

type immediatePool struct {
	acquired int
	released int
}

func (p *immediatePool) Acquire(ctx context.Context) (func(), bool) {
	p.acquired++
	return func() { p.released++ }, true
}

func TestConcurrencyService_Acquire_AllowsWhenNoPool(t *testing.T) {
	svc := ConcurrencyService{}
	release, ok := svc.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected ok")
	}
	release()
}

func TestConcurrencyService_Acquire_UsesTimeout(t *testing.T) {
	svc := ConcurrencyService{Pools: []domain.SlotPool{&blockingPool{}}, AcquireTimeout: 10 * time.Millisecond}

	_, ok := svc.Acquire(context.Background())
	if ok {
		t.Fatalf("expected timeout and ok=false")
	}
}

func TestConcurrencyService_Acquire_NoTimeoutDelegatesToPool(t *testing.T) {
	pool := &immediatePool{}
	svc := ConcurrencyService{Pools: []domain.SlotPool{pool}, AcquireTimeout: 0}

	release, ok := svc.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected ok")
	}
	if pool.acquired != 1 {
		t.Fatalf("expected pool Acquire to be called once, got %d", pool.acquired)
	}
	release()
	if pool.released != 1 {
		t.Fatalf("expected release to reach the pool, got %d", pool.released)
	}
}

func TestConcurrencyService_Acquire_ReleasesEarlierPoolsOnFailure(t *testing.T) {
	first := &immediatePool{}
	svc := ConcurrencyService{
		Pools:          []domain.SlotPool{first, &blockingPool{}},
		AcquireTimeout: 10 * time.Millisecond,
	}

	if _, ok := svc.Acquire(context.Background()); ok {
		t.Fatalf("expected ok=false when the second pool times out")
	}
	if first.released != 1 {
		t.Fatalf("expected first slot to be returned, got %d releases", first.released)
	}
}

func TestFleetPool_AcquireAndRelease(t *testing.T) {
	sem := &Semaphore{Store: infra.NewMemoryStore(), Keys: domain.NewKeys("test")}
	pool := &FleetPool{Sem: sem, Name: "upstream", Max: 1, TTL: time.Minute}
	ctx := context.Background()

	release, ok := pool.Acquire(ctx)
	if !ok {
		t.Fatalf("expected first acquire to succeed")
	}
	if _, ok := pool.Acquire(ctx); ok {
		t.Fatalf("expected second acquire to be denied without retry")
	}

	release()
	release()
	if n, _ := sem.Holders(ctx, "upstream"); n != 0 {
		t.Fatalf("expected slot to be freed, got %d holders", n)
	}
}

func TestFleetPool_RetriesUntilSlotFrees(t *testing.T) {
	sem := &Semaphore{Store: infra.NewMemoryStore(), Keys: domain.NewKeys("test")}
	pool := &FleetPool{Sem: sem, Name: "upstream", Max: 1, TTL: time.Minute, RetryEvery: 5 * time.Millisecond}

	release, _ := pool.Acquire(context.Background())
	time.AfterFunc(30*time.Millisecond, release)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	second, ok := pool.Acquire(ctx)
	if !ok {
		t.Fatalf("expected retry to acquire once the slot was released")
	}
	second()
}

func TestFleetPool_HeartbeatKeepsSlot(t *testing.T) {
	var refreshes atomic.Int32
	clk := newFakeClock()
	store := infra.NewMemoryStore(infra.WithClock(clk.Now))
	sem := &Semaphore{Store: store, Keys: domain.NewKeys("test"), Now: clk.Now, Metrics: heartbeatCounter{&refreshes}}
	pool := &FleetPool{Sem: sem, Name: "upstream", Max: 1, TTL: time.Second, Heartbeat: 5 * time.Millisecond}

	release, ok := pool.Acquire(context.Background())
	if !ok {
		t.Fatalf("expected acquire")
	}
	defer release()

	deadline := time.Now().Add(time.Second)
	for refreshes.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if refreshes.Load() < 2 {
		t.Fatalf("expected heartbeat to refresh the slot, got %d refreshes", refreshes.Load())
	}
}

type heartbeatCounter struct{ n *atomic.Int32 }

func (h heartbeatCounter) Add(name string, _ float64, tags map[string]string) {
	if name == "semaphore.refresh" && tags["outcome"] == "ok" {
		h.n.Add(1)
	}
}

func (heartbeatCounter) Observe(string, float64, map[string]string) {}

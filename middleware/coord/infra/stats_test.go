package infra

import (
	"context"
	"testing"
	"time"

	"fleet-coord/middleware/coord/domain"
)

func TestKVStatsStore_RecordsTotalsRoutesAndIdentities(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	stats := NewKVStatsStore(store,
		WithStatsKeys(domain.NewKeys("t")),
		WithStatsTrackIdentities(true),
	)

	at := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	events := []domain.StatsEvent{
		{Identity: "1.2.3.4", Allowed: true, Method: "POST", Route: "/generate", At: at},
		{Identity: "1.2.3.4", Allowed: true, Method: "POST", Route: "/generate", At: at},
		{Identity: "1.2.3.4", Allowed: false, Method: "POST", Route: "/generate", At: at},
	}
	for _, ev := range events {
		if err := stats.Record(ctx, ev); err != nil {
			t.Fatalf("Record failed: %v", err)
		}
	}

	if n, _ := stats.Get(ctx, "total", "allowed"); n != 2 {
		t.Fatalf("expected 2 allowed, got %d", n)
	}
	if n, _ := stats.Get(ctx, "total", "denied"); n != 1 {
		t.Fatalf("expected 1 denied, got %d", n)
	}
	if n, _ := stats.Get(ctx, "route", "POST /generate", "allowed"); n != 2 {
		t.Fatalf("expected 2 allowed on route, got %d", n)
	}
	if n, _ := stats.Get(ctx, "id", "1.2.3.4", "denied"); n != 1 {
		t.Fatalf("expected 1 denied for identity, got %d", n)
	}

	minuteKey := domain.NewKeys("t").Stats("minute", "202503040506", "allowed")
	if ttl := store.TTL(minuteKey); ttl <= 0 {
		t.Fatalf("expected minute bucket to expire, got ttl=%v", ttl)
	}
	if ttl := store.TTL(domain.NewKeys("t").Stats("total", "allowed")); ttl != -1 {
		t.Fatalf("expected total counter without expiry, got ttl=%v", ttl)
	}
}

func TestKVStatsStore_NilIsNoop(t *testing.T) {
	var s *KVStatsStore
	if err := s.Record(context.Background(), domain.StatsEvent{Allowed: true}); err != nil {
		t.Fatalf("expected nil store to be a no-op, got %v", err)
	}
}

func TestMemoryStatsStore_CountsByRouteAndIdentity(t *testing.T) {
	s := NewMemoryStatsStore(WithTrackIdentities(true))
	ctx := context.Background()

	_ = s.Record(ctx, domain.StatsEvent{Identity: "a", Allowed: true, Method: "GET", Route: "/x"})
	_ = s.Record(ctx, domain.StatsEvent{Identity: "a", Allowed: false, Method: "GET", Route: "/x"})
	_ = s.Record(ctx, domain.StatsEvent{Identity: "b", Allowed: true, Method: "POST", Route: "/y"})

	if got := s.Total(); got.Allowed != 2 || got.Denied != 1 {
		t.Fatalf("unexpected totals: %+v", got)
	}
	if got := s.ByRoute()["GET /x"]; got.Allowed != 1 || got.Denied != 1 {
		t.Fatalf("unexpected route counters: %+v", got)
	}
	if got := s.ByIdentity()["b"]; got.Allowed != 1 {
		t.Fatalf("unexpected identity counters: %+v", got)
	}
}

package infra

import (
	"context"
	"sync"
	"time"

	"fleet-coord/middleware/coord/domain"

	"golang.org/x/time/rate"
)

// TokenBuckets guarda um token bucket por chave para a política FallbackLocal.
// Cada bucket nasce do domain.Limit pedido em Get (Max tokens por Window, burst = Max),
// então limites por rota continuam valendo com o store fora. O limite efetivo da
// frota nesse modo é Max * instâncias.
type TokenBuckets struct {
	mu      sync.Mutex
	buckets map[domain.Key]*bucket

	idleTTL      time.Duration
	cleanupEvery time.Duration
	now          func() time.Time
}

type bucket struct {
	limit    domain.Limit
	lim      *rate.Limiter
	lastSeen time.Time
}

type TokenBucketsOption func(*TokenBuckets)

func WithIdleTTL(d time.Duration) TokenBucketsOption {
	return func(s *TokenBuckets) { s.idleTTL = d }
}

func WithCleanupEvery(d time.Duration) TokenBucketsOption {
	return func(s *TokenBuckets) { s.cleanupEvery = d }
}

func WithBucketClock(now func() time.Time) TokenBucketsOption {
	return func(s *TokenBuckets) { s.now = now }
}

func NewTokenBuckets(opts ...TokenBucketsOption) *TokenBuckets {
	s := &TokenBuckets{
		buckets:      make(map[domain.Key]*bucket),
		idleTTL:      15 * time.Minute,
		cleanupEvery: 2 * time.Minute,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BucketRate converte a janela fixa em taxa de reposição e burst.
func BucketRate(limit domain.Limit) (rate.Limit, int) {
	if limit.Window <= 0 {
		return rate.Inf, int(max(limit.Max, 1))
	}
	return rate.Limit(float64(limit.Max) / limit.Window.Seconds()), int(max(limit.Max, 1))
}

// Get implementa domain.LimiterStore. Um limite diferente para a mesma chave
// recomeça o bucket.
func (s *TokenBuckets) Get(key domain.Key, limit domain.Limit) domain.Limiter {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.buckets[key]; ok && b.limit == limit {
		b.lastSeen = now
		return b.lim
	}

	r, burst := BucketRate(limit)
	b := &bucket{limit: limit, lim: rate.NewLimiter(r, burst), lastSeen: now}
	s.buckets[key] = b
	return b.lim
}

func (s *TokenBuckets) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.buckets)
}

// Cleanup remove buckets sem uso há mais de idleTTL.
func (s *TokenBuckets) Cleanup() {
	cutoff := s.now().Add(-s.idleTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, b := range s.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(s.buckets, k)
		}
	}
}

// StartJanitor roda Cleanup a cada cleanupEvery até o contexto ser cancelado.
func (s *TokenBuckets) StartJanitor(ctx context.Context) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

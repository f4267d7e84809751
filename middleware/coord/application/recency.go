package application

import (
	"context"
	"time"

	"fleet-coord/middleware/coord/domain"

	"go.uber.org/zap"
)

// RecencyFilter lembra, por consumidor, quais hashes foram servidos e quando.
// Falhas do store fazem o item parecer inédito: repetir é melhor que travar a entrega.
type RecencyFilter struct {
	Store domain.Store
	Keys  domain.Keys
	Now   func() time.Time

	Logger  *zap.Logger
	Metrics domain.MetricsRecorder
}

// MarkServed registra hash como servido agora. O set expira em ttl sem novas marcações e
// guarda no máximo `limit` hashes (os mais antigos saem primeiro); limit <= 0 não corta.
func (f *RecencyFilter) MarkServed(ctx context.Context, consumer, hash string, ttl time.Duration, limit int64) domain.BestEffort {
	if f.Store == nil || consumer == "" || hash == "" {
		return domain.BestEffort{Op: "recency.mark"}
	}
	key := f.Keys.Recent(consumer)

	if err := f.Store.ZAdd(ctx, key, millis(clock(f.Now)), hash); err != nil {
		storeFailed(f.Logger, "recency.mark", err, zap.String("consumer", consumer))
		return domain.BestEffort{Op: "recency.mark", Err: err}
	}
	if ttl > 0 {
		if err := f.Store.Expire(ctx, key, ttl); err != nil {
			return reportCleanup(f.Logger, domain.BestEffort{Op: "recency.expire", Err: err})
		}
	}
	if limit <= 0 {
		return domain.BestEffort{Op: "recency.mark"}
	}

	n, err := f.Store.ZCard(ctx, key)
	if err != nil {
		return reportCleanup(f.Logger, domain.BestEffort{Op: "recency.card", Err: err})
	}
	if n > limit {
		err := f.Store.ZRemRangeByRank(ctx, key, 0, n-limit-1)
		return reportCleanup(f.Logger, domain.BestEffort{Op: "recency.trim", Err: err})
	}
	return domain.BestEffort{Op: "recency.mark"}
}

// IsRecentlyServed diz se hash foi servido a consumer há menos de window.
func (f *RecencyFilter) IsRecentlyServed(ctx context.Context, consumer, hash string, window time.Duration) bool {
	if f.Store == nil || consumer == "" || hash == "" {
		return false
	}
	score, ok, err := f.Store.ZScore(ctx, f.Keys.Recent(consumer), hash)
	if err != nil {
		storeFailed(f.Logger, "recency.check", err, zap.String("consumer", consumer))
		count(f.Metrics, "recency.check", "fail_open")
		return false
	}
	if !ok {
		return false
	}
	age := millis(clock(f.Now)) - score
	return age < float64(window.Milliseconds())
}

// FilterNovel devolve, na ordem original, os itens que consumer não viu dentro de window.
// Itens sem hash passam sempre.
func (f *RecencyFilter) FilterNovel(ctx context.Context, consumer string, items []domain.Item, window time.Duration) []domain.Item {
	out := make([]domain.Item, 0, len(items))
	for _, it := range items {
		if it.Hash != "" && f.IsRecentlyServed(ctx, consumer, it.Hash, window) {
			continue
		}
		out = append(out, it)
	}
	return out
}

// Predicate adapta o filtro para o PopNovel da fila.
func (f *RecencyFilter) Predicate(consumer string, window time.Duration) domain.RecentFunc {
	return func(ctx context.Context, hash string) bool {
		return f.IsRecentlyServed(ctx, consumer, hash, window)
	}
}

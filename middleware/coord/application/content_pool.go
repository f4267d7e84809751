package application

import (
	"context"
	"time"

	"fleet-coord/middleware/coord/domain"
)

const (
	defaultServeAttempts = 5
	defaultServedTTL     = 24 * time.Hour
	defaultServedCap     = 500
)

// ContentPool é o caminho de entrega: tira da fila o item que o consumidor ainda não
// viu (ou o menos ruim) e marca como servido.
type ContentPool struct {
	Queue   *DedupQueue
	Recency *RecencyFilter

	// Window é quanto tempo um item conta como "visto" pelo consumidor.
	Window time.Duration
	// ServedTTL e ServedCap controlam o histórico por consumidor.
	ServedTTL time.Duration
	ServedCap int64
	// Attempts limita os candidatos examinados por entrega.
	Attempts int
}

// Serve entrega um item do grupo para consumer. Consumidor vazio recebe o próximo da fila.
func (p *ContentPool) Serve(ctx context.Context, group, consumer string) (domain.Item, bool) {
	if consumer == "" || p.Recency == nil {
		return p.Queue.Pop(ctx, group)
	}

	attempts := p.Attempts
	if attempts <= 0 {
		attempts = defaultServeAttempts
	}
	item, ok := p.Queue.PopNovel(ctx, group, p.Recency.Predicate(consumer, p.window()), attempts)
	if !ok {
		return domain.Item{}, false
	}

	ttl := p.ServedTTL
	if ttl <= 0 {
		ttl = max(defaultServedTTL, p.window())
	}
	limit := p.ServedCap
	if limit <= 0 {
		limit = defaultServedCap
	}
	p.Recency.MarkServed(ctx, consumer, item.Hash, ttl, limit)
	return item, true
}

func (p *ContentPool) window() time.Duration {
	if p.Window > 0 {
		return p.Window
	}
	return defaultServedTTL
}

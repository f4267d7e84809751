package infra

import (
	"context"

	"fleet-coord/middleware/coord/domain"
)

// LocalPool é um semáforo por instância baseado em channel.
//
// O gateway o usa na frente do semáforo distribuído: protege o processo mesmo quando o
// store está fora (o semáforo distribuído nega por falha fechada, este não depende de rede).
type LocalPool struct {
	sem chan struct{}
}

var _ domain.SlotPool = (*LocalPool)(nil)

// NewLocalPool cria um pool com capacidade `max`.
func NewLocalPool(max int) *LocalPool {
	return &LocalPool{sem: make(chan struct{}, max)}
}

func (p *LocalPool) Acquire(ctx context.Context) (func(), bool) {
	select {
	case p.sem <- struct{}{}:
		return func() { <-p.sem }, true
	case <-ctx.Done():
		return nil, false
	}
}

func (p *LocalPool) InUse() int    { return len(p.sem) }
func (p *LocalPool) Capacity() int { return cap(p.sem) }

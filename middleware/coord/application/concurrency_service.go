package application

import (
	"context"
	"sync"
	"time"

	"fleet-coord/middleware/coord/domain"

	"go.uber.org/zap"
)

// ConcurrencyService concentra a regra de aquisição/liberação de vagas com timeout,
// sem saber nada sobre HTTP.
//
// Pools são adquiridos em ordem (ex: LocalPool e depois FleetPool); se um falhar, os já
// adquiridos são devolvidos.
type ConcurrencyService struct {
	Pools          []domain.SlotPool
	AcquireTimeout time.Duration
}

// Acquire tenta adquirir uma vaga em todos os pools.
// - Se `AcquireTimeout <= 0`, espera indefinidamente (até ctx cancelar).
// - Se `AcquireTimeout > 0`, espera até o timeout.
// Retorna (release, ok). Se ok=false, nenhuma vaga ficou presa.
func (s ConcurrencyService) Acquire(ctx context.Context) (func(), bool) {
	if len(s.Pools) == 0 {
		return func() {}, true
	}

	if s.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.AcquireTimeout)
		defer cancel()
	}

	releases := make([]func(), 0, len(s.Pools))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, p := range s.Pools {
		if p == nil {
			continue
		}
		release, ok := p.Acquire(ctx)
		if !ok {
			releaseAll()
			return nil, false
		}
		releases = append(releases, release)
	}
	return releaseAll, true
}

// FleetPool adapta o Semaphore distribuído ao contrato domain.SlotPool.
//
// Enquanto a vaga está presa, um heartbeat chama Refresh a cada Heartbeat (padrão TTL/2)
// para que jobs longos não sejam coletados no meio.
type FleetPool struct {
	Sem  *Semaphore
	Name string
	Max  int
	TTL  time.Duration

	// RetryEvery > 0 faz Acquire tentar de novo até o ctx encerrar; 0 tenta uma vez.
	RetryEvery time.Duration
	Heartbeat  time.Duration

	Logger *zap.Logger
}

var _ domain.SlotPool = (*FleetPool)(nil)

func (p *FleetPool) Acquire(ctx context.Context) (func(), bool) {
	for {
		tok, ok := p.Sem.Acquire(ctx, p.Name, p.Max, p.TTL)
		if ok {
			return p.hold(ctx, tok), true
		}
		if p.RetryEvery <= 0 {
			return nil, false
		}
		t := time.NewTimer(p.RetryEvery)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, false
		case <-t.C:
		}
	}
}

func (p *FleetPool) hold(ctx context.Context, tok domain.Token) func() {
	every := p.Heartbeat
	if every <= 0 {
		every = p.TTL / 2
	}
	bg := context.WithoutCancel(ctx)
	stop := make(chan struct{})

	if every > 0 {
		go func() {
			t := time.NewTicker(every)
			defer t.Stop()
			for {
				select {
				case <-stop:
					return
				case <-t.C:
					rctx, cancel := context.WithTimeout(bg, releaseTimeout)
					alive := p.Sem.Refresh(rctx, tok)
					cancel()
					if !alive {
						logger(p.Logger).Warn("semaphore slot lost while held",
							zap.String("semaphore", tok.Name), zap.String("member", tok.Member))
						return
					}
				}
			}
		}()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			rctx, cancel := context.WithTimeout(bg, releaseTimeout)
			defer cancel()
			p.Sem.Release(rctx, tok)
		})
	}
}

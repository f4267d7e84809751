package application

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fleet-coord/middleware/coord/domain"

	"go.uber.org/zap"
)

const defaultPollInterval = 250 * time.Millisecond

// Singleflight garante que o trabalho identificado por uma chave rode no máximo uma vez
// na frota por janela de TTL. Quem perde a corrida pelo lock espera o resultado do vencedor.
type Singleflight struct {
	Store domain.Store
	Keys  domain.Keys

	// PollInterval é o intervalo entre leituras do resultado pelos seguidores (padrão 250ms).
	PollInterval time.Duration
	// ReleaseDelay atrasa a remoção do lock depois que o resultado foi gravado.
	// Zero remove na hora.
	ReleaseDelay time.Duration

	Logger  *zap.Logger
	Metrics domain.MetricsRecorder
}

// Run executa fn sob o lock `key`. O resultado do vencedor fica em Keys.LockResult(key) por ttl.
//
// Seguidores recebem o mesmo resultado ou um erro que satisfaz
// errors.Is(err, domain.ErrSingleflightTimeout). ttl <= 0 é rejeitado com
// domain.ErrInvalidTTL antes de tocar no store. Sem store (ou com o SETNX falhando)
// fn roda localmente: a ausência do lock não pode derrubar a requisição.
func (s *Singleflight) Run(ctx context.Context, key string, ttl time.Duration, fn domain.WorkFunc) ([]byte, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("%w (key %q, ttl %v)", domain.ErrInvalidTTL, key, ttl)
	}
	start := time.Now()
	defer observe(s.Metrics, "singleflight.run", start)

	if s.Store == nil {
		count(s.Metrics, "singleflight.run", "local")
		return fn(ctx)
	}

	resultKey := s.Keys.LockResult(key)
	if v, ok, err := s.Store.Get(ctx, resultKey); err == nil && ok {
		count(s.Metrics, "singleflight.run", "cached")
		return []byte(v), nil
	}

	won, err := s.Store.SetNX(ctx, s.Keys.Lock(key), "1", ttl)
	if err != nil {
		storeFailed(s.Logger, "singleflight.acquire", err, zap.String("key", key))
		count(s.Metrics, "singleflight.run", "local")
		return fn(ctx)
	}
	if won {
		return s.lead(ctx, key, ttl, fn)
	}
	return s.follow(ctx, key, ttl)
}

func (s *Singleflight) lead(ctx context.Context, key string, ttl time.Duration, fn domain.WorkFunc) ([]byte, error) {
	resultKey := s.Keys.LockResult(key)

	// o vencedor anterior pode ter terminado entre a leitura do resultado e o SETNX
	if v, ok, err := s.Store.Get(ctx, resultKey); err == nil && ok {
		s.release(ctx, key, 0)
		count(s.Metrics, "singleflight.run", "cached")
		return []byte(v), nil
	}

	out, err := fn(ctx)
	if err != nil {
		// sem resultado: libera já para o próximo chamador tentar
		s.release(ctx, key, 0)
		count(s.Metrics, "singleflight.run", "failed")
		return nil, err
	}

	if err := s.Store.Set(ctx, resultKey, string(out), ttl); err != nil {
		storeFailed(s.Logger, "singleflight.result", err, zap.String("key", key))
	}
	s.release(ctx, key, s.ReleaseDelay)
	count(s.Metrics, "singleflight.run", "leader")
	return out, nil
}

func (s *Singleflight) follow(ctx context.Context, key string, ttl time.Duration) ([]byte, error) {
	resultKey := s.Keys.LockResult(key)

	interval := s.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	tick := time.NewTicker(interval)
	defer tick.Stop()
	deadline := time.NewTimer(ttl)
	defer deadline.Stop()

	for {
		select {
		case <-ctx.Done():
			count(s.Metrics, "singleflight.run", "cancelled")
			return nil, ctx.Err()
		case <-deadline.C:
			count(s.Metrics, "singleflight.run", "timeout")
			return nil, fmt.Errorf("%w: key %q after %s", domain.ErrSingleflightTimeout, key, ttl)
		case <-tick.C:
			v, ok, err := s.Store.Get(ctx, resultKey)
			if err != nil {
				storeFailed(s.Logger, "singleflight.poll", err, zap.String("key", key))
				continue
			}
			if ok {
				count(s.Metrics, "singleflight.run", "follower")
				return []byte(v), nil
			}
		}
	}
}

// release remove o lock, na hora ou depois de delay. Roda fora do ctx do chamador:
// um cancelamento não pode deixar o lock preso até o TTL.
func (s *Singleflight) release(ctx context.Context, key string, delay time.Duration) {
	lockKey := s.Keys.Lock(key)
	del := func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		reportCleanup(s.Logger, domain.BestEffort{Op: "singleflight.release", Err: s.Store.Del(rctx, lockKey)})
	}
	if delay <= 0 {
		del()
		return
	}
	time.AfterFunc(delay, del)
}

// RunExclusive é o Run tipado: o resultado trafega como JSON no store.
func RunExclusive[T any](ctx context.Context, s *Singleflight, key string, ttl time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	raw, err := s.Run(ctx, key, ttl, func(ctx context.Context) ([]byte, error) {
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return zero, err
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, fmt.Errorf("singleflight: decode result for %q: %w", key, err)
	}
	return out, nil
}

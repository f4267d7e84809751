package application

import (
	"context"
	"math"
	"time"

	"fleet-coord/middleware/coord/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Semaphore limita quantas vagas estão ocupadas ao mesmo tempo na frota.
//
// Holders vivem num zset (score = ms da aquisição) e expiram por score: quem não der
// Refresh dentro do TTL é coletado na próxima aquisição.
//
// A aquisição é uma reserva otimista com rollback (ZADD, reconta, ZREM se passou do
// limite), não uma transação. Sob disputa o conjunto pode passar do limite por um
// instante, no máximo pelo número de aquisições concorrentes; cada vaga concedida foi
// contada dentro do limite no momento da reconta.
type Semaphore struct {
	Store domain.Store
	Keys  domain.Keys
	Now   func() time.Time

	Logger  *zap.Logger
	Metrics domain.MetricsRecorder
}

// Acquire tenta ocupar uma vaga em `name`. ok=false quando não há vaga ou o store falhou
// (falha fechada).
func (s *Semaphore) Acquire(ctx context.Context, name string, limit int, ttl time.Duration) (domain.Token, bool) {
	start := time.Now()
	defer observe(s.Metrics, "semaphore.acquire", start)

	if s.Store == nil || limit <= 0 {
		count(s.Metrics, "semaphore.acquire", "denied")
		return domain.Token{}, false
	}

	key := s.Keys.Semaphore(name)
	now := clock(s.Now)
	fail := func(op string, err error) (domain.Token, bool) {
		storeFailed(s.Logger, op, err, zap.String("semaphore", name))
		count(s.Metrics, "semaphore.acquire", "unavailable")
		return domain.Token{}, false
	}

	// 1) coleta holders vencidos
	if err := s.Store.ZRemRangeByScore(ctx, key, math.Inf(-1), millis(now.Add(-ttl))); err != nil {
		return fail("semaphore.gc", err)
	}

	// 2) cheio: nega sem mexer no estado
	n, err := s.Store.ZCard(ctx, key)
	if err != nil {
		return fail("semaphore.count", err)
	}
	if n >= int64(limit) {
		count(s.Metrics, "semaphore.acquire", "denied")
		return domain.Token{}, false
	}

	// 3) reserva
	tok := domain.Token{Name: name, Member: uuid.NewString(), TTL: ttl}
	if err := s.Store.ZAdd(ctx, key, millis(now), tok.Member); err != nil {
		return fail("semaphore.add", err)
	}

	// 4) reconta; se outra instância entrou junto, desfaz a própria reserva
	n, err = s.Store.ZCard(ctx, key)
	if err != nil || n > int64(limit) {
		reportCleanup(s.Logger, s.remove(ctx, tok, "semaphore.rollback"))
		if err != nil {
			return fail("semaphore.recount", err)
		}
		count(s.Metrics, "semaphore.acquire", "raced")
		return domain.Token{}, false
	}

	// 5) o conjunto some sozinho se todos os holders sumirem
	if err := s.Store.Expire(ctx, key, ttl); err != nil {
		storeFailed(s.Logger, "semaphore.expire", err, zap.String("semaphore", name))
	}
	count(s.Metrics, "semaphore.acquire", "acquired")
	return tok, true
}

// Refresh renova a vaga de um job longo. false se ela já expirou ou foi coletada.
func (s *Semaphore) Refresh(ctx context.Context, tok domain.Token) bool {
	if s.Store == nil || tok.IsZero() {
		return false
	}
	key := s.Keys.Semaphore(tok.Name)

	_, ok, err := s.Store.ZScore(ctx, key, tok.Member)
	if err != nil {
		storeFailed(s.Logger, "semaphore.refresh", err, zap.String("semaphore", tok.Name))
		return false
	}
	if !ok {
		count(s.Metrics, "semaphore.refresh", "lost")
		return false
	}
	if err := s.Store.ZAdd(ctx, key, millis(clock(s.Now)), tok.Member); err != nil {
		storeFailed(s.Logger, "semaphore.refresh", err, zap.String("semaphore", tok.Name))
		return false
	}
	if err := s.Store.Expire(ctx, key, tok.TTL); err != nil {
		storeFailed(s.Logger, "semaphore.expire", err, zap.String("semaphore", tok.Name))
	}
	count(s.Metrics, "semaphore.refresh", "ok")
	return true
}

// Release devolve a vaga. Idempotente; falhas são logadas e devolvidas só para observação.
func (s *Semaphore) Release(ctx context.Context, tok domain.Token) domain.BestEffort {
	if s.Store == nil || tok.IsZero() {
		return domain.BestEffort{Op: "semaphore.release"}
	}
	count(s.Metrics, "semaphore.release", "ok")
	return reportCleanup(s.Logger, s.remove(ctx, tok, "semaphore.release"))
}

// Holders conta as vagas ocupadas (inclui holders vencidos ainda não coletados).
func (s *Semaphore) Holders(ctx context.Context, name string) (int64, error) {
	if s.Store == nil {
		return 0, domain.ErrStoreUnavailable
	}
	return s.Store.ZCard(ctx, s.Keys.Semaphore(name))
}

func (s *Semaphore) remove(ctx context.Context, tok domain.Token, op string) domain.BestEffort {
	return domain.BestEffort{Op: op, Err: s.Store.ZRem(ctx, s.Keys.Semaphore(tok.Name), tok.Member)}
}

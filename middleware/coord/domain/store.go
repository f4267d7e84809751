package domain

import (
	"context"
	"time"
)

// Store é o cliente tipado do KV compartilhado pela frota.
//
// Cada método é um round-trip de rede (exceto IncrWithExpire, que é pipelinado).
// Valores ausentes são reportados com ok=false, nunca com erro sentinela do driver.
// SetNX, Incr e SAdd precisam ser atômicos: toda a correção das primitivas depende disso.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error

	Incr(ctx context.Context, key string) (int64, error)
	// IncrWithExpire incrementa e (re)define a expiração no mesmo round-trip.
	IncrWithExpire(ctx context.Context, key string, ttl time.Duration) (int64, error)

	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZCard(ctx context.Context, key string) (int64, error)
	ZScore(ctx context.Context, key, member string) (score float64, ok bool, err error)
	ZRem(ctx context.Context, key, member string) error
	// ZRemRangeByScore remove membros com score em [min, max].
	ZRemRangeByScore(ctx context.Context, key string, min, max float64) error
	// ZRemRangeByRank remove membros por posição (0 = menor score), inclusive.
	ZRemRangeByRank(ctx context.Context, key string, start, stop int64) error

	// SAdd retorna true somente se o membro foi adicionado agora.
	SAdd(ctx context.Context, key, member string) (bool, error)
	SRem(ctx context.Context, key, member string) error

	LPush(ctx context.Context, key, value string) error
	LPop(ctx context.Context, key string) (string, bool, error)
	RPop(ctx context.Context, key string) (string, bool, error)
	LLen(ctx context.Context, key string) (int64, error)

	// Keys enumera chaves pelo prefixo. Uso administrativo apenas (reset).
	Keys(ctx context.Context, prefix string) ([]string, error)
}

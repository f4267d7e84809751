package infra

import (
	"context"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"fleet-coord/middleware/coord/domain"

	"github.com/redis/go-redis/v9"
)

// RedisStore implementa domain.Store sobre go-redis.
//
// Aceita redis.UniversalClient para funcionar com cliente simples, sentinel ou cluster.
// O cliente é criado uma vez no main e injetado aqui; RedisStore não o fecha.
type RedisStore struct {
	rdb redis.UniversalClient

	scanCount int64
}

type RedisStoreOption func(*RedisStore)

// WithScanCount ajusta o COUNT usado pelo SCAN em Keys.
func WithScanCount(n int64) RedisStoreOption {
	return func(s *RedisStore) {
		if n > 0 {
			s.scanCount = n
		}
	}
}

func NewRedisStore(rdb redis.UniversalClient, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{rdb: rdb, scanCount: 200}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ domain.Store = (*RedisStore)(nil)

func (s *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.Get(ctx, key).Result()
	return optional(v, err)
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return s.rdb.SetNX(ctx, key, value, ttl).Result()
}

func (s *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.rdb.Del(ctx, keys...).Err()
}

func (s *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.rdb.Expire(ctx, key, ttl).Err()
}

func (s *RedisStore) Incr(ctx context.Context, key string) (int64, error) {
	return s.rdb.Incr(ctx, key).Result()
}

func (s *RedisStore) IncrWithExpire(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := s.rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (s *RedisStore) ZAdd(ctx context.Context, key string, score float64, member string) error {
	return s.rdb.ZAdd(ctx, key, redis.Z{Score: score, Member: member}).Err()
}

func (s *RedisStore) ZCard(ctx context.Context, key string) (int64, error) {
	return s.rdb.ZCard(ctx, key).Result()
}

func (s *RedisStore) ZScore(ctx context.Context, key, member string) (float64, bool, error) {
	v, err := s.rdb.ZScore(ctx, key, member).Result()
	return optional(v, err)
}

func (s *RedisStore) ZRem(ctx context.Context, key, member string) error {
	return s.rdb.ZRem(ctx, key, member).Err()
}

func (s *RedisStore) ZRemRangeByScore(ctx context.Context, key string, min, max float64) error {
	return s.rdb.ZRemRangeByScore(ctx, key, formatScore(min), formatScore(max)).Err()
}

func (s *RedisStore) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) error {
	return s.rdb.ZRemRangeByRank(ctx, key, start, stop).Err()
}

func (s *RedisStore) SAdd(ctx context.Context, key, member string) (bool, error) {
	n, err := s.rdb.SAdd(ctx, key, member).Result()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *RedisStore) SRem(ctx context.Context, key, member string) error {
	return s.rdb.SRem(ctx, key, member).Err()
}

func (s *RedisStore) LPush(ctx context.Context, key, value string) error {
	return s.rdb.LPush(ctx, key, value).Err()
}

func (s *RedisStore) LPop(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.LPop(ctx, key).Result()
	return optional(v, err)
}

func (s *RedisStore) RPop(ctx context.Context, key string) (string, bool, error) {
	v, err := s.rdb.RPop(ctx, key).Result()
	return optional(v, err)
}

func (s *RedisStore) LLen(ctx context.Context, key string) (int64, error) {
	return s.rdb.LLen(ctx, key).Result()
}

// Keys usa SCAN (nunca KEYS) para não bloquear o servidor.
func (s *RedisStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	iter := s.rdb.Scan(ctx, 0, escapeGlob(prefix)+"*", s.scanCount).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Ping é usado no startup, antes de injetar o store nos componentes.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// optional converte redis.Nil em ok=false.
func optional[T any](v T, err error) (T, bool, error) {
	var zero T
	if errors.Is(err, redis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

func formatScore(v float64) string {
	switch {
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsInf(v, 1):
		return "+inf"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

func escapeGlob(s string) string { return globEscaper.Replace(s) }

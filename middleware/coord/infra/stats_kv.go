package infra

import (
	"context"
	"strings"
	"time"

	"fleet-coord/middleware/coord/domain"

	"go.uber.org/multierr"
)

// KVStatsStore grava as decisões do rate limit no mesmo store compartilhado,
// em contadores INCR (nunca hashes: o contrato domain.Store é mínimo).
//
//	{prefix}:stats:total:{allowed|denied}
//	{prefix}:stats:minute:{yyyymmddhhmm}:{allowed|denied}   (expira em ttl)
//	{prefix}:stats:route:{METHOD /path}:{allowed|denied}
//	{prefix}:stats:id:{identity}:{allowed|denied}           (opcional, expira em ttl)
type KVStatsStore struct {
	store domain.Store
	keys  domain.Keys

	// ttl aplica apenas em chaves de série temporal / por identidade.
	// total e route são cumulativos e não expiram.
	ttl time.Duration

	bucket string // "minute" (padrão) ou "none"

	trackIdentities bool
}

type KVStatsOption func(*KVStatsStore)

func WithStatsKeys(keys domain.Keys) KVStatsOption {
	return func(s *KVStatsStore) { s.keys = keys }
}

func WithStatsTTL(d time.Duration) KVStatsOption {
	return func(s *KVStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) KVStatsOption {
	return func(s *KVStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackIdentities(track bool) KVStatsOption {
	return func(s *KVStatsStore) { s.trackIdentities = track }
}

func NewKVStatsStore(store domain.Store, opts ...KVStatsOption) *KVStatsStore {
	s := &KVStatsStore{
		store:  store,
		keys:   domain.NewKeys(""),
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *KVStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.store == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	var err error
	_, e := s.store.Incr(ctx, s.keys.Stats("total", field))
	err = multierr.Append(err, e)

	if s.bucket == "minute" {
		err = multierr.Append(err, s.incrTTL(ctx, s.keys.Stats("minute", at.UTC().Format("200601021504"), field)))
	}

	if route := routeLabel(ev.Method, ev.Route); route != "" {
		_, e := s.store.Incr(ctx, s.keys.Stats("route", route, field))
		err = multierr.Append(err, e)
	}

	if s.trackIdentities {
		if id := strings.TrimSpace(string(ev.Identity)); id != "" {
			err = multierr.Append(err, s.incrTTL(ctx, s.keys.Stats("id", id, field)))
		}
	}
	return err
}

// Get lê um contador cumulativo (ex: Get(ctx, "total", "allowed")).
func (s *KVStatsStore) Get(ctx context.Context, parts ...string) (int64, error) {
	v, ok, err := s.store.Get(ctx, s.keys.Stats(parts...))
	if err != nil || !ok {
		return 0, err
	}
	return parseCount(v), nil
}

func (s *KVStatsStore) incrTTL(ctx context.Context, key string) error {
	if s.ttl > 0 {
		_, err := s.store.IncrWithExpire(ctx, key, s.ttl)
		return err
	}
	_, err := s.store.Incr(ctx, key)
	return err
}

func routeLabel(method, route string) string {
	return strings.TrimSpace(strings.TrimSpace(method) + " " + strings.TrimSpace(route))
}

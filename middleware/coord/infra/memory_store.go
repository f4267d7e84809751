package infra

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"fleet-coord/middleware/coord/domain"
)

// ErrWrongType espelha o WRONGTYPE do Redis.
var ErrWrongType = errors.New("WRONGTYPE operation against a key holding the wrong kind of value")

type memKind int

const (
	kindString memKind = iota
	kindZSet
	kindSet
	kindList
)

type memEntry struct {
	kind      memKind
	str       string
	zset      map[string]float64
	set       map[string]struct{}
	list      []string
	expiresAt time.Time
}

// MemoryStore é uma implementação de domain.Store em memória.
// Útil para testes e para rodar uma instância única sem Redis.
//
// Cada operação é atômica (mutex único), o que reproduz a garantia que as primitivas
// esperam do Redis. A expiração é preguiçosa: a chave some na próxima leitura.
// Não compartilha estado entre processos.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memEntry
	now     func() time.Time
}

type MemoryStoreOption func(*MemoryStore)

// WithClock troca o relógio usado para TTL (testes).
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) { s.now = now }
}

func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*memEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var _ domain.Store = (*MemoryStore)(nil)

// lookup devolve a entrada viva; precisa do lock.
func (s *MemoryStore) lookup(key string) *memEntry {
	e, ok := s.entries[key]
	if !ok {
		return nil
	}
	if !e.expiresAt.IsZero() && !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return nil
	}
	return e
}

func (s *MemoryStore) typed(key string, kind memKind) (*memEntry, error) {
	e := s.lookup(key)
	if e == nil {
		return nil, nil
	}
	if e.kind != kind {
		return nil, ErrWrongType
	}
	return e, nil
}

func (s *MemoryStore) create(key string, kind memKind) (*memEntry, error) {
	e, err := s.typed(key, kind)
	if err != nil || e != nil {
		return e, err
	}
	e = &memEntry{kind: kind}
	switch kind {
	case kindZSet:
		e.zset = make(map[string]float64)
	case kindSet:
		e.set = make(map[string]struct{})
	}
	s.entries[key] = e
	return e, nil
}

func (s *MemoryStore) deadline(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(ttl)
}

// dropIfEmpty remove coleções vazias, como o Redis faz.
func (s *MemoryStore) dropIfEmpty(key string, e *memEntry) {
	switch e.kind {
	case kindZSet:
		if len(e.zset) == 0 {
			delete(s.entries, key)
		}
	case kindSet:
		if len(e.set) == 0 {
			delete(s.entries, key)
		}
	case kindList:
		if len(e.list) == 0 {
			delete(s.entries, key)
		}
	}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.typed(key, kindString)
	if err != nil || e == nil {
		return "", false, err
	}
	return e.str, true, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = &memEntry{kind: kindString, str: value, expiresAt: s.deadline(ttl)}
	return nil
}

func (s *MemoryStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lookup(key) != nil {
		return false, nil
	}
	s.entries[key] = &memEntry{kind: kindString, str: value, expiresAt: s.deadline(ttl)}
	return true, nil
}

func (s *MemoryStore) Del(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.entries, k)
	}
	return nil
}

func (s *MemoryStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expireLocked(key, ttl)
	return nil
}

func (s *MemoryStore) expireLocked(key string, ttl time.Duration) {
	e := s.lookup(key)
	if e == nil {
		return
	}
	if ttl <= 0 {
		delete(s.entries, key)
		return
	}
	e.expiresAt = s.now().Add(ttl)
}

func (s *MemoryStore) Incr(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.incrLocked(key)
}

func (s *MemoryStore) incrLocked(key string) (int64, error) {
	e, err := s.create(key, kindString)
	if err != nil {
		return 0, err
	}
	var n int64
	if e.str != "" {
		n, err = strconv.ParseInt(e.str, 10, 64)
		if err != nil {
			return 0, errors.New("value is not an integer or out of range")
		}
	}
	n++
	e.str = strconv.FormatInt(n, 10)
	return n, nil
}

func (s *MemoryStore) IncrWithExpire(_ context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.incrLocked(key)
	if err != nil {
		return 0, err
	}
	s.expireLocked(key, ttl)
	return n, nil
}

func (s *MemoryStore) ZAdd(_ context.Context, key string, score float64, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.create(key, kindZSet)
	if err != nil {
		return err
	}
	e.zset[member] = score
	return nil
}

func (s *MemoryStore) ZCard(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.typed(key, kindZSet)
	if err != nil || e == nil {
		return 0, err
	}
	return int64(len(e.zset)), nil
}

func (s *MemoryStore) ZScore(_ context.Context, key, member string) (float64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.typed(key, kindZSet)
	if err != nil || e == nil {
		return 0, false, err
	}
	v, ok := e.zset[member]
	return v, ok, nil
}

func (s *MemoryStore) ZRem(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.typed(key, kindZSet)
	if err != nil || e == nil {
		return err
	}
	delete(e.zset, member)
	s.dropIfEmpty(key, e)
	return nil
}

func (s *MemoryStore) ZRemRangeByScore(_ context.Context, key string, min, max float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.typed(key, kindZSet)
	if err != nil || e == nil {
		return err
	}
	for m, sc := range e.zset {
		if sc >= min && sc <= max {
			delete(e.zset, m)
		}
	}
	s.dropIfEmpty(key, e)
	return nil
}

func (s *MemoryStore) ZRemRangeByRank(_ context.Context, key string, start, stop int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.typed(key, kindZSet)
	if err != nil || e == nil {
		return err
	}
	ranked := make([]string, 0, len(e.zset))
	for m := range e.zset {
		ranked = append(ranked, m)
	}
	sort.Slice(ranked, func(i, j int) bool {
		si, sj := e.zset[ranked[i]], e.zset[ranked[j]]
		if si != sj {
			return si < sj
		}
		return ranked[i] < ranked[j]
	})
	n := int64(len(ranked))
	if start < 0 {
		start = max(n+start, 0)
	}
	if stop < 0 {
		stop = n + stop
	}
	stop = min(stop, n-1)
	for i := start; i <= stop; i++ {
		delete(e.zset, ranked[i])
	}
	s.dropIfEmpty(key, e)
	return nil
}

func (s *MemoryStore) SAdd(_ context.Context, key, member string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.create(key, kindSet)
	if err != nil {
		return false, err
	}
	if _, ok := e.set[member]; ok {
		return false, nil
	}
	e.set[member] = struct{}{}
	return true, nil
}

func (s *MemoryStore) SRem(_ context.Context, key, member string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.typed(key, kindSet)
	if err != nil || e == nil {
		return err
	}
	delete(e.set, member)
	s.dropIfEmpty(key, e)
	return nil
}

func (s *MemoryStore) LPush(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.create(key, kindList)
	if err != nil {
		return err
	}
	e.list = append([]string{value}, e.list...)
	return nil
}

func (s *MemoryStore) LPop(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.typed(key, kindList)
	if err != nil || e == nil {
		return "", false, err
	}
	v := e.list[0]
	e.list = e.list[1:]
	s.dropIfEmpty(key, e)
	return v, true, nil
}

func (s *MemoryStore) RPop(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.typed(key, kindList)
	if err != nil || e == nil {
		return "", false, err
	}
	last := len(e.list) - 1
	v := e.list[last]
	e.list = e.list[:last]
	s.dropIfEmpty(key, e)
	return v, true, nil
}

func (s *MemoryStore) LLen(_ context.Context, key string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.typed(key, kindList)
	if err != nil || e == nil {
		return 0, err
	}
	return int64(len(e.list)), nil
}

func (s *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for k := range s.entries {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		if s.lookup(k) != nil {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// TTL devolve o tempo restante da chave (-1 sem expiração, -2 inexistente), como o Redis.
func (s *MemoryStore) TTL(key string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.lookup(key)
	switch {
	case e == nil:
		return -2
	case e.expiresAt.IsZero():
		return -1
	}
	return e.expiresAt.Sub(s.now())
}

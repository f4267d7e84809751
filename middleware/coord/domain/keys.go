package domain

import (
	"strconv"
	"strings"
)

// Layout das chaves no store. Todo acesso passa por aqui; nenhuma primitiva monta chave à mão.
//
//	{prefix}:lock:{key}                 marcador do singleflight
//	{prefix}:lock-result:{key}          resultado serializado
//	{prefix}:sem:{name}                 zset de holders (score = ms da aquisição)
//	{prefix}:rl:{identity}:{route}:{n}  contador da janela n
//	{prefix}:buf:{group}:seen           set de hashes já enfileirados
//	{prefix}:buf:{group}:queue          lista de hashes (ordem de serviço)
//	{prefix}:buf:{group}:doc:{hash}     documento JSON
//	{prefix}:recent:{consumer}          zset de hashes servidos (score = ms)
//	{prefix}:stats:...                  contadores de decisão do rate limit
const DefaultKeyPrefix = "coord"

type Keys struct {
	prefix string
}

func NewKeys(prefix string) Keys {
	prefix = strings.Trim(strings.TrimSpace(prefix), ":")
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return Keys{prefix: prefix}
}

func (k Keys) Prefix() string {
	if k.prefix == "" {
		return DefaultKeyPrefix
	}
	return k.prefix
}

func (k Keys) join(parts ...string) string {
	return k.Prefix() + ":" + strings.Join(parts, ":")
}

func (k Keys) Lock(key string) string       { return k.join("lock", key) }
func (k Keys) LockResult(key string) string { return k.join("lock-result", key) }
func (k Keys) Semaphore(name string) string { return k.join("sem", name) }

func (k Keys) RateBucket(identity, route string, bucket int64) string {
	return k.join("rl", identity, route, strconv.FormatInt(bucket, 10))
}

func (k Keys) QueueSeen(group string) string      { return k.join("buf", group, "seen") }
func (k Keys) QueueList(group string) string      { return k.join("buf", group, "queue") }
func (k Keys) QueueDoc(group, hash string) string { return k.join("buf", group, "doc", hash) }
func (k Keys) Recent(consumer string) string      { return k.join("recent", consumer) }
func (k Keys) Stats(parts ...string) string       { return k.join(append([]string{"stats"}, parts...)...) }

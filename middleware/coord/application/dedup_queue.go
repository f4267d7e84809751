package application

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"fleet-coord/middleware/coord/domain"

	"go.uber.org/zap"
)

const (
	defaultDocTTL        = 7 * 24 * time.Hour
	defaultMaxStaleSkips = 16
)

// DedupQueue é a fila produtor/consumidor endereçada por conteúdo, por grupo.
//
// Três estruturas com políticas de expiração independentes:
//
//   - set `seen`: fonte da verdade de "já enfileirado" (SADD atômico decide o vencedor)
//   - lista `queue`: só hashes, LPUSH na entrada e RPOP na saída (FIFO)
//   - documento por hash: o payload, com TTL próprio; pode sobreviver à saída da lista
type DedupQueue struct {
	Store domain.Store
	Keys  domain.Keys

	// DocTTL é a vida do documento (padrão 7 dias).
	DocTTL time.Duration
	// IndexTTL é a vida do set e da lista, renovada a cada inserção (padrão DocTTL).
	IndexTTL time.Duration
	// MaxStaleSkips limita quantos hashes sem documento Pop descarta numa chamada.
	MaxStaleSkips int

	Now func() time.Time

	Logger  *zap.Logger
	Metrics domain.MetricsRecorder
}

func (q *DedupQueue) docTTL() time.Duration {
	if q.DocTTL > 0 {
		return q.DocTTL
	}
	return defaultDocTTL
}

func (q *DedupQueue) indexTTL() time.Duration {
	if q.IndexTTL > 0 {
		return q.IndexTTL
	}
	return q.docTTL()
}

// Put enfileira o item se o conteúdo normalizado ainda não estiver no grupo.
// Duplicatas e itens inválidos voltam sem efeito colateral.
func (q *DedupQueue) Put(ctx context.Context, item domain.Item) domain.PutOutcome {
	out := q.put(ctx, item)
	count(q.Metrics, "queue.put", out.String())
	return out
}

func (q *DedupQueue) put(ctx context.Context, item domain.Item) domain.PutOutcome {
	group := strings.TrimSpace(item.Group)
	normalized := Normalize(item.Text)
	if group == "" || normalized == "" {
		return domain.PutInvalid
	}
	if q.Store == nil {
		return domain.PutUnavailable
	}

	hash := ContentHash(normalized)
	seenKey := q.Keys.QueueSeen(group)

	added, err := q.Store.SAdd(ctx, seenKey, hash)
	if err != nil {
		storeFailed(q.Logger, "queue.seen", err, zap.String("group", group))
		return domain.PutUnavailable
	}
	if !added {
		return domain.PutDuplicate
	}

	item.Hash = hash
	item.Group = group
	item.Normalized = normalized
	if item.CreatedAt.IsZero() {
		item.CreatedAt = clock(q.Now).UTC()
	}
	doc, err := json.Marshal(item)
	if err != nil {
		q.unsee(ctx, group, hash)
		return domain.PutInvalid
	}

	docKey := q.Keys.QueueDoc(group, hash)
	if err := q.Store.Set(ctx, docKey, string(doc), q.docTTL()); err != nil {
		storeFailed(q.Logger, "queue.doc", err, zap.String("group", group))
		q.unsee(ctx, group, hash)
		return domain.PutUnavailable
	}

	listKey := q.Keys.QueueList(group)
	if err := q.Store.LPush(ctx, listKey, hash); err != nil {
		storeFailed(q.Logger, "queue.push", err, zap.String("group", group))
		q.unsee(ctx, group, hash)
		reportCleanup(q.Logger, domain.BestEffort{Op: "queue.doc.rollback", Err: q.Store.Del(ctx, docKey)})
		return domain.PutUnavailable
	}

	for _, k := range []string{seenKey, listKey} {
		if err := q.Store.Expire(ctx, k, q.indexTTL()); err != nil {
			storeFailed(q.Logger, "queue.expire", err, zap.String("key", k))
		}
	}
	return domain.PutInserted
}

// unsee desfaz o SADD quando a inserção não chegou ao fim; senão o conteúdo ficaria
// marcado como duplicado sem estar na fila.
func (q *DedupQueue) unsee(ctx context.Context, group, hash string) {
	reportCleanup(q.Logger, domain.BestEffort{Op: "queue.seen.rollback", Err: q.Store.SRem(ctx, q.Keys.QueueSeen(group), hash)})
}

func (q *DedupQueue) PutMany(ctx context.Context, items []domain.Item) domain.PutSummary {
	var sum domain.PutSummary
	for _, it := range items {
		sum.Add(q.Put(ctx, it))
	}
	return sum
}

// Pop retira o item mais antigo do grupo. Hashes sem documento são descartados.
func (q *DedupQueue) Pop(ctx context.Context, group string) (domain.Item, bool) {
	if q.Store == nil {
		return domain.Item{}, false
	}
	skips := q.MaxStaleSkips
	if skips <= 0 {
		skips = defaultMaxStaleSkips
	}
	for range skips + 1 {
		hash, ok := q.next(ctx, group)
		if !ok {
			return domain.Item{}, false
		}
		item, found, err := q.load(ctx, group, hash)
		if err != nil {
			q.requeue(ctx, group, hash)
			return domain.Item{}, false
		}
		if found {
			count(q.Metrics, "queue.pop", "ok")
			return item, true
		}
	}
	return domain.Item{}, false
}

// PopNovel retira até `attempts` candidatos procurando um que isRecent rejeite.
//
// Todo candidato recente volta para a frente da lista (LPUSH) na hora, para outros
// consumidores. Esgotadas as tentativas, o documento do último candidato recente é
// devolvido sem retirá-lo de novo: melhor repetir do que não servir nada.
func (q *DedupQueue) PopNovel(ctx context.Context, group string, isRecent domain.RecentFunc, attempts int) (domain.Item, bool) {
	if isRecent == nil {
		return q.Pop(ctx, group)
	}
	if q.Store == nil {
		return domain.Item{}, false
	}
	attempts = max(attempts, 1)

	var last *domain.Item
	for range attempts {
		hash, ok := q.next(ctx, group)
		if !ok {
			break
		}
		item, found, err := q.load(ctx, group, hash)
		if err != nil {
			q.requeue(ctx, group, hash)
			break
		}
		if !found {
			continue
		}
		if !isRecent(ctx, hash) {
			count(q.Metrics, "queue.pop_novel", "novel")
			return item, true
		}
		q.requeue(ctx, group, hash)
		last = &item
	}

	if last != nil {
		count(q.Metrics, "queue.pop_novel", "recent_fallback")
		return *last, true
	}
	count(q.Metrics, "queue.pop_novel", "empty")
	return domain.Item{}, false
}

// Size é o número de hashes na lista do grupo; 0 se o store estiver fora.
func (q *DedupQueue) Size(ctx context.Context, group string) int64 {
	if q.Store == nil {
		return 0
	}
	n, err := q.Store.LLen(ctx, q.Keys.QueueList(group))
	if err != nil {
		storeFailed(q.Logger, "queue.size", err, zap.String("group", group))
		return 0
	}
	return n
}

func (q *DedupQueue) next(ctx context.Context, group string) (string, bool) {
	hash, ok, err := q.Store.RPop(ctx, q.Keys.QueueList(group))
	if err != nil {
		storeFailed(q.Logger, "queue.pop", err, zap.String("group", group))
		return "", false
	}
	return hash, ok
}

// load lê o documento do hash retirado. found=false é entrada velha (descartada);
// erro significa store fora e o hash precisa voltar para a lista.
func (q *DedupQueue) load(ctx context.Context, group, hash string) (domain.Item, bool, error) {
	raw, ok, err := q.Store.Get(ctx, q.Keys.QueueDoc(group, hash))
	if err != nil {
		storeFailed(q.Logger, "queue.load", err, zap.String("group", group))
		return domain.Item{}, false, err
	}
	if !ok {
		logger(q.Logger).Debug("skipping stale queue entry", zap.String("group", group), zap.String("hash", hash))
		count(q.Metrics, "queue.pop", "stale")
		return domain.Item{}, false, nil
	}

	var item domain.Item
	if err := json.Unmarshal([]byte(raw), &item); err != nil {
		logger(q.Logger).Warn("skipping undecodable queue document", zap.String("hash", hash), zap.Error(err))
		return domain.Item{}, false, nil
	}
	return item, true, nil
}

func (q *DedupQueue) requeue(ctx context.Context, group, hash string) {
	reportCleanup(q.Logger, domain.BestEffort{Op: "queue.requeue", Err: q.Store.LPush(ctx, q.Keys.QueueList(group), hash)})
}

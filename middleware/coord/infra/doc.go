// Package infra contém implementações concretas (infraestrutura) para os contratos
// definidos no pacote domain.
//
// Exemplos:
//   - RedisStore: domain.Store sobre go-redis (produção, estado compartilhado pela frota)
//   - MemoryStore: domain.Store em processo (testes, instância única)
//   - TokenBuckets: token bucket local (x/time/rate) para a política FallbackLocal
//   - LocalPool: semáforo por instância
//   - KVStatsStore / MemoryStatsStore: estatísticas de decisão do rate limit
//   - PromRecorder: métricas Prometheus
package infra

// Package coord fornece adapters HTTP (net/http) para as primitivas de coordenação da frota:
// rate limit por janela fixa e limite de concorrência sobre o store compartilhado.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos (Store, Keys, Limit, Item...) sem dependência de net/http
//   - application: primitivas (Singleflight, Semaphore, RateLimiter, DedupQueue, RecencyFilter)
//   - infra: implementações concretas (Redis, memória, token bucket local, Prometheus)
//   - coord (este pacote): middlewares HTTP, extração de identidade, tradução para status/headers
//
// Fluxo no gateway:
//
//  1. Extrai a identidade do cliente (header/XFF/X-Real-IP/RemoteAddr)
//  2. Chama o RateLimiter para obter a decisão
//  3. Se bloqueado, responde 429 (rate limit) ou 503 (concorrência)
//  4. Se permitido, chama o próximo handler (ex: reverse proxy)
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o comportamento,
// como RATE_MAX, RATE_WINDOW, CONCURRENCY_MAX e FLEET_CONCURRENCY_MAX.
package coord

// Package application contém os casos de uso das primitivas de coordenação:
// Singleflight, Semaphore, RateLimiter, DedupQueue, RecencyFilter e ContentPool.
//
// Ele depende apenas do pacote domain e não conhece net/http nem o driver do store.
// Cada operação é uma sequência curta de round-trips ao store; a concorrência acontece
// entre instâncias disputando as mesmas chaves, nunca dentro de um componente.
//
// Política de falha do store (cada componente decide a sua):
//
//   - RateLimiter e Singleflight: falha aberta (libera / executa localmente)
//   - Semaphore: falha fechada (nega a vaga)
//   - DedupQueue: PutUnavailable / fila vazia
//   - RecencyFilter: trata o item como novo
//
// Erros de round-trip são engolidos aqui e logados com amostragem; só o timeout do
// singleflight chega ao chamador como erro.
package application

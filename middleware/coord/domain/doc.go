// Package domain define contratos e tipos de domínio das primitivas de coordenação
// (singleflight, semáforo, rate limit, fila deduplicada e filtro de recência).
//
// Este pacote não depende de net/http, do cliente Redis nem de implementações concretas.
// Store é o único ponto de contato com o KV remoto; nenhum tipo do driver atravessa
// essa fronteira.
package domain

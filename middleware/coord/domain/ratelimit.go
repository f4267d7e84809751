package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import "time"

type Key string

// Limit é a política de janela fixa: no máximo Max requisições por Window.
type Limit struct {
	Max    int64
	Window time.Duration
}

// Limiter representa algo que pode decidir se uma ação é permitida agora.
//
// Usado pelo fallback local (token bucket em processo) quando o store está fora.
type Limiter interface {
	Allow() bool
}

// LimiterStore obtém um limiter local por chave (ex: IP, API key, usuário),
// dimensionado pelo Limit informado.
type LimiterStore interface {
	Get(Key, Limit) Limiter
}

type Decision struct {
	Allowed   bool
	Remaining int64
	Limit     int64
	Window    time.Duration
	// ResetAt é o fim do bucket atual. Zero quando a decisão não consultou o store.
	ResetAt time.Time
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}

// FallbackPolicy decide o que fazer quando o store está indisponível.
type FallbackPolicy int

const (
	// FallbackOpen libera todo o tráfego (padrão: disponibilidade acima de rigor).
	FallbackOpen FallbackPolicy = iota
	// FallbackLocal aplica um token bucket por instância enquanto o store estiver fora.
	FallbackLocal
)

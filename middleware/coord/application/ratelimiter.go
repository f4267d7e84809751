package application

import (
	"context"
	"net/http"
	"time"

	"fleet-coord/middleware/coord/domain"

	"go.uber.org/zap"
)

// RateLimiter aplica janela fixa por identidade e rota, com o contador no store.
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna uma decisão.
// Store nil ou com erro: política Fallback (FallbackOpen por padrão).
type RateLimiter struct {
	Store domain.Store
	Keys  domain.Keys

	Default domain.Limit
	// Routes sobrescreve Default por rota exata.
	Routes map[string]domain.Limit

	Fallback domain.FallbackPolicy
	// Local é o limiter por instância usado por FallbackLocal.
	Local domain.LimiterStore

	Now func() time.Time

	Logger  *zap.Logger
	Metrics domain.MetricsRecorder
}

func (r *RateLimiter) LimitFor(route string) domain.Limit {
	if l, ok := r.Routes[route]; ok {
		return l
	}
	return r.Default
}

// CheckLimit conta a requisição na janela atual e decide.
// OPTIONS e HEAD (pre-flight / sem efeito) passam sem tocar no store.
func (r *RateLimiter) CheckLimit(ctx context.Context, identity, route, method string) domain.Decision {
	limit := r.LimitFor(route)
	open := domain.Decision{Allowed: true, Remaining: limit.Max, Limit: limit.Max, Window: limit.Window}

	if method == http.MethodOptions || method == http.MethodHead {
		count(r.Metrics, "ratelimit.check", "skipped")
		return open
	}
	// janelas são contadas em ms inteiros; abaixo disso o limite fica desligado
	if limit.Max <= 0 || limit.Window < time.Millisecond {
		return open
	}
	if r.Store == nil {
		return r.fallback(identity, route, limit, open)
	}

	start := time.Now()
	defer observe(r.Metrics, "ratelimit.check", start)

	now := clock(r.Now)
	windowMs := limit.Window.Milliseconds()
	bucket := now.UnixMilli() / windowMs

	n, err := r.Store.IncrWithExpire(ctx, r.Keys.RateBucket(identity, route, bucket), limit.Window)
	if err != nil {
		storeFailed(r.Logger, "ratelimit.incr", err, zap.String("route", route))
		return r.fallback(identity, route, limit, open)
	}

	resetAt := time.UnixMilli((bucket + 1) * windowMs)
	dec := domain.Decision{
		Allowed:   n <= limit.Max,
		Remaining: max(0, limit.Max-n),
		Limit:     limit.Max,
		Window:    limit.Window,
		ResetAt:   resetAt,
	}
	if !dec.Allowed {
		dec.RetryAfter = resetAt.Sub(now)
		count(r.Metrics, "ratelimit.check", "denied")
		return dec
	}
	count(r.Metrics, "ratelimit.check", "allowed")
	return dec
}

func (r *RateLimiter) fallback(identity, route string, limit domain.Limit, open domain.Decision) domain.Decision {
	if r.Fallback != domain.FallbackLocal || r.Local == nil {
		count(r.Metrics, "ratelimit.check", "fail_open")
		return open
	}

	lim := r.Local.Get(domain.Key(identity+" "+route), limit)
	if lim == nil || lim.Allow() {
		count(r.Metrics, "ratelimit.check", "local_allowed")
		return open
	}
	count(r.Metrics, "ratelimit.check", "local_denied")
	return domain.Decision{
		Allowed:    false,
		Limit:      open.Limit,
		Window:     open.Window,
		RetryAfter: max(time.Second, limit.Window/time.Duration(limit.Max)),
	}
}

package coord

import (
	"net"
	"net/http"
	"strings"
	"time"

	"fleet-coord/middleware/coord/application"
	"fleet-coord/middleware/coord/domain"

	"go.uber.org/zap"
)

type KeyFunc func(r *http.Request) string

// RouteFunc devolve o rótulo de rota usado na chave do contador.
type RouteFunc func(r *http.Request) string

type Options struct {
	Limiter *application.RateLimiter
	Stats   domain.StatsStore

	KeyFn              KeyFunc
	KeyHeader          string
	TrustXForwardedFor bool
	RouteFn            RouteFunc

	RejectStatus        int
	AddRateLimitHeaders bool

	Logger *zap.Logger
}

// DefaultKeyFunc identifica o cliente: header configurado, primeiro hop do
// X-Forwarded-For (se confiável), X-Real-IP (idem) e por fim o host do RemoteAddr.
func DefaultKeyFunc(keyHeader string, trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if keyHeader != "" {
			if v := strings.TrimSpace(r.Header.Get(keyHeader)); v != "" {
				return v
			}
		}

		if trustXFF {
			// pega o primeiro IP do X-Forwarded-For (cliente original)
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
			if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
				return ip
			}
		}

		// fallback: RemoteAddr
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

func pathRoute(r *http.Request) string { return r.URL.Path }

func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.Limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(opts.KeyHeader, opts.TrustXForwardedFor)
	}
	if opts.RouteFn == nil {
		opts.RouteFn = pathRoute
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := opts.KeyFn(r)
			route := opts.RouteFn(r)

			dec := opts.Limiter.CheckLimit(r.Context(), key, route, r.Method)

			if opts.AddRateLimitHeaders && dec.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", formatInt(dec.Limit))
				w.Header().Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
				if !dec.ResetAt.IsZero() {
					w.Header().Set("X-RateLimit-Reset", formatInt(dec.ResetAt.Unix()))
				}
			}

			if opts.Stats != nil && r.Method != http.MethodOptions && r.Method != http.MethodHead {
				err := opts.Stats.Record(r.Context(), domain.StatsEvent{
					Identity: domain.Key(key),
					Allowed:  dec.Allowed,
					Method:   r.Method,
					Route:    route,
					At:       time.Now(),
				})
				if err != nil {
					log.Debug("rate limit stats not recorded", zap.Error(err))
				}
			}

			if !dec.Allowed {
				w.Header().Set("Retry-After", retryAfterSeconds(dec.RetryAfter))
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

package main

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleet-coord/internal/app"
	"fleet-coord/middleware/coord"
	"fleet-coord/middleware/coord/application"
	"fleet-coord/middleware/coord/domain"
	"fleet-coord/middleware/coord/infra"

	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "gateway: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := app.Bootstrap(ctx, os.Getenv("CONFIG_FILE"))
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	cfg := rt.Config
	if err := cfg.ValidateGateway(); err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	h, err := newHandler(ctx, rt)
	if err != nil {
		return err
	}

	if cfg.MetricsAddr != "" {
		msrv := &http.Server{Addr: cfg.MetricsAddr, Handler: rt.MetricsHandler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := app.Serve(ctx, msrv, 5*time.Second); err != nil {
				rt.Log.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	rt.Log.Info("gateway listening",
		zap.String("addr", cfg.ListenAddr),
		zap.String("upstream", cfg.UpstreamURL),
		zap.String("metrics", cfg.MetricsAddr))
	rt.Log.Info("rate",
		zap.Bool("enabled", cfg.Rate.Enabled),
		zap.Int64("max", cfg.Rate.Max),
		zap.Duration("window", cfg.Rate.Window),
		zap.Int("routes", len(cfg.Rate.Routes)),
		zap.String("fallback", cfg.Rate.Fallback),
		zap.String("keyHeader", cfg.Rate.KeyHeader),
		zap.Bool("trustXFF", cfg.Rate.TrustXFF))
	rt.Log.Info("concurrency",
		zap.Int("max", cfg.Concurrency.Max),
		zap.Int("fleetMax", cfg.Concurrency.FleetMax),
		zap.Duration("acquireTimeout", cfg.Concurrency.Timeout))

	return app.Serve(ctx, srv, 10*time.Second)
}

// newHandler monta proxy -> concorrência -> rate limit (o rate limit roda primeiro).
func newHandler(ctx context.Context, rt *app.Runtime) (http.Handler, error) {
	cfg := rt.Config

	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return nil, fmt.Errorf("invalid UPSTREAM_URL: %w", err)
	}
	proxy := httputil.NewSingleHostReverseProxy(target)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		rt.Log.Warn("proxy error", zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, "bad gateway", http.StatusBadGateway)
	}

	var fleet *application.FleetPool
	if cfg.Concurrency.FleetMax > 0 {
		fleet = &application.FleetPool{
			Sem:        rt.Semaphore(),
			Name:       cfg.Concurrency.FleetName,
			Max:        cfg.Concurrency.FleetMax,
			TTL:        cfg.Concurrency.FleetTTL,
			RetryEvery: 50 * time.Millisecond,
			Logger:     rt.Log.Named("fleetpool"),
		}
	}

	h := http.Handler(proxy)
	h = coord.ConcurrencyMiddleware(coord.ConcurrencyOptions{
		Max:            cfg.Concurrency.Max,
		Fleet:          fleet,
		RejectStatus:   http.StatusServiceUnavailable,
		AcquireTimeout: cfg.Concurrency.Timeout,
	})(h)

	if cfg.Rate.Enabled {
		limiter, local := rt.RateLimiter()
		if local != nil {
			local.StartJanitor(ctx)
		}

		var stats domain.StatsStore
		switch {
		case !cfg.Stats.Enabled:
		case rt.Store != nil:
			stats = infra.NewKVStatsStore(rt.Store,
				infra.WithStatsKeys(rt.Keys),
				infra.WithStatsTTL(cfg.Stats.TTL),
				infra.WithStatsBucket(cfg.Stats.Bucket),
				infra.WithStatsTrackIdentities(cfg.Stats.TrackIdentities),
			)
		default:
			// sem store compartilhado as estatísticas ficam só nesta instância
			stats = infra.NewMemoryStatsStore(infra.WithTrackIdentities(cfg.Stats.TrackIdentities))
		}

		h = coord.Middleware(coord.Options{
			Limiter:             limiter,
			Stats:               stats,
			KeyHeader:           cfg.Rate.KeyHeader,
			TrustXForwardedFor:  cfg.Rate.TrustXFF,
			RejectStatus:        http.StatusTooManyRequests,
			AddRateLimitHeaders: cfg.Rate.AddHeaders,
			Logger:              rt.Log.Named("ratelimit"),
		})(h)
	}
	return h, nil
}

// Package app monta as dependências compartilhadas pelos binários: configuração, logger,
// cliente Redis, store, métricas e as primitivas já configuradas.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"fleet-coord/internal/config"
	"fleet-coord/internal/logging"
	"fleet-coord/middleware/coord/application"
	"fleet-coord/middleware/coord/domain"
	"fleet-coord/middleware/coord/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const pingTimeout = 2 * time.Second

// Runtime é criado uma vez por processo e fechado no shutdown.
type Runtime struct {
	Config   config.Config
	Log      *zap.Logger
	Level    zap.AtomicLevel
	Keys     domain.Keys
	Registry *prometheus.Registry
	Metrics  domain.MetricsRecorder

	// Store é nil quando não há REDIS_ADDR nem STORE_BACKEND=memory.
	Store domain.Store

	rdb redis.UniversalClient
}

// Bootstrap carrega .env, config (YAML opcional + env), logger, métricas e store.
func Bootstrap(ctx context.Context, configPath string) (*Runtime, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return New(ctx, cfg)
}

func New(ctx context.Context, cfg config.Config) (*Runtime, error) {
	log, lvl, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	rec, err := infra.NewPromRecorder(reg, "coord")
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	rt := &Runtime{
		Config:   cfg,
		Log:      log,
		Level:    lvl,
		Keys:     domain.NewKeys(cfg.Redis.KeyPrefix),
		Registry: reg,
		Metrics:  rec,
	}

	if cfg.MemoryStore() {
		log.Info("using in-process store; coordination is limited to this instance")
		rt.Store = infra.NewMemoryStore()
		return rt, nil
	}
	if addr := strings.TrimSpace(cfg.Redis.Addr); addr != "" {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    splitAddrs(addr),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		store := infra.NewRedisStore(rdb)

		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		err := store.Ping(pingCtx)
		cancel()
		if err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping %s: %w", addr, err)
		}
		rt.rdb = rdb
		rt.Store = store
	} else {
		log.Warn("REDIS_ADDR not set; running without shared store")
	}
	return rt, nil
}

// Close fecha o cliente Redis e descarrega o logger.
func (rt *Runtime) Close() error {
	var err error
	if rt.rdb != nil {
		err = multierr.Append(err, rt.rdb.Close())
	}
	// Sync em stderr/stdout falha com EINVAL em alguns terminais
	if serr := rt.Log.Sync(); serr != nil && !isSyncNoise(serr) {
		err = multierr.Append(err, serr)
	}
	return err
}

func (rt *Runtime) Singleflight() *application.Singleflight {
	return &application.Singleflight{
		Store:        rt.Store,
		Keys:         rt.Keys,
		PollInterval: rt.Config.Singleflight.PollInterval,
		ReleaseDelay: rt.Config.Singleflight.ReleaseDelay,
		Logger:       rt.Log.Named("singleflight"),
		Metrics:      rt.Metrics,
	}
}

func (rt *Runtime) Semaphore() *application.Semaphore {
	return &application.Semaphore{
		Store:   rt.Store,
		Keys:    rt.Keys,
		Logger:  rt.Log.Named("semaphore"),
		Metrics: rt.Metrics,
	}
}

// RateLimiter devolve o limiter e, com RATE_FALLBACK=local, o token bucket local cujo
// janitor o chamador precisa iniciar.
func (rt *Runtime) RateLimiter() (*application.RateLimiter, *infra.TokenBuckets) {
	c := rt.Config.Rate
	def := domain.Limit{Max: c.Max, Window: c.Window}
	rl := &application.RateLimiter{
		Store:   rt.Store,
		Keys:    rt.Keys,
		Default: def,
		Logger:  rt.Log.Named("ratelimit"),
		Metrics: rt.Metrics,
	}
	if len(c.Routes) > 0 {
		rl.Routes = make(map[string]domain.Limit, len(c.Routes))
		for route, r := range c.Routes {
			rl.Routes[route] = domain.Limit{Max: r.Max, Window: r.Window}
		}
	}

	var local *infra.TokenBuckets
	if strings.EqualFold(c.Fallback, "local") {
		local = infra.NewTokenBuckets()
		rl.Fallback = domain.FallbackLocal
		rl.Local = local
	}
	return rl, local
}

func (rt *Runtime) Queue() *application.DedupQueue {
	c := rt.Config.Buffer
	return &application.DedupQueue{
		Store:         rt.Store,
		Keys:          rt.Keys,
		DocTTL:        c.DocTTL,
		IndexTTL:      c.IndexTTL,
		MaxStaleSkips: c.MaxStaleSkips,
		Logger:        rt.Log.Named("queue"),
		Metrics:       rt.Metrics,
	}
}

func (rt *Runtime) Recency() *application.RecencyFilter {
	return &application.RecencyFilter{
		Store:   rt.Store,
		Keys:    rt.Keys,
		Logger:  rt.Log.Named("recency"),
		Metrics: rt.Metrics,
	}
}

func (rt *Runtime) ContentPool() *application.ContentPool {
	c := rt.Config.Buffer
	return &application.ContentPool{
		Queue:     rt.Queue(),
		Recency:   rt.Recency(),
		Window:    c.ServedWindow,
		ServedTTL: c.ServedTTL,
		ServedCap: c.ServedCap,
		Attempts:  c.Attempts,
	}
}

// MetricsHandler expõe o registry do processo.
func (rt *Runtime) MetricsHandler() http.Handler {
	return promhttp.HandlerFor(rt.Registry, promhttp.HandlerOpts{Registry: rt.Registry})
}

// Serve roda srv até ctx encerrar e faz shutdown com timeout.
func Serve(ctx context.Context, srv *http.Server, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func splitAddrs(v string) []string {
	var out []string
	for _, a := range strings.Split(v, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

func isSyncNoise(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "invalid argument") || strings.Contains(msg, "inappropriate ioctl")
}

// Package config carrega a configuração dos binários: padrões, depois um YAML opcional,
// depois variáveis de ambiente (que sempre vencem). Um .env opcional alimenta o ambiente.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
	UpstreamURL string `yaml:"upstream_url"`

	// StoreBackend: "redis" (padrão) ou "memory" (instância única, sem REDIS_ADDR).
	StoreBackend string `yaml:"store_backend"`

	Log          LogConfig          `yaml:"log"`
	Redis        RedisConfig        `yaml:"redis"`
	Rate         RateConfig         `yaml:"rate"`
	Concurrency  ConcurrencyConfig  `yaml:"concurrency"`
	Stats        StatsConfig        `yaml:"stats"`
	Singleflight SingleflightConfig `yaml:"singleflight"`
	Buffer       BufferConfig       `yaml:"buffer"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | console
}

type RedisConfig struct {
	// Addr vazio roda sem store compartilhado (cada primitiva aplica sua política de falha).
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type RateConfig struct {
	Enabled    bool                 `yaml:"enabled"`
	Max        int64                `yaml:"max"`
	Window     time.Duration        `yaml:"window"`
	Routes     map[string]RouteRate `yaml:"routes"`
	KeyHeader  string               `yaml:"key_header"`
	TrustXFF   bool                 `yaml:"trust_xff"`
	AddHeaders bool                 `yaml:"add_headers"`
	// Fallback: "open" (padrão) ou "local".
	Fallback string `yaml:"fallback"`
}

type RouteRate struct {
	Max    int64         `yaml:"max"`
	Window time.Duration `yaml:"window"`
}

type ConcurrencyConfig struct {
	Max       int           `yaml:"max"`
	Timeout   time.Duration `yaml:"timeout"`
	FleetMax  int           `yaml:"fleet_max"`
	FleetName string        `yaml:"fleet_name"`
	FleetTTL  time.Duration `yaml:"fleet_ttl"`
}

type StatsConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Bucket          string        `yaml:"bucket"`
	TTL             time.Duration `yaml:"ttl"`
	TrackIdentities bool          `yaml:"track_identities"`
}

type SingleflightConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	ReleaseDelay time.Duration `yaml:"release_delay"`
}

type BufferConfig struct {
	DocTTL        time.Duration `yaml:"doc_ttl"`
	IndexTTL      time.Duration `yaml:"index_ttl"`
	MaxStaleSkips int           `yaml:"max_stale_skips"`
	Attempts      int           `yaml:"attempts"`
	ServedWindow  time.Duration `yaml:"served_window"`
	ServedTTL     time.Duration `yaml:"served_ttl"`
	ServedCap     int64         `yaml:"served_cap"`
}

func Defaults() Config {
	return Config{
		ListenAddr: ":8080",
		Log:        LogConfig{Level: "info", Format: "json"},
		Redis:      RedisConfig{KeyPrefix: "coord"},
		Rate: RateConfig{
			Enabled:  true,
			Max:      100,
			Window:   time.Minute,
			Fallback: "open",
		},
		Concurrency: ConcurrencyConfig{
			Max:       100,
			FleetName: "gateway",
			FleetTTL:  30 * time.Second,
		},
		Stats: StatsConfig{Bucket: "minute", TTL: 24 * time.Hour},
		Singleflight: SingleflightConfig{
			PollInterval: 250 * time.Millisecond,
			ReleaseDelay: 500 * time.Millisecond,
		},
		Buffer: BufferConfig{
			DocTTL:        7 * 24 * time.Hour,
			IndexTTL:      7 * 24 * time.Hour,
			MaxStaleSkips: 16,
			Attempts:      5,
			ServedWindow:  24 * time.Hour,
			ServedTTL:     48 * time.Hour,
			ServedCap:     500,
		},
	}
}

// Load monta a configuração. path vazio pula o YAML; arquivo inexistente é erro.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return Config{}, fmt.Errorf("config file not found: %s", path)
			}
			return Config{}, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv carrega um .env sem sobrescrever variáveis já definidas.
// Arquivo ausente não é erro.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

func applyEnv(cfg *Config) error {
	cfg.ListenAddr = getenvDefault("LISTEN_ADDR", cfg.ListenAddr)
	cfg.MetricsAddr = getenvDefault("METRICS_ADDR", cfg.MetricsAddr)
	cfg.UpstreamURL = getenvDefault("UPSTREAM_URL", cfg.UpstreamURL)

	cfg.Log.Level = getenvDefault("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getenvDefault("LOG_FORMAT", cfg.Log.Format)

	cfg.StoreBackend = getenvDefault("STORE_BACKEND", cfg.StoreBackend)
	cfg.Redis.Addr = getenvDefault("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getenvDefault("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = getenvIntDefault("REDIS_DB", cfg.Redis.DB)
	cfg.Redis.KeyPrefix = getenvDefault("KEY_PREFIX", cfg.Redis.KeyPrefix)

	cfg.Rate.Enabled = getenvBoolDefault("RATE_ENABLED", cfg.Rate.Enabled)
	cfg.Rate.Max = int64(getenvIntDefault("RATE_MAX", int(cfg.Rate.Max)))
	cfg.Rate.Window = getenvDurationDefault("RATE_WINDOW", cfg.Rate.Window)
	cfg.Rate.KeyHeader = getenvDefault("RATE_KEY_HEADER", cfg.Rate.KeyHeader)
	cfg.Rate.TrustXFF = getenvBoolDefault("TRUST_XFF", cfg.Rate.TrustXFF)
	cfg.Rate.AddHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", cfg.Rate.AddHeaders)
	cfg.Rate.Fallback = getenvDefault("RATE_FALLBACK", cfg.Rate.Fallback)
	if v := os.Getenv("RATE_ROUTES"); v != "" {
		routes, err := ParseRouteRates(v)
		if err != nil {
			return fmt.Errorf("RATE_ROUTES: %w", err)
		}
		cfg.Rate.Routes = routes
	}

	cfg.Concurrency.Max = getenvIntDefault("CONCURRENCY_MAX", cfg.Concurrency.Max)
	cfg.Concurrency.Timeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", cfg.Concurrency.Timeout)
	cfg.Concurrency.FleetMax = getenvIntDefault("FLEET_CONCURRENCY_MAX", cfg.Concurrency.FleetMax)
	cfg.Concurrency.FleetName = getenvDefault("FLEET_CONCURRENCY_NAME", cfg.Concurrency.FleetName)
	cfg.Concurrency.FleetTTL = getenvDurationDefault("FLEET_CONCURRENCY_TTL", cfg.Concurrency.FleetTTL)

	cfg.Stats.Enabled = getenvBoolDefault("RATE_STATS_ENABLED", cfg.Stats.Enabled)
	cfg.Stats.Bucket = getenvDefault("RATE_STATS_BUCKET", cfg.Stats.Bucket)
	cfg.Stats.TTL = getenvDurationDefault("RATE_STATS_TTL", cfg.Stats.TTL)
	cfg.Stats.TrackIdentities = getenvBoolDefault("RATE_STATS_TRACK_IDENTITIES", cfg.Stats.TrackIdentities)

	cfg.Singleflight.PollInterval = getenvDurationDefault("SINGLEFLIGHT_POLL_INTERVAL", cfg.Singleflight.PollInterval)
	cfg.Singleflight.ReleaseDelay = getenvDurationDefault("SINGLEFLIGHT_RELEASE_DELAY", cfg.Singleflight.ReleaseDelay)

	cfg.Buffer.DocTTL = getenvDurationDefault("BUFFER_DOC_TTL", cfg.Buffer.DocTTL)
	cfg.Buffer.IndexTTL = getenvDurationDefault("BUFFER_INDEX_TTL", cfg.Buffer.IndexTTL)
	cfg.Buffer.MaxStaleSkips = getenvIntDefault("BUFFER_MAX_STALE_SKIPS", cfg.Buffer.MaxStaleSkips)
	cfg.Buffer.Attempts = getenvIntDefault("BUFFER_ATTEMPTS", cfg.Buffer.Attempts)
	cfg.Buffer.ServedWindow = getenvDurationDefault("BUFFER_SERVED_WINDOW", cfg.Buffer.ServedWindow)
	cfg.Buffer.ServedTTL = getenvDurationDefault("BUFFER_SERVED_TTL", cfg.Buffer.ServedTTL)
	cfg.Buffer.ServedCap = int64(getenvIntDefault("BUFFER_SERVED_CAP", int(cfg.Buffer.ServedCap)))
	return nil
}

// ValidateGateway confere o que o gateway precisa para subir.
func (c Config) ValidateGateway() error {
	if strings.TrimSpace(c.UpstreamURL) == "" {
		return errors.New("UPSTREAM_URL is required")
	}
	if u, err := url.Parse(c.UpstreamURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("UPSTREAM_URL is invalid: %q", c.UpstreamURL)
	}
	if c.Rate.Enabled {
		if c.Rate.Max <= 0 {
			return errors.New("RATE_MAX must be > 0")
		}
		if c.Rate.Window < time.Millisecond {
			return errors.New("RATE_WINDOW must be >= 1ms")
		}
	}
	if c.Concurrency.Max < 0 {
		return errors.New("CONCURRENCY_MAX must be >= 0")
	}
	if c.Concurrency.FleetMax < 0 {
		return errors.New("FLEET_CONCURRENCY_MAX must be >= 0")
	}
	if c.Concurrency.FleetMax > 0 && c.Concurrency.FleetTTL <= 0 {
		return errors.New("FLEET_CONCURRENCY_TTL must be > 0 when FLEET_CONCURRENCY_MAX is set")
	}
	return c.validateCommon()
}

// ValidateStore confere o que os binários que dependem do store precisam.
func (c Config) ValidateStore() error {
	if strings.TrimSpace(c.Redis.Addr) == "" {
		return errors.New("REDIS_ADDR is required")
	}
	return c.validateCommon()
}

// MemoryStore diz se o processo deve usar o store em memória.
func (c Config) MemoryStore() bool {
	return strings.EqualFold(strings.TrimSpace(c.StoreBackend), "memory")
}

func (c Config) validateCommon() error {
	switch strings.ToLower(strings.TrimSpace(c.StoreBackend)) {
	case "", "redis":
	case "memory":
		if strings.TrimSpace(c.Redis.Addr) != "" {
			return errors.New("STORE_BACKEND=memory cannot be combined with REDIS_ADDR")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be redis or memory, got %q", c.StoreBackend)
	}
	switch strings.ToLower(c.Rate.Fallback) {
	case "", "open", "local":
	default:
		return fmt.Errorf("RATE_FALLBACK must be open or local, got %q", c.Rate.Fallback)
	}
	for route, r := range c.Rate.Routes {
		if r.Max <= 0 || r.Window < time.Millisecond {
			return fmt.Errorf("rate route %q needs max > 0 and window >= 1ms", route)
		}
	}
	return nil
}

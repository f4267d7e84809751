package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(Defaults(), cfg); diff != "" {
		t.Fatalf("expected defaults (-want +got):\n%s", diff)
	}
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	path := writeFile(t, "coord.yaml", `
upstream_url: http://backend:9000
redis:
  addr: redis:6379
  key_prefix: fleet
rate:
  max: 50
  window: 30s
  routes:
    /login:
      max: 5
      window: 1m
concurrency:
  fleet_max: 20
`)
	t.Setenv("RATE_MAX", "70")
	t.Setenv("KEY_PREFIX", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.UpstreamURL != "http://backend:9000" {
		t.Fatalf("expected upstream from yaml, got %q", cfg.UpstreamURL)
	}
	if cfg.Rate.Max != 70 {
		t.Fatalf("expected env to override yaml, got %d", cfg.Rate.Max)
	}
	if cfg.Rate.Window != 30*time.Second {
		t.Fatalf("expected window from yaml, got %v", cfg.Rate.Window)
	}
	if cfg.Redis.KeyPrefix != "fleet" {
		t.Fatalf("expected empty env not to override, got %q", cfg.Redis.KeyPrefix)
	}
	if diff := cmp.Diff(map[string]RouteRate{"/login": {Max: 5, Window: time.Minute}}, cfg.Rate.Routes); diff != "" {
		t.Fatalf("unexpected routes (-want +got):\n%s", diff)
	}
	if cfg.Concurrency.FleetMax != 20 || cfg.Concurrency.FleetTTL != 30*time.Second {
		t.Fatalf("expected yaml merged over defaults, got %+v", cfg.Concurrency)
	}
	if err := cfg.ValidateGateway(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func TestLoad_BadRouteEnv(t *testing.T) {
	t.Setenv("RATE_ROUTES", "/login=five/1m")
	if _, err := Load(""); err == nil || !strings.Contains(err.Error(), "RATE_ROUTES") {
		t.Fatalf("expected RATE_ROUTES error, got %v", err)
	}
}

func TestParseRouteRates(t *testing.T) {
	got, err := ParseRouteRates(" /login=5/1m, /search=100/10s ,")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := map[string]RouteRate{
		"/login":  {Max: 5, Window: time.Minute},
		"/search": {Max: 100, Window: 10 * time.Second},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected routes (-want +got):\n%s", diff)
	}

	for _, bad := range []string{"/login", "=5/1m", "/x=5", "/x=0/1m", "/x=5/soon"} {
		if _, err := ParseRouteRates(bad); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

func TestValidateGateway(t *testing.T) {
	base := Defaults()
	base.UpstreamURL = "http://backend:9000"

	cases := map[string]func(c *Config){
		"UPSTREAM_URL is required":   func(c *Config) { c.UpstreamURL = "" },
		"UPSTREAM_URL is invalid":    func(c *Config) { c.UpstreamURL = "backend" },
		"RATE_MAX must be > 0":       func(c *Config) { c.Rate.Max = 0 },
		"RATE_WINDOW must be":        func(c *Config) { c.Rate.Window = 0 },
		"RATE_WINDOW must be >= 1ms": func(c *Config) { c.Rate.Window = 500 * time.Microsecond },
		"STORE_BACKEND must be":      func(c *Config) { c.StoreBackend = "etcd" },
		"cannot be combined":         func(c *Config) { c.StoreBackend = "memory"; c.Redis.Addr = "redis:6379" },
		"CONCURRENCY_MAX":            func(c *Config) { c.Concurrency.Max = -1 },
		"FLEET_CONCURRENCY_TTL":      func(c *Config) { c.Concurrency.FleetMax = 3; c.Concurrency.FleetTTL = 0 },
		"RATE_FALLBACK must be":      func(c *Config) { c.Rate.Fallback = "closed" },
		`rate route "/x" needs max`:  func(c *Config) { c.Rate.Routes = map[string]RouteRate{"/x": {}} },
	}
	for want, mutate := range cases {
		c := base
		mutate(&c)
		err := c.ValidateGateway()
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("expected error containing %q, got %v", want, err)
		}
	}

	if err := base.ValidateGateway(); err != nil {
		t.Fatalf("expected base config to be valid, got %v", err)
	}
	if err := base.ValidateStore(); err == nil {
		t.Fatalf("expected ValidateStore to require REDIS_ADDR")
	}

	mem := base
	mem.StoreBackend = "Memory"
	if err := mem.ValidateGateway(); err != nil || !mem.MemoryStore() {
		t.Fatalf("expected memory backend to be accepted, got %v", err)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := writeFile(t, ".env", "COORD_TEST_FROM_DOTENV=yes\nCOORD_TEST_PRESET=dotenv\n")
	t.Setenv("COORD_TEST_PRESET", "env")
	t.Setenv("COORD_TEST_FROM_DOTENV", "")
	os.Unsetenv("COORD_TEST_FROM_DOTENV")

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := os.Getenv("COORD_TEST_FROM_DOTENV"); got != "yes" {
		t.Fatalf("expected value from .env, got %q", got)
	}
	if got := os.Getenv("COORD_TEST_PRESET"); got != "env" {
		t.Fatalf("expected existing env to win over .env, got %q", got)
	}
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
		t.Fatalf("expected missing .env to be ignored, got %v", err)
	}
}

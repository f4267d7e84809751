package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// ParseRouteRates lê limites por rota no formato "/login=5/1m,/search=100/10s".
func ParseRouteRates(v string) (map[string]RouteRate, error) {
	out := map[string]RouteRate{}
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		route, limit, ok := strings.Cut(part, "=")
		if !ok || strings.TrimSpace(route) == "" {
			return nil, fmt.Errorf("invalid entry %q (want route=max/window)", part)
		}
		maxStr, winStr, ok := strings.Cut(limit, "/")
		if !ok {
			return nil, fmt.Errorf("invalid limit %q (want max/window)", limit)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(maxStr), 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid max in %q", part)
		}
		w, err := time.ParseDuration(strings.TrimSpace(winStr))
		if err != nil || w <= 0 {
			return nil, fmt.Errorf("invalid window in %q", part)
		}
		out[strings.TrimSpace(route)] = RouteRate{Max: n, Window: w}
	}
	return out, nil
}

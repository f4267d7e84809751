// Package logging monta o *zap.Logger dos binários.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New cria um logger de produção com nível ajustável em runtime.
// format: "json" (padrão) ou "console".
func New(level, format string) (*zap.Logger, zap.AtomicLevel, error) {
	lvl := zap.NewAtomicLevel()
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(orDefault(level, "info"))))); err != nil {
		return nil, lvl, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = lvl
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		cfg.Encoding = "json"
	case "console":
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	default:
		return nil, lvl, fmt.Errorf("invalid log format %q (want json or console)", format)
	}

	l, err := cfg.Build(zap.AddCaller())
	if err != nil {
		return nil, lvl, err
	}
	return l, lvl, nil
}

// Must é o New que entra em pânico em erro (uso em main).
func Must(level, format string) (*zap.Logger, zap.AtomicLevel) {
	l, lvl, err := New(level, format)
	if err != nil {
		panic(err)
	}
	return l, lvl
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

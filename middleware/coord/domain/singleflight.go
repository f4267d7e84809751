package domain

import (
	"context"
	"errors"
)

var (
	// ErrSingleflightTimeout: o seguidor esgotou o TTL sem ver o resultado do vencedor.
	ErrSingleflightTimeout = errors.New("singleflight: timed out waiting for result")
	// ErrInvalidTTL: lock sem expiração ficaria preso para sempre.
	ErrInvalidTTL = errors.New("singleflight: ttl must be > 0")
	// ErrStoreUnavailable: store não configurado ou inacessível.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// WorkFunc é a unidade de trabalho protegida pelo singleflight.
// Deve ser idempotente: o resultado pode ser descartado se quem chamou desistir.
type WorkFunc func(ctx context.Context) ([]byte, error)

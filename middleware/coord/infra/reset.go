package infra

import (
	"context"

	"fleet-coord/middleware/coord/domain"

	"go.uber.org/multierr"
)

const resetBatch = 500

// ResetPrefix apaga todas as chaves que começam com prefix. É a rotina administrativa
// (coordctl reset); as primitivas nunca enumeram chaves.
// Retorna quantas chaves foram enviadas para remoção; erros de lotes são agregados.
func ResetPrefix(ctx context.Context, store domain.Store, prefix string) (int, error) {
	keys, err := store.Keys(ctx, prefix)
	if err != nil {
		return 0, err
	}

	var errs error
	deleted := 0
	for start := 0; start < len(keys); start += resetBatch {
		end := min(start+resetBatch, len(keys))
		if err := store.Del(ctx, keys[start:end]...); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		deleted += end - start
	}
	return deleted, errs
}

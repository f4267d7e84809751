package coord

import (
	"net/http"
	"time"

	"fleet-coord/middleware/coord/application"
	"fleet-coord/middleware/coord/domain"
	"fleet-coord/middleware/coord/infra"
)

type ConcurrencyOptions struct {
	// Max limita requisições simultâneas nesta instância (0 desliga).
	Max int
	// Fleet limita requisições simultâneas na frota inteira (nil desliga).
	Fleet *application.FleetPool

	RejectStatus   int
	AcquireTimeout time.Duration
}

// ConcurrencyMiddleware ocupa primeiro a vaga local e depois a da frota.
func ConcurrencyMiddleware(opts ConcurrencyOptions) func(next http.Handler) http.Handler {
	var pools []domain.SlotPool
	if opts.Max > 0 {
		pools = append(pools, infra.NewLocalPool(opts.Max))
	}
	if opts.Fleet != nil && opts.Fleet.Max > 0 {
		pools = append(pools, opts.Fleet)
	}
	if len(pools) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusServiceUnavailable
	}

	svc := application.ConcurrencyService{
		Pools:          pools,
		AcquireTimeout: opts.AcquireTimeout,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			release, ok := svc.Acquire(r.Context())
			if !ok {
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}
			defer release()

			next.ServeHTTP(w, r)
		})
	}
}

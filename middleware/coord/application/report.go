package application

import (
	"time"

	"fleet-coord/middleware/coord/domain"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// storeFailures amostra os logs de falha do store no processo inteiro: durante uma queda
// todos os componentes falham juntos e o log não pode virar o gargalo.
var storeFailures = &rate.Sometimes{First: 10, Interval: 5 * time.Second}

// releaseTimeout limita os round-trips de limpeza feitos fora do contexto do chamador.
const releaseTimeout = 2 * time.Second

func logger(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

func recorder(m domain.MetricsRecorder) domain.MetricsRecorder {
	if m == nil {
		return domain.NopRecorder{}
	}
	return m
}

func clock(now func() time.Time) time.Time {
	if now == nil {
		return time.Now()
	}
	return now()
}

func millis(t time.Time) float64 { return float64(t.UnixMilli()) }

// storeFailed registra um round-trip cuja falha foi convertida na política do componente.
func storeFailed(l *zap.Logger, op string, err error, fields ...zap.Field) {
	storeFailures.Do(func() {
		logger(l).Warn("store operation failed", append(fields, zap.String("op", op), zap.Error(err))...)
	})
}

// reportCleanup loga limpezas best-effort que falharam e devolve o resultado intacto.
func reportCleanup(l *zap.Logger, b domain.BestEffort) domain.BestEffort {
	if !b.OK() {
		logger(l).Warn("best-effort cleanup failed", zap.String("op", b.Op), zap.Error(b.Err))
	}
	return b
}

func count(m domain.MetricsRecorder, event, outcome string) {
	recorder(m).Add(event, 1, map[string]string{"outcome": outcome})
}

func observe(m domain.MetricsRecorder, event string, start time.Time) {
	recorder(m).Observe(event, time.Since(start).Seconds(), nil)
}

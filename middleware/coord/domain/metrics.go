package domain

// MetricsRecorder recebe contadores e observações das primitivas.
//
// tags usa as chaves "outcome" (contadores) e é ignorado por backends que não precisam.
type MetricsRecorder interface {
	Add(name string, value float64, tags map[string]string)
	Observe(name string, value float64, tags map[string]string)
}

// NopRecorder evita checagens de nil no caminho quente.
type NopRecorder struct{}

func (NopRecorder) Add(string, float64, map[string]string)     {}
func (NopRecorder) Observe(string, float64, map[string]string) {}

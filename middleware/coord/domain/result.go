package domain

// BestEffort é o resultado de um passo de limpeza cuja falha não pode afetar o chamador
// (ex: release do semáforo, remoção do lock). Quem recebe decide se loga; nunca é erro fatal.
type BestEffort struct {
	Op  string
	Err error
}

func (b BestEffort) OK() bool { return b.Err == nil }

package domain

// Outcome é o resultado tipado do caminho síncrono de alocação.
type Outcome int

const (
	OutcomeAccepted Outcome = iota + 1
	OutcomeSoldOut
	OutcomeAlreadyAllocated
	OutcomeActivityNotActive
	OutcomeThrottled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeSoldOut:
		return "sold_out"
	case OutcomeAlreadyAllocated:
		return "already_allocated"
	case OutcomeActivityNotActive:
		return "activity_not_active"
	case OutcomeThrottled:
		return "throttled"
	default:
		return "unknown"
	}
}

// Decision carrega o token apenas quando Outcome == OutcomeAccepted.
type Decision struct {
	Outcome Outcome
	Token   string
}

func Accepted(token string) Decision { return Decision{Outcome: OutcomeAccepted, Token: token} }
func SoldOut() Decision              { return Decision{Outcome: OutcomeSoldOut} }
func AlreadyAllocated() Decision     { return Decision{Outcome: OutcomeAlreadyAllocated} }
func ActivityNotActive() Decision    { return Decision{Outcome: OutcomeActivityNotActive} }
func Throttled() Decision            { return Decision{Outcome: OutcomeThrottled} }

// AllocationStatus é o que o requisitante enxerga ao consultar o resultado.
type AllocationStatus int

const (
	StatusNotFound AllocationStatus = iota
	StatusPending
	StatusConfirmed
)

func (s AllocationStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusConfirmed:
		return "confirmed"
	default:
		return "not_found"
	}
}

// MarkerState é o estado do marcador de admissão de um requisitante.
type MarkerState int

const (
	MarkerNone MarkerState = iota
	// MarkerPending: aceito no caminho rápido, aguardando materialização.
	MarkerPending
	// MarkerRejected: o materializador recusou (sem estoque durável). Continua
	// bloqueando novas tentativas, mas o status consultado é NotFound.
	MarkerRejected
)

package domain

import (
	"context"
	"time"

	admission "flashsale/admission/domain"
)

// AdmissionLimiter é o load shedding por chave de operação (ver admission/application).
type AdmissionLimiter interface {
	Admit(ctx context.Context, key admission.Key) bool
}

type ActivityReader interface {
	GetActivity(ctx context.Context, id int64) (Activity, error)
}

// ActivityLister lista as atividades ainda não encerradas.
type ActivityLister interface {
	ListOpenActivities(ctx context.Context, now time.Time) ([]Activity, error)
}

// StockCounter é o contador atômico do caminho rápido. TryDecrement e Increment são
// avaliados inteiramente pelo store, em uma única ida e volta.
type StockCounter interface {
	TryDecrement(ctx context.Context, activityID int64) (bool, error)
	Increment(ctx context.Context, activityID int64) error
	// WarmUp sobrescreve o valor (inicialização ou ressincronização). ttl <= 0 não expira.
	WarmUp(ctx context.Context, activityID int64, value int64, ttl time.Duration) error
	Value(ctx context.Context, activityID int64) (value int64, present bool, err error)
}

// Locker fornece exclusão mútua com expiração automática.
//
// Se o lock não for obtido em wait, retorna acquired=false sem executar fn.
// O lock expira sozinho após hold, mesmo que o dono morra; fn recebe um ctx
// limitado por hold.
type Locker interface {
	WithLock(ctx context.Context, key string, wait, hold time.Duration, fn func(ctx context.Context) error) (acquired bool, err error)
}

type MarkerStore interface {
	State(ctx context.Context, requesterID, activityID int64) (MarkerState, error)
	Mark(ctx context.Context, requesterID, activityID int64, ttl time.Duration) error
	// Reject só altera marcadores existentes e preserva o TTL.
	Reject(ctx context.Context, requesterID, activityID int64) error
	Clear(ctx context.Context, requesterID, activityID int64) error
}

type Publisher interface {
	Publish(ctx context.Context, msg AllocationMessage) error
}

// MessageHandler retorna nil para confirmar (ack). Erro mantém a mensagem pendente
// para reentrega; erros com ErrPoisonMessage vão direto para dead-letter.
type MessageHandler func(ctx context.Context, msg AllocationMessage) error

// DeadLetterHandler é chamado quando a mensagem excede as reentregas permitidas.
type DeadLetterHandler func(ctx context.Context, msg AllocationMessage, cause string) error

// BacklogReporter informa quantas mensagens ainda não foram confirmadas.
type BacklogReporter interface {
	Backlog(ctx context.Context) (int64, error)
}

// Transactor executa fn numa transação durável propagada via ctx.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// ActivityStore é a parte durável das atividades usada pelo materializador.
type ActivityStore interface {
	ActivityReader
	ActivityLister
	// DecrementAvailable decrementa apenas se available_stock > 0, numa única
	// instrução condicional. ok=false significa "sem estoque durável".
	DecrementAvailable(ctx context.Context, activityID int64) (version int64, ok bool, err error)
	// IncrementAvailable nunca ultrapassa total_stock.
	IncrementAvailable(ctx context.Context, activityID int64) (ok bool, err error)
}

type OrderStore interface {
	FindOrderByToken(ctx context.Context, token string) (*Order, error)
	// FindActiveOrder retorna o pedido não cancelado de (requester, activity), se houver.
	FindActiveOrder(ctx context.Context, requesterID, activityID int64) (*Order, error)
	// CreateOrder retorna ErrDuplicateOrder em violação de unicidade.
	CreateOrder(ctx context.Context, order Order) error
	UpdateOrderStatus(ctx context.Context, token string, from, to OrderStatus) (bool, error)
	CountConfirmed(ctx context.Context, activityID int64) (int64, error)
}

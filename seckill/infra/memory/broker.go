package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"flashsale/seckill/domain"
)

type envelope struct {
	msg        domain.AllocationMessage
	deliveries int
	cause      string
}

// deadRetryEvery é o intervalo com que Consume repete dead-letters cujo handler falhou.
const deadRetryEvery = time.Second

type DeadLetter struct {
	Message domain.AllocationMessage
	Cause   string
}

// Broker é um canal at-least-once em memória: erro do handler recoloca a mensagem
// no fim da fila até maxDeliveries, depois ela vai para dead-letter. Se o handler
// de dead-letter falhar, a mensagem continua pendente e a tentativa se repete.
type Broker struct {
	mu            sync.Mutex
	queue         []envelope
	inflight      int
	dead          []DeadLetter
	deadRetry     []envelope
	published     int
	publishErr    error
	maxDeliveries int
	notify        chan struct{}
}

func NewBroker(maxDeliveries int) *Broker {
	if maxDeliveries <= 0 {
		maxDeliveries = 5
	}
	return &Broker{maxDeliveries: maxDeliveries, notify: make(chan struct{}, 1)}
}

// FailPublish faz as próximas publicações falharem com err (nil volta ao normal).
func (b *Broker) FailPublish(err error) {
	b.mu.Lock()
	b.publishErr = err
	b.mu.Unlock()
}

func (b *Broker) Publish(ctx context.Context, msg domain.AllocationMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	if b.publishErr != nil {
		err := b.publishErr
		b.mu.Unlock()
		return err
	}
	b.queue = append(b.queue, envelope{msg: msg})
	b.published++
	b.mu.Unlock()
	b.signal()
	return nil
}

// Redeliver recoloca uma cópia da mensagem, simulando entrega duplicada do broker.
func (b *Broker) Redeliver(msg domain.AllocationMessage) {
	b.mu.Lock()
	b.queue = append(b.queue, envelope{msg: msg})
	b.mu.Unlock()
	b.signal()
}

func (b *Broker) Backlog(context.Context) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.queue) + len(b.deadRetry) + b.inflight), nil
}

// Published conta mensagens aceitas por Publish (reentregas não contam).
func (b *Broker) Published() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.published
}

// DeadLetters lista as mensagens cujo handler de dead-letter já concluiu.
func (b *Broker) DeadLetters() []DeadLetter {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]DeadLetter(nil), b.dead...)
}

// Consume processa mensagens até o ctx encerrar.
func (b *Broker) Consume(ctx context.Context, handle domain.MessageHandler, dead domain.DeadLetterHandler) error {
	for {
		env, ok := b.next()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-b.notify:
			case <-time.After(deadRetryEvery):
				b.retryDeadLetters(ctx, dead)
			}
			continue
		}
		b.process(ctx, env, handle, dead)
	}
}

// Drain repete uma vez os dead-letters pendentes e processa até a fila
// esvaziar, na goroutine atual.
func (b *Broker) Drain(ctx context.Context, handle domain.MessageHandler, dead domain.DeadLetterHandler) {
	b.retryDeadLetters(ctx, dead)
	for {
		env, ok := b.next()
		if !ok {
			return
		}
		b.process(ctx, env, handle, dead)
	}
}

func (b *Broker) next() (envelope, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.queue) == 0 {
		return envelope{}, false
	}
	env := b.queue[0]
	b.queue = b.queue[1:]
	b.inflight++
	return env, true
}

func (b *Broker) process(ctx context.Context, env envelope, handle domain.MessageHandler, dead domain.DeadLetterHandler) {
	err := handle(ctx, env.msg)

	b.mu.Lock()
	if err == nil {
		b.inflight--
		b.mu.Unlock()
		return
	}
	env.deliveries++
	if errors.Is(err, domain.ErrPoisonMessage) || env.deliveries >= b.maxDeliveries {
		b.mu.Unlock()
		env.cause = err.Error()
		b.deadLetter(ctx, env, dead)
		return
	}
	b.inflight--
	b.queue = append(b.queue, env)
	b.mu.Unlock()
	b.signal()
}

// deadLetter roda o handler primeiro; só depois a mensagem sai do canal.
// Chamado com a mensagem contada em inflight.
func (b *Broker) deadLetter(ctx context.Context, env envelope, dead domain.DeadLetterHandler) {
	var err error
	if dead != nil {
		err = dead(ctx, env.msg, env.cause)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.inflight--
	if err != nil {
		b.deadRetry = append(b.deadRetry, env)
		return
	}
	b.dead = append(b.dead, DeadLetter{Message: env.msg, Cause: env.cause})
}

func (b *Broker) retryDeadLetters(ctx context.Context, dead domain.DeadLetterHandler) {
	b.mu.Lock()
	pending := b.deadRetry
	b.deadRetry = nil
	b.inflight += len(pending)
	b.mu.Unlock()

	for _, env := range pending {
		b.deadLetter(ctx, env, dead)
	}
}

func (b *Broker) signal() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"flashsale/seckill/domain"

	"github.com/redis/go-redis/v9"
	"github.com/sourcegraph/conc/pool"
)

const payloadField = "payload"

type Broker struct {
	rdb      redis.UniversalClient
	stream   string
	group    string
	dlq      string
	consumer string

	workers       int
	batch         int64
	block         time.Duration
	maxDeliveries int64
	claimIdle     time.Duration
	lastReclaim   time.Time
	logger        *slog.Logger
}

type Option func(*Broker)

func WithGroup(group string) Option {
	return func(b *Broker) {
		if group != "" {
			b.group = group
		}
	}
}

func WithDeadLetterStream(name string) Option {
	return func(b *Broker) {
		if name != "" {
			b.dlq = name
		}
	}
}

func WithConsumerName(name string) Option {
	return func(b *Broker) {
		if name != "" {
			b.consumer = name
		}
	}
}

// WithWorkers limita quantas mensagens são processadas em paralelo.
func WithWorkers(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.workers = n
			b.batch = int64(n)
		}
	}
}

func WithBlock(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.block = d
		}
	}
}

// WithMaxDeliveries define quantas entregas uma mensagem recebe antes do dead-letter.
func WithMaxDeliveries(n int) Option {
	return func(b *Broker) {
		if n > 0 {
			b.maxDeliveries = int64(n)
		}
	}
}

// WithClaimIdle define após quanto tempo pendente uma mensagem é reassumida
// (consumidor caiu ou o handler falhou).
func WithClaimIdle(d time.Duration) Option {
	return func(b *Broker) {
		if d >= 0 {
			b.claimIdle = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Broker) {
		if l != nil {
			b.logger = l
		}
	}
}

func NewBroker(rdb redis.UniversalClient, stream string, opts ...Option) *Broker {
	if stream == "" {
		stream = "seckill:allocations"
	}
	b := &Broker{
		rdb:           rdb,
		stream:        stream,
		group:         "materializer",
		dlq:           stream + ":dlq",
		consumer:      "consumer-1",
		workers:       4,
		batch:         4,
		block:         2 * time.Second,
		maxDeliveries: 5,
		claimIdle:     30 * time.Second,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Broker) Publish(ctx context.Context, msg domain.AllocationMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode allocation message: %w", err)
	}
	err = b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: b.stream,
		Values: map[string]any{payloadField: string(payload)},
	}).Err()
	if err != nil {
		return fmt.Errorf("xadd %s: %w", b.stream, err)
	}
	return nil
}

// EnsureGroup cria o consumer group (e o stream) se ainda não existirem.
func (b *Broker) EnsureGroup(ctx context.Context) error {
	err := b.rdb.XGroupCreateMkStream(ctx, b.stream, b.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create group %s: %w", b.group, err)
	}
	return nil
}

// Backlog implementa domain.BacklogReporter.
func (b *Broker) Backlog(ctx context.Context) (int64, error) {
	n, err := b.rdb.XLen(ctx, b.stream).Result()
	if err != nil {
		return 0, fmt.Errorf("xlen %s: %w", b.stream, err)
	}
	return n, nil
}

// DeadLetters retorna quantas mensagens estão no stream de dead-letter.
func (b *Broker) DeadLetters(ctx context.Context) (int64, error) {
	return b.rdb.XLen(ctx, b.dlq).Result()
}

// Consume processa mensagens até o ctx encerrar, com no máximo WithWorkers
// handlers simultâneos. Retorna nil no encerramento normal.
func (b *Broker) Consume(ctx context.Context, handle domain.MessageHandler, dead domain.DeadLetterHandler) error {
	if err := b.EnsureGroup(ctx); err != nil {
		return err
	}

	p := pool.New().WithMaxGoroutines(b.workers)
	defer p.Wait()

	b.logger.Info("stream consumer started", "stream", b.stream, "group", b.group, "consumer", b.consumer, "workers", b.workers)
	for ctx.Err() == nil {
		if _, err := b.poll(ctx, p, handle, dead, b.block); err != nil {
			if ctx.Err() != nil {
				break
			}
			b.logger.Error("stream poll failed", "stream", b.stream, "err", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
	b.logger.Info("stream consumer stopped", "stream", b.stream, "consumer", b.consumer)
	return nil
}

// Poll faz uma passada sem bloqueio (reassume pendentes e lê novas) e espera o
// processamento terminar. Retorna quantas mensagens foram entregues ao handler.
func (b *Broker) Poll(ctx context.Context, handle domain.MessageHandler, dead domain.DeadLetterHandler) (int, error) {
	p := pool.New().WithMaxGoroutines(b.workers)
	n, err := b.poll(ctx, p, handle, dead, -1)
	p.Wait()
	return n, err
}

func (b *Broker) poll(ctx context.Context, p *pool.Pool, handle domain.MessageHandler, dead domain.DeadLetterHandler, block time.Duration) (int, error) {
	var delivered int

	if time.Since(b.lastReclaim) >= b.claimIdle {
		n, err := b.reclaim(ctx, p, handle, dead)
		if err != nil {
			return n, err
		}
		delivered += n
		b.lastReclaim = time.Now()
	}

	streams, err := b.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    b.group,
		Consumer: b.consumer,
		Streams:  []string{b.stream, ">"},
		Count:    b.batch,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return delivered, nil
	}
	if err != nil {
		return delivered, fmt.Errorf("xreadgroup %s: %w", b.stream, err)
	}

	for _, s := range streams {
		for _, m := range s.Messages {
			m := m
			delivered++
			p.Go(func() { b.process(ctx, m, handle, dead) })
		}
	}
	return delivered, nil
}

// reclaim reassume mensagens pendentes há mais de claimIdle. As que já
// esgotaram as entregas vão para dead-letter sem passar pelo handler.
func (b *Broker) reclaim(ctx context.Context, p *pool.Pool, handle domain.MessageHandler, dead domain.DeadLetterHandler) (int, error) {
	pending, err := b.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: b.stream,
		Group:  b.group,
		Start:  "-",
		End:    "+",
		Count:  100,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("xpending %s: %w", b.stream, err)
	}

	var delivered int
	for _, pe := range pending {
		if pe.Idle < b.claimIdle {
			continue
		}
		claimed, err := b.rdb.XClaim(ctx, &redis.XClaimArgs{
			Stream:   b.stream,
			Group:    b.group,
			Consumer: b.consumer,
			MinIdle:  b.claimIdle,
			Messages: []string{pe.ID},
		}).Result()
		if err != nil {
			return delivered, fmt.Errorf("xclaim %s: %w", pe.ID, err)
		}
		for _, m := range claimed {
			m := m
			if pe.RetryCount >= b.maxDeliveries {
				b.deadLetter(ctx, m, fmt.Sprintf("exceeded %d deliveries", b.maxDeliveries), dead)
				continue
			}
			delivered++
			p.Go(func() { b.process(ctx, m, handle, dead) })
		}
	}
	return delivered, nil
}

func (b *Broker) process(ctx context.Context, m redis.XMessage, handle domain.MessageHandler, dead domain.DeadLetterHandler) {
	msg, err := decode(m)
	if err != nil {
		b.deadLetter(ctx, m, err.Error(), dead)
		return
	}

	if err := handle(ctx, msg); err != nil {
		if errors.Is(err, domain.ErrPoisonMessage) {
			b.deadLetter(ctx, m, err.Error(), dead)
			return
		}
		// fica pendente; reclaim reentrega depois de claimIdle
		b.logger.Warn("message handler failed", "id", m.ID, "token", msg.Token, "err", err)
		return
	}
	b.ack(ctx, m.ID)
}

// deadLetter roda o handler de dead-letter primeiro: se ele falhar a mensagem
// continua pendente e a tentativa se repete no próximo reclaim.
func (b *Broker) deadLetter(ctx context.Context, m redis.XMessage, cause string, dead domain.DeadLetterHandler) {
	if msg, err := decode(m); err == nil && dead != nil {
		if err := dead(ctx, msg, cause); err != nil {
			b.logger.Error("dead-letter handler failed", "id", m.ID, "err", err)
			return
		}
	}

	values := map[string]any{"source_id": m.ID, "cause": cause}
	if raw, ok := m.Values[payloadField]; ok {
		values[payloadField] = raw
	}
	if err := b.rdb.XAdd(ctx, &redis.XAddArgs{Stream: b.dlq, Values: values}).Err(); err != nil {
		b.logger.Error("dead-letter publish failed", "id", m.ID, "err", err)
		return
	}
	b.logger.Warn("message moved to dead-letter", "id", m.ID, "dlq", b.dlq, "cause", cause)
	b.ack(ctx, m.ID)
}

func (b *Broker) ack(ctx context.Context, id string) {
	_, err := b.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAck(ctx, b.stream, b.group, id)
		pipe.XDel(ctx, b.stream, id)
		return nil
	})
	if err != nil {
		// sem ack a mensagem volta via reclaim; o materializador é idempotente
		b.logger.Warn("ack failed", "id", id, "err", err)
	}
}

func decode(m redis.XMessage) (domain.AllocationMessage, error) {
	var msg domain.AllocationMessage
	raw, ok := m.Values[payloadField].(string)
	if !ok {
		return msg, fmt.Errorf("%w: missing payload", domain.ErrPoisonMessage)
	}
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return msg, fmt.Errorf("%w: %v", domain.ErrPoisonMessage, err)
	}
	return msg, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	admissionapp "flashsale/admission/application"
	admission "flashsale/admission/domain"
	admissioninfra "flashsale/admission/infra"
	"flashsale/clock"
	"flashsale/seckill/application"
	"flashsale/seckill/domain"
	"flashsale/seckill/infra/cache"
	"flashsale/seckill/infra/memory"
	"flashsale/seckill/infra/postgres"
	"flashsale/seckill/infra/postgres/migrations"
	"flashsale/seckill/infra/redisstore"
	"flashsale/seckill/infra/stream"
	"flashsale/seckill/metrics"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// durableStore é o conjunto de contratos do armazenamento durável.
type durableStore interface {
	domain.Transactor
	domain.ActivityStore
	domain.OrderStore
}

// channel é o canal de mensagens entre o caminho rápido e o materializador.
type channel interface {
	domain.Publisher
	domain.BacklogReporter
	Consume(ctx context.Context, handle domain.MessageHandler, dead domain.DeadLetterHandler) error
}

type pgStore struct {
	*postgres.Transactor
	*postgres.ActivityRepository
	*postgres.OrderRepository
}

// runtime concentra as dependências montadas a partir da config.
type runtime struct {
	cfg    config
	logger *slog.Logger
	clock  clock.Clock

	durable durableStore
	counter domain.StockCounter
	locker  domain.Locker
	markers domain.MarkerStore
	channel channel
	stats   admission.StatsStore

	activityCache *cache.ActivityCache

	// limiters atende o rate limit por cliente (taxa padrão) e a admissão por
	// atividade (chaves "allocate:").
	limiters *admissioninfra.Store

	pool    *pgxpool.Pool
	health  func(ctx context.Context) error
	closers []func()
}

func newRuntime(ctx context.Context, cfg config, logger *slog.Logger) (*runtime, error) {
	metrics.Register(prometheus.DefaultRegisterer)

	rt := &runtime{
		cfg:    cfg,
		logger: logger,
		clock:  clock.NewSystem(),

		limiters: admissioninfra.NewStore(cfg.rateRPS, cfg.rateBurst,
			admissioninfra.WithPrefixLimit(application.AdmissionKeyPrefix, cfg.admissionRPS, cfg.admissionBurst)),
	}

	if cfg.memoryMode {
		rt.wireMemory()
	} else if err := rt.wireExternal(ctx); err != nil {
		rt.Close()
		return nil, err
	}

	if cfg.activityCacheTTL > 0 {
		rt.activityCache = cache.NewActivityCache(rt.durable, cfg.activityCacheTTL)
	}
	return rt, nil
}

func (rt *runtime) wireMemory() {
	store := memory.NewStore()
	rt.durable = store
	rt.counter = memory.NewCounter()
	rt.locker = memory.NewLocker()
	rt.markers = memory.NewMarkers()
	rt.channel = memory.NewBroker(rt.cfg.maxDeliveries)
	if rt.cfg.rateStatsEnabled {
		rt.stats = admissioninfra.NewMemoryStatsStore(admissioninfra.WithTrackKeys(rt.cfg.rateStatsTrackKeys))
	}
	rt.health = func(context.Context) error { return nil }
	rt.logger.Warn("running in memory mode, state is lost on exit and nothing is shared between processes")
}

func (rt *runtime) wireExternal(ctx context.Context) error {
	pool, err := newDBPool(ctx, rt.cfg)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	rt.pool = pool
	rt.closers = append(rt.closers, pool.Close)

	rdb := redis.NewClient(&redis.Options{
		Addr:     rt.cfg.redisAddr,
		Password: rt.cfg.redisPassword,
		DB:       rt.cfg.redisDB,
	})
	rt.closers = append(rt.closers, func() { _ = rdb.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	err = rdb.Ping(pingCtx).Err()
	cancel()
	if err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}

	rt.durable = pgStore{
		Transactor:         postgres.NewTransactor(pool),
		ActivityRepository: postgres.NewActivityRepository(pool),
		OrderRepository:    postgres.NewOrderRepository(pool),
	}

	keys := redisstore.NewKeys(rt.cfg.keyPrefix)
	rt.counter = redisstore.NewCounter(rdb, keys)
	rt.locker = redisstore.NewLocker(rdb, keys)
	rt.markers = redisstore.NewMarkers(rdb, keys)
	rt.channel = stream.NewBroker(rdb, rt.cfg.streamName,
		stream.WithGroup(rt.cfg.streamGroup),
		stream.WithDeadLetterStream(rt.cfg.streamDLQ),
		stream.WithConsumerName(rt.cfg.consumerName),
		stream.WithWorkers(rt.cfg.workers),
		stream.WithMaxDeliveries(rt.cfg.maxDeliveries),
		stream.WithClaimIdle(rt.cfg.claimIdle),
		stream.WithLogger(rt.logger),
	)

	if rt.cfg.rateStatsEnabled {
		rt.stats = admissioninfra.NewRedisStatsStore(rdb,
			admissioninfra.WithStatsPrefix(rt.cfg.rateStatsPrefix),
			admissioninfra.WithStatsTTL(rt.cfg.rateStatsTTL),
			admissioninfra.WithStatsBucket(rt.cfg.rateStatsBucket),
			admissioninfra.WithStatsTrackKeys(rt.cfg.rateStatsTrackKeys),
		)
	}

	rt.health = func(ctx context.Context) error {
		return errors.Join(rdb.Ping(ctx).Err(), pool.Ping(ctx))
	}
	return nil
}

// newDBPool monta o pgxpool e valida a conexão.
func newDBPool(ctx context.Context, cfg config) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(cfg.databaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.dbMaxConns > 0 {
		pcfg.MaxConns = cfg.dbMaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

func (rt *runtime) migrate(ctx context.Context) error {
	if rt.pool == nil {
		rt.logger.Info("memory mode, no migrations to apply")
		return nil
	}
	return migrations.Apply(ctx, rt.pool)
}

func (rt *runtime) activityReader() domain.ActivityReader {
	if rt.activityCache != nil {
		return rt.activityCache
	}
	return rt.durable
}

func (rt *runtime) engine() *application.Engine {
	return application.NewEngine(application.EngineDeps{
		Activities: rt.activityReader(),
		Admission: admissionapp.Service{
			Store:       rt.limiters,
			Stats:       rt.stats,
			WaitTimeout: rt.cfg.admissionWait,
			Operation:   "allocate",
		},
		Counter:   rt.counter,
		Locker:    rt.locker,
		Markers:   rt.markers,
		Publisher: rt.channel,
		Orders:    rt.durable,
	}, rt.clock,
		application.WithLockTimeouts(rt.cfg.lockWait, rt.cfg.lockHold),
		application.WithMarkerTTL(rt.cfg.markerTTL),
		application.WithCallTimeout(rt.cfg.callTimeout),
		application.WithDurableDuplicateCheck(rt.cfg.durableDupCheck),
		application.WithEngineLogger(rt.logger),
	)
}

func (rt *runtime) materializer() *application.Materializer {
	return application.NewMaterializer(application.MaterializerDeps{
		Tx:         rt.durable,
		Activities: rt.durable,
		Orders:     rt.durable,
		Counter:    rt.counter,
		Markers:    rt.markers,
	}, rt.clock, application.WithMaterializerLogger(rt.logger))
}

func (rt *runtime) reconciler() *application.Reconciler {
	return application.NewReconciler(application.ReconcilerDeps{
		Activities: rt.durable,
		Counter:    rt.counter,
		Backlog:    rt.channel,
	}, rt.clock,
		application.WithReconcileInterval(rt.cfg.reconcileInterval),
		application.WithRequireDrained(rt.cfg.reconcileRequireDrained),
		application.WithReconcilerLogger(rt.logger),
	)
}

func (rt *runtime) warmUp() *application.WarmUp {
	return application.NewWarmUp(application.WarmUpDeps{
		Activities: rt.durable,
		Counter:    rt.counter,
	}, rt.clock, rt.logger)
}

func (rt *runtime) orderService() *application.OrderService {
	return application.NewOrderService(application.OrderServiceDeps{
		Tx:         rt.durable,
		Activities: rt.durable,
		Orders:     rt.durable,
		Counter:    rt.counter,
		Markers:    rt.markers,
	}, rt.logger)
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
}

package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type config struct {
	listenAddr string
	logLevel   string
	memoryMode bool

	databaseURL string
	dbMaxConns  int32

	redisAddr     string
	redisPassword string
	redisDB       int
	keyPrefix     string

	admissionRPS   float64
	admissionBurst int
	admissionWait  time.Duration

	lockWait         time.Duration
	lockHold         time.Duration
	markerTTL        time.Duration
	callTimeout      time.Duration
	activityCacheTTL time.Duration
	durableDupCheck  bool
	warmUpOnStart    bool

	streamName    string
	streamGroup   string
	streamDLQ     string
	consumerName  string
	workers       int
	maxDeliveries int
	claimIdle     time.Duration

	reconcileInterval       time.Duration
	reconcileRequireDrained bool

	rateEnabled        bool
	rateRPS            float64
	rateBurst          int
	rateKeyHeader      string
	trustXFF           bool
	retryAfter         time.Duration
	addHeaders         bool
	concurrencyMax     int
	concurrencyTimeout time.Duration

	rateStatsEnabled   bool
	rateStatsPrefix    string
	rateStatsTTL       time.Duration
	rateStatsBucket    string
	rateStatsTrackKeys bool
}

func readConfig() (config, error) {
	cfg := config{}
	cfg.listenAddr = getenvDefault("LISTEN_ADDR", ":8080")
	cfg.logLevel = getenvDefault("LOG_LEVEL", "info")
	cfg.memoryMode = getenvBoolDefault("MEMORY_MODE", false)

	cfg.databaseURL = os.Getenv("DATABASE_URL")
	cfg.dbMaxConns = int32(getenvIntDefault("DB_MAX_CONNS", 10))

	cfg.redisAddr = getenvDefault("REDIS_ADDR", "localhost:6379")
	cfg.redisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.redisDB = getenvIntDefault("REDIS_DB", 0)
	cfg.keyPrefix = getenvDefault("KEY_PREFIX", "seckill")

	// orçamento do endpoint de alocação, por atividade
	cfg.admissionRPS = getenvFloatDefault("ADMISSION_RPS", 1000)
	cfg.admissionBurst = getenvIntDefault("ADMISSION_BURST", 1000)
	cfg.admissionWait = getenvDurationDefault("ADMISSION_WAIT", 500*time.Millisecond)

	cfg.lockWait = getenvDurationDefault("LOCK_WAIT", 100*time.Millisecond)
	cfg.lockHold = getenvDurationDefault("LOCK_HOLD", 3*time.Second)
	cfg.markerTTL = getenvDurationDefault("MARKER_TTL", 24*time.Hour)
	cfg.callTimeout = getenvDurationDefault("CALL_TIMEOUT", 500*time.Millisecond)
	cfg.activityCacheTTL = getenvDurationDefault("ACTIVITY_CACHE_TTL", time.Second)
	cfg.durableDupCheck = getenvBoolDefault("DURABLE_DUP_CHECK", false)
	cfg.warmUpOnStart = getenvBoolDefault("WARMUP_ON_START", true)

	cfg.streamName = getenvDefault("STREAM_NAME", cfg.keyPrefix+":allocations")
	cfg.streamGroup = getenvDefault("STREAM_GROUP", "materializer")
	cfg.streamDLQ = getenvDefault("STREAM_DLQ", cfg.streamName+":dlq")
	cfg.consumerName = getenvDefault("CONSUMER_NAME", defaultConsumerName())
	cfg.workers = getenvIntDefault("WORKERS", 4)
	cfg.maxDeliveries = getenvIntDefault("MAX_DELIVERIES", 5)
	cfg.claimIdle = getenvDurationDefault("CLAIM_IDLE", 30*time.Second)

	cfg.reconcileInterval = getenvDurationDefault("RECONCILE_INTERVAL", 5*time.Minute)
	cfg.reconcileRequireDrained = getenvBoolDefault("RECONCILE_REQUIRE_DRAINED", true)

	cfg.rateEnabled = getenvBoolDefault("RATE_ENABLED", true)
	cfg.rateRPS = getenvFloatDefault("RATE_RPS", 50)
	// com RPS fracionário o burst padrão esconderia o limite nas primeiras requisições
	if burst, ok := getenvInt("RATE_BURST"); ok {
		cfg.rateBurst = burst
	} else {
		cfg.rateBurst = 100
		if getenvIsSet("RATE_RPS") && cfg.rateRPS > 0 && cfg.rateRPS < 1 {
			cfg.rateBurst = 1
		}
	}
	cfg.rateKeyHeader = os.Getenv("RATE_KEY_HEADER")
	cfg.trustXFF = getenvBoolDefault("TRUST_XFF", false)
	cfg.retryAfter = getenvDurationDefault("RETRY_AFTER", time.Second)
	cfg.addHeaders = getenvBoolDefault("ADD_RATELIMIT_HEADERS", false)
	cfg.concurrencyMax = getenvIntDefault("CONCURRENCY_MAX", 2000)
	cfg.concurrencyTimeout = getenvDurationDefault("CONCURRENCY_TIMEOUT", 50*time.Millisecond)

	cfg.rateStatsEnabled = getenvBoolDefault("RATE_STATS_ENABLED", false)
	cfg.rateStatsPrefix = getenvDefault("RATE_STATS_PREFIX", cfg.keyPrefix+":admission:stats")
	cfg.rateStatsTTL = getenvDurationDefault("RATE_STATS_TTL", 24*time.Hour)
	cfg.rateStatsBucket = getenvDefault("RATE_STATS_BUCKET", "minute")
	cfg.rateStatsTrackKeys = getenvBoolDefault("RATE_STATS_TRACK_KEYS", false)

	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func (cfg config) validate() error {
	if !cfg.memoryMode {
		if strings.TrimSpace(cfg.databaseURL) == "" {
			return errors.New("DATABASE_URL is required unless MEMORY_MODE=true")
		}
		if strings.TrimSpace(cfg.redisAddr) == "" {
			return errors.New("REDIS_ADDR is required unless MEMORY_MODE=true")
		}
	}
	if cfg.dbMaxConns <= 0 {
		return errors.New("DB_MAX_CONNS must be > 0")
	}
	if cfg.admissionRPS <= 0 {
		return errors.New("ADMISSION_RPS must be > 0")
	}
	if cfg.admissionBurst <= 0 {
		return errors.New("ADMISSION_BURST must be > 0")
	}
	if cfg.lockWait <= 0 || cfg.lockHold <= 0 {
		return errors.New("LOCK_WAIT and LOCK_HOLD must be > 0")
	}
	if cfg.lockHold <= cfg.callTimeout {
		return fmt.Errorf("LOCK_HOLD (%s) must be greater than CALL_TIMEOUT (%s)", cfg.lockHold, cfg.callTimeout)
	}
	if cfg.markerTTL <= 0 {
		return errors.New("MARKER_TTL must be > 0")
	}
	if cfg.callTimeout <= 0 {
		return errors.New("CALL_TIMEOUT must be > 0")
	}
	if cfg.workers <= 0 {
		return errors.New("WORKERS must be > 0")
	}
	if cfg.maxDeliveries <= 0 {
		return errors.New("MAX_DELIVERIES must be > 0")
	}
	if cfg.claimIdle <= 0 {
		return errors.New("CLAIM_IDLE must be > 0")
	}
	if cfg.reconcileInterval <= 0 {
		return errors.New("RECONCILE_INTERVAL must be > 0")
	}
	if cfg.rateRPS <= 0 {
		return errors.New("RATE_RPS must be > 0")
	}
	if cfg.rateBurst <= 0 {
		return errors.New("RATE_BURST must be > 0")
	}
	if cfg.concurrencyMax < 0 {
		return errors.New("CONCURRENCY_MAX must be >= 0")
	}
	return nil
}

func defaultConsumerName() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "consumer-1"
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getenvIntDefault(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

func getenvInt(k string) (int, bool) {
	v, ok := os.LookupEnv(k)
	if !ok || v == "" {
		return 0, false
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return i, true
}

func getenvIsSet(k string) bool {
	v, ok := os.LookupEnv(k)
	return ok && v != ""
}

func getenvFloatDefault(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getenvBoolDefault(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDurationDefault(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend names accepted for BLOODLINK_STORE and BLOODLINK_NOTIFICATION_SINK.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendMongo    = "mongo"
	BackendKafka    = "kafka"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr            string
	JWTSigningKey   string
	JWTIssuer       string
	JWTAudience     string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type PostgresConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type MongoConfig struct {
	URI         string
	Database    string
	MaxPoolSize uint64
}

// RedisConfig configures the user-profile cache and reconciliation queue.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	UserCacheTTL time.Duration
}

type KafkaConfig struct {
	Brokers           []string
	NotificationTopic string
	Partitions        int32
	ReplicationFactor int16
}

// DispatcherConfig bounds asynchronous notification delivery.
type DispatcherConfig struct {
	QueueSize        int
	Workers          int
	MaxAttempts      int
	BaseBackoff      time.Duration
	FailureThreshold int
	Cooldown         time.Duration
}

// ReconcileConfig drives the donor-counter reconciliation worker.
type ReconcileConfig struct {
	Interval    time.Duration
	MaxAttempts int
	BatchSize   int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// RedeliveryConfig drives retries of parked notification work.
type RedeliveryConfig struct {
	Interval    time.Duration
	MaxAttempts int
	BatchSize   int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

// RateLimitConfig budgets authenticated API calls per caller.
type RateLimitConfig struct {
	Disabled      bool
	ReadRequests  int
	WriteRequests int
	Window        time.Duration
}

// Config is the full process configuration.
type Config struct {
	Server       Server
	Log          LogConfig
	Store        string
	Sink         string
	UserBackend  string
	AuditBackend string
	UserSeedFile string
	Postgres     PostgresConfig
	Mongo        MongoConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Dispatcher   DispatcherConfig
	Reconcile    ReconcileConfig
	Redelivery   RedeliveryConfig
	RateLimit    RateLimitConfig
}

// Load reads an optional .env file and then builds the config from the environment.
// Variables already present in the environment win over the file.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() (Config, error) {
	cfg := Config{
		Server: Server{
			Addr:            envString("BLOODLINK_ADDR", ":8080"),
			JWTSigningKey:   envString("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
			JWTIssuer:       envString("JWT_ISSUER", ""),
			JWTAudience:     envString("JWT_AUDIENCE", ""),
			RequestTimeout:  envDuration("BLOODLINK_REQUEST_TIMEOUT", 10*time.Second),
			ShutdownTimeout: envDuration("BLOODLINK_SHUTDOWN_TIMEOUT", 15*time.Second),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "json"),
		},
		Store:        envString("BLOODLINK_STORE", BackendMemory),
		Sink:         envString("BLOODLINK_NOTIFICATION_SINK", BackendMemory),
		UserBackend:  envString("BLOODLINK_USER_DIRECTORY", BackendMemory),
		AuditBackend: envString("BLOODLINK_AUDIT_STORE", BackendMemory),
		UserSeedFile: envString("BLOODLINK_USER_SEED", ""),
		Postgres: PostgresConfig{
			DSN:             envString("DATABASE_URL", ""),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Mongo: MongoConfig{
			URI:         envString("MONGO_URI", ""),
			Database:    envString("MONGO_DATABASE", "bloodlink"),
			MaxPoolSize: uint64(envInt("MONGO_MAX_POOL_SIZE", 50)),
		},
		Redis: RedisConfig{
			URL:          envString("REDIS_URL", ""),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			UserCacheTTL: envDuration("REDIS_USER_CACHE_TTL", 2*time.Minute),
		},
		Kafka: KafkaConfig{
			Brokers:           envList("KAFKA_BROKERS"),
			NotificationTopic: envString("KAFKA_NOTIFICATION_TOPIC", "bloodlink.notifications"),
			Partitions:        int32(envInt("KAFKA_TOPIC_PARTITIONS", 3)),
			ReplicationFactor: int16(envInt("KAFKA_TOPIC_REPLICATION", 1)),
		},
		Dispatcher: DispatcherConfig{
			QueueSize:        envInt("NOTIFY_QUEUE_SIZE", 1024),
			Workers:          envInt("NOTIFY_WORKERS", 2),
			MaxAttempts:      envInt("NOTIFY_MAX_ATTEMPTS", 5),
			BaseBackoff:      envDuration("NOTIFY_BASE_BACKOFF", 200*time.Millisecond),
			FailureThreshold: envInt("NOTIFY_BREAKER_THRESHOLD", 5),
			Cooldown:         envDuration("NOTIFY_BREAKER_COOLDOWN", 30*time.Second),
		},
		Reconcile: ReconcileConfig{
			Interval:    envDuration("RECONCILE_INTERVAL", 30*time.Second),
			MaxAttempts: envInt("RECONCILE_MAX_ATTEMPTS", 10),
			BatchSize:   envInt("RECONCILE_BATCH_SIZE", 50),
			BaseBackoff: envDuration("RECONCILE_BASE_BACKOFF", 30*time.Second),
			MaxBackoff:  envDuration("RECONCILE_MAX_BACKOFF", 30*time.Minute),
		},
		Redelivery: RedeliveryConfig{
			Interval:    envDuration("NOTIFY_REDELIVERY_INTERVAL", 15*time.Second),
			MaxAttempts: envInt("NOTIFY_REDELIVERY_MAX_ATTEMPTS", 20),
			BatchSize:   envInt("NOTIFY_REDELIVERY_BATCH_SIZE", 20),
			BaseBackoff: envDuration("NOTIFY_REDELIVERY_BASE_BACKOFF", 30*time.Second),
			MaxBackoff:  envDuration("NOTIFY_REDELIVERY_MAX_BACKOFF", 30*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Disabled:      envBool("RATELIMIT_DISABLED", false),
			ReadRequests:  envInt("RATELIMIT_READ_REQUESTS", 120),
			WriteRequests: envInt("RATELIMIT_WRITE_REQUESTS", 30),
			Window:        envDuration("RATELIMIT_WINDOW", time.Minute),
		},
	}
	return cfg, cfg.Validate()
}

// Validate checks that every selected backend has its connection settings.
func (c Config) Validate() error {
	needs := map[string]bool{}
	for _, b := range []string{c.Store, c.Sink, c.UserBackend, c.AuditBackend} {
		switch b {
		case BackendMemory, BackendPostgres, BackendMongo, BackendKafka:
			needs[b] = true
		default:
			return fmt.Errorf("unknown backend %q", b)
		}
	}
	if c.Store == BackendKafka || c.UserBackend == BackendKafka || c.AuditBackend == BackendKafka {
		return errors.New("kafka is only supported as a notification sink")
	}
	if c.Sink == BackendMongo || c.UserBackend == BackendMongo || c.AuditBackend == BackendMongo {
		return errors.New("mongo is only supported as a donation request store")
	}
	if needs[BackendPostgres] && c.Postgres.DSN == "" {
		return errors.New("DATABASE_URL is required for the postgres backend")
	}
	if needs[BackendMongo] && c.Mongo.URI == "" {
		return errors.New("MONGO_URI is required for the mongo backend")
	}
	if needs[BackendKafka] && len(c.Kafka.Brokers) == 0 {
		return errors.New("KAFKA_BROKERS is required for the kafka sink")
	}
	if c.Dispatcher.Workers < 1 || c.Dispatcher.QueueSize < 1 {
		return errors.New("notification dispatcher needs at least one worker and a positive queue size")
	}
	return nil
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}

func envDuration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envBool(key string, def bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}

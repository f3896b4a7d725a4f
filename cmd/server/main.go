package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"bloodlink/internal/donation/handler"
	donationmetrics "bloodlink/internal/donation/metrics"
	"bloodlink/internal/donation/reconcile"
	"bloodlink/internal/donation/service"
	donationstore "bloodlink/internal/donation/store"
	jwttoken "bloodlink/internal/jwt_token"
	"bloodlink/internal/notification"
	"bloodlink/internal/notification/sink"
	"bloodlink/internal/platform/config"
	"bloodlink/internal/platform/httpserver"
	"bloodlink/internal/platform/kafka"
	"bloodlink/internal/platform/logger"
	"bloodlink/internal/platform/mongo"
	"bloodlink/internal/platform/postgres"
	"bloodlink/internal/platform/redis"
	ratelimitmetrics "bloodlink/internal/ratelimit/metrics"
	ratelimit "bloodlink/internal/ratelimit/middleware"
	ratelimitmodels "bloodlink/internal/ratelimit/models"
	ratelimitstore "bloodlink/internal/ratelimit/store"
	userstore "bloodlink/internal/users/store"
	"bloodlink/migrations"
	audit "bloodlink/pkg/platform/audit"
	"bloodlink/pkg/platform/audit/publisher"
	auditmemory "bloodlink/pkg/platform/audit/store/memory"
	auditpostgres "bloodlink/pkg/platform/audit/store/postgres"
	"bloodlink/pkg/platform/circuit"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.Log.Level, cfg.Log.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	infra, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer infra.close()

	requests, err := buildRequestStore(ctx, cfg, infra)
	if err != nil {
		return err
	}
	users, err := buildUserDirectory(ctx, cfg, infra, log)
	if err != nil {
		return err
	}
	notifications := buildSink(cfg, infra)

	var auditStore audit.Store = auditmemory.NewInMemoryStore()
	if cfg.AuditBackend == config.BackendPostgres {
		auditStore = auditpostgres.New(infra.db)
	}
	auditPublisher := publisher.NewPublisher(auditStore,
		publisher.WithAsyncBuffer(cfg.Dispatcher.QueueSize),
		publisher.WithLogger(log),
		publisher.WithMetrics(publisher.NewMetrics()),
	)
	defer auditPublisher.Close()

	notifyMetrics := notification.NewMetrics()
	breaker := circuit.New("notification-sink",
		circuit.WithFailureThreshold(cfg.Dispatcher.FailureThreshold),
		circuit.WithCooldown(cfg.Dispatcher.Cooldown),
	)
	var parked notification.RedeliveryQueue = notification.NewMemoryRedeliveryQueue()
	if infra.redis != nil {
		parked = notification.NewRedisRedeliveryQueue(infra.redis.Client)
	}
	dispatcher := notification.NewDispatcher(notifications,
		notification.WithRetry(cfg.Dispatcher.MaxAttempts, cfg.Dispatcher.BaseBackoff),
		notification.WithBreaker(breaker),
		notification.WithDispatcherLogger(log),
		notification.WithDispatcherMetrics(notifyMetrics),
		notification.WithDispatcherRedelivery(parked),
	)
	orchestrator := notification.NewOrchestrator(users, dispatcher,
		notification.WithQueueSize(cfg.Dispatcher.QueueSize),
		notification.WithWorkers(cfg.Dispatcher.Workers),
		notification.WithLogger(log),
		notification.WithMetrics(notifyMetrics),
		notification.WithRedelivery(parked),
	)
	redeliverer := notification.NewRedeliverer(parked, orchestrator,
		notification.WithRedeliveryInterval(cfg.Redelivery.Interval),
		notification.WithRedeliveryAttempts(cfg.Redelivery.MaxAttempts),
		notification.WithRedeliveryBatchSize(cfg.Redelivery.BatchSize),
		notification.WithRedeliveryBackoff(cfg.Redelivery.BaseBackoff, cfg.Redelivery.MaxBackoff),
		notification.WithRedeliveryLogger(log),
		notification.WithRedeliveryMetrics(notifyMetrics),
	)

	var queue reconcile.Queue = reconcile.NewMemoryQueue()
	if infra.redis != nil {
		queue = reconcile.NewRedisQueue(infra.redis.Client)
	}

	donationMetrics := donationmetrics.New()
	worker := reconcile.NewWorker(queue, users,
		reconcile.WithInterval(cfg.Reconcile.Interval),
		reconcile.WithMaxAttempts(cfg.Reconcile.MaxAttempts),
		reconcile.WithBatchSize(cfg.Reconcile.BatchSize),
		reconcile.WithBackoff(cfg.Reconcile.BaseBackoff, cfg.Reconcile.MaxBackoff),
		reconcile.WithLogger(log),
		reconcile.WithMetrics(donationMetrics),
	)

	donations, err := service.New(requests, users,
		service.WithLogger(log),
		service.WithMetrics(donationMetrics),
		service.WithNotifier(orchestrator),
		service.WithAuditPublisher(auditPublisher),
		service.WithReconcileQueue(queue),
	)
	if err != nil {
		return fmt.Errorf("build donation service: %w", err)
	}

	validator := jwttoken.NewValidator(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)
	router := newRouter(cfg, log, validator, handler.New(donations, log), buildLimiter(cfg, infra, log), infra.checks())
	srv := httpserver.New(cfg.Server.Addr, router)

	ln, err := net.Listen("tcp", cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.Addr, err)
	}
	log.Info("starting bloodlink", "addr", ln.Addr().String(),
		"store", cfg.Store, "sink", cfg.Sink, "users", cfg.UserBackend, "audit", cfg.AuditBackend)
	return serve(ctx, srv, ln, cfg.Server.ShutdownTimeout, orchestrator.Run, worker.Run, redeliverer.Run)
}

func buildRequestStore(ctx context.Context, cfg config.Config, infra *infrastructure) (service.Store, error) {
	switch cfg.Store {
	case config.BackendPostgres:
		return donationstore.NewPostgres(infra.db), nil
	case config.BackendMongo:
		s := donationstore.NewMongo(infra.mongo.DB)
		if err := s.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("ensure donation request indexes: %w", err)
		}
		return s, nil
	default:
		return donationstore.NewInMemoryStore(), nil
	}
}

func buildUserDirectory(ctx context.Context, cfg config.Config, infra *infrastructure, log *slog.Logger) (userstore.Directory, error) {
	var dir userstore.Directory
	switch cfg.UserBackend {
	case config.BackendPostgres:
		dir = userstore.NewPostgres(infra.db)
	default:
		mem := userstore.NewInMemoryStore()
		if cfg.UserSeedFile != "" {
			n, err := userstore.SeedFromFile(ctx, mem, cfg.UserSeedFile)
			if err != nil {
				return nil, err
			}
			log.Info("seeded user directory", "users", n, "file", cfg.UserSeedFile)
		}
		dir = mem
	}
	if infra.redis != nil && cfg.Redis.UserCacheTTL > 0 {
		dir = userstore.NewCachedDirectory(dir, infra.redis.Client, cfg.Redis.UserCacheTTL, userstore.WithCacheLogger(log))
	}
	return dir, nil
}

func buildLimiter(cfg config.Config, infra *infrastructure, log *slog.Logger) *ratelimit.Middleware {
	var buckets ratelimit.BucketStore = ratelimitstore.NewInMemoryBucketStore()
	if infra.redis != nil {
		buckets = ratelimitstore.NewRedisBucketStore(infra.redis.Client)
	}
	limits := map[ratelimitmodels.EndpointClass]ratelimitmodels.Limit{
		ratelimitmodels.ClassRead:  {Requests: cfg.RateLimit.ReadRequests, Window: cfg.RateLimit.Window},
		ratelimitmodels.ClassWrite: {Requests: cfg.RateLimit.WriteRequests, Window: cfg.RateLimit.Window},
	}
	return ratelimit.New(buckets, limits, log,
		ratelimit.WithDisabled(cfg.RateLimit.Disabled),
		ratelimit.WithMetrics(ratelimitmetrics.New()),
	)
}

func buildSink(cfg config.Config, infra *infrastructure) notification.Sink {
	switch cfg.Sink {
	case config.BackendPostgres:
		return sink.NewPostgres(infra.db)
	case config.BackendKafka:
		return sink.NewKafka(infra.kafka)
	default:
		return sink.NewMemory()
	}
}

// infrastructure holds the external connections selected by config. Fields
// are nil when no backend needs them.
type infrastructure struct {
	db    *sql.DB
	mongo *mongo.Client
	redis *redis.Client
	kafka *kafka.Producer
}

func connect(ctx context.Context, cfg config.Config, log *slog.Logger) (*infrastructure, error) {
	infra := &infrastructure{}
	usesPostgres := cfg.Store == config.BackendPostgres || cfg.Sink == config.BackendPostgres ||
		cfg.UserBackend == config.BackendPostgres || cfg.AuditBackend == config.BackendPostgres

	if usesPostgres {
		db, err := postgres.Open(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		infra.db = db
		if err := migrations.Apply(ctx, db, log); err != nil {
			infra.close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
	}
	if cfg.Store == config.BackendMongo {
		client, err := mongo.Connect(ctx, cfg.Mongo)
		if err != nil {
			infra.close()
			return nil, err
		}
		infra.mongo = client
	}
	if cfg.Sink == config.BackendKafka {
		producer, err := kafka.NewProducer(ctx, cfg.Kafka)
		if err != nil {
			infra.close()
			return nil, err
		}
		infra.kafka = producer
	}
	client, err := redis.New(ctx, cfg.Redis)
	if err != nil {
		infra.close()
		return nil, err
	}
	infra.redis = client
	return infra, nil
}

func (i *infrastructure) checks() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{}
	if i.db != nil {
		checks["postgres"] = i.db.PingContext
	}
	if i.mongo != nil {
		checks["mongo"] = i.mongo.Health
	}
	if i.redis != nil {
		checks["redis"] = i.redis.Health
	}
	if i.kafka != nil {
		checks["kafka"] = i.kafka.Health
	}
	return checks
}

func (i *infrastructure) close() {
	if i.kafka != nil {
		i.kafka.Close()
	}
	if i.redis != nil {
		_ = i.redis.Close()
	}
	if i.mongo != nil {
		_ = i.mongo.Disconnect(context.Background())
	}
	if i.db != nil {
		_ = i.db.Close()
	}
}

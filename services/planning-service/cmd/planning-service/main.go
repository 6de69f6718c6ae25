package main

import (
	"context"
	"net/http"
	"time"
	_ "time/tzdata"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/trainingplanner/libs/auth"
	"github.com/md-rashed-zaman/trainingplanner/libs/config"
	"github.com/md-rashed-zaman/trainingplanner/libs/db"
	"github.com/md-rashed-zaman/trainingplanner/libs/httpx"
	"github.com/md-rashed-zaman/trainingplanner/libs/kafkax"
	"github.com/md-rashed-zaman/trainingplanner/libs/lock"
	otelx "github.com/md-rashed-zaman/trainingplanner/libs/otel"
	"github.com/md-rashed-zaman/trainingplanner/libs/runtime"
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/availability"
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/calendar"
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/dedup"
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/events"
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/handlers"
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/jobs"
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/settings"
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/storage"
)

func main() {
	_ = config.LoadDotEnv(".env")
	cfg, err := settings.Load()
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(cfg.ServiceName)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.ServiceName))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	pool, err := db.Open(ctx, cfg.DatabaseURL, db.Options{MaxConns: int32(cfg.DBMaxConns)})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()
	if err := storage.Migrate(ctx, pool); err != nil {
		logger.Error("db migration failed", "err", err)
		panic(err)
	}

	repo := storage.NewRepository(pool, cfg.StoreMaxDeleteBatch)
	cal := calendar.New(cfg.Location)
	engine := availability.NewEngine(repo, cal, logger)
	maintainer := dedup.NewMaintainer(repo, dedup.Config{BatchSize: cfg.DedupBatchSize, DryRun: cfg.DedupDryRun}, logger)

	var (
		locker     lock.Locker   = lock.NewPostgres(pool)
		limiter    httpx.Limiter = httpx.NewMemoryLimiter(cfg.RateLimitPerMinute, time.Minute)
		redisReady func(context.Context) error
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()
		locker = lock.NewRedis(rdb, cfg.ServiceName+":lock")
		limiter = httpx.NewRedisLimiter(rdb, cfg.RateLimitPerMinute, time.Minute, cfg.ServiceName+":rl")
		redisReady = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		logger.Info("redis enabled", "addr", cfg.RedisAddr)
	}

	var publisher jobs.ReportPublisher = events.NopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		writer := kafkax.NewWriter(cfg.KafkaBrokers)
		defer func() { _ = writer.Close() }()
		publisher = events.NewKafkaPublisher(writer, cfg.KafkaReportTopic)
	}

	runner := jobs.NewRunner(maintainer, locker, publisher, logger, jobs.RunnerConfig{
		Schedule: cfg.DedupCron,
		Location: cfg.Location,
		LockTTL:  cfg.DedupLockTTL,
	})
	if err := runner.Start(ctx); err != nil {
		logger.Error("dedup scheduler failed", "err", err)
		panic(err)
	}

	if len(cfg.KafkaBrokers) > 0 {
		reader := kafkax.NewReader(kafkax.ReaderConfig{
			Brokers: cfg.KafkaBrokers,
			GroupID: cfg.KafkaGroupID,
			Topic:   cfg.KafkaConsumeTopic,
		})
		go events.NewConsumer(reader, runner, logger, events.ConsumerConfig{}).Run(ctx)
	}

	var verifier *auth.Verifier
	if cfg.AdminJWTSecret != "" || cfg.AdminJWKSURL != "" {
		var jwks *auth.JWKSClient
		if cfg.AdminJWKSURL != "" {
			jwks = auth.NewJWKSClient(cfg.AdminJWKSURL, 10*time.Minute)
		}
		verifier = auth.NewVerifier(cfg.AdminJWTSecret, jwks)
	} else {
		logger.Warn("no admin credentials configured; maintenance routes disabled")
	}

	if err := startGrpcServer(ctx, logger, cfg.GRPCPort, engine, runner, verifier); err != nil {
		logger.Error("grpc server failed", "err", err)
		panic(err)
	}

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "redis", Check: redisReady},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)},
	)
	var adminAuth func(http.Handler) http.Handler
	if verifier != nil {
		adminAuth = auth.RequireRole(verifier, "admin")
	}
	handlers.Register(mux,
		handlers.NewPlanningHandler(engine, repo, cfg.Slots, logger),
		handlers.NewAdminHandler(runner, logger),
		adminAuth,
	)

	var rateLimit httpx.Middleware
	if cfg.RateLimitPerMinute > 0 {
		rateLimit = httpx.WithRateLimit(limiter, logger, cfg.RateLimitFailOpen)
	}
	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-Id"},
			MaxAge:         10 * time.Minute,
		}),
		rateLimit,
		httpx.WithBodyLimit(int64(cfg.BodyLimitBytes)),
		httpx.WithTimeout(cfg.RequestTimeout),
	)
	handler = otelhttp.NewHandler(handler, "planning")
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	runtime.ServeHTTP(ctx, srv, logger, 10*time.Second)
}

package settings

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/md-rashed-zaman/trainingplanner/libs/config"
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/model"
	"github.com/md-rashed-zaman/trainingplanner/services/planning-service/internal/storage"
)

// Settings is everything the planning service reads from its environment.
type Settings struct {
	ServiceName string
	HTTPPort    string
	GRPCPort    string

	DatabaseURL string
	DBMaxConns  int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	KafkaBrokers      []string
	KafkaGroupID      string
	KafkaConsumeTopic string
	KafkaReportTopic  string

	Location *time.Location
	Slots    []model.Slot

	DedupBatchSize int
	// StoreMaxDeleteBatch is the repository's own delete limit. Batches
	// larger than this are refused with storage.ErrBatchTooLarge.
	StoreMaxDeleteBatch int
	DedupCron           string
	DedupLockTTL        time.Duration
	DedupDryRun         bool

	AdminJWTSecret string
	AdminJWKSURL   string

	RateLimitPerMinute int
	RateLimitFailOpen  bool
	CORSOrigins        []string
	RequestTimeout     time.Duration
	BodyLimitBytes     int
}

const defaultDedupCron = "30 3 * * *"

// Load reads and validates the environment. Every invalid key is reported
// in the returned error, not only the first.
func Load() (Settings, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	s := Settings{
		ServiceName:       config.String("SERVICE_NAME", "planning-service"),
		RedisAddr:         config.String("REDIS_ADDR", ""),
		RedisPassword:     config.String("REDIS_PASSWORD", ""),
		KafkaBrokers:      config.List("KAFKA_BROKERS", ""),
		KafkaGroupID:      config.String("KAFKA_GROUP_ID", "planning-service"),
		KafkaConsumeTopic: config.String("KAFKA_CONSUME_TOPIC", "planning.submitted.v1"),
		KafkaReportTopic:  config.String("KAFKA_REPORT_TOPIC", "planning.deduplicated.v1"),
		AdminJWTSecret:    config.String("ADMIN_JWT_SECRET", ""),
		AdminJWKSURL:      config.String("ADMIN_JWKS_URL", ""),
		CORSOrigins:       config.List("CORS_ALLOWED_ORIGINS", ""),
	}

	var err error
	s.HTTPPort, err = config.Port("PORT", "8090")
	collect(err)
	s.GRPCPort, err = config.Port("GRPC_PORT", "9095")
	collect(err)
	s.DatabaseURL, err = config.RequiredString("DATABASE_URL")
	collect(err)
	s.DBMaxConns, err = config.Int("DB_MAX_CONNS", 10)
	collect(err)
	s.RedisDB, err = config.Int("REDIS_DB", 0)
	collect(err)

	tz := config.String("PLANNING_TIMEZONE", "Europe/Paris")
	s.Location, err = time.LoadLocation(tz)
	if err != nil {
		collect(fmt.Errorf("PLANNING_TIMEZONE: unknown zone %q", tz))
	}
	for _, raw := range config.List("PLANNING_SLOTS", "morning,afternoon") {
		slot, err := model.ParseSlot(raw)
		if err != nil {
			collect(fmt.Errorf("PLANNING_SLOTS: %w", err))
			continue
		}
		s.Slots = append(s.Slots, slot)
	}
	if len(s.Slots) == 0 {
		collect(errors.New("PLANNING_SLOTS must list at least one slot"))
	}

	s.StoreMaxDeleteBatch, err = config.Int("STORE_MAX_DELETE_BATCH", storage.DefaultMaxDeleteBatch)
	collect(err)
	storeLimitOK := err == nil
	if storeLimitOK && s.StoreMaxDeleteBatch <= 0 {
		collect(errors.New("STORE_MAX_DELETE_BATCH must be positive"))
		storeLimitOK = false
	}
	s.DedupBatchSize, err = config.Int("DEDUP_BATCH_SIZE", 100)
	collect(err)
	switch {
	case err != nil:
	case s.DedupBatchSize <= 0:
		collect(errors.New("DEDUP_BATCH_SIZE must be positive"))
	case storeLimitOK && s.DedupBatchSize > s.StoreMaxDeleteBatch:
		collect(fmt.Errorf("DEDUP_BATCH_SIZE %d exceeds STORE_MAX_DELETE_BATCH %d", s.DedupBatchSize, s.StoreMaxDeleteBatch))
	}
	s.DedupCron, err = dedupSchedule()
	collect(err)
	s.DedupLockTTL, err = config.Duration("DEDUP_LOCK_TTL", 15*time.Minute)
	collect(err)
	s.DedupDryRun, err = config.Bool("DEDUP_DRY_RUN", false)
	collect(err)

	s.RateLimitPerMinute, err = config.Int("RATE_LIMIT_PER_MINUTE", 120)
	collect(err)
	s.RateLimitFailOpen, err = config.Bool("RATE_LIMIT_FAIL_OPEN", true)
	collect(err)
	s.RequestTimeout, err = config.Duration("REQUEST_TIMEOUT", 10*time.Second)
	collect(err)
	s.BodyLimitBytes, err = config.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20)
	collect(err)

	if err := errors.Join(errs...); err != nil {
		return Settings{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return s, nil
}

// dedupSchedule distinguishes an unset DEDUP_CRON (default schedule) from
// one set to "" or "off" (scheduling disabled).
func dedupSchedule() (string, error) {
	raw, ok := os.LookupEnv("DEDUP_CRON")
	if !ok {
		return defaultDedupCron, nil
	}
	raw = strings.TrimSpace(raw)
	switch strings.ToLower(raw) {
	case "", "off", "disabled", "none":
		return "", nil
	}
	if _, err := cron.ParseStandard(raw); err != nil {
		return "", fmt.Errorf("DEDUP_CRON: %w", err)
	}
	return raw, nil
}

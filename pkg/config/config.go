package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Collector    CollectorConfig
	Analytics    AnalyticsConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Collector.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ZABARDOO_APP_ENV" required:"true"`
	Port         string `envconfig:"ZABARDOO_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ZABARDOO_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ZABARDOO_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"ZABARDOO_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"ZABARDOO_DB_DSN"`
	Driver string `envconfig:"ZABARDOO_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ZABARDOO_DB_HOST"`
	LegacyPort     int    `envconfig:"ZABARDOO_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ZABARDOO_DB_USER"`
	LegacyPassword string `envconfig:"ZABARDOO_DB_PASSWORD"`
	LegacyName     string `envconfig:"ZABARDOO_DB_NAME"`
	LegacySSLMode  string `envconfig:"ZABARDOO_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ZABARDOO_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ZABARDOO_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ZABARDOO_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ZABARDOO_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ZABARDOO_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ZABARDOO_REDIS_ADDR"`
	Password     string        `envconfig:"ZABARDOO_REDIS_PASSWORD"`
	DB           int           `envconfig:"ZABARDOO_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ZABARDOO_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ZABARDOO_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ZABARDOO_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ZABARDOO_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ZABARDOO_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ZABARDOO_AUTO_MIGRATE" default:"false"`
}

type EventingConfig struct {
	IdempotencyTTL time.Duration `envconfig:"ZABARDOO_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"ZABARDOO_GCP_PROJECT_ID" required:"true"`
	CredentialsJSON        string `envconfig:"ZABARDOO_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"ZABARDOO_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	TrackingSubscription   string `envconfig:"ZABARDOO_PUBSUB_TRACKING_SUBSCRIPTION" required:"true"`
	MaxOutstandingMessages int    `envconfig:"ZABARDOO_PUBSUB_MAX_OUTSTANDING_MESSAGES" default:"500"`
	ReceiveGoroutines      int    `envconfig:"ZABARDOO_PUBSUB_RECEIVE_GOROUTINES" default:"2"`
}

type BigQueryConfig struct {
	Dataset     string `envconfig:"ZABARDOO_BIGQUERY_DATASET" default:"zabardoo"`
	EventsTable string `envconfig:"ZABARDOO_BIGQUERY_EVENTS_TABLE" default:"behavior_events"`

	MaxAttempts      int           `envconfig:"ZABARDOO_BIGQUERY_MAX_ATTEMPTS" default:"3"`
	InitialBackoff   time.Duration `envconfig:"ZABARDOO_BIGQUERY_INITIAL_BACKOFF" default:"250ms"`
	MaximumBackoff   time.Duration `envconfig:"ZABARDOO_BIGQUERY_MAXIMUM_BACKOFF" default:"2s"`
	BreakerFailures  uint32        `envconfig:"ZABARDOO_BIGQUERY_BREAKER_FAILURES" default:"5"`
	BreakerOpenDelay time.Duration `envconfig:"ZABARDOO_BIGQUERY_BREAKER_OPEN_DELAY" default:"30s"`
}

// CollectorConfig tunes ingestion: buffering, sessions and rule loading.
type CollectorConfig struct {
	BatchSize          int           `envconfig:"ZABARDOO_COLLECTOR_BATCH_SIZE" default:"100"`
	FlushInterval      time.Duration `envconfig:"ZABARDOO_COLLECTOR_FLUSH_INTERVAL" default:"5s"`
	FlushTimeout       time.Duration `envconfig:"ZABARDOO_COLLECTOR_FLUSH_TIMEOUT" default:"30s"`
	MaxPropertiesBytes int           `envconfig:"ZABARDOO_COLLECTOR_MAX_PROPERTIES_BYTES" default:"10240"`
	SessionGap         time.Duration `envconfig:"ZABARDOO_COLLECTOR_SESSION_GAP" default:"30m"`
	SessionTTL         time.Duration `envconfig:"ZABARDOO_COLLECTOR_SESSION_TTL" default:"24h"`
	ProfileCacheTTL    time.Duration `envconfig:"ZABARDOO_COLLECTOR_PROFILE_CACHE_TTL" default:"10m"`
	RulesFile          string        `envconfig:"ZABARDOO_COLLECTOR_RULES_FILE"`
	IngestRate         float64       `envconfig:"ZABARDOO_COLLECTOR_INGEST_RATE" default:"200"`
	IngestBurst        int           `envconfig:"ZABARDOO_COLLECTOR_INGEST_BURST" default:"400"`
}

func (c CollectorConfig) validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("%s must be positive", EnvCollectorBatchSize)
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("%s must be positive", EnvCollectorFlushInterval)
	}
	if c.MaxPropertiesBytes <= 0 {
		return fmt.Errorf("%s must be positive", EnvCollectorMaxPropertiesBytes)
	}
	return nil
}

// AnalyticsConfig tunes the funnel, cohort and forecast engines.
type AnalyticsConfig struct {
	QueryTimeout   time.Duration `envconfig:"ZABARDOO_ANALYTICS_QUERY_TIMEOUT" default:"30s"`
	FrictionGap    time.Duration `envconfig:"ZABARDOO_ANALYTICS_FRICTION_GAP" default:"24h"`
	TrendWindow    int           `envconfig:"ZABARDOO_ANALYTICS_TREND_WINDOW" default:"3"`
	DefaultPreset  string        `envconfig:"ZABARDOO_ANALYTICS_DEFAULT_PRESET" default:"90d"`
	SnapshotFunnel []string      `envconfig:"ZABARDOO_ANALYTICS_SNAPSHOT_FUNNELS"`
	SnapshotMetric []string      `envconfig:"ZABARDOO_ANALYTICS_SNAPSHOT_METRICS" default:"revenue,active_users"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"ZABARDOO_CRON_INTERVAL" default:"1h"`
	LockTTL  time.Duration `envconfig:"ZABARDOO_CRON_LOCK_TTL" default:"2h"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}

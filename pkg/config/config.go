package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App       AppConfig
	Service   ServiceConfig
	DB        DBConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Metering  MeteringConfig
	GCP       GCPConfig
	PubSub    PubSubConfig
	BigQuery  BigQueryConfig
	Cron      CronConfig
	Features  FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"QUOTAFLOW_APP_ENV" required:"true"`
	Port         string `envconfig:"QUOTAFLOW_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"QUOTAFLOW_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"QUOTAFLOW_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"QUOTAFLOW_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"QUOTAFLOW_DB_DSN"`
	Driver string `envconfig:"QUOTAFLOW_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"QUOTAFLOW_DB_HOST"`
	LegacyPort     int    `envconfig:"QUOTAFLOW_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"QUOTAFLOW_DB_USER"`
	LegacyPassword string `envconfig:"QUOTAFLOW_DB_PASSWORD"`
	LegacyName     string `envconfig:"QUOTAFLOW_DB_NAME"`
	LegacySSLMode  string `envconfig:"QUOTAFLOW_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"QUOTAFLOW_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"QUOTAFLOW_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"QUOTAFLOW_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"QUOTAFLOW_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"QUOTAFLOW_REDIS_URL" required:"true"`
	Address      string        `envconfig:"QUOTAFLOW_REDIS_ADDR"`
	Password     string        `envconfig:"QUOTAFLOW_REDIS_PASSWORD"`
	DB           int           `envconfig:"QUOTAFLOW_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"QUOTAFLOW_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"QUOTAFLOW_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"QUOTAFLOW_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"QUOTAFLOW_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"QUOTAFLOW_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"QUOTAFLOW_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"QUOTAFLOW_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"QUOTAFLOW_JWT_EXPIRATION_MINUTES" required:"true"`
}

type RateLimitConfig struct {
	IngestWindow time.Duration `envconfig:"QUOTAFLOW_RATE_LIMIT_INGEST_WINDOW" default:"1m"`
	IngestLimit  int           `envconfig:"QUOTAFLOW_RATE_LIMIT_INGEST_LIMIT" default:"600"`
}

// MeteringConfig tunes the entitlement core.
type MeteringConfig struct {
	// Timezone is the reference timezone used to resolve daily periods.
	Timezone string `envconfig:"QUOTAFLOW_METERING_TIMEZONE" default:"UTC"`
	// DedupTTL bounds how long a dedup key pins its recorded decision.
	DedupTTL time.Duration `envconfig:"QUOTAFLOW_METERING_DEDUP_TTL" default:"24h"`
	// JournalTTL bounds how long fail-open journal entries are retained.
	JournalTTL time.Duration `envconfig:"QUOTAFLOW_METERING_JOURNAL_TTL" default:"72h"`
	// LimitOverrides is a JSON object mapping "tier.metric" to a limit,
	// overriding the built-in plan registry defaults. -1 means unlimited.
	LimitOverrides string `envconfig:"QUOTAFLOW_METERING_LIMIT_OVERRIDES"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"QUOTAFLOW_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"QUOTAFLOW_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"QUOTAFLOW_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	UsageTopic        string `envconfig:"QUOTAFLOW_PUBSUB_USAGE_TOPIC" default:"qf-usage-events"`
	UsageSubscription string `envconfig:"QUOTAFLOW_PUBSUB_USAGE_SUBSCRIPTION"`
}

type BigQueryConfig struct {
	Dataset        string `envconfig:"QUOTAFLOW_BIGQUERY_DATASET" default:"quotaflow"`
	DecisionsTable string `envconfig:"QUOTAFLOW_BIGQUERY_DECISIONS_TABLE" default:"entitlement_decisions"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"QUOTAFLOW_FEATURE_AUTO_MIGRATE" default:"false"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"QUOTAFLOW_CRON_INTERVAL" default:"5m"`
	LockTTL  time.Duration `envconfig:"QUOTAFLOW_CRON_LOCK_TTL" default:"10m"`
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

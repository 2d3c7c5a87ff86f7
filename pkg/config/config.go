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
	DB        DBConfig
	Redis     RedisConfig
	AMQP      AMQPConfig
	JWT       JWTConfig
	Outbox    OutboxConfig
	Messaging MessagingConfig
	Payment   PaymentConfig
	Cache     CacheConfig
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
	Env          string `envconfig:"ECOM_APP_ENV" required:"true"`
	Port         string `envconfig:"ECOM_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ECOM_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ECOM_LOG_WARN_STACK" default:"false"`
	AutoMigrate  bool   `envconfig:"ECOM_AUTO_MIGRATE" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN string `envconfig:"ECOM_DB_DSN"`

	LegacyHost     string `envconfig:"ECOM_DB_HOST"`
	LegacyPort     int    `envconfig:"ECOM_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ECOM_DB_USER"`
	LegacyPassword string `envconfig:"ECOM_DB_PASSWORD"`
	LegacyName     string `envconfig:"ECOM_DB_NAME"`
	LegacySSLMode  string `envconfig:"ECOM_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ECOM_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ECOM_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ECOM_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ECOM_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ECOM_REDIS_URL"`
	Address      string        `envconfig:"ECOM_REDIS_ADDR"`
	Password     string        `envconfig:"ECOM_REDIS_PASSWORD"`
	DB           int           `envconfig:"ECOM_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ECOM_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ECOM_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ECOM_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"ECOM_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"ECOM_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type AMQPConfig struct {
	URL            string        `envconfig:"ECOM_AMQP_URL" required:"true"`
	PrefetchCount  int           `envconfig:"ECOM_AMQP_PREFETCH_COUNT" default:"10"`
	PublishTimeout time.Duration `envconfig:"ECOM_AMQP_PUBLISH_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret string `envconfig:"ECOM_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"ECOM_JWT_ISSUER" default:"ecom-auth"`
	// Role a caller must hold to create orders.
	RequiredRole string `envconfig:"ECOM_JWT_REQUIRED_ROLE" default:"buyer"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"ECOM_OUTBOX_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"ECOM_OUTBOX_POLL_MS" default:"2000"`
}

// PollInterval returns the dispatcher tick as a duration.
func (o OutboxConfig) PollInterval() time.Duration {
	if o.PollIntervalMS <= 0 {
		return 2 * time.Second
	}
	return time.Duration(o.PollIntervalMS) * time.Millisecond
}

type MessagingConfig struct {
	EventsExchange string        `envconfig:"ECOM_MESSAGING_EXCHANGE" default:"ecom.events"`
	RetryTTL       time.Duration `envconfig:"ECOM_MESSAGING_RETRY_TTL" default:"10s"`
	MaxRetries     int           `envconfig:"ECOM_MESSAGING_MAX_RETRIES" default:"3"`
}

type PaymentConfig struct {
	// Mode is SUCCESS, FAIL, or HASHED.
	Mode          string `envconfig:"ECOM_PAYMENT_MOCK_MODE" default:"HASHED"`
	FailureReason string `envconfig:"ECOM_PAYMENT_FAILURE_REASON" default:"MOCK_DECLINED"`
}

type CacheConfig struct {
	Enabled bool          `envconfig:"ECOM_CACHE_ENABLED" default:"true"`
	TTL     time.Duration `envconfig:"ECOM_CACHE_TTL" default:"5m"`
	Prefix  string        `envconfig:"ECOM_CACHE_PREFIX" default:"stock"`
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

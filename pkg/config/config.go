package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App       AppConfig
	Store     StoreConfig
	Secrets   SecretsConfig
	Redis     RedisConfig
	Sync      SyncConfig
	Orders    OrdersConfig
	Metrics   MetricsConfig
	DevServer DevServerConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"POS_APP_ENV" default:"dev"`
	LogLevel     string `envconfig:"POS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"POS_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type StoreConfig struct {
	Path        string        `envconfig:"POS_STORE_PATH" default:"pos.db"`
	BusyTimeout time.Duration `envconfig:"POS_STORE_BUSY_TIMEOUT" default:"5s"`
	AutoMigrate bool          `envconfig:"POS_STORE_AUTO_MIGRATE" default:"true"`
}

// SecretsConfig selects where the device bearer token is kept.
type SecretsConfig struct {
	Backend  string `envconfig:"POS_SECRETS_BACKEND" default:"file"`
	FilePath string `envconfig:"POS_SECRETS_FILE" default:"pos.secret"`
	// Passphrase feeds the key derivation for the file backend; the machine id is the salt.
	Passphrase string `envconfig:"POS_SECRETS_PASSPHRASE"`
	MachineID  string `envconfig:"POS_MACHINE_ID"`
}

type RedisConfig struct {
	URL          string        `envconfig:"POS_REDIS_URL"`
	Address      string        `envconfig:"POS_REDIS_ADDR"`
	Password     string        `envconfig:"POS_REDIS_PASSWORD"`
	DB           int           `envconfig:"POS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"POS_REDIS_POOL_SIZE" default:"4"`
	DialTimeout  time.Duration `envconfig:"POS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"POS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"POS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// Enabled reports whether any redis endpoint was configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

type SyncConfig struct {
	RequestTimeout time.Duration `envconfig:"POS_SYNC_REQUEST_TIMEOUT" default:"15s"`
	BackoffFloor   time.Duration `envconfig:"POS_SYNC_BACKOFF_FLOOR" default:"30s"`
	BackoffCeiling time.Duration `envconfig:"POS_SYNC_BACKOFF_CEILING" default:"5m"`
	PushBatchSize  int           `envconfig:"POS_SYNC_PUSH_BATCH_SIZE" default:"50"`
	SeedOrderLimit int           `envconfig:"POS_SYNC_SEED_ORDER_LIMIT" default:"200"`
}

type OrdersConfig struct {
	NumberStyle  string `envconfig:"POS_ORDER_NUMBER_STYLE" default:"short"`
	NumberPrefix string `envconfig:"POS_ORDER_NUMBER_PREFIX" default:"P"`
	// MoneyScale is the number of decimal places kept on every monetary value.
	MoneyScale int32 `envconfig:"POS_MONEY_SCALE" default:"3"`
}

type MetricsConfig struct {
	Addr string `envconfig:"POS_METRICS_ADDR"`
}

type DevServerConfig struct {
	Addr           string        `envconfig:"POS_DEVSERVER_ADDR" default:":8090"`
	BasePath       string        `envconfig:"POS_DEVSERVER_BASE_PATH" default:"/api/pos/v1"`
	SeedFile       string        `envconfig:"POS_DEVSERVER_SEED_FILE"`
	JWTSecret      string        `envconfig:"POS_DEVSERVER_JWT_SECRET" default:"dev-secret"`
	JWTIssuer      string        `envconfig:"POS_DEVSERVER_JWT_ISSUER" default:"pos-devserver"`
	TokenTTL       time.Duration `envconfig:"POS_DEVSERVER_TOKEN_TTL" default:"8760h"`
	IdempotencyTTL time.Duration `envconfig:"POS_DEVSERVER_IDEMPOTENCY_TTL" default:"720h"`
}

func (c *Config) validate() error {
	if c.Sync.BackoffFloor <= 0 {
		return fmt.Errorf("%s must be positive", EnvSyncBackoffFloor)
	}
	if c.Sync.BackoffCeiling < c.Sync.BackoffFloor {
		return fmt.Errorf("%s must not be below %s", EnvSyncBackoffCeiling, EnvSyncBackoffFloor)
	}
	if c.Orders.MoneyScale < 0 || c.Orders.MoneyScale > 6 {
		return fmt.Errorf("%s must be between 0 and 6", EnvMoneyScale)
	}
	switch strings.ToLower(c.Secrets.Backend) {
	case SecretsBackendFile, SecretsBackendMemory:
	case SecretsBackendRedis:
		if !c.Redis.Enabled() {
			return fmt.Errorf("%s=redis requires %s or %s", EnvSecretsBackend, EnvRedisURL, EnvRedisAddr)
		}
	default:
		return fmt.Errorf("unknown %s %q", EnvSecretsBackend, c.Secrets.Backend)
	}
	return nil
}

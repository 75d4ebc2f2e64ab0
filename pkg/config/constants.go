package config

const (
	EnvPrefix = "POS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv             = "POS_APP_ENV"
	EnvStorePath          = "POS_STORE_PATH"
	EnvSecretsBackend     = "POS_SECRETS_BACKEND"
	EnvRedisURL           = "POS_REDIS_URL"
	EnvRedisAddr          = "POS_REDIS_ADDR"
	EnvSyncBackoffFloor   = "POS_SYNC_BACKOFF_FLOOR"
	EnvSyncBackoffCeiling = "POS_SYNC_BACKOFF_CEILING"
	EnvMoneyScale         = "POS_MONEY_SCALE"
	EnvOrderNumberStyle   = "POS_ORDER_NUMBER_STYLE"

	SecretsBackendFile   = "file"
	SecretsBackendRedis  = "redis"
	SecretsBackendMemory = "memory"
)

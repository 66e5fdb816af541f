package config

// EnvPrefix is handed to envconfig; every field carries an explicit envconfig tag.
const EnvPrefix = "STOREFRONT"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	CartStorageRedis  = "redis"
	CartStorageSQL    = "sql"
	CartStorageMemory = "memory"
)

const (
	EnvAppEnv   = "STOREFRONT_APP_ENV"
	EnvPort     = "STOREFRONT_APP_PORT"
	EnvLogLevel = "STOREFRONT_LOG_LEVEL"

	EnvCartStorage   = "STOREFRONT_CART_STORAGE"
	EnvCartKeyPrefix = "STOREFRONT_CART_KEY_PREFIX"
	EnvCartTTL       = "STOREFRONT_CART_TTL"
	EnvCartRetention = "STOREFRONT_CART_RETENTION"

	EnvCartIdleTimeout   = "STOREFRONT_CART_IDLE_TIMEOUT"
	EnvCartSweepInterval = "STOREFRONT_CART_SWEEP_INTERVAL"

	EnvDBDSN        = "STOREFRONT_DB_DSN"
	EnvDBHost       = "STOREFRONT_DB_HOST"
	EnvDBUser       = "STOREFRONT_DB_USER"
	EnvDBName       = "STOREFRONT_DB_NAME"
	EnvDBSQLitePath = "STOREFRONT_DB_SQLITE_PATH"

	EnvRedisURL  = "STOREFRONT_REDIS_URL"
	EnvRedisAddr = "STOREFRONT_REDIS_ADDR"

	EnvBackendBaseURL = "STOREFRONT_BACKEND_BASE_URL"
	EnvBackendTimeout = "STOREFRONT_BACKEND_TIMEOUT"

	EnvSessionSecret = "STOREFRONT_SESSION_SECRET"
	EnvSessionTTL    = "STOREFRONT_SESSION_TTL"

	EnvUseSQLite   = "STOREFRONT_USE_SQLITE"
	EnvAutoMigrate = "STOREFRONT_AUTO_MIGRATE"
)

var discreteDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}

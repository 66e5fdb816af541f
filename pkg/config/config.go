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
	Cart         CartConfig
	DB           DBConfig
	Redis        RedisConfig
	Backend      BackendConfig
	Session      SessionConfig
	FeatureFlags FeatureFlagsConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Cart.validate(); err != nil {
		return nil, err
	}
	if cfg.Cart.Storage == CartStorageSQL {
		if err := cfg.DB.EnsureDSN(cfg.FeatureFlags.UseSQLite); err != nil {
			return nil, err
		}
	}
	if cfg.Cart.Storage == CartStorageRedis && cfg.Redis.URL == "" && cfg.Redis.Address == "" {
		return nil, fmt.Errorf("%s or %s is required when cart storage is %q", EnvRedisURL, EnvRedisAddr, CartStorageRedis)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string   `envconfig:"STOREFRONT_APP_ENV" required:"true"`
	Port         string   `envconfig:"STOREFRONT_APP_PORT" default:"8080"`
	LogLevel     string   `envconfig:"STOREFRONT_LOG_LEVEL" default:"info"`
	LogWarnStack bool     `envconfig:"STOREFRONT_LOG_WARN_STACK" default:"false"`
	LogFormat    string   `envconfig:"STOREFRONT_LOG_FORMAT" default:"json"`
	CORSOrigins  []string `envconfig:"STOREFRONT_CORS_ORIGINS" default:"http://localhost:5173"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

// CartConfig selects where cart snapshots live and how their keys are namespaced.
type CartConfig struct {
	Storage   string        `envconfig:"STOREFRONT_CART_STORAGE" default:"redis"`
	KeyPrefix string        `envconfig:"STOREFRONT_CART_KEY_PREFIX" default:"ecomm-cart"`
	TTL       time.Duration `envconfig:"STOREFRONT_CART_TTL" default:"720h"`

	// Retention and MaintenanceInterval drive pruning of SQL snapshots.
	Retention           time.Duration `envconfig:"STOREFRONT_CART_RETENTION" default:"720h"`
	MaintenanceInterval time.Duration `envconfig:"STOREFRONT_MAINTENANCE_INTERVAL" default:"1h"`

	// IdleTimeout and SweepInterval bound how long a session's store stays in memory
	// without being opened or mutated.
	IdleTimeout   time.Duration `envconfig:"STOREFRONT_CART_IDLE_TIMEOUT" default:"30m"`
	SweepInterval time.Duration `envconfig:"STOREFRONT_CART_SWEEP_INTERVAL" default:"1m"`

	// AllowClientItems accepts full catalog items in add-to-cart bodies.
	AllowClientItems bool `envconfig:"STOREFRONT_CART_ALLOW_CLIENT_ITEMS" default:"false"`
}

func (c CartConfig) validate() error {
	if c.IdleTimeout <= 0 || c.SweepInterval <= 0 {
		return fmt.Errorf("%s and %s must be positive", EnvCartIdleTimeout, EnvCartSweepInterval)
	}
	switch c.Storage {
	case CartStorageRedis, CartStorageSQL, CartStorageMemory:
		return nil
	}
	return fmt.Errorf("%s must be one of %s, %s, %s (got %q)", EnvCartStorage, CartStorageRedis, CartStorageSQL, CartStorageMemory, c.Storage)
}

type DBConfig struct {
	DSN    string `envconfig:"STOREFRONT_DB_DSN"`
	Driver string `envconfig:"STOREFRONT_DB_DRIVER" default:"postgres"`

	Host     string `envconfig:"STOREFRONT_DB_HOST"`
	Port     int    `envconfig:"STOREFRONT_DB_PORT" default:"5432"`
	User     string `envconfig:"STOREFRONT_DB_USER"`
	Password string `envconfig:"STOREFRONT_DB_PASSWORD"`
	Name     string `envconfig:"STOREFRONT_DB_NAME"`
	SSLMode  string `envconfig:"STOREFRONT_DB_SSLMODE" default:"disable"`

	SQLitePath string `envconfig:"STOREFRONT_DB_SQLITE_PATH" default:"storefront.db"`

	MaxOpenConns    int           `envconfig:"STOREFRONT_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns    int           `envconfig:"STOREFRONT_DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"STOREFRONT_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"STOREFRONT_REDIS_URL"`
	Address      string        `envconfig:"STOREFRONT_REDIS_ADDR"`
	Password     string        `envconfig:"STOREFRONT_REDIS_PASSWORD"`
	DB           int           `envconfig:"STOREFRONT_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"STOREFRONT_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"STOREFRONT_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"STOREFRONT_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"STOREFRONT_REDIS_WRITE_TIMEOUT" default:"3s"`
}

// Enabled reports whether any redis endpoint is configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != "" || r.Address != ""
}

// BackendConfig points at the REST backend that owns products and orders.
type BackendConfig struct {
	BaseURL         string        `envconfig:"STOREFRONT_BACKEND_BASE_URL" default:"http://localhost:3000"`
	Timeout         time.Duration `envconfig:"STOREFRONT_BACKEND_TIMEOUT" default:"10s"`
	ProductCacheTTL time.Duration `envconfig:"STOREFRONT_PRODUCT_CACHE_TTL" default:"1m"`
	APIToken        string        `envconfig:"STOREFRONT_BACKEND_API_TOKEN"`
}

// SessionConfig signs the cart-session cookie.
type SessionConfig struct {
	Secret     string        `envconfig:"STOREFRONT_SESSION_SECRET" required:"true"`
	Issuer     string        `envconfig:"STOREFRONT_SESSION_ISSUER" default:"storefront"`
	TTL        time.Duration `envconfig:"STOREFRONT_SESSION_TTL" default:"720h"`
	CookieName string        `envconfig:"STOREFRONT_SESSION_COOKIE" default:"sf_cart_session"`
	Secure     bool          `envconfig:"STOREFRONT_SESSION_COOKIE_SECURE" default:"true"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"STOREFRONT_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"STOREFRONT_AUTO_MIGRATE" default:"false"`
}

// EnsureDSN fills DSN from the discrete connection fields when it is not set.
func (db *DBConfig) EnsureDSN(useSQLite bool) error {
	if useSQLite {
		if db.SQLitePath == "" {
			return fmt.Errorf("%s is required when %s is set", EnvDBSQLitePath, EnvUseSQLite)
		}
		return nil
	}
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	values := map[string]string{
		EnvDBHost: db.Host,
		EnvDBUser: db.User,
		EnvDBName: db.Name,
	}
	for _, env := range discreteDBEnvVars {
		if values[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.User)
	if db.Password != "" {
		userInfo = url.UserPassword(db.User, db.Password)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.Host, db.Port),
		Path:   db.Name,
	}

	if db.SSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.SSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}

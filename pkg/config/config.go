package config

import (
	"time"
)

type DB struct {
	Url             string        `envconfig:"URL"`
	Driver          string        `envconfig:"DRIVER" default:"postgres"`
	MaxOpenConns    int           `envconfig:"MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"CONN_MAX_LIFETIME" default:"30m"`
	MigrationsPath  string        `envconfig:"MIGRATIONS_PATH" default:"infra/migrations"`
	AutoMigrate     bool          `envconfig:"AUTO_MIGRATE" default:"false"`
}

type Jwt struct {
	Secret string        `envconfig:"SECRET"`
	Issuer string        `envconfig:"ISSUER" default:"carefund"`
	Expiry time.Duration `envconfig:"EXPIRY" default:"24h"`
}

type Auth struct {
	Jwt *Jwt `envconfig:"JWT"`
}

type Redis struct {
	URL          string        `envconfig:"URL" default:"redis://localhost:6379/0"`
	KeyPrefix    string        `envconfig:"KEY_PREFIX" default:"carefund:"`
	PoolSize     int           `envconfig:"POOL_SIZE" default:"10"`
	DialTimeout  time.Duration `envconfig:"DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"3s"`
}

type EventBus struct {
	Driver      string   `envconfig:"DRIVER" default:"memory"`
	Stream      string   `envconfig:"STREAM" default:"carefund-events"`
	Group       string   `envconfig:"GROUP" default:"carefund"`
	Brokers     []string `envconfig:"BROKERS" default:"localhost:9092"`
	TopicPrefix string   `envconfig:"TOPIC_PREFIX" default:"carefund"`
	SASLUser    string   `envconfig:"SASL_USERNAME"`
	SASLPass    string   `envconfig:"SASL_PASSWORD"`
	TLSEnabled  bool     `envconfig:"TLS_ENABLED" default:"false"`
	TLSInsecure bool     `envconfig:"TLS_SKIP_VERIFY" default:"false"`
}

// RateLimit keys clients by peer address. ProxyHeader is only honoured for
// peers listed in TrustedProxies (IPs or CIDR ranges).
type RateLimit struct {
	MaxRequests    int           `envconfig:"MAX_REQUESTS" default:"100"`
	Window         time.Duration `envconfig:"WINDOW" default:"1m"`
	TrustedProxies []string      `envconfig:"TRUSTED_PROXIES"`
	ProxyHeader    string        `envconfig:"PROXY_HEADER" default:"X-Forwarded-For"`
}

// Ledger holds the currency and the category set new dependents are onboarded with.
type Ledger struct {
	Currency   string   `envconfig:"CURRENCY" default:"USD"`
	Categories []string `envconfig:"CATEGORIES" default:"healthcare,groceries,education,clothing,baby-care,entertainment,pregnancy,other"`
}

// Allocation configures the default percentage table, written as
// "healthcare:25,groceries:30". An empty table keeps deposits on the main
// account.
type Allocation struct {
	Default     string        `envconfig:"DEFAULT" default:""`
	CacheDriver string        `envconfig:"CACHE_DRIVER" default:"memory"`
	CacheTTL    time.Duration `envconfig:"CACHE_TTL" default:"5m"`
}

type Lock struct {
	Enabled    bool          `envconfig:"ENABLED" default:"false"`
	Expiry     time.Duration `envconfig:"EXPIRY" default:"10s"`
	Tries      int           `envconfig:"TRIES" default:"32"`
	RetryDelay time.Duration `envconfig:"RETRY_DELAY" default:"100ms"`
}

//revive:disable
type Stripe struct {
	SigningSecret string `envconfig:"SIGNING_SECRET"`
}

//revive:enable
// Metrics is read from METRICS_ENABLED and METRICS_ENDPOINT.
type Metrics struct {
	Enabled  bool   `envconfig:"ENABLED" default:"true"`
	Endpoint string `envconfig:"ENDPOINT" default:"/metrics"`
}

type Log struct {
	Level      int    `envconfig:"LEVEL" default:"0"`
	Format     string `envconfig:"FORMAT" default:"json"`
	TimeFormat string `envconfig:"TIME_FORMAT" default:"2006-01-02 15:04:05"`
	Prefix     string `envconfig:"PREFIX" default:"[carefund]"`
}

type Server struct {
	Scheme       string        `envconfig:"SCHEME" default:"http"`
	Host         string        `envconfig:"HOST" default:"localhost"`
	Port         int           `envconfig:"PORT" default:"3000"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`
}

type App struct {
	Env        string      `envconfig:"APP_ENV" default:"development"`
	Name       string      `envconfig:"APP_NAME" default:"carefund"`
	Server     *Server     `envconfig:"SERVER"`
	Log        *Log        `envconfig:"LOG"`
	DB         *DB         `envconfig:"DATABASE"`
	Auth       *Auth       `envconfig:"AUTH"`
	Redis      *Redis      `envconfig:"REDIS"`
	EventBus   *EventBus   `envconfig:"EVENT_BUS"`
	RateLimit  *RateLimit  `envconfig:"RATE_LIMIT"`
	Ledger     *Ledger     `envconfig:"LEDGER"`
	Allocation *Allocation `envconfig:"ALLOCATION"`
	Lock       *Lock       `envconfig:"LOCK"`
	Stripe     *Stripe     `envconfig:"STRIPE"`
	Metrics    *Metrics    `envconfig:"METRICS"`
}

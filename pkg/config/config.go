package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/multierr"
)

// Config is shared by every binary. Sections a binary does not use are
// still parsed so one env file serves the whole deployment.
type Config struct {
	App          AppConfig
	Service      ServiceConfig
	HTTP         HTTPConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Ingestion    IngestionConfig
	Poller       PollerConfig
	Matching     MatchingConfig
}

// Load reads every CONVTRACK_* variable and checks cross-field constraints.
// All problems are reported together.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.resolveDSN(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	var errs error
	if _, err := c.Ingestion.Location(); err != nil {
		errs = multierr.Append(errs, err)
	}
	if c.Poller.WindowDays < 1 {
		errs = multierr.Append(errs, fmt.Errorf("%s must be at least 1", EnvPollWindowDays))
	}
	if c.Poller.PageSize < 1 || c.Poller.PageSize > 1000 {
		errs = multierr.Append(errs, fmt.Errorf("poll page size %d outside 1..1000", c.Poller.PageSize))
	}
	if c.Poller.Interval <= 0 {
		errs = multierr.Append(errs, errors.New("poll interval must be positive"))
	}
	return errs
}

type AppConfig struct {
	Env          string `envconfig:"CONVTRACK_APP_ENV" required:"true"`
	Port         string `envconfig:"CONVTRACK_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"CONVTRACK_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"CONVTRACK_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "prod")
}

type ServiceConfig struct {
	Kind string `envconfig:"CONVTRACK_SERVICE_KIND" default:"api"`
}

type HTTPConfig struct {
	ReadHeaderTimeout time.Duration `envconfig:"CONVTRACK_HTTP_READ_HEADER_TIMEOUT" default:"5s"`
	ReadTimeout       time.Duration `envconfig:"CONVTRACK_HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout      time.Duration `envconfig:"CONVTRACK_HTTP_WRITE_TIMEOUT" default:"30s"`
	MaxBodyBytes      int64         `envconfig:"CONVTRACK_HTTP_MAX_BODY_BYTES" default:"1048576"`
	CORSOrigins       []string      `envconfig:"CONVTRACK_CORS_ALLOWED_ORIGINS"`
	TrustedProxies    []string      `envconfig:"CONVTRACK_TRUSTED_PROXIES"`
}

type DBConfig struct {
	DSN    string `envconfig:"CONVTRACK_DB_DSN"`
	Driver string `envconfig:"CONVTRACK_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"CONVTRACK_DB_HOST"`
	LegacyPort     int    `envconfig:"CONVTRACK_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"CONVTRACK_DB_USER"`
	LegacyPassword string `envconfig:"CONVTRACK_DB_PASSWORD"`
	LegacyName     string `envconfig:"CONVTRACK_DB_NAME"`
	LegacySSLMode  string `envconfig:"CONVTRACK_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"CONVTRACK_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"CONVTRACK_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"CONVTRACK_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"CONVTRACK_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"CONVTRACK_REDIS_URL"`
	Address      string        `envconfig:"CONVTRACK_REDIS_ADDR"`
	Password     string        `envconfig:"CONVTRACK_REDIS_PASSWORD"`
	DB           int           `envconfig:"CONVTRACK_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"CONVTRACK_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"CONVTRACK_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"CONVTRACK_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"CONVTRACK_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"CONVTRACK_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"CONVTRACK_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"CONVTRACK_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"CONVTRACK_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"CONVTRACK_AUTO_MIGRATE" default:"false"`
}

// IngestionConfig holds per-source credentials and adapter behavior.
type IngestionConfig struct {
	// SourceSecrets is a comma separated list of name:secret pairs.
	SourceSecrets    map[string]string `envconfig:"CONVTRACK_SOURCE_SECRETS"`
	PostbackSource   string            `envconfig:"CONVTRACK_POSTBACK_SOURCE" default:"postback"`
	PostbackAllowIPs []string          `envconfig:"CONVTRACK_POSTBACK_ALLOWED_IPS"`
	PollSecret       string            `envconfig:"CONVTRACK_POLL_SECRET"`
	SourceUTCOffset  string            `envconfig:"CONVTRACK_SOURCE_UTC_OFFSET" default:"+09:00"`
	ClaimTTL         time.Duration     `envconfig:"CONVTRACK_DELIVERY_CLAIM_TTL" default:"5m"`
}

// Location returns the fixed zone sources report local timestamps in.
func (i IngestionConfig) Location() (*time.Location, error) {
	return ParseUTCOffset(i.SourceUTCOffset)
}

type PollerConfig struct {
	SourceName  string        `envconfig:"CONVTRACK_POLL_SOURCE" default:"poll"`
	BaseURL     string        `envconfig:"CONVTRACK_POLL_BASE_URL"`
	APIKey      string        `envconfig:"CONVTRACK_POLL_API_KEY"`
	WindowDays  int           `envconfig:"CONVTRACK_POLL_WINDOW_DAYS" default:"7"`
	PageSize    int           `envconfig:"CONVTRACK_POLL_PAGE_SIZE" default:"100"`
	HTTPTimeout time.Duration `envconfig:"CONVTRACK_POLL_HTTP_TIMEOUT" default:"30s"`
	Interval    time.Duration `envconfig:"CONVTRACK_POLL_INTERVAL" default:"1h"`
	JobTimeout  time.Duration `envconfig:"CONVTRACK_POLL_JOB_TIMEOUT" default:"30m"`
}

type MatchingConfig struct {
	CandidateWindow time.Duration `envconfig:"CONVTRACK_MATCH_CANDIDATE_WINDOW" default:"24h"`
	TimeRangeWindow time.Duration `envconfig:"CONVTRACK_MATCH_TIME_RANGE_WINDOW" default:"24h"`
}

// ParseUTCOffset turns "+09:00" style offsets into a fixed zone.
func ParseUTCOffset(value string) (*time.Location, error) {
	raw := strings.TrimSpace(value)
	if raw == "" || strings.EqualFold(raw, "Z") || strings.EqualFold(raw, "UTC") {
		return time.UTC, nil
	}
	ref, err := time.Parse("-07:00", raw)
	if err != nil {
		return nil, fmt.Errorf("invalid utc offset %q: %w", value, err)
	}
	_, offset := ref.Zone()
	return time.FixedZone("UTC"+raw, offset), nil
}

// resolveDSN builds a postgres URL from the discrete CONVTRACK_DB_* variables
// when no DSN is given.
func (db *DBConfig) resolveDSN() error {
	if db.DSN != "" {
		return nil
	}

	var missing []string
	for env, value := range map[string]string{EnvDBHost: db.LegacyHost, EnvDBUser: db.LegacyUser, EnvDBName: db.LegacyName} {
		if value == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	dsn := url.URL{
		Scheme: "postgres",
		User:   url.User(db.LegacyUser),
		Host:   net.JoinHostPort(db.LegacyHost, strconv.Itoa(db.LegacyPort)),
		Path:   db.LegacyName,
	}
	if db.LegacyPassword != "" {
		dsn.User = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}
	if db.LegacySSLMode != "" {
		dsn.RawQuery = url.Values{"sslmode": {db.LegacySSLMode}}.Encode()
	}
	db.DSN = dsn.String()
	return nil
}

package configs

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Email      EmailConfig
	Teams      TeamsConfig
	SharePoint SharePointConfig
	Cache      CacheConfig
	Refresh    RefreshConfig
	Session    SessionConfig
	AutoStatus AutoStatusConfig
	Redis      RedisConfig
	Log        LogConfig
	RateLimit  RateLimitConfig
	Timezone   string
}

type ServerConfig struct {
	Host           string
	Port           string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	TLSCertFile    string
	TLSKeyFile     string
	AllowedOrigins []string
	Environment    string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	DSN      string
	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	MigrationsPath  string
}

type JWTConfig struct {
	Secret         string
	AccessTokenTTL time.Duration
}

type EmailConfig struct {
	SendGridAPIKey string
	FromEmail      string
	FromName       string
	AlertTo        []string
	MinSeverity    string
}

type TeamsConfig struct {
	WebhookURL string
	Timeout    time.Duration
}

type SharePointConfig struct {
	SiteURL        string
	DesviosList    string
	UsuariosList   string
	TenantID       string
	ClientID       string
	ClientSecret   string
	Timeout        time.Duration
	RetryMax       int
	RetryWaitMin   time.Duration
	RetryWaitMax   time.Duration
	RequestsPerSec float64
	PageLimit      int
}

// CacheConfig holds the TTL per dataset class. Dataset names are matched
// case-insensitively by substring, so "Desvios" and "DesviosArquivados" share
// the desvios TTL.
type CacheConfig struct {
	DefaultTTL       time.Duration
	DesviosTTL       time.Duration
	UsuariosTTL      time.Duration
	ConfiguracoesTTL time.Duration
	DashboardTTL     time.Duration
	MaxEntries       int
	SweepInterval    time.Duration
}

type RefreshConfig struct {
	Interval              time.Duration
	TypingTimeout         time.Duration
	FetchTimeout          time.Duration
	FailureAlertThreshold int
}

// SessionConfig controls how long an unwatched dashboard session survives.
type SessionConfig struct {
	IdleTimeout  time.Duration
	ReapInterval time.Duration
}

// AutoStatusConfig drives the sweep that closes unhandled desvios as Não Tratado.
type AutoStatusConfig struct {
	// Interval between sweeps; zero turns the sweep off.
	Interval time.Duration
	Limit    time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
	// Pool and timeout settings
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolTimeout  time.Duration
	IdleTimeout  time.Duration
	KeyPrefix    string
}

type LogConfig struct {
	Level  string
	Format string // json or text
}

type RateLimitConfig struct {
	DefaultRequestsPerMinute int
	BurstMultiplier          float64
	Window                   time.Duration
	KeyPrefix                string
}

// ConfigError reports a malformed or missing configuration value.
type ConfigError struct {
	Key    string
	Value  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("config %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("config %s=%q: %s", e.Key, e.Value, e.Reason)
}

// loader collects every malformed value so startup reports all of them at once.
type loader struct {
	errs []error
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	l := &loader{}
	cfg := &Config{
		Server: ServerConfig{
			Host:           getEnv("SERVER_HOST", "0.0.0.0"),
			Port:           getEnv("SERVER_PORT", "8080"),
			ReadTimeout:    l.durationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:   l.durationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:    l.durationEnv("SERVER_IDLE_TIMEOUT", 120*time.Second),
			TLSCertFile:    getEnv("TLS_CERT_FILE", ""),
			TLSKeyFile:     getEnv("TLS_KEY_FILE", ""),
			AllowedOrigins: getListEnv("ALLOWED_ORIGINS"),
			Environment:    getEnv("ENVIRONMENT", "production"),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnv("DB_PORT", "5432"),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			DBName:          getEnv("DB_NAME", "sentinela"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    l.intEnv("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    l.intEnv("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: l.durationEnv("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			ConnMaxIdleTime: l.durationEnv("DB_CONN_MAX_IDLE_TIME", 5*time.Minute),
			MigrationsPath:  getEnv("DB_MIGRATIONS_PATH", "./migrations"),
		},
		JWT: JWTConfig{
			Secret:         l.requiredEnv("JWT_SECRET"),
			AccessTokenTTL: l.durationEnv("JWT_ACCESS_TTL", 8*time.Hour),
		},
		Email: EmailConfig{
			SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
			FromEmail:      getEnv("FROM_EMAIL", "sentinela@example.com"),
			FromName:       getEnv("FROM_NAME", "Sistema Sentinela"),
			AlertTo:        getListEnv("ALERT_EMAIL_TO"),
			MinSeverity:    getEnv("ALERT_EMAIL_MIN_SEVERITY", "critical"),
		},
		Teams: TeamsConfig{
			WebhookURL: getEnv("TEAMS_WEBHOOK_URL", ""),
			Timeout:    l.durationEnv("TEAMS_TIMEOUT", 10*time.Second),
		},
		SharePoint: SharePointConfig{
			SiteURL:        l.requiredEnv("SHAREPOINT_SITE_URL"),
			DesviosList:    getEnv("SHAREPOINT_DESVIOS_LIST", "Desvios"),
			UsuariosList:   getEnv("SHAREPOINT_USUARIOS_LIST", "UsuariosPainelTorre"),
			TenantID:       getEnv("SHAREPOINT_TENANT_ID", ""),
			ClientID:       getEnv("SHAREPOINT_CLIENT_ID", ""),
			ClientSecret:   getEnv("SHAREPOINT_CLIENT_SECRET", ""),
			Timeout:        l.durationEnv("SHAREPOINT_TIMEOUT", 20*time.Second),
			RetryMax:       l.intEnv("SHAREPOINT_RETRY_MAX", 2),
			RetryWaitMin:   l.durationEnv("SHAREPOINT_RETRY_WAIT_MIN", 2*time.Second),
			RetryWaitMax:   l.durationEnv("SHAREPOINT_RETRY_WAIT_MAX", 10*time.Second),
			RequestsPerSec: l.floatEnv("SHAREPOINT_RPS", 5),
			PageLimit:      l.intEnv("SHAREPOINT_PAGE_LIMIT", 2000),
		},
		Cache: CacheConfig{
			DefaultTTL:       l.durationEnv("CACHE_DEFAULT_TTL", 300*time.Second),
			DesviosTTL:       l.durationEnv("CACHE_DESVIOS_TTL", 60*time.Second),
			UsuariosTTL:      l.durationEnv("CACHE_USUARIOS_TTL", 30*time.Minute),
			ConfiguracoesTTL: l.durationEnv("CACHE_CONFIGURACOES_TTL", time.Hour),
			DashboardTTL:     l.durationEnv("CACHE_DASHBOARD_TTL", 120*time.Second),
			MaxEntries:       l.intEnv("CACHE_MAX_ENTRIES", 1000),
			SweepInterval:    l.durationEnv("CACHE_SWEEP_INTERVAL", time.Minute),
		},
		Refresh: RefreshConfig{
			Interval:              l.durationEnv("REFRESH_INTERVAL", 600*time.Second),
			TypingTimeout:         l.durationEnv("REFRESH_TYPING_TIMEOUT", 0),
			FetchTimeout:          l.durationEnv("REFRESH_FETCH_TIMEOUT", 30*time.Second),
			FailureAlertThreshold: l.intEnv("REFRESH_FAILURE_ALERT_THRESHOLD", 3),
		},
		Session: SessionConfig{
			IdleTimeout:  l.durationEnv("SESSION_IDLE_TIMEOUT", 30*time.Minute),
			ReapInterval: l.durationEnv("SESSION_REAP_INTERVAL", time.Minute),
		},
		AutoStatus: AutoStatusConfig{
			Interval: l.durationEnv("AUTO_STATUS_INTERVAL", 5*time.Minute),
			Limit:    l.durationEnv("AUTO_STATUS_LIMIT", 2*time.Hour),
		},
		Redis: RedisConfig{
			Enabled:      l.boolEnv("REDIS_ENABLED", false),
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnv("REDIS_PORT", "6379"),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           l.intEnv("REDIS_DB", 0),
			PoolSize:     l.intEnv("REDIS_POOL_SIZE", 10),
			MinIdleConns: l.intEnv("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  l.durationEnv("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  l.durationEnv("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: l.durationEnv("REDIS_WRITE_TIMEOUT", 3*time.Second),
			PoolTimeout:  l.durationEnv("REDIS_POOL_TIMEOUT", 4*time.Second),
			IdleTimeout:  l.durationEnv("REDIS_IDLE_TIMEOUT", 5*time.Minute),
			KeyPrefix:    getEnv("REDIS_KEY_PREFIX", "sentinela"),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		RateLimit: RateLimitConfig{
			DefaultRequestsPerMinute: l.intEnv("RATE_LIMIT_RPM", 120),
			BurstMultiplier:          l.floatEnv("RATE_LIMIT_BURST", 2.0),
			Window:                   l.durationEnv("RATE_LIMIT_WINDOW", time.Minute),
			KeyPrefix:                getEnv("RATE_LIMIT_KEY_PREFIX", "ratelimit:actor"),
		},
		Timezone: getEnv("TIMEZONE", "America/Campo_Grande"),
	}

	// Build database DSN
	cfg.Database.DSN = fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.DBName,
		cfg.Database.SSLMode,
	)

	if err := errors.Join(l.errs...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values that parse but make no sense for the service.
func (c *Config) Validate() error {
	var errs []error
	positive := map[string]time.Duration{
		"CACHE_DEFAULT_TTL":       c.Cache.DefaultTTL,
		"CACHE_DESVIOS_TTL":       c.Cache.DesviosTTL,
		"CACHE_USUARIOS_TTL":      c.Cache.UsuariosTTL,
		"CACHE_CONFIGURACOES_TTL": c.Cache.ConfiguracoesTTL,
		"CACHE_DASHBOARD_TTL":     c.Cache.DashboardTTL,
		"REFRESH_INTERVAL":        c.Refresh.Interval,
		"REFRESH_FETCH_TIMEOUT":   c.Refresh.FetchTimeout,
		"SHAREPOINT_TIMEOUT":      c.SharePoint.Timeout,
		"JWT_ACCESS_TTL":          c.JWT.AccessTokenTTL,
		"SESSION_IDLE_TIMEOUT":    c.Session.IdleTimeout,
		"AUTO_STATUS_LIMIT":       c.AutoStatus.Limit,
	}
	for key, d := range positive {
		if d <= 0 {
			errs = append(errs, &ConfigError{Key: key, Value: d.String(), Reason: "must be positive"})
		}
	}
	if c.Refresh.TypingTimeout < 0 {
		errs = append(errs, &ConfigError{Key: "REFRESH_TYPING_TIMEOUT", Value: c.Refresh.TypingTimeout.String(), Reason: "must not be negative"})
	}
	if c.Session.ReapInterval < 0 {
		errs = append(errs, &ConfigError{Key: "SESSION_REAP_INTERVAL", Value: c.Session.ReapInterval.String(), Reason: "must not be negative"})
	}
	if c.AutoStatus.Interval < 0 {
		errs = append(errs, &ConfigError{Key: "AUTO_STATUS_INTERVAL", Value: c.AutoStatus.Interval.String(), Reason: "must not be negative"})
	}
	if c.Cache.SweepInterval < 0 {
		errs = append(errs, &ConfigError{Key: "CACHE_SWEEP_INTERVAL", Value: c.Cache.SweepInterval.String(), Reason: "must not be negative"})
	}
	if c.Cache.MaxEntries <= 0 {
		errs = append(errs, &ConfigError{Key: "CACHE_MAX_ENTRIES", Value: strconv.Itoa(c.Cache.MaxEntries), Reason: "must be positive"})
	}
	if c.Refresh.FailureAlertThreshold < 0 {
		errs = append(errs, &ConfigError{Key: "REFRESH_FAILURE_ALERT_THRESHOLD", Value: strconv.Itoa(c.Refresh.FailureAlertThreshold), Reason: "must not be negative"})
	}
	if c.SharePoint.SiteURL != "" {
		if u, err := url.Parse(c.SharePoint.SiteURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, &ConfigError{Key: "SHAREPOINT_SITE_URL", Value: c.SharePoint.SiteURL, Reason: "must be an absolute URL"})
		}
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, &ConfigError{Key: "TIMEZONE", Value: c.Timezone, Reason: "unknown time zone"})
	}
	if c.SharePoint.RequestsPerSec <= 0 {
		errs = append(errs, &ConfigError{Key: "SHAREPOINT_RPS", Value: strconv.FormatFloat(c.SharePoint.RequestsPerSec, 'f', -1, 64), Reason: "must be positive"})
	}
	return errors.Join(errs...)
}

// Location returns the configured time zone, UTC when it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// TTLFor returns the TTL of the dataset class the given list belongs to.
func (c CacheConfig) TTLFor(dataset string) time.Duration {
	name := strings.ToLower(dataset)
	switch {
	case strings.Contains(name, "desvios"):
		return c.DesviosTTL
	case strings.Contains(name, "usuarios"):
		return c.UsuariosTTL
	case strings.Contains(name, "configuracoes"):
		return c.ConfiguracoesTTL
	case strings.Contains(name, "dashboard"):
		return c.DashboardTTL
	}
	return c.DefaultTTL
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getListEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (l *loader) requiredEnv(key string) string {
	value := os.Getenv(key)
	if value == "" {
		l.errs = append(l.errs, &ConfigError{Key: key, Reason: "required environment variable is not set"})
	}
	return value
}

func (l *loader) intEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		l.errs = append(l.errs, &ConfigError{Key: key, Value: value, Reason: "not an integer"})
		return defaultValue
	}
	return intValue
}

func (l *loader) boolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		l.errs = append(l.errs, &ConfigError{Key: key, Value: value, Reason: "not a boolean"})
		return defaultValue
	}
	return b
}

// durationEnv accepts Go duration strings ("90s", "10m") and bare integers as seconds.
func (l *loader) durationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		l.errs = append(l.errs, &ConfigError{Key: key, Value: value, Reason: "not a duration"})
		return defaultValue
	}
	return d
}

func (l *loader) floatEnv(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		l.errs = append(l.errs, &ConfigError{Key: key, Value: value, Reason: "not a number"})
		return defaultValue
	}
	return f
}

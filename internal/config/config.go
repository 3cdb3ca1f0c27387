// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes settings for the HTTP
// server, logging, persistence, the payment and video providers, the
// notification idempotency cache, the expiry sweep, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// Application environments.
const (
	EnvDevelopment = "development"
	EnvStaging     = "staging"
	EnvProduction  = "production"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// DatabaseConfig selects the SQL driver and its connection parameters.
type DatabaseConfig struct {
	Driver string // sqlite|mysql|postgres
	Path   string // sqlite file path
	DSN    string // mysql/postgres DSN
}

// AuthConfig holds JWT settings for bearer authentication.
type AuthConfig struct {
	JWTSecret string
	AccessTTL time.Duration
}

// MercadoPagoConfig holds payment gateway credentials and webhook policy.
type MercadoPagoConfig struct {
	AccessToken   string
	WebhookSecret string
	BaseURL       string
	Timeout       time.Duration
	// AllowUnsigned lets webhooks through when no secret is configured.
	// Rejected by validation in production.
	AllowUnsigned bool
}

// IdempotencyConfig selects the notification cache backend.
type IdempotencyConfig struct {
	Backend  string // memory|redis|database
	Capacity int    // memory: max entries before eviction
	Evict    int    // memory: entries dropped per eviction
	TTL      time.Duration
}

// RedisConfig holds connection settings for the shared cache.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// VimeoConfig holds video provider credentials and upload polling policy.
type VimeoConfig struct {
	AccessToken  string
	BaseURL      string
	Timeout      time.Duration
	PollInterval time.Duration
	PollAttempts int
	EmbedDomains []string
}

// UploadConfig controls handling of multipart video uploads.
type UploadConfig struct {
	Dir      string
	MaxBytes int64
}

// S3Config configures the optional archive of uploaded source files.
type S3Config struct {
	Enabled         bool
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

// SweepConfig schedules the entitlement expiry sweep.
type SweepConfig struct {
	Enabled  bool
	Cron     string
	Timezone string
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	AppEnv              string        // development|staging|production
	EntitlementDuration time.Duration // validity of a purchased entitlement

	// Rate limiting
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	DB          DatabaseConfig
	Auth        AuthConfig
	MercadoPago MercadoPagoConfig
	Idempotency IdempotencyConfig
	Redis       RedisConfig
	Vimeo       VimeoConfig
	Upload      UploadConfig
	S3          S3Config
	Sweep       SweepConfig

	// Observability
	OTEL OTELConfig
}

// IsProduction reports whether the service runs with APP_ENV=production.
func (c Config) IsProduction() bool { return c.AppEnv == EnvProduction }

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		AppEnv:              strings.ToLower(getenv("APP_ENV", EnvDevelopment)),
		EntitlementDuration: getdur("ENTITLEMENT_DURATION", 365*24*time.Hour),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		DB: DatabaseConfig{
			Driver: strings.ToLower(getenv("DB_DRIVER", "sqlite")),
			Path:   getenv("DB_PATH", "app.db"),
			DSN:    getenv("DB_DSN", ""),
		},
		Auth: AuthConfig{
			JWTSecret: getenv("JWT_SECRET", ""),
			AccessTTL: getdur("JWT_ACCESS_TTL", 24*time.Hour),
		},
		MercadoPago: MercadoPagoConfig{
			AccessToken:   getenv("MP_ACCESS_TOKEN", ""),
			WebhookSecret: getenv("MP_WEBHOOK_SECRET", ""),
			BaseURL:       strings.TrimRight(getenv("MP_BASE_URL", "https://api.mercadopago.com"), "/"),
			Timeout:       getdur("MP_TIMEOUT", 15*time.Second),
			AllowUnsigned: getbool("MP_ALLOW_UNSIGNED_WEBHOOKS", false),
		},
		Idempotency: IdempotencyConfig{
			Backend:  strings.ToLower(getenv("IDEMPOTENCY_BACKEND", "memory")),
			Capacity: getint("IDEMPOTENCY_CAPACITY", 1000),
			Evict:    getint("IDEMPOTENCY_EVICT", 100),
			TTL:      getdur("IDEMPOTENCY_TTL", 24*time.Hour),
		},
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
		},
		Vimeo: VimeoConfig{
			AccessToken:  getenv("VIMEO_ACCESS_TOKEN", ""),
			BaseURL:      strings.TrimRight(getenv("VIMEO_BASE_URL", "https://api.vimeo.com"), "/"),
			Timeout:      getdur("VIMEO_TIMEOUT", 30*time.Second),
			PollInterval: getdur("VIMEO_POLL_INTERVAL", 10*time.Second),
			PollAttempts: getint("VIMEO_POLL_ATTEMPTS", 30),
			EmbedDomains: splitCSV(getenv("VIMEO_EMBED_DOMAINS", "")),
		},
		Upload: UploadConfig{
			Dir:      getenv("UPLOAD_DIR", os.TempDir()),
			MaxBytes: int64(getint("UPLOAD_MAX_BYTES", 2<<30)),
		},
		S3: S3Config{
			Enabled:         getbool("S3_ENABLED", false),
			Bucket:          getenv("S3_BUCKET", ""),
			Region:          getenv("S3_REGION", "us-east-1"),
			Endpoint:        getenv("S3_ENDPOINT", ""),
			AccessKeyID:     getenv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getenv("S3_SECRET_ACCESS_KEY", ""),
		},
		Sweep: SweepConfig{
			Enabled:  getbool("SWEEP_ENABLED", true),
			Cron:     getenv("SWEEP_CRON", "0 3 * * *"),
			Timezone: getenv("SWEEP_TIMEZONE", "America/Argentina/Buenos_Aires"),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "course-platform-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	switch cfg.AppEnv {
	case "prod":
		cfg.AppEnv = EnvProduction
	case "dev", "local":
		cfg.AppEnv = EnvDevelopment
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	switch cfg.AppEnv {
	case EnvDevelopment, EnvStaging, EnvProduction:
	default:
		return cfg, errors.New("APP_ENV must be one of: development, staging, production")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	switch cfg.DB.Driver {
	case "sqlite":
		if strings.TrimSpace(cfg.DB.Path) == "" {
			return cfg, errors.New("DB_PATH must not be empty")
		}
	case "mysql", "postgres":
		if strings.TrimSpace(cfg.DB.DSN) == "" {
			return cfg, errors.New("DB_DSN must not be empty for mysql/postgres")
		}
	default:
		return cfg, errors.New("DB_DRIVER must be one of: sqlite, mysql, postgres")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.EntitlementDuration <= 0 {
		return cfg, errors.New("ENTITLEMENT_DURATION must be > 0")
	}
	if cfg.Auth.AccessTTL <= 0 {
		return cfg, errors.New("JWT_ACCESS_TTL must be > 0")
	}
	if cfg.IsProduction() && strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return cfg, errors.New("JWT_SECRET must be set in production")
	}
	if cfg.MercadoPago.Timeout <= 0 || cfg.Vimeo.Timeout <= 0 {
		return cfg, errors.New("provider timeouts must be positive durations")
	}
	if cfg.IsProduction() && cfg.MercadoPago.AllowUnsigned {
		return cfg, errors.New("MP_ALLOW_UNSIGNED_WEBHOOKS must not be enabled in production")
	}
	switch cfg.Idempotency.Backend {
	case "memory", "redis", "database":
	default:
		return cfg, errors.New("IDEMPOTENCY_BACKEND must be one of: memory, redis, database")
	}
	if cfg.Idempotency.Capacity < 1 {
		return cfg, errors.New("IDEMPOTENCY_CAPACITY must be >= 1")
	}
	if cfg.Idempotency.Evict < 1 || cfg.Idempotency.Evict > cfg.Idempotency.Capacity {
		return cfg, errors.New("IDEMPOTENCY_EVICT must be in [1, IDEMPOTENCY_CAPACITY]")
	}
	if cfg.Idempotency.TTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.Vimeo.PollInterval <= 0 || cfg.Vimeo.PollAttempts < 1 {
		return cfg, errors.New("VIMEO_POLL_INTERVAL must be > 0 and VIMEO_POLL_ATTEMPTS >= 1")
	}
	if cfg.Upload.MaxBytes <= 0 {
		return cfg, errors.New("UPLOAD_MAX_BYTES must be > 0")
	}
	if cfg.S3.Enabled && strings.TrimSpace(cfg.S3.Bucket) == "" {
		return cfg, errors.New("S3_BUCKET must be set when S3_ENABLED")
	}
	if cfg.Sweep.Enabled {
		if strings.TrimSpace(cfg.Sweep.Cron) == "" {
			return cfg, errors.New("SWEEP_CRON must not be empty")
		}
		if _, err := time.LoadLocation(cfg.Sweep.Timezone); err != nil {
			return cfg, errors.New("SWEEP_TIMEZONE must be a valid IANA zone")
		}
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}

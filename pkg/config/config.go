package config

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server struct {
		Port     string
		GRPCPort string
		Env      string
		Timeout  time.Duration
	}

	Database struct {
		// Driver is postgres or sqlite
		Driver   string
		Host     string
		Port     string
		User     string
		Password string
		Name     string
		SSLMode  string
		// SQLitePath is used when Driver is sqlite
		SQLitePath string
		MaxConns   int
		Retries    int
		RetryDelay time.Duration
	}

	JWT struct {
		Secret        string
		Expiry        time.Duration
		VisitorExpiry time.Duration
	}

	Security struct {
		RateLimit      float64
		RateLimitBurst int
		AllowedOrigins []string
		TrustedProxies []string
		MaxBodySize    int64
	}

	Logging struct {
		Level  string
		Format string
	}

	Messaging struct {
		ListPageSize     int
		AnonymousName    string
		MaxContentLength int
	}

	// Storage controls how attachment paths become URLs.
	Storage struct {
		// Resolver is static or gcs
		Resolver        string
		BaseURL         string
		Bucket          string
		CDNDomain       string
		CredentialsFile string
		SignedURLTTL    time.Duration
	}

	Cache struct {
		RedisEnabled bool
		RedisURL     string
		TTL          time.Duration
		MaxSize      int
		PurgeWindow  time.Duration
	}

	Vault struct {
		Enabled    bool
		Address    string
		Token      string
		MountPath  string
		SecretPath string
	}

	Observability struct {
		ServiceName    string
		MetricsPort    string
		TracingEnabled bool
	}

	// OpenAPISpec is the path of the schema requests are validated against.
	// Empty disables validation.
	OpenAPISpec string
}

var (
	instance *Config
	once     sync.Once
)

// New loads the configuration once and returns the shared instance.
func New() *Config {
	once.Do(func() {
		// a missing .env file is fine
		_ = godotenv.Load()
		instance = Load()
	})
	return instance
}

// Get returns the singleton Config instance
func Get() *Config {
	if instance == nil {
		return New()
	}
	return instance
}

// Load reads the configuration from the environment without touching the
// singleton.
func Load() *Config {
	cfg := &Config{}

	cfg.Server.Port = getEnvString("PORT", "8081")
	cfg.Server.GRPCPort = getEnvString("GRPC_PORT", "9090")
	cfg.Server.Env = getEnvString("APP_ENV", "development")
	cfg.Server.Timeout = getEnvDuration("SERVER_TIMEOUT", 30*time.Second)

	cfg.Database.Driver = getEnvString("DB_DRIVER", "postgres")
	cfg.Database.Host = getEnvString("DB_HOST", "localhost")
	cfg.Database.Port = getEnvString("DB_PORT", "5432")
	cfg.Database.User = getEnvString("DB_USER", "postgres")
	cfg.Database.Password = getEnvString("DB_PASSWORD", "postgres")
	cfg.Database.Name = getEnvString("DB_NAME", "messaging")
	cfg.Database.SSLMode = getEnvString("DB_SSL_MODE", "disable")
	cfg.Database.SQLitePath = getEnvString("DB_SQLITE_PATH", "messaging.db")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 20)
	cfg.Database.Retries = getEnvInt("DB_RETRIES", 5)
	cfg.Database.RetryDelay = getEnvDuration("DB_RETRY_DELAY", 5*time.Second)

	cfg.JWT.Secret = getEnvString("JWT_SECRET", "")
	cfg.JWT.Expiry = getEnvDuration("JWT_EXPIRY", 24*time.Hour)
	cfg.JWT.VisitorExpiry = getEnvDuration("JWT_VISITOR_EXPIRY", 30*24*time.Hour)

	cfg.Security.RateLimit = getEnvFloat("RATE_LIMIT", 5)
	cfg.Security.RateLimitBurst = getEnvInt("RATE_LIMIT_BURST", 10)
	cfg.Security.AllowedOrigins = getEnvStringSlice("ALLOWED_ORIGINS", []string{"*"})
	cfg.Security.TrustedProxies = getEnvStringSlice("TRUSTED_PROXIES", []string{"127.0.0.1"})
	cfg.Security.MaxBodySize = getEnvInt64("MAX_BODY_SIZE", 1<<20)

	cfg.Logging.Level = getEnvString("LOG_LEVEL", "info")
	cfg.Logging.Format = getEnvString("LOG_FORMAT", "json")

	cfg.Messaging.ListPageSize = getEnvInt("CONVERSATION_PAGE_SIZE", 50)
	cfg.Messaging.AnonymousName = getEnvString("ANONYMOUS_DISPLAY_NAME", "Anonymous visitor")
	cfg.Messaging.MaxContentLength = getEnvInt("MAX_MESSAGE_LENGTH", 4000)

	cfg.Storage.Resolver = getEnvString("ATTACHMENT_RESOLVER", "static")
	cfg.Storage.BaseURL = getEnvString("ATTACHMENT_BASE_URL", "")
	cfg.Storage.Bucket = getEnvString("GCS_BUCKET_NAME", "")
	cfg.Storage.CDNDomain = getEnvString("CDN_DOMAIN", "")
	cfg.Storage.CredentialsFile = getEnvString("GOOGLE_APPLICATION_CREDENTIALS", "")
	cfg.Storage.SignedURLTTL = getEnvDuration("ATTACHMENT_SIGNED_URL_TTL", 0)

	cfg.Cache.RedisEnabled = getEnvBool("REDIS_ENABLED", false)
	cfg.Cache.RedisURL = getEnvString("REDIS_URL", "localhost:6379")
	cfg.Cache.TTL = getEnvDuration("CACHE_TTL", 10*time.Minute)
	cfg.Cache.MaxSize = getEnvInt("CACHE_MAX_SIZE", 10000)
	cfg.Cache.PurgeWindow = getEnvDuration("CACHE_PURGE_WINDOW", 10*time.Minute)

	cfg.Vault.Enabled = getEnvBool("VAULT_ENABLED", false)
	cfg.Vault.Address = getEnvString("VAULT_ADDR", "http://127.0.0.1:8200")
	cfg.Vault.Token = getEnvString("VAULT_TOKEN", "")
	cfg.Vault.MountPath = getEnvString("VAULT_MOUNT_PATH", "secret")
	cfg.Vault.SecretPath = getEnvString("VAULT_SECRET_PATH", "provider-messaging")

	cfg.Observability.ServiceName = getEnvString("SERVICE_NAME", "provider-messaging")
	cfg.Observability.MetricsPort = getEnvString("METRICS_PORT", "2112")
	cfg.Observability.TracingEnabled = getEnvBool("TRACING_ENABLED", false)

	cfg.OpenAPISpec = getEnvString("OPENAPI_SPEC", "api/openapi.yaml")

	return cfg
}

// IsDevelopment reports whether the service runs in the development environment.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

func getEnvString(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

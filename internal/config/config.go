package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Event bus drivers.
const (
	BusDriverMemory   = "memory"
	BusDriverRedis    = "redis"
	BusDriverPostgres = "postgres"
)

// Config is the typed view of the environment used by the server, the CLI and the workers.
type Config struct {
	Env      string
	Port     string
	LogLevel string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	DBMaxIdleConns    int
	DBMaxOpenConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	JWTSecret     string
	RefreshSecret string

	CORSOrigins string

	EventBusDriver string

	ReconcileInterval    time.Duration
	ReconcileTimeout     time.Duration
	ReconcileMaxAttempts int
	ReconcileBatchSize   int
	ExpirySweepInterval  time.Duration

	StripeSecretKey string
}

// LoadEnv loads variables from a .env file if present.
func LoadEnv() {
	if err := godotenv.Load(); err != nil {
		log.Printf("no .env file found: %v", err)
	}
}

// Load reads the environment into a Config, applying defaults.
func Load() *Config {
	return &Config{
		Env:      GetEnv("ENV", "development"),
		Port:     GetEnv("PORT", "3000"),
		LogLevel: GetEnv("LOG_LEVEL", "info"),

		DBHost:     GetEnv("DB_HOST", "localhost"),
		DBPort:     GetEnv("DB_PORT", "5432"),
		DBUser:     GetEnv("DB_USER", "postgres"),
		DBPassword: GetEnv("DB_PASSWORD", "postgres"),
		DBName:     GetEnv("DB_NAME", "disputedesk"),
		DBSSLMode:  GetEnv("DB_SSLMODE", "disable"),

		DBMaxIdleConns:    GetIntEnv("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns:    GetIntEnv("DB_MAX_OPEN_CONNS", 100),
		DBConnMaxLifetime: GetDurationEnv("DB_CONN_MAX_LIFETIME", time.Hour),
		DBConnMaxIdleTime: GetDurationEnv("DB_CONN_MAX_IDLE_TIME", 30*time.Minute),

		RedisHost:     GetEnv("REDIS_HOST", "localhost"),
		RedisPort:     GetEnv("REDIS_PORT", "6379"),
		RedisPassword: GetEnv("REDIS_PASSWORD", ""),
		RedisDB:       GetIntEnv("REDIS_DB", 0),

		JWTSecret:     GetEnv("JWT_SECRET", "disputedesk"),
		RefreshSecret: GetEnv("REFRESH_SECRET", "disputedesk-refresh"),

		CORSOrigins: GetEnv("CORS_ORIGINS", "http://localhost:5173"),

		EventBusDriver: strings.ToLower(GetEnv("EVENT_BUS_DRIVER", BusDriverRedis)),

		ReconcileInterval:    GetDurationEnv("RECONCILE_INTERVAL", 30*time.Second),
		ReconcileTimeout:     GetDurationEnv("RECONCILE_TIMEOUT", 2*time.Minute),
		ReconcileMaxAttempts: GetIntEnv("RECONCILE_MAX_ATTEMPTS", 5),
		ReconcileBatchSize:   GetIntEnv("RECONCILE_BATCH_SIZE", 100),
		ExpirySweepInterval:  GetDurationEnv("EXPIRY_SWEEP_INTERVAL", time.Minute),

		StripeSecretKey: GetEnv("STRIPE_SECRET_KEY", ""),
	}
}

// DSN builds the key/value Postgres connection string understood by both pgx and lib/pq.
func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode
}

// RedisAddr returns host:port for the Redis client.
func (c *Config) RedisAddr() string {
	return c.RedisHost + ":" + c.RedisPort
}

// IsProduction checks if the app runs in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// GetEnv returns an environment variable or a default value.
func GetEnv(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return defaultVal
}

// GetIntEnv returns an int environment variable or a default value.
func GetIntEnv(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

// GetDurationEnv returns a time.Duration environment variable or a default value.
func GetDurationEnv(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// IsProduction checks if the app runs in production mode.
func IsProduction() bool {
	return GetEnv("ENV", "development") == "production"
}

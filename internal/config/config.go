package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"taxi-dispatch/internal/fare"
)

type Config struct {
	DatabaseURL    string
	MigrationsDir  string
	JWTSecret      string
	JWTTTL         time.Duration
	AdminSecret    string
	HTTPAddr       string
	GRPCAddr       string
	MigrateOnStart bool
	DBLockTimeout  time.Duration

	HeartbeatWindow time.Duration

	FareStrategy fare.Strategy
	FareRates    fare.Rates
	Currency     string

	MapboxToken    string
	MapboxBaseURL  string
	RoutingTimeout time.Duration
	RedisURL       string
	RouteCacheTTL  time.Duration

	TelegramToken   string
	TelegramBaseURL string
	NotifyTimeout   time.Duration

	NATSURL         string
	NATSSubject     string
	OutboxEnabled   bool
	OutboxInterval  time.Duration
	OutboxBatch     int
	OutboxRetention time.Duration

	LogLevel  string
	LogFormat string
}

func Load() (Config, error) {
	return load(true)
}

func LoadWorker() (Config, error) {
	return load(false)
}

func load(server bool) (Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	var cfg Config
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if server && cfg.JWTSecret == "" {
		return cfg, fmt.Errorf("JWT_SECRET is required")
	}
	cfg.MigrationsDir = getString("MIGRATIONS_DIR", "migrations")
	cfg.JWTTTL = getDuration("JWT_TTL", time.Hour)
	// Empty disables admin token issuance.
	cfg.AdminSecret = os.Getenv("ADMIN_SECRET")
	cfg.HTTPAddr = getString("HTTP_ADDR", ":8080")
	cfg.GRPCAddr = getString("GRPC_ADDR", ":9090")
	cfg.MigrateOnStart = getBool("MIGRATE_ON_START", true)
	cfg.DBLockTimeout = getDuration("DB_LOCK_TIMEOUT", 3*time.Second)
	cfg.HeartbeatWindow = getDuration("HEARTBEAT_WINDOW", time.Minute)
	if cfg.HeartbeatWindow <= 0 {
		return cfg, fmt.Errorf("HEARTBEAT_WINDOW must be positive")
	}

	strategy, err := fare.ParseStrategy(getString("FARE_STRATEGY", string(fare.StrategyDistanceAndTime)))
	if err != nil {
		return cfg, fmt.Errorf("FARE_STRATEGY: %w", err)
	}
	cfg.FareStrategy = strategy
	if cfg.FareRates.Base, err = getDecimal("FARE_BASE", "2.00"); err != nil {
		return cfg, err
	}
	if cfg.FareRates.PerKm, err = getDecimal("FARE_PER_KM", "1.00"); err != nil {
		return cfg, err
	}
	if cfg.FareRates.PerMin, err = getDecimal("FARE_PER_MIN", "0.20"); err != nil {
		return cfg, err
	}
	cfg.Currency = getString("FARE_CURRENCY", "KZT")

	cfg.MapboxToken = os.Getenv("MAPBOX_ACCESS_TOKEN")
	cfg.MapboxBaseURL = getString("MAPBOX_BASE_URL", "https://api.mapbox.com")
	cfg.RoutingTimeout = getDuration("ROUTING_TIMEOUT", 5*time.Second)
	cfg.RedisURL = os.Getenv("REDIS_URL")
	cfg.RouteCacheTTL = getDuration("ROUTE_CACHE_TTL", 24*time.Hour)
	if server && cfg.MapboxToken == "" {
		return cfg, fmt.Errorf("MAPBOX_ACCESS_TOKEN is required")
	}

	cfg.TelegramToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.TelegramBaseURL = getString("TELEGRAM_BASE_URL", "https://api.telegram.org")
	cfg.NotifyTimeout = getDuration("NOTIFY_TIMEOUT", 5*time.Second)

	cfg.NATSURL = os.Getenv("NATS_URL")
	cfg.NATSSubject = getString("NATS_SUBJECT", "dispatch.events")
	cfg.OutboxEnabled = getBool("OUTBOX_ENABLED", true)
	cfg.OutboxInterval = getDuration("OUTBOX_POLL_INTERVAL", time.Second)
	cfg.OutboxBatch = getInt("OUTBOX_BATCH_SIZE", 50)
	cfg.OutboxRetention = getDuration("OUTBOX_RETENTION", 7*24*time.Hour)

	cfg.LogLevel = getString("LOG_LEVEL", "info")
	cfg.LogFormat = getString("LOG_FORMAT", "json")
	return cfg, nil
}

func getString(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

// getDecimal, unlike the other getters, reports malformed values.
func getDecimal(key, def string) (decimal.Decimal, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		v = def
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%s: %w", key, err)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("%s must not be negative", key)
	}
	return d, nil
}

func getBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}

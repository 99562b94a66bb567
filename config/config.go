package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App               AppConfig
	HTTP              ServerConfig
	MySQL             MySQLConfig
	Log               LogConfig
	InternalEndpoints InternalEndpointsConfig
	Razorpay          RazorpayConfig
	Redis             RedisConfig
	RabbitMQ          RabbitMQConfig
	Payments          PaymentsConfig
	Jobs              JobsConfig
}

type AppConfig struct {
	ServiceName string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

type InternalEndpointsConfig struct {
	AuthGRPCAddr string
}

type RazorpayConfig struct {
	KeyID     string
	KeySecret string
}

// Configured reports whether live gateway credentials are present.
func (c RazorpayConfig) Configured() bool {
	return strings.TrimSpace(c.KeyID) != "" && strings.TrimSpace(c.KeySecret) != ""
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RabbitMQConfig struct {
	URL      string
	Exchange string
}

type PaymentsConfig struct {
	DefaultCurrency     string
	DiscountCodes       string
	PendingTimeout      time.Duration
	ReconcileStaleAfter time.Duration
	JobBatchSize        int32
	VerificationLockTTL time.Duration
	EventMaxAttempts    int32
	EventRetryInterval  time.Duration
	RateLimitPerSecond  int
}

type JobsConfig struct {
	ReconcileInterval         time.Duration
	EventsDispatchInterval    time.Duration
	ExpirePendingInterval     time.Duration
	ExpireMembershipsInterval time.Duration
	RefundSyncInterval        time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "gym-payments-service"),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		InternalEndpoints: InternalEndpointsConfig{
			AuthGRPCAddr: getEnv("AUTH_SERVICE_GRPC_ADDR", ""),
		},
		Razorpay: RazorpayConfig{
			KeyID:     getEnv("RAZORPAY_KEY_ID", ""),
			KeySecret: getEnv("RAZORPAY_KEY_SECRET", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      getEnv("RABBITMQ_URL", ""),
			Exchange: getEnv("RABBITMQ_EXCHANGE", "gym.payments"),
		},
		Payments: PaymentsConfig{
			DefaultCurrency:     strings.ToUpper(getEnv("PAYMENTS_DEFAULT_CURRENCY", "INR")),
			DiscountCodes:       getEnv("DISCOUNT_CODES", ""),
			PendingTimeout:      getMinutesEnv("PAYMENTS_PENDING_TIMEOUT_MINUTES", 60*time.Minute),
			ReconcileStaleAfter: getMinutesEnv("PAYMENTS_RECONCILE_STALE_AFTER_MINUTES", 15*time.Minute),
			JobBatchSize:        int32(getIntEnv("PAYMENTS_JOB_BATCH_SIZE", 100)),
			VerificationLockTTL: getSecondsEnv("PAYMENTS_VERIFICATION_LOCK_TTL_SECONDS", 30*time.Second),
			EventMaxAttempts:    int32(getIntEnv("PAYMENTS_EVENT_MAX_ATTEMPTS", 10)),
			EventRetryInterval:  getMinutesEnv("PAYMENTS_EVENT_RETRY_INTERVAL_MINUTES", 5*time.Minute),
			RateLimitPerSecond:  getIntEnv("PAYMENTS_RATE_LIMIT_PER_SECOND", 20),
		},
		Jobs: JobsConfig{
			ReconcileInterval:         getMinutesEnv("PAYMENTS_RECONCILE_INTERVAL_MINUTES", 2*time.Minute),
			EventsDispatchInterval:    getMinutesEnv("PAYMENTS_EVENTS_DISPATCH_INTERVAL_MINUTES", time.Minute),
			ExpirePendingInterval:     getMinutesEnv("PAYMENTS_EXPIRE_PENDING_INTERVAL_MINUTES", 5*time.Minute),
			ExpireMembershipsInterval: getMinutesEnv("MEMBERSHIPS_EXPIRE_INTERVAL_MINUTES", 60*time.Minute),
			RefundSyncInterval:        getMinutesEnv("PAYMENTS_REFUND_SYNC_INTERVAL_MINUTES", 10*time.Minute),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	SLA          SLAConfig
	Assignment   AssignmentConfig
	Workflow     WorkflowConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
	MetricsPort           string
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines service-token parameters for the API surface.
type AuthConfig struct {
	JWTSecret            string
	ServiceTokenTTLHours int
	WebhookAPIKeyHash    string
	BcryptCost           int
}

// SLAConfig governs the monitoring sweep and compliance evaluation.
type SLAConfig struct {
	MonitoringEnabled bool
	SweepIntervalMin  int
	EscalationEnabled bool
	PenaltyEnabled    bool
	DefaultCaseValue  float64
}

// AssignmentConfig governs technician scoring.
type AssignmentConfig struct {
	MaxCasesPerTechnician int
}

// WorkflowConfig governs orchestrator integration.
type WorkflowConfig struct {
	Enabled               bool
	BaseURL               string
	RetryAttempts         int
	RetryBaseDelayMs      int
	RequestTimeoutSeconds int
}

// NotificationConfig holds notification sink endpoints.
type NotificationConfig struct {
	EmailFrom  string
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "repair-sla-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			MetricsPort:           getEnv("METRICS_PORT", "9100"),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:            getEnv("AUTH_JWT_SECRET", "dev-secret"),
			ServiceTokenTTLHours: getEnvAsInt("AUTH_SERVICE_TOKEN_TTL_HOURS", 12),
			WebhookAPIKeyHash:    os.Getenv("AUTH_WEBHOOK_API_KEY_HASH"),
			BcryptCost:           getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		SLA: SLAConfig{
			MonitoringEnabled: getEnvAsBool("SLA_MONITORING_ENABLED", true),
			SweepIntervalMin:  getEnvAsInt("SLA_SWEEP_INTERVAL_MINUTES", 15),
			EscalationEnabled: getEnvAsBool("SLA_ESCALATION_ENABLED", true),
			PenaltyEnabled:    getEnvAsBool("SLA_PENALTY_ENABLED", true),
			DefaultCaseValue:  getEnvAsFloat("SLA_DEFAULT_CASE_VALUE", 500),
		},
		Assignment: AssignmentConfig{
			MaxCasesPerTechnician: getEnvAsInt("ASSIGNMENT_MAX_CASES_PER_TECHNICIAN", 10),
		},
		Workflow: WorkflowConfig{
			Enabled:               getEnvAsBool("WORKFLOW_INTEGRATION_ENABLED", true),
			BaseURL:               getEnv("WORKFLOW_BASE_URL", "http://127.0.0.1:9090"),
			RetryAttempts:         getEnvAsInt("WORKFLOW_RETRY_ATTEMPTS", 3),
			RetryBaseDelayMs:      getEnvAsInt("WORKFLOW_RETRY_BASE_DELAY_MS", 500),
			RequestTimeoutSeconds: getEnvAsInt("WORKFLOW_REQUEST_TIMEOUT_SECONDS", 10),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	if cfg.Workflow.RetryAttempts < 1 {
		cfg.Workflow.RetryAttempts = 1
	}
	if cfg.Assignment.MaxCasesPerTechnician < 1 {
		cfg.Assignment.MaxCasesPerTechnician = 1
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// MetricsAddr returns the Prometheus scrape bind address.
func (a AppConfig) MetricsAddr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.MetricsPort)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// SweepInterval returns the monitoring sweep period.
func (s SLAConfig) SweepInterval() time.Duration {
	if s.SweepIntervalMin <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(s.SweepIntervalMin) * time.Minute
}

// RetryBaseDelay returns the base delay between orchestrator retries.
func (w WorkflowConfig) RetryBaseDelay() time.Duration {
	if w.RetryBaseDelayMs <= 0 {
		return 500 * time.Millisecond
	}
	return time.Duration(w.RetryBaseDelayMs) * time.Millisecond
}

// RequestTimeout returns the orchestrator per-request timeout.
func (w WorkflowConfig) RequestTimeout() time.Duration {
	if w.RequestTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(w.RequestTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

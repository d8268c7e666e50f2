package config

import (
	"errors"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	Database DatabaseConfig
	SMTP     SMTPConfig
	Midtrans MidtransConfig
	Stripe   StripeConfig
	Billing  BillingConfig
	Tracing  TracingConfig
}

type AppConfig struct {
	Port               string
	BaseURL            string
	ClientURL          string
	Environment        string
	LogFilePath        string
	CorsAllowedOrigins string
	NatsURL            string
	RedisURL           string
	JWTSecret          string
}

type DatabaseConfig struct {
	Connection string
}

type SMTPConfig struct {
	Host       string
	Port       int
	Email      string
	Password   string
	SenderName string
}

type MidtransConfig struct {
	ServerKey    string
	ClientKey    string
	IsProduction bool
	FinishURL    string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

type BillingConfig struct {
	DefaultCurrency  string
	PaymentTermsDays int
	DunningDays      int
	ProviderTimeout  time.Duration
	LockTTL          time.Duration
	PlanCacheTTL     time.Duration
	UsageTopic       string

	// robfig/cron specs, seconds field included
	CycleSchedule      string
	DunningSchedule    string
	OverdueSchedule    string
	PlanChangeSchedule string
}

type TracingConfig struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("Note: .env file not found, using system environment")
	}

	return &Config{
		App: AppConfig{
			Port:               getEnv("APP_PORT", "3000"),
			BaseURL:            getEnv("APP_BASE_URL", "http://localhost:3000"),
			ClientURL:          getEnv("CLIENT_URL", "http://localhost:5173"),
			Environment:        getEnv("GO_ENV", "development"),
			LogFilePath:        getEnv("LOG_FILE_PATH", "logs/billing.log"),
			CorsAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:5173"),
			NatsURL:            getEnv("NATS_URL", "nats://localhost:4222"),
			RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379"),
			JWTSecret:          getEnv("JWT_SECRET", ""),
		},
		Database: DatabaseConfig{
			Connection: getEnv("DB_CONNECTION_STRING", ""),
		},
		SMTP: SMTPConfig{
			Host:       getEnv("SMTP_HOST", ""),
			Port:       getEnvAsInt("SMTP_PORT", 587),
			Email:      getEnv("SMTP_EMAIL", ""),
			Password:   getEnv("SMTP_PASSWORD", ""),
			SenderName: getEnv("SMTP_SENDER_NAME", "HQ Billing"),
		},
		Midtrans: MidtransConfig{
			ServerKey:    getEnv("MIDTRANS_SERVER_KEY", ""),
			ClientKey:    getEnv("MIDTRANS_CLIENT_KEY", ""),
			IsProduction: getEnvAsBool("MIDTRANS_IS_PRODUCTION", false),
			FinishURL:    getEnv("MIDTRANS_FINISH_URL", "http://localhost:5173/billing/payment/finish"),
		},
		Stripe: StripeConfig{
			SecretKey:     getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		},
		Billing: BillingConfig{
			DefaultCurrency:    getEnv("BILLING_DEFAULT_CURRENCY", "IDR"),
			PaymentTermsDays:   getEnvAsInt("BILLING_PAYMENT_TERMS_DAYS", 7),
			DunningDays:        getEnvAsInt("BILLING_DUNNING_DAYS", 30),
			ProviderTimeout:    getEnvAsDuration("BILLING_PROVIDER_TIMEOUT", 15*time.Second),
			LockTTL:            getEnvAsDuration("BILLING_LOCK_TTL", 30*time.Second),
			PlanCacheTTL:       getEnvAsDuration("BILLING_PLAN_CACHE_TTL", 5*time.Minute),
			UsageTopic:         getEnv("BILLING_USAGE_TOPIC", "USAGE_RECORDED"),
			CycleSchedule:      getEnv("BILLING_CYCLE_SCHEDULE", "0 0 * * * *"),
			DunningSchedule:    getEnv("BILLING_DUNNING_SCHEDULE", "0 30 2 * * *"),
			OverdueSchedule:    getEnv("BILLING_OVERDUE_SCHEDULE", "0 15 * * * *"),
			PlanChangeSchedule: getEnv("BILLING_PLAN_CHANGE_SCHEDULE", "0 5 * * * *"),
		},
		Tracing: TracingConfig{
			Enabled:     getEnvAsBool("OTEL_ENABLED", false),
			Endpoint:    getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4318"),
			ServiceName: getEnv("OTEL_SERVICE_NAME", "hq-billing-be"),
		},
	}
}

// Validate reports settings the binaries cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.Connection == "" {
		errs = append(errs, errors.New("DB_CONNECTION_STRING is not set"))
	}
	if c.App.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is not set"))
	}
	if c.Billing.PaymentTermsDays < 0 || c.Billing.DunningDays < 0 {
		errs = append(errs, errors.New("billing day counts must not be negative"))
	}
	if c.Billing.ProviderTimeout <= 0 {
		errs = append(errs, errors.New("BILLING_PROVIDER_TIMEOUT must be positive"))
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	strValue := getEnv(key, "")
	if value, err := strconv.Atoi(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	strValue := getEnv(key, "")
	if value, err := strconv.ParseBool(strValue); err == nil {
		return value
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	strValue := getEnv(key, "")
	if value, err := time.ParseDuration(strValue); err == nil {
		return value
	}
	return fallback
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string   `mapstructure:"PORT"`
	Env            string   `mapstructure:"ENV"`
	DatabaseURL    string   `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins    []string `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int      `mapstructure:"RATE_LIMIT_BURST"`
	AuthJWTSecret  string   `mapstructure:"AUTH_JWT_SECRET"`

	MaxTriageQuestions int           `mapstructure:"MAX_TRIAGE_QUESTIONS"`
	ModificationTTL    time.Duration `mapstructure:"MODIFICATION_TTL"`
	AssessmentTTL      time.Duration `mapstructure:"ASSESSMENT_TTL"`
	GeneratorTimeout   time.Duration `mapstructure:"GENERATOR_TIMEOUT"`
	SenderRateRPS      float64       `mapstructure:"SENDER_RATE_RPS"`
	SenderRateBurst    int           `mapstructure:"SENDER_RATE_BURST"`

	OpenAIAPIKey  string `mapstructure:"OPENAI_API_KEY"`
	OpenAIModel   string `mapstructure:"OPENAI_MODEL"`
	OpenAIBaseURL string `mapstructure:"OPENAI_BASE_URL"`

	MessagingAPIURL        string `mapstructure:"MESSAGING_API_URL"`
	MessagingAPIToken      string `mapstructure:"MESSAGING_API_TOKEN"`
	MessagingWebhookSecret string `mapstructure:"MESSAGING_WEBHOOK_SECRET"`
	PaymentWebhookSecret   string `mapstructure:"PAYMENT_WEBHOOK_SECRET"`
	PaymentCheckoutURL     string `mapstructure:"PAYMENT_CHECKOUT_URL"`
	PublicBaseURL          string `mapstructure:"PUBLIC_BASE_URL"`

	ESDBURL   string `mapstructure:"ESDB_URL"`
	LockMode  string `mapstructure:"LOCK_MODE"`
	AuditSink string `mapstructure:"AUDIT_SINK"`
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "CORS_ORIGINS",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "AUTH_JWT_SECRET",
	"MAX_TRIAGE_QUESTIONS", "MODIFICATION_TTL", "ASSESSMENT_TTL", "GENERATOR_TIMEOUT",
	"SENDER_RATE_RPS", "SENDER_RATE_BURST",
	"OPENAI_API_KEY", "OPENAI_MODEL", "OPENAI_BASE_URL",
	"MESSAGING_API_URL", "MESSAGING_API_TOKEN", "MESSAGING_WEBHOOK_SECRET",
	"PAYMENT_WEBHOOK_SECRET", "PAYMENT_CHECKOUT_URL", "PUBLIC_BASE_URL",
	"ESDB_URL", "LOCK_MODE", "AUDIT_SINK",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("MAX_TRIAGE_QUESTIONS", 5)
	v.SetDefault("MODIFICATION_TTL", "1h")
	v.SetDefault("ASSESSMENT_TTL", "72h")
	v.SetDefault("GENERATOR_TIMEOUT", "20s")
	v.SetDefault("SENDER_RATE_RPS", 1)
	v.SetDefault("SENDER_RATE_BURST", 10)
	v.SetDefault("OPENAI_MODEL", "gpt-4o-mini")
	v.SetDefault("PUBLIC_BASE_URL", "http://localhost:8000")
	v.SetDefault("LOCK_MODE", "memory")
	v.SetDefault("AUDIT_SINK", "postgres")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Production requires
// the JWT secret and both webhook secrets so no unauthenticated surface is
// exposed.
func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.AuthJWTSecret == "" {
			return fmt.Errorf("AUTH_JWT_SECRET is required in production")
		}
		if c.MessagingWebhookSecret == "" {
			return fmt.Errorf("MESSAGING_WEBHOOK_SECRET is required in production")
		}
		if c.PaymentWebhookSecret == "" {
			return fmt.Errorf("PAYMENT_WEBHOOK_SECRET is required in production")
		}
	}
	if c.AuthJWTSecret != "" && len(c.AuthJWTSecret) < 32 {
		return fmt.Errorf("AUTH_JWT_SECRET must be at least 32 characters, got %d", len(c.AuthJWTSecret))
	}

	if c.MaxTriageQuestions < 1 || c.MaxTriageQuestions > 20 {
		return fmt.Errorf("MAX_TRIAGE_QUESTIONS must be between 1 and 20, got %d", c.MaxTriageQuestions)
	}
	if c.ModificationTTL <= 0 {
		return fmt.Errorf("MODIFICATION_TTL must be positive")
	}
	if c.GeneratorTimeout <= 0 {
		return fmt.Errorf("GENERATOR_TIMEOUT must be positive")
	}

	switch c.LockMode {
	case "memory", "advisory":
	default:
		return fmt.Errorf("LOCK_MODE must be \"memory\" or \"advisory\", got %q", c.LockMode)
	}
	switch c.AuditSink {
	case "log", "postgres":
	case "esdb":
		if c.ESDBURL == "" {
			return fmt.Errorf("ESDB_URL is required when AUDIT_SINK is \"esdb\"")
		}
	default:
		return fmt.Errorf("AUDIT_SINK must be \"log\", \"postgres\" or \"esdb\", got %q", c.AuditSink)
	}
	return nil
}

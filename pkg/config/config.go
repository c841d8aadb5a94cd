package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string
	BaseURL   string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	SMTP     SMTPConfig
	Deletion DeletionConfig
	Reports  ReportsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// SMTPConfig configures the outbound mail relay.
type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	RequireTLS bool
}

// DeletionConfig governs the personal data deletion workflow.
type DeletionConfig struct {
	// SignedLinkSecret signs the email confirmation links.
	SignedLinkSecret string
	// SignedLinkTTL bounds how long a confirmation link stays valid.
	SignedLinkTTL time.Duration
	// RetentionWindow is how long unverified requests are kept before the
	// reaper removes them.
	RetentionWindow time.Duration
	// ReaperSchedule is a cron expression for the stale-request sweep.
	ReaperSchedule string
	// OperatorEmails receives the approval-required notifications.
	OperatorEmails []string
	// DescriptorsFile points at the YAML list of reference descriptors.
	DescriptorsFile string
	// AnonymizeTimeout bounds a single anonymization pass on the long queue.
	AnonymizeTimeout time.Duration
	// AnonymizeWorkers and AnonymizeRetries size the long queue.
	AnonymizeWorkers int
	AnonymizeRetries int
	// MailWorkers sizes the notification queue.
	MailWorkers int
	// ResendCooldown throttles verification mail resends per subject.
	ResendCooldown time.Duration
	// SyncMode runs the anonymization pass inline instead of enqueueing it.
	// Diagnostic use only.
	SyncMode bool
}

// ReportsConfig controls deletion report storage and download links.
type ReportsConfig struct {
	StorageDir      string
	SignedURLSecret string
	SignedURLTTL    time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.BaseURL = strings.TrimRight(v.GetString("BASE_URL"), "/")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.SMTP = SMTPConfig{
		Host:       v.GetString("SMTP_HOST"),
		Port:       v.GetInt("SMTP_PORT"),
		Username:   v.GetString("SMTP_USERNAME"),
		Password:   v.GetString("SMTP_PASSWORD"),
		From:       v.GetString("SMTP_FROM"),
		RequireTLS: v.GetBool("SMTP_REQUIRE_TLS"),
	}

	cfg.Deletion = DeletionConfig{
		SignedLinkSecret: v.GetString("DELETION_SIGNED_LINK_SECRET"),
		SignedLinkTTL:    parseDuration(v.GetString("DELETION_SIGNED_LINK_TTL"), 72*time.Hour),
		RetentionWindow:  parseDuration(v.GetString("DELETION_RETENTION_WINDOW"), 7*24*time.Hour),
		ReaperSchedule:   v.GetString("DELETION_REAPER_SCHEDULE"),
		OperatorEmails:   splitAndTrim(v.GetString("DELETION_OPERATOR_EMAILS")),
		DescriptorsFile:  v.GetString("DELETION_DESCRIPTORS_FILE"),
		AnonymizeTimeout: parseDuration(v.GetString("DELETION_ANONYMIZE_TIMEOUT"), 50*time.Minute),
		AnonymizeWorkers: v.GetInt("DELETION_ANONYMIZE_WORKERS"),
		AnonymizeRetries: v.GetInt("DELETION_ANONYMIZE_RETRIES"),
		MailWorkers:      v.GetInt("DELETION_MAIL_WORKERS"),
		ResendCooldown:   parseDuration(v.GetString("DELETION_RESEND_COOLDOWN"), 15*time.Minute),
		SyncMode:         v.GetBool("DELETION_SYNC_MODE"),
	}

	cfg.Reports = ReportsConfig{
		StorageDir:      v.GetString("REPORTS_STORAGE_DIR"),
		SignedURLSecret: v.GetString("REPORTS_SIGNED_URL_SECRET"),
		SignedURLTTL:    parseDuration(v.GetString("REPORTS_SIGNED_URL_TTL"), 24*time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("BASE_URL", "http://localhost:8080")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "privacy_api")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SMTP_HOST", "localhost")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "no-reply@localhost")
	v.SetDefault("SMTP_REQUIRE_TLS", false)

	v.SetDefault("DELETION_SIGNED_LINK_SECRET", "dev_link_secret")
	v.SetDefault("DELETION_SIGNED_LINK_TTL", "72h")
	v.SetDefault("DELETION_RETENTION_WINDOW", "168h")
	v.SetDefault("DELETION_REAPER_SCHEDULE", "0 * * * *")
	v.SetDefault("DELETION_OPERATOR_EMAILS", "")
	v.SetDefault("DELETION_DESCRIPTORS_FILE", "./descriptors.yaml")
	v.SetDefault("DELETION_ANONYMIZE_TIMEOUT", "50m")
	v.SetDefault("DELETION_ANONYMIZE_WORKERS", 1)
	v.SetDefault("DELETION_ANONYMIZE_RETRIES", 3)
	v.SetDefault("DELETION_MAIL_WORKERS", 2)
	v.SetDefault("DELETION_RESEND_COOLDOWN", "15m")
	v.SetDefault("DELETION_SYNC_MODE", false)

	v.SetDefault("REPORTS_STORAGE_DIR", "./reports")
	v.SetDefault("REPORTS_SIGNED_URL_SECRET", "dev_reports_secret")
	v.SetDefault("REPORTS_SIGNED_URL_TTL", "24h")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

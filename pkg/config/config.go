package config

import (
	"errors"
	"io/fs"
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
	PublicURL string
	Release   string

	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Mail          MailConfig
	Blob          BlobConfig
	Uploads       UploadsConfig
	Notifications NotificationsConfig
	Telegram      TelegramConfig
	Sentry        SentryConfig
	RateLimit     RateLimitConfig
	Cache         CacheConfig
	Admin         AdminConfig
}

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	Name          string
	SSLMode       string
	MaxOpenConns  int
	MaxIdleConns  int
	AutoMigrate   bool
	MigrationsDir string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Issuer            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
	VerifyExpiration  time.Duration
	ResetExpiration   time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// MailConfig configures the SMTP relay used for outbound notifications.
type MailConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	TLSPolicy   string
	Timeout     time.Duration
	Disabled    bool
	FrontendURL string
}

// BlobConfig selects the remote document store.
type BlobConfig struct {
	Driver             string
	LocalDir           string
	SignedURLSecret    string
	SignedURLTTL       time.Duration
	CloudinaryCloud    string
	CloudinaryKey      string
	CloudinarySecret   string
	CloudinaryFolder   string
	CloudinaryEndpoint string
}

// UploadsConfig governs verification document validation and staging.
type UploadsConfig struct {
	StagingDir       string
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
	Concurrency      int
}

// NotificationsConfig tunes the async delivery queue.
type NotificationsConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

type TelegramConfig struct {
	BotToken    string
	AdminChatID int64
}

type SentryConfig struct {
	DSN string
}

type RateLimitConfig struct {
	ContactPerWindow int
	LoginPerWindow   int
	Window           time.Duration
}

type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// AdminConfig protects admin self-registration after bootstrap.
type AdminConfig struct {
	SignupKey string
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.PublicURL = strings.TrimRight(v.GetString("PUBLIC_URL"), "/")
	cfg.Release = v.GetString("RELEASE")
	cfg.RequestTimeout = parseDuration(v.GetString("REQUEST_TIMEOUT"), 30*time.Second)
	cfg.ShutdownTimeout = parseDuration(v.GetString("SHUTDOWN_TIMEOUT"), 15*time.Second)

	cfg.Database = DatabaseConfig{
		Host:          v.GetString("DB_HOST"),
		Port:          v.GetInt("DB_PORT"),
		User:          v.GetString("DB_USER"),
		Password:      v.GetString("DB_PASSWORD"),
		Name:          v.GetString("DB_NAME"),
		SSLMode:       v.GetString("DB_SSL_MODE"),
		MaxOpenConns:  v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns:  v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:   v.GetBool("DB_AUTO_MIGRATE"),
		MigrationsDir: v.GetString("DB_MIGRATIONS_DIR"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Issuer:            v.GetString("JWT_ISSUER"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
		VerifyExpiration:  parseDuration(v.GetString("VERIFY_TOKEN_EXPIRATION"), 24*time.Hour),
		ResetExpiration:   parseDuration(v.GetString("RESET_TOKEN_EXPIRATION"), time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Mail = MailConfig{
		Host:        v.GetString("SMTP_HOST"),
		Port:        v.GetInt("SMTP_PORT"),
		Username:    v.GetString("SMTP_USERNAME"),
		Password:    v.GetString("SMTP_PASSWORD"),
		From:        v.GetString("MAIL_FROM"),
		TLSPolicy:   v.GetString("SMTP_TLS_POLICY"),
		Timeout:     parseDuration(v.GetString("SMTP_TIMEOUT"), 15*time.Second),
		Disabled:    v.GetBool("MAIL_DISABLED"),
		FrontendURL: strings.TrimRight(v.GetString("FRONTEND_URL"), "/"),
	}

	cfg.Blob = BlobConfig{
		Driver:             strings.ToLower(v.GetString("BLOB_DRIVER")),
		LocalDir:           v.GetString("BLOB_LOCAL_DIR"),
		SignedURLSecret:    v.GetString("BLOB_SIGNED_URL_SECRET"),
		SignedURLTTL:       parseDuration(v.GetString("BLOB_SIGNED_URL_TTL"), 30*24*time.Hour),
		CloudinaryCloud:    v.GetString("CLOUDINARY_CLOUD_NAME"),
		CloudinaryKey:      v.GetString("CLOUDINARY_API_KEY"),
		CloudinarySecret:   v.GetString("CLOUDINARY_API_SECRET"),
		CloudinaryFolder:   v.GetString("CLOUDINARY_FOLDER"),
		CloudinaryEndpoint: v.GetString("CLOUDINARY_ENDPOINT"),
	}

	maxUpload := v.GetInt64("UPLOAD_MAX_FILE_SIZE")
	if maxUpload <= 0 {
		maxUpload = 5 * 1024 * 1024
	}
	cfg.Uploads = UploadsConfig{
		StagingDir:       v.GetString("UPLOAD_STAGING_DIR"),
		MaxFileSizeBytes: maxUpload,
		AllowedMIMEs:     splitAndTrim(v.GetString("UPLOAD_ALLOWED_MIME_TYPES")),
		Concurrency:      v.GetInt("UPLOAD_CONCURRENCY"),
	}

	cfg.Notifications = NotificationsConfig{
		Workers:    v.GetInt("NOTIFY_WORKERS"),
		BufferSize: v.GetInt("NOTIFY_BUFFER_SIZE"),
		MaxRetries: v.GetInt("NOTIFY_MAX_RETRIES"),
		RetryDelay: parseDuration(v.GetString("NOTIFY_RETRY_DELAY"), 5*time.Second),
	}

	cfg.Telegram = TelegramConfig{
		BotToken:    v.GetString("TELEGRAM_BOT_TOKEN"),
		AdminChatID: v.GetInt64("TELEGRAM_ADMIN_CHAT_ID"),
	}

	cfg.Sentry = SentryConfig{DSN: v.GetString("SENTRY_DSN")}

	cfg.RateLimit = RateLimitConfig{
		ContactPerWindow: v.GetInt("RATE_LIMIT_CONTACT"),
		LoginPerWindow:   v.GetInt("RATE_LIMIT_LOGIN"),
		Window:           parseDuration(v.GetString("RATE_LIMIT_WINDOW"), time.Minute),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_CACHE"),
		TTL:     parseDuration(v.GetString("CACHE_TTL"), 5*time.Minute),
	}

	cfg.Admin = AdminConfig{SignupKey: v.GetString("ADMIN_SIGNUP_KEY")}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api")
	v.SetDefault("PUBLIC_URL", "http://localhost:8080")
	v.SetDefault("RELEASE", "dev")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "learnhub")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)
	v.SetDefault("DB_MIGRATIONS_DIR", ".")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "learnhub-api")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")
	v.SetDefault("VERIFY_TOKEN_EXPIRATION", "24h")
	v.SetDefault("RESET_TOKEN_EXPIRATION", "1h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SMTP_HOST", "localhost")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_TLS_POLICY", "opportunistic")
	v.SetDefault("SMTP_TIMEOUT", "15s")
	v.SetDefault("MAIL_FROM", "no-reply@learnhub.local")
	v.SetDefault("MAIL_DISABLED", false)
	v.SetDefault("FRONTEND_URL", "http://localhost:5173")

	v.SetDefault("BLOB_DRIVER", "local")
	v.SetDefault("BLOB_LOCAL_DIR", "./storage/documents")
	v.SetDefault("BLOB_SIGNED_URL_SECRET", "dev_blob_secret")
	v.SetDefault("BLOB_SIGNED_URL_TTL", "720h")
	v.SetDefault("CLOUDINARY_FOLDER", "learnhub")
	v.SetDefault("CLOUDINARY_ENDPOINT", "https://api.cloudinary.com/v1_1")

	v.SetDefault("UPLOAD_STAGING_DIR", "./storage/staging")
	v.SetDefault("UPLOAD_MAX_FILE_SIZE", 5*1024*1024)
	v.SetDefault("UPLOAD_ALLOWED_MIME_TYPES", "application/pdf,image/jpeg,image/png")
	v.SetDefault("UPLOAD_CONCURRENCY", 5)

	v.SetDefault("NOTIFY_WORKERS", 2)
	v.SetDefault("NOTIFY_BUFFER_SIZE", 64)
	v.SetDefault("NOTIFY_MAX_RETRIES", 2)
	v.SetDefault("NOTIFY_RETRY_DELAY", "5s")

	v.SetDefault("TELEGRAM_BOT_TOKEN", "")
	v.SetDefault("TELEGRAM_ADMIN_CHAT_ID", 0)
	v.SetDefault("SENTRY_DSN", "")

	v.SetDefault("RATE_LIMIT_CONTACT", 5)
	v.SetDefault("RATE_LIMIT_LOGIN", 10)
	v.SetDefault("RATE_LIMIT_WINDOW", "1m")

	v.SetDefault("ENABLE_CACHE", true)
	v.SetDefault("CACHE_TTL", "5m")

	v.SetDefault("ADMIN_SIGNUP_KEY", "")
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
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// IdPの種別
const (
	IdentityProviderClerk    = "clerk"
	IdentityProviderFirebase = "firebase"
)

// 通知パブリッシャーの種別
const (
	PublisherNone  = "none"
	PublisherKafka = "kafka"
	PublisherRedis = "redis"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	AppEnv string

	// Database
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// Identity provider
	IdentityProvider        string
	ClerkSecretKey          string
	ClerkAPIURL             string
	FirebaseCredentialsJSON string
	IdentityFetchTimeout    time.Duration

	// Rate Limit (req/min)
	RateLimitGeneral int
	RateLimitFollow  int

	// Notification
	NotificationPublisher    string
	NotificationListLimit    int
	KafkaBrokers             []string
	KafkaNotificationTopic   string
	RedisAddr                string
	RedisNotificationChannel string

	// Tracing
	OTelEndpoint    string
	OTelServiceName string
	OTelSampleRatio float64

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// APP_ENVがproduction以外の場合はカレントディレクトリの.envを先に読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if os.Getenv("APP_ENV") != "production" {
		if err := loadDotEnv(".env"); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		AppEnv: getEnvString("APP_ENV", "development"),
	}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.IdentityProvider = strings.ToLower(os.Getenv("IDENTITY_PROVIDER"))
	switch cfg.IdentityProvider {
	case "":
		missing = append(missing, "IDENTITY_PROVIDER")
	case IdentityProviderClerk:
		cfg.ClerkSecretKey = os.Getenv("CLERK_SECRET_KEY")
		if cfg.ClerkSecretKey == "" {
			missing = append(missing, "CLERK_SECRET_KEY")
		}
	case IdentityProviderFirebase:
		cfg.FirebaseCredentialsJSON = os.Getenv("FIREBASE_CREDENTIALS_JSON")
		if cfg.FirebaseCredentialsJSON == "" {
			missing = append(missing, "FIREBASE_CREDENTIALS_JSON")
		}
	default:
		return nil, fmt.Errorf("unsupported IDENTITY_PROVIDER: %q", cfg.IdentityProvider)
	}

	cfg.NotificationPublisher = strings.ToLower(getEnvString("NOTIFICATION_PUBLISHER", PublisherNone))
	switch cfg.NotificationPublisher {
	case PublisherNone, PublisherRedis:
	case PublisherKafka:
		cfg.KafkaBrokers = splitList(os.Getenv("KAFKA_BROKERS"))
		if len(cfg.KafkaBrokers) == 0 {
			missing = append(missing, "KAFKA_BROKERS")
		}
	default:
		return nil, fmt.Errorf("unsupported NOTIFICATION_PUBLISHER: %q", cfg.NotificationPublisher)
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute)
	cfg.ClerkAPIURL = getEnvString("CLERK_API_URL", "https://api.clerk.com/v1")
	cfg.IdentityFetchTimeout = getEnvDuration("IDENTITY_FETCH_TIMEOUT", 10*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitFollow = getEnvInt("RATE_LIMIT_FOLLOW", 30)
	cfg.NotificationListLimit = getEnvInt("NOTIFICATION_LIST_LIMIT", 50)
	cfg.KafkaNotificationTopic = getEnvString("KAFKA_NOTIFICATION_TOPIC", "notifications")
	cfg.RedisAddr = getEnvString("REDIS_ADDR", "localhost:6379")
	cfg.RedisNotificationChannel = getEnvString("REDIS_NOTIFICATION_CHANNEL", "notifications")
	cfg.OTelEndpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	cfg.OTelServiceName = getEnvString("OTEL_SERVICE_NAME", "socialgraph")
	cfg.OTelSampleRatio = getEnvFloat("OTEL_SAMPLE_RATIO", 1.0)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// loadDotEnv は.envファイルを環境変数に読み込む。既に設定済みの変数は上書きしない。
// ファイルが存在しない場合は何もしない。
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// splitList はカンマ区切りの値を空要素を除いて分割する。
func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 || f > 1 {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

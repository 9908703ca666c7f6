package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 应用配置，启动时从 .env 与环境变量读取
type Config struct {
	HTTPAddr    string
	FrontendURL string
	LogLevel    string
	Debug       bool

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBMaxOpen  int
	DBMaxIdle  int

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTAccessSecret  string
	JWTRefreshSecret string

	// NotifySender: log | kafka | email
	NotifySender   string
	KafkaBrokers   []string
	KafkaTopic     string
	SMTPHost       string
	SMTPPort       int
	SMTPUsername   string
	SMTPPassword   string
	SMTPFrom       string
	OutboxInterval time.Duration
	OutboxBatch    int
	OutboxMaxRetry int

	// CacheBackend: memory | redis
	CacheBackend string
	CacheTTL     time.Duration

	RateLookupTimeout time.Duration
	QuotaTimezone     string

	QueueCommitTimeout time.Duration
	QueueStaleAfter    time.Duration
	ReconcileInterval  time.Duration
	ReconcileBatch     int
}

// AppConfig 全局配置
var AppConfig Config

// Init 加载配置并校验
func Init() error {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: .env not loaded: %v", err)
	}

	AppConfig = Config{
		HTTPAddr:    getEnv("HTTP_ADDR", ":8080"),
		FrontendURL: getEnv("FRONTEND_URL", "http://localhost:5173"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Debug:       getEnvAsBool("DEBUG", false),

		DBHost:     getEnv("DB_HOST", ""),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", ""),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", ""),
		DBMaxOpen:  getEnvAsInt("DB_MAX_OPEN", 25),
		DBMaxIdle:  getEnvAsInt("DB_MAX_IDLE", 10),

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		JWTAccessSecret:  getEnv("JWT_ACCESS_SECRET", ""),
		JWTRefreshSecret: getEnv("JWT_REFRESH_SECRET", ""),

		NotifySender:   strings.ToLower(getEnv("NOTIFY_SENDER", "log")),
		KafkaBrokers:   getEnvAsList("KAFKA_BROKERS", []string{"127.0.0.1:9092"}),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "archive.notifications"),
		SMTPHost:       getEnv("SMTP_HOST", ""),
		SMTPPort:       getEnvAsInt("SMTP_PORT", 465),
		SMTPUsername:   getEnv("SMTP_USERNAME", ""),
		SMTPPassword:   getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:       getEnv("SMTP_FROM", "Photo Archive <no-reply@example.com>"),
		OutboxInterval: getEnvAsDuration("OUTBOX_INTERVAL", 2*time.Second),
		OutboxBatch:    getEnvAsInt("OUTBOX_BATCH", 100),
		OutboxMaxRetry: getEnvAsInt("OUTBOX_MAX_RETRY", 5),

		CacheBackend: strings.ToLower(getEnv("CACHE_BACKEND", "memory")),
		CacheTTL:     getEnvAsDuration("CACHE_TTL", 30*time.Second),

		RateLookupTimeout: getEnvAsDuration("RATE_LOOKUP_TIMEOUT", 200*time.Millisecond),
		QuotaTimezone:     getEnv("QUOTA_TZ", "UTC"),

		QueueCommitTimeout: getEnvAsDuration("QUEUE_COMMIT_TIMEOUT", 5*time.Second),
		QueueStaleAfter:    getEnvAsDuration("QUEUE_STALE_AFTER", 30*time.Second),
		ReconcileInterval:  getEnvAsDuration("RECONCILE_INTERVAL", 10*time.Minute),
		ReconcileBatch:     getEnvAsInt("RECONCILE_BATCH", 500),
	}
	return Validate(&AppConfig)
}

// DSN gorm mysql 连接串
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// QuotaLocation 每日额度按该时区的自然日重置
func (c *Config) QuotaLocation() (*time.Location, error) {
	return time.LoadLocation(c.QuotaTimezone)
}

func Validate(c *Config) error {
	if c.DBHost == "" || c.DBUser == "" || c.DBName == "" {
		return errors.New("incomplete database config")
	}
	if c.JWTAccessSecret == "" || c.JWTRefreshSecret == "" {
		return errors.New("JWT secrets are not set")
	}
	switch c.NotifySender {
	case "log", "kafka":
	case "email":
		if c.SMTPHost == "" || c.SMTPUsername == "" {
			return errors.New("incomplete SMTP config for email notifications")
		}
	default:
		return fmt.Errorf("unknown NOTIFY_SENDER %q", c.NotifySender)
	}
	if c.CacheBackend != "memory" && c.CacheBackend != "redis" {
		return fmt.Errorf("unknown CACHE_BACKEND %q", c.CacheBackend)
	}
	if _, err := c.QuotaLocation(); err != nil {
		return fmt.Errorf("invalid QUOTA_TZ: %w", err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultVal int) int {
	if value, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if val, err := strconv.ParseBool(getEnv(key, "")); err == nil {
		return val
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if d, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return d
	}
	return defaultVal
}

func getEnvAsList(key string, defaultVal []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultVal
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

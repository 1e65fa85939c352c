package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config 应用配置
type Config struct {
	Port string

	DBDriver    string // sqlite, pgx
	DBPath      string
	DatabaseURL string

	JWTSecret    string
	AuthRequired bool

	GeminiAPIKey string // 为空时禁用 AI
	GeminiModel  string
	AIDailyLimit int
	AITimeout    time.Duration

	ChatRateLimit int // 每个客户端每分钟的聊天请求数

	NATSURL  string // 为空时不发布事件
	Location *time.Location

	LogLevel  string
	LogFormat string // json, console

	FallbackSeed uint64 // 0 表示随机
}

// AIEnabled reports whether a model key is configured
func (c *Config) AIEnabled() bool {
	return c.GeminiAPIKey != ""
}

// Load 加载配置
func Load() (*Config, error) {
	// 加载 .env（文件不存在时忽略）
	_ = godotenv.Load()

	cfg := &Config{
		Port:         getenvDefault("PORT", ":8080"),
		DBDriver:     strings.ToLower(getenvDefault("DB_DRIVER", "sqlite")),
		DBPath:       getenvDefault("DB_PATH", "./data/shuttle.db"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		JWTSecret:    getenvDefault("JWT_SECRET", "your-secret-key-change-in-production"),
		GeminiAPIKey: os.Getenv("GEMINI_API_KEY"),
		GeminiModel:  getenvDefault("GEMINI_MODEL", "gemini-2.0-flash"),
		NATSURL:      os.Getenv("NATS_URL"),
		LogLevel:     strings.ToLower(getenvDefault("LOG_LEVEL", "info")),
		LogFormat:    strings.ToLower(getenvDefault("LOG_FORMAT", "json")),
	}

	switch cfg.DBDriver {
	case "sqlite":
	case "pgx", "postgres":
		cfg.DBDriver = "pgx"
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL must be set when DB_DRIVER=pgx")
		}
	default:
		return nil, fmt.Errorf("invalid DB_DRIVER: %q", cfg.DBDriver)
	}

	var err error
	if cfg.AuthRequired, err = parseBool("AUTH_REQUIRED", true); err != nil {
		return nil, err
	}
	if cfg.AIDailyLimit, err = parsePositiveInt("AI_DAILY_LIMIT", 45); err != nil {
		return nil, err
	}
	timeoutSec, err := parsePositiveInt("AI_TIMEOUT_SEC", 30)
	if err != nil {
		return nil, err
	}
	cfg.AITimeout = time.Duration(timeoutSec) * time.Second
	if cfg.ChatRateLimit, err = parsePositiveInt("CHAT_RATE_LIMIT", 20); err != nil {
		return nil, err
	}

	if v := os.Getenv("FALLBACK_SEED"); v != "" {
		seed, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid FALLBACK_SEED: %q", v)
		}
		cfg.FallbackSeed = seed
	}

	// 时区
	if tzName := os.Getenv("TZ"); tzName == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tzName)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	if cfg.LogFormat != "json" && cfg.LogFormat != "console" {
		return nil, fmt.Errorf("invalid LOG_FORMAT: %q", cfg.LogFormat)
	}

	return cfg, nil
}

func getenvDefault(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func parsePositiveInt(k string, def int) (int, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", k, v)
	}
	return n, nil
}

func parseBool(k string, def bool) (bool, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid %s: %q", k, v)
	}
}

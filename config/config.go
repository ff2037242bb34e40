package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL    string
	JWTSecretKey   string
	ServerPort     int
	LogLevel       slog.Level
	AllowedOrigins []string

	TickRateHz       int
	BroadcastRateHz  int
	DrainInterval    time.Duration
	DeadlineInterval time.Duration
	MaxScore         int
	ReadyTimeout     time.Duration
	LaunchCountdown  time.Duration
	FinishedGrace    time.Duration
	IdleTimeout      time.Duration
	PersistTimeout   time.Duration

	RedisAddr string

	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicBaseURL   string
}

// R2Enabled reports whether bracket archiving to object storage is configured.
func (c *Config) R2Enabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" &&
		c.R2BucketName != "" && c.R2PublicBaseURL != ""
}

// Load загружает конфигурацию из переменных окружения.
// Опционально подгружает .env файл (полезно для локальной разработки).
func Load() (*Config, error) {
	_ = godotenv.Load()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is not set")
	}

	jwtKey := os.Getenv("JWT_SECRET_KEY")
	if jwtKey == "" {
		return nil, fmt.Errorf("JWT_SECRET_KEY environment variable is not set")
	}

	port, err := intFromEnv("SERVER_PORT", 8080)
	if err != nil {
		return nil, err
	}
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", port)
	}

	cfg := &Config{
		DatabaseURL:       dbURL,
		JWTSecretKey:      jwtKey,
		ServerPort:        port,
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		R2AccountID:       os.Getenv("R2_ACCOUNT_ID"),
		R2AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
		R2SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
		R2BucketName:      os.Getenv("R2_BUCKET_NAME"),
		R2PublicBaseURL:   os.Getenv("R2_PUBLIC_BASE_URL"),
	}

	if err := cfg.LogLevel.UnmarshalText([]byte(envOrDefault("LOG_LEVEL", "info"))); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL environment variable: %w", err)
	}

	for _, origin := range strings.Split(envOrDefault("ALLOWED_ORIGINS", "*"), ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			cfg.AllowedOrigins = append(cfg.AllowedOrigins, origin)
		}
	}

	ints := []struct {
		key    string
		def    int
		target *int
	}{
		{"TICK_RATE_HZ", 60, &cfg.TickRateHz},
		{"BROADCAST_RATE_HZ", 60, &cfg.BroadcastRateHz},
		{"MAX_SCORE", 5, &cfg.MaxScore},
	}
	for _, it := range ints {
		v, err := intFromEnv(it.key, it.def)
		if err != nil {
			return nil, err
		}
		if v <= 0 {
			return nil, fmt.Errorf("%s must be positive, got %d", it.key, v)
		}
		*it.target = v
	}

	durations := []struct {
		key    string
		def    time.Duration
		target *time.Duration
	}{
		{"DRAIN_INTERVAL", 100 * time.Millisecond, &cfg.DrainInterval},
		{"DEADLINE_INTERVAL", 5 * time.Second, &cfg.DeadlineInterval},
		{"READY_TIMEOUT", 60 * time.Second, &cfg.ReadyTimeout},
		{"LAUNCH_COUNTDOWN", 3 * time.Second, &cfg.LaunchCountdown},
		{"FINISHED_GRACE", 60 * time.Second, &cfg.FinishedGrace},
		{"IDLE_TIMEOUT", 10 * time.Minute, &cfg.IdleTimeout},
		{"PERSIST_TIMEOUT", 5 * time.Second, &cfg.PersistTimeout},
	}
	for _, d := range durations {
		v, err := durationFromEnv(d.key, d.def)
		if err != nil {
			return nil, err
		}
		*d.target = v
	}
	if cfg.LaunchCountdown < 0 {
		return nil, fmt.Errorf("LAUNCH_COUNTDOWN must not be negative, got %s", cfg.LaunchCountdown)
	}

	return cfg, nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func intFromEnv(key string, def int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}

func durationFromEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s environment variable: %w", key, err)
	}
	return v, nil
}

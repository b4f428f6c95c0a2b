package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures collector process configuration.
type Server struct {
	Addr           string
	APIKey         string
	AllowedOrigins []string
	DatabaseURL    string
	KafkaBrokers   []string
	KafkaTopic     string
	RateLimit      RateLimitConfig
	Redis          RedisConfig
	LogLevel       string
	LogFormat      string
	// OTLPEndpoint enables trace export when set.
	OTLPEndpoint string
}

// RateLimitConfig bounds audit submissions per client IP.
type RateLimitConfig struct {
	Max      int
	Window   time.Duration
	Disabled bool
}

// RedisConfig configures an optional Redis connection. An empty URL means
// Redis is not used.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Agent captures the audit agent's configuration.
type Agent struct {
	CollectorURL string
	APIKey       string
	ExtensionID  string
	StatePath    string
	Redis        RedisConfig
	LogLevel     string
	// OTLPEndpoint enables trace export when set.
	OTLPEndpoint string
}

const (
	DefaultAddr         = ":8080"
	DefaultCollectorURL = "http://localhost:8080"
	DefaultExtensionID  = "innexbot-v1"
	DefaultStatePath    = "innexbot-state.db"
)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr:           envOr("INNEXBOT_ADDR", DefaultAddr),
		APIKey:         os.Getenv("INNEXBOT_API_KEY"),
		AllowedOrigins: envList("ALLOWED_ORIGINS"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		KafkaBrokers:   envList("KAFKA_BROKERS"),
		KafkaTopic:     os.Getenv("KAFKA_TOPIC"),
		RateLimit: RateLimitConfig{
			Max:      envInt("RATE_LIMIT_MAX", 10),
			Window:   envDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
			Disabled: os.Getenv("RATE_LIMIT_DISABLED") == "true",
		},
		Redis:     redisFromEnv(),
		LogLevel:  envOr("LOG_LEVEL", "info"),
		LogFormat: envOr("LOG_FORMAT", "json"),

		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
}

// AgentFromEnv builds the agent defaults that CLI flags may override.
func AgentFromEnv() Agent {
	return Agent{
		CollectorURL: envOr("INNEXBOT_COLLECTOR_URL", DefaultCollectorURL),
		APIKey:       os.Getenv("INNEXBOT_API_KEY"),
		ExtensionID:  envOr("INNEXBOT_EXTENSION_ID", DefaultExtensionID),
		StatePath:    envOr("INNEXBOT_STATE", DefaultStatePath),
		Redis:        redisFromEnv(),
		LogLevel:     envOr("LOG_LEVEL", "info"),
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}
}

func redisFromEnv() RedisConfig {
	return RedisConfig{
		URL:          os.Getenv("REDIS_URL"),
		PoolSize:     envInt("REDIS_POOL_SIZE", 10),
		MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
		DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds service configuration.
type Config struct {
	DatabaseURL      string
	DatabaseMaxConns int32
	DatabaseMinConns int32
	DatabaseIdleTime time.Duration
	ServerAddr       string
	JWTSecret        string
	AllowAnonymous   bool
	ShutdownTimeout  time.Duration

	KafkaBrokers []string
	KafkaTopic   string
	KafkaEnabled bool
}

// Load reads configuration from environment.
func Load() (*Config, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		user := getenv("POSTGRES_USER", "lecture_hub")
		pass := getenv("POSTGRES_PASSWORD", "lecture_hub_pass")
		db := getenv("POSTGRES_DB", "lecture_hub")
		host := getenv("POSTGRES_HOST", "localhost")
		port := getenv("POSTGRES_PORT", "5432")
		sslmode := getenv("DATABASE_SSLMODE", "disable")
		dsn = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, pass, host, port, db, sslmode)
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	brokers := splitList(getenv("KAFKA_BROKERS", ""))

	return &Config{
		DatabaseURL:      dsn,
		DatabaseMaxConns: parseInt32(getenv("DATABASE_MAX_CONNS", "16"), 16),
		DatabaseMinConns: parseInt32(getenv("DATABASE_MIN_CONNS", "2"), 2),
		DatabaseIdleTime: parseDuration(getenv("DATABASE_CONN_IDLE_TIME", "5m"), 5*time.Minute),
		ServerAddr:       getenv("SERVER_ADDR", "0.0.0.0:8080"),
		JWTSecret:        secret,
		AllowAnonymous:   parseBool(getenv("ALLOW_ANONYMOUS_JOIN", "true"), true),
		ShutdownTimeout:  parseDuration(getenv("SHUTDOWN_TIMEOUT", "10s"), 10*time.Second),
		KafkaBrokers:     brokers,
		KafkaTopic:       getenv("KAFKA_CONTROL_TOPIC", "lecture-control-log"),
		KafkaEnabled:     len(brokers) > 0,
	}, nil
}

func getenv(key, def string) string {
	val := os.Getenv(key)
	if val == "" {
		return def
	}
	return val
}

func parseDuration(val string, def time.Duration) time.Duration {
	if val == "" {
		return def
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return def
	}
	return d
}

func parseInt32(val string, def int32) int32 {
	if val == "" {
		return def
	}
	n, err := strconv.ParseInt(val, 10, 32)
	if err != nil || n < 0 {
		return def
	}
	return int32(n)
}

func parseBool(val string, def bool) bool {
	if val == "" {
		return def
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return def
	}
	return b
}

func splitList(val string) []string {
	if val == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

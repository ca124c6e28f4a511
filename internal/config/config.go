package config

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env   string
	Port  int
	DBURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret           string
	JWTAccessTTLMinutes int
	JWTRefreshTTLHours  int

	OTLPEndpoint       string
	CORSAllowedOrigins []string
	RateLimitPerMinute int
	QueryCacheTTL      time.Duration

	WorkerConcurrency  int
	WorkerPollInterval time.Duration
	WorkerLockTTL      time.Duration
	WorkerHealthPort   int
	HousekeepingSpec   string

	// operators allowed on /admin
	AdminEmails []string

	// client side
	DirectoryURL            string
	DirectoryMaxRPS         float64
	SubmissionRedirectDelay time.Duration

	SeedEmployerEmail    string
	SeedEmployerPassword string
}

// Load reads the process environment, after merging a local .env file when one exists.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		Env:   getEnv("APP_ENV", "dev"),
		Port:  getEnvInt("PORT", 8080),
		DBURL: buildDBURL(),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		JWTSecret:           getEnv("JWT_SECRET", "dev-secret-change-me"),
		JWTAccessTTLMinutes: getEnvInt("JWT_ACCESS_TTL_MINUTES", 15),
		JWTRefreshTTLHours:  getEnvInt("JWT_REFRESH_TTL_HOURS", 24*7),

		OTLPEndpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:8081", "http://localhost:19006"}),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 120),
		QueryCacheTTL:      time.Duration(getEnvInt("QUERY_CACHE_TTL_SECONDS", 30)) * time.Second,

		WorkerConcurrency:  getEnvInt("WORKER_CONCURRENCY", 4),
		WorkerPollInterval: time.Duration(getEnvInt("WORKER_POLL_INTERVAL_MS", 250)) * time.Millisecond,
		WorkerLockTTL:      time.Duration(getEnvInt("WORKER_LOCK_TTL_SECONDS", 60)) * time.Second,
		WorkerHealthPort:   getEnvInt("WORKER_HEALTH_PORT", 8081),
		HousekeepingSpec:   getEnv("HOUSEKEEPING_SPEC", "@every 1h"),

		AdminEmails: getEnvList("ADMIN_EMAILS", nil),

		DirectoryURL:            getEnv("DIRECTORY_URL", "http://localhost:8080"),
		DirectoryMaxRPS:         getEnvFloat("DIRECTORY_MAX_RPS", 10),
		SubmissionRedirectDelay: time.Duration(getEnvInt("SUBMISSION_REDIRECT_DELAY_MS", 2000)) * time.Millisecond,

		SeedEmployerEmail:    getEnv("SEED_EMPLOYER_EMAIL", ""),
		SeedEmployerPassword: getEnv("SEED_EMPLOYER_PASSWORD", ""),
	}
}

func (c Config) AccessTTL() time.Duration {
	return time.Duration(c.JWTAccessTTLMinutes) * time.Minute
}

func (c Config) RefreshTTL() time.Duration {
	return time.Duration(c.JWTRefreshTTLHours) * time.Hour
}

func buildDBURL() string {
	if url := getEnv("DATABASE_URL", ""); url != "" {
		return url
	}

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "expertjobs")
	pass := getEnv("DB_PASSWORD", "expertjobs")
	name := getEnv("DB_NAME", "expertjobs")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	num, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer env value, using fallback", "key", key, "value", v, "fallback", fallback)
		return fallback
	}

	return num
}

func getEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	num, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("invalid float env value, using fallback", "key", key, "value", v, "fallback", fallback)
		return fallback
	}

	return num
}

// comma separated, blanks dropped
func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}

	out := make([]string, 0)
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}

	return out
}

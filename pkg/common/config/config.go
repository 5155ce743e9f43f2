package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	ServerHost     string
	ServerPort     string
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	MaxRequestBody int64
	RateLimitRPS   int
	RateLimitBurst int

	// Database
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	PostgresMaxOpenConns    int
	PostgresMaxIdleConns    int
	PostgresConnMaxLifetime time.Duration

	// Redis
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int

	// Kafka
	KafkaBrokers    []string
	KafkaAuditTopic string

	// JWT
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string
	JWTTTL      time.Duration

	// WHO ICD-11 API
	WHOTokenURL       string
	WHOClientID       string
	WHOClientSecret   string
	WHOScope          string
	WHOAPIBase        string
	WHORelease        string
	WHOLinearization  string
	WHOTimeout        time.Duration
	WHOSearchCacheTTL time.Duration
	WHOCandidateLimit int

	// Generative model
	GeminiAPIKey string
	GeminiModel  string
	LLMTimeout   time.Duration

	// NAMASTE vocabulary
	VocabularyPath string

	// Resolution workers
	ResolutionMaxWorkers int
}

func Load() *Config {
	return &Config{
		ServerHost:     getEnv("SERVER_HOST", "0.0.0.0"),
		ServerPort:     getEnv("SERVER_PORT", "8080"),
		ReadTimeout:    getDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:   getDuration("WRITE_TIMEOUT", 30*time.Second),
		MaxRequestBody: int64(getIntEnv("MAX_REQUEST_BODY_BYTES", 4*1024*1024)),
		RateLimitRPS:   getIntEnv("RATE_LIMIT_RPS", 50),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 100),

		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "terminology"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "terminology123"),
		PostgresDB:       getEnv("POSTGRES_DB", "terminology"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),

		PostgresMaxOpenConns:    getIntEnv("POSTGRES_MAX_OPEN_CONNS", 20),
		PostgresMaxIdleConns:    getIntEnv("POSTGRES_MAX_IDLE_CONNS", 5),
		PostgresConnMaxLifetime: getDuration("POSTGRES_CONN_MAX_LIFETIME", 30*time.Minute),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getIntEnv("REDIS_DB", 0),
		RedisPoolSize: getIntEnv("REDIS_POOL_SIZE", 8),

		KafkaBrokers:    getStringSliceEnv("KAFKA_BROKERS", []string{"localhost:9092"}),
		KafkaAuditTopic: getEnv("KAFKA_AUDIT_TOPIC", ""),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		JWTIssuer:   getEnv("JWT_ISSUER", "setu-terminology"),
		JWTAudience: getEnv("JWT_AUDIENCE", "setu-clients"),
		JWTTTL:      getDuration("JWT_TTL", time.Hour),

		WHOTokenURL:       getEnv("WHO_TOKEN_URL", "https://icdaccessmanagement.who.int/connect/token"),
		WHOClientID:       getEnv("WHO_CLIENT_ID", ""),
		WHOClientSecret:   getEnv("WHO_CLIENT_SECRET", ""),
		WHOScope:          getEnv("WHO_SCOPE", "icdapi_access"),
		WHOAPIBase:        getEnv("WHO_API_BASE", "https://id.who.int/icd"),
		WHORelease:        getEnv("WHO_RELEASE", "11"),
		WHOLinearization:  getEnv("WHO_LINEARIZATION", "mms"),
		WHOTimeout:        getDuration("WHO_TIMEOUT", 15*time.Second),
		WHOSearchCacheTTL: getDuration("WHO_SEARCH_CACHE_TTL", 0),
		WHOCandidateLimit: getIntEnv("WHO_CANDIDATE_LIMIT", 5),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash-lite"),
		LLMTimeout:   getDuration("LLM_TIMEOUT", 45*time.Second),

		VocabularyPath: getEnv("NAMASTE_CSV_PATH", "data/namaste.csv"),

		ResolutionMaxWorkers: getIntEnv("RESOLUTION_MAX_WORKERS", 4),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getStringSliceEnv(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

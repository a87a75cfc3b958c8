package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"
)

type Config struct {
	Env      string
	LogLevel string

	ServerAddr string

	DBDriver    string
	DatabaseURL string

	JWTSecret  []byte
	AccessTTL  time.Duration
	BcryptCost int

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration
	CacheSize     int

	RateLimitPerSecond float64
	RateLimitBurst     int

	KafkaBrokers []string
	KafkaTopic   string
}

// IsProduction is true unless APP_ENV explicitly asks for development.
func (c Config) IsProduction() bool {
	return c.Env != EnvDevelopment
}

// Load reads .env when present and then the process environment.
func Load() Config {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	env := EnvDefault("APP_ENV", EnvProduction)

	// bcrypt cost 4 keeps local runs fast; production uses bcrypt's default.
	defCost := 10
	if env == EnvDevelopment {
		defCost = 4
	}

	return Config{
		Env:      env,
		LogLevel: EnvDefault("LOG_LEVEL", "info"),

		ServerAddr: EnvDefault("SERVER_ADDR", ":8080"),

		DBDriver:    EnvDefault("DB_DRIVER", "postgres"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		JWTSecret:  []byte(os.Getenv("JWT_SECRET")),
		AccessTTL:  time.Duration(EnvIntDefault("JWT_EXPIRATION_MINUTES", 15)) * time.Minute,
		BcryptCost: EnvIntDefault("BCRYPT_COST", defCost),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       EnvIntDefault("REDIS_DB", 0),
		CacheTTL:      time.Duration(EnvIntDefault("CACHE_TTL_SECONDS", 3600)) * time.Second,
		CacheSize:     EnvIntDefault("CACHE_SIZE", 10000),

		RateLimitPerSecond: EnvFloatDefault("RATE_LIMIT_PER_SECOND", 10),
		RateLimitBurst:     EnvIntDefault("RATE_LIMIT_BURST", 30),

		KafkaBrokers: CSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   EnvDefault("KAFKA_TOPIC", "user_events"),
	}
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func EnvFloatDefault(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

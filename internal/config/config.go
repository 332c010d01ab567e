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

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RunMigrations         bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	SyncCacheTTLSeconds   int
	AuthSecret            string
	AccessTokenTTLMinutes int
	SuperUsername         string
	SuperPasswordHash     string
	LogLevel              string
	LogPretty             bool
}

// ClientConfig configures the device client.
type ClientConfig struct {
	RemoteURL      string
	LocalDBPath    string
	Username       string
	Password       string
	SellerName     string
	RequestTimeout time.Duration
	DrainInterval  time.Duration
	BackoffMin     time.Duration
	BackoffMax     time.Duration
	LogLevel       string
}

// LoadDotEnv loads variables from the given .env files (default ".env")
// without overriding ones already set. Missing files are ignored.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

func Load() Config {
	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	cacheTTL, err := strconv.Atoi(getEnv("SYNC_CACHE_TTL_SECONDS", "30"))
	if err != nil || cacheTTL < 1 {
		cacheTTL = 30
	}
	tokenTTL, err := strconv.Atoi(getEnv("ACCESS_TOKEN_TTL_MINUTES", "720"))
	if err != nil || tokenTTL < 1 {
		tokenTTL = 720
	}

	return Config{
		Port:                  getEnv("PORT", "8080"),
		AllowedOrigin:         getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		RunMigrations:         getBool("RUN_MIGRATIONS", true),
		RedisAddr:             os.Getenv("REDIS_ADDR"),
		RedisPassword:         os.Getenv("REDIS_PASSWORD"),
		RedisDB:               redisDB,
		SyncCacheTTLSeconds:   cacheTTL,
		AuthSecret:            strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		AccessTokenTTLMinutes: tokenTTL,
		SuperUsername:         strings.ToLower(strings.TrimSpace(getEnv("SUPER_USERNAME", "wandev"))),
		SuperPasswordHash:     strings.TrimSpace(os.Getenv("SUPER_PASSWORD_HASH")),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		LogPretty:             getBool("LOG_PRETTY", false),
	}
}

func LoadClient() ClientConfig {
	return ClientConfig{
		RemoteURL:      strings.TrimRight(getEnv("ASSIST_REMOTE_URL", "http://127.0.0.1:8080"), "/"),
		LocalDBPath:    getEnv("ASSIST_LOCAL_DB", "assist.db"),
		Username:       strings.TrimSpace(os.Getenv("ASSIST_USERNAME")),
		Password:       os.Getenv("ASSIST_PASSWORD"),
		SellerName:     getEnv("ASSIST_SELLER", "Balcão"),
		RequestTimeout: getSeconds("ASSIST_REQUEST_TIMEOUT_SECONDS", 10),
		DrainInterval:  getSeconds("ASSIST_DRAIN_INTERVAL_SECONDS", 5),
		BackoffMin:     getSeconds("ASSIST_BACKOFF_MIN_SECONDS", 1),
		BackoffMax:     getSeconds("ASSIST_BACKOFF_MAX_SECONDS", 60),
		LogLevel:       getEnv("LOG_LEVEL", "warn"),
	}
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func getBool(key string, fallback bool) bool {
	parsed, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		return fallback
	}
	return parsed
}

func getSeconds(key string, fallback int) time.Duration {
	parsed, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || parsed < 1 {
		parsed = fallback
	}
	return time.Duration(parsed) * time.Second
}

package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultDatastoreURL = "mongodb://localhost:27017/men_clothing_emporium"

type Config struct {
	AppEnv   string
	LogLevel string

	Port         int
	DatastoreURL string
	StaticDir    string

	Redis RedisConfig

	MetricsEnabled bool
	MetricsToken   string

	Auth AuthConfig

	TraceExporter string
	OTLPEndpoint  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

func (c RedisConfig) Enabled() bool { return c.Addr != "" }

type AuthConfig struct {
	JWTSecret            string
	OperatorEmail        string
	OperatorPasswordHash string
}

// Enabled reports whether every operator credential is configured.
func (c AuthConfig) Enabled() bool {
	return c.JWTSecret != "" && c.OperatorEmail != "" && c.OperatorPasswordHash != ""
}

// Load reads the dotenv file named by ENV_FILE (default ".env") into the
// process environment without overriding variables that are already set,
// then builds the Config from the environment.
func Load() (Config, error) {
	if err := loadDotenv(getEnv("ENV_FILE", ".env")); err != nil {
		return Config{}, err
	}

	return Config{
		AppEnv:   getEnv("APP_ENV", "dev"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		Port:         getEnvInt("PORT", 3000),
		DatastoreURL: getEnv("DATASTORE_URL", getEnv("MONGO_URL", defaultDatastoreURL)),
		StaticDir:    getEnv("STATIC_DIR", "public"),

		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
			TTL:      getEnvDuration("CACHE_TTL", 5*time.Minute),
		},

		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
		MetricsToken:   getEnv("METRICS_TOKEN", ""),

		Auth: AuthConfig{
			JWTSecret:            getEnv("JWT_SECRET", ""),
			OperatorEmail:        strings.ToLower(getEnv("OPERATOR_EMAIL", "")),
			OperatorPasswordHash: getEnv("OPERATOR_PASSWORD_HASH", ""),
		},

		TraceExporter: getEnv("OTEL_EXPORTER", "none"),
		OTLPEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
	}, nil
}

func loadDotenv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	n, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	b, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, ""))
	if err != nil || d <= 0 {
		return def
	}
	return d
}

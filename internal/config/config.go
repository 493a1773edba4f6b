// Package config loads application configuration from the environment.
package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	LogLevel    string

	// Region key used to look up the bank-holiday calendar,
	// e.g. "england-and-wales", "scotland".
	HolidayRegion string

	// Care provider identity printed on invoice documents.
	ProviderName    string
	ProviderAddress string
	ProviderEmail   string

	DBType        string
	DBHost        string
	DBPort        string
	DBName        string
	DBUser        string
	DBPassword    string
	DBSSLMode     string
	DBMaxIdleConn int
	DBMaxOpenConn int

	SchedulerEnabled bool
}

// Load reads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:       getenv("APP_SERVICE", "carebill"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		LogLevel:      getenv("LOG_LEVEL", "info"),
		HolidayRegion: getenv("HOLIDAY_REGION", "england-and-wales"),

		ProviderName:    getenv("PROVIDER_NAME", "CareBridge Home Care"),
		ProviderAddress: getenv("PROVIDER_ADDRESS", ""),
		ProviderEmail:   getenv("PROVIDER_EMAIL", ""),

		DBType:        getenv("DATABASE_TYPE", "postgres"),
		DBHost:        getenv("DATABASE_HOST", "localhost"),
		DBPort:        getenv("DATABASE_PORT", "5432"),
		DBName:        getenv("DATABASE_NAME", "carebill"),
		DBUser:        getenv("DATABASE_USER", "postgres"),
		DBPassword:    getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:     getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn: getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn: getenvInt("DATABASE_MAX_OPEN_CONN", 25),

		SchedulerEnabled: getenvBool("SCHEDULER_ENABLED", true),
	}
}

func getenv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

var Module = fx.Module("config",
	fx.Provide(Load),
)

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env        string
	HTTPPort   string
	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	SQLitePath string
	MaxRetries int
	LoanPeriod time.Duration
	PageSize   int
	SeedData   bool

	SeedAdminEmail    string
	SeedAdminPassword string
}

// Load reads an optional .env file and then the process environment.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	loanDays, err := getEnvInt("LOAN_PERIOD_DAYS", 7)
	if err != nil {
		return Config{}, err
	}
	pageSize, err := getEnvInt("PAGE_SIZE", 10)
	if err != nil {
		return Config{}, err
	}
	maxRetries, err := getEnvInt("DB_MAX_RETRIES", 10)
	if err != nil {
		return Config{}, err
	}
	seed, err := strconv.ParseBool(getEnv("SEED_DATA", "false"))
	if err != nil {
		return Config{}, fmt.Errorf("SEED_DATA: %w", err)
	}

	cfg := Config{
		Env:        getEnv("APP_ENV", "development"),
		HTTPPort:   getEnv("HTTP_PORT", "8080"),
		DBDriver:   getEnv("DB_DRIVER", "postgres"),
		DBHost:     getEnv("DB_HOST", "postgres"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "program"),
		DBPassword: getEnv("DB_PASSWORD", "test"),
		DBName:     getEnv("DB_NAME", "rental"),
		SQLitePath: getEnv("DB_SQLITE_PATH", "rental.db"),
		MaxRetries: maxRetries,
		LoanPeriod: time.Duration(loanDays) * 24 * time.Hour,
		PageSize:   pageSize,
		SeedData:   seed,

		SeedAdminEmail:    getEnv("SEED_ADMIN_EMAIL", "admin@example.com"),
		SeedAdminPassword: getEnv("SEED_ADMIN_PASSWORD", "admin123"),
	}
	if cfg.DBDriver != "postgres" && cfg.DBDriver != "sqlite" {
		return Config{}, fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", cfg.DBDriver)
	}
	if loanDays <= 0 {
		return Config{}, fmt.Errorf("LOAN_PERIOD_DAYS must be positive, got %d", loanDays)
	}
	return cfg, nil
}

func (c Config) DSN() string {
	if c.DBDriver == "sqlite" {
		return c.SQLitePath
	}
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

func (c Config) Production() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

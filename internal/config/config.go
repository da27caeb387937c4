package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Upstream CRM (Close)
	CloseAPIKey        string
	CloseBaseURL       string
	CloseActivityTypes string // optional JSON override of the activity type table

	// Upstream scheduling (Calendly)
	CalendlyToken   string
	CalendlyBaseURL string

	// Sync engine
	SyncDaysBack    int
	SyncDaysForward int
	CallsDaysBack   int
	SyncBatchSize   int
	SyncBudget      time.Duration
	SyncInterval    time.Duration
	FetchCap        int

	// Admin
	AdminToken string

	// Server
	Port        string
	CORSOrigins string
}

func Load() *Config {
	// Best effort; real env vars win over .env entries.
	_ = godotenv.Load()

	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "advisory_db"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		CloseAPIKey:        getEnv("CLOSE_API_KEY", ""),
		CloseBaseURL:       getEnv("CLOSE_API_URL", "https://api.close.com/api/v1"),
		CloseActivityTypes: getEnv("CLOSE_ACTIVITY_TYPES", ""),

		CalendlyToken:   getEnv("CALENDLY_API_TOKEN", ""),
		CalendlyBaseURL: getEnv("CALENDLY_API_URL", "https://api.calendly.com"),

		SyncDaysBack:    parseInt(getEnv("SYNC_DAYS_BACK", "90"), 90),
		SyncDaysForward: parseInt(getEnv("SYNC_DAYS_FORWARD", "90"), 90),
		CallsDaysBack:   parseInt(getEnv("CALLS_DAYS_BACK", "30"), 30),
		SyncBatchSize:   parseInt(getEnv("SYNC_BATCH_SIZE", "50"), 50),
		SyncBudget:      parseDuration(getEnv("SYNC_BUDGET", "25s"), 25*time.Second),
		SyncInterval:    parseDuration(getEnv("SYNC_INTERVAL", "15m"), 15*time.Minute),
		FetchCap:        parseInt(getEnv("SYNC_FETCH_CAP", "10000"), 10000),

		AdminToken: getEnv("ADMIN_TOKEN", ""),

		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),
	}
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

func parseInt(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}

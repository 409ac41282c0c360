package config

import (
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration values.
type Config struct {
	Secret         string
	HTTPPort       string
	DBDriver       string
	DatabaseDSN    string
	RedisAddress   string
	LogLevel       string
	CORSOrigins    []string
	CatalogCSV     string
	AdminEmail     string
	AdminPassword  string
	AlertSchedule  string
	NearExpiryDays int
	TokenTTLHours  int
}

// Load reads configuration from the environment (and a .env file, when one
// exists) with reasonable defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("unable to read .env file: %v", err)
	}

	secret := os.Getenv("SECRET")
	if secret == "" {
		secret = "dev_secret"
	}

	port := envOr("HTTP_PORT", "8080")
	// Validate that port is numeric.
	if _, err := strconv.Atoi(port); err != nil {
		log.Printf("invalid HTTP_PORT value %q, defaulting to 8080", port)
		port = "8080"
	}

	driver := strings.ToLower(envOr("DB_DRIVER", "sqlite"))
	if driver != "sqlite" && driver != "pgx" {
		log.Printf("unknown DB_DRIVER %q, defaulting to sqlite", driver)
		driver = "sqlite"
	}

	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		if driver == "pgx" {
			dsn = "postgres://postgres@localhost:5432/pharmacy?sslmode=disable"
		} else {
			dsn = "pharmacy.sqlite3"
		}
	}

	var origins []string
	for _, o := range strings.Split(envOr("CORS_ORIGINS", "*"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return Config{
		Secret:         secret,
		HTTPPort:       port,
		DBDriver:       driver,
		DatabaseDSN:    dsn,
		RedisAddress:   os.Getenv("REDIS_ADDRESS"),
		LogLevel:       envOr("LOG_LEVEL", "info"),
		CORSOrigins:    origins,
		CatalogCSV:     os.Getenv("CATALOG_CSV"),
		AdminEmail:     strings.ToLower(strings.TrimSpace(os.Getenv("ADMIN_EMAIL"))),
		AdminPassword:  os.Getenv("ADMIN_PASSWORD"),
		AlertSchedule:  envOr("ALERT_SCHEDULE", "@every 1h"),
		NearExpiryDays: envInt("NEAR_EXPIRY_DAYS", 90),
		TokenTTLHours:  envInt("TOKEN_TTL_HOURS", 24),
	}
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Printf("invalid %s value %q, defaulting to %d", key, raw, fallback)
		return fallback
	}
	return n
}

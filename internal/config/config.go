package config

import (
	"fmt"
	"os"
	"strconv"

	"mapmates-ledger/pkg/db" // Import db package for its Config structs

	"github.com/joho/godotenv"
)

// AppConfig holds all application-wide configurations.
type AppConfig struct {
	ServerPort       string
	DB               db.Config
	Redis            db.RedisConfig // Addr == "" disables caching
	AdminToken       string
	BroadcastWorkers int
}

// LoadConfig loads configuration from environment variables.
// A .env file in the working directory is honored when present.
// It returns an AppConfig instance or an error if any variable is invalid.
func LoadConfig() (*AppConfig, error) {
	_ = godotenv.Load()

	serverPort := getEnv("SERVER_PORT", "8080")

	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	redisDB := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		redisDB, err = strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
		}
	}

	workers := 8
	if v := os.Getenv("BROADCAST_WORKERS"); v != "" {
		workers, err = strconv.Atoi(v)
		if err != nil || workers <= 0 {
			return nil, fmt.Errorf("invalid BROADCAST_WORKERS: %q", v)
		}
	}

	// Default only suits local development, like the DB credentials below.
	adminToken := getEnv("ADMIN_TOKEN", "mapmates-admin")

	return &AppConfig{
		ServerPort: serverPort,
		DB: db.Config{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "mapmates"),
			Password: getEnv("DB_PASSWORD", "mapmates"),
			DBName:   getEnv("DB_NAME", "maposdb"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: db.RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASS"),
			DB:       redisDB,
		},
		AdminToken:       adminToken,
		BroadcastWorkers: workers,
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

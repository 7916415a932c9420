package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Config holds all configuration values from environment.
type Config struct {
	AppPort    string
	LogMode    string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// External renderer settings
	RenderServerURL string
	RenderTimeout   time.Duration

	// Artifact storage settings
	StorageRoot string

	// Auth settings
	JWTSecret string
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	renderTimeout := 30 * time.Second
	if timeoutEnv := os.Getenv("RENDER_TIMEOUT_SECONDS"); timeoutEnv != "" {
		val, err := strconv.Atoi(timeoutEnv)
		if err != nil {
			return nil, fmt.Errorf("invalid RENDER_TIMEOUT_SECONDS value: %v", err)
		}
		renderTimeout = time.Duration(val) * time.Second
	}
	cfg := &Config{
		AppPort:    os.Getenv("APP_PORT"),
		LogMode:    os.Getenv("LOG_MODE"),
		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     os.Getenv("DB_PORT"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),

		RenderServerURL: os.Getenv("RENDER_SERVER_URL"),
		RenderTimeout:   renderTimeout,

		StorageRoot: os.Getenv("STORAGE_ROOT"),

		JWTSecret: os.Getenv("JWT_SECRET"),
	}
	if cfg.RenderServerURL == "" {
		cfg.RenderServerURL = "http://localhost:3000"
	}
	if cfg.StorageRoot == "" {
		cfg.StorageRoot = "./uploads"
	}
	// Basic validation for required fields
	if cfg.DBHost == "" || cfg.DBUser == "" || cfg.DBName == "" {
		return nil, fmt.Errorf("database configuration is incomplete")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET must be set")
	}
	return cfg, nil
}

// ConnectDatabase initializes a GORM database connection to PostgreSQL.
func ConnectDatabase(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return db, nil
}

package config

import "os"

// Config holds the configuration service's server configuration.
type Config struct {
	Port        string
	LogLevel    string
	DatabaseURL string
	SeedDir     string
}

// Load loads configuration from environment variables.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		// Default to local generic postgres
		dbURL = "postgres://configsvc@localhost:5433/configsvc?sslmode=disable"
	}

	seedDir := os.Getenv("SEED_DIR")
	if seedDir == "" {
		seedDir = "./seed"
	}

	return &Config{
		Port:        port,
		LogLevel:    logLevel,
		DatabaseURL: dbURL,
		SeedDir:     seedDir,
	}
}

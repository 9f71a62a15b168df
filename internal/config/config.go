package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds application configuration.
type Config struct {
	// database settings; an empty DBHost runs the server on the
	// in-memory store
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// server settings
	ServerPort string
	Env        string
	LogLevel   string

	// CORS / websocket origin settings
	AllowedOrigins []string

	HeartbeatInterval time.Duration
	TypingTTL         time.Duration
}

// Load loads configuration from environment variables.
func Load() Config {
	cfg := Config{
		DBHost:            os.Getenv("DB_HOST"),
		DBPort:            getenv("DB_PORT", "3306"),
		DBUser:            os.Getenv("DB_USER"),
		DBPassword:        os.Getenv("DB_PASSWORD"),
		DBName:            os.Getenv("DB_NAME"),
		ServerPort:        getenv("SERVER_PORT", "8080"),
		Env:               getenv("ENV", "development"),
		LogLevel:          getenv("LOG_LEVEL", "info"),
		HeartbeatInterval: getduration("HEARTBEAT_INTERVAL", 10*time.Second),
		TypingTTL:         getduration("TYPING_TTL", 10*time.Second),
	}

	allowedOrigins := getenv("ALLOWED_ORIGINS",
		"http://localhost:3000,http://127.0.0.1:3000")
	cfg.AllowedOrigins = strings.Split(allowedOrigins, ",")
	for i := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(cfg.AllowedOrigins[i])
	}

	return cfg
}

// DSN builds the database connection string.
func (c Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// internal/infrastructure/config/config.go
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// App
	AppVersion string

	// Server
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// MongoDB
	MongoURI      string
	MongoDB       string
	MongoUser     string
	MongoPassword string

	// PostgreSQL
	PostgresURI string

	// Flight-status provider
	ProviderBaseURL      string
	ProviderTokenURL     string
	ProviderClientID     string
	ProviderClientSecret string
	ProviderTimeout      time.Duration
	ProviderRateLimit    float64 // requests per second across the poll worker pool

	// Poll scheduler
	TickInterval  time.Duration
	PollWorkers   int
	PollBatchSize int

	// Delivery pipeline
	DispatchInterval  time.Duration
	DispatchBatchSize int

	// WhatsApp transport
	WhatsAppEndpoint string
	WhatsAppToken    string
	CompanyID        string
	AgentID          string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	// Set defaults and override with env vars
	config := &Config{
		AppVersion:   getEnv("APP_VERSION", "1.0.0"),
		Port:         getEnv("PORT", "8080"),
		ReadTimeout:  time.Duration(getEnvAsInt("READ_TIMEOUT", 30)) * time.Second,
		WriteTimeout: time.Duration(getEnvAsInt("WRITE_TIMEOUT", 30)) * time.Second,

		MongoURI:      getEnv("MONGODB_DSN", "mongodb://localhost:27017"),
		MongoDB:       getEnv("MONGO_DB", "flightwatch"),
		MongoUser:     getEnv("MONGO_USER", ""),
		MongoPassword: getEnv("MONGO_PASSWORD", ""),

		PostgresURI: getEnv("POSTGRES_DSN", "postgres://localhost:5432/flightwatch"),

		ProviderBaseURL:      getEnv("PROVIDER_BASE_URL", ""),
		ProviderTokenURL:     getEnv("PROVIDER_TOKEN_URL", ""),
		ProviderClientID:     getEnv("PROVIDER_CLIENT_ID", ""),
		ProviderClientSecret: getEnv("PROVIDER_CLIENT_SECRET", ""),
		ProviderTimeout:      time.Duration(getEnvAsInt("PROVIDER_TIMEOUT", 10)) * time.Second,
		ProviderRateLimit:    getEnvAsFloat("PROVIDER_RATE_LIMIT", 5),

		TickInterval:  time.Duration(getEnvAsInt("TICK_INTERVAL", 120)) * time.Second,
		PollWorkers:   getEnvAsInt("POLL_WORKERS", 8),
		PollBatchSize: getEnvAsInt("POLL_BATCH_SIZE", 500),

		DispatchInterval:  time.Duration(getEnvAsInt("DISPATCH_INTERVAL", 10)) * time.Second,
		DispatchBatchSize: getEnvAsInt("DISPATCH_BATCH_SIZE", 100),

		WhatsAppEndpoint: getEnv("WHATSAPP_SERVICE_URL", ""),
		WhatsAppToken:    getEnv("TOKEN", ""),
		CompanyID:        getEnv("COMPANY_ID", ""),
		AgentID:          getEnv("AGENT_ID", ""),
	}

	return config, nil
}

// Helper functions to get environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

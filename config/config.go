package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/joho/godotenv"

	"github.com/Abhinavsb985/Smart-Traffic-Control/models"
)

// Config holds all configuration for the road reports service
type Config struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Connection pool
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBPingMaxWait     time.Duration

	// Server configuration
	Port           string
	PublicBaseURL  string
	TrustedProxies []string

	// Security
	JWTSecret string
	TokenTTL  time.Duration

	// Storage
	ReportsTable  string
	ImageBucket   string
	MaxImageBytes int

	// Deployment location, not user chosen
	Location models.Location

	// How long the success message stays visible
	MessageDismissDelay time.Duration

	// RabbitMQ, publishing is disabled when AMQPURL is empty
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string

	// Rate limiting
	RateLimitRPS   float64
	RateLimitBurst int

	// Logging
	LogLevel  string
	LogFormat string
}

// Load loads configuration from environment variables and an optional .env file
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Warnf("Failed to load .env file: %v", err)
	}

	port := getEnv("PORT", "8080")
	cfg := &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "server"),
		DBPassword: getEnv("DB_PASSWORD", "secret_app"),
		DBName:     getEnv("DB_NAME", "road_reports"),

		DBMaxOpenConns:    getIntEnv("DB_MAX_OPEN_CONNS", 25),
		DBMaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 10),
		DBConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		DBPingMaxWait:     getDurationEnv("DB_PING_MAX_WAIT", time.Minute),

		Port:           port,
		PublicBaseURL:  strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:"+port), "/"),
		TrustedProxies: getListEnv("TRUSTED_PROXIES"),

		JWTSecret: getEnv("JWT_SECRET", "change-me"),
		TokenTTL:  getDurationEnv("TOKEN_TTL", 24*time.Hour),

		ReportsTable:  getEnv("REPORTS_TABLE", "reports"),
		ImageBucket:   getEnv("IMAGE_BUCKET", "reports-images"),
		MaxImageBytes: getIntEnv("MAX_IMAGE_BYTES", 10<<20),

		Location: models.Location{
			Label:     getEnv("LOCATION_LABEL", "Kottakkal, Kerala"),
			Latitude:  getFloatEnv("LOCATION_LATITUDE", 10.5276),
			Longitude: getFloatEnv("LOCATION_LONGITUDE", 76.2144),
		},

		MessageDismissDelay: getDurationEnv("MESSAGE_DISMISS_DELAY", 3*time.Second),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "road-reports"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "report.created"),

		RateLimitRPS:   getFloatEnv("RATE_LIMIT_RPS", 10),
		RateLimitBurst: getIntEnv("RATE_LIMIT_BURST", 20),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),
	}

	if cfg.JWTSecret == "change-me" {
		log.Warn("JWT_SECRET is not set, using an insecure default")
	}

	return cfg
}

// Validate checks the values that cannot be defaulted silently.
func (c *Config) Validate() error {
	if !c.Location.Valid() {
		return fmt.Errorf("invalid location %s", c.Location)
	}
	if strings.TrimSpace(c.Location.Label) == "" {
		return fmt.Errorf("location label must not be empty")
	}
	if c.MessageDismissDelay <= 0 {
		return fmt.Errorf("message dismiss delay must be positive, got %v", c.MessageDismissDelay)
	}
	if c.MaxImageBytes <= 0 {
		return fmt.Errorf("max image bytes must be positive, got %d", c.MaxImageBytes)
	}
	if c.DBPingMaxWait <= 0 {
		return fmt.Errorf("database ping wait must be positive, got %v", c.DBPingMaxWait)
	}
	if c.ReportsTable == "" || c.ImageBucket == "" {
		return fmt.Errorf("reports table and image bucket must be set")
	}
	return nil
}

// DSN returns the MySQL data source name.
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		log.Warnf("Invalid duration %q for %s, using %v", value, key, defaultValue)
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		log.Warnf("Invalid integer %q for %s, using %d", value, key, defaultValue)
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		log.Warnf("Invalid number %q for %s, using %v", value, key, defaultValue)
	}
	return defaultValue
}

func getListEnv(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

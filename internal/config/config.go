package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all application configuration
type Config struct {
	// Service configuration
	ServiceName string
	ServicePort string

	// Media configuration
	MediaPath string

	// MySQL configuration
	MySQLHost     string
	MySQLPort     string
	MySQLUser     string
	MySQLPassword string
	MySQLDatabase string

	// Redis configuration
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Auth configuration
	AuthJWTSecret string

	// Signed URL configuration
	URLSigningSecret     string
	URLExpirationSeconds int

	// Progress sync configuration
	SyncIntervalSeconds int

	// Jaeger configuration
	JaegerEndpoint string
}

// LoadConfig loads configuration from environment variables with sensible defaults
func LoadConfig() (*Config, error) {
	config := &Config{
		// Service defaults
		ServiceName: getEnv("SERVICE_NAME", "streaming-service"),
		ServicePort: getEnv("SERVICE_PORT", "8080"),

		// Media defaults
		MediaPath: getEnv("MEDIA_PATH", "/var/lib/coursemedia"),

		// MySQL defaults
		MySQLHost:     getEnv("MYSQL_HOST", "localhost"),
		MySQLPort:     getEnv("MYSQL_PORT", "3306"),
		MySQLUser:     getEnv("MYSQL_USER", "root"),
		MySQLPassword: getEnv("MYSQL_PASSWORD", ""),
		MySQLDatabase: getEnv("MYSQL_DATABASE", "coursemedia"),

		// Redis defaults
		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvAsInt("REDIS_DB", 0),

		// Auth defaults
		AuthJWTSecret: getEnv("AUTH_JWT_SECRET", ""),

		// Signed URL defaults
		URLSigningSecret:     getEnv("URL_SIGNING_SECRET", ""),
		URLExpirationSeconds: getEnvAsInt("URL_EXPIRATION_SECONDS", 3600),

		// Progress sync defaults
		SyncIntervalSeconds: getEnvAsInt("SYNC_INTERVAL_SECONDS", 30),

		// Jaeger defaults
		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:4318"),
	}

	return config, nil
}

// Validate checks the startup-fatal conditions: a missing signing secret or
// an unreadable media root cannot be recovered from per-request.
func (c *Config) Validate() error {
	if c.URLSigningSecret == "" {
		return fmt.Errorf("URL_SIGNING_SECRET must be set")
	}
	if c.AuthJWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET must be set")
	}
	info, err := os.Stat(c.MediaPath)
	if err != nil {
		return fmt.Errorf("media path %s is not accessible: %w", c.MediaPath, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("media path %s is not a directory", c.MediaPath)
	}
	return nil
}

// GetDSN returns the MySQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.MySQLUser,
		c.MySQLPassword,
		c.MySQLHost,
		c.MySQLPort,
		c.MySQLDatabase,
	)
}

// GetRedisAddr returns the Redis address
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%s", c.RedisHost, c.RedisPort)
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

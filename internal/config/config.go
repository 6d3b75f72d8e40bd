package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// JWT configuration
	JWT JWTConfig

	// Redis configuration (optional, backs the rate limiter)
	Redis RedisConfig

	// Rate limiting configuration
	RateLimit RateLimitConfig

	// CORS configuration
	CORS CORSConfig

	// Booking rules
	Booking BookingConfig

	// Payment gateways
	Pesapal     PesapalConfig
	Flutterwave FlutterwaveConfig

	// Payment reconciliation sweep
	Reconcile ReconcileConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port        string
	Environment string // development, staging, production
	LogLevel    string // debug, info, warn, error
	PublicURL   string // Base URL of the web app, used for payment redirects
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
}

// JWTConfig holds JWT-related configuration
type JWTConfig struct {
	Secret            string
	AccessTokenExpiry time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	URL string // empty disables Redis, the database limiter is used instead
}

// RateLimitConfig holds rate limiting configuration for booking creation
type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
}

// CORSConfig holds CORS-related configuration
type CORSConfig struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
}

// BookingConfig holds booking pricing and payment rules
type BookingConfig struct {
	ServiceFeePercent     float64       // Platform service fee applied on top of the subtotal
	PaymentInProgressTTL  time.Duration // How long a submitted payment blocks a new attempt
	DefaultCommissionRate float64       // Used when an agent has no commission rate set
}

// PesapalConfig holds Pesapal API 3.0 configuration
type PesapalConfig struct {
	Environment    string // "sandbox" or "production"
	ConsumerKey    string
	ConsumerSecret string
	IPNID          string // Registered IPN id; registered on first use when empty
	IPNURL         string // Public URL of our IPN endpoint
	CallbackURL    string // Where Pesapal sends the customer after payment
	DevMode        bool   // Charge a fixed test amount instead of the booking total
}

// FlutterwaveConfig holds Flutterwave v3 configuration
type FlutterwaveConfig struct {
	BaseURL     string
	SecretKey   string
	SecretHash  string // Compared against the verif-hash webhook header
	RedirectURL string
	DevMode     bool
}

// ReconcileConfig controls the background sweep of stuck payments
type ReconcileConfig struct {
	Enabled    bool
	Schedule   string        // cron spec with seconds
	StaleAfter time.Duration // payments older than this are reconciled
	BatchSize  int
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Server: ServerConfig{
			Port:        getEnv("PORT", "8080"),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			PublicURL:   strings.TrimRight(getEnv("PUBLIC_URL", "http://localhost:3000"), "/"),
		},
		Database: DatabaseConfig{
			URL:                getEnv("DATABASE_URL", ""),
			MaxConnections:     getEnvAsInt("DATABASE_MAX_CONNECTIONS", 10),
			MaxIdleConnections: getEnvAsInt("DATABASE_MAX_IDLE_CONNECTIONS", 5),
			ConnMaxLifetime:    time.Duration(getEnvAsInt("DATABASE_CONN_MAX_LIFETIME", 300)) * time.Second,
		},
		JWT: JWTConfig{
			Secret:            getEnv("JWT_SECRET", ""),
			AccessTokenExpiry: time.Duration(getEnvAsInt("JWT_ACCESS_TOKEN_EXPIRY", 3600)) * time.Second,
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", ""),
		},
		RateLimit: RateLimitConfig{
			Requests:      getEnvAsInt("BOOKING_RATE_LIMIT", 10),
			WindowSeconds: getEnvAsInt("BOOKING_RATE_WINDOW_SECONDS", 60),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
			AllowedMethods: getEnvAsSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}),
			AllowedHeaders: getEnvAsSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization"}),
		},
		Booking: BookingConfig{
			ServiceFeePercent:     getEnvAsFloat("SERVICE_FEE_PERCENT", 0),
			PaymentInProgressTTL:  time.Duration(getEnvAsInt("PAYMENT_IN_PROGRESS_MINUTES", 30)) * time.Minute,
			DefaultCommissionRate: getEnvAsFloat("DEFAULT_COMMISSION_RATE", 10),
		},
		Pesapal: PesapalConfig{
			Environment:    getEnv("PESAPAL_ENVIRONMENT", "sandbox"),
			ConsumerKey:    getEnv("PESAPAL_CONSUMER_KEY", ""),
			ConsumerSecret: getEnv("PESAPAL_CONSUMER_SECRET", ""),
			IPNID:          getEnv("PESAPAL_IPN_ID", ""),
			IPNURL:         getEnv("PESAPAL_IPN_URL", ""),
			CallbackURL:    getEnv("PESAPAL_CALLBACK_URL", ""),
			DevMode:        getEnvAsBool("PESAPAL_DEV_MODE", false),
		},
		Flutterwave: FlutterwaveConfig{
			BaseURL:     getEnv("FLUTTERWAVE_BASE_URL", "https://api.flutterwave.com/v3"),
			SecretKey:   getEnv("FLUTTERWAVE_SECRET_KEY", ""),
			SecretHash:  getEnv("FLUTTERWAVE_SECRET_HASH", ""),
			RedirectURL: getEnv("FLUTTERWAVE_REDIRECT_URL", ""),
			DevMode:     getEnvAsBool("FLUTTERWAVE_DEV_MODE", false),
		},
		Reconcile: ReconcileConfig{
			Enabled:    getEnvAsBool("RECONCILE_ENABLED", true),
			Schedule:   getEnv("RECONCILE_CRON", "0 */10 * * * *"),
			StaleAfter: time.Duration(getEnvAsInt("RECONCILE_AFTER_MINUTES", 30)) * time.Minute,
			BatchSize:  getEnvAsInt("RECONCILE_BATCH_SIZE", 50),
		},
	}

	// Validate required configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if c.RateLimit.Requests <= 0 || c.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("BOOKING_RATE_LIMIT and BOOKING_RATE_WINDOW_SECONDS must be positive")
	}

	if c.Booking.ServiceFeePercent < 0 || c.Booking.ServiceFeePercent > 100 {
		return fmt.Errorf("SERVICE_FEE_PERCENT must be between 0 and 100")
	}

	// Gateways are only checked in production; development runs without credentials
	if c.Server.Environment == "production" {
		if c.Pesapal.ConsumerKey == "" || c.Pesapal.ConsumerSecret == "" {
			return fmt.Errorf("PESAPAL_CONSUMER_KEY and PESAPAL_CONSUMER_SECRET are required in production")
		}
		if c.Pesapal.IPNID == "" && c.Pesapal.IPNURL == "" {
			return fmt.Errorf("PESAPAL_IPN_ID or PESAPAL_IPN_URL is required in production")
		}
		if c.Flutterwave.SecretKey == "" {
			return fmt.Errorf("FLUTTERWAVE_SECRET_KEY is required in production")
		}
		if c.Flutterwave.SecretHash == "" {
			return fmt.Errorf("FLUTTERWAVE_SECRET_HASH is required in production")
		}
	}

	return nil
}

// Helper functions to get environment variables

func getEnv(key string, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Invalid integer value for %s, using default: %d", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		log.Printf("Invalid number value for %s, using default: %g", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		log.Printf("Invalid boolean value for %s, using default: %t", key, defaultValue)
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	var result []string
	for _, v := range strings.Split(valueStr, ",") {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}

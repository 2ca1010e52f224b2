package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	Port         string
	DatabasePath string
	LogLevel     string

	// Identity of this terminal. One vendor, one register, one operator at
	// a time; the operator name is stamped onto every sale.
	VendorID     string
	RegisterID   string
	OperatorName string

	RemoteBaseURL string
	RemoteTimeout time.Duration

	SyncInterval   time.Duration
	SyncBackoffMin time.Duration
	SyncBackoffMax time.Duration

	CatalogCacheTTL time.Duration

	AdminPIN         string
	JWTSecret        string
	AdminTokenExpiry time.Duration

	EmailServiceProvider string

	SMTPServer   string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string

	MailgunDomain        string
	MailgunPrivateAPIKey string

	SenderEmail string
	SenderName  string

	// Destination for permanent sync-failure alerts.
	AlertEmail string
}

var Cfg *AppConfig

func LoadConfig() {
	errEnv := godotenv.Load()
	if errEnv != nil {
		log.Println("Info: No .env file found or error loading .env file. Relying on OS environment variables and defaults. Error (if any):", errEnv)
	} else {
		log.Println(".env file loaded successfully.")
	}

	log.Println("Loading application configuration...")

	jwtSecret := getEnv("JWT_SECRET", "insecure-development-jwt-secret-change-me-32bytes!")
	if jwtSecret == "insecure-development-jwt-secret-change-me-32bytes!" {
		log.Println("WARNING: Using default insecure JWT_SECRET. Set JWT_SECRET environment variable for production.")
	}

	adminPIN := getEnv("ADMIN_PIN", "1234")
	if adminPIN == "1234" {
		log.Println("WARNING: Using default ADMIN_PIN '1234'. Set ADMIN_PIN environment variable for production.")
	}

	Cfg = &AppConfig{
		Port:         getEnv("PORT", "8080"),
		DatabasePath: getEnv("DATABASE_PATH", "./smalcash.db"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),

		VendorID:     getEnv("VENDOR_ID", "demo-vendor"),
		RegisterID:   getEnv("REGISTER_ID", "kasse-1"),
		OperatorName: getEnv("OPERATOR_NAME", "Kasse 1"),

		RemoteBaseURL: getEnv("REMOTE_BASE_URL", "http://localhost:9090"),
		RemoteTimeout: getEnvAsDuration("REMOTE_TIMEOUT", 10*time.Second),

		SyncInterval:   getEnvAsDuration("SYNC_INTERVAL", 30*time.Second),
		SyncBackoffMin: getEnvAsDuration("SYNC_BACKOFF_MIN", 5*time.Second),
		SyncBackoffMax: getEnvAsDuration("SYNC_BACKOFF_MAX", 5*time.Minute),

		CatalogCacheTTL: getEnvAsDuration("CATALOG_CACHE_TTL", 15*time.Minute),

		AdminPIN:         adminPIN,
		JWTSecret:        jwtSecret,
		AdminTokenExpiry: getEnvAsDuration("ADMIN_TOKEN_EXPIRY", 60*time.Minute),

		EmailServiceProvider: getEnv("EMAIL_SERVICE_PROVIDER", "mock"),

		SMTPServer:   getEnv("SMTP_SERVER", ""),
		SMTPPort:     getEnvAsInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),

		MailgunDomain:        getEnv("MAILGUN_DOMAIN", ""),
		MailgunPrivateAPIKey: getEnv("MAILGUN_PRIVATE_API_KEY", ""),

		SenderEmail: getEnv("SENDER_EMAIL", "noreply@example.com"),
		SenderName:  getEnv("SENDER_NAME", "SmalCash Kasse"),

		AlertEmail: getEnv("ALERT_EMAIL", ""),
	}

	if Cfg.EmailServiceProvider == "mailgun" {
		if Cfg.MailgunDomain == "" {
			log.Fatalf("FATAL: MAILGUN_DOMAIN is required when EMAIL_SERVICE_PROVIDER is 'mailgun', but it's not set in environment or .env file.")
		}
		if Cfg.MailgunPrivateAPIKey == "" {
			log.Fatalf("FATAL: MAILGUN_PRIVATE_API_KEY is required when EMAIL_SERVICE_PROVIDER is 'mailgun', but it's not set in environment or .env file.")
		}
	}

	log.Printf("Configuration loaded: Port=%s, LogLevel=%s, DBPath=%s, VendorID=%s, RegisterID=%s",
		Cfg.Port, Cfg.LogLevel, Cfg.DatabasePath, Cfg.VendorID, Cfg.RegisterID)
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	log.Printf("Environment variable %s not set, using default: %s", key, fallback)
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		log.Printf("Integer value for %s not set or empty, using default: %d", key, fallback)
		return fallback
	}
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid integer value for %s ('%s'), using default: %d", key, valueStr, fallback)
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		log.Printf("Duration value for %s not set or empty, using default: %s", key, fallback.String())
		return fallback
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	log.Printf("Invalid duration value for %s ('%s'), using default: %s", key, valueStr, fallback.String())
	return fallback
}

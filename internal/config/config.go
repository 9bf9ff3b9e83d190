package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"siakad_payment_echo/internal/services"
)

// Config is the runtime configuration shared by the server, the worker and the CLIs
type Config struct {
	Port                    string
	AppURL                  string
	Database                services.DBConfig
	RedisURL                string
	FirebaseCredentialsPath string
	// SecureCookies marks session cookies Secure; on when ENV=production
	SecureCookies bool

	Midtrans services.MidtransConfig
	Email    services.EmailConfig

	WahaBaseURL           string
	WahaAPIKey            string
	NotifyDeliveryEnabled bool

	WorkerTick      time.Duration
	TuitionCacheTTL time.Duration
	LockTTL         time.Duration
}

// Load reads a .env file if present and then the process environment
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment")
	}
	return FromEnv()
}

// FromEnv builds the configuration from the process environment only
func FromEnv() Config {
	appURL := strings.TrimRight(getEnv("APP_URL", "http://localhost:8080"), "/")
	return Config{
		Port:                    getEnv("PORT", "8080"),
		AppURL:                  appURL,
		Database: services.DBConfig{
			DSN:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 12),
			ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
			Debug:           getBool("DB_DEBUG", false),
		},
		RedisURL:                os.Getenv("REDIS_URL"),
		FirebaseCredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", "./firebase-service-account.json"),
		SecureCookies:           os.Getenv("ENV") == "production",
		Midtrans: services.MidtransConfig{
			ServerKey:    os.Getenv("MIDTRANS_SERVER_KEY"),
			ClientKey:    os.Getenv("MIDTRANS_CLIENT_KEY"),
			IsProduction: getBool("MIDTRANS_IS_PRODUCTION", false),
			DefaultBank:  getEnv("MIDTRANS_DEFAULT_BANK", "bni"),
			FinishURL:    appURL + "/payment/finish",
		},
		Email: services.EmailConfig{
			Host:     os.Getenv("SMTP_HOST"),
			Port:     getEnv("SMTP_PORT", "587"),
			User:     os.Getenv("SMTP_USER"),
			Password: os.Getenv("SMTP_PASS"),
			From:     os.Getenv("EMAIL_FROM"),
		},
		WahaBaseURL:           getEnv("WAHA_BASE_URL", "http://waha:3000"),
		WahaAPIKey:            os.Getenv("WAHA_API_KEY"),
		NotifyDeliveryEnabled: getBool("NOTIFY_DELIVERY_ENABLED", true),
		WorkerTick:            getDuration("WORKER_TICK", 10*time.Second),
		TuitionCacheTTL:       getDuration("TUITION_CACHE_TTL", 10*time.Minute),
		LockTTL:               getDuration("PAYMENT_LOCK_TTL", 30*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	value, err := strconv.ParseBool(getEnv(key, strconv.FormatBool(fallback)))
	if err != nil {
		log.Printf("Invalid boolean for %s, using %v", key, fallback)
		return fallback
	}
	return value
}

func getInt(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Printf("Invalid integer for %s, using %d", key, fallback)
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Printf("Invalid duration for %s, using %s", key, fallback)
		return fallback
	}
	return d
}

package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported values for DB_DRIVER
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Supported values for ROSTER_SOURCE
const (
	RosterDatabase = "database"
	RosterSheety   = "sheety"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	SQLitePath string

	CoinGeckoEndpoint string
	CoinGeckoAPIKey   string
	RapidAPIEndpoint  string
	RapidAPIKey       string
	RapidAPIHost      string
	IndexRequestDelay time.Duration
	FetchTimeout      time.Duration

	RosterSource        string
	SheetyUsersEndpoint string
	SheetyBearer        string

	SMTPHost        string
	SMTPPort        int
	SMTPUsername    string
	SMTPPassword    string
	MailFrom        string
	MailConcurrency int

	DigestTime        string
	UnsubscribeSecret string
	PublicBaseURL     string
	PreferencesURL    string

	MongoURI      string
	MongoDatabase string

	UniverseFile string
}

var AppConfig *Config
var DB *gorm.DB

// LoadConfig loads environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		DBDriver:   strings.ToLower(getEnv("DB_DRIVER", DriverPostgres)),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "price_digest"),
		DBSSLMode:  getEnv("DB_SSLMODE", "require"),
		SQLitePath: getEnv("SQLITE_PATH", "data/price_digest.db"),

		CoinGeckoEndpoint: strings.TrimRight(getEnv("COINGECKO_ENDPOINT", "https://api.coingecko.com/api/v3"), "/"),
		CoinGeckoAPIKey:   getEnv("COINGECKO_API_KEY", ""),
		RapidAPIEndpoint:  getEnv("RAPIDAPI_ENDPOINT", "https://trading-view.p.rapidapi.com/stocks/get-financials"),
		RapidAPIKey:       getEnv("RAPIDAPI_KEY", ""),
		RapidAPIHost:      getEnv("RAPIDAPI_HOST", "trading-view.p.rapidapi.com"),
		IndexRequestDelay: getEnvDuration("INDEX_REQUEST_DELAY", 1*time.Second),
		FetchTimeout:      getEnvDuration("FETCH_TIMEOUT", 20*time.Second),

		RosterSource:        strings.ToLower(getEnv("ROSTER_SOURCE", RosterDatabase)),
		SheetyUsersEndpoint: getEnv("SHEETY_USERS_ENDPOINT", ""),
		SheetyBearer:        getEnv("SHEETY_BEARER", ""),

		SMTPHost:        getEnv("SMTP_HOST", "smtp.gmail.com"),
		SMTPPort:        getEnvInt("SMTP_PORT", 587),
		SMTPUsername:    getEnv("SMTP_USERNAME", ""),
		SMTPPassword:    getEnv("SMTP_PASSWORD", ""),
		MailFrom:        getEnv("MAIL_FROM", ""),
		MailConcurrency: getEnvInt("MAIL_CONCURRENCY", 8),

		DigestTime:        getEnv("DIGEST_TIME", "00:00"),
		UnsubscribeSecret: getEnv("UNSUBSCRIBE_SECRET", ""),
		PublicBaseURL:     strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		PreferencesURL:    getEnv("PREFERENCES_URL", ""),

		MongoURI:      getEnv("MONGODB_URI", ""),
		MongoDatabase: getEnv("MONGODB_DATABASE", "price_digest"),

		UniverseFile: getEnv("UNIVERSE_FILE", ""),
	}

	if config.MailFrom == "" {
		config.MailFrom = config.SMTPUsername
	}

	if err := config.Validate(); err != nil {
		return config, err
	}

	AppConfig = config
	return config, nil
}

// Validate checks values that cannot be defaulted sensibly
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}

	switch c.RosterSource {
	case RosterDatabase:
	case RosterSheety:
		if c.SheetyUsersEndpoint == "" {
			return fmt.Errorf("ROSTER_SOURCE=sheety requires SHEETY_USERS_ENDPOINT")
		}
	default:
		return fmt.Errorf("unsupported ROSTER_SOURCE %q", c.RosterSource)
	}

	if _, _, err := ParseClock(c.DigestTime); err != nil {
		return fmt.Errorf("DIGEST_TIME: %w", err)
	}
	if c.MailConcurrency < 1 {
		return fmt.Errorf("MAIL_CONCURRENCY must be positive, got %d", c.MailConcurrency)
	}
	if c.IndexRequestDelay < 0 {
		return fmt.Errorf("INDEX_REQUEST_DELAY must not be negative")
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("FETCH_TIMEOUT must be positive")
	}
	return nil
}

// InitDB initializes database connection
func InitDB() (*gorm.DB, error) {
	var logLevel logger.LogLevel
	if AppConfig.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Warn
	}
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	}

	var dialector gorm.Dialector
	switch AppConfig.DBDriver {
	case DriverSQLite:
		log.Printf("Opening sqlite database: %s", AppConfig.SQLitePath)
		dialector = sqlite.Open(AppConfig.SQLitePath)
	default:
		// Log connection info (masked for security)
		log.Printf("Connecting to database: host=%s port=%s user=%s dbname=%s",
			maskHost(AppConfig.DBHost),
			AppConfig.DBPort,
			AppConfig.DBUser,
			AppConfig.DBName,
		)
		dsn := fmt.Sprintf(
			"host=%s user=%s password=%s dbname=%s port=%s sslmode=%s TimeZone=UTC",
			AppConfig.DBHost,
			AppConfig.DBUser,
			AppConfig.DBPassword,
			AppConfig.DBName,
			AppConfig.DBPort,
			AppConfig.DBSSLMode,
		)
		dialector = postgres.Open(dsn)
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection with ping
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Printf("Database connection verified successfully")
	DB = db
	return db, nil
}

// ParseClock parses "HH:MM" into hour and minute
func ParseClock(s string) (int, int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	return t.Hour(), t.Minute(), nil
}

// maskHost masks host for logging, preserving domain structure
func maskHost(host string) string {
	if len(host) <= 3 {
		return "***"
	}
	if len(host) <= 15 {
		return host[:3] + "***"
	}
	return host[:8] + "***" + host[len(host)-10:]
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid integer for %s=%q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

// getEnvDuration accepts Go durations ("1500ms") or bare milliseconds ("1500")
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Invalid duration for %s=%q, using default %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}

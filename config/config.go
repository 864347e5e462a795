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

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Storage   StorageConfig
	Models    ModelsConfig
	OCR       OCRConfig
	Firebase  FirebaseConfig
	RateLimit RateLimitConfig
	App       AppConfig
}

type ServerConfig struct {
	Port           string
	CORSOrigins    []string
	RequestTimeout time.Duration
}

type DatabaseConfig struct {
	Driver   string // sqlite3 | postgres
	Path     string // sqlite file
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Addr          string
	Password      string
	DB            int
	SuggestionTTL time.Duration
}

// Enabled reports whether a Redis address was configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type StorageConfig struct {
	UploadDir       string
	OutputDir       string
	TempDir         string
	RenderCacheTTL  time.Duration
	JanitorSchedule string
	MaxUploadBytes  int64
}

type ModelsConfig struct {
	ServerURL         string
	Timeout           time.Duration
	PatternNER        bool
	DetectorInputSize int
	KnownCompanies    []string
}

type OCRConfig struct {
	Default  bool
	Language string
	DPI      float64
}

type FirebaseConfig struct {
	CredentialsPath string
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

type AppConfig struct {
	Environment string
	LogLevel    string
	Version     string
}

var defaultCompanies = []string{
	"amazon", "flipkart", "walmart", "fedex", "dhl", "ups", "maersk",
	"reliance", "tata", "infosys", "google", "microsoft", "apple",
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			CORSOrigins:    getEnvAsList("CORS_ORIGINS", []string{"http://localhost:3000"}),
			RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 2*time.Minute),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "sqlite3"),
			Path:     getEnv("DB_PATH", "data/redactor.db"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "redactor"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:          getEnv("REDIS_ADDR", ""),
			Password:      getEnv("REDIS_PASSWORD", ""),
			DB:            getEnvAsInt("REDIS_DB", 0),
			SuggestionTTL: getEnvAsDuration("SUGGESTION_CACHE_TTL", 24*time.Hour),
		},
		Storage: StorageConfig{
			UploadDir:       getEnv("UPLOAD_DIR", "uploads"),
			OutputDir:       getEnv("OUTPUT_DIR", "output/redactions"),
			TempDir:         getEnv("TEMP_DIR", "output/temp"),
			RenderCacheTTL:  getEnvAsDuration("RENDER_CACHE_TTL", 6*time.Hour),
			JanitorSchedule: getEnv("JANITOR_SCHEDULE", "0 */15 * * * *"),
			MaxUploadBytes:  int64(getEnvAsInt("MAX_UPLOAD_MB", 32)) << 20,
		},
		Models: ModelsConfig{
			ServerURL:         strings.TrimRight(getEnv("MODEL_SERVER_URL", ""), "/"),
			Timeout:           getEnvAsDuration("MODEL_TIMEOUT", 30*time.Second),
			PatternNER:        getEnvAsBool("PATTERN_NER", true),
			DetectorInputSize: getEnvAsInt("DETECTOR_INPUT_SIZE", 1280),
			KnownCompanies:    getEnvAsList("KNOWN_COMPANIES", defaultCompanies),
		},
		OCR: OCRConfig{
			Default:  getEnvAsBool("OCR_DEFAULT", false),
			Language: getEnv("OCR_LANGUAGE", "eng"),
			DPI:      getEnvAsFloat("OCR_DPI", 300),
		},
		Firebase: FirebaseConfig{
			CredentialsPath: getEnv("FIREBASE_CREDENTIALS_PATH", ""),
		},
		RateLimit: RateLimitConfig{
			RPS:   getEnvAsFloat("RATE_LIMIT_RPS", 2),
			Burst: getEnvAsInt("RATE_LIMIT_BURST", 5),
		},
		App: AppConfig{
			Environment: getEnv("APP_ENV", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			Version:     getEnv("APP_VERSION", "1.0.0"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT is required")
	}

	switch c.Database.Driver {
	case "sqlite3":
		if c.Database.Path == "" {
			return fmt.Errorf("DB_PATH is required for sqlite3")
		}
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("DB_HOST is required")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}

	if c.Storage.UploadDir == "" || c.Storage.OutputDir == "" || c.Storage.TempDir == "" {
		return fmt.Errorf("UPLOAD_DIR, OUTPUT_DIR and TEMP_DIR are required")
	}

	if c.OCR.DPI <= 0 {
		return fmt.Errorf("OCR_DPI must be positive")
	}

	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid integer for %s, using default: %d", key, defaultValue)
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
		log.Printf("Warning: Invalid number for %s, using default: %g", key, defaultValue)
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
		log.Printf("Warning: Invalid boolean for %s, using default: %t", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		log.Printf("Warning: Invalid duration for %s, using default: %s", key, defaultValue)
		return defaultValue
	}

	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

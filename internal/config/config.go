// internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	Redis       RedisConfig
	AWS         AWSConfig
	LLM         LLMConfig
	DocumentAI  DocumentAIConfig
	Compliance  ComplianceConfig
	I18n        I18nConfig
	CORS        CORSConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  int
	WriteTimeout int
	IdleTimeout  int
	// RateLimitPerMinute applies per client IP to public routes.
	RateLimitPerMinute int
}

type DatabaseConfig struct {
	// Driver is "postgres" or "memory". The memory driver keeps the catalog
	// in process and is meant for local development.
	Driver       string
	Host         string
	Port         string
	User         string
	Password     string
	Database     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	MaxLifetime  int
	LogLevel     string
	SeedData     bool
}

type JWTConfig struct {
	SecretKey string
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	// ZipCacheTTL is in minutes. Zero disables the ZIP cache.
	ZipCacheTTL int
}

type AWSConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	S3Bucket        string
	CloudFrontURL   string
	// PublicBaseURL is used for COA links when S3 is not configured.
	PublicBaseURL string
}

type LLMConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	TimeoutSeconds int
	Temperature    float64
}

type DocumentAIConfig struct {
	ProjectID        string
	Location         string
	ProcessorID      string
	ProcessorVersion string
	CredentialsFile  string
	TimeoutSeconds   int
}

type ComplianceConfig struct {
	KeywordShortCircuit float64
	BulkPause           time.Duration
	BulkPauseEvery      int
	BulkDefaultLimit    int
	AuditConcurrency    int
	AuditDefaultLimit   int
	MaxCOAUploadMB      int
}

type I18nConfig struct {
	DefaultLocale string
}

type CORSConfig struct {
	AllowedOrigins []string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			Port:               getEnv("SERVER_PORT", "8080"),
			Host:               getEnv("SERVER_HOST", "localhost"),
			ReadTimeout:        getEnvAsInt("SERVER_READ_TIMEOUT", 15),
			WriteTimeout:       getEnvAsInt("SERVER_WRITE_TIMEOUT", 120),
			IdleTimeout:        getEnvAsInt("SERVER_IDLE_TIMEOUT", 60),
			RateLimitPerMinute: getEnvAsInt("RATE_LIMIT_PER_MINUTE", 120),
		},
		Database: DatabaseConfig{
			Driver:       getEnv("STORE_DRIVER", "postgres"),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnv("DB_PORT", "5432"),
			User:         getEnv("DB_USER", "postgres"),
			Password:     getEnv("DB_PASSWORD", ""),
			Database:     getEnv("DB_NAME", "compliance"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			MaxLifetime:  getEnvAsInt("DB_MAX_LIFETIME", 300),
			LogLevel:     getEnv("DB_LOG_LEVEL", "warn"),
			SeedData:     getEnvAsBool("DB_SEED", true),
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		},
		Redis: RedisConfig{
			Host:        getEnv("REDIS_HOST", ""),
			Port:        getEnv("REDIS_PORT", "6379"),
			Password:    getEnv("REDIS_PASSWORD", ""),
			DB:          getEnvAsInt("REDIS_DB", 0),
			ZipCacheTTL: getEnvAsInt("REDIS_ZIP_CACHE_TTL_MINUTES", 1440),
		},
		AWS: AWSConfig{
			Region:          getEnv("AWS_REGION", "us-east-1"),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
			S3Bucket:        getEnv("AWS_S3_BUCKET", "compliance-coa"),
			CloudFrontURL:   getEnv("AWS_CLOUDFRONT_URL", ""),
			PublicBaseURL:   getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
		},
		LLM: LLMConfig{
			BaseURL:        getEnv("LLM_BASE_URL", "https://api.openai.com"),
			APIKey:         getEnv("LLM_API_KEY", ""),
			Model:          getEnv("LLM_MODEL", "gpt-4o-mini"),
			TimeoutSeconds: getEnvAsInt("LLM_TIMEOUT_SECONDS", 30),
			Temperature:    getEnvAsFloat("LLM_TEMPERATURE", 0),
		},
		DocumentAI: DocumentAIConfig{
			ProjectID:        getEnv("DOCUMENTAI_PROJECT_ID", ""),
			Location:         getEnv("DOCUMENTAI_LOCATION", "us"),
			ProcessorID:      getEnv("DOCUMENTAI_PROCESSOR_ID", ""),
			ProcessorVersion: getEnv("DOCUMENTAI_PROCESSOR_VERSION", ""),
			CredentialsFile:  getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
			TimeoutSeconds:   getEnvAsInt("DOCUMENTAI_TIMEOUT_SECONDS", 60),
		},
		Compliance: ComplianceConfig{
			KeywordShortCircuit: getEnvAsFloat("COMPLIANCE_KEYWORD_SHORTCIRCUIT", 1.0),
			BulkPause:           getEnvAsDuration("COMPLIANCE_BULK_PAUSE", time.Second),
			BulkPauseEvery:      getEnvAsInt("COMPLIANCE_BULK_PAUSE_EVERY", 10),
			BulkDefaultLimit:    getEnvAsInt("COMPLIANCE_BULK_DEFAULT_LIMIT", 100),
			AuditConcurrency:    getEnvAsInt("COMPLIANCE_AUDIT_CONCURRENCY", 4),
			AuditDefaultLimit:   getEnvAsInt("COMPLIANCE_AUDIT_DEFAULT_LIMIT", 500),
			MaxCOAUploadMB:      getEnvAsInt("COMPLIANCE_MAX_COA_UPLOAD_MB", 20),
		},
		I18n: I18nConfig{
			DefaultLocale: getEnv("DEFAULT_LOCALE", "en"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	if c.JWT.SecretKey == "your-secret-key-change-in-production" && c.Environment == "production" {
		return fmt.Errorf("JWT secret key must be changed in production")
	}

	if c.Database.Driver != "postgres" && c.Database.Driver != "memory" {
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Database.Driver)
	}

	if c.Database.Driver == "postgres" && c.Database.Password == "" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	if c.Database.Driver == "memory" && c.Environment == "production" {
		return fmt.Errorf("the memory store cannot be used in production")
	}

	if c.Compliance.KeywordShortCircuit < 0 || c.Compliance.KeywordShortCircuit > 1 {
		return fmt.Errorf("COMPLIANCE_KEYWORD_SHORTCIRCUIT must be between 0 and 1")
	}

	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

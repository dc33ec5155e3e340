package common

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Store  StoreConfig
	Server ServerConfig
	OCR    OCRConfig
	Vision VisionConfig
	Queue  QueueConfig
	Log    LogConfig
}

// StoreConfig holds primary and fallback store configuration
type StoreConfig struct {
	PrimaryURI        string
	PrimaryDB         string
	PrimaryCollection string
	FallbackPath      string

	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr       string
	GRPCHealthAddr string
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Engine            string
	Language          string
	TessdataDir       string
	MaxImageDimension int
	Timeout           time.Duration
	PDFRasterScale    int
	PDFConcurrency    int
}

// VisionConfig holds vision-LLM fallback configuration
type VisionConfig struct {
	Enabled   bool
	Provider  string
	APIKey    string
	Model     string
	BaseURL   string
	Timeout   time.Duration
	ProjectID string
	Region    string
}

// Available reports whether the fallback may be used.
func (v VisionConfig) Available() bool {
	if !v.Enabled {
		return false
	}
	if v.Provider == "vertex" {
		return v.ProjectID != ""
	}
	return strings.TrimSpace(v.APIKey) != ""
}

type QueueConfig struct {
	Workers int
	Size    int
}

type LogConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Store: StoreConfig{
			PrimaryURI:        getEnv("PRIMARY_STORE_URI", ""),
			PrimaryDB:         getEnv("PRIMARY_STORE_DB", ""),
			PrimaryCollection: getEnv("PRIMARY_STORE_COLLECTION", "medical_documents"),
			FallbackPath:      getEnv("FALLBACK_STORE_PATH", "./data/medical_documents.json"),
			MaxConns:          getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:          getEnvAsInt32("DB_MIN_CONNS", 1),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:       getEnvAsDuration("DB_DIAL_TIMEOUT", 5*time.Second),
		},
		Server: ServerConfig{
			HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
			GRPCHealthAddr: getEnv("GRPC_HEALTH_ADDR", ":8081"),
		},
		OCR: OCRConfig{
			Engine:            getEnv("OCR_ENGINE", "tesseract-cli"),
			Language:          getEnv("OCR_LANGUAGE", "eng"),
			TessdataDir:       getEnv("TESSDATA_PREFIX", ""),
			MaxImageDimension: getEnvAsInt("MAX_IMAGE_DIMENSION", 2048),
			Timeout:           time.Duration(getEnvAsInt("OCR_TIMEOUT_SECONDS", 120)) * time.Second,
			PDFRasterScale:    getEnvAsInt("PDF_RASTER_SCALE", 2),
			PDFConcurrency:    getEnvAsInt("PDF_PAGE_CONCURRENCY", 4),
		},
		Vision: VisionConfig{
			Enabled:   getEnvAsBool("USE_VISION_LLM_FALLBACK", true),
			Provider:  getEnv("VISION_LLM_PROVIDER", "openai"),
			APIKey:    getEnv("VISION_LLM_API_KEY", os.Getenv("OPENAI_API_KEY")),
			Model:     getEnv("VISION_LLM_MODEL", "gpt-4o"),
			BaseURL:   getEnv("VISION_LLM_BASE_URL", ""),
			Timeout:   time.Duration(getEnvAsInt("VISION_LLM_TIMEOUT_SECONDS", 30)) * time.Second,
			ProjectID: getEnv("GCP_PROJECT_ID", ""),
			Region:    getEnv("GCP_REGION", "us-central1"),
		},
		Queue: QueueConfig{
			Workers: getEnvAsInt("WORKERS", 4),
			Size:    getEnvAsInt("QUEUE_SIZE", 64),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Store.FallbackPath == "" {
		return NewAppError("CONFIG_ERROR", "FALLBACK_STORE_PATH is required", ErrInvalidInput)
	}
	if c.OCR.MaxImageDimension <= 0 {
		return NewAppError("CONFIG_ERROR", "MAX_IMAGE_DIMENSION must be positive", ErrInvalidInput)
	}
	if c.OCR.Timeout <= 0 {
		return NewAppError("CONFIG_ERROR", "OCR_TIMEOUT_SECONDS must be positive", ErrInvalidInput)
	}
	if c.OCR.PDFRasterScale <= 0 {
		return NewAppError("CONFIG_ERROR", "PDF_RASTER_SCALE must be positive", ErrInvalidInput)
	}
	switch c.OCR.Engine {
	case "tesseract", "tesseract-cli", "cloudvision":
	default:
		return NewAppError("CONFIG_ERROR", "OCR_ENGINE must be one of tesseract, tesseract-cli, cloudvision", ErrInvalidInput)
	}
	switch c.Vision.Provider {
	case "openai", "vertex":
	default:
		return NewAppError("CONFIG_ERROR", "VISION_LLM_PROVIDER must be openai or vertex", ErrInvalidInput)
	}
	if c.Vision.Timeout <= 0 {
		return NewAppError("CONFIG_ERROR", "VISION_LLM_TIMEOUT_SECONDS must be positive", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server config
	Server ServerConfig

	// database config
	Database DatabaseConfig

	// model and inference config
	Model ModelConfig

	// upload validation and rate limits
	Limits LimitsConfig

	// CSRF, sessions, password hashing
	Security SecurityConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         string
	Environment  string // development, staging, production
	BaseURL      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL string
}

// ModelConfig holds the forgery model artifact and inference settings.
type ModelConfig struct {
	Path                string
	MetadataPath        string
	Device              string
	ImageSize           int
	ConfidenceThreshold float64
	NumWorkers          int
}

// LimitsConfig holds upload validation, batching, rate limit, and
// cache settings.
type LimitsConfig struct {
	MaxFileSize        int64
	AllowedExtensions  []string
	MaxBatchSize       int
	RateLimitPerMinute int
	ResultsCacheTTL    time.Duration
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	CSRFSecret        string
	SessionCookieName string
	SessionDuration   time.Duration
	BcryptCost        int
	SecureCookies     bool // true in production
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

// AllowsExtension reports whether the filename extension is accepted
// for upload. Matching is case-insensitive.
func (c *LimitsConfig) AllowsExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, allowed := range c.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not found)
	// This is useful for local development but not required in production
	// where env vars are typically set by the orchestration platform
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Server = ServerConfig{
		Port:         getEnvOrDefault("SERVER_PORT", "8080"),
		Environment:  getEnvOrDefault("ENVIRONMENT", "development"),
		BaseURL:      getEnvOrDefault("BASE_URL", "http://localhost:8080"),
		ReadTimeout:  getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
		WriteTimeout: getDurationOrDefault("SERVER_WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:  getDurationOrDefault("SERVER_IDLE_TIMEOUT", 60*time.Second),
	}

	cfg.Database = DatabaseConfig{
		URL: os.Getenv("DATABASE_URL"),
	}

	imageSize, err := getIntOrDefault("IMAGE_SIZE", 512)
	if err != nil {
		return nil, err
	}
	threshold, err := getFloatOrDefault("CONFIDENCE_THRESHOLD", 0.5)
	if err != nil {
		return nil, err
	}
	workers, err := getIntOrDefault("NUM_WORKERS", 4)
	if err != nil {
		return nil, err
	}

	cfg.Model = ModelConfig{
		Path:                getEnvOrDefault("MODEL_PATH", "models/trained/best_model.onnx"),
		MetadataPath:        getEnvOrDefault("MODEL_METADATA_PATH", "models/trained/model_metadata.json"),
		Device:              getEnvOrDefault("DEVICE", "cpu"),
		ImageSize:           imageSize,
		ConfidenceThreshold: threshold,
		NumWorkers:          workers,
	}

	maxFileSize, err := getIntOrDefault("MAX_FILE_SIZE", 50*1024*1024)
	if err != nil {
		return nil, err
	}
	maxBatch, err := getIntOrDefault("MAX_BATCH_SIZE", 10)
	if err != nil {
		return nil, err
	}
	ratePerMinute, err := getIntOrDefault("RATE_LIMIT_PER_MINUTE", 100)
	if err != nil {
		return nil, err
	}
	cacheTTLSeconds, err := getIntOrDefault("RESULTS_CACHE_TTL", 86400)
	if err != nil {
		return nil, err
	}

	cfg.Limits = LimitsConfig{
		MaxFileSize:        int64(maxFileSize),
		AllowedExtensions:  splitList(getEnvOrDefault("ALLOWED_EXTENSIONS", ".jpg .jpeg .png .tiff .tif .bmp")),
		MaxBatchSize:       maxBatch,
		RateLimitPerMinute: ratePerMinute,
		ResultsCacheTTL:    time.Duration(cacheTTLSeconds) * time.Second,
	}

	sessionHours, err := getIntOrDefault("SESSION_DURATION_HOURS", 24)
	if err != nil {
		return nil, err
	}
	bcryptCost, err := getIntOrDefault("BCRYPT_COST", 12)
	if err != nil {
		return nil, err
	}

	cfg.Security = SecurityConfig{
		CSRFSecret:        os.Getenv("CSRF_SECRET"),
		SessionCookieName: getEnvOrDefault("SESSION_COOKIE_NAME", "forgery_analyzer_session"),
		SessionDuration:   time.Duration(sessionHours) * time.Hour,
		BcryptCost:        bcryptCost,
		SecureCookies:     cfg.Server.Environment == "production",
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate checks that all required configuration is present and valid
// so a bad deployment fails at startup.
func (c *Config) validate() error {
	var errs []error

	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}

	if c.Security.CSRFSecret == "" {
		errs = append(errs, errors.New("CSRF_SECRET is required"))
	} else if len(c.Security.CSRFSecret) < 32 {
		errs = append(errs, errors.New("CSRF_SECRET must be at least 32 characters"))
	}

	if c.Model.Path == "" {
		errs = append(errs, errors.New("MODEL_PATH is required"))
	}
	if c.Model.ConfidenceThreshold <= 0 || c.Model.ConfidenceThreshold >= 1 {
		errs = append(errs, errors.New("CONFIDENCE_THRESHOLD must be in (0, 1)"))
	}
	if c.Model.ImageSize <= 0 {
		errs = append(errs, errors.New("IMAGE_SIZE must be positive"))
	}
	if c.Model.NumWorkers <= 0 {
		errs = append(errs, errors.New("NUM_WORKERS must be positive"))
	}

	if c.Limits.MaxFileSize <= 0 {
		errs = append(errs, errors.New("MAX_FILE_SIZE must be positive"))
	}
	if c.Limits.MaxBatchSize <= 0 {
		errs = append(errs, errors.New("MAX_BATCH_SIZE must be positive"))
	}
	if len(c.Limits.AllowedExtensions) == 0 {
		errs = append(errs, errors.New("ALLOWED_EXTENSIONS must not be empty"))
	}

	// Cost < 10 is too fast (vulnerable to brute force)
	// Cost > 16 is too slow (poor user experience)
	if c.Security.BcryptCost < 10 || c.Security.BcryptCost > 16 {
		errs = append(errs, errors.New("BCRYPT_COST must be between 10 and 16"))
	}

	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
	}
	if !validEnvs[c.Server.Environment] {
		errs = append(errs, fmt.Errorf("ENVIRONMENT must be one of: development, staging, production (got: %s)", c.Server.Environment))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%w", errors.Join(errs...))
	}

	return nil
}

// getEnvOrDefault returns the .env value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getFloatOrDefault(key string, defaultValue float64) (float64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return defaultValue
		}
		return duration
	}
	return defaultValue
}

func splitList(s string) []string {
	fields := strings.Fields(s)
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, strings.ToLower(f))
	}
	return out
}

// MustLoad is like Load but panics on error.
// Used in main() where its required to fail fast
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

package common

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	HTTPAddr string `envconfig:"HTTP_ADDR" default:":8001"`

	// DataDir is the root for uploaded PDFs; DBPath the sqlite database file.
	DataDir string `envconfig:"DATA_DIR" default:"./data"`
	DBPath  string `envconfig:"DB_PATH" default:"./data/dataextract.db"`

	GeminiAPIKey string  `envconfig:"GEMINI_API_KEY"`
	GeminiModel  string  `envconfig:"GEMINI_MODEL" default:"gemini-2.5-pro"`
	Temperature  float32 `envconfig:"GEMINI_TEMPERATURE" default:"0.0"`

	ExtractTimeout time.Duration `envconfig:"EXTRACT_TIMEOUT" default:"5m"`
	MaxAttempts    int           `envconfig:"EXTRACT_MAX_ATTEMPTS" default:"3"`
	BackoffBase    time.Duration `envconfig:"EXTRACT_BACKOFF_BASE" default:"500ms"`

	Workers   int `envconfig:"WORKERS" default:"4"`
	QueueSize int `envconfig:"QUEUE_SIZE" default:"64"`

	// MaxUploadBytes caps the accepted PDF payload size.
	MaxUploadBytes int64 `envconfig:"MAX_UPLOAD_BYTES" default:"52428800"`
}

// Load reads configuration from the environment, honoring a local .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, WrapError(err, "process environment")
	}
	return &c, nil
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	if c.GeminiAPIKey == "" {
		return NewAppError("CONFIG_ERROR", "GEMINI_API_KEY is required", ErrInvalidInput)
	}
	if c.MaxAttempts < 1 {
		return NewAppError("CONFIG_ERROR", "EXTRACT_MAX_ATTEMPTS must be >= 1", ErrInvalidInput)
	}
	return nil
}

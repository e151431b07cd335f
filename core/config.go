package core

import (
	"crypto/tls"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Config holds all configuration values
type Config struct {
	// HTTP server
	Host           string
	Port           int
	MaxUploadBytes int64
	MaxImagePixels int64  // decoded width x height limit
	APITokenHash   string // bcrypt hash; empty disables auth

	// Models
	ModelsDir            string // root scanned for model subdirectories
	ModelDir             string // fallback when a request names no model
	ServingURL           string // TensorFlow Serving REST endpoint
	ServingTimeout       time.Duration
	AllowSelfSignedCerts bool

	// Debug output
	TmpDir    string
	DebugSave bool

	// History
	DBPath               string
	HistoryEnabled       bool
	HistoryRetentionDays int

	// Process
	DevMode         bool
	LogFile         string
	ShutdownTimeout time.Duration
}

// Defaults used when the matching variable is unset.
const (
	DefaultPort                 = 6100
	DefaultHost                 = "0.0.0.0"
	DefaultModelsDir            = "./saved_models"
	DefaultServingURL           = "http://127.0.0.1:8501"
	DefaultServingTimeout       = 60 * time.Second
	DefaultTmpDir               = "./tmp"
	DefaultDBPath               = "./data/stega.db"
	DefaultMaxUploadBytes       = 20 << 20
	DefaultMaxImagePixels       = 89_478_485
	DefaultHistoryRetentionDays = 30
	DefaultLogFile              = "stega.log"
	DefaultShutdownTimeout      = 30 * time.Second
)

// LoadConfig reads configuration from environment variables. Call
// godotenv.Load first to pick up a .env file.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Host:                 GetEnvOrDefault("HOST", DefaultHost),
		Port:                 ParseIntEnv("PORT", DefaultPort),
		MaxUploadBytes:       ParseSizeEnv("MAX_UPLOAD_BYTES", DefaultMaxUploadBytes),
		MaxImagePixels:       int64(ParseIntEnv("MAX_IMAGE_PIXELS", DefaultMaxImagePixels)),
		APITokenHash:         strings.TrimSpace(os.Getenv("API_TOKEN_HASH")),
		ModelsDir:            GetEnvOrDefault("MODELS_DIR", DefaultModelsDir),
		ModelDir:             strings.TrimSpace(os.Getenv("MODEL_DIR")),
		ServingURL:           strings.TrimRight(GetEnvOrDefault("SERVING_URL", DefaultServingURL), "/"),
		ServingTimeout:       ParseDurationEnv("SERVING_TIMEOUT", DefaultServingTimeout),
		AllowSelfSignedCerts: ParseBoolEnv("ALLOW_SELF_SIGNED_CERTS", false),
		TmpDir:               GetEnvOrDefault("TMP_DIR", DefaultTmpDir),
		DebugSave:            ParseBoolEnv("DEBUG_SAVE", false),
		DBPath:               GetEnvOrDefault("DB_PATH", DefaultDBPath),
		HistoryEnabled:       ParseBoolEnv("HISTORY_ENABLED", true),
		HistoryRetentionDays: ParseIntEnv("HISTORY_RETENTION_DAYS", DefaultHistoryRetentionDays),
		DevMode:              ParseBoolEnv("DEV_MODE", false),
		LogFile:              GetEnvOrDefault("LOG_FILE", DefaultLogFile),
		ShutdownTimeout:      ParseDurationEnv("SHUTDOWN_TIMEOUT", DefaultShutdownTimeout),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks value ranges and formats. Existence of the model
// directories is left to startup validation so a missing model can be
// reported alongside other problems.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidPort(c.Port)
	}
	if err := ValidateServerURL(c.ServingURL); err != nil {
		return ErrInvalidServingURL(c.ServingURL, err.Error())
	}
	if c.ServingTimeout <= 0 {
		return ErrInvalidValue("SERVING_TIMEOUT", c.ServingTimeout.String(), "must be positive")
	}
	if c.MaxUploadBytes <= 0 {
		return ErrInvalidValue("MAX_UPLOAD_BYTES", strconv.FormatInt(c.MaxUploadBytes, 10), "must be positive")
	}
	if c.MaxImagePixels <= 0 {
		return ErrInvalidValue("MAX_IMAGE_PIXELS", strconv.FormatInt(c.MaxImagePixels, 10), "must be positive")
	}
	if c.HistoryRetentionDays < 0 {
		return ErrInvalidValue("HISTORY_RETENTION_DAYS", strconv.Itoa(c.HistoryRetentionDays), "must not be negative")
	}
	if c.ModelsDir == "" && c.ModelDir == "" {
		return ErrMissingConfig("MODELS_DIR")
	}
	if c.APITokenHash != "" {
		if _, err := bcrypt.Cost([]byte(c.APITokenHash)); err != nil {
			return ErrInvalidTokenHash(err.Error())
		}
	}
	if c.HistoryEnabled && c.DBPath == "" {
		return ErrMissingConfig("DB_PATH")
	}
	return nil
}

// AuthEnabled reports whether the API requires a bearer token.
func (c *Config) AuthEnabled() bool {
	return c.APITokenHash != ""
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// GetHTTPClient returns an HTTP client configured with TLS settings based on AllowSelfSignedCerts
func GetHTTPClient(cfg *Config, timeout time.Duration) *http.Client {
	client := &http.Client{
		Timeout: timeout,
	}

	if cfg.AllowSelfSignedCerts {
		client.Transport = &http.Transport{
			Proxy:           http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return client
}

package core

import (
	"errors"
	"fmt"
)

// ConfigError represents a configuration-related error with actionable instructions.
type ConfigError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
	Action  string // Actionable instruction for resolution
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Error codes for configuration errors
const (
	ErrCodeEnvFileMissing     = "ENV_FILE_MISSING"
	ErrCodeInvalidServingURL  = "INVALID_SERVING_URL"
	ErrCodeServingUnreachable = "SERVING_UNREACHABLE"
	ErrCodeInvalidPort        = "INVALID_PORT"
	ErrCodeInvalidValue       = "INVALID_VALUE"
	ErrCodeInvalidTokenHash   = "INVALID_TOKEN_HASH"
	ErrCodeModelNotFound      = "MODEL_NOT_FOUND"
	ErrCodeMissingConfig      = "MISSING_CONFIG"
)

// ErrEnvFileMissing returns an error for missing .env file
func ErrEnvFileMissing(path string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeEnvFileMissing,
		Message: fmt.Sprintf("Configuration file not found: %s", path),
		Action:  "Copy example.env to .env or set variables in the environment",
	}
}

// ErrInvalidServingURL returns an error for an unusable SERVING_URL.
func ErrInvalidServingURL(url string, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidServingURL,
		Message: fmt.Sprintf("Invalid SERVING_URL '%s': %s", url, reason),
		Action:  "Set SERVING_URL to the model server REST address (e.g., http://127.0.0.1:8501)",
	}
}

// ErrServingUnreachable returns an error when the model server cannot be reached.
func ErrServingUnreachable(url string, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeServingUnreachable,
		Message: fmt.Sprintf("Cannot connect to model server at %s: %s", url, reason),
		Action:  "Check that the model server is running. For self-signed certificates, set ALLOW_SELF_SIGNED_CERTS=true",
	}
}

// ErrInvalidPort returns an error for a PORT outside 1-65535.
func ErrInvalidPort(port int) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidPort,
		Message: fmt.Sprintf("Invalid PORT: %d", port),
		Action:  "Set PORT to a value between 1 and 65535",
	}
}

// ErrInvalidValue returns an error for a variable with an out-of-range value.
func ErrInvalidValue(varName, value, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidValue,
		Message: fmt.Sprintf("Invalid %s '%s': %s", varName, value, reason),
		Action:  fmt.Sprintf("Fix %s in your .env file", varName),
	}
}

// ErrInvalidTokenHash returns an error when API_TOKEN_HASH is not a bcrypt hash.
func ErrInvalidTokenHash(reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidTokenHash,
		Message: fmt.Sprintf("API_TOKEN_HASH is not a bcrypt hash: %s", reason),
		Action:  "Generate one with `stega hash-token <token>` or unset API_TOKEN_HASH to disable auth",
	}
}

// ErrModelNotFound returns an error when no usable model directory exists.
func ErrModelNotFound(path string, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeModelNotFound,
		Message: fmt.Sprintf("No usable model at %s: %s", path, reason),
		Action:  "Set MODEL_DIR to a SavedModel directory or place one model under MODELS_DIR",
	}
}

// ErrMissingConfig returns an error for missing required configuration
func ErrMissingConfig(varName string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeMissingConfig,
		Message: fmt.Sprintf("Missing required configuration: %s", varName),
		Action:  fmt.Sprintf("Set %s in your .env file", varName),
	}
}

// IsConfigError checks if an error is, or wraps, a ConfigError and returns it if so
func IsConfigError(err error) (*ConfigError, bool) {
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return configErr, true
	}
	return nil, false
}

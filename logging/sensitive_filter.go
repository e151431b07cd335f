package logging

import (
	"regexp"
	"strings"
)

// RedactedPlaceholder replaces sensitive values.
const RedactedPlaceholder = "[REDACTED]"

var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(bearer\s+[a-zA-Z0-9._~+/=-]{8,})`), // Authorization header values
	regexp.MustCompile(`\$2[abxy]?\$\d{2}\$[./A-Za-z0-9]{53}`),  // bcrypt hashes
	regexp.MustCompile(`(?i)(password\s*[:=]\s*[^\s,;]{8,})`),   // password=...
	regexp.MustCompile(`(?i)(token\s*[:=]\s*[^\s,;]{8,})`),      // token=...
	regexp.MustCompile(`(?i)(api_key\s*[:=]\s*[^\s,;]{8,})`),    // api_key=...
	regexp.MustCompile(`(?i)(ghp_[a-zA-Z0-9]{36})`),             // GitHub tokens
	regexp.MustCompile(`(?i)(xox[baprs]-[a-zA-Z0-9-]{10,})`),    // Slack tokens
	regexp.MustCompile(`(?i)(sk-[a-zA-Z0-9_-]{20,})`),           // vendor secret keys
}

// Field names containing any of these are always redacted.
var sensitiveFieldNames = []string{
	"API_TOKEN",
	"AUTHORIZATION",
	"PASSWORD",
	"TOKEN",
	"API_KEY",
	"APIKEY",
	"COOKIE",
}

// RedactSensitiveData replaces every detected credential in value.
//
//	RedactSensitiveData("Authorization: Bearer abc.def.ghi")
//	// "Authorization: [REDACTED]"
func RedactSensitiveData(value string) string {
	if value == "" {
		return value
	}

	result := value
	for _, pattern := range sensitivePatterns {
		result = pattern.ReplaceAllString(result, RedactedPlaceholder)
	}
	return result
}

// RedactField redacts fieldValue entirely when fieldName is sensitive and
// scans it for credentials otherwise.
func RedactField(fieldName, fieldValue string) string {
	if IsSensitiveField(fieldName) {
		return RedactedPlaceholder
	}
	return RedactSensitiveData(fieldValue)
}

// IsSensitiveField reports whether a field name indicates a credential.
func IsSensitiveField(fieldName string) bool {
	upperName := strings.ToUpper(fieldName)

	for _, name := range sensitiveFieldNames {
		if strings.Contains(upperName, name) {
			return true
		}
	}
	return false
}

// ContainsSensitiveData reports whether value matches any credential pattern.
func ContainsSensitiveData(value string) bool {
	if value == "" {
		return false
	}

	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}

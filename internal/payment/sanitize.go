package payment

import (
	"strings"
)

// RedactedValue replaces any value whose key looks sensitive before it is
// persisted to the audit trail.
const RedactedValue = "[REDACTED]"

// sensitivePatterns are matched as substrings of the normalized key
// (lowercased, separators collapsed to spaces). "pin" is matched as a whole
// word so keys like "shipping" survive.
var sensitivePatterns = []string{
	"card number",
	"cardnumber",
	"cvv",
	"cvc",
	"account number",
	"routing number",
	"api key",
	"apikey",
	"secret key",
	"secret",
	"access token",
	"password",
}

var keyNormalizer = strings.NewReplacer("_", " ", "-", " ")

func isSensitiveKey(key string) bool {
	normalized := keyNormalizer.Replace(strings.ToLower(key))
	for _, pattern := range sensitivePatterns {
		if strings.Contains(normalized, pattern) {
			return true
		}
	}
	for _, token := range strings.Fields(normalized) {
		if token == "pin" {
			return true
		}
	}
	return false
}

// Sanitize deep-copies a snapshot with every sensitive value redacted,
// recursing into nested maps and lists. Non-sensitive values are preserved
// untouched.
func Sanitize(value interface{}) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		clean := make(map[string]interface{}, len(v))
		for key, nested := range v {
			if isSensitiveKey(key) {
				clean[key] = RedactedValue
				continue
			}
			clean[key] = Sanitize(nested)
		}
		return clean
	case []interface{}:
		clean := make([]interface{}, len(v))
		for i, item := range v {
			clean[i] = Sanitize(item)
		}
		return clean
	default:
		return v
	}
}

// SanitizeMap is Sanitize for the common top-level map case; nil maps stay nil.
func SanitizeMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return nil
	}
	return Sanitize(m).(map[string]interface{})
}

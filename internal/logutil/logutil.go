// Package logutil keeps secrets and oversized values out of log output.
package logutil

import (
	"log/slog"
	"strings"
)

const redacted = "[REDACTED]"

// IsSensitiveLogField returns true when a key likely holds a credential.
func IsSensitiveLogField(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	normalized = strings.ReplaceAll(normalized, "-", "")
	normalized = strings.ReplaceAll(normalized, "_", "")

	switch {
	case strings.Contains(normalized, "secret"):
		return true
	case strings.Contains(normalized, "password"):
		return true
	case strings.Contains(normalized, "token"):
		return true
	case strings.HasSuffix(normalized, "key") && normalized != "key":
		// accesskey, historykey, apikey; a bare "key" names an object.
		return true
	case strings.Contains(normalized, "credential"):
		return true
	default:
		return false
	}
}

// RedactAttr replaces the value of a sensitive attribute. It fits
// slog.HandlerOptions.ReplaceAttr.
func RedactAttr(_ []string, attr slog.Attr) slog.Attr {
	if attr.Value.Kind() != slog.KindGroup && IsSensitiveLogField(attr.Key) {
		return slog.String(attr.Key, redacted)
	}
	return attr
}

// TruncateForLog returns a single-line truncated preview for unstructured values.
func TruncateForLog(value string, maxChars int) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return ""
	}
	normalized := strings.ReplaceAll(trimmed, "\n", "\\n")
	if maxChars <= 0 || len(normalized) <= maxChars {
		return normalized
	}
	return normalized[:maxChars] + "... [truncated]"
}

package retryx

import (
	"regexp"
	"strings"
)

// maxLoggedBodyBytes bounds provider error bodies before they reach a log
// line. Bodies can carry echoed prompts including the inline image.
const maxLoggedBodyBytes = 300

var (
	// Bearer tokens and api-key style headers echoed back in error bodies.
	bearerPattern = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._\-]+`)
	apiKeyPattern = regexp.MustCompile(`(?i)(api[_-]?key|authorization)["':\s=]+[A-Za-z0-9._\-]+`)
	// Provider secret formats, e.g. sk-... keys.
	skPattern = regexp.MustCompile(`\bsk-[A-Za-z0-9]{8,}\b`)
	// Long base64 or hex runs are either tokens or image payloads, neither
	// belongs in a log line.
	blobPattern = regexp.MustCompile(`[A-Za-z0-9+/=]{64,}`)
)

// SanitizeBody truncates a raw provider response body and redacts token-like
// substrings so it is safe to log for diagnostics.
func SanitizeBody(body []byte) string {
	s := string(body)
	if len(s) > maxLoggedBodyBytes {
		s = s[:maxLoggedBodyBytes] + "...(truncated)"
	}
	return Redact(s)
}

// Redact replaces token-like substrings with a fixed marker.
func Redact(s string) string {
	s = bearerPattern.ReplaceAllString(s, "[redacted]")
	s = skPattern.ReplaceAllString(s, "[redacted]")
	s = apiKeyPattern.ReplaceAllString(s, "$1=[redacted]")
	s = blobPattern.ReplaceAllString(s, "[redacted]")
	return strings.ToValidUTF8(s, "")
}

package common

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

// Redact replaces every occurrence of the given secrets in s with "***",
// both raw and in their query-escaped form. Empty secrets are ignored.
func Redact(s string, secrets ...string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		s = strings.ReplaceAll(s, secret, "***")
		if escaped := url.QueryEscape(secret); escaped != secret {
			s = strings.ReplaceAll(s, escaped, "***")
		}
	}
	return s
}

// Truncate shortens s to at most n bytes without splitting a rune, marking the cut.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "...(truncated)"
}

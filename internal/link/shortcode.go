package link

import (
	"crypto/rand"
	"fmt"
	"net/url"
	"strings"
)

const (
	codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	codeLength  = 6
)

// GenerateCode produces a random 6-character short code. Uniqueness is the
// caller's problem; the code space is large enough that retries are rare.
func GenerateCode() (string, error) {
	b := make([]byte, codeLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate short code: %w", err)
	}

	code := make([]byte, codeLength)
	for i, v := range b {
		code[i] = codeCharset[int(v)%len(codeCharset)]
	}

	return string(code), nil
}

var blockedPatterns = []string{
	"javascript:",
	"data:",
	"file:",
	"vbscript:",
	"about:",
}

// ValidateURL rejects anything that is not a plain http(s) URL within the
// configured length bound.
func ValidateURL(raw string, maxLength int) error {
	if len(raw) > maxLength {
		return fmt.Errorf("url exceeds maximum length of %d characters", maxLength)
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url format")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("only http:// and https:// urls are allowed")
	}

	lower := strings.ToLower(raw)
	for _, pattern := range blockedPatterns {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("url contains blocked pattern: %s", pattern)
		}
	}

	return nil
}
